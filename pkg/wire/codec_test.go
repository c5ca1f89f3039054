package wire

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/h323phone/pkg/h225"
	"github.com/arzzra/h323phone/pkg/h245"
)

func TestSignalCarriesTunnelledControl(t *testing.T) {
	c := NewJSONCodec()

	tcs, err := c.EncodeControl(&h245.TerminalCapabilitySet{
		SequenceNumber: 1,
		Capabilities:   []h245.CapabilityEntry{{Number: 1, MainType: "audio", SubType: "g711Ulaw64k"}},
	})
	require.NoError(t, err)

	setup := h225.Setup(42, "call-id", "conf-id")
	setup.H245Tunneling = true
	setup.H245Control = [][]byte{tcs}

	data, err := c.EncodeSignal(setup)
	require.NoError(t, err)

	got, err := c.DecodeSignal(data)
	require.NoError(t, err)
	assert.Equal(t, h225.TypeSetup, got.Type)
	assert.True(t, got.HasTunnelledControl())

	inner, err := c.DecodeControl(got.H245Control[0])
	require.NoError(t, err)
	set, ok := inner.(*h245.TerminalCapabilitySet)
	require.True(t, ok, "ожидался TerminalCapabilitySet, получен %T", inner)
	assert.Equal(t, "g711Ulaw64k", set.Capabilities[0].SubType)
}

func TestDecodeControlUnknownKind(t *testing.T) {
	msg, err := NewJSONCodec().DecodeControl([]byte(`{"kind":"conferenceRequest","body":{}}`))
	require.NoError(t, err)
	u, ok := msg.(*h245.Unknown)
	require.True(t, ok)
	assert.Equal(t, "conferenceRequest", u.Name)
}

func TestDecodeMalformed(t *testing.T) {
	c := NewJSONCodec()

	_, err := c.DecodeSignal([]byte("{"))
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = c.DecodeControl([]byte(`{"kind":"OpenLogicalChannel","body":"x"}`))
	assert.True(t, errors.Is(err, ErrMalformed))
}
