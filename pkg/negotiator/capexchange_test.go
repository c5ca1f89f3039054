package negotiator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/h323phone/pkg/capability"
	"github.com/arzzra/h323phone/pkg/h245"
)

func TestCapabilityExchangeBothWays(t *testing.T) {
	a := newSide(t, "a", audioSet(t), sequence(1))
	b := newSide(t, "b", audioSet(t), sequence(2))

	require.True(t, a.tcs.Start(false))
	require.True(t, b.tcs.Start(false))
	pump(t, a, b)

	for _, s := range []*side{a, b} {
		assert.True(t, s.tcs.HasSentCapabilities(), s.name)
		assert.True(t, s.tcs.HasReceivedCapabilities(), s.name)
		assert.Equal(t, 3, s.remote.Len(), s.name)
		assert.Equal(t, StateAcked, s.tcs.State())
	}
}

func TestCapabilityExchangeEmptySet(t *testing.T) {
	a, b := newPair(t)

	require.True(t, a.tcs.Start(true))
	pump(t, a, b)

	assert.Equal(t, 1, b.emptyTCS)
	assert.True(t, b.tcs.HasReceivedCapabilities(), "признак обмена не сбрасывается пустым набором")
	assert.True(t, a.tcs.HasSentCapabilities())
	assert.Equal(t, 2, countKind(b.sent, h245.KindTerminalCapabilitySetAck))
}

func TestCapabilityExchangeRejectUnknown(t *testing.T) {
	a := newSide(t, "a", capability.NewSet(), sequence(1))
	b := newSide(t, "b", audioSet(t), sequence(2))

	a.WriteControl(&h245.TerminalCapabilitySet{
		SequenceNumber: 1,
		Capabilities: []h245.CapabilityEntry{
			{Number: 1, MainType: "audio", SubType: "no-such-codec", Direction: h245.DirectionReceive},
		},
	})
	pump(t, a, b)

	assert.False(t, b.tcs.HasReceivedCapabilities())
	assert.Equal(t, 1, countKind(b.sent, h245.KindTerminalCapabilitySetReject))
}

func TestCapabilityExchangeStaleAck(t *testing.T) {
	a := newSide(t, "a", audioSet(t), sequence(1))
	require.True(t, a.tcs.Start(false))
	require.True(t, a.tcs.Start(false))

	a.tcs.HandleAck(&h245.TerminalCapabilitySetAck{SequenceNumber: 1})
	assert.True(t, a.tcs.IsAwaitingAck(), "подтверждение старого номера игнорируется")
	a.tcs.HandleAck(&h245.TerminalCapabilitySetAck{SequenceNumber: 2})
	assert.False(t, a.tcs.IsAwaitingAck())
	assert.True(t, a.tcs.HasSentCapabilities())

	a.tcs.Stop()
	assert.False(t, a.tcs.HasSentCapabilities())
}

func TestCapabilityExchangeTimeout(t *testing.T) {
	a := newSide(t, "a", audioSet(t), sequence(1))
	require.True(t, a.tcs.Start(false))
	a.tcs.CheckTimeout(time.Now().Add(2 * time.Second))

	assert.Equal(t, StateReleased, a.tcs.State())
	assert.Equal(t, h245.KindTerminalCapabilitySetRelease, a.sent[len(a.sent)-1].Kind())
	assert.Equal(t, []Procedure{ProcCapabilityExchange}, a.errors)
}
