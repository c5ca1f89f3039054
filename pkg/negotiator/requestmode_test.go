package negotiator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/h323phone/pkg/h245"
)

func audioMode(subType string) []h245.ModeDescription {
	return []h245.ModeDescription{{{MainType: "audio", SubType: subType}}}
}

func TestRequestModeAccepted(t *testing.T) {
	a, b := newPair(t)
	b.acceptMode = true

	require.True(t, a.rm.Start(audioMode("g711Alaw64k")))
	assert.False(t, a.rm.Start(audioMode("g711Ulaw64k")), "одновременно ожидается один запрос")
	pump(t, a, b)

	assert.Equal(t, []bool{true}, a.modeResults)
	assert.False(t, a.rm.IsAwaitingResponse())
}

func TestRequestModeRejected(t *testing.T) {
	a, b := newPair(t)

	require.True(t, a.rm.Start(audioMode("g711Alaw64k")))
	pump(t, a, b)

	assert.Equal(t, []bool{false}, a.modeResults)
	require.Equal(t, 1, countKind(b.sent, h245.KindRequestModeReject))
}

func TestRequestModeTimeout(t *testing.T) {
	a, _ := newPair(t)
	require.True(t, a.rm.Start(audioMode("g711Alaw64k")))

	a.rm.CheckTimeout(time.Now().Add(2 * time.Second))

	assert.Equal(t, []bool{false}, a.modeResults)
	assert.Equal(t, h245.KindRequestModeRelease, a.sent[len(a.sent)-1].Kind())
	assert.True(t, a.rm.Start(audioMode("g711Alaw64k")), "после таймаута можно повторить")
}

func TestRoundTripDelay(t *testing.T) {
	a, b := newPair(t)

	require.True(t, a.rtd.Start())
	assert.False(t, a.rtd.Start())
	pump(t, a, b)

	require.Len(t, a.rtts, 1)
	assert.GreaterOrEqual(t, a.rtts[0], time.Duration(0))
	assert.False(t, a.rtd.IsAwaitingResponse())

	// ответ с чужим номером не засчитывается
	require.True(t, a.rtd.Start())
	a.rtd.HandleResponse(&h245.RoundTripDelayResponse{SequenceNumber: 99})
	assert.True(t, a.rtd.IsAwaitingResponse())

	a.rtd.CheckTimeout(time.Now().Add(2 * time.Second))
	assert.Equal(t, 1, a.rttTimeouts)
	assert.False(t, a.rtd.IsAwaitingResponse())
}
