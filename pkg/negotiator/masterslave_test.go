package negotiator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/h323phone/pkg/capability"
	"github.com/arzzra/h323phone/pkg/h245"
)

func TestMasterSlaveSingleInitiator(t *testing.T) {
	a := newSide(t, "a", capability.NewSet(), sequence(0x000010))
	b := newSide(t, "b", capability.NewSet(), sequence(0x000020))

	require.True(t, a.msd.Start())
	pump(t, a, b)

	require.True(t, a.msd.IsDetermined())
	require.True(t, b.msd.IsDetermined())
	assert.NotEqual(t, a.msd.IsMaster(), b.msd.IsMaster(), "ровно одна сторона ведущая")
	assert.Equal(t, []bool{a.msd.IsMaster()}, a.determined)
	assert.Equal(t, []bool{b.msd.IsMaster()}, b.determined)
}

func TestMasterSlaveTerminalTypeWins(t *testing.T) {
	a := newSide(t, "a", capability.NewSet(), sequence(1))
	b := newSide(t, "b", capability.NewSet(), sequence(1))
	b.msd.cfg.TerminalType = 240

	require.True(t, a.msd.Start())
	require.True(t, b.msd.Start())
	pump(t, a, b)

	assert.True(t, b.msd.IsMaster(), "больший тип терминала становится ведущим")
	assert.True(t, a.msd.IsDetermined())
	assert.False(t, a.msd.IsMaster())
}

func TestMasterSlaveCollisionRetry(t *testing.T) {
	a := newSide(t, "a", capability.NewSet(), sequence(100, 200))
	b := newSide(t, "b", capability.NewSet(), sequence(100, 900))

	require.True(t, a.msd.Start())
	require.True(t, b.msd.Start())
	pump(t, a, b)

	require.True(t, a.msd.IsDetermined())
	require.True(t, b.msd.IsDetermined())
	assert.True(t, a.msd.IsMaster())
	assert.False(t, b.msd.IsMaster())
	assert.Equal(t, 1, a.msd.Retries())
	assert.Equal(t, 2, countKind(a.sent, h245.KindMasterSlaveDetermination))
	assert.Empty(t, a.errors)
}

func TestMasterSlaveRetryLimit(t *testing.T) {
	a := newSide(t, "a", capability.NewSet(), sequence(7))
	b := newSide(t, "b", capability.NewSet(), sequence(7))

	require.True(t, a.msd.Start())
	require.True(t, b.msd.Start())
	pump(t, a, b)

	assert.False(t, a.msd.IsDetermined())
	assert.False(t, b.msd.IsDetermined())
	assert.Equal(t, 5, countKind(a.sent, h245.KindMasterSlaveDetermination))
	assert.Contains(t, a.errors, ProcMasterSlave)

	var rejected bool
	for _, m := range a.sent {
		if rej, ok := m.(*h245.MasterSlaveDeterminationReject); ok {
			rejected = rej.Cause == h245.MSDRejectMaxRetriesExceeded
		}
	}
	assert.True(t, rejected)
}

func TestMasterSlaveTimeout(t *testing.T) {
	a := newSide(t, "a", capability.NewSet(), sequence(1))
	require.True(t, a.msd.Start())
	assert.Equal(t, StateAwaitingPeer, a.msd.State())

	a.msd.CheckTimeout(time.Now().Add(2 * time.Second))
	assert.Equal(t, StateReleased, a.msd.State())
	assert.Equal(t, h245.KindMasterSlaveDeterminationRelease, a.sent[len(a.sent)-1].Kind())
	assert.Equal(t, []Procedure{ProcMasterSlave}, a.errors)
}
