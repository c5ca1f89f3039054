package call

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/h323phone/pkg/transport"
)

// callView значения методов чтения, полученные внутри обработчика.
type callView struct {
	state      ConnectionState
	reason     EndReason
	master     bool
	tunneling  bool
	ready      bool
	holdLocal  bool
	holdRemote bool
	remote     string
}

// inspector обработчик, читающий состояние вызова из обратных вызовов.
type inspector struct {
	*recorder
	views chan callView
	roles chan [2]bool
	held  chan callView
}

func newInspector() *inspector {
	return &inspector{
		recorder: newRecorder(),
		views:    make(chan callView, 4),
		roles:    make(chan [2]bool, 4),
		held:     make(chan callView, 4),
	}
}

func readView(c *Connection) callView {
	local, remote := c.IsOnHold()
	return callView{
		state:      c.State(),
		reason:     c.EndReason(),
		master:     c.IsMaster(),
		tunneling:  c.IsTunneling(),
		ready:      c.IsEstablishmentReady(),
		holdLocal:  local,
		holdRemote: remote,
		remote:     c.RemoteParty(),
	}
}

func (h *inspector) OnEstablished(c *Connection) {
	h.views <- readView(c)
	h.recorder.OnEstablished(c)
}

func (h *inspector) OnRoleChange(c *Connection, master bool) {
	h.roles <- [2]bool{master, c.IsMaster()}
}

func (h *inspector) OnHold(c *Connection, fromRemote, onHold bool) {
	h.held <- readView(c)
	h.recorder.OnHold(c, fromRemote, onHold)
}

func (h *inspector) OnReleased(c *Connection, reason EndReason) {
	h.views <- readView(c)
	h.recorder.OnReleased(c, reason)
}

func TestHandlerReadsCallState(t *testing.T) {
	network := transport.NewMemoryNetwork()
	callerH, calleeH := newInspector(), newInspector()
	callerCfg, calleeCfg := testConfig(), testConfig()
	callerCfg.LocalAlias = "alice"
	calleeCfg.LocalAlias = "bob"
	caller := newTestEndpoint(t, network, callerCfg, callerH, newFakeMedia("caller"), nil)
	callee := newTestEndpoint(t, network, calleeCfg, calleeH, newFakeMedia("callee"), nil)
	l, err := network.Listen(calleeAddr)
	require.NoError(t, err)
	serve(t, callee, l)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		assert.NoError(t, caller.Shutdown(ctx))
	})

	c := makeCall(t, caller, "bob@"+calleeAddr)
	remote := receive(t, calleeH.incoming)

	established := receive(t, callerH.views)
	assert.Equal(t, StateEstablished, established.state)
	assert.True(t, established.tunneling)
	assert.True(t, established.ready)
	assert.Equal(t, "bob", established.remote)
	receive(t, callerH.established)

	calleeView := receive(t, calleeH.views)
	assert.Equal(t, StateEstablished, calleeView.state)
	assert.Equal(t, "alice", calleeView.remote)
	receive(t, calleeH.established)

	callerRole := receive(t, callerH.roles)
	assert.Equal(t, callerRole[0], callerRole[1], "роль видна из обработчика")
	calleeRole := receive(t, calleeH.roles)
	assert.Equal(t, calleeRole[0], calleeRole[1])
	assert.NotEqual(t, callerRole[0], calleeRole[0])

	require.NoError(t, c.Hold())
	held := receive(t, callerH.held)
	assert.True(t, held.holdLocal)
	assert.False(t, held.ready)
	heldRemote := receive(t, calleeH.held)
	assert.True(t, heldRemote.holdRemote)

	require.True(t, c.Release(EndedByLocalUser))
	released := receive(t, callerH.views)
	assert.Equal(t, StateShuttingDown, released.state)
	assert.Equal(t, EndedByLocalUser, released.reason)
	assert.Equal(t, EndedByLocalUser, receive(t, callerH.released))

	remoteReleased := receive(t, calleeH.views)
	assert.Equal(t, EndedByRemoteUser, remoteReleased.reason)
	assert.Equal(t, EndedByRemoteUser, receive(t, calleeH.released))

	waitDone(t, c)
	waitDone(t, remote)
	assert.Equal(t, float64(0), testutil.ToFloat64(caller.metrics.callsActive))
}
