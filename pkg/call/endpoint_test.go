package call

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/h323phone/pkg/h225"
	"github.com/arzzra/h323phone/pkg/media"
	"github.com/arzzra/h323phone/pkg/transport"
)

func TestParseDestination(t *testing.T) {
	tests := []struct {
		in        string
		alias     string
		addr      string
		wantError bool
	}{
		{in: "bob@10.0.0.1:1721", alias: "bob", addr: "10.0.0.1:1721"},
		{in: "bob@10.0.0.1", alias: "bob", addr: "10.0.0.1:1720"},
		{in: "10.0.0.1", addr: "10.0.0.1:1720"},
		{in: " host.example:2000 ", addr: "host.example:2000"},
		{in: "bob@", alias: "bob"},
		{in: "a@b@host", alias: "a@b", addr: "host:1720"},
		{in: "[::1]:1721", addr: "[::1]:1721"},
		{in: "[::1]", addr: "[::1]:1720"},
		{in: "::1", addr: "[::1]:1720"},
		{in: "", wantError: true},
		{in: "@host", wantError: true},
		{in: "host:", addr: "host:1720"},
		{in: "ho[st:1720", wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			alias, addr, err := parseDestination(tt.in)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.alias, alias)
			assert.Equal(t, tt.addr, addr)
		})
	}
}

func TestCallsMap(t *testing.T) {
	m := newCallsMap()
	a := &Connection{token: "a"}
	b := &Connection{token: "b"}

	m.Put(a)
	m.Put(b)
	m.Put(a)
	assert.Equal(t, 2, m.Len())
	assert.Len(t, m.All(), 2)

	got, ok := m.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	deleted, ok := m.Delete("a")
	require.True(t, ok)
	assert.Same(t, a, deleted)
	_, ok = m.Delete("a")
	assert.False(t, ok)
	_, ok = m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())
}

func TestNewEndpointValidation(t *testing.T) {
	network := transport.NewMemoryNetwork()
	factory := func() (media.SessionFactory, error) { return newFakeMedia("x"), nil }

	_, err := NewEndpoint(EndpointOptions{Config: DefaultConfig(), Media: factory})
	assert.Error(t, err, "без сети")

	_, err = NewEndpoint(EndpointOptions{Config: DefaultConfig(), Network: network})
	assert.Error(t, err, "без фабрики медиа")

	bad := DefaultConfig()
	bad.Formats = []string{"no-such-codec"}
	_, err = NewEndpoint(EndpointOptions{Config: bad, Network: network, Media: factory})
	assert.Error(t, err)

	ep, err := NewEndpoint(EndpointOptions{Config: DefaultConfig(), Network: network, Media: factory, Logger: quietLogger})
	require.NoError(t, err)
	caps := ep.Capabilities()
	assert.Equal(t, 4, caps.Len())
	caps.RemoveAll()
	assert.Equal(t, 4, ep.Capabilities().Len())
}

func TestServeStopsOnCancel(t *testing.T) {
	network := transport.NewMemoryNetwork()
	ep := newTestEndpoint(t, network, testConfig(), newRecorder(), newFakeMedia("callee"), nil)
	l, err := network.Listen(calleeAddr)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- ep.Serve(ctx, l) }()

	peer := dialPeer(t, network, calleeAddr)
	require.Eventually(t, func() bool { return ep.ActiveCalls() == 1 }, waitTimeout, 5*time.Millisecond)
	calls := ep.Calls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].IsOutgoing())

	cancel()
	assert.NoError(t, receive(t, served))

	_, err = network.Dial(context.Background(), calleeAddr)
	assert.Error(t, err, "слушатель закрыт")

	require.NoError(t, ep.Shutdown(context.Background()))
	assert.Equal(t, 0, ep.ActiveCalls())
	peer.readSignalUntil(h225.TypeReleaseComplete)
	peer.expectClosed()
}

func TestNewOutgoingInitiatedOnce(t *testing.T) {
	network := transport.NewMemoryNetwork()
	l, err := network.Listen(calleeAddr)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	ep := newTestEndpoint(t, network, testConfig(), newRecorder(), newFakeMedia("caller"), nil)
	t.Cleanup(func() { assert.NoError(t, ep.Shutdown(context.Background())) })

	c, err := ep.NewOutgoing()
	require.NoError(t, err)
	assert.True(t, c.IsOutgoing())
	assert.Equal(t, StateAwaitingAdmission, c.State())
	assert.Equal(t, PhaseSetUp, c.Phase())

	require.NoError(t, c.InitiateOutgoing(context.Background(), calleeAddr))
	assert.Equal(t, StateAwaitingSignalConnect, c.State())
	assert.Equal(t, calleeAddr, c.RemoteParty())

	err = c.InitiateOutgoing(context.Background(), calleeAddr)
	require.Error(t, err)
	assert.True(t, IsCategory(err, ErrorCategoryState))
}
