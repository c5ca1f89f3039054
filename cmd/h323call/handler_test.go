package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/h323phone/pkg/call"
	"github.com/arzzra/h323phone/pkg/media"
	"github.com/arzzra/h323phone/pkg/transport"
)

func TestTalkBetweenConsoleHandlers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	network := transport.NewMemoryNetwork()
	ports, err := media.NewPortAllocator(media.PortRange{Min: 35000, Max: 35100})
	require.NoError(t, err)
	factory := func() (media.SessionFactory, error) {
		return media.NewRTPFactory(media.DefaultRTPConfig(), ports), nil
	}
	newTestEndpoint := func(alias string, h call.Handler) *call.Endpoint {
		cfg := call.DefaultConfig()
		cfg.LocalAlias = alias
		ep, err := call.NewEndpoint(call.EndpointOptions{
			Config:     cfg,
			Network:    network,
			Media:      factory,
			Handler:    h,
			Registerer: prometheus.NewRegistry(),
			Logger:     logger,
		})
		require.NoError(t, err)
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			assert.NoError(t, ep.Shutdown(ctx))
		})
		return ep
	}

	calleeH := newConsoleHandler(logger)
	callee := newTestEndpoint("bob", calleeH)
	l, err := network.Listen("mem:1720")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- callee.Serve(ctx, l) }()
	t.Cleanup(func() {
		cancel()
		<-served
	})

	callerH := newConsoleHandler(logger)
	caller := newTestEndpoint("alice", callerH)

	tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer tcancel()
	reason, err := talk(tctx, caller, callerH, "bob@mem:1720", 50*time.Millisecond, "1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, call.EndedByLocalUser, reason)

	select {
	case r := <-calleeH.released:
		assert.Equal(t, call.EndedByRemoteUser, r)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "вызываемая сторона не завершила вызов")
	}
	assert.Equal(t, 0, ports.InUse(), "порты RTP освобождены")
}
