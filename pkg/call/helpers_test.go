package call

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/h323phone/pkg/gatekeeper"
	"github.com/arzzra/h323phone/pkg/h225"
	"github.com/arzzra/h323phone/pkg/h245"
	"github.com/arzzra/h323phone/pkg/media"
	"github.com/arzzra/h323phone/pkg/mediafmt"
	"github.com/arzzra/h323phone/pkg/negotiator"
	"github.com/arzzra/h323phone/pkg/transport"
	"github.com/arzzra/h323phone/pkg/wire"
)

const (
	waitTimeout = 2 * time.Second
	calleeAddr  = "mem:1720"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeouts.Monitor = 20 * time.Millisecond
	cfg.Timeouts.EndSession = 200 * time.Millisecond
	return cfg
}

// receive ждет значение из канала не дольше waitTimeout.
func receive[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		require.FailNow(t, "значение не получено")
	}
	var zero T
	return zero
}

// fakeSession медиа сессия без сокетов.
type fakeSession struct {
	id        uint
	mediaType mediafmt.MediaType
	addr      string

	mu        sync.Mutex
	remote    string
	paused    bool
	closed    bool
	suite     string
	key       []byte
	initiator bool
}

func (s *fakeSession) ID() uint                      { return s.id }
func (s *fakeSession) MediaType() mediafmt.MediaType { return s.mediaType }
func (s *fakeSession) LocalAddress() string          { return s.addr }

func (s *fakeSession) Open(remoteAddr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return media.ErrSessionClosed
	}
	s.remote = remoteAddr
	return nil
}

func (s *fakeSession) ApplyCryptoKey(suite string, key []byte, initiator bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suite, s.key, s.initiator = suite, append([]byte(nil), key...), initiator
	return nil
}

func (s *fakeSession) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

func (s *fakeSession) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) remoteAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

func (s *fakeSession) cryptoKey() (string, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suite, s.key
}

// fakeMedia фабрика сессий с адресами вида prefix:port.
type fakeMedia struct {
	prefix string

	mu       sync.Mutex
	sessions map[uint]*fakeSession
	reserved []uint
	created  int
	released []uint
	closed   bool
}

var _ media.SessionFactory = (*fakeMedia)(nil)

func newFakeMedia(prefix string) *fakeMedia {
	return &fakeMedia{prefix: prefix, sessions: make(map[uint]*fakeSession)}
}

func (f *fakeMedia) UseSession(id uint, mediaType mediafmt.MediaType) (media.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, media.ErrSessionClosed
	}
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	s := &fakeSession{id: id, mediaType: mediaType, addr: f.address(id)}
	f.sessions[id] = s
	f.created++
	return s, nil
}

func (f *fakeMedia) ReserveAddress(id uint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", media.ErrSessionClosed
	}
	f.reserved = append(f.reserved, id)
	return f.address(id), nil
}

func (f *fakeMedia) address(id uint) string {
	return fmt.Sprintf("%s:%d", f.prefix, 5000+2*id)
}

// sessionsCreated количество созданных сессий
func (f *fakeMedia) sessionsCreated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func (f *fakeMedia) reservations() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint(nil), f.reserved...)
}

func (f *fakeMedia) ReleaseSession(id uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.Close()
		delete(f.sessions, id)
		f.released = append(f.released, id)
	}
}

func (f *fakeMedia) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.sessions {
		s.Close()
		delete(f.sessions, id)
	}
	f.closed = true
	return nil
}

func (f *fakeMedia) session(id uint) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id]
}

func (f *fakeMedia) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type holdEvent struct {
	fromRemote bool
	onHold     bool
}

// recorder Handler, передающий события в каналы.
type recorder struct {
	BaseHandler
	reject bool
	answer AnswerResponse

	incoming    chan *Connection
	alerting    chan *Connection
	established chan *Connection
	released    chan EndReason
	inputs      chan string
	holds       chan holdEvent
	closed      chan uint
}

func newRecorder() *recorder {
	return &recorder{
		incoming:    make(chan *Connection, 8),
		alerting:    make(chan *Connection, 8),
		established: make(chan *Connection, 8),
		released:    make(chan EndReason, 8),
		inputs:      make(chan string, 16),
		holds:       make(chan holdEvent, 16),
		closed:      make(chan uint, 16),
	}
}

func (r *recorder) OnIncomingCall(c *Connection, _ *h225.Message) bool {
	r.incoming <- c
	return !r.reject
}

func (r *recorder) OnAnswerCall(*Connection, string) AnswerResponse { return r.answer }
func (r *recorder) OnAlerting(c *Connection)                        { r.alerting <- c }
func (r *recorder) OnEstablished(c *Connection)                     { r.established <- c }
func (r *recorder) OnUserInput(_ *Connection, input string)         { r.inputs <- input }
func (r *recorder) OnReleased(_ *Connection, reason EndReason)      { r.released <- reason }

func (r *recorder) OnHold(_ *Connection, fromRemote, onHold bool) {
	r.holds <- holdEvent{fromRemote: fromRemote, onHold: onHold}
}

func (r *recorder) OnClosedChannel(_ *Connection, ch *negotiator.LogicalChannel) {
	r.closed <- ch.Number
}

func newTestEndpoint(t *testing.T, network transport.Network, cfg Config, h Handler, fm *fakeMedia, gk gatekeeper.Client) *Endpoint {
	t.Helper()
	ep, err := NewEndpoint(EndpointOptions{
		Config:     cfg,
		Network:    network,
		Gatekeeper: gk,
		Media:      func() (media.SessionFactory, error) { return fm, nil },
		Handler:    h,
		Registerer: prometheus.NewRegistry(),
		Logger:     quietLogger,
	})
	require.NoError(t, err)
	return ep
}

// serve запускает прием вызовов до завершения теста.
func serve(t *testing.T, ep *Endpoint, l transport.Listener) {
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- ep.Serve(ctx, l) }()
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer scancel()
		assert.NoError(t, ep.Shutdown(sctx))
		cancel()
		assert.NoError(t, <-served)
	})
}

// callPair две конечные точки, соединенные сетью в памяти.
type callPair struct {
	network     *transport.MemoryNetwork
	caller      *Endpoint
	callee      *Endpoint
	callerH     *recorder
	calleeH     *recorder
	callerMedia *fakeMedia
	calleeMedia *fakeMedia
}

func newCallPair(t *testing.T, configure func(caller, callee *Config), callerGK gatekeeper.Client) *callPair {
	t.Helper()
	p := &callPair{
		network:     transport.NewMemoryNetwork(),
		callerH:     newRecorder(),
		calleeH:     newRecorder(),
		callerMedia: newFakeMedia("caller"),
		calleeMedia: newFakeMedia("callee"),
	}
	callerCfg, calleeCfg := testConfig(), testConfig()
	callerCfg.LocalAlias = "alice"
	calleeCfg.LocalAlias = "bob"
	if configure != nil {
		configure(&callerCfg, &calleeCfg)
	}
	p.caller = newTestEndpoint(t, p.network, callerCfg, p.callerH, p.callerMedia, callerGK)
	p.callee = newTestEndpoint(t, p.network, calleeCfg, p.calleeH, p.calleeMedia, nil)

	l, err := p.network.Listen(calleeAddr)
	require.NoError(t, err)
	serve(t, p.callee, l)
	t.Cleanup(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		assert.NoError(t, p.caller.Shutdown(sctx))
	})
	return p
}

// rawPeer удаленная сторона, управляемая тестом сообщение за сообщением.
type rawPeer struct {
	t     *testing.T
	codec wire.Codec
	tr    transport.Transport
}

func acceptPeer(t *testing.T, l transport.Listener) *rawPeer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	tr, err := l.Accept(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return &rawPeer{t: t, codec: wire.NewJSONCodec(), tr: tr}
}

func dialPeer(t *testing.T, network transport.Network, addr string) *rawPeer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	tr, err := network.Dial(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return &rawPeer{t: t, codec: wire.NewJSONCodec(), tr: tr}
}

func (p *rawPeer) readSignal() *h225.Message {
	p.t.Helper()
	data, err := p.tr.ReadPDU(waitTimeout)
	require.NoError(p.t, err)
	msg, err := p.codec.DecodeSignal(data)
	require.NoError(p.t, err)
	return msg
}

func (p *rawPeer) readSignalUntil(typ h225.MessageType) *h225.Message {
	p.t.Helper()
	for {
		if msg := p.readSignal(); msg.Type == typ {
			return msg
		}
	}
}

func (p *rawPeer) sendSignal(msg *h225.Message) {
	p.t.Helper()
	data, err := p.codec.EncodeSignal(msg)
	require.NoError(p.t, err)
	require.NoError(p.t, p.tr.WritePDU(data))
}

func (p *rawPeer) readControl() h245.Message {
	p.t.Helper()
	data, err := p.tr.ReadPDU(waitTimeout)
	require.NoError(p.t, err)
	msg, err := p.codec.DecodeControl(data)
	require.NoError(p.t, err)
	return msg
}

func (p *rawPeer) readControlUntil(kind h245.MessageKind) h245.Message {
	p.t.Helper()
	for {
		if msg := p.readControl(); msg.Kind() == kind {
			return msg
		}
	}
}

func (p *rawPeer) sendControl(msg h245.Message) {
	p.t.Helper()
	data, err := p.codec.EncodeControl(msg)
	require.NoError(p.t, err)
	require.NoError(p.t, p.tr.WritePDU(data))
}

// expectClosed после освобождения вызова в транспорте не остается
// непрочитанных сообщений.
func (p *rawPeer) expectClosed() {
	p.t.Helper()
	_, err := p.tr.ReadPDU(100 * time.Millisecond)
	assert.ErrorIs(p.t, err, transport.ErrClosed)
}

// peerCapabilities набор возможностей удаленной стороны в виде протокола.
func peerCapabilities(t *testing.T, names ...string) *h245.TerminalCapabilitySet {
	t.Helper()
	set, err := BuildCapabilities(nil, names, nil)
	require.NoError(t, err)
	entries, descs := set.ToWire()
	return &h245.TerminalCapabilitySet{Capabilities: entries, Descriptors: descs}
}
