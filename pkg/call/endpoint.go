package call

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/arzzra/h323phone/pkg/capability"
	"github.com/arzzra/h323phone/pkg/gatekeeper"
	"github.com/arzzra/h323phone/pkg/media"
	"github.com/arzzra/h323phone/pkg/mediafmt"
	"github.com/arzzra/h323phone/pkg/transport"
	"github.com/arzzra/h323phone/pkg/wire"
)

// DefaultSignalPort порт сигнализации H.225.0 по умолчанию
const DefaultSignalPort = "1720"

// MediaFactoryFunc создает фабрику медиа сессий для одного вызова.
type MediaFactoryFunc func() (media.SessionFactory, error)

// EndpointOptions зависимости конечной точки.
type EndpointOptions struct {
	Config     Config
	Network    transport.Network
	Codec      wire.Codec
	Gatekeeper gatekeeper.Client
	Media      MediaFactoryFunc
	Handler    Handler
	// Registerer регистратор метрик, nil отключает экспорт
	Registerer prometheus.Registerer
	Logger     *slog.Logger
	Registry   *mediafmt.Registry
}

// Endpoint конечная точка H.323: создает исходящие вызовы, принимает
// входящие и хранит активные соединения.
type Endpoint struct {
	cfg      Config
	network  transport.Network
	codec    wire.Codec
	gk       gatekeeper.Client
	media    MediaFactoryFunc
	handler  Handler
	metrics  *Metrics
	logger   *slog.Logger
	registry *mediafmt.Registry
	local    *capability.Set

	calls   *callsMap
	stopped atomic.Bool
}

// NewEndpoint проверяет конфигурацию и строит таблицу возможностей.
func NewEndpoint(opts EndpointOptions) (*Endpoint, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, errors.Wrap(err, "конфигурация вызовов")
	}
	if opts.Network == nil {
		return nil, errors.New("не задана сеть")
	}
	if opts.Media == nil {
		return nil, errors.New("не задана фабрика медиа")
	}
	if opts.Codec == nil {
		opts.Codec = wire.NewJSONCodec()
	}
	if opts.Registry == nil {
		opts.Registry = mediafmt.DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Handler == nil {
		opts.Handler = BaseHandler{}
	}
	local, err := BuildCapabilities(opts.Registry, opts.Config.Formats, opts.Config.CryptoSuites)
	if err != nil {
		return nil, err
	}
	e := &Endpoint{
		cfg:      opts.Config,
		network:  opts.Network,
		codec:    opts.Codec,
		media:    opts.Media,
		handler:  opts.Handler,
		metrics:  NewMetrics(opts.Registerer),
		logger:   opts.Logger.With(slog.String("component", "h323")),
		registry: opts.Registry,
		local:    local,
		calls:    newCallsMap(),
		gk:       opts.Gatekeeper,
	}
	return e, nil
}

// Capabilities копия локальной таблицы возможностей.
func (e *Endpoint) Capabilities() *capability.Set {
	return e.local.Clone()
}

func (e *Endpoint) newCall(outgoing bool) (*Connection, error) {
	if e.stopped.Load() {
		return nil, newError(ErrorCategoryState, CodeEndpointStopped, "конечная точка остановлена", nil)
	}
	factory, err := e.media()
	if err != nil {
		return nil, newError(ErrorCategoryTransport, CodeMediaFailed, "фабрика медиа", err)
	}
	c := newConnection(connectionParams{
		cfg:      e.cfg,
		handler:  e.handler,
		codec:    e.codec,
		network:  e.network,
		gk:       e.gk,
		media:    factory,
		metrics:  e.metrics,
		logger:   e.logger,
		registry: e.registry,
		local:    e.local,
		released: e.onReleased,
	}, outgoing)
	e.calls.Put(c)
	return c, nil
}

func (e *Endpoint) onReleased(c *Connection) {
	e.calls.Delete(c.Token())
}

// NewOutgoing создает исходящий вызов без отправки SETUP. Вызов
// начинается методом InitiateOutgoing.
func (e *Endpoint) NewOutgoing() (*Connection, error) {
	return e.newCall(true)
}

// MakeCall создает исходящий вызов и отправляет SETUP. Назначение
// задается как "alias@host:port", "host[:port]" или "alias@" для
// маршрутизации регистратором.
func (e *Endpoint) MakeCall(ctx context.Context, destination string) (*Connection, error) {
	c, err := e.newCall(true)
	if err != nil {
		return nil, err
	}
	if err := c.InitiateOutgoing(ctx, destination); err != nil {
		c.Release(EndedByIllegalAddress)
		return c, err
	}
	return c, nil
}

// InitiateOutgoing выполняет допуск, соединяется с назначением и
// отправляет SETUP. Допустим один раз для исходящего вызова.
func (c *Connection) InitiateOutgoing(ctx context.Context, destination string) error {
	alias, addr, err := parseDestination(destination)
	if err != nil {
		return c.withToken(newError(ErrorCategoryState, CodeBadDestination, destination, err))
	}
	return c.initiateOutgoing(ctx, alias, addr)
}

// parseDestination разбирает назначение вида "alias@host:port". Без
// порта используется порт сигнализации по умолчанию.
func parseDestination(s string) (alias, addr string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", errors.New("пустое назначение")
	}
	addr = s
	if at := strings.LastIndexByte(s, '@'); at >= 0 {
		alias, addr = s[:at], s[at+1:]
		if alias == "" {
			return "", "", errors.Errorf("пустой псевдоним в %q", s)
		}
	}
	if addr == "" {
		return alias, "", nil
	}
	host, port, splitErr := net.SplitHostPort(addr)
	switch {
	case splitErr == nil && port != "":
	case splitErr == nil:
		addr = net.JoinHostPort(host, DefaultSignalPort)
	case strings.Contains(addr, "]") || strings.Count(addr, ":") > 1:
		addr = net.JoinHostPort(strings.Trim(addr, "[]"), DefaultSignalPort)
	case strings.Contains(addr, ":"):
		return "", "", errors.Wrapf(splitErr, "адрес %q", addr)
	default:
		addr = net.JoinHostPort(addr, DefaultSignalPort)
	}
	return alias, addr, nil
}

// Serve принимает входящие вызовы до отмены ctx или закрытия слушателя.
func (e *Endpoint) Serve(ctx context.Context, l transport.Listener) error {
	e.logger.Info("прием вызовов", slog.String("addr", l.Addr()))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return l.Close()
	})
	g.Go(func() error {
		defer cancel()
		for {
			t, err := l.Accept(gctx)
			if err != nil {
				if gctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
					return nil
				}
				return errors.Wrap(err, "прием соединения")
			}
			e.accept(t)
		}
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// accept создает входящий вызов для принятого соединения сигнализации.
func (e *Endpoint) accept(t transport.Transport) {
	c, err := e.newCall(false)
	if err != nil {
		e.logger.Warn("входящее соединение отклонено",
			slog.String("remote", t.RemoteAddr()), slog.Any("error", err))
		t.Close()
		return
	}
	c.mu.Lock()
	c.attachSignal(t)
	c.unlock()
	c.logger.Debug("принято соединение сигнализации", slog.String("remote", t.RemoteAddr()))
}

// Find возвращает активный вызов по токену.
func (e *Endpoint) Find(token string) (*Connection, bool) {
	return e.calls.Get(token)
}

// Calls снимок активных вызовов.
func (e *Endpoint) Calls() []*Connection {
	return e.calls.All()
}

// ActiveCalls число активных вызовов.
func (e *Endpoint) ActiveCalls() int {
	return e.calls.Len()
}

// Shutdown завершает все вызовы и ждет их освобождения. Новые вызовы
// после Shutdown не создаются.
func (e *Endpoint) Shutdown(ctx context.Context) error {
	e.stopped.Store(true)
	calls := e.calls.All()
	for _, c := range calls {
		c.Release(EndedByLocalUser)
	}
	for _, c := range calls {
		select {
		case <-c.Done():
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "ожидание освобождения вызовов")
		}
	}
	return nil
}

// callsMap активные вызовы по токену.
type callsMap struct {
	calls *sync.Map
	count atomic.Int64
}

func newCallsMap() *callsMap {
	return &callsMap{calls: new(sync.Map)}
}

func (m *callsMap) Get(token string) (*Connection, bool) {
	if val, is := m.calls.Load(token); is {
		return val.(*Connection), true
	}
	return nil, false
}

func (m *callsMap) Put(c *Connection) {
	if _, loaded := m.calls.LoadOrStore(c.Token(), c); !loaded {
		m.count.Add(1)
	}
}

func (m *callsMap) Delete(token string) (*Connection, bool) {
	if v, is := m.calls.LoadAndDelete(token); is {
		m.count.Add(-1)
		return v.(*Connection), true
	}
	return nil, false
}

func (m *callsMap) All() []*Connection {
	out := make([]*Connection, 0, m.count.Load())
	m.calls.Range(func(_, v any) bool {
		out = append(out, v.(*Connection))
		return true
	})
	return out
}

func (m *callsMap) Len() int {
	return int(m.count.Load())
}
