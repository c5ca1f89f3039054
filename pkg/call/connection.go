// Package call реализует управление вызовом H.323: фазы вызова,
// сигнализацию H.225.0, процедуры H.245 (туннелированные или по
// выделенному каналу), быстрый старт, удержание и завершение.
//
// Соединение защищено одной блокировкой. Ее удерживают читающие горутины
// на время обработки сообщения и проверки таймеров, а также публичные
// методы. Порядок захвата: блокировка соединения всегда внешняя.
package call

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/arzzra/h323phone/pkg/capability"
	"github.com/arzzra/h323phone/pkg/gatekeeper"
	"github.com/arzzra/h323phone/pkg/h225"
	"github.com/arzzra/h323phone/pkg/h245"
	"github.com/arzzra/h323phone/pkg/media"
	"github.com/arzzra/h323phone/pkg/mediafmt"
	"github.com/arzzra/h323phone/pkg/negotiator"
	"github.com/arzzra/h323phone/pkg/transport"
	"github.com/arzzra/h323phone/pkg/wire"
)

// connectionParams зависимости соединения, общие для конечной точки.
type connectionParams struct {
	cfg      Config
	handler  Handler
	codec    wire.Codec
	network  transport.Network
	gk       gatekeeper.Client
	media    media.SessionFactory
	metrics  *Metrics
	logger   *slog.Logger
	registry *mediafmt.Registry
	local    *capability.Set
	// released вызывается конечной точкой после освобождения вызова
	released func(*Connection)
}

// connectionView снимок полей соединения для чтения без блокировки.
// Обновляется только под блокировкой соединения: при ее освобождении и
// перед каждым обратным вызовом Handler.
type connectionView struct {
	state       atomic.Int32
	endReason   atomic.Int32
	master      atomic.Bool
	tunneling   atomic.Bool
	established atomic.Bool
	holdLocal   atomic.Bool
	holdRemote  atomic.Bool
	callID      atomic.Value
	remoteParty atomic.Value
	forwardedTo atomic.Value
}

// Connection один вызов H.323.
type Connection struct {
	mu   sync.Mutex
	view connectionView

	token    string
	outgoing bool
	cfg      Config
	quirks   Quirks
	handler  Handler
	codec    wire.Codec
	network  transport.Network
	gk       gatekeeper.Client
	media    media.SessionFactory
	metrics  *Metrics
	logger   *slog.Logger
	registry *mediafmt.Registry
	released func(*Connection)

	ctx    context.Context
	cancel context.CancelFunc

	phase *fsm.FSM
	state ConnectionState

	callRef      uint16
	callID       string
	conferenceID string
	remoteParty  string
	remoteVendor string
	destination  string

	signal          transport.Transport
	control         transport.Transport
	controlListener transport.Listener
	controlQueue    [][]byte
	readers         errgroup.Group

	// tunneling может только выключиться в течение вызова
	tunneling          bool
	controlStarted     bool
	h245InSetupPending bool
	// pending сообщение-носитель туннелируемых PDU
	pending *h225.Message

	local  *capability.Set
	remote *capability.Set

	msd *negotiator.MasterSlave
	tcs *negotiator.CapabilityExchange
	lc  *negotiator.LogicalChannels
	rm  *negotiator.RequestMode
	rtd *negotiator.RoundTripDelay

	fastStart          fastStartState
	fastStartProposals []*fastStartProposal

	// established признак готовности к установлению, не сбрасывается
	// кроме как удержанием
	established     bool
	defaultChannels bool
	holdToRemote    bool
	holdFromRemote  bool

	admitted              bool
	releasing             atomic.Bool
	remoteReleaseComplete bool
	endSessionSent        bool
	endSessionReceived    bool
	endSession            chan struct{}
	endReason             EndReason
	q931Cause             h225.Cause
	forwardedTo           string
	done                  chan struct{}

	startedAt     time.Time
	connectedAt   time.Time
	establishedAt time.Time
	lastMonitor   time.Time
	lastRoundTrip time.Time
	lastSignalTx  time.Time

	toneSignal   string
	toneDuration time.Duration
	toneEnd      time.Time
}

func newConnection(p connectionParams, outgoing bool) *Connection {
	direction := "incoming"
	if outgoing {
		direction = "outgoing"
	}
	token := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Connection{
		token:      token,
		outgoing:   outgoing,
		cfg:        p.cfg,
		quirks:     p.cfg.Quirks,
		handler:    p.handler,
		codec:      p.codec,
		network:    p.network,
		gk:         p.gk,
		media:      p.media,
		metrics:    p.metrics,
		registry:   p.registry,
		released:   p.released,
		ctx:        ctx,
		cancel:     cancel,
		local:      p.local.Clone(),
		remote:     capability.NewSet(),
		tunneling:  p.cfg.Tunneling && !p.cfg.Quirks.ForceTunnelingOff,
		endSession: make(chan struct{}),
		done:       make(chan struct{}),
		startedAt:  time.Now(),
		logger: p.logger.With(
			slog.String("call_token", token),
			slog.String("direction", direction)),
	}
	if c.handler == nil {
		c.handler = BaseHandler{}
	}
	c.handler = viewHandler{c: c, next: c.handler}
	c.state = StateAwaitingTransport
	if outgoing {
		c.state = StateAwaitingAdmission
		c.callID = uuid.NewString()
		c.conferenceID = uuid.NewString()
		c.callRef = uint16(uuid.New().ID() & 0x7FFF)
	}
	c.lastMonitor = c.startedAt
	c.local.Reorder(p.cfg.PreferredFormats)

	ctrl := &controlSide{c: c}
	t := p.cfg.Timeouts
	c.msd = negotiator.NewMasterSlave(ctrl, ctrl, negotiator.MasterSlaveConfig{
		TerminalType: p.cfg.TerminalType,
		Retries:      p.cfg.MasterSlaveRetries,
		Timeout:      t.MasterSlave,
		Logger:       c.logger,
	})
	c.tcs = negotiator.NewCapabilityExchange(ctrl, ctrl, negotiator.CapabilityExchangeConfig{
		Timeout:  t.CapabilityExchange,
		Registry: p.registry,
		Logger:   c.logger,
	})
	c.lc = negotiator.NewLogicalChannels(ctrl, ctrl, negotiator.LogicalChannelsConfig{
		Timeout: t.LogicalChannel,
		Logger:  c.logger,
	})
	c.rm = negotiator.NewRequestMode(ctrl, ctrl, negotiator.RequestModeConfig{Timeout: t.RequestMode, Logger: c.logger})
	c.rtd = negotiator.NewRoundTripDelay(ctrl, ctrl, negotiator.RoundTripConfig{Timeout: t.RoundTripDelay, Logger: c.logger})

	c.phase = newPhaseMachine(c.logger, c.onPhase)
	c.metrics.callStarted(direction)
	c.publish()
	return c
}

// publish обновляет снимок. Вызывается под блокировкой соединения.
func (c *Connection) publish() {
	v := &c.view
	v.state.Store(int32(c.state))
	v.endReason.Store(int32(c.endReason))
	v.master.Store(c.msd.IsMaster())
	v.tunneling.Store(c.tunneling)
	v.established.Store(c.established)
	v.holdLocal.Store(c.holdToRemote)
	v.holdRemote.Store(c.holdFromRemote)
	v.callID.Store(c.callID)
	v.remoteParty.Store(c.remoteParty)
	v.forwardedTo.Store(c.forwardedTo)
}

// unlock публикует снимок и освобождает блокировку соединения.
func (c *Connection) unlock() {
	c.publish()
	c.mu.Unlock()
}

func (c *Connection) onPhase(_, to Phase) {
	if to == PhaseEstablished {
		c.metrics.callsEstablished.Inc()
	}
}

// fire выполняет событие машины фаз, если оно допустимо в текущей фазе.
// Контекст вызова к этому моменту может быть уже отменен.
func (c *Connection) fire(event string) {
	if !c.phase.Can(event) {
		return
	}
	if err := c.phase.Event(context.Background(), event); err != nil {
		c.logger.Debug("событие фазы не выполнено", slog.String("event", event), slog.Any("error", err))
	}
}

// Token уникальный идентификатор вызова.
func (c *Connection) Token() string { return c.token }

// CallIdentifier идентификатор вызова H.225.
func (c *Connection) CallIdentifier() string { return c.view.callID.Load().(string) }

// IsOutgoing вызов инициирован локально.
func (c *Connection) IsOutgoing() bool { return c.outgoing }

// Phase текущая фаза вызова.
func (c *Connection) Phase() Phase {
	return Phase(c.phase.Current())
}

// State текущее внутреннее состояние.
func (c *Connection) State() ConnectionState { return ConnectionState(c.view.state.Load()) }

// EndReason причина завершения. Имеет смысл после начала завершения.
func (c *Connection) EndReason() EndReason { return EndReason(c.view.endReason.Load()) }

// RemoteParty псевдоним или адрес удаленной стороны.
func (c *Connection) RemoteParty() string { return c.view.remoteParty.Load().(string) }

// ForwardedTo адрес переадресации, сообщенный удаленной стороной.
func (c *Connection) ForwardedTo() string { return c.view.forwardedTo.Load().(string) }

// IsEstablishmentReady выполнено условие установления вызова.
func (c *Connection) IsEstablishmentReady() bool { return c.view.established.Load() }

// IsMaster локальная сторона ведущая.
func (c *Connection) IsMaster() bool { return c.view.master.Load() }

// IsTunneling H.245 передается внутри сигнализации.
func (c *Connection) IsTunneling() bool { return c.view.tunneling.Load() }

// IsOnHold вызов удерживается локально или удаленной стороной.
func (c *Connection) IsOnHold() (local, remote bool) {
	return c.view.holdLocal.Load(), c.view.holdRemote.Load()
}

// LogicalChannels снимок открытых каналов.
func (c *Connection) LogicalChannels() []negotiator.LogicalChannel {
	c.mu.Lock()
	defer c.unlock()
	all := c.lc.All()
	out := make([]negotiator.LogicalChannel, 0, len(all))
	for _, ch := range all {
		out = append(out, *ch)
	}
	return out
}

// RemoteCapabilities копия таблицы возможностей удаленной стороны.
func (c *Connection) RemoteCapabilities() *capability.Set {
	c.mu.Lock()
	defer c.unlock()
	return c.remote.Clone()
}

// Done закрывается после полного освобождения вызова.
func (c *Connection) Done() <-chan struct{} { return c.done }

// attachSignal устанавливает транспорт сигнализации и запускает чтение.
func (c *Connection) attachSignal(t transport.Transport) {
	c.signal = t
	c.readers.Go(func() error { return c.readLoop(t, false) })
}

// readLoop читает PDU транспорта до его закрытия. На таймауте чтения
// выполняется проверка таймеров.
func (c *Connection) readLoop(t transport.Transport, control bool) error {
	for {
		data, err := t.ReadPDU(c.cfg.Timeouts.Monitor)
		switch {
		case err == nil:
			c.mu.Lock()
			if control {
				c.withTunnel(func() {
					c.receiveControlPDU(data)
					c.checkEstablishment()
				})
			} else {
				c.receiveSignalPDU(data)
			}
			if time.Since(c.lastMonitor) >= c.cfg.Timeouts.Monitor {
				c.monitor(control)
			}
			c.unlock()
		case errors.Is(err, transport.ErrTimeout):
			c.mu.Lock()
			c.monitor(control)
			c.unlock()
		default:
			if !c.releasing.Load() {
				c.logger.Warn("транспорт закрыт удаленной стороной",
					slog.Bool("control", control), slog.Any("error", err))
				c.Release(EndedByTransportFail)
			}
			return nil
		}
	}
}

func (c *Connection) receiveSignalPDU(data []byte) {
	msg, err := c.codec.DecodeSignal(data)
	if err != nil {
		c.logger.Warn("не удалось разобрать сообщение сигнализации",
			slog.Any("error", newError(ErrorCategoryProtocol, CodeDecodeFailed, "сигнализация", err)))
		if c.callRef == 0 && !c.outgoing {
			c.Release(EndedByProtocolError)
		}
		return
	}
	c.handleSignal(msg)
}

func (c *Connection) receiveControlPDU(data []byte) {
	msg, err := c.codec.DecodeControl(data)
	if err != nil {
		c.logger.Warn("не удалось разобрать сообщение управления",
			slog.Any("error", newError(ErrorCategoryProtocol, CodeDecodeFailed, "управление", err)))
		return
	}
	c.handleControl(msg)
}

// ReceiveSignaling обрабатывает сообщение сигнализации так же, как
// полученное из транспорта.
func (c *Connection) ReceiveSignaling(msg *h225.Message) {
	c.mu.Lock()
	defer c.unlock()
	c.handleSignal(msg)
}

// ReceiveControl обрабатывает сообщение H.245 так же, как полученное из
// канала управления.
func (c *Connection) ReceiveControl(msg h245.Message) {
	c.mu.Lock()
	defer c.unlock()
	c.withTunnel(func() {
		c.handleControl(msg)
		c.checkEstablishment()
	})
}

// handleSignal диспетчеризует сообщение сигнализации. Туннелированные
// PDU H.245 обрабатываются до обработчика сообщения, ответы на них уходят
// вместе с ответом на сообщение или отдельным Facility.
func (c *Connection) handleSignal(msg *h225.Message) {
	c.metrics.signalMessages.WithLabelValues(msg.Type.String(), "in").Inc()
	c.logger.Debug("получено сообщение сигнализации", slog.String("message", msg.String()))

	if c.state == StateShuttingDown {
		c.handleSignalWhileReleasing(msg)
		return
	}

	if c.tunneling && msg.HasUserUser && !msg.H245Tunneling {
		c.stepDownTunneling()
	}
	if c.h245InSetupPending && msg.Type != h225.TypeSetup {
		c.checkH245InSetup(msg)
	}

	c.withTunnel(func() {
		if msg.HasTunnelledControl() {
			c.processTunnelled(msg)
		}

		var ok bool
		switch msg.Type {
		case h225.TypeSetup:
			ok = c.onSetup(msg)
		case h225.TypeSetupAck:
			ok = c.onSetupAck(msg)
		case h225.TypeCallProceeding:
			ok = c.onCallProceeding(msg)
		case h225.TypeAlerting:
			ok = c.onAlerting(msg)
		case h225.TypeProgress:
			ok = c.onProgress(msg)
		case h225.TypeConnect:
			ok = c.onConnect(msg)
		case h225.TypeFacility:
			ok = c.onFacility(msg)
		case h225.TypeReleaseComplete:
			ok = c.onReleaseComplete(msg)
		case h225.TypeNotify:
			ok = c.onNotify(msg)
		case h225.TypeStatus:
			ok = c.onStatus(msg)
		case h225.TypeStatusEnquiry:
			ok = c.onStatusEnquiry(msg)
		case h225.TypeInformation:
			ok = c.onInformation(msg)
		default:
			ok = c.onUnknown(msg)
		}
		if ok {
			c.checkEstablishment()
		}
	})
}

// handleSignalWhileReleasing во время завершения нужны только
// RELEASE COMPLETE и EndSessionCommand удаленной стороны.
func (c *Connection) handleSignalWhileReleasing(msg *h225.Message) {
	if msg.HasTunnelledControl() {
		for _, data := range msg.H245Control {
			if ctrl, err := c.codec.DecodeControl(data); err == nil && ctrl.Kind() == h245.KindEndSessionCommand {
				c.onEndSession()
			}
		}
	}
	if msg.Type == h225.TypeReleaseComplete {
		c.remoteReleaseComplete = true
	}
}
