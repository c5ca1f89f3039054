package negotiator

import (
	"log/slog"
	"time"

	"github.com/arzzra/h323phone/pkg/capability"
	"github.com/arzzra/h323phone/pkg/h245"
	"github.com/arzzra/h323phone/pkg/mediafmt"
)

// CapabilityEvents сторона соединения, владеющая таблицами возможностей.
type CapabilityEvents interface {
	// LocalCapabilities таблица, отправляемая в TerminalCapabilitySet
	LocalCapabilities() *capability.Set
	// OnReceivedCapabilitySet принимает набор удаленной стороны. empty
	// означает пустой набор (удержание). false приводит к отказу.
	OnReceivedCapabilitySet(remote *capability.Set, empty bool) bool
}

// CapabilityExchangeConfig настройки обмена возможностями.
type CapabilityExchangeConfig struct {
	// Timeout таймер T101
	Timeout  time.Duration
	Registry *mediafmt.Registry
	Logger   *slog.Logger
}

type tcsOutState int

const (
	tcsIdle tcsOutState = iota
	tcsAwaitingAck
	tcsAcked
	tcsRejected
)

// CapabilityExchange процедура обмена наборами возможностей.
type CapabilityExchange struct {
	conn   Conn
	events CapabilityEvents
	cfg    CapabilityExchangeConfig
	logger *slog.Logger

	out          tcsOutState
	sequence     uint8
	sentEmpty    bool
	everSent     bool
	everReceived bool
	timer        timer
}

// NewCapabilityExchange создает процедуру обмена возможностями.
func NewCapabilityExchange(conn Conn, events CapabilityEvents, cfg CapabilityExchangeConfig) *CapabilityExchange {
	if cfg.Registry == nil {
		cfg.Registry = mediafmt.DefaultRegistry()
	}
	return &CapabilityExchange{
		conn:   conn,
		events: events,
		cfg:    cfg,
		logger: componentLogger(cfg.Logger, "h245.tcs"),
		timer:  timer{timeout: cfg.Timeout},
	}
}

// Start отправляет набор возможностей. empty отправляет пустой набор
// для постановки удаленной стороны на удержание.
func (c *CapabilityExchange) Start(empty bool) bool {
	c.sequence++
	msg := &h245.TerminalCapabilitySet{SequenceNumber: c.sequence}
	if !empty {
		msg.Capabilities, msg.Descriptors = c.events.LocalCapabilities().ToWire()
	}
	c.out = tcsAwaitingAck
	c.sentEmpty = empty
	c.timer.start()
	c.logger.Debug("отправка TerminalCapabilitySet",
		slog.Int("sequence", int(c.sequence)),
		slog.Int("entries", len(msg.Capabilities)))
	return c.conn.WriteControl(msg)
}

// HandleIncoming обрабатывает TerminalCapabilitySet удаленной стороны.
func (c *CapabilityExchange) HandleIncoming(pdu *h245.TerminalCapabilitySet) bool {
	if pdu.IsEmpty() {
		c.events.OnReceivedCapabilitySet(capability.NewSet(), true)
		return c.conn.WriteControl(&h245.TerminalCapabilitySetAck{SequenceNumber: pdu.SequenceNumber})
	}

	remote, dropped := capability.SetFromWire(c.cfg.Registry, pdu.Capabilities, pdu.Descriptors)
	if dropped > 0 {
		c.logger.Debug("неизвестные возможности отброшены", slog.Int("dropped", dropped))
	}
	if remote.Len() == 0 || !c.events.OnReceivedCapabilitySet(remote, false) {
		c.logger.Warn("набор возможностей отклонен", slog.Int("sequence", int(pdu.SequenceNumber)))
		return c.conn.WriteControl(&h245.TerminalCapabilitySetReject{
			SequenceNumber: pdu.SequenceNumber,
			Cause:          h245.TCSRejectUnspecified,
		})
	}

	c.everReceived = true
	return c.conn.WriteControl(&h245.TerminalCapabilitySetAck{SequenceNumber: pdu.SequenceNumber})
}

// HandleAck обрабатывает подтверждение отправленного набора.
func (c *CapabilityExchange) HandleAck(pdu *h245.TerminalCapabilitySetAck) bool {
	if c.out != tcsAwaitingAck || pdu.SequenceNumber != c.sequence {
		c.logger.Debug("подтверждение с чужим номером проигнорировано", slog.Int("sequence", int(pdu.SequenceNumber)))
		return true
	}
	c.out = tcsAcked
	c.timer.stop()
	if !c.sentEmpty {
		c.everSent = true
	}
	return true
}

// HandleReject обрабатывает отказ в отправленном наборе.
func (c *CapabilityExchange) HandleReject(pdu *h245.TerminalCapabilitySetReject) bool {
	if c.out != tcsAwaitingAck || pdu.SequenceNumber != c.sequence {
		return true
	}
	c.out = tcsRejected
	c.timer.stop()
	c.conn.OnControlProtocolError(ProcCapabilityExchange, string(pdu.Cause))
	return true
}

// HandleRelease удаленная сторона не дождалась нашего ответа.
func (c *CapabilityExchange) HandleRelease(*h245.TerminalCapabilitySetRelease) bool {
	c.logger.Debug("получен TerminalCapabilitySetRelease")
	return true
}

// CheckTimeout проверяет таймер T101.
func (c *CapabilityExchange) CheckTimeout(now time.Time) {
	if c.out == tcsAwaitingAck && c.timer.expired(now) {
		c.out = tcsRejected
		c.timer.stop()
		c.conn.WriteControl(&h245.TerminalCapabilitySetRelease{})
		c.conn.OnControlProtocolError(ProcCapabilityExchange, "таймаут")
	}
}

// Stop сбрасывает процедуру, в том числе признаки обмена.
func (c *CapabilityExchange) Stop() {
	c.out = tcsIdle
	c.everSent = false
	c.everReceived = false
	c.timer.stop()
}

// HasSentCapabilities удаленная сторона подтвердила непустой набор.
func (c *CapabilityExchange) HasSentCapabilities() bool { return c.everSent }

// HasReceivedCapabilities принят непустой набор удаленной стороны.
func (c *CapabilityExchange) HasReceivedCapabilities() bool { return c.everReceived }

// IsAwaitingAck отправленный набор ждет ответа.
func (c *CapabilityExchange) IsAwaitingAck() bool { return c.out == tcsAwaitingAck }

// State обобщенное состояние исходящей части процедуры.
func (c *CapabilityExchange) State() State {
	switch c.out {
	case tcsAwaitingAck:
		return StateAwaitingPeer
	case tcsAcked:
		return StateAcked
	case tcsRejected:
		return StateReleased
	}
	return StateIdle
}
