package negotiator

import (
	"log/slog"
	"time"

	"github.com/arzzra/h323phone/pkg/h245"
)

// RoundTripEvents уведомления измерения задержки.
type RoundTripEvents interface {
	OnRoundTripDelay(rtt time.Duration)
	OnRoundTripTimeout()
}

// RoundTripConfig настройки измерения задержки.
type RoundTripConfig struct {
	// Timeout таймер T105
	Timeout time.Duration
	Logger  *slog.Logger
}

// RoundTripDelay процедура измерения задержки на канале управления.
type RoundTripDelay struct {
	conn   Conn
	events RoundTripEvents
	logger *slog.Logger

	awaiting bool
	sequence uint8
	sentAt   time.Time
	last     time.Duration
	timer    timer
}

// NewRoundTripDelay создает процедуру измерения задержки.
func NewRoundTripDelay(conn Conn, events RoundTripEvents, cfg RoundTripConfig) *RoundTripDelay {
	return &RoundTripDelay{
		conn:   conn,
		events: events,
		logger: componentLogger(cfg.Logger, "h245.rtd"),
		timer:  timer{timeout: cfg.Timeout},
	}
}

// Start отправляет запрос. Пока ответ не получен, новый запрос не
// отправляется.
func (r *RoundTripDelay) Start() bool {
	if r.awaiting {
		return false
	}
	r.sequence++
	r.awaiting = true
	r.sentAt = time.Now()
	r.timer.start()
	return r.conn.WriteControl(&h245.RoundTripDelayRequest{SequenceNumber: r.sequence})
}

// HandleRequest отвечает на запрос удаленной стороны.
func (r *RoundTripDelay) HandleRequest(req *h245.RoundTripDelayRequest) bool {
	return r.conn.WriteControl(&h245.RoundTripDelayResponse{SequenceNumber: req.SequenceNumber})
}

// HandleResponse обрабатывает ответ на собственный запрос.
func (r *RoundTripDelay) HandleResponse(resp *h245.RoundTripDelayResponse) bool {
	if !r.awaiting || resp.SequenceNumber != r.sequence {
		r.logger.Debug("неожиданный ответ на измерение задержки", slog.Int("sequence", int(resp.SequenceNumber)))
		return true
	}
	r.awaiting = false
	r.timer.stop()
	r.last = time.Since(r.sentAt)
	r.events.OnRoundTripDelay(r.last)
	return true
}

// CheckTimeout проверяет таймер T105.
func (r *RoundTripDelay) CheckTimeout(now time.Time) {
	if r.awaiting && r.timer.expired(now) {
		r.awaiting = false
		r.timer.stop()
		r.logger.Warn("нет ответа на измерение задержки")
		r.events.OnRoundTripTimeout()
	}
}

// IsAwaitingResponse запрос отправлен и ответ еще не получен.
func (r *RoundTripDelay) IsAwaitingResponse() bool { return r.awaiting }

// LastDelay последнее измеренное значение.
func (r *RoundTripDelay) LastDelay() time.Duration { return r.last }

// Stop прекращает ожидание ответа.
func (r *RoundTripDelay) Stop() {
	r.awaiting = false
	r.timer.stop()
}
