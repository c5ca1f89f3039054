package negotiator

import (
	"log/slog"
	"time"

	"github.com/arzzra/h323phone/pkg/h245"
)

// RequestModeEvents уведомления процедуры смены режима.
type RequestModeEvents interface {
	// OnRequestModeChange решает, принять ли запрошенный режим. Возвращает
	// индекс выбранного описания режима.
	OnRequestModeChange(req *h245.RequestMode) (int, bool)
	// OnModeChangeResult результат собственного запроса.
	OnModeChangeResult(accepted bool)
}

// RequestModeConfig настройки процедуры смены режима.
type RequestModeConfig struct {
	// Timeout таймер T109
	Timeout time.Duration
	Logger  *slog.Logger
}

// RequestMode процедура смены режима передачи удаленной стороны.
type RequestMode struct {
	conn   Conn
	events RequestModeEvents
	logger *slog.Logger

	awaiting bool
	sequence uint8
	timer    timer
}

// NewRequestMode создает процедуру смены режима.
func NewRequestMode(conn Conn, events RequestModeEvents, cfg RequestModeConfig) *RequestMode {
	return &RequestMode{
		conn:   conn,
		events: events,
		logger: componentLogger(cfg.Logger, "h245.rm"),
		timer:  timer{timeout: cfg.Timeout},
	}
}

// Start запрашивает у удаленной стороны один из режимов. Одновременно
// может ожидаться только один запрос.
func (r *RequestMode) Start(modes []h245.ModeDescription) bool {
	if r.awaiting || len(modes) == 0 {
		return false
	}
	r.sequence++
	r.awaiting = true
	r.timer.start()
	return r.conn.WriteControl(&h245.RequestMode{SequenceNumber: r.sequence, Modes: modes})
}

// HandleRequest обрабатывает RequestMode удаленной стороны.
func (r *RequestMode) HandleRequest(req *h245.RequestMode) bool {
	if idx, ok := r.events.OnRequestModeChange(req); ok {
		r.logger.Debug("режим принят", slog.Int("mode", idx))
		return r.conn.WriteControl(&h245.RequestModeAck{SequenceNumber: req.SequenceNumber})
	}
	return r.conn.WriteControl(&h245.RequestModeReject{
		SequenceNumber: req.SequenceNumber,
		Cause:          h245.RequestModeUnavailable,
	})
}

// HandleAck обрабатывает RequestModeAck.
func (r *RequestMode) HandleAck(ack *h245.RequestModeAck) bool {
	if r.finish(ack.SequenceNumber) {
		r.events.OnModeChangeResult(true)
	}
	return true
}

// HandleReject обрабатывает RequestModeReject.
func (r *RequestMode) HandleReject(rej *h245.RequestModeReject) bool {
	if r.finish(rej.SequenceNumber) {
		r.logger.Info("смена режима отклонена", slog.String("cause", string(rej.Cause)))
		r.events.OnModeChangeResult(false)
	}
	return true
}

// HandleRelease обрабатывает RequestModeRelease: удаленная сторона
// перестала ждать нашего ответа, состояние не меняется.
func (r *RequestMode) HandleRelease(*h245.RequestModeRelease) bool {
	return true
}

func (r *RequestMode) finish(seq uint8) bool {
	if !r.awaiting || seq != r.sequence {
		r.logger.Debug("ответ на смену режима не ожидается", slog.Int("sequence", int(seq)))
		return false
	}
	r.awaiting = false
	r.timer.stop()
	return true
}

// CheckTimeout проверяет таймер T109.
func (r *RequestMode) CheckTimeout(now time.Time) {
	if r.awaiting && r.timer.expired(now) {
		r.awaiting = false
		r.timer.stop()
		r.conn.WriteControl(&h245.RequestModeRelease{})
		r.conn.OnControlProtocolError(ProcRequestMode, "таймаут")
		r.events.OnModeChangeResult(false)
	}
}

// IsAwaitingResponse ожидается ответ на собственный запрос.
func (r *RequestMode) IsAwaitingResponse() bool { return r.awaiting }

// Stop прекращает ожидание без уведомлений.
func (r *RequestMode) Stop() {
	r.awaiting = false
	r.timer.stop()
}
