package main

import (
	"log/slog"
	"time"

	"github.com/arzzra/h323phone/pkg/call"
	"github.com/arzzra/h323phone/pkg/h225"
	"github.com/arzzra/h323phone/pkg/negotiator"
)

// consoleHandler пишет события вызовов в журнал и отвечает на входящие
// вызовы после задержки answerDelay.
type consoleHandler struct {
	call.BaseHandler
	logger      *slog.Logger
	answerDelay time.Duration
	reject      bool

	established chan *call.Connection
	released    chan call.EndReason
}

func newConsoleHandler(logger *slog.Logger) *consoleHandler {
	return &consoleHandler{
		logger:      logger,
		established: make(chan *call.Connection, 1),
		released:    make(chan call.EndReason, 1),
	}
}

func (h *consoleHandler) callLogger(c *call.Connection) *slog.Logger {
	return h.logger.With(slog.String("call_token", c.Token()))
}

func (h *consoleHandler) OnIncomingCall(c *call.Connection, setup *h225.Message) bool {
	h.callLogger(c).Info("входящий вызов",
		slog.Any("from", setup.SourceAliases),
		slog.Any("to", setup.DestinationAliases))
	return !h.reject
}

func (h *consoleHandler) OnAnswerCall(c *call.Connection, caller string) call.AnswerResponse {
	if h.answerDelay <= 0 {
		return call.AnswerNow
	}
	go func() {
		select {
		case <-time.After(h.answerDelay):
			if err := c.Answer(call.AnswerNow); err != nil {
				h.callLogger(c).Warn("ответ не отправлен", slog.Any("error", err))
			}
		case <-c.Done():
		}
	}()
	return call.AnswerPending
}

func (h *consoleHandler) OnAlerting(c *call.Connection) {
	h.callLogger(c).Info("вызываемая сторона оповещена")
}

func (h *consoleHandler) OnEstablished(c *call.Connection) {
	h.callLogger(c).Info("вызов установлен",
		slog.Bool("master", c.IsMaster()),
		slog.Bool("tunneling", c.IsTunneling()))
	select {
	case h.established <- c:
	default:
	}
}

func (h *consoleHandler) OnClosedChannel(c *call.Connection, ch *negotiator.LogicalChannel) {
	h.callLogger(c).Info("канал закрыт",
		slog.Int("channel", int(ch.Number)),
		slog.Int("session_id", int(ch.SessionID)))
}

func (h *consoleHandler) OnUserInput(c *call.Connection, input string) {
	h.callLogger(c).Info("пользовательский ввод", slog.String("input", input))
}

func (h *consoleHandler) OnHold(c *call.Connection, fromRemote, onHold bool) {
	h.callLogger(c).Info("удержание", slog.Bool("remote", fromRemote), slog.Bool("on_hold", onHold))
}

func (h *consoleHandler) OnRoleChange(c *call.Connection, master bool) {
	h.callLogger(c).Debug("роль определена", slog.Bool("master", master))
}

func (h *consoleHandler) OnReleased(c *call.Connection, reason call.EndReason) {
	h.callLogger(c).Info("вызов завершен", slog.String("reason", reason.String()))
	select {
	case h.released <- reason:
	default:
	}
}
