package call

import (
	"github.com/arzzra/h323phone/pkg/h225"
	"github.com/arzzra/h323phone/pkg/negotiator"
)

// AnswerResponse решение приложения по входящему вызову.
type AnswerResponse int

const (
	// AnswerNow принять вызов
	AnswerNow AnswerResponse = iota
	// AnswerDenied отклонить вызов
	AnswerDenied
	// AnswerPending отправить Alerting и ждать Answer
	AnswerPending
	// AnswerDeferred ничего не отправлять и ждать Answer
	AnswerDeferred
)

func (r AnswerResponse) String() string {
	switch r {
	case AnswerNow:
		return "now"
	case AnswerDenied:
		return "denied"
	case AnswerPending:
		return "pending"
	case AnswerDeferred:
		return "deferred"
	}
	return "unknown"
}

// Handler обратные вызовы приложения.
//
// Все методы, кроме OnReleased, вызываются синхронно под блокировкой
// соединения и не должны блокироваться надолго. Методы чтения состояния
// (State, Phase, IsMaster, IsTunneling, IsOnHold, RemoteParty и другие,
// кроме LogicalChannels и RemoteCapabilities) и Release допустимо
// вызывать из обработчика. Команды, изменяющие вызов, выполняются из
// другой горутины.
type Handler interface {
	// OnIncomingCall false отклоняет входящий вызов
	OnIncomingCall(c *Connection, setup *h225.Message) bool
	OnAnswerCall(c *Connection, caller string) AnswerResponse
	OnAlerting(c *Connection)
	OnEstablished(c *Connection)
	OnClosedChannel(c *Connection, ch *negotiator.LogicalChannel)
	OnUserInput(c *Connection, input string)
	// OnHold fromRemote различает удержание удаленной стороной и локальное
	OnHold(c *Connection, fromRemote, onHold bool)
	OnRoleChange(c *Connection, master bool)
	// OnReleased вызывается ровно один раз после освобождения ресурсов
	OnReleased(c *Connection, reason EndReason)
}

// BaseHandler реализация Handler по умолчанию: принимает все вызовы.
type BaseHandler struct{}

func (BaseHandler) OnIncomingCall(*Connection, *h225.Message) bool          { return true }
func (BaseHandler) OnAnswerCall(*Connection, string) AnswerResponse         { return AnswerNow }
func (BaseHandler) OnAlerting(*Connection)                                  {}
func (BaseHandler) OnEstablished(*Connection)                               {}
func (BaseHandler) OnClosedChannel(*Connection, *negotiator.LogicalChannel) {}
func (BaseHandler) OnUserInput(*Connection, string)                         {}
func (BaseHandler) OnHold(*Connection, bool, bool)                          {}
func (BaseHandler) OnRoleChange(*Connection, bool)                          {}
func (BaseHandler) OnReleased(*Connection, EndReason)                       {}

// viewHandler обновляет снимок соединения перед обратным вызовом, чтобы
// методы чтения внутри обработчика видели текущее состояние.
type viewHandler struct {
	c    *Connection
	next Handler
}

func (h viewHandler) OnIncomingCall(c *Connection, setup *h225.Message) bool {
	h.c.publish()
	return h.next.OnIncomingCall(c, setup)
}

func (h viewHandler) OnAnswerCall(c *Connection, caller string) AnswerResponse {
	h.c.publish()
	return h.next.OnAnswerCall(c, caller)
}

func (h viewHandler) OnAlerting(c *Connection) {
	h.c.publish()
	h.next.OnAlerting(c)
}

func (h viewHandler) OnEstablished(c *Connection) {
	h.c.publish()
	h.next.OnEstablished(c)
}

func (h viewHandler) OnClosedChannel(c *Connection, ch *negotiator.LogicalChannel) {
	h.c.publish()
	h.next.OnClosedChannel(c, ch)
}

func (h viewHandler) OnUserInput(c *Connection, input string) {
	h.c.publish()
	h.next.OnUserInput(c, input)
}

func (h viewHandler) OnHold(c *Connection, fromRemote, onHold bool) {
	h.c.publish()
	h.next.OnHold(c, fromRemote, onHold)
}

func (h viewHandler) OnRoleChange(c *Connection, master bool) {
	h.c.publish()
	h.next.OnRoleChange(c, master)
}

// OnReleased вызывается без блокировки, снимок уже опубликован.
func (h viewHandler) OnReleased(c *Connection, reason EndReason) {
	h.next.OnReleased(c, reason)
}
