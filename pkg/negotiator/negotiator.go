// Package negotiator реализует процедуры управления H.245: определение
// ведущего, обмен возможностями, логические каналы, смену режима и
// измерение задержки. Процедуры не синхронизированы и выполняются под
// блокировкой соединения; таймеры проверяются вызовом CheckTimeout.
package negotiator

import (
	"log/slog"
	"time"

	"github.com/arzzra/h323phone/pkg/h245"
)

// State обобщенное состояние процедуры.
type State int

const (
	StateIdle State = iota
	StateAwaitingPeer
	StateAcked
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingPeer:
		return "AwaitingPeer"
	case StateAcked:
		return "Acked"
	case StateReleased:
		return "Released"
	}
	return "Unknown"
}

// Procedure имя процедуры для диагностики и метрик.
type Procedure string

const (
	ProcMasterSlave        Procedure = "masterSlave"
	ProcCapabilityExchange Procedure = "capabilityExchange"
	ProcLogicalChannel     Procedure = "logicalChannel"
	ProcRequestMode        Procedure = "requestMode"
	ProcRoundTripDelay     Procedure = "roundTripDelay"
)

// Conn сторона соединения, обращенная к процедурам.
type Conn interface {
	// WriteControl отправляет сообщение управления; false при ошибке транспорта
	WriteControl(msg h245.Message) bool
	// OnControlProtocolError сообщает о неуспехе процедуры. Вызов не
	// завершает соединение сам по себе.
	OnControlProtocolError(proc Procedure, reason string)
}

// timer срок ожидания ответа. Нулевой timeout отключает таймер.
type timer struct {
	timeout  time.Duration
	deadline time.Time
}

func (t *timer) start() {
	if t.timeout > 0 {
		t.deadline = time.Now().Add(t.timeout)
	}
}

func (t *timer) stop() {
	t.deadline = time.Time{}
}

func (t *timer) expired(now time.Time) bool {
	return !t.deadline.IsZero() && now.After(t.deadline)
}

func componentLogger(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("component", name))
}
