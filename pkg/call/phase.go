package call

import (
	"context"
	"log/slog"

	"github.com/looplab/fsm"
)

// Phase фаза вызова, видимая приложению.
type Phase string

const (
	PhaseSetUp       Phase = "SetUp"
	PhaseProceeding  Phase = "Proceeding"
	PhaseAlerting    Phase = "Alerting"
	PhaseConnected   Phase = "Connected"
	PhaseEstablished Phase = "Established"
	PhaseForwarding  Phase = "Forwarding"
	PhaseReleasing   Phase = "Releasing"
	PhaseReleased    Phase = "Released"
)

// События машины фаз
const (
	eventProceed   = "proceed"
	eventAlert     = "alert"
	eventConnect   = "connect"
	eventEstablish = "establish"
	eventForward   = "forward"
	eventRelease   = "release"
	eventReleased  = "released"
)

// ConnectionState внутреннее состояние соединения. Значения упорядочены:
// сравнение по порядку используется в проверках.
type ConnectionState int

const (
	StateAwaitingAdmission ConnectionState = iota
	StateAwaitingTransport
	StateAwaitingSignalConnect
	StateAwaitingLocalAnswer
	StateHasExecutedSignalConnect
	StateEstablished
	StateShuttingDown
)

func (s ConnectionState) String() string {
	switch s {
	case StateAwaitingAdmission:
		return "AwaitingAdmission"
	case StateAwaitingTransport:
		return "AwaitingTransport"
	case StateAwaitingSignalConnect:
		return "AwaitingSignalConnect"
	case StateAwaitingLocalAnswer:
		return "AwaitingLocalAnswer"
	case StateHasExecutedSignalConnect:
		return "HasExecutedSignalConnect"
	case StateEstablished:
		return "Established"
	case StateShuttingDown:
		return "ShuttingDown"
	}
	return "Unknown"
}

func newPhaseMachine(logger *slog.Logger, onEnter func(from, to Phase)) *fsm.FSM {
	early := []string{string(PhaseSetUp), string(PhaseProceeding), string(PhaseAlerting)}
	active := append(append([]string{}, early...),
		string(PhaseConnected), string(PhaseEstablished), string(PhaseForwarding))

	return fsm.NewFSM(
		string(PhaseSetUp),
		fsm.Events{
			{Name: eventProceed, Src: []string{string(PhaseSetUp)}, Dst: string(PhaseProceeding)},
			{Name: eventAlert, Src: []string{string(PhaseSetUp), string(PhaseProceeding)}, Dst: string(PhaseAlerting)},
			{Name: eventConnect, Src: early, Dst: string(PhaseConnected)},
			{Name: eventEstablish, Src: []string{string(PhaseConnected)}, Dst: string(PhaseEstablished)},
			{Name: eventForward, Src: early, Dst: string(PhaseForwarding)},
			{Name: eventRelease, Src: active, Dst: string(PhaseReleasing)},
			{Name: eventReleased, Src: []string{string(PhaseReleasing)}, Dst: string(PhaseReleased)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("смена фазы", slog.String("from", e.Src), slog.String("to", e.Dst))
				if onEnter != nil {
					onEnter(Phase(e.Src), Phase(e.Dst))
				}
			},
		},
	)
}
