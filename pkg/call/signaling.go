package call

import (
	"context"
	"log/slog"
	"time"

	"github.com/arzzra/h323phone/pkg/gatekeeper"
	"github.com/arzzra/h323phone/pkg/h225"
)

// initiateOutgoing выполняет допуск, устанавливает транспорт сигнализации
// и отправляет SETUP.
func (c *Connection) initiateOutgoing(ctx context.Context, alias, addr string) error {
	c.mu.Lock()
	defer c.unlock()
	if !c.outgoing || c.state != StateAwaitingAdmission || c.releasing.Load() {
		return c.withToken(newError(ErrorCategoryState, CodeInvalidState, "вызов уже начат", nil))
	}

	c.destination = addr
	c.remoteParty = alias
	if c.remoteParty == "" {
		c.remoteParty = addr
	}

	if c.gk != nil {
		actx, cancel := c.admissionContext(ctx)
		resp, err := c.gk.Admit(actx, gatekeeper.AdmissionRequest{
			CallIdentifier: c.callID,
			ConferenceID:   c.conferenceID,
			SourceAlias:    c.cfg.LocalAlias,
			Destination:    c.remoteParty,
		})
		cancel()
		if err != nil {
			c.Release(endReasonFromAdmission(err))
			return c.withToken(newError(ErrorCategoryAdmission, CodeAdmission, "допуск вызова", err))
		}
		c.admitted = true
		if resp.Address != "" {
			addr = resp.Address
		}
	}

	if addr == "" {
		c.Release(EndedByIllegalAddress)
		return c.withToken(newError(ErrorCategoryState, CodeBadDestination, "не задан адрес назначения", nil))
	}

	c.state = StateAwaitingTransport
	t, err := c.network.Dial(ctx, addr)
	if err != nil {
		c.Release(EndedByConnectFail)
		return c.withToken(newError(ErrorCategoryTransport, CodeDialFailed, addr, err))
	}
	if c.releasing.Load() {
		t.Close()
		return c.withToken(newError(ErrorCategoryState, CodeInvalidState, "вызов завершен во время соединения", nil))
	}
	c.signal = t
	c.logger.Info("исходящий вызов", slog.String("remote", addr), slog.String("alias", alias))

	setup := h225.Setup(c.callRef, c.callID, c.conferenceID)
	setup.SourceAliases = []string{c.cfg.LocalAlias}
	setup.Calling = c.cfg.LocalAlias
	setup.Display = c.cfg.DisplayName
	setup.SourceSignal = t.LocalAddr()
	setup.DestinationSignal = addr
	if alias != "" {
		setup.DestinationAliases = []string{alias}
		setup.Called = alias
	}
	if c.cfg.FastStart {
		setup.FastStart = c.proposeFastStart()
	}

	c.state = StateAwaitingSignalConnect
	c.withTunnel(func() {
		if c.tunneling && c.cfg.H245InSetup {
			c.h245InSetupPending = true
			c.startControlProcedures()
		}
		c.writeSignal(setup)
	})
	c.attachSignal(t)
	return nil
}

func (c *Connection) withToken(e *Error) *Error {
	e.CallToken = c.token
	return e
}

// checkH245InSetup удаленная сторона, не ответившая на процедуры из
// SETUP, их не поддерживает: процедуры начнутся заново после Connect.
func (c *Connection) checkH245InSetup(msg *h225.Message) {
	if msg.HasTunnelledControl() {
		c.h245InSetupPending = false
		return
	}
	if msg.Type == h225.TypeCallProceeding {
		return
	}
	c.h245InSetupPending = false
	c.logger.Debug("H.245 в SETUP не поддержан удаленной стороной")
	c.msd.Stop()
	c.tcs.Stop()
	c.controlStarted = false
}

func (c *Connection) onSetup(msg *h225.Message) bool {
	if c.outgoing || c.state != StateAwaitingTransport {
		c.logger.Warn("неожиданный SETUP", slog.String("state", c.state.String()))
		return false
	}
	c.callRef = msg.CallReference
	c.callID = msg.CallIdentifier
	c.conferenceID = msg.ConferenceID
	c.remoteVendor = msg.Vendor
	switch {
	case len(msg.SourceAliases) > 0:
		c.remoteParty = msg.SourceAliases[0]
	case msg.Calling != "":
		c.remoteParty = msg.Calling
	default:
		c.remoteParty = c.signal.RemoteAddr()
	}
	c.quirks = c.cfg.quirksFor(msg.Vendor)
	if c.quirks.ForceTunnelingOff && c.tunneling {
		c.tunneling = false
		c.msd.Stop()
		c.tcs.Stop()
		c.controlStarted = false
	}
	c.logger.Info("входящий вызов",
		slog.String("caller", c.remoteParty),
		slog.String("vendor", c.remoteVendor),
		slog.Bool("tunneling", c.tunneling),
		slog.Int("fast_start", len(msg.FastStart)))

	if !c.handler.OnIncomingCall(c, msg) {
		c.Release(EndedByNoAccept)
		return true
	}

	c.writeSignal(h225.New(h225.TypeCallProceeding, c.callRef, true))
	c.fire(eventProceed)

	if c.gk != nil {
		ctx, cancel := c.admissionContext(c.ctx)
		_, err := c.gk.Admit(ctx, gatekeeper.AdmissionRequest{
			CallIdentifier: c.callID,
			ConferenceID:   c.conferenceID,
			Answering:      true,
			SourceAlias:    c.remoteParty,
			Destination:    c.cfg.LocalAlias,
		})
		cancel()
		if err != nil {
			c.logger.Warn("допуск отклонен", slog.Any("error", err))
			c.Release(endReasonFromAdmission(err))
			return true
		}
		c.admitted = true
	}

	if c.cfg.FastStart && len(msg.FastStart) > 0 {
		c.receiveFastStart(msg.FastStart)
	}
	if msg.H245Address != "" && !c.tunneling {
		c.dialControl(msg.H245Address)
	}

	c.state = StateAwaitingLocalAnswer
	c.applyAnswer(c.handler.OnAnswerCall(c, c.remoteParty))
	return true
}

func (c *Connection) applyAnswer(resp AnswerResponse) {
	switch resp {
	case AnswerNow:
		c.answerNow()
	case AnswerDenied:
		c.Release(EndedByAnswerDenied)
	case AnswerPending:
		c.sendAlerting()
	case AnswerDeferred:
	}
}

// Answer передает решение приложения по вызову, ожидающему ответа.
func (c *Connection) Answer(resp AnswerResponse) error {
	c.mu.Lock()
	defer c.unlock()
	if c.outgoing || c.state != StateAwaitingLocalAnswer {
		return c.withToken(newError(ErrorCategoryState, CodeInvalidState, "вызов не ожидает ответа", nil))
	}
	c.withTunnel(func() {
		c.applyAnswer(resp)
		c.checkEstablishment()
	})
	return nil
}

func (c *Connection) sendAlerting() {
	if c.Phase() == PhaseAlerting {
		return
	}
	alerting := h225.New(h225.TypeAlerting, c.callRef, true)
	if !c.quirks.NoFastStartAckOnAlerting {
		alerting.FastStart = c.commitFastStart()
	}
	c.writeSignal(alerting)
	c.fire(eventAlert)
}

// answerNow отправляет CONNECT.
func (c *Connection) answerNow() {
	c.state = StateHasExecutedSignalConnect
	c.connectedAt = time.Now()

	connect := h225.New(h225.TypeConnect, c.callRef, true)
	proposed := c.fastStart == fastStartProposed
	connect.FastStart = c.commitFastStart()
	if proposed && c.fastStart != fastStartAcknowledged {
		connect.FastConnectRefused = true
	}
	if !c.tunneling && c.control == nil {
		connect.H245Address = c.listenControl()
	}
	if c.tunneling {
		c.startControlProcedures()
	}
	c.logger.Info("вызов принят", slog.Bool("fast_start", c.fastStart == fastStartAcknowledged))
	c.writeSignal(connect)
	c.fire(eventConnect)
}

func (c *Connection) onSetupAck(*h225.Message) bool {
	return true
}

func (c *Connection) onCallProceeding(msg *h225.Message) bool {
	if !c.outgoing {
		return false
	}
	c.handleFastStartResponse(msg)
	c.fire(eventProceed)
	return true
}

func (c *Connection) onAlerting(msg *h225.Message) bool {
	if !c.outgoing || c.state != StateAwaitingSignalConnect {
		return false
	}
	c.handleFastStartResponse(msg)
	c.fire(eventAlert)
	c.handler.OnAlerting(c)
	return true
}

func (c *Connection) onProgress(msg *h225.Message) bool {
	if c.outgoing {
		c.handleFastStartResponse(msg)
	}
	return true
}

func (c *Connection) onConnect(msg *h225.Message) bool {
	if !c.outgoing || c.state != StateAwaitingSignalConnect {
		c.logger.Warn("неожиданный CONNECT", slog.String("state", c.state.String()))
		return false
	}
	c.state = StateHasExecutedSignalConnect
	c.connectedAt = time.Now()
	c.handleFastStartResponse(msg)
	c.logger.Info("вызов принят удаленной стороной",
		slog.Bool("fast_start", c.fastStart == fastStartAcknowledged),
		slog.Bool("tunneling", c.tunneling))
	c.fire(eventConnect)

	switch {
	case c.tunneling:
		c.startControlProcedures()
	case msg.H245Address != "":
		c.dialControl(msg.H245Address)
	case c.fastStart != fastStartAcknowledged && c.control == nil:
		if addr := c.listenControl(); addr != "" {
			fac := h225.Facility(c.callRef, false, h225.FacilityStartH245)
			fac.H245Address = addr
			c.writeSignal(fac)
		}
	}
	return true
}

// handleFastStartResponse обрабатывает ответ на предложения быстрого
// старта. CONNECT без ответа означает отказ.
func (c *Connection) handleFastStartResponse(msg *h225.Message) {
	if c.fastStart != fastStartProposed {
		return
	}
	switch {
	case len(msg.FastStart) > 0:
		c.acceptFastStart(msg.FastStart)
	case msg.FastConnectRefused || msg.Type == h225.TypeConnect:
		c.logger.Info("быстрый старт отклонен")
		c.metrics.fastStart.WithLabelValues("refused").Inc()
		c.discardFastStart()
	}
}

func (c *Connection) onFacility(msg *h225.Message) bool {
	switch msg.FacilityReason {
	case h225.FacilityStartH245:
		if msg.H245Address != "" {
			c.dialControl(msg.H245Address)
		}
	case h225.FacilityCallForwarded, h225.FacilityRouteToGK:
		c.forwardedTo = msg.AlternativeAddress
		if msg.AlternativeAlias != "" {
			c.forwardedTo = msg.AlternativeAlias + "@" + msg.AlternativeAddress
		}
		c.logger.Info("вызов переадресован", slog.String("to", c.forwardedTo))
		c.fire(eventForward)
		c.Release(EndedByCallForwarded)
	}
	return true
}

func (c *Connection) onReleaseComplete(msg *h225.Message) bool {
	c.remoteReleaseComplete = true
	c.q931Cause = msg.Cause

	var reason EndReason
	switch c.state {
	case StateEstablished:
		reason = EndedByRemoteUser
	case StateAwaitingLocalAnswer:
		reason = EndedByCallerAbort
	default:
		reason = endReasonFromCause(msg.Cause)
	}
	c.logger.Info("получен RELEASE COMPLETE",
		slog.Int("cause", int(msg.Cause)),
		slog.String("reason", reason.String()))
	c.Release(reason)
	return true
}

func (c *Connection) onStatusEnquiry(*h225.Message) bool {
	status := h225.New(h225.TypeStatus, c.callRef, !c.outgoing)
	status.Cause = h225.CauseStatusEnquiryResponse
	status.State = c.q931State()
	c.writeSignal(status)
	return true
}

// q931State состояние вызова Q.931 для ответа на StatusEnquiry.
func (c *Connection) q931State() h225.CallState {
	switch c.state {
	case StateAwaitingSignalConnect:
		switch c.Phase() {
		case PhaseAlerting:
			return h225.CallStateCallDelivered
		case PhaseProceeding:
			return h225.CallStateOutgoingProceed
		}
		return h225.CallStateCallInitiated
	case StateAwaitingLocalAnswer:
		if c.Phase() == PhaseAlerting {
			return h225.CallStateCallReceived
		}
		return h225.CallStateIncomingProceed
	case StateHasExecutedSignalConnect, StateEstablished:
		return h225.CallStateActive
	case StateShuttingDown:
		return h225.CallStateReleaseRequest
	}
	if c.outgoing {
		return h225.CallStateNull
	}
	return h225.CallStateCallPresent
}

func (c *Connection) onInformation(msg *h225.Message) bool {
	if msg.Keypad != "" {
		c.handler.OnUserInput(c, msg.Keypad)
	}
	return true
}

func (c *Connection) onNotify(*h225.Message) bool {
	return true
}

func (c *Connection) onStatus(msg *h225.Message) bool {
	c.logger.Debug("получен STATUS",
		slog.Int("cause", int(msg.Cause)),
		slog.Int("state", int(msg.State)))
	return true
}

func (c *Connection) onUnknown(msg *h225.Message) bool {
	c.logger.Warn("неизвестное сообщение сигнализации", slog.String("type", msg.Type.String()))
	return false
}

// ForwardCall переадресует входящий вызов, ожидающий ответа.
func (c *Connection) ForwardCall(address string) error {
	c.mu.Lock()
	defer c.unlock()
	if c.outgoing || c.state != StateAwaitingLocalAnswer {
		return c.withToken(newError(ErrorCategoryState, CodeInvalidState, "переадресация невозможна", nil))
	}
	alias, addr, err := parseDestination(address)
	if err != nil {
		return c.withToken(newError(ErrorCategoryState, CodeBadDestination, address, err))
	}
	fac := h225.Facility(c.callRef, true, h225.FacilityCallForwarded)
	fac.AlternativeAddress = addr
	fac.AlternativeAlias = alias
	c.writeSignal(fac)
	c.forwardedTo = address
	c.fire(eventForward)
	c.Release(EndedByCallForwarded)
	return nil
}
