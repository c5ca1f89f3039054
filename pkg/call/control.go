package call

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/arzzra/h323phone/pkg/h225"
	"github.com/arzzra/h323phone/pkg/h245"
	"github.com/arzzra/h323phone/pkg/negotiator"
	"github.com/arzzra/h323phone/pkg/transport"
)

// writeSignal отправляет сообщение сигнализации. При туннелировании к
// нему присоединяются накопленные PDU H.245.
func (c *Connection) writeSignal(msg *h225.Message) bool {
	if c.signal == nil {
		return false
	}
	msg.CallReference = c.callRef
	msg.FromDestination = !c.outgoing
	if msg.HasUserUser {
		msg.H245Tunneling = c.tunneling
		if c.cfg.Vendor != "" && msg.Vendor == "" {
			msg.Vendor = c.cfg.Vendor
		}
	}
	if c.tunneling && c.pending != nil && c.pending != msg && len(c.pending.H245Control) > 0 {
		msg.H245Control = append(c.pending.H245Control, msg.H245Control...)
		c.pending.H245Control = nil
	}

	var extra [][]byte
	if c.quirks.NoMultipleTunnelledH245 && len(msg.H245Control) > 1 {
		extra = msg.H245Control[1:]
		msg.H245Control = msg.H245Control[:1]
	}
	if !c.writeSignalPDU(msg) {
		return false
	}
	for _, data := range extra {
		fac := h225.Facility(c.callRef, !c.outgoing, h225.FacilityUndefined)
		fac.H245Control = [][]byte{data}
		if !c.writeSignal(fac) {
			return false
		}
	}
	return true
}

func (c *Connection) writeSignalPDU(msg *h225.Message) bool {
	data, err := c.codec.EncodeSignal(msg)
	if err != nil {
		c.logger.Error("не удалось закодировать сообщение сигнализации", slog.Any("error", err))
		return false
	}
	if err := c.signal.WritePDU(data); err != nil {
		c.logger.Warn("ошибка записи сигнализации",
			slog.Any("error", newError(ErrorCategoryTransport, CodeWriteFailed, msg.Type.String(), err)))
		c.Release(EndedByTransportFail)
		return false
	}
	c.lastSignalTx = time.Now()
	c.metrics.signalMessages.WithLabelValues(msg.Type.String(), "out").Inc()
	c.logger.Debug("отправлено сообщение сигнализации", slog.String("message", msg.String()))
	return true
}

// withTunnel собирает PDU H.245, созданные fn, в одно сообщение. Они
// уходят вместе с первым отправленным fn сообщением сигнализации, а
// остаток отправляется в Facility.
func (c *Connection) withTunnel(fn func()) {
	if c.pending != nil {
		fn()
		return
	}
	carrier := h225.Facility(c.callRef, !c.outgoing, h225.FacilityUndefined)
	c.pending = carrier
	fn()
	c.pending = nil
	if len(carrier.H245Control) == 0 {
		return
	}
	if !c.tunneling || c.signal == nil {
		c.logger.Debug("туннелированные PDU отброшены", slog.Int("count", len(carrier.H245Control)))
		return
	}
	c.writeSignal(carrier)
}

// writeControl отправляет PDU H.245 по действующему пути.
func (c *Connection) writeControl(msg h245.Message) bool {
	data, err := c.codec.EncodeControl(msg)
	if err != nil {
		c.logger.Error("не удалось закодировать сообщение управления", slog.Any("error", err))
		return false
	}
	c.metrics.controlMessages.WithLabelValues(msg.Kind().String(), "out").Inc()
	c.logger.Debug("отправка H.245", slog.String("kind", msg.Kind().String()), slog.Bool("tunnel", c.tunneling))

	if c.tunneling {
		c.controlStarted = true
		if c.pending != nil {
			c.pending.H245Control = append(c.pending.H245Control, data)
			return true
		}
		fac := h225.Facility(c.callRef, !c.outgoing, h225.FacilityUndefined)
		fac.H245Control = [][]byte{data}
		return c.writeSignal(fac)
	}
	if c.control == nil {
		c.controlQueue = append(c.controlQueue, data)
		return true
	}
	if err := c.control.WritePDU(data); err != nil {
		c.logger.Warn("ошибка записи канала управления",
			slog.Any("error", newError(ErrorCategoryTransport, CodeWriteFailed, msg.Kind().String(), err)))
		c.Release(EndedByTransportFail)
		return false
	}
	return true
}

// processTunnelled обрабатывает PDU H.245 из сообщения сигнализации в
// порядке их следования.
func (c *Connection) processTunnelled(msg *h225.Message) {
	if !c.tunneling {
		return
	}
	c.controlStarted = true
	for _, data := range msg.H245Control {
		c.receiveControlPDU(data)
		if c.state == StateShuttingDown {
			return
		}
	}
}

// stepDownTunneling окончательно отключает туннелирование: удаленная
// сторона его не поддерживает.
func (c *Connection) stepDownTunneling() {
	c.logger.Info("удаленная сторона не туннелирует H.245")
	c.tunneling = false
	c.metrics.tunnelingFallback.Inc()
	if c.controlStarted && c.control == nil {
		c.msd.Stop()
		c.tcs.Stop()
		c.controlStarted = false
	}
	c.h245InSetupPending = false
}

// startControlProcedures начинает определение ведущего и обмен
// возможностями, если они еще не начаты.
func (c *Connection) startControlProcedures() {
	if !c.tunneling && c.control == nil {
		return
	}
	c.controlStarted = true
	if c.msd.State() == negotiator.StateIdle {
		c.msd.Start()
	}
	if !c.tcs.HasSentCapabilities() && !c.tcs.IsAwaitingAck() && !c.holdToRemote {
		c.tcs.Start(false)
	}
}

// listenControl открывает слушатель выделенного канала управления и
// возвращает его адрес для объявления удаленной стороне.
func (c *Connection) listenControl() string {
	if c.controlListener != nil {
		return c.controlListener.Addr()
	}
	addr := ""
	if host, _, err := net.SplitHostPort(c.signal.LocalAddr()); err == nil {
		addr = net.JoinHostPort(host, "0")
	}
	l, err := c.network.Listen(addr)
	if err != nil {
		c.logger.Warn("не удалось открыть слушатель H.245", slog.Any("error", err))
		return ""
	}
	c.controlListener = l
	c.readers.Go(func() error {
		t, err := l.Accept(c.ctx)
		if err != nil {
			return nil
		}
		c.mu.Lock()
		defer c.unlock()
		c.attachControl(t)
		return nil
	})
	return l.Addr()
}

// dialControl соединяется с объявленным адресом канала управления.
func (c *Connection) dialControl(addr string) {
	if c.control != nil || c.tunneling || addr == "" {
		return
	}
	c.readers.Go(func() error {
		t, err := c.network.Dial(c.ctx, addr)
		if err != nil {
			c.logger.Warn("не удалось соединиться с каналом H.245",
				slog.String("addr", addr),
				slog.Any("error", newError(ErrorCategoryTransport, CodeDialFailed, addr, err)))
			return nil
		}
		c.mu.Lock()
		defer c.unlock()
		c.attachControl(t)
		return nil
	})
}

// attachControl подключает выделенный канал управления.
func (c *Connection) attachControl(t transport.Transport) {
	if c.releasing.Load() || c.control != nil {
		t.Close()
		return
	}
	c.logger.Info("канал H.245 установлен", slog.String("remote", t.RemoteAddr()))
	c.control = t
	if c.controlListener != nil {
		c.controlListener.Close()
	}
	c.readers.Go(func() error { return c.readLoop(t, true) })

	queued := c.controlQueue
	c.controlQueue = nil
	for _, data := range queued {
		if err := t.WritePDU(data); err != nil {
			c.Release(EndedByTransportFail)
			return
		}
	}
	c.startControlProcedures()
	c.checkEstablishment()
}

// handleControl диспетчеризует сообщение H.245.
func (c *Connection) handleControl(msg h245.Message) {
	c.metrics.controlMessages.WithLabelValues(msg.Kind().String(), "in").Inc()
	c.logger.Debug("получено H.245", slog.String("kind", msg.Kind().String()))
	if c.state == StateShuttingDown && msg.Kind() != h245.KindEndSessionCommand {
		return
	}

	var ok bool
	switch m := msg.(type) {
	case *h245.MasterSlaveDetermination:
		ok = c.msd.HandleIncoming(m)
	case *h245.MasterSlaveDeterminationAck:
		ok = c.msd.HandleAck(m)
	case *h245.MasterSlaveDeterminationReject:
		ok = c.msd.HandleReject(m)
	case *h245.MasterSlaveDeterminationRelease:
		ok = c.msd.HandleRelease(m)
	case *h245.TerminalCapabilitySet:
		ok = c.tcs.HandleIncoming(m)
	case *h245.TerminalCapabilitySetAck:
		ok = c.tcs.HandleAck(m)
	case *h245.TerminalCapabilitySetReject:
		ok = c.tcs.HandleReject(m)
	case *h245.TerminalCapabilitySetRelease:
		ok = c.tcs.HandleRelease(m)
	case *h245.OpenLogicalChannel:
		ok = c.lc.HandleOpen(m)
	case *h245.OpenLogicalChannelAck:
		ok = c.lc.HandleOpenAck(m)
	case *h245.OpenLogicalChannelReject:
		ok = c.lc.HandleOpenReject(m)
	case *h245.OpenLogicalChannelConfirm:
		ok = true
	case *h245.CloseLogicalChannel:
		ok = c.lc.HandleClose(m)
	case *h245.CloseLogicalChannelAck:
		ok = c.lc.HandleCloseAck(m)
	case *h245.RequestChannelClose:
		ok = c.lc.HandleRequestClose(m)
	case *h245.RequestChannelCloseAck, *h245.RequestChannelCloseReject, *h245.RequestChannelCloseRelease:
		ok = c.lc.HandleRequestCloseResponse(m)
	case *h245.RequestMode:
		ok = c.rm.HandleRequest(m)
	case *h245.RequestModeAck:
		ok = c.rm.HandleAck(m)
	case *h245.RequestModeReject:
		ok = c.rm.HandleReject(m)
	case *h245.RequestModeRelease:
		ok = c.rm.HandleRelease(m)
	case *h245.RoundTripDelayRequest:
		ok = c.rtd.HandleRequest(m)
	case *h245.RoundTripDelayResponse:
		ok = c.rtd.HandleResponse(m)
	case *h245.EndSessionCommand:
		c.onEndSession()
		ok = true
	case *h245.FlowControlCommand:
		ok = c.onFlowControl(m)
	case *h245.MiscellaneousCommand:
		c.logger.Debug("команда", slog.String("type", m.Command), slog.Int("channel", int(m.ChannelNumber)))
		ok = true
	case *h245.UserInputIndication:
		ok = c.onUserInputIndication(m)
	case *h245.FunctionNotUnderstood:
		c.logger.Warn("удаленная сторона не поняла запрос", slog.String("request", m.Request.String()))
		ok = true
	default:
		c.logger.Warn("неизвестное сообщение H.245", slog.String("kind", msg.Kind().String()))
		ok = true
	}
	if !ok && msg.Kind().IsRequest() {
		c.writeControl(&h245.FunctionNotUnderstood{Request: msg.Kind()})
	}
}

// onEndSession удаленная сторона завершает сеанс H.245.
func (c *Connection) onEndSession() {
	if c.endSessionReceived {
		return
	}
	c.endSessionReceived = true
	close(c.endSession)
	if c.releasing.Load() {
		return
	}
	c.logger.Info("получен EndSessionCommand")
	if !c.endSessionSent {
		c.endSessionSent = true
		c.writeControl(&h245.EndSessionCommand{})
	}
	c.Release(EndedByRemoteUser)
}

// controlSide сторона соединения, обращенная к процедурам H.245.
// Все методы вызываются под блокировкой соединения.
type controlSide struct {
	c *Connection
}

var (
	_ negotiator.Conn              = (*controlSide)(nil)
	_ negotiator.MasterSlaveEvents = (*controlSide)(nil)
	_ negotiator.CapabilityEvents  = (*controlSide)(nil)
	_ negotiator.ChannelEvents     = (*controlSide)(nil)
	_ negotiator.RequestModeEvents = (*controlSide)(nil)
	_ negotiator.RoundTripEvents   = (*controlSide)(nil)
)

func (s *controlSide) WriteControl(msg h245.Message) bool {
	return s.c.writeControl(msg)
}

func (s *controlSide) OnControlProtocolError(proc negotiator.Procedure, reason string) {
	s.c.metrics.negotiationFailures.WithLabelValues(string(proc)).Inc()
	s.c.logger.Warn("процедура H.245 не удалась",
		slog.String("procedure", string(proc)), slog.String("reason", reason))
}

func (s *controlSide) OnMasterSlaveDetermined(master bool) {
	s.c.handler.OnRoleChange(s.c, master)
}

// admissionContext ограничивает запрос к регистратору.
func (c *Connection) admissionContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeouts.Admission <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.cfg.Timeouts.Admission)
}
