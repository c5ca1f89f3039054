package call

import (
	"log/slog"
	"time"

	"github.com/arzzra/h323phone/pkg/h225"
	"github.com/arzzra/h323phone/pkg/h245"
)

// monitor проверяет таймеры процедур и вызова. Выполняется читающей
// горутиной канала управления, а без него горутиной сигнализации.
func (c *Connection) monitor(control bool) {
	if c.state == StateShuttingDown || (!control && c.control != nil) {
		return
	}
	now := time.Now()
	c.lastMonitor = now

	c.withTunnel(func() {
		c.msd.CheckTimeout(now)
		c.tcs.CheckTimeout(now)
		c.lc.CheckTimeouts(now)
		c.rm.CheckTimeout(now)
		c.rtd.CheckTimeout(now)
		if c.releasing.Load() {
			return
		}
		if reason, ok := c.expired(now); ok {
			c.logger.Warn("истек таймер вызова", slog.String("reason", reason.String()))
			c.Release(reason)
			return
		}
		c.periodic(now)
		c.checkEstablishment()
	})
}

// expired проверяет ограничения времени вызова.
func (c *Connection) expired(now time.Time) (EndReason, bool) {
	t := c.cfg.Timeouts
	if t.NoAnswer > 0 && c.state < StateHasExecutedSignalConnect && now.Sub(c.startedAt) > t.NoAnswer {
		return EndedByNoAnswer, true
	}
	if t.MediaNegotiation > 0 && c.state == StateHasExecutedSignalConnect &&
		!c.lc.HasEstablished() && now.Sub(c.connectedAt) > t.MediaNegotiation {
		return EndedByCapabilityExchange, true
	}
	if t.MaxCallDuration > 0 && !c.connectedAt.IsZero() && now.Sub(c.connectedAt) > t.MaxCallDuration {
		return EndedByDurationLimit, true
	}
	return 0, false
}

// periodic измерение задержки, окончание тона и проверка сигнализации.
func (c *Connection) periodic(now time.Time) {
	t := c.cfg.Timeouts
	if t.RoundTripDelayRate > 0 && c.state == StateEstablished && c.controlStarted &&
		now.Sub(c.lastRoundTrip) >= t.RoundTripDelayRate {
		c.lastRoundTrip = now
		c.rtd.Start()
	}

	if c.toneSignal != "" && !now.Before(c.toneEnd) {
		c.writeControl(&h245.UserInputIndication{
			Signal:       c.toneSignal,
			Duration:     uint(c.toneDuration / time.Millisecond),
			SignalUpdate: true,
		})
		c.toneSignal = ""
	}

	if t.SignalKeepAlive > 0 && c.control == nil && c.state >= StateHasExecutedSignalConnect &&
		now.Sub(c.lastSignalTx) >= t.SignalKeepAlive {
		c.writeSignal(h225.New(h225.TypeStatusEnquiry, c.callRef, !c.outgoing))
	}
}
