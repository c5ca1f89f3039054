package call

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arzzra/h323phone/pkg/gatekeeper"
	"github.com/arzzra/h323phone/pkg/h225"
	"github.com/arzzra/h323phone/pkg/h245"
)

// Release начинает завершение вызова. Возвращает false, если завершение
// уже идет. Безопасен для вызова из обработчиков Handler: сама процедура
// выполняется в отдельной горутине.
func (c *Connection) Release(reason EndReason) bool {
	if !c.releasing.CompareAndSwap(false, true) {
		return false
	}
	go c.release(reason)
	return true
}

func (c *Connection) release(reason EndReason) {
	started := time.Now()

	c.mu.Lock()
	c.endReason = reason
	c.state = StateShuttingDown
	c.fire(eventRelease)
	c.logger.Info("завершение вызова", slog.String("reason", reason.String()))

	needEndSession := c.controlStarted && !c.endSessionReceived
	sendEndSession := func() {
		if needEndSession && !c.endSessionSent {
			c.endSessionSent = true
			c.writeControl(&h245.EndSessionCommand{})
		}
	}
	if c.remoteReleaseComplete {
		if c.control != nil {
			sendEndSession()
		}
	} else {
		cause := c.q931Cause
		if cause == h225.CauseUnknown {
			cause = reason.q931Cause()
		}
		c.withTunnel(func() {
			if c.tunneling {
				sendEndSession()
			}
			c.writeSignal(h225.ReleaseComplete(c.callRef, !c.outgoing, cause, reason.releaseReason()))
		})
		if c.control != nil {
			sendEndSession()
		}
	}

	c.rtd.Stop()
	c.rm.Stop()
	c.lc.ReleaseAll()
	c.discardFastStart()
	if c.media != nil {
		if err := c.media.Close(); err != nil {
			c.logger.Debug("ошибка закрытия медиа", slog.Any("error", err))
		}
	}
	admitted := c.admitted
	disengage := gatekeeper.DisengageRequest{
		CallIdentifier: c.callID,
		ConferenceID:   c.conferenceID,
		Answering:      !c.outgoing,
		Reason:         reason.String(),
	}
	waitEndSession := needEndSession && c.endSessionSent && c.signal != nil
	c.unlock()

	var g errgroup.Group
	if admitted && c.gk != nil {
		g.Go(func() error {
			ctx, cancel := c.admissionContext(context.Background())
			defer cancel()
			return c.gk.Disengage(ctx, disengage)
		})
	}

	if waitEndSession {
		wait := c.cfg.Timeouts.EndSession - time.Since(started)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-c.endSession:
		case <-time.After(wait):
			c.logger.Debug("EndSessionCommand удаленной стороны не получен")
		}
	}
	if err := g.Wait(); err != nil {
		c.logger.Warn("ошибка освобождения у регистратора", slog.Any("error", err))
	}

	c.cancel()
	c.mu.Lock()
	if c.controlListener != nil {
		c.controlListener.Close()
	}
	if c.control != nil {
		c.control.Close()
	}
	if c.signal != nil {
		c.signal.Close()
	}
	c.unlock()
	c.readers.Wait()

	c.mu.Lock()
	c.fire(eventReleased)
	duration := time.Duration(0)
	if !c.connectedAt.IsZero() {
		duration = time.Since(c.connectedAt)
	}
	c.unlock()

	c.metrics.callEnded(reason, duration)
	c.logger.Info("вызов освобожден",
		slog.String("reason", reason.String()),
		slog.Duration("duration", duration))
	if c.released != nil {
		c.released(c)
	}
	c.handler.OnReleased(c, reason)
	close(c.done)
}
