package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arzzra/h323phone/pkg/call"
)

var callCmd = &cobra.Command{
	Use:   "call [alias@]host[:port]",
	Short: "Совершить вызов",
	Args:  cobra.ExactArgs(1),
	RunE:  runCall,
}

func init() {
	callCmd.Flags().Duration("duration", 10*time.Second, "длительность разговора, ноль до завершения удаленной стороной")
	callCmd.Flags().String("dtmf", "", "цифры, отправляемые после установления")
	callCmd.Flags().Duration("tone", 100*time.Millisecond, "длительность одного тона DTMF")
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	duration, _ := cmd.Flags().GetDuration("duration")
	digits, _ := cmd.Flags().GetString("dtmf")
	tone, _ := cmd.Flags().GetDuration("tone")

	handler := newConsoleHandler(logger)
	reg := newMetricsRegistry(cfg)
	ep, err := newEndpoint(cfg, handler, registerer(reg), logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	if reg != nil {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, reg, logger) })
	}

	var reason call.EndReason
	g.Go(func() error {
		defer stop()
		r, err := talk(gctx, ep, handler, args[0], duration, digits, tone)
		reason = r
		return err
	})
	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := ep.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	if err != nil {
		return err
	}
	logger.Info("итог вызова", slog.String("reason", reason.String()))
	return nil
}

// talk совершает вызов, отправляет цифры и завершает вызов по истечении
// duration или отмене ctx.
func talk(ctx context.Context, ep *call.Endpoint, h *consoleHandler, destination string, duration time.Duration, digits string, tone time.Duration) (call.EndReason, error) {
	c, err := ep.MakeCall(ctx, destination)
	if err != nil {
		if c == nil {
			return call.EndedByLocalUser, err
		}
		<-c.Done()
		return c.EndReason(), err
	}

	select {
	case <-h.established:
		for _, d := range digits {
			if err := c.SendUserInputTone(d, tone); err != nil {
				// до начала H.245 цифры уходят в INFORMATION
				if err := c.SendUserInput(string(d)); err != nil {
					return call.EndedByLocalUser, fmt.Errorf("тон %q: %w", d, err)
				}
			}
			select {
			case <-time.After(2 * tone):
			case <-c.Done():
				return c.EndReason(), nil
			}
		}
	case <-c.Done():
		return c.EndReason(), nil
	case <-ctx.Done():
		c.Release(call.EndedByLocalUser)
		<-c.Done()
		return c.EndReason(), nil
	}

	var limit <-chan time.Time
	if duration > 0 {
		limit = time.After(duration)
	}
	select {
	case <-limit:
		c.Release(call.EndedByLocalUser)
	case <-ctx.Done():
		c.Release(call.EndedByLocalUser)
	case <-c.Done():
	}
	<-c.Done()
	return c.EndReason(), nil
}

// registerer преобразует nil реестр в nil интерфейс
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}
