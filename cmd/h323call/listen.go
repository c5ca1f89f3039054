package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/arzzra/h323phone/pkg/transport"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Принимать входящие вызовы",
	RunE:  runListen,
}

func init() {
	listenCmd.Flags().String("addr", defaultAppConfig().Listen, "адрес сигнализации H.225.0")
	listenCmd.Flags().Duration("answer-delay", 0, "задержка ответа с оповещением вызывающего")
	listenCmd.Flags().Bool("reject", false, "отклонять все входящие вызовы")
	bindFlag(listenCmd, "listen", "addr")
}

func runListen(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	handler := newConsoleHandler(logger)
	handler.answerDelay, _ = cmd.Flags().GetDuration("answer-delay")
	handler.reject, _ = cmd.Flags().GetBool("reject")

	reg := newMetricsRegistry(cfg)
	ep, err := newEndpoint(cfg, handler, registerer(reg), logger)
	if err != nil {
		return err
	}
	tcfg, err := transportConfig(cfg)
	if err != nil {
		return err
	}
	l, err := transport.ListenTCP(viper.GetString("listen"), tcfg)
	if err != nil {
		return err
	}
	logger.Info("ожидание вызовов", slog.String("addr", l.Addr()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ep.Serve(gctx, l) })
	if reg != nil {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, reg, logger) })
	}
	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := ep.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}
