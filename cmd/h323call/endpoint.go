package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arzzra/h323phone/pkg/call"
	"github.com/arzzra/h323phone/pkg/gatekeeper"
	"github.com/arzzra/h323phone/pkg/media"
	"github.com/arzzra/h323phone/pkg/mediafmt"
	"github.com/arzzra/h323phone/pkg/transport"
)

// applyCapsSDP заменяет список форматов кодеками из SDP файла.
// Формат пользовательского ввода сохраняется, если он был в списке.
func applyCapsSDP(cfg *appConfig) error {
	if cfg.CapsSDP == "" {
		return nil
	}
	raw, err := os.ReadFile(cfg.CapsSDP)
	if err != nil {
		return fmt.Errorf("чтение %s: %w", cfg.CapsSDP, err)
	}
	formats, err := mediafmt.FormatsFromSDP(mediafmt.DefaultRegistry(), raw)
	if err != nil {
		return err
	}
	if len(formats) == 0 {
		return fmt.Errorf("%s: нет известных кодеков", cfg.CapsSDP)
	}

	names := make([]string, 0, len(formats)+1)
	for _, f := range formats {
		names = append(names, f.Name)
	}
	for _, name := range cfg.Call.Formats {
		if f, ok := mediafmt.DefaultRegistry().Find(name); ok && f.MediaType == mediafmt.MediaTypeUserInput && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	cfg.Call.Formats = names
	return nil
}

// transportConfig настройки TCP с TLS, если заданы сертификаты
func transportConfig(cfg *appConfig) (transport.Config, error) {
	tcfg := transport.DefaultConfig()
	if cfg.TLS.Cert == "" && cfg.TLS.Key == "" {
		return tcfg, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLS.Cert, cfg.TLS.Key)
	if err != nil {
		return tcfg, fmt.Errorf("загрузка сертификата: %w", err)
	}
	tcfg.TLS = &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: cfg.TLS.Insecure,
		MinVersion:         tls.VersionTLS12,
	}
	return tcfg, nil
}

// newEndpoint собирает конечную точку: TCP сеть, локальный регистратор и
// фабрику RTP сессий с общим распределителем портов.
func newEndpoint(cfg *appConfig, handler call.Handler, reg prometheus.Registerer, logger *slog.Logger) (*call.Endpoint, error) {
	tcfg, err := transportConfig(cfg)
	if err != nil {
		return nil, err
	}
	ports, err := media.NewPortAllocator(media.PortRange{Min: cfg.RTP.PortMin, Max: cfg.RTP.PortMax})
	if err != nil {
		return nil, err
	}
	rtpCfg := media.DefaultRTPConfig()
	rtpCfg.LocalInterface = cfg.RTP.Interface
	rtpCfg.DSCP = cfg.RTP.DSCP

	secure := cfg.RTP.Secure
	factory := func() (media.SessionFactory, error) {
		f := media.NewRTPFactory(rtpCfg, ports)
		if !secure {
			return f, nil
		}
		return &secureFactory{RTPFactory: f, logger: logger}, nil
	}

	return call.NewEndpoint(call.EndpointOptions{
		Config:     cfg.Call,
		Network:    transport.NewTCPNetwork(tcfg),
		Gatekeeper: gatekeeper.NewStatic(cfg.Gatekeeper.static()),
		Media:      factory,
		Handler:    handler,
		Registerer: reg,
		Logger:     logger,
	})
}

// secureFactory выдает сессии, которые защищаются DTLS-PSK, как только
// известны удаленный адрес и согласованный ключ.
type secureFactory struct {
	*media.RTPFactory
	logger *slog.Logger
}

func (f *secureFactory) UseSession(id uint, mediaType mediafmt.MediaType) (media.Session, error) {
	s, err := f.RTPFactory.UseSession(id, mediaType)
	if err != nil {
		return nil, err
	}
	rs, ok := s.(*media.RTPSession)
	if !ok {
		return s, nil
	}
	return &secureSession{RTPSession: rs, logger: f.logger}, nil
}

type secureSession struct {
	*media.RTPSession
	logger *slog.Logger

	opened  atomic.Bool
	keyed   atomic.Bool
	started atomic.Bool
}

func (s *secureSession) Open(remoteAddr string) error {
	if err := s.RTPSession.Open(remoteAddr); err != nil {
		return err
	}
	s.opened.Store(true)
	s.maybeSecure()
	return nil
}

func (s *secureSession) ApplyCryptoKey(suite string, key []byte, initiator bool) error {
	if err := s.RTPSession.ApplyCryptoKey(suite, key, initiator); err != nil {
		return err
	}
	s.keyed.Store(true)
	s.maybeSecure()
	return nil
}

// maybeSecure запускает рукопожатие в отдельной горутине: Open и
// ApplyCryptoKey вызываются под блокировкой соединения.
func (s *secureSession) maybeSecure() {
	if !s.opened.Load() || !s.keyed.Load() || !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		err := s.Secure(context.Background())
		switch {
		case err == nil:
			s.logger.Info("медиа защищено DTLS", slog.Int("session_id", int(s.ID())))
		case errors.Is(err, media.ErrSessionClosed):
		default:
			s.logger.Warn("рукопожатие DTLS не удалось",
				slog.Int("session_id", int(s.ID())),
				slog.Any("error", err))
		}
	}()
}

// newMetricsRegistry реестр метрик процесса, nil без адреса экспорта
func newMetricsRegistry(cfg *appConfig) *prometheus.Registry {
	if cfg.MetricsAddr == "" {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// serveMetrics отдает /metrics до отмены ctx
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("экспорт метрик", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("сервер метрик: %w", err)
	}
	return nil
}
