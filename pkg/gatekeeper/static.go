package gatekeeper

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// StaticConfig настройки локальной политики допуска.
type StaticConfig struct {
	// Routes сопоставляет псевдоним назначения адресу сигнализации.
	// Пустая таблица пропускает адрес назначения без изменений.
	Routes map[string]string
	// StrictRoutes запрещает вызовы на псевдонимы вне Routes
	StrictRoutes bool
	// TotalBandwidth общий бюджет полосы, ноль без ограничения
	TotalBandwidth uint
	// Denied псевдонимы источника, которым вызовы запрещены
	Denied []string
}

// Static регистратор с локальной политикой: таблица маршрутов и бюджет полосы.
type Static struct {
	cfg    StaticConfig
	logger *slog.Logger

	mu     sync.Mutex
	used   uint
	active map[string]uint
}

// NewStatic создает локальный регистратор.
func NewStatic(cfg StaticConfig) *Static {
	return &Static{
		cfg:    cfg,
		logger: slog.Default().With(slog.String("component", "gatekeeper")),
		active: make(map[string]uint),
	}
}

func (s *Static) Admit(ctx context.Context, req AdmissionRequest) (*AdmissionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RejectError{Reason: RejectTransportError}
	}
	for _, denied := range s.cfg.Denied {
		if strings.EqualFold(denied, req.SourceAlias) {
			return nil, &RejectError{Reason: RejectSecurityDenial}
		}
	}

	resp := &AdmissionResponse{Bandwidth: req.Bandwidth}
	if !req.Answering {
		alias := req.Destination
		if at := strings.IndexByte(alias, '@'); at >= 0 {
			alias = alias[:at]
		}
		if addr, ok := s.cfg.Routes[alias]; ok {
			resp.Address = addr
		} else if s.cfg.StrictRoutes {
			return nil, &RejectError{Reason: RejectCalledPartyNotRegistered}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[req.CallIdentifier]; ok {
		return resp, nil
	}
	if s.cfg.TotalBandwidth > 0 && s.used+req.Bandwidth > s.cfg.TotalBandwidth {
		return nil, &RejectError{Reason: RejectRequestDenied}
	}
	s.used += req.Bandwidth
	s.active[req.CallIdentifier] = req.Bandwidth

	s.logger.Debug("вызов допущен",
		slog.String("call_id", req.CallIdentifier),
		slog.String("address", resp.Address),
		slog.Any("bandwidth", req.Bandwidth))
	return resp, nil
}

func (s *Static) Disengage(ctx context.Context, req DisengageRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bw, ok := s.active[req.CallIdentifier]; ok {
		s.used -= bw
		delete(s.active, req.CallIdentifier)
	}
	return nil
}

// Active число допущенных вызовов.
func (s *Static) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
