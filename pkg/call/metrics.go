package call

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics метрики вызовов конечной точки.
//
// Коллекторы создаются через promauto.With: при nil регистраторе они
// работают, но нигде не экспортируются.
type Metrics struct {
	callsTotal          *prometheus.CounterVec
	callsActive         prometheus.Gauge
	callsEstablished    prometheus.Counter
	callEnd             *prometheus.CounterVec
	callDuration        prometheus.Histogram
	fastStart           *prometheus.CounterVec
	tunnelingFallback   prometheus.Counter
	negotiationFailures *prometheus.CounterVec
	roundTripDelay      prometheus.Histogram
	signalMessages      *prometheus.CounterVec
	controlMessages     *prometheus.CounterVec
}

// NewMetrics создает и регистрирует метрики в reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	const ns, sub = "h323", "call"
	return &Metrics{
		callsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "calls_total",
			Help: "Количество вызовов по направлению",
		}, []string{"direction"}),
		callsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "calls_active",
			Help: "Текущее количество вызовов",
		}),
		callsEstablished: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "calls_established_total",
			Help: "Количество установленных вызовов",
		}),
		callEnd: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "call_end_total",
			Help: "Завершения вызовов по причине",
		}, []string{"reason"}),
		callDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, Name: "call_duration_seconds",
			Help:    "Длительность вызовов",
			Buckets: []float64{1, 5, 15, 30, 60, 180, 600, 1800, 3600},
		}),
		fastStart: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "fast_start_total",
			Help: "Результаты быстрого старта",
		}, []string{"result"}),
		tunnelingFallback: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "tunneling_fallback_total",
			Help: "Отказы от туннелирования H.245",
		}),
		negotiationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "negotiation_failures_total",
			Help: "Неуспешные процедуры H.245",
		}, []string{"procedure"}),
		roundTripDelay: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, Name: "round_trip_delay_seconds",
			Help:    "Задержка на канале управления",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		signalMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "signal_messages_total",
			Help: "Сообщения сигнализации",
		}, []string{"type", "direction"}),
		controlMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "control_messages_total",
			Help: "Сообщения управления",
		}, []string{"type", "direction"}),
	}
}

func (m *Metrics) callStarted(direction string) {
	m.callsTotal.WithLabelValues(direction).Inc()
	m.callsActive.Inc()
}

func (m *Metrics) callEnded(reason EndReason, duration time.Duration) {
	m.callsActive.Dec()
	m.callEnd.WithLabelValues(reason.String()).Inc()
	m.callDuration.Observe(duration.Seconds())
}
