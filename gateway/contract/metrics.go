package contract

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics はコントラクト呼び出しの指標
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics は指標を reg に登録して返す
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "property_market",
				Subsystem: "contract",
				Name:      "calls_total",
				Help:      "Total number of contract calls by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "property_market",
				Subsystem: "contract",
				Name:      "call_duration_seconds",
				Help:      "Contract call duration in seconds (sends include waiting for the receipt)",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15, 30, 60, 180},
			},
			[]string{"method"},
		),
	}
}

// observe は defer で呼ぶ前提のため、エラーはポインタで受け取る
func (m *Metrics) observe(method string, start time.Time, errp *error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if errp != nil && *errp != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
