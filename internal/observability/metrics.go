// Package observability holds the prometheus instruments for the turn pipeline.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records turn outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	turns             *prometheus.CounterVec
	turnFailures      *prometheus.CounterVec
	turnLatency       prometheus.Histogram
	generationLatency *prometheus.HistogramVec
	persistFailures   *prometheus.CounterVec
	escalations       *prometheus.CounterVec
	activeSessions    prometheus.Gauge
	gatherer          prometheus.Gatherer
}

// NewMetrics registers the instruments on reg. A nil reg uses a fresh
// registry, which keeps tests isolated.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sahayak_turns_total",
			Help: "Completed turns by risk level and whether generation degraded",
		}, []string{"risk", "degraded"}),
		turnFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sahayak_turn_failures_total",
			Help: "Turns that ended with an error, by stage",
		}, []string{"stage"}),
		turnLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sahayak_turn_duration_seconds",
			Help:    "End-to-end turn latency",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		generationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sahayak_generation_duration_seconds",
			Help:    "Generation gateway latency by outcome",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"outcome"}),
		persistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sahayak_persist_failures_total",
			Help: "Record writes that failed, by stage",
		}, []string{"stage"}),
		escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sahayak_escalations_total",
			Help: "Replies wrapped with safety resources, by level",
		}, []string{"level"}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sahayak_active_sessions",
			Help: "Users with an open session handle in this process",
		}),
		gatherer: reg,
	}
}

// TurnCompleted counts a turn that reached the persisted state.
func (m *Metrics) TurnCompleted(risk string, degraded bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "false"
	if degraded {
		label = "true"
	}
	m.turns.WithLabelValues(risk, label).Inc()
	m.turnLatency.Observe(elapsed.Seconds())
}

// TurnFailed counts a turn that stopped at stage.
func (m *Metrics) TurnFailed(stage string) {
	if m == nil {
		return
	}
	m.turnFailures.WithLabelValues(stage).Inc()
}

// ObserveGeneration records one gateway call.
func (m *Metrics) ObserveGeneration(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.generationLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// PersistFailed counts a failed record write.
func (m *Metrics) PersistFailed(stage string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(stage).Inc()
}

// Escalated counts a reply wrapped for level.
func (m *Metrics) Escalated(level string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(level).Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
