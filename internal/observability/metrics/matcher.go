package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MatcherMetrics instruments the matching worker.
type MatcherMetrics struct {
	registry *prometheus.Registry

	attemptsTotal     *prometheus.CounterVec
	matchesTotal      *prometheus.CounterVec
	noMatchTotal      *prometheus.CounterVec
	suggestionsTotal  *prometheus.CounterVec
	matchDuration     *prometheus.HistogramVec
	attemptsInFlight  prometheus.Gauge
	expiredTotal      prometheus.Counter
	expireSweepErrors prometheus.Counter
}

func NewMatcherMetrics(service string) *MatcherMetrics {
	registry := prometheus.NewRegistry()

	attemptsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recon",
			Subsystem: "matcher",
			Name:      "attempts_total",
			Help:      "Total matching attempts by direction.",
		},
		[]string{"service", "direction"},
	)
	matchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recon",
			Subsystem: "matcher",
			Name:      "matches_total",
			Help:      "Total matches found by direction and match type.",
		},
		[]string{"service", "direction", "match_type"},
	)
	noMatchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recon",
			Subsystem: "matcher",
			Name:      "no_match_total",
			Help:      "Total matching attempts that produced no suggestion.",
		},
		[]string{"service", "direction"},
	)
	suggestionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recon",
			Subsystem: "matcher",
			Name:      "suggestions_recorded_total",
			Help:      "Total suggestions persisted by match type.",
		},
		[]string{"service", "match_type"},
	)
	matchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recon",
			Subsystem: "matcher",
			Name:      "attempt_duration_seconds",
			Help:      "Matching attempt duration in seconds by direction.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "direction"},
	)
	attemptsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "recon",
			Subsystem: "matcher",
			Name:      "attempts_in_flight",
			Help:      "Number of in-flight matching attempts.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	expiredTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recon",
			Subsystem: "matcher",
			Name:      "suggestions_expired_total",
			Help:      "Total pending suggestions expired by the sweeper.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	expireSweepErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recon",
			Subsystem: "matcher",
			Name:      "expire_sweep_errors_total",
			Help:      "Total failed expiry sweeps.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		attemptsTotal,
		matchesTotal,
		noMatchTotal,
		suggestionsTotal,
		matchDuration,
		attemptsInFlight,
		expiredTotal,
		expireSweepErrors,
	)

	return &MatcherMetrics{
		registry:          registry,
		attemptsTotal:     attemptsTotal,
		matchesTotal:      matchesTotal,
		noMatchTotal:      noMatchTotal,
		suggestionsTotal:  suggestionsTotal,
		matchDuration:     matchDuration,
		attemptsInFlight:  attemptsInFlight,
		expiredTotal:      expiredTotal,
		expireSweepErrors: expireSweepErrors,
	}
}

func (m *MatcherMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MatcherMetrics) StartAttempt(service, direction string) {
	m.attemptsInFlight.Inc()
	m.attemptsTotal.WithLabelValues(service, direction).Inc()
}

func (m *MatcherMetrics) FinishAttempt(service, direction, matchType string, duration time.Duration) {
	m.attemptsInFlight.Dec()
	m.matchDuration.WithLabelValues(service, direction).Observe(duration.Seconds())

	if matchType == "" {
		m.noMatchTotal.WithLabelValues(service, direction).Inc()
		return
	}
	m.matchesTotal.WithLabelValues(service, direction, matchType).Inc()
}

func (m *MatcherMetrics) RecordSuggestion(service, matchType string) {
	m.suggestionsTotal.WithLabelValues(service, matchType).Inc()
}

func (m *MatcherMetrics) RecordExpiry(expired int64, err error) {
	if err != nil {
		m.expireSweepErrors.Inc()
		return
	}
	if expired > 0 {
		m.expiredTotal.Add(float64(expired))
	}
}
