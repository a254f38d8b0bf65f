// Package metrics holds the Prometheus collectors for the consolidation engine.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/shiftscan/internal/model"
	"github.com/sells-group/shiftscan/internal/resilience"
)

var (
	// ProviderOutcomes counts settled provider outcomes by provider and result
	// ("success", "empty", "failure").
	ProviderOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shiftscan",
		Name:      "provider_outcomes_total",
		Help:      "Settled provider outcomes by provider and result.",
	}, []string{"provider", "result"})

	// ProviderLatency observes how long each provider took to settle.
	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shiftscan",
		Name:      "provider_duration_seconds",
		Help:      "Provider extraction latency.",
		Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 45, 90},
	}, []string{"provider"})

	// ProviderConfidence observes scores of successful outcomes.
	ProviderConfidence = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shiftscan",
		Name:      "provider_confidence",
		Help:      "Confidence of successful provider outcomes.",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
	}, []string{"provider"})

	// Sessions counts sessions by terminal status.
	Sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shiftscan",
		Name:      "sessions_total",
		Help:      "Processing sessions by terminal status.",
	}, []string{"status"})

	// Conflicts counts detected conflict records by kind ("shiftCount",
	// "startTime", "endTime").
	Conflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shiftscan",
		Name:      "conflicts_total",
		Help:      "Detected provider conflicts by field kind.",
	}, []string{"field"})

	// Reviews counts consolidated results flagged for human review.
	Reviews = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shiftscan",
		Name:      "needs_review_total",
		Help:      "Consolidated results that need human review.",
	})

	// BreakerState reports each provider's circuit state
	// (0 closed, 1 open, 2 half-open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "shiftscan",
		Name:      "provider_circuit_state",
		Help:      "Circuit breaker state per provider.",
	}, []string{"provider"})
)

// Outcome result labels.
const (
	ResultSuccess = "success"
	ResultEmpty   = "empty"
	ResultFailure = "failure"
)

// ObserveOutcome records one settled provider outcome.
func ObserveOutcome(o model.ProviderOutcome) {
	result := ResultFailure
	switch {
	case o.Success && len(o.Shifts) > 0:
		result = ResultSuccess
		ProviderConfidence.WithLabelValues(string(o.Provider)).Observe(o.Confidence)
	case o.Success:
		result = ResultEmpty
	}
	ProviderOutcomes.WithLabelValues(string(o.Provider), result).Inc()
	ProviderLatency.WithLabelValues(string(o.Provider)).Observe(float64(o.ProcessingTimeMs) / 1000)
}

// ObserveResult records the conflicts and review flag of one consolidation.
func ObserveResult(r model.ConsolidatedResult) {
	for _, c := range r.Conflicts {
		Conflicts.WithLabelValues(ConflictKind(c.Field)).Inc()
	}
	if r.NeedsReview {
		Reviews.Inc()
	}
}

// ObserveSession records a session reaching a terminal status.
func ObserveSession(status model.SessionStatus) {
	Sessions.WithLabelValues(string(status)).Inc()
}

// BreakerStateChange is a resilience.BreakerConfig.OnStateChange hook that
// mirrors breaker transitions into BreakerState.
func BreakerStateChange(name string, _, to resilience.State) {
	BreakerState.WithLabelValues(name).Set(float64(to))
}

// ConflictKind strips the "@<date>" suffix from a conflict field key.
func ConflictKind(field string) string {
	kind, _, _ := strings.Cut(field, "@")
	return kind
}
