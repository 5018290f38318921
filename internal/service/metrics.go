package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels: mode (rag, context-aware, none), outcome (succeeded, failed)
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "testgen",
		Subsystem: "generation",
		Name:      "sessions_total",
		Help:      "Finished generation sessions by context mode and outcome",
	}, []string{"mode", "outcome"})

	sessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "testgen",
		Subsystem: "generation",
		Name:      "session_duration_seconds",
		Help:      "Wall time of one generation session",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
	}, []string{"mode", "outcome"})

	// Labels: class (compile, runtime)
	fixRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "testgen",
		Subsystem: "repair",
		Name:      "fix_requests_total",
		Help:      "Fix requests sent to the model by error class",
	}, []string{"class"})

	contextRetrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "testgen",
		Subsystem: "context",
		Name:      "retrievals_total",
		Help:      "Context assemblies by pipeline",
	}, []string{"mode"})

	contextItems = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "testgen",
		Subsystem: "context",
		Name:      "items",
		Help:      "Context items handed to the prompt builder",
		Buckets:   []float64{0, 1, 2, 4, 6, 8, 10, 15, 20, 30},
	}, []string{"mode"})

	contextFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "testgen",
		Subsystem: "context",
		Name:      "context_aware_fallbacks_total",
		Help:      "Context-aware sessions that fell back to retrieval",
	})
)

func recordSession(mode, outcome string, seconds float64) {
	sessionsTotal.WithLabelValues(mode, outcome).Inc()
	sessionDuration.WithLabelValues(mode, outcome).Observe(seconds)
}

func recordFixRequests(class string, n int) {
	if n > 0 {
		fixRequestsTotal.WithLabelValues(class).Add(float64(n))
	}
}

func recordContext(mode string, items int) {
	contextRetrievalsTotal.WithLabelValues(mode).Inc()
	contextItems.WithLabelValues(mode).Observe(float64(items))
}
