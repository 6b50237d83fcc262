// Package metrics holds the Prometheus collectors for the visibility engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "visibility"

// Metrics is nil-safe: every recording method is a no-op on a nil receiver so
// components can run without a registry in tests.
type Metrics struct {
	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	ProviderCost    *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec

	ProbeResults *prometheus.CounterVec
	ProbeRetries prometheus.Counter

	SerpFetches *prometheus.CounterVec
	SerpCache   *prometheus.CounterVec

	QuotaBlocked prometheus.Counter
	Analyses     *prometheus.CounterVec
}

// New registers all collectors on reg, or on the default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	m := &Metrics{}
	m.initProviderMetrics(factory)
	m.initRunMetrics(factory)
	return m
}

func (m *Metrics) initProviderMetrics(factory promauto.Factory) {
	m.ProviderCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Provider calls by outcome",
		},
		[]string{"provider", "outcome"},
	)
	m.ProviderLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "provider",
			Name:      "latency_seconds",
			Help:      "Provider call latency",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"provider"},
	)
	m.ProviderCost = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "provider",
			Name:      "cost_usd_total",
			Help:      "Accumulated provider cost in USD",
		},
		[]string{"provider"},
	)
	m.BreakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "provider",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)
}

func (m *Metrics) initRunMetrics(factory promauto.Factory) {
	m.ProbeResults = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "probe",
			Name:      "results_total",
			Help:      "Stored probe results by surface and outcome",
		},
		[]string{"surface", "outcome"},
	)
	m.ProbeRetries = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "probe",
			Name:      "retries_total",
			Help:      "Error rows re-attempted by the retry passes",
		},
	)
	m.SerpFetches = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "serp",
			Name:      "fetches_total",
			Help:      "SERP fetches by outcome",
		},
		[]string{"outcome"},
	)
	m.SerpCache = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "serp",
			Name:      "cache_total",
			Help:      "SERP cache lookups",
		},
		[]string{"result"},
	)
	m.QuotaBlocked = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "quota",
			Name:      "blocked_total",
			Help:      "Operations refused by the quota gate",
		},
	)
	m.Analyses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "orchestrator",
			Name:      "analyses_total",
			Help:      "Project analyses by status",
		},
		[]string{"status"},
	)
}

func (m *Metrics) ObserveProviderCall(provider string, success bool, elapsed time.Duration, costUSD float64) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.ProviderCalls.WithLabelValues(provider, outcome).Inc()
	m.ProviderLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
	if costUSD > 0 {
		m.ProviderCost.WithLabelValues(provider).Add(costUSD)
	}
}

func (m *Metrics) ProviderRejected(provider, reason string) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, reason).Inc()
}

func (m *Metrics) SetBreakerState(provider string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(provider).Set(state)
}

func (m *Metrics) ProbeResult(surface string, hasError bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if hasError {
		outcome = "error"
	}
	m.ProbeResults.WithLabelValues(surface, outcome).Inc()
}

func (m *Metrics) ProbeRetry() {
	if m == nil {
		return
	}
	m.ProbeRetries.Inc()
}

func (m *Metrics) SerpFetch(outcome string) {
	if m == nil {
		return
	}
	m.SerpFetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SerpCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.SerpCache.WithLabelValues(result).Inc()
}

func (m *Metrics) QuotaRefused() {
	if m == nil {
		return
	}
	m.QuotaBlocked.Inc()
}

func (m *Metrics) Analysis(status string) {
	if m == nil {
		return
	}
	m.Analyses.WithLabelValues(status).Inc()
}
