package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/AI-Template-SDK/senso-visibility/internal/metrics"
)

func TestRecording(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveProviderCall("openai", true, 2*time.Second, 0.01)
	m.ObserveProviderCall("openai", false, time.Second, 0)
	m.ProviderRejected("openai", "breaker_open")
	m.ProbeResult("openai", false)
	m.SerpCacheLookup(true)
	m.SerpCacheLookup(false)
	m.SerpCacheLookup(false)
	m.QuotaRefused()
	m.Analysis("completed")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("openai", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("openai", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("openai", "breaker_open")))
	assert.InDelta(t, 0.01, testutil.ToFloat64(m.ProviderCost.WithLabelValues("openai")), 1e-12)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SerpCache.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotaBlocked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Analyses.WithLabelValues("completed")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveProviderCall("x", true, time.Second, 1)
		m.ProviderRejected("x", "rate_limited")
		m.SetBreakerState("x", 2)
		m.ProbeResult("x", true)
		m.ProbeRetry()
		m.SerpFetch("ok")
		m.SerpCacheLookup(true)
		m.QuotaRefused()
		m.Analysis("failed")
	})
}
