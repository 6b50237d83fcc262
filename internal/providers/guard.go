package providers

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/AI-Template-SDK/senso-visibility/internal/metrics"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers/common"
)

// GuardOptions configures the protections wrapped around an adapter.
type GuardOptions struct {
	Timeout          time.Duration
	RPS              float64
	FailureThreshold uint32
	OpenTimeout      time.Duration
	Metrics          *metrics.Metrics
}

// Guard bounds an adapter with a per-call timeout, an optional rate limit and
// a circuit breaker. It never retries; retry policy belongs to the caller.
type Guard struct {
	inner   common.Adapter
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
}

var errTransient = errors.New("transient provider failure")

func NewGuard(inner common.Adapter, opts GuardOptions) *Guard {
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	g := &Guard{
		inner:   inner,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
	}
	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}

	name := inner.Name()
	threshold := opts.FailureThreshold
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[Guard] circuit breaker state changed")
			g.metrics.SetBreakerState(name, float64(to))
		},
	})
	return g
}

func (g *Guard) Name() string  { return g.inner.Name() }
func (g *Guard) Model() string { return g.inner.Model() }

// Unwrap returns the guarded adapter.
func (g *Guard) Unwrap() common.Adapter { return g.inner }

func (g *Guard) ExecuteQuery(ctx context.Context, prompt string) common.Result {
	return g.call(ctx, func(ctx context.Context) common.Result {
		return g.inner.ExecuteQuery(ctx, prompt)
	})
}

// ExecuteStructured runs a schema-constrained call under the same protections.
// An inner adapter without structured output fails permanently.
func (g *Guard) ExecuteStructured(ctx context.Context, prompt, schemaName string, schema interface{}) common.Result {
	structured, ok := g.inner.(common.StructuredAdapter)
	if !ok {
		return common.Failure(g.Model(), common.ErrorPermanent, 0, "%s does not support structured output", g.Name())
	}
	return g.call(ctx, func(ctx context.Context) common.Result {
		return structured.ExecuteStructured(ctx, prompt, schemaName, schema)
	})
}

// Structured reports whether the guarded adapter supports structured output.
func (g *Guard) Structured() bool {
	_, ok := g.inner.(common.StructuredAdapter)
	return ok
}

func (g *Guard) Health(ctx context.Context) common.Result {
	return g.call(ctx, g.inner.Health)
}

func (g *Guard) call(ctx context.Context, fn func(context.Context) common.Result) common.Result {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.metrics.ProviderRejected(g.Name(), "rate_limited")
			return common.Failure(g.Model(), common.ErrorTransient, 0, "%s rate limiter: %v", g.Name(), err)
		}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	var result common.Result
	_, err := g.breaker.Execute(func() (interface{}, error) {
		result = fn(ctx)
		// Only transient failures count towards opening the breaker.
		if !result.Success && result.ErrorKind != common.ErrorPermanent {
			return nil, errTransient
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		g.metrics.ProviderRejected(g.Name(), "breaker_open")
		return common.Failure(g.Model(), common.ErrorTransient, 0, "%s circuit open: %v", g.Name(), err)
	}

	g.metrics.ObserveProviderCall(g.Name(), result.Success, time.Since(start), result.CostUSD)
	return result
}
