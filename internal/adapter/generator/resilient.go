package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/commentreply/internal/adapter/metrics"
	"github.com/pscheid92/commentreply/internal/platform/retry"
)

// Provider is a single external text generation backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// BreakerPolicy configures the circuit breaker around a Provider.
type BreakerPolicy struct {
	FailureThreshold uint
	Delay            time.Duration
}

var (
	DefaultBreakerPolicy = BreakerPolicy{FailureThreshold: 5, Delay: 30 * time.Second}
	DefaultRetryPolicy   = retry.Policy{
		MaxAttempts:      2,
		InitialBackoff:   250 * time.Millisecond,
		RateLimitBackoff: 2 * time.Second,
		MaxBackoff:       2 * time.Second,
	}
)

// Resilient wraps a Provider with a bounded retry inside a circuit breaker.
// One Generate call takes one breaker permit however many attempts it makes.
type Resilient struct {
	provider Provider
	breaker  circuitbreaker.CircuitBreaker[any]
	retry    retry.Policy
	clock    clockwork.Clock
	metrics  *metrics.GeneratorMetrics
}

func NewResilient(p Provider, breaker BreakerPolicy, retryPolicy retry.Policy, clock clockwork.Clock, m *metrics.GeneratorMetrics) *Resilient {
	r := &Resilient{provider: p, retry: retryPolicy, clock: clock, metrics: m}
	if r.retry.Clock == nil {
		r.retry.Clock = clock
	}
	if r.retry.OnRetry == nil {
		r.retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
			slog.Debug("Retrying text generation", "provider", p.Name(), "attempt", attempt, "backoff", backoff, "error", err)
		}
	}

	r.breaker = circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(breaker.FailureThreshold).
		WithDelay(breaker.Delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "generator",
				"provider", p.Name(),
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			m.CircuitState.Set(stateToFloat(e.NewState))
		}).
		Build()

	return r
}

func (r *Resilient) Generate(ctx context.Context, prompt string) (string, error) {
	name := r.provider.Name()
	if !r.breaker.TryAcquirePermit() {
		r.metrics.Requests.WithLabelValues(name, "rejected").Inc()
		return "", fmt.Errorf("%s: %w", name, circuitbreaker.ErrOpen)
	}

	start := r.clock.Now()
	out, err := retry.Do(ctx, r.retry, retry.ClassifyHTTP, func() (string, error) {
		return r.provider.Generate(ctx, prompt)
	})
	r.metrics.Duration.WithLabelValues(name).Observe(r.clock.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.Canceled) {
			r.breaker.RecordSuccess()
		} else {
			r.breaker.RecordError(err)
		}
		r.metrics.Requests.WithLabelValues(name, "error").Inc()
		return "", fmt.Errorf("%s: %w", name, err)
	}

	r.breaker.RecordSuccess()
	r.metrics.Requests.WithLabelValues(name, "success").Inc()
	return out, nil
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}
