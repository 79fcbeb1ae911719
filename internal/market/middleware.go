package market

import (
	"context"
	"time"

	cb "github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// rateLimitedProvider throttles history fetches to a fixed request rate.
// Remote providers (exchange or vendor APIs) enforce per-client budgets;
// the limiter blocks rather than dropping requests.
type rateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// RateLimited wraps a provider with a token-bucket rate limit of rps
// requests per second.
func RateLimited(p Provider, rps float64, burst int) Provider {
	return &rateLimitedProvider{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *rateLimitedProvider) GetPrices(ctx context.Context, symbol string, from, to time.Time) (Series, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.GetPrices(ctx, symbol, from, to)
}

// breakerProvider guards a flaky provider with a circuit breaker so a
// failing data source trips fast instead of stalling every worker.
type breakerProvider struct {
	inner   Provider
	breaker *cb.CircuitBreaker
}

// WithBreaker wraps a provider with a circuit breaker. The breaker trips
// after 3 consecutive failures or a >5% failure rate over 20+ requests.
func WithBreaker(p Provider, name string) Provider {
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	return &breakerProvider{inner: p, breaker: cb.NewCircuitBreaker(st)}
}

func (b *breakerProvider) GetPrices(ctx context.Context, symbol string, from, to time.Time) (Series, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		return b.inner.GetPrices(ctx, symbol, from, to)
	})
	if err != nil {
		return nil, err
	}
	return out.(Series), nil
}
