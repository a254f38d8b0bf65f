package resilience

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter paces calls to one provider. Throttled responses halve the
// rate (down to a quarter of the initial rate); successes raise it by 20%
// (up to twice the initial rate).
type AdaptiveLimiter struct {
	name    string
	limiter *rate.Limiter

	mu      sync.Mutex
	current rate.Limit
	floor   rate.Limit
	ceil    rate.Limit
}

// NewAdaptiveLimiter creates a limiter allowing perSecond calls with burst.
// A non-positive perSecond disables limiting.
func NewAdaptiveLimiter(name string, perSecond float64, burst int) *AdaptiveLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &AdaptiveLimiter{
		name:    name,
		limiter: rate.NewLimiter(limit, burst),
		current: limit,
		floor:   limit / 4,
		ceil:    limit * 2,
	}
}

// Wait blocks until a call is allowed or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess speeds the limiter back up after throttling.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == rate.Inf || a.current >= a.ceil {
		return
	}
	a.set(min(a.current*1.2, a.ceil))
}

// OnThrottle slows the limiter after a 429 from the provider.
func (a *AdaptiveLimiter) OnThrottle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == rate.Inf {
		return
	}
	a.set(max(a.current*0.5, a.floor))
	zap.L().Warn("resilience: provider throttled, reducing rate",
		zap.String("provider", a.name),
		zap.Float64("new_rate", float64(a.current)),
	)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *AdaptiveLimiter) set(l rate.Limit) {
	a.current = l
	a.limiter.SetLimit(l)
}
