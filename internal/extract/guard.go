package extract

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shiftscan/internal/model"
	"github.com/sells-group/shiftscan/internal/resilience"
	"github.com/sells-group/shiftscan/pkg/anthropic"
)

// Guard wraps an Extractor with a rate limiter, a circuit breaker and
// transient-error retries. The breaker sees one result per Extract call,
// after retries.
type Guard struct {
	next    Extractor
	limiter *resilience.AdaptiveLimiter
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
}

// NewGuard wraps next using the breaker registered under its ID in breakers.
func NewGuard(next Extractor, breakers *resilience.Breakers, s resilience.Settings) *Guard {
	name := string(next.ID())
	retry := s.Retry
	retry.OnRetry = resilience.RetryLogger(name)
	return &Guard{
		next:    next,
		limiter: resilience.NewAdaptiveLimiter(name, s.RatePerSec, s.RateBurst),
		breaker: breakers.Get(name),
		retry:   retry,
	}
}

// ID implements Extractor.
func (g *Guard) ID() model.ProviderID { return g.next.ID() }

// Extract implements Extractor.
func (g *Guard) Extract(ctx context.Context, img model.Image, hints model.Hints) (*model.RawPayload, error) {
	return resilience.Call(ctx, g.breaker, func(ctx context.Context) (*model.RawPayload, error) {
		return resilience.Retry(ctx, g.retry, func(ctx context.Context) (*model.RawPayload, error) {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrapf(err, "extract: %s rate limit wait", g.next.ID())
			}
			p, err := g.next.Extract(ctx, img, hints)
			if err != nil {
				if throttled(err) {
					g.limiter.OnThrottle()
				}
				return nil, err
			}
			g.limiter.OnSuccess()
			return p, nil
		})
	})
}

func throttled(err error) bool {
	var te *resilience.TransientError
	if errors.As(err, &te) && te.StatusCode == 429 {
		return true
	}
	var apiErr *anthropic.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}
