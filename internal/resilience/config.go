package resilience

import (
	"time"

	"github.com/sells-group/shiftscan/internal/config"
)

// Settings bundles the policies built from configuration.
type Settings struct {
	Retry      RetryConfig
	Breaker    BreakerConfig
	RatePerSec float64
	RateBurst  int
}

// FromConfig converts config values to resilience policies. Zero values keep
// the package defaults.
func FromConfig(c config.ResilienceConfig) Settings {
	retry := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		retry.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}
	if c.Multiplier > 0 {
		retry.Multiplier = c.Multiplier
	}
	if c.JitterFraction >= 0 {
		retry.JitterFraction = c.JitterFraction
	}

	breaker := DefaultBreakerConfig()
	if c.FailureThreshold > 0 {
		breaker.FailureThreshold = c.FailureThreshold
	}
	if c.ResetTimeoutSecs > 0 {
		breaker.ResetTimeout = time.Duration(c.ResetTimeoutSecs) * time.Second
	}

	return Settings{
		Retry:      retry,
		Breaker:    breaker,
		RatePerSec: c.RatePerSecond,
		RateBurst:  c.RateBurst,
	}
}
