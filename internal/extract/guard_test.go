package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shiftscan/internal/model"
	"github.com/sells-group/shiftscan/internal/resilience"
)

func testSettings() resilience.Settings {
	return resilience.Settings{
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			Multiplier:     2,
		},
		Breaker: resilience.BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour},
	}
}

func TestGuard_RetriesTransientErrors(t *testing.T) {
	payload := &model.RawPayload{Provider: model.ProviderMistral, Body: "ok"}
	stub := &stubExtractor{
		id:      model.ProviderMistral,
		payload: payload,
		errs: []error{
			resilience.NewTransientError(errors.New("throttled"), 429),
			resilience.NewTransientError(errors.New("busy"), 503),
		},
	}
	g := NewGuard(stub, resilience.NewBreakers(testSettings().Breaker), testSettings())

	p, err := g.Extract(context.Background(), testImage, model.Hints{})
	require.NoError(t, err)
	assert.Same(t, payload, p)
	assert.Equal(t, int32(3), stub.calls.Load())
	assert.Equal(t, model.ProviderMistral, g.ID())
	assert.Equal(t, resilience.StateClosed, g.breaker.State())
}

func TestGuard_PermanentErrorNotRetried(t *testing.T) {
	stub := &stubExtractor{id: model.ProviderClaude, errs: []error{errors.New("bad image")}}
	g := NewGuard(stub, resilience.NewBreakers(testSettings().Breaker), testSettings())

	_, err := g.Extract(context.Background(), testImage, model.Hints{})
	require.Error(t, err)
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestGuard_BreakerOpensAndRejects(t *testing.T) {
	boom := errors.New("down")
	stub := &stubExtractor{id: model.ProviderTesseract, errs: []error{boom, boom, boom}}
	breakers := resilience.NewBreakers(testSettings().Breaker)
	g := NewGuard(stub, breakers, testSettings())

	for i := 0; i < 2; i++ {
		_, err := g.Extract(context.Background(), testImage, model.Hints{})
		require.ErrorIs(t, err, boom)
	}

	_, err := g.Extract(context.Background(), testImage, model.Hints{})
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), stub.calls.Load())
	assert.Equal(t, "open", breakers.Get("tesseract").Status().State)
}

func TestGuard_CanceledContext(t *testing.T) {
	stub := &stubExtractor{id: model.ProviderClaude, payload: &model.RawPayload{}}
	s := testSettings()
	s.RatePerSec = 0.001
	s.RateBurst = 1
	g := NewGuard(stub, resilience.NewBreakers(s.Breaker), s)

	_, err := g.Extract(context.Background(), testImage, model.Hints{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Extract(ctx, testImage, model.Hints{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestThrottled(t *testing.T) {
	assert.True(t, throttled(resilience.NewTransientError(errors.New("x"), 429)))
	assert.False(t, throttled(resilience.NewTransientError(errors.New("x"), 503)))
	assert.False(t, throttled(errors.New("plain")))
}
