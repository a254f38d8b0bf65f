package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func fail(_ context.Context) (int, error) { return 0, errors.New("fail") }
func succeed(_ context.Context) (int, error) { return 1, nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("claude", BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, _ = Call(context.Background(), b, fail)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	_, err := Call(context.Background(), b, func(_ context.Context) (int, error) {
		t.Error("should not be called while open")
		return 0, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker("mistral", BreakerConfig{FailureThreshold: 3})

	_, _ = Call(context.Background(), b, fail)
	_, _ = Call(context.Background(), b, fail)
	if st := b.Status(); st.ConsecutiveFailures != 2 || st.State != "closed" {
		t.Fatalf("unexpected status %+v", st)
	}

	v, err := Call(context.Background(), b, succeed)
	if err != nil || v != 1 {
		t.Fatalf("unexpected result %d, %v", v, err)
	}
	if st := b.Status(); st.ConsecutiveFailures != 0 {
		t.Errorf("expected failures reset, got %d", st.ConsecutiveFailures)
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	var transitions []string
	b := NewBreaker("tesseract", BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Second,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})
	b.nowFunc = func() time.Time { return now }

	_, _ = Call(context.Background(), b, fail)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	b.nowFunc = func() time.Time { return now.Add(2 * time.Second) }
	if st := b.Status(); st.State != "half-open" {
		t.Fatalf("expected half-open status, got %s", st.State)
	}

	// Failed probe reopens.
	_, _ = Call(context.Background(), b, fail)
	if b.State() != StateOpen {
		t.Fatalf("expected reopened, got %s", b.State())
	}

	b.nowFunc = func() time.Time { return now.Add(4 * time.Second) }
	if _, err := Call(context.Background(), b, succeed); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}

	want := []string{
		"tesseract:closed->open",
		"tesseract:open->half-open",
		"tesseract:half-open->open",
		"tesseract:open->half-open",
		"tesseract:half-open->closed",
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestBreaker_CanceledCallDoesNotTrip(t *testing.T) {
	b := NewBreaker("claude", BreakerConfig{FailureThreshold: 1})
	_, _ = Call(context.Background(), b, func(_ context.Context) (int, error) {
		return 0, context.Canceled
	})
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker("claude", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	_, _ = Call(context.Background(), b, fail)
	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("expected closed after reset, got %s", b.State())
	}
}

func TestBreakers_GetAndSnapshot(t *testing.T) {
	bs := NewBreakers(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})

	var wg sync.WaitGroup
	got := make([]*Breaker, 10)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = bs.Get("mistral")
		}(i)
	}
	wg.Wait()
	for _, b := range got[1:] {
		if b != got[0] {
			t.Fatal("expected a single breaker per name")
		}
	}

	_, _ = Call(context.Background(), bs.Get("claude"), fail)

	snap := bs.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 breakers, got %d", len(snap))
	}
	if snap[0].Name != "claude" || snap[0].State != "open" {
		t.Errorf("unexpected claude status %+v", snap[0])
	}
	if snap[1].Name != "mistral" || snap[1].State != "closed" {
		t.Errorf("unexpected mistral status %+v", snap[1])
	}
}
