// Package dispatch fans one image out to the requested extraction providers
// and settles every provider into a ProviderOutcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/shiftscan/internal/extract"
	"github.com/sells-group/shiftscan/internal/metrics"
	"github.com/sells-group/shiftscan/internal/model"
	"github.com/sells-group/shiftscan/internal/normalize"
	"github.com/sells-group/shiftscan/internal/scorer"
)

// DefaultDeadline bounds one dispatch when no deadline is configured.
const DefaultDeadline = 45 * time.Second

// Failure reasons reported in ProviderOutcome.ErrorMessage.
const (
	ReasonUnavailable = "provider unavailable"
	ReasonTimeout     = "provider timed out"
	ReasonCanceled    = "provider call canceled"
)

// Source resolves provider IDs to extractors. *extract.Registry implements it.
type Source interface {
	Get(id model.ProviderID) (extract.Extractor, bool)
}

// Dispatcher runs extraction providers concurrently with failure isolation.
type Dispatcher struct {
	source     Source
	normalizer *normalize.Normalizer
	scorer     *scorer.Scorer
	deadline   time.Duration
}

// New creates a Dispatcher. A non-positive deadline uses DefaultDeadline.
func New(source Source, n *normalize.Normalizer, s *scorer.Scorer, deadline time.Duration) *Dispatcher {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Dispatcher{source: source, normalizer: n, scorer: s, deadline: deadline}
}

// Dispatch sends img to every provider in providers and returns one outcome
// per distinct provider. Providers share no cancellation: a failing, slow or
// panicking provider only affects its own outcome. Dispatch returns once
// every provider has settled, at the latest when the deadline expires.
func (d *Dispatcher) Dispatch(ctx context.Context, img model.Image, hints model.Hints, providers []model.ProviderID) map[model.ProviderID]model.ProviderOutcome {
	outcomes := make(map[model.ProviderID]model.ProviderOutcome, len(providers))
	var mu sync.Mutex

	// errgroup.Group without WithContext: one provider's error never cancels
	// the others. Each task reports failure through its outcome and returns nil.
	var g errgroup.Group
	for _, id := range Ordered(providers) {
		g.Go(func() error {
			o := d.run(ctx, id, img, hints)
			metrics.ObserveOutcome(o)

			mu.Lock()
			outcomes[id] = o
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

type result struct {
	payload *model.RawPayload
	err     error
}

// run settles one provider. The extractor call happens on its own goroutine
// so an implementation that ignores ctx still cannot hold the dispatch past
// the deadline.
func (d *Dispatcher) run(ctx context.Context, id model.ProviderID, img model.Image, hints model.Hints) model.ProviderOutcome {
	start := time.Now()
	log := zap.L().With(zap.String("provider", string(id)))

	e, ok := d.source.Get(id)
	if !ok {
		log.Warn("dispatch: provider unavailable")
		return model.FailedOutcome(id, ReasonUnavailable, 0)
	}

	pctx, cancel := context.WithTimeout(ctx, d.deadline)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("dispatch: provider panicked: %v", r)}
			}
		}()
		p, err := e.Extract(pctx, img, hints)
		done <- result{payload: p, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-pctx.Done():
		res = result{err: pctx.Err()}
	}
	elapsed := time.Since(start).Milliseconds()

	if res.err == nil && res.payload == nil {
		res.err = fmt.Errorf("dispatch: %s returned no payload", id)
	}
	if res.err != nil {
		log.Warn("dispatch: provider failed",
			zap.Int64("duration_ms", elapsed),
			zap.Error(res.err),
		)
		return model.FailedOutcome(id, failureReason(res.err), elapsed)
	}

	shifts := d.normalizer.Normalize(*res.payload, id)
	confidence := d.scorer.Score(shifts, id)

	log.Info("dispatch: provider settled",
		zap.Int("shifts", len(shifts)),
		zap.Float64("confidence", confidence),
		zap.Int64("duration_ms", elapsed),
	)

	return model.ProviderOutcome{
		Provider:         id,
		Success:          true,
		Confidence:       confidence,
		ProcessingTimeMs: elapsed,
		Shifts:           shifts,
		Diagnostic:       res.payload,
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	}
	return err.Error()
}

// Ordered returns providers with duplicates removed, keeping first
// occurrences in their requested order.
func Ordered(providers []model.ProviderID) []model.ProviderID {
	seen := make(map[model.ProviderID]bool, len(providers))
	out := make([]model.ProviderID, 0, len(providers))
	for _, p := range providers {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Settled returns the outcomes of m in the order of providers. Providers
// missing from m are skipped.
func Settled(m map[model.ProviderID]model.ProviderOutcome, providers []model.ProviderID) []model.ProviderOutcome {
	order := Ordered(providers)
	out := make([]model.ProviderOutcome, 0, len(order))
	for _, p := range order {
		if o, ok := m[p]; ok {
			out = append(out, o)
		}
	}
	return out
}
