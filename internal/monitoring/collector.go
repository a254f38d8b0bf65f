// Package monitoring watches recorded run history and raises alerts when
// sessions fail or need review too often.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shiftscan/internal/model"
	"github.com/sells-group/shiftscan/internal/store"
)

// collectLimit bounds how many runs one snapshot reads.
const collectLimit = 10000

// Snapshot holds a point-in-time view of session health.
type Snapshot struct {
	Total       int `json:"total"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	Processing  int `json:"processing"`
	NeedsReview int `json:"needs_review"`

	// Unrecommended counts completed runs where no provider produced shifts.
	Unrecommended int `json:"unrecommended"`

	FailRate        float64 `json:"fail_rate"`
	ReviewRate      float64 `json:"review_rate"`
	AvgConfidence   float64 `json:"avg_confidence"`
	AvgProcessingMs int64   `json:"avg_processing_ms"`
	Conflicts       int     `json:"conflicts"`

	// Recommended counts completed runs by the provider that won.
	Recommended map[model.ProviderID]int `json:"recommended"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector summarizes run history.
type Collector struct {
	runs    RunLister
	nowFunc func() time.Time
}

// NewCollector creates a Collector reading from runs.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, nowFunc: time.Now}
}

// Collect summarizes the runs created within the last lookbackHours.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.nowFunc().UTC()
	snap := &Snapshot{
		Recommended:   make(map[model.ProviderID]int),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        collectLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.Total = len(runs)
	var (
		confSum float64
		msSum   int64
	)
	for _, r := range runs {
		msSum += r.ProcessingTimeMs
		switch r.Status {
		case model.SessionCompleted:
			snap.Completed++
			confSum += r.OverallConfidence
			snap.Conflicts += r.ConflictCount
			if r.NeedsReview {
				snap.NeedsReview++
			}
			if r.RecommendedProvider == "" {
				snap.Unrecommended++
			} else {
				snap.Recommended[r.RecommendedProvider]++
			}
		case model.SessionFailed:
			snap.Failed++
		default:
			snap.Processing++
		}
	}

	if finished := snap.Completed + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	if snap.Completed > 0 {
		snap.ReviewRate = float64(snap.NeedsReview) / float64(snap.Completed)
		snap.AvgConfidence = confSum / float64(snap.Completed)
	}
	if snap.Total > 0 {
		snap.AvgProcessingMs = msSum / int64(snap.Total)
	}
	return snap, nil
}
