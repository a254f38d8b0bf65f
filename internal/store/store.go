// Package store persists the run history of processing sessions.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shiftscan/internal/config"
	"github.com/sells-group/shiftscan/internal/model"
)

// ErrNotFound is returned by GetRun for unknown run IDs.
var ErrNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	UserID      string              `json:"user_id,omitempty"`
	Status      model.SessionStatus `json:"status,omitempty"`
	NeedsReview *bool               `json:"needs_review,omitempty"`
	Limit       int                 `json:"limit,omitempty"`
	Offset      int                 `json:"offset,omitempty"`

	// CreatedAfter keeps runs created at or after this time when non-zero.
	CreatedAfter time.Time `json:"created_after,omitzero"`
}

const defaultListLimit = 100

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for run history.
type Store interface {
	// SaveRun inserts or replaces the run and its outcome summaries.
	SaveRun(ctx context.Context, run *model.Run) error
	// GetRun returns the run with its outcome summaries.
	GetRun(ctx context.Context, id string) (*model.Run, error)
	// ListRuns returns runs newest first, without outcome summaries.
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	// DeleteRunsBefore removes runs created before cutoff.
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver, migrated and ready. The
// "none" driver returns a nil Store.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "", "sqlite":
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck,gosec
		return nil, err
	}
	return st, nil
}
