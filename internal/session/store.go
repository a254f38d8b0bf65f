// Package session owns the lifecycle of processing sessions: creation,
// the single transition out of processing, ownership-checked lookup and
// disposal.
package session

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shiftscan/internal/model"
)

var (
	// ErrNotFound is returned for unknown or expired session IDs.
	ErrNotFound = eris.New("session: not found")
	// ErrForbidden is returned when the caller does not own the session.
	ErrForbidden = eris.New("session: forbidden")
	// ErrAlreadyTerminal is returned for a second transition out of processing.
	ErrAlreadyTerminal = eris.New("session: already terminal")
	// ErrExists is returned by Store.Create for a duplicate ID.
	ErrExists = eris.New("session: already exists")
)

// Store persists sessions. Implementations return ErrNotFound for missing
// keys and copy sessions on the way in and out, so callers never share
// memory with the store.
type Store interface {
	// Create inserts s. It fails with ErrExists if the ID is taken.
	Create(ctx context.Context, s *model.ProcessingSession) error
	// Get returns the session stored under id.
	Get(ctx context.Context, id string) (*model.ProcessingSession, error)
	// Update loads the session, applies fn and stores the result atomically
	// with respect to other Update calls on the same id. If fn returns an
	// error nothing is written and the error is returned unchanged.
	Update(ctx context.Context, id string, fn func(s *model.ProcessingSession) error) (*model.ProcessingSession, error)
	// Delete removes the session stored under id.
	Delete(ctx context.Context, id string) error
	// Close releases the store's resources.
	Close() error
}

func clone(s *model.ProcessingSession) *model.ProcessingSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Options.Providers = append([]model.ProviderID(nil), s.Options.Providers...)
	if s.Result != nil {
		r := *s.Result
		r.RecommendedShifts = append([]model.ShiftRecord(nil), s.Result.RecommendedShifts...)
		r.Conflicts = append([]model.ConflictRecord(nil), s.Result.Conflicts...)
		c.Result = &r
	}
	return &c
}
