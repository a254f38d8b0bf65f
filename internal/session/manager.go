package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shiftscan/internal/config"
	"github.com/sells-group/shiftscan/internal/model"
)

// Manager enforces the session state machine on top of a Store.
type Manager struct {
	store   Store
	nowFunc func() time.Time
	newID   func() string
}

// NewManager creates a Manager backed by store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, nowFunc: time.Now, newID: uuid.NewString}
}

// Create starts a processing session owned by userID.
func (m *Manager) Create(ctx context.Context, userID, userName string, opts model.Options) (*model.ProcessingSession, error) {
	if userID == "" {
		return nil, eris.New("session: user id is required")
	}
	now := m.nowFunc().UTC()
	s := &model.ProcessingSession{
		ID:        m.newID(),
		UserID:    userID,
		UserName:  userName,
		Options:   opts,
		Status:    model.SessionProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, eris.Wrap(err, "session: create")
	}
	zap.L().Debug("session: created", zap.String("session_id", s.ID), zap.String("user_id", userID))
	return clone(s), nil
}

// Get returns the session if userID owns it. Unknown IDs yield ErrNotFound,
// sessions owned by someone else ErrForbidden.
func (m *Manager) Get(ctx context.Context, id, userID string) (*model.ProcessingSession, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		zap.L().Warn("session: access denied", zap.String("session_id", id), zap.String("user_id", userID))
		return nil, ErrForbidden
	}
	return s, nil
}

// Complete moves a processing session to completed with result.
func (m *Manager) Complete(ctx context.Context, id string, result model.ConsolidatedResult) (*model.ProcessingSession, error) {
	return m.transition(ctx, id, model.SessionCompleted, func(s *model.ProcessingSession) {
		s.Result = &result
	})
}

// Fail moves a processing session to failed, recording reason.
func (m *Manager) Fail(ctx context.Context, id, reason string) (*model.ProcessingSession, error) {
	return m.transition(ctx, id, model.SessionFailed, func(s *model.ProcessingSession) {
		s.Error = reason
	})
}

func (m *Manager) transition(ctx context.Context, id string, to model.SessionStatus, apply func(s *model.ProcessingSession)) (*model.ProcessingSession, error) {
	s, err := m.store.Update(ctx, id, func(s *model.ProcessingSession) error {
		if s.Status.Terminal() {
			return ErrAlreadyTerminal
		}
		s.Status = to
		s.UpdatedAt = m.nowFunc().UTC()
		apply(s)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyTerminal) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, eris.Wrapf(err, "session: transition %s to %s", id, to)
	}
	zap.L().Info("session: transitioned", zap.String("session_id", id), zap.String("status", string(to)))
	return s, nil
}

// Dispose deletes the session if userID owns it.
func (m *Manager) Dispose(ctx context.Context, id, userID string) error {
	if _, err := m.Get(ctx, id, userID); err != nil {
		return err
	}
	return m.store.Delete(ctx, id)
}

// NewStoreFromConfig builds the session store selected by cfg.Session.Backend.
func NewStoreFromConfig(ctx context.Context, cfg *config.Config) (Store, error) {
	ttl := time.Duration(cfg.Session.TTLMinutes) * time.Minute
	switch cfg.Session.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.Session.MaxEntries, ttl), nil
	case "redis":
		rdb, err := DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(rdb, cfg.Redis.KeyPrefix, ttl), nil
	default:
		return nil, eris.Errorf("session: unknown backend %q", cfg.Session.Backend)
	}
}
