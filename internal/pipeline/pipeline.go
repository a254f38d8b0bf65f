// Package pipeline runs one consolidation session end to end: session
// creation, validation, provider dispatch, consolidation and completion.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shiftscan/internal/config"
	"github.com/sells-group/shiftscan/internal/consolidate"
	"github.com/sells-group/shiftscan/internal/dispatch"
	"github.com/sells-group/shiftscan/internal/metrics"
	"github.com/sells-group/shiftscan/internal/model"
	"github.com/sells-group/shiftscan/internal/session"
	"github.com/sells-group/shiftscan/internal/store"
)

var (
	// ErrInvalid marks requests rejected before dispatch.
	ErrInvalid = eris.New("pipeline: invalid request")
	// ErrNoProviders is returned when no extraction provider is configured.
	ErrNoProviders = eris.New("pipeline: no providers configured")
)

// DefaultConfidenceThreshold applies when neither the request nor the
// configuration sets one.
const DefaultConfidenceThreshold = 0.7

// FailedError reports a session that was created and then failed as a whole.
type FailedError struct {
	SessionID string
	Err       error
}

func (e *FailedError) Error() string {
	return "pipeline: session " + e.SessionID + " failed: " + e.Err.Error()
}

func (e *FailedError) Unwrap() error { return e.Err }

// Providers is the registry view the pipeline needs.
type Providers interface {
	dispatch.Source
	Len() int
}

// Dispatcher fans an image out to providers.
type Dispatcher interface {
	Dispatch(ctx context.Context, img model.Image, hints model.Hints, providers []model.ProviderID) map[model.ProviderID]model.ProviderOutcome
}

// SubmitRequest is one caller submission.
type SubmitRequest struct {
	UserID   string `validate:"required"`
	UserName string `validate:"max=200"`
	Image    model.Image

	Providers              []model.ProviderID
	CompareAcrossProviders bool
	// ConfidenceThreshold overrides the configured default when set.
	ConfidenceThreshold *float64

	// ReferenceYear resolves dates without a year. Zero uses the current year.
	ReferenceYear int `validate:"omitempty,gte=2000,lte=2100"`
}

// Pipeline orchestrates consolidation sessions.
type Pipeline struct {
	sessions     *session.Manager
	providers    Providers
	dispatcher   Dispatcher
	consolidator *consolidate.Consolidator
	runs         store.Store
	validate     *validator.Validate

	threshold     float64
	maxImageBytes int64
	nowFunc       func() time.Time
}

// New creates a Pipeline. runs may be nil to disable run history.
func New(cfg config.ExtractConfig, sessions *session.Manager, providers Providers, d Dispatcher, runs store.Store) *Pipeline {
	threshold := cfg.DefaultConfidenceThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultConfidenceThreshold
	}
	bonus := consolidate.DefaultConsensusBonus
	if cfg.ConsensusBonus > 0 {
		bonus = cfg.ConsensusBonus
	}
	maxBytes := cfg.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &Pipeline{
		sessions:      sessions,
		providers:     providers,
		dispatcher:    d,
		consolidator:  consolidate.New(bonus),
		runs:          runs,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		threshold:     threshold,
		maxImageBytes: maxBytes,
		nowFunc:       time.Now,
	}
}

// Submit runs one consolidation. Provider failures never fail the session;
// invalid options, an unreadable image, a missing provider configuration or
// a session store error do, in which case the returned error is a
// *FailedError carrying the session ID.
func (p *Pipeline) Submit(ctx context.Context, req SubmitRequest) (*model.SubmitResult, error) {
	start := p.nowFunc()

	if err := p.validate.Struct(req); err != nil {
		return nil, eris.Wrap(ErrInvalid, formatValidation(err))
	}

	opts := model.Options{
		Providers:              dispatch.Ordered(req.Providers),
		CompareAcrossProviders: req.CompareAcrossProviders,
		ConfidenceThreshold:    p.threshold,
	}
	if req.ConfidenceThreshold != nil {
		opts.ConfidenceThreshold = *req.ConfidenceThreshold
	}

	sess, err := p.sessions.Create(ctx, req.UserID, req.UserName, opts)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create session")
	}
	log := zap.L().With(zap.String("session_id", sess.ID), zap.String("user_id", req.UserID))
	log.Info("pipeline: session started", zap.Any("providers", opts.Providers))

	img, err := p.check(opts, req.Image)
	if err != nil {
		return nil, p.fail(ctx, log, sess, start, err)
	}

	hints := model.Hints{UserName: req.UserName, ReferenceYear: req.ReferenceYear}
	if hints.ReferenceYear == 0 {
		hints.ReferenceYear = p.nowFunc().Year()
	}

	outcomes := p.dispatcher.Dispatch(ctx, img, hints, opts.Providers)
	settled := dispatch.Settled(outcomes, opts.Providers)
	result := p.consolidator.Consolidate(settled, opts.ConfidenceThreshold)
	metrics.ObserveResult(result)

	if _, err := p.sessions.Complete(ctx, sess.ID, result); err != nil {
		return nil, p.fail(ctx, log, sess, start, eris.Wrapf(err, "pipeline: complete session %s", sess.ID))
	}
	metrics.ObserveSession(model.SessionCompleted)

	elapsed := p.nowFunc().Sub(start).Milliseconds()
	log.Info("pipeline: session completed",
		zap.String("recommended_provider", string(result.RecommendedProvider)),
		zap.Float64("overall_confidence", result.OverallConfidence),
		zap.Int("conflicts", len(result.Conflicts)),
		zap.Bool("needs_review", result.NeedsReview),
		zap.Int64("duration_ms", elapsed),
	)

	p.saveRun(ctx, log, &model.Run{
		ID:                  sess.ID,
		UserID:              sess.UserID,
		Status:              model.SessionCompleted,
		Providers:           opts.Providers,
		RecommendedProvider: result.RecommendedProvider,
		OverallConfidence:   result.OverallConfidence,
		NeedsReview:         result.NeedsReview,
		ConflictCount:       len(result.Conflicts),
		ProcessingTimeMs:    elapsed,
		Result:              &result,
		Outcomes:            summaries(settled),
		CreatedAt:           sess.CreatedAt,
	})

	return &model.SubmitResult{
		SessionID:        sess.ID,
		Outcomes:         outcomes,
		Consolidated:     result,
		ProcessingTimeMs: elapsed,
	}, nil
}

// check validates everything that must hold before any provider is called.
func (p *Pipeline) check(opts model.Options, img model.Image) (model.Image, error) {
	if err := p.validate.Struct(opts); err != nil {
		return img, eris.Wrap(ErrInvalid, formatValidation(err))
	}
	for _, id := range opts.Providers {
		if !id.IsKnown() {
			return img, eris.Wrapf(ErrInvalid, "unknown provider %q", id)
		}
	}
	if p.providers.Len() == 0 {
		return img, ErrNoProviders
	}
	return CheckImage(img, p.maxImageBytes)
}

func (p *Pipeline) fail(ctx context.Context, log *zap.Logger, sess *model.ProcessingSession, start time.Time, cause error) error {
	log.Warn("pipeline: session failed", zap.Error(cause))

	_, err := p.sessions.Fail(context.WithoutCancel(ctx), sess.ID, cause.Error())
	if err != nil && !errors.Is(err, session.ErrAlreadyTerminal) && !errors.Is(err, session.ErrNotFound) {
		log.Error("pipeline: failed to mark session failed", zap.Error(err))
	}
	metrics.ObserveSession(model.SessionFailed)

	p.saveRun(ctx, log, &model.Run{
		ID:               sess.ID,
		UserID:           sess.UserID,
		Status:           model.SessionFailed,
		Providers:        sess.Options.Providers,
		ProcessingTimeMs: p.nowFunc().Sub(start).Milliseconds(),
		Error:            cause.Error(),
		CreatedAt:        sess.CreatedAt,
	})

	return &FailedError{SessionID: sess.ID, Err: cause}
}

// saveRun records history without affecting the session outcome.
func (p *Pipeline) saveRun(ctx context.Context, log *zap.Logger, run *model.Run) {
	if p.runs == nil {
		return
	}
	if err := p.runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("pipeline: failed to save run history", zap.Error(err))
	}
}

func summaries(outcomes []model.ProviderOutcome) []model.OutcomeSummary {
	out := make([]model.OutcomeSummary, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, model.Summarize(o))
	}
	return out
}
