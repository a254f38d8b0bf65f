package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shiftscan/internal/dispatch"
	"github.com/sells-group/shiftscan/internal/extract"
	"github.com/sells-group/shiftscan/internal/metrics"
	"github.com/sells-group/shiftscan/internal/model"
	"github.com/sells-group/shiftscan/internal/normalize"
	"github.com/sells-group/shiftscan/internal/pipeline"
	"github.com/sells-group/shiftscan/internal/scorer"
	"github.com/sells-group/shiftscan/internal/session"
	"github.com/sells-group/shiftscan/internal/store"
)

// appEnv holds the components shared by the extract and serve commands.
type appEnv struct {
	Registry *extract.Registry
	Sessions *session.Manager
	Runs     store.Store // nil when store.driver is "none"
	Pipeline *pipeline.Pipeline

	sessionStore session.Store
}

// Close releases the session and run stores.
func (e *appEnv) Close() {
	if e.sessionStore != nil {
		_ = e.sessionStore.Close()
	}
	if e.Runs != nil {
		_ = e.Runs.Close()
	}
}

// initEnv builds the provider registry, dispatcher, stores and pipeline from
// cfg. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	reg, err := extract.NewRegistryFromConfig(cfg, metrics.BreakerStateChange)
	if err != nil {
		return nil, err
	}
	if reg.Len() == 0 {
		zap.L().Warn("no extraction providers configured, every submission will fail")
	}

	scoring, err := scorer.ConfigFromSettings(cfg.Scoring)
	if err != nil {
		return nil, eris.Wrap(err, "scoring config")
	}
	norm := normalize.New(normalize.OptionsFromConfig(cfg.Extract))
	disp := dispatch.New(reg, norm, scorer.New(scoring, norm.Placeholder()),
		time.Duration(cfg.Extract.DeadlineSecs)*time.Second)

	sessStore, err := session.NewStoreFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	runs, err := store.Open(ctx, cfg.Store)
	if err != nil {
		_ = sessStore.Close()
		return nil, eris.Wrap(err, "open run store")
	}

	sessions := session.NewManager(sessStore)
	env := &appEnv{
		Registry:     reg,
		Sessions:     sessions,
		Runs:         runs,
		Pipeline:     pipeline.New(cfg.Extract, sessions, reg, disp, runs),
		sessionStore: sessStore,
	}

	zap.L().Info("environment ready",
		zap.Any("providers", reg.List()),
		zap.String("session_backend", cfg.Session.Backend),
		zap.String("store_driver", cfg.Store.Driver),
	)
	return env, nil
}

// configuredProviders returns the provider list from config in order.
func configuredProviders() []model.ProviderID {
	out := make([]model.ProviderID, 0, len(cfg.Extract.Providers))
	for _, p := range cfg.Extract.Providers {
		out = append(out, model.ProviderID(p))
	}
	return out
}
