// Package extract defines the extraction backends that turn a schedule image
// into a provider-specific RawPayload.
package extract

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shiftscan/internal/config"
	"github.com/sells-group/shiftscan/internal/model"
	"github.com/sells-group/shiftscan/internal/resilience"
	"github.com/sells-group/shiftscan/pkg/anthropic"
)

// Extractor is one extraction backend.
type Extractor interface {
	// ID returns the provider identifier the backend is registered under.
	ID() model.ProviderID
	// Extract reads img and returns the backend's raw response.
	Extract(ctx context.Context, img model.Image, hints model.Hints) (*model.RawPayload, error)
}

// Registry holds the configured extractors.
type Registry struct {
	mu         sync.RWMutex
	extractors map[model.ProviderID]Extractor
	breakers   *resilience.Breakers
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[model.ProviderID]Extractor)}
}

// Register adds e, replacing any extractor with the same ID.
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[e.ID()] = e
}

// Get returns the extractor for id.
func (r *Registry) Get(id model.ProviderID) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[id]
	return e, ok
}

// List returns the registered provider IDs, sorted.
func (r *Registry) List() []model.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]model.ProviderID, 0, len(r.extractors))
	for id := range r.extractors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered extractors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.extractors)
}

// Breakers returns the circuit breakers guarding the registered extractors,
// or nil when they are unguarded.
func (r *Registry) Breakers() *resilience.Breakers {
	return r.breakers
}

// NewRegistryFromConfig builds guarded extractors for every provider listed
// in cfg.Extract.Providers that has the credentials it needs. Providers
// missing credentials are skipped with a warning; the dispatcher reports
// them as unavailable.
func NewRegistryFromConfig(cfg *config.Config, onStateChange func(name string, from, to resilience.State)) (*Registry, error) {
	settings := resilience.FromConfig(cfg.Resilience)
	settings.Breaker.OnStateChange = onStateChange

	reg := NewRegistry()
	reg.breakers = resilience.NewBreakers(settings.Breaker)

	for _, name := range cfg.Extract.Providers {
		id := model.ProviderID(name)
		var e Extractor
		switch id {
		case model.ProviderClaude:
			if cfg.Anthropic.Key == "" {
				zap.L().Warn("extract: claude skipped, anthropic.key not set")
				continue
			}
			e = NewClaude(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
		case model.ProviderMistral:
			if cfg.Mistral.Key == "" {
				zap.L().Warn("extract: mistral skipped, mistral.key not set")
				continue
			}
			e = NewMistral(cfg.Mistral.Key, cfg.Mistral.Model, cfg.Mistral.Endpoint)
		case model.ProviderTesseract:
			if !cfg.Tesseract.Enabled {
				continue
			}
			e = NewTesseract(cfg.Tesseract.BinPath, cfg.Tesseract.Languages)
		default:
			return nil, eris.Errorf("extract: unknown provider %q", name)
		}
		reg.Register(NewGuard(e, reg.breakers, settings))
	}

	return reg, nil
}
