package scorer

import (
	"math"

	"github.com/sells-group/shiftscan/internal/model"
)

// Scorer rates how far a provider's shift list can be trusted. It is
// deterministic and performs no I/O.
type Scorer struct {
	cfg         Config
	placeholder string
}

// New creates a Scorer. placeholder is the workplace label the normalizer
// substitutes for missing names; records carrying it are not complete.
func New(cfg Config, placeholder string) *Scorer {
	return &Scorer{cfg: cfg, placeholder: placeholder}
}

// Trust returns the fixed bonus configured for provider.
func (s *Scorer) Trust(provider model.ProviderID) float64 {
	return s.cfg.ProviderTrust[provider]
}

// Score returns the confidence for shifts produced by provider, in [0,1].
// An empty list scores 0.
func (s *Scorer) Score(shifts []model.ShiftRecord, provider model.ProviderID) float64 {
	if len(shifts) == 0 {
		return 0
	}

	score := s.cfg.Base + s.Trust(provider)
	for _, sh := range shifts {
		if s.complete(sh) {
			score += s.cfg.CompletenessBonus
		}
		// Rates the normalizer defaulted to its baseline count too.
		if sh.HourlyRate > s.cfg.MinPlausibleRate {
			score += s.cfg.PlausibilityBonus
		}
	}

	return math.Max(0, math.Min(1, score))
}

func (s *Scorer) complete(sh model.ShiftRecord) bool {
	return sh.Date != "" && sh.StartTime != "" && sh.EndTime != "" &&
		sh.WorkplaceName != "" && sh.WorkplaceName != s.placeholder
}
