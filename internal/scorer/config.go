// Package scorer computes a 0-1 trust score for one provider's normalized shifts.
package scorer

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/shiftscan/internal/config"
	"github.com/sells-group/shiftscan/internal/model"
)

// Config holds the scoring weights.
type Config struct {
	Base              float64                      `yaml:"base"`
	CompletenessBonus float64                      `yaml:"completeness_bonus"`
	PlausibilityBonus float64                      `yaml:"plausibility_bonus"`
	MinPlausibleRate  float64                      `yaml:"min_plausible_rate"`
	ProviderTrust     map[model.ProviderID]float64 `yaml:"provider_trust"`
}

// DefaultConfig returns the built-in weights.
func DefaultConfig() Config {
	return Config{
		Base:              0.5,
		CompletenessBonus: 0.05,
		PlausibilityBonus: 0.02,
		MinPlausibleRate:  800,
		ProviderTrust: map[model.ProviderID]float64{
			model.ProviderClaude:    0.20,
			model.ProviderMistral:   0.15,
			model.ProviderTesseract: 0.05,
		},
	}
}

// ConfigFromSettings builds a Config from application settings. When a
// profile path is set, the YAML profile is layered on top.
func ConfigFromSettings(s config.ScoringConfig) (Config, error) {
	cfg := DefaultConfig()
	if s.Base > 0 {
		cfg.Base = s.Base
	}
	if s.CompletenessBonus > 0 {
		cfg.CompletenessBonus = s.CompletenessBonus
	}
	if s.PlausibilityBonus > 0 {
		cfg.PlausibilityBonus = s.PlausibilityBonus
	}
	if s.MinPlausibleRate > 0 {
		cfg.MinPlausibleRate = s.MinPlausibleRate
	}
	for id, trust := range s.ProviderTrust {
		cfg.ProviderTrust[model.ProviderID(strings.ToLower(id))] = trust
	}

	if s.ProfilePath != "" {
		var err error
		cfg, err = LoadProfile(s.ProfilePath, cfg)
		if err != nil {
			return Config{}, err
		}
	}

	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadProfile reads a scoring profile from a YAML file and overlays it on
// base. Fields absent from the file keep their base values.
func LoadProfile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, eris.Wrapf(err, "scorer: read profile %s", path)
	}

	// The YAML has a top-level "scoring" key.
	var wrapper struct {
		Scoring struct {
			Base              *float64                     `yaml:"base"`
			CompletenessBonus *float64                     `yaml:"completeness_bonus"`
			PlausibilityBonus *float64                     `yaml:"plausibility_bonus"`
			MinPlausibleRate  *float64                     `yaml:"min_plausible_rate"`
			ProviderTrust     map[model.ProviderID]float64 `yaml:"provider_trust"`
		} `yaml:"scoring"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Config{}, eris.Wrap(err, "scorer: parse profile")
	}

	cfg := base
	cfg.ProviderTrust = make(map[model.ProviderID]float64, len(base.ProviderTrust))
	for id, trust := range base.ProviderTrust {
		cfg.ProviderTrust[id] = trust
	}

	p := wrapper.Scoring
	if p.Base != nil {
		cfg.Base = *p.Base
	}
	if p.CompletenessBonus != nil {
		cfg.CompletenessBonus = *p.CompletenessBonus
	}
	if p.PlausibilityBonus != nil {
		cfg.PlausibilityBonus = *p.PlausibilityBonus
	}
	if p.MinPlausibleRate != nil {
		cfg.MinPlausibleRate = *p.MinPlausibleRate
	}
	for id, trust := range p.ProviderTrust {
		cfg.ProviderTrust[id] = trust
	}

	return cfg, nil
}

// ValidateConfig checks that a Config is internally consistent.
func ValidateConfig(c Config) error {
	var errs []string

	if c.Base < 0 || c.Base > 1 {
		errs = append(errs, "base must be between 0 and 1")
	}
	if c.CompletenessBonus < 0 {
		errs = append(errs, "completeness_bonus must be >= 0")
	}
	if c.PlausibilityBonus < 0 {
		errs = append(errs, "plausibility_bonus must be >= 0")
	}
	if c.MinPlausibleRate < 0 {
		errs = append(errs, "min_plausible_rate must be >= 0")
	}
	for id, trust := range c.ProviderTrust {
		if trust < 0 || trust > 1 {
			errs = append(errs, fmt.Sprintf("provider_trust.%s must be between 0 and 1", id))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
