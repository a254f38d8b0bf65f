package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Mistral    MistralConfig    `yaml:"mistral" mapstructure:"mistral"`
	Tesseract  TesseractConfig  `yaml:"tesseract" mapstructure:"tesseract"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run history database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite", "postgres" or "none"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SessionConfig configures the processing session table.
type SessionConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"` // "memory" or "redis"
	TTLMinutes int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
	MaxEntries int    `yaml:"max_entries" mapstructure:"max_entries"`
}

// RedisConfig holds Redis connection settings for the shared session backend.
type RedisConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Password  string `yaml:"password" mapstructure:"password"`
	DB        int    `yaml:"db" mapstructure:"db"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// ExtractConfig configures dispatch and consolidation.
type ExtractConfig struct {
	Providers                  []string `yaml:"providers" mapstructure:"providers"`
	DeadlineSecs               int      `yaml:"deadline_secs" mapstructure:"deadline_secs"`
	DefaultConfidenceThreshold float64  `yaml:"default_confidence_threshold" mapstructure:"default_confidence_threshold"`
	ConsensusBonus             float64  `yaml:"consensus_bonus" mapstructure:"consensus_bonus"`
	MaxImageBytes              int64    `yaml:"max_image_bytes" mapstructure:"max_image_bytes"`
	PlaceholderWorkplace       string   `yaml:"placeholder_workplace" mapstructure:"placeholder_workplace"`
	BaselineHourlyRate         float64  `yaml:"baseline_hourly_rate" mapstructure:"baseline_hourly_rate"`
	MaxHourlyRate              float64  `yaml:"max_hourly_rate" mapstructure:"max_hourly_rate"`
}

// ScoringConfig configures the confidence scorer.
type ScoringConfig struct {
	ProfilePath       string             `yaml:"profile_path" mapstructure:"profile_path"`
	Base              float64            `yaml:"base" mapstructure:"base"`
	CompletenessBonus float64            `yaml:"completeness_bonus" mapstructure:"completeness_bonus"`
	PlausibilityBonus float64            `yaml:"plausibility_bonus" mapstructure:"plausibility_bonus"`
	MinPlausibleRate  float64            `yaml:"min_plausible_rate" mapstructure:"min_plausible_rate"`
	ProviderTrust     map[string]float64 `yaml:"provider_trust" mapstructure:"provider_trust"`
}

// AnthropicConfig holds Anthropic API settings for the vision provider.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// MistralConfig holds Mistral OCR API settings.
type MistralConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	Model    string `yaml:"model" mapstructure:"model"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

// TesseractConfig configures the local tesseract OCR binary.
type TesseractConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	BinPath   string `yaml:"bin_path" mapstructure:"bin_path"`
	Languages string `yaml:"languages" mapstructure:"languages"`
}

// ResilienceConfig configures retry, circuit breaking and rate limiting around
// each provider call.
type ResilienceConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	RatePerSecond    float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst        int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures run-history alerting while serving.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ReviewRateThreshold  float64 `yaml:"review_rate_threshold" mapstructure:"review_rate_threshold"`
	MinRuns              int     `yaml:"min_runs" mapstructure:"min_runs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SHIFTSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "shiftscan.db")
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl_minutes", 60)
	v.SetDefault("session.max_entries", 10000)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.key_prefix", "shiftscan:session:")
	v.SetDefault("extract.providers", []string{"claude", "mistral", "tesseract"})
	v.SetDefault("extract.deadline_secs", 45)
	v.SetDefault("extract.default_confidence_threshold", 0.7)
	v.SetDefault("extract.consensus_bonus", 0.1)
	v.SetDefault("extract.max_image_bytes", 10<<20)
	v.SetDefault("extract.placeholder_workplace", "Unknown workplace")
	v.SetDefault("extract.baseline_hourly_rate", 1000)
	v.SetDefault("extract.max_hourly_rate", 10000)
	v.SetDefault("scoring.profile_path", "")
	v.SetDefault("scoring.base", 0.5)
	v.SetDefault("scoring.completeness_bonus", 0.05)
	v.SetDefault("scoring.plausibility_bonus", 0.02)
	v.SetDefault("scoring.min_plausible_rate", 800)
	v.SetDefault("scoring.provider_trust", map[string]float64{
		"claude":    0.20,
		"mistral":   0.15,
		"tesseract": 0.05,
	})
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("mistral.key", "")
	v.SetDefault("mistral.model", "mistral-ocr-latest")
	v.SetDefault("mistral.endpoint", "https://api.mistral.ai/v1/ocr")
	v.SetDefault("tesseract.enabled", true)
	v.SetDefault("tesseract.bin_path", "tesseract")
	v.SetDefault("tesseract.languages", "jpn+eng")
	v.SetDefault("resilience.max_attempts", 2)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 5000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("resilience.rate_per_second", 5.0)
	v.SetDefault("resilience.rate_burst", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.review_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_runs", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it starts. mode is the
// command name ("serve", "extract", "runs").
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Extract.DefaultConfidenceThreshold < 0 || c.Extract.DefaultConfidenceThreshold > 1 {
		errs = append(errs, "extract.default_confidence_threshold must be within [0,1]")
	}
	if c.Extract.DeadlineSecs <= 0 {
		errs = append(errs, "extract.deadline_secs must be > 0")
	}
	if c.Extract.ConsensusBonus < 0 {
		errs = append(errs, "extract.consensus_bonus must be >= 0")
	}
	switch c.Session.Backend {
	case "memory", "":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, "redis.addr is required for session.backend=redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("session.backend %q is not supported", c.Session.Backend))
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
		if c.Monitoring.Enabled && (c.Store.Driver == "none" || c.Store.Driver == "") {
			errs = append(errs, "monitoring requires a store.driver")
		}
	case "runs":
		if c.Store.Driver == "none" || c.Store.Driver == "" {
			errs = append(errs, "store.driver is required to list runs")
		}
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
