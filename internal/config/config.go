package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fortean/domain/stats"
	"fortean/internal/errors"
)

// Config holds the full application configuration. Load builds it once at
// startup; sessions receive it by reference and never re-read the environment.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Phrasing PhrasingConfig `yaml:"phrasing" mapstructure:"phrasing"`
	Research ResearchConfig `yaml:"research" mapstructure:"research"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the record store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PhrasingConfig configures the hypothesis phrasing service client.
type PhrasingConfig struct {
	Endpoint      string `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConcurrent int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	PerMinute     int    `yaml:"per_minute" mapstructure:"per_minute"`
}

// ResearchConfig configures the discovery and validation pipeline.
type ResearchConfig struct {
	SignificanceThreshold   float64 `yaml:"significance_threshold" mapstructure:"significance_threshold"`
	EffectSizeThreshold     float64 `yaml:"effect_size_threshold" mapstructure:"effect_size_threshold"`
	MinSampleSize           int     `yaml:"min_sample_size" mapstructure:"min_sample_size"`
	MaxHypothesesPerSession int     `yaml:"max_hypotheses_per_session" mapstructure:"max_hypotheses_per_session"`
	HoldoutFraction         float64 `yaml:"holdout_fraction" mapstructure:"holdout_fraction"`
	MonteCarloIterations    int     `yaml:"monte_carlo_iterations" mapstructure:"monte_carlo_iterations"`
	GridResolution          float64 `yaml:"grid_resolution" mapstructure:"grid_resolution"`
	Seed                    int64   `yaml:"seed" mapstructure:"seed"`
}

// IngestConfig configures record feed ingestion.
type IngestConfig struct {
	BatchSize  int `yaml:"batch_size" mapstructure:"batch_size"`
	MaxRecords int `yaml:"max_records" mapstructure:"max_records"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FORTEAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "fortean.db")
	v.SetDefault("phrasing.timeout_secs", 30)
	v.SetDefault("phrasing.max_concurrent", 2)
	v.SetDefault("phrasing.per_minute", 30)
	v.SetDefault("research.significance_threshold", 0.01)
	v.SetDefault("research.effect_size_threshold", 0.3)
	v.SetDefault("research.min_sample_size", 30)
	v.SetDefault("research.max_hypotheses_per_session", 10)
	v.SetDefault("research.holdout_fraction", 0.3)
	v.SetDefault("research.monte_carlo_iterations", 10000)
	v.SetDefault("research.grid_resolution", 0.25)
	v.SetDefault("ingest.batch_size", 500)
	v.SetDefault("ingest.max_records", 5000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return errors.ConfigInvalid("store driver must be sqlite or postgres, got " + c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return errors.ConfigInvalid("store database_url is required")
	}
	r := c.Research
	if r.SignificanceThreshold <= 0 || r.SignificanceThreshold >= 1 {
		return errors.ConfigInvalid("significance_threshold must be in (0, 1)")
	}
	if r.EffectSizeThreshold < 0 {
		return errors.ConfigInvalid("effect_size_threshold must not be negative")
	}
	if r.MinSampleSize < 1 {
		return errors.ConfigInvalid("min_sample_size must be at least 1")
	}
	if r.MaxHypothesesPerSession < 1 {
		return errors.ConfigInvalid("max_hypotheses_per_session must be at least 1")
	}
	if r.HoldoutFraction <= 0 || r.HoldoutFraction >= 1 {
		return errors.ConfigInvalid("holdout_fraction must be in (0, 1)")
	}
	if r.MonteCarloIterations < 100 {
		return errors.ConfigInvalid("monte_carlo_iterations must be at least 100")
	}
	if !supportedResolution(r.GridResolution) {
		return errors.ConfigInvalid("grid_resolution must be one of 0.25, 0.5, 1.0, 2.0")
	}
	if c.Ingest.BatchSize < 1 {
		return errors.ConfigInvalid("ingest batch_size must be at least 1")
	}
	if c.Ingest.MaxRecords < c.Ingest.BatchSize {
		return errors.ConfigInvalid("ingest max_records must be at least batch_size")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.ConfigInvalid("server port must be a valid TCP port")
	}
	return nil
}

// Thresholds converts the research settings into the shared statistical gate.
func (r ResearchConfig) Thresholds() stats.Thresholds {
	return stats.Thresholds{
		Significance: r.SignificanceThreshold,
		EffectSize:   r.EffectSizeThreshold,
	}
}

func supportedResolution(size float64) bool {
	for _, s := range []float64{0.25, 0.5, 1.0, 2.0} {
		if size == s {
			return true
		}
	}
	return false
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
