package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Spool    SpoolConfig    `mapstructure:"spool"`
	Tenant   TenantConfig   `mapstructure:"tenant"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type IngestConfig struct {
	// Transport selects the gate: "http" or "nats".
	Transport     string        `mapstructure:"transport"`
	URL           string        `mapstructure:"url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	NatsURL       string        `mapstructure:"nats_url"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
}

type PipelineConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	SamplingRate          float64       `mapstructure:"sampling_rate"`
	BatchSize             int           `mapstructure:"batch_size"`
	CriticalFlushInterval time.Duration `mapstructure:"critical_flush_interval"`
	FlushInterval         time.Duration `mapstructure:"flush_interval"`
	DebounceWindow        time.Duration `mapstructure:"debounce_window"`
}

type TrackerConfig struct {
	HoverDelay     time.Duration `mapstructure:"hover_delay"`
	ScrollThrottle time.Duration `mapstructure:"scroll_throttle"`
	ScrollMinDelta float64       `mapstructure:"scroll_min_delta"`
}

type SpoolConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	RedisURL string `mapstructure:"redis_url"`
	Key      string `mapstructure:"key"`
}

type TenantConfig struct {
	// ID is a statically configured tenant identifier, checked after the
	// runtime resolution sources.
	ID string `mapstructure:"id"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8098)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("ingest.transport", "http")
	v.SetDefault("ingest.url", "http://localhost:8090")
	v.SetDefault("ingest.timeout", "10s")
	v.SetDefault("ingest.nats_url", "nats://localhost:4222")
	v.SetDefault("ingest.subject_prefix", "tracklight.batches")
	v.SetDefault("pipeline.enabled", true)
	v.SetDefault("pipeline.sampling_rate", 1.0)
	v.SetDefault("pipeline.batch_size", 100)
	v.SetDefault("pipeline.critical_flush_interval", "10s")
	v.SetDefault("pipeline.flush_interval", "30s")
	v.SetDefault("pipeline.debounce_window", "1s")
	v.SetDefault("tracker.hover_delay", "500ms")
	v.SetDefault("tracker.scroll_throttle", "1s")
	v.SetDefault("tracker.scroll_min_delta", 50.0)
	v.SetDefault("spool.enabled", false)
	v.SetDefault("spool.redis_url", "redis://localhost:6379/0")
	v.SetDefault("spool.key", "tracklight:spool")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tracklight")
	}

	// Environment variables override
	v.SetEnvPrefix("TRACKLIGHT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Pipeline.SamplingRate < 0 {
		cfg.Pipeline.SamplingRate = 0
	}
	if cfg.Pipeline.SamplingRate > 1 {
		cfg.Pipeline.SamplingRate = 1
	}
	if cfg.Ingest.Transport != "http" && cfg.Ingest.Transport != "nats" {
		return nil, fmt.Errorf("unknown ingest transport: %s", cfg.Ingest.Transport)
	}

	return &cfg, nil
}
