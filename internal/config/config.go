// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Market     MarketConfig     `mapstructure:"market"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	DB         DBConfig         `mapstructure:"db"`
	LogSink    LogSinkConfig    `mapstructure:"log_sink"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Match      MatchConfig      `mapstructure:"match"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// MarketConfig describes the listing site and the market boundary.
type MarketConfig struct {
	BaseURL          string   `mapstructure:"base_url"`
	Timezone         string   `mapstructure:"timezone"`
	DisallowedStates []string `mapstructure:"disallowed_states"`
	UserAgent        string   `mapstructure:"user_agent"`
}

// IngestConfig governs the ingestion worker pool.
type IngestConfig struct {
	Parallelism  int    `mapstructure:"parallelism"`
	SummaryTopic string `mapstructure:"summary_topic"`
}

// FetchConfig selects and tunes the page fetcher.
type FetchConfig struct {
	Provider       string `mapstructure:"provider"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
}

// HeadlessConfig configures the browser-backed fetcher.
type HeadlessConfig struct {
	MaxParallel   int `mapstructure:"max_parallel"`
	NavTimeoutSec int `mapstructure:"nav_timeout_seconds"`
}

// ClassifierConfig configures the seller-motivation classifier.
type ClassifierConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	BatchSize      int    `mapstructure:"batch_size"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMin int    `mapstructure:"max_conn_lifetime_minutes"`
}

// LogSinkConfig selects where run and failure records land.
type LogSinkConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	BaseDir  string `mapstructure:"base_dir"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// MatchConfig tunes filter evaluation.
type MatchConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LISTINGRADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("market.base_url", "https://utahrealestate.com")
	v.SetDefault("market.timezone", "America/Denver")
	v.SetDefault("market.disallowed_states", []string{"ID"})
	v.SetDefault("market.user_agent", "listingradar/1.0")
	v.SetDefault("ingest.parallelism", 20)
	v.SetDefault("ingest.summary_topic", "listing-runs")
	v.SetDefault("fetch.provider", "colly")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("classifier.model", "gpt-3.5-turbo")
	v.SetDefault("classifier.base_url", "https://api.openai.com/v1")
	v.SetDefault("classifier.batch_size", 5)
	v.SetDefault("classifier.timeout_seconds", 60)
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("log_sink.provider", "memory")
	v.SetDefault("match.page_size", 500)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Ingest.Parallelism <= 0 {
		return fmt.Errorf("ingest.parallelism must be > 0")
	}
	if c.Market.BaseURL == "" {
		return fmt.Errorf("market.base_url is required")
	}
	switch c.Fetch.Provider {
	case "colly", "headless":
	default:
		return fmt.Errorf("fetch.provider must be colly or headless, got %q", c.Fetch.Provider)
	}
	switch c.LogSink.Provider {
	case "gcs":
		if c.LogSink.Bucket == "" {
			return fmt.Errorf("log_sink.bucket is required for the gcs provider")
		}
	case "local":
		if c.LogSink.BaseDir == "" {
			return fmt.Errorf("log_sink.base_dir is required for the local provider")
		}
	case "memory":
	default:
		return fmt.Errorf("log_sink.provider must be gcs, local, or memory, got %q", c.LogSink.Provider)
	}
	if c.Match.PageSize <= 0 {
		return fmt.Errorf("match.page_size must be > 0")
	}
	if c.Classifier.BatchSize <= 0 {
		return fmt.Errorf("classifier.batch_size must be > 0")
	}
	return nil
}

// MaxConnLifetime returns the pool lifetime as a duration.
func (c DBConfig) MaxConnLifetime() time.Duration {
	return time.Duration(c.MaxConnLifetimeMin) * time.Minute
}

// Timeout returns the fetch timeout as a duration.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
