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
	Server    ServerConfig    `mapstructure:"server"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls the admin/control API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// FetcherConfig maps onto fetchmodel.FetcherPolicy.
type FetcherConfig struct {
	UserAgent          string  `mapstructure:"user_agent"`
	MaxThreads         int     `mapstructure:"max_threads"`
	ThreadsPerHost     int     `mapstructure:"threads_per_host"`
	CrawlDelaySeconds  int     `mapstructure:"crawl_delay_seconds"`
	MinResponseRateBps int64   `mapstructure:"min_response_rate_bps"`
	MaxContentSizeKiB  int64   `mapstructure:"max_content_size_kib"`
	MaxRedirects       int     `mapstructure:"max_redirects"`
	MaxGlobalRPS       float64 `mapstructure:"max_global_rps"`
	UseIPGrouping      bool    `mapstructure:"use_ip_grouping"`
	RobotsCacheSize    int     `mapstructure:"robots_cache_size"`
	CrawlDurationMins  int     `mapstructure:"crawl_duration_minutes"`
}

// HTTPConfig holds HTTP client settings. TimeoutSeconds sets the robots.txt
// fetch timeout. MaxRetries, BackoffInitialMs and BackoffMaxMs are loaded
// and defaulted but not read by either fetcher; both make up to three
// attempts with their own exponential backoff.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// StorageConfig selects and configures the ContentSink backend.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"` // "local", "gcs", or "memory"
	LocalDir    string `mapstructure:"local_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// QueueConfig selects and configures the StatusSink backend.
type QueueConfig struct {
	Backend   string `mapstructure:"backend"` // "pubsub" or "memory"
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TelemetryConfig controls the OpenTelemetry tracer provider.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment, env-prefixed POLITEFETCH_.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POLITEFETCH")
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
	v.SetDefault("fetcher.user_agent", "politefetch/0.1")
	v.SetDefault("fetcher.max_threads", 50)
	v.SetDefault("fetcher.threads_per_host", 1)
	v.SetDefault("fetcher.crawl_delay_seconds", 30)
	v.SetDefault("fetcher.min_response_rate_bps", 0)
	v.SetDefault("fetcher.max_content_size_kib", 64)
	v.SetDefault("fetcher.max_redirects", 5)
	v.SetDefault("fetcher.max_global_rps", 0)
	v.SetDefault("fetcher.use_ip_grouping", false)
	v.SetDefault("fetcher.robots_cache_size", 10000)
	v.SetDefault("fetcher.crawl_duration_minutes", 0)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./data/content")
	v.SetDefault("storage.prefix", "fetched")
	v.SetDefault("storage.content_type", "application/octet-stream")
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "politefetch")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetcher.MaxThreads <= 0 {
		return fmt.Errorf("fetcher.max_threads must be > 0")
	}
	if c.Fetcher.ThreadsPerHost <= 0 {
		return fmt.Errorf("fetcher.threads_per_host must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Storage.Backend {
	case "local", "gcs", "memory":
	default:
		return fmt.Errorf("storage.backend must be local, gcs or memory, got %q", c.Storage.Backend)
	}
	switch c.Queue.Backend {
	case "pubsub", "memory":
	default:
		return fmt.Errorf("queue.backend must be pubsub or memory, got %q", c.Queue.Backend)
	}
	return nil
}

// HTTPTimeout converts the configured HTTP timeout into a time.Duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
