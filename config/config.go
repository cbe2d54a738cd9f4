// Package config manages application configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"ytrss/internal/retry"
	"ytrss/upstream"
)

const (
	envPrefix = "YTRSS"
	appName   = "ytrss"
)

// Config holds all application configuration for serving translated feeds.
//
// The listen address and base URL are read from LISTENING_ADDRESS and
// BASE_URL as well as their YTRSS_ prefixed forms. Every other field is read
// from YTRSS_<FIELD_NAME>, e.g. YTRSS_CACHE_TTL.
type Config struct {
	// ListenAddr is the address the HTTP server binds, e.g. 0.0.0.0:8080.
	ListenAddr string `yaml:"listen_address" envconfig:"LISTENING_ADDRESS"`
	// BaseURL is the public URL of this service. Self links of translated
	// feeds point at {BaseURL}/channel/{id}.
	BaseURL string `yaml:"base_url" envconfig:"BASE_URL"`

	// RequestTimeout bounds a single request to YouTube.
	RequestTimeout time.Duration `yaml:"request_timeout" split_words:"true"`
	// MaxRetries is the maximum number of retries for a failed fetch.
	MaxRetries int `yaml:"max_retries" split_words:"true"`
	// InitialBackoff is the initial backoff duration for retries.
	InitialBackoff time.Duration `yaml:"initial_backoff" split_words:"true"`
	// MaxBackoff is the maximum backoff duration for retries.
	MaxBackoff time.Duration `yaml:"max_backoff" split_words:"true"`
	// BackoffMultiplier is the multiplier for exponential backoff (must be > 1).
	BackoffMultiplier float64 `yaml:"backoff_multiplier" split_words:"true"`
	// FeedRPS paces requests to YouTube (0 = unpaced).
	FeedRPS float64 `yaml:"feed_rps" split_words:"true"`

	// CacheTTL is how long a translated feed is served from cache (0 = off).
	CacheTTL time.Duration `yaml:"cache_ttl" split_words:"true"`
	// RedisAddr selects the Redis cache when set; otherwise the cache is
	// in-process.
	RedisAddr string `yaml:"redis_address" split_words:"true"`

	// SanitizeDescriptions strips markup from video descriptions.
	SanitizeDescriptions bool `yaml:"sanitize_descriptions" split_words:"true"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" split_words:"true"`
}

// DefaultConfig returns configuration with safe defaults. BaseURL has no
// default and must be provided.
func DefaultConfig() *Config {
	rc := retry.DefaultConfig()
	return &Config{
		ListenAddr:        "0.0.0.0:8080",
		RequestTimeout:    10 * time.Second,
		MaxRetries:        rc.MaxRetries,
		InitialBackoff:    rc.InitialBackoff,
		MaxBackoff:        rc.MaxBackoff,
		BackoffMultiplier: rc.Multiplier,
		FeedRPS:           upstream.DefaultRateLimitConfig().RPS,
		CacheTTL:          15 * time.Minute,
		LogLevel:          "info",
	}
}

// Load loads configuration from environment variables, config file, and applies defaults.
// Priority: env vars > config file > defaults
func Load() (*Config, error) {
	paths := []string{
		appName + ".yaml",
		filepath.Join(os.Getenv("HOME"), ".config", appName, appName+".yaml"),
	}
	if p := os.Getenv(envPrefix + "_CONFIG_FILE"); p != "" {
		paths = []string{p}
	}
	return load(paths)
}

func load(paths []string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(paths); err != nil {
		// Config file is optional
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads the first config file that exists among paths.
func (c *Config) loadFromFile(paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}
	return os.ErrNotExist
}

// Validate checks that configuration values are valid and consistent.
// It returns an error if any configuration value is invalid.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_address must be set (LISTENING_ADDRESS)")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must be set (BASE_URL)")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute http(s) url, got %q", c.BaseURL)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.MaxBackoff <= 0 {
		return fmt.Errorf("max_backoff must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	if c.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be > 1")
	}
	if c.FeedRPS < 0 {
		return fmt.Errorf("feed_rps must be non-negative")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must be non-negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Retry returns the retry settings for feed fetches.
func (c *Config) Retry() retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxRetries = c.MaxRetries
	rc.InitialBackoff = c.InitialBackoff
	rc.MaxBackoff = c.MaxBackoff
	rc.Multiplier = c.BackoffMultiplier
	return rc
}

// Upstream returns the fetcher configuration.
func (c *Config) Upstream() upstream.Config {
	uc := upstream.DefaultConfig()
	uc.Timeout = c.RequestTimeout
	uc.Retry = c.Retry()
	uc.RateLimit.RPS = c.FeedRPS
	return uc
}
