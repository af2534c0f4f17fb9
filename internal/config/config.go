// Package config provides configuration management with hot-reload
// support. It uses fsnotify to watch for file changes and atomic
// pointer swaps for zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wordisle/lexiforge/internal/cache"
	"github.com/wordisle/lexiforge/internal/dictprov"
	"github.com/wordisle/lexiforge/internal/llm"
	"github.com/wordisle/lexiforge/internal/pipeline"
	"github.com/wordisle/lexiforge/internal/resilience"
	"github.com/wordisle/lexiforge/internal/resolver"
	"github.com/wordisle/lexiforge/internal/store"
	"github.com/wordisle/lexiforge/internal/synth"
)

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig                 `yaml:"server"`
	Logging    LoggingConfig                `yaml:"logging"`
	LLM        llm.Config                   `yaml:"llm"`
	Providers  []dictprov.Config            `yaml:"providers"`
	Fetcher    dictprov.FetcherConfig       `yaml:"fetcher"`
	RateLimit  resilience.HostLimiterConfig `yaml:"rate_limit"`
	Cache      cache.Config                 `yaml:"cache"`
	Redis      store.RedisConfig            `yaml:"redis"`
	Pipeline   pipeline.Config              `yaml:"pipeline"`
	Resolver   resolver.Config              `yaml:"resolver"`
	Vocabulary VocabularyConfig             `yaml:"vocabulary"`
	Synthesis  synth.Config                 `yaml:"synthesis"`
	Metrics    MetricsConfig                `yaml:"metrics"`
	Tracing    TracingConfig                `yaml:"tracing"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// VocabularyConfig points at the newline-delimited word list the
// resolver indexes at startup.
type VocabularyConfig struct {
	Path     string `yaml:"path"`
	Language string `yaml:"language"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
	Insecure    bool    `yaml:"insecure"`
}

// DefaultConfig returns a configuration with sensible defaults. The
// write timeout is generous because SSE lookups hold the connection
// open for the life of the pipeline.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		LLM:       llm.DefaultConfig(),
		Fetcher:   dictprov.DefaultFetcherConfig(),
		RateLimit: resilience.DefaultHostLimiterConfig(),
		Cache: cache.Config{
			DiskRoot: "data/cache",
		},
		Redis: store.DefaultRedisConfig(),
		Vocabulary: VocabularyConfig{
			Path:     "data/words.txt",
			Language: "en",
		},
		Pipeline:  pipeline.DefaultConfig(),
		Resolver:  resolver.DefaultConfig(),
		Synthesis: synth.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			ServiceName: "lexiforge",
			SampleRate:  1.0,
			Insecure:    true,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one dictionary provider must be configured")
	}
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider[%d]: name is required", i)
		}
		if p.Type == "" {
			return fmt.Errorf("provider[%d] %q: type is required", i, p.Name)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("provider[%d] %q: timeout cannot be negative", i, p.Name)
		}
	}

	if c.Pipeline.AIEnabled && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required when pipeline.ai_enabled is true")
	}
	if c.Cache.DiskRoot == "" {
		return fmt.Errorf("cache.disk_root is required")
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.Resolver.Validate(); err != nil {
		return fmt.Errorf("resolver: %w", err)
	}
	if err := c.Synthesis.Validate(); err != nil {
		return fmt.Errorf("synthesis: %w", err)
	}

	return nil
}
