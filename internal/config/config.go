package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"server"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"database"`
	Query     QueryConfig     `yaml:"query" envconfig:"query"`
	Corp      CorpConfig      `yaml:"corp" envconfig:"corp"`
	Auth      AuthConfig      `yaml:"auth" envconfig:"auth"`
	Expiry    ExpiryConfig    `yaml:"expiry" envconfig:"expiry"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics" envconfig:"metrics"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr" envconfig:"listen_addr"`
	BasePath     string        `yaml:"base_path" envconfig:"base_path"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"write_timeout"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" envconfig:"path"`
}

// QueryConfig bounds record store queries
type QueryConfig struct {
	Timeout    time.Duration `yaml:"timeout" envconfig:"timeout"`
	MaxResults int           `yaml:"max_results" envconfig:"max_results"`
}

// CorpConfig scopes the corporate certificate searches
type CorpConfig struct {
	DomainSuffix string `yaml:"domain_suffix" envconfig:"domain_suffix"`
}

// AuthConfig contains API key authentication configuration
type AuthConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"enabled"`
	// APIKeyHashes are SHA-256 hashes (base64, unpadded) of static keys
	APIKeyHashes []string `yaml:"api_key_hashes" envconfig:"api_key_hashes"`
}

// ExpiryConfig controls the expired flag sweep
type ExpiryConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"sweep_interval"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"level"`
	Format string `yaml:"format" envconfig:"format"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" envconfig:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" envconfig:"requests_per_minute"`
	Burst             int  `yaml:"burst" envconfig:"burst"`
}

// MetricsConfig contains Prometheus configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"enabled"`
}

// Default returns the configuration used for keys absent from the file
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   ":8080",
			BasePath:     "/v1",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "/var/lib/ctapi/ct.db",
		},
		Query: QueryConfig{
			Timeout:    10 * time.Second,
			MaxResults: 0,
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		Expiry: ExpiryConfig{
			SweepInterval: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 600,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Server.BasePath == "" || !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with '/'")
	}

	// Database validation
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// Query validation
	if c.Query.Timeout <= 0 {
		return fmt.Errorf("query.timeout must be positive")
	}
	if c.Query.MaxResults < 0 {
		return fmt.Errorf("query.max_results must not be negative")
	}

	// Corporate scope validation
	if c.Corp.DomainSuffix == "" {
		return fmt.Errorf("corp.domain_suffix is required")
	}
	if strings.HasPrefix(c.Corp.DomainSuffix, ".") {
		return fmt.Errorf("corp.domain_suffix must not start with '.'")
	}

	// Expiry validation
	if c.Expiry.SweepInterval < 0 {
		return fmt.Errorf("expiry.sweep_interval must not be negative")
	}

	// Logging validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}

	// Rate limit validation
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive")
	}
	if c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit.burst must not be negative")
	}

	return nil
}
