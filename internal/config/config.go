// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

// Package config defines the service configuration and loads it from
// layered sources: built-in defaults, an optional YAML file, then
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`
}

// MetricsConfig holds the visitor-metrics pipeline settings.
type MetricsConfig struct {
	// HashSecret keys the visitor hash. Empty means a random per-process
	// secret: counts then reset their identity space on every restart.
	HashSecret string `koanf:"hash_secret"`

	// StoragePath is the BadgerDB directory for daily summaries.
	StoragePath string `koanf:"storage_path" validate:"required"`

	// RetentionDays of history kept beyond the current day.
	RetentionDays int `koanf:"retention_days" validate:"min=1,max=3650"`

	// FlushInterval between persistence cycles.
	FlushInterval time.Duration `koanf:"flush_interval" validate:"min=10s"`

	// TrackBots is recognized but currently has no effect on counting.
	TrackBots bool `koanf:"track_bots"`
}

// SecurityConfig holds the CORS and rate-limit settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"min=1s"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds the zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, overridden by file and env.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    3858,
			Timeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			HashSecret:    "",
			StoragePath:   "/data/visitord",
			RetentionDays: 60,
			FlushInterval: 5 * time.Minute,
			TrackBots:     true,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration against the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var invalid []string
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				invalid = append(invalid, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %v", invalid)
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
