// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

// Package config provides layered configuration for Placerank using Koanf v2.
//
// Configuration is loaded in three layers with clear precedence:
//
//	Environment Variables > Config File (YAML) > Built-in Defaults
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Placerank server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Overpass OverpassConfig `koanf:"overpass"`
	Geocoder GeocoderConfig `koanf:"geocoder"`
	Embedder EmbedderConfig `koanf:"embedder"`
	Engine   EngineConfig   `koanf:"engine"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins lists allowed CORS origins. "*" allows all.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs is the per-IP request budget per RateLimitWindow.
	// Zero disables API rate limiting.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// OverpassConfig holds map-data backend settings.
type OverpassConfig struct {
	// Endpoint is the Overpass API interpreter URL.
	Endpoint string `koanf:"endpoint"`

	// Timeout bounds the query POST. Also emitted in the Overpass QL
	// header so the server aborts long-running queries itself.
	Timeout time.Duration `koanf:"timeout"`

	// MaxLimit caps the per-query element count a caller may request.
	MaxLimit int `koanf:"max_limit"`

	// BreakerEnabled wraps the backend call in a circuit breaker.
	BreakerEnabled bool `koanf:"breaker_enabled"`

	// BreakerFailures is the consecutive-failure count that opens the breaker.
	BreakerFailures int `koanf:"breaker_failures"`

	// BreakerCooldown is how long the breaker stays open before probing.
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

// GeocoderConfig holds Nominatim geocoder settings.
type GeocoderConfig struct {
	Endpoint  string `koanf:"endpoint"`
	UserAgent string `koanf:"user_agent"`

	// MinInterval is the minimum spacing between calls to the geocoder.
	// Nominatim's usage policy requires at most one request per second.
	MinInterval time.Duration `koanf:"min_interval"`

	// RetryAttempts bounds retries on transport failure.
	RetryAttempts int           `koanf:"retry_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
	Timeout       time.Duration `koanf:"timeout"`
}

// EmbedderConfig holds embedding service settings.
type EmbedderConfig struct {
	// BaseURL is an OpenAI-compatible embeddings endpoint
	// (text-embeddings-inference, Ollama's /v1 layer, LocalAI).
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// APIKey is sent as a bearer token when non-empty.
	APIKey string `koanf:"api_key"`

	Timeout time.Duration `koanf:"timeout"`
}

// EngineConfig holds recommendation pipeline settings.
type EngineConfig struct {
	// DefaultRadius is the search radius in meters when the request omits one.
	DefaultRadius int `koanf:"default_radius"`

	// MaxRadius caps the requested search radius.
	MaxRadius int `koanf:"max_radius"`

	// DefaultTagFilters is applied when the request carries no tag filters.
	DefaultTagFilters []string `koanf:"default_tag_filters"`

	// SearchLimit is the element cap passed to the map-data query.
	SearchLimit int `koanf:"search_limit"`

	// DefaultTopN and MaxTopN bound the result count.
	DefaultTopN int `koanf:"default_top_n"`
	MaxTopN     int `koanf:"max_top_n"`

	// OverfetchFactor multiplies topN when asking the ranker for candidates
	// so the post-filter chain has slack before truncation.
	OverfetchFactor int `koanf:"overfetch_factor"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8460,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
		},
		Overpass: OverpassConfig{
			Endpoint:        "https://overpass-api.de/api/interpreter",
			Timeout:         25 * time.Second,
			MaxLimit:        200,
			BreakerEnabled:  true,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Geocoder: GeocoderConfig{
			Endpoint:      "https://nominatim.openstreetmap.org",
			UserAgent:     "placerank/1.0 (+https://github.com/placerank/placerank)",
			MinInterval:   time.Second,
			RetryAttempts: 2,
			RetryDelay:    2 * time.Second,
			Timeout:       10 * time.Second,
		},
		Embedder: EmbedderConfig{
			BaseURL: "http://127.0.0.1:8080/v1",
			Model:   "all-mpnet-base-v2",
			APIKey:  "",
			Timeout: 15 * time.Second,
		},
		Engine: EngineConfig{
			DefaultRadius:     3000,
			MaxRadius:         50000,
			DefaultTagFilters: []string{"amenity=restaurant", "amenity=cafe"},
			SearchLimit:       25,
			DefaultTopN:       3,
			MaxTopN:           50,
			OverfetchFactor:   3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range [1, 65535]", c.Server.Port)
	}
	if c.Overpass.Endpoint == "" {
		return fmt.Errorf("overpass.endpoint must not be empty")
	}
	if c.Overpass.Timeout <= 0 {
		return fmt.Errorf("overpass.timeout must be positive")
	}
	if c.Geocoder.Endpoint == "" {
		return fmt.Errorf("geocoder.endpoint must not be empty")
	}
	if c.Geocoder.UserAgent == "" {
		// Nominatim rejects requests without an identifying User-Agent.
		return fmt.Errorf("geocoder.user_agent must not be empty")
	}
	if c.Geocoder.RetryAttempts < 0 {
		return fmt.Errorf("geocoder.retry_attempts must not be negative")
	}
	if c.Embedder.BaseURL == "" {
		return fmt.Errorf("embedder.base_url must not be empty")
	}
	if c.Embedder.Model == "" {
		return fmt.Errorf("embedder.model must not be empty")
	}
	if c.Engine.DefaultRadius <= 0 || c.Engine.DefaultRadius > c.Engine.MaxRadius {
		return fmt.Errorf("engine.default_radius %d out of range (0, %d]", c.Engine.DefaultRadius, c.Engine.MaxRadius)
	}
	if c.Engine.DefaultTopN <= 0 || c.Engine.DefaultTopN > c.Engine.MaxTopN {
		return fmt.Errorf("engine.default_top_n %d out of range (0, %d]", c.Engine.DefaultTopN, c.Engine.MaxTopN)
	}
	if c.Engine.OverfetchFactor < 1 {
		return fmt.Errorf("engine.overfetch_factor must be at least 1")
	}
	if c.Engine.SearchLimit <= 0 || c.Engine.SearchLimit > c.Overpass.MaxLimit {
		return fmt.Errorf("engine.search_limit %d out of range (0, %d]", c.Engine.SearchLimit, c.Overpass.MaxLimit)
	}
	return nil
}
