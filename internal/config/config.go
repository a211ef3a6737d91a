// Package config loads service configuration from defaults layered with
// SONIUM_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment variables read by Load.
const envPrefix = "SONIUM_"

// Config holds every tunable of the service.
type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string `koanf:"addr"`

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string `koanf:"database_url"`

	// SpotifyID and SpotifySecret enable the Spotify provider when both
	// are set.
	SpotifyID     string `koanf:"spotify_id"`
	SpotifySecret string `koanf:"spotify_secret"`

	// MusicBrainzContact is the contact address sent in the MusicBrainz
	// User-Agent, per their API etiquette.
	MusicBrainzContact string `koanf:"musicbrainz_contact"`

	// StalenessInterval is the maximum catalog age before a refresh.
	StalenessInterval time.Duration `koanf:"staleness_interval"`

	// ProviderTimeout bounds every provider call.
	ProviderTimeout time.Duration `koanf:"provider_timeout"`

	// RecentLimit is the batch size requested from providers.
	RecentLimit int `koanf:"recent_limit"`

	// RecentWindow is how far back the MusicBrainz recent-releases query
	// reaches.
	RecentWindow time.Duration `koanf:"recent_window"`

	// RefreshEvery is the background refresh check interval. The staleness
	// gate still decides whether each check does any work.
	RefreshEvery time.Duration `koanf:"refresh_every"`

	// LogLevel is a zerolog level name: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
}

func defaultConfig() *Config {
	return &Config{
		Addr:               ":8080",
		MusicBrainzContact: "sonium@example.com",
		StalenessInterval:  24 * time.Hour,
		ProviderTimeout:    10 * time.Second,
		RecentLimit:        50,
		RecentWindow:       90 * 24 * time.Hour,
		RefreshEvery:       time.Hour,
		LogLevel:           "info",
	}
}

// Load builds the configuration from defaults overridden by environment
// variables. SONIUM_DATABASE_URL maps to database_url and so on.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	envProvider := env.Provider(envPrefix, ".", func(key string) string {
		return strings.ToLower(strings.TrimPrefix(key, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("SONIUM_DATABASE_URL is required")
	}
	if c.StalenessInterval <= 0 {
		return fmt.Errorf("staleness interval must be positive, got %s", c.StalenessInterval)
	}
	if c.RecentLimit <= 0 {
		return fmt.Errorf("recent limit must be positive, got %d", c.RecentLimit)
	}
	return nil
}

// SpotifyEnabled reports whether Spotify credentials are configured.
func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyID != "" && c.SpotifySecret != ""
}
