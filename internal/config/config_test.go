package config

import (
	"testing"
	"time"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("SONIUM_DATABASE_URL", "postgres://localhost/sonium")
	t.Setenv("SONIUM_ADDR", ":9090")
	t.Setenv("SONIUM_STALENESS_INTERVAL", "1h")
	t.Setenv("SONIUM_RECENT_LIMIT", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Addr)
	}
	if cfg.StalenessInterval != time.Hour {
		t.Errorf("StalenessInterval = %s, want 1h", cfg.StalenessInterval)
	}
	if cfg.RecentLimit != 25 {
		t.Errorf("RecentLimit = %d, want 25", cfg.RecentLimit)
	}
	// Untouched fields keep their defaults.
	if cfg.ProviderTimeout != 10*time.Second {
		t.Errorf("ProviderTimeout = %s, want default 10s", cfg.ProviderTimeout)
	}
	if cfg.SpotifyEnabled() {
		t.Error("SpotifyEnabled without credentials")
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("SONIUM_DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without a database URL")
	}
}

func TestSpotifyEnabledNeedsBothCredentials(t *testing.T) {
	t.Setenv("SONIUM_DATABASE_URL", "postgres://localhost/sonium")
	t.Setenv("SONIUM_SPOTIFY_ID", "id")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.SpotifyEnabled() {
		t.Error("SpotifyEnabled with only a client ID")
	}

	t.Setenv("SONIUM_SPOTIFY_SECRET", "secret")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.SpotifyEnabled() {
		t.Error("SpotifyEnabled = false with both credentials set")
	}
}
