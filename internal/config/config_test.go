package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvTransformFunc(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"DB_DSN", "store.database_url"},
		{"DASHBOARD_PORT", "dashboard.port"},
		{"BOOTH_TOKEN_SECRET", "token.secret"},
		{"SESSION_TTL", "session.ttl"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			if got := envTransformFunc(tc.key); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photobox.yaml")
	content := []byte("dashboard:\n  port: \"9000\"\nxendit:\n  page_size: 50\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PHOTOBOX_CONFIG", path)
	t.Setenv("XENDIT_PAGE_SIZE", "25")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("DASHBOARD_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dashboard.Port != "9000" {
		t.Fatalf("expected port from file, got %q", cfg.Dashboard.Port)
	}
	if cfg.Xendit.PageSize != 25 {
		t.Fatalf("expected env to win over file, got %d", cfg.Xendit.PageSize)
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Fatalf("expected 30m session ttl, got %s", cfg.Session.TTL)
	}
	if cfg.Token.TTL != 12*time.Hour {
		t.Fatalf("expected default token ttl, got %s", cfg.Token.TTL)
	}
	if len(cfg.Dashboard.CORSOrigins) != 2 || cfg.Dashboard.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins: %v", cfg.Dashboard.CORSOrigins)
	}
}

func TestValidate(t *testing.T) {
	base := defaultConfig()
	base.Token.Secret = "0123456789abcdef"
	base.Store.DatabaseURL = "postgres://localhost/photobox"

	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"missing dsn", func(c *Config) { c.Store.DatabaseURL = "" }, ErrMissingDatabaseURL},
		{"mongo without uri", func(c *Config) { c.Store.Driver = "mongo" }, ErrMissingMongoURI},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }, ErrUnknownDriver},
		{"unknown session", func(c *Config) { c.Session.Backend = "file" }, ErrUnknownSession},
		{"short secret", func(c *Config) { c.Token.Secret = "short" }, ErrMissingSecret},
		{"memory store", func(c *Config) { c.Store.Driver = "memory"; c.Store.DatabaseURL = "" }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.want == nil && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
