package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got error: %v", err)
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "max participants must be > 0",
			mutate: func(c *Config) { c.Session.MaxParticipants = 0 },
		},
		{
			name:   "invitation ttl must be > 0",
			mutate: func(c *Config) { c.Session.InvitationTTL = 0 },
		},
		{
			name:   "idle ttl must be > 0",
			mutate: func(c *Config) { c.Session.IdleTTL = 0 },
		},
		{
			name:   "unknown resolution",
			mutate: func(c *Config) { c.Session.Media.Resolution = "480p" },
		},
		{
			name:   "unknown archive backend",
			mutate: func(c *Config) { c.Compliance.ArchiveBackend = "s3" },
		},
		{
			name: "file archive needs dir",
			mutate: func(c *Config) {
				c.Compliance.ArchiveBackend = "file"
				c.Compliance.ArchiveDir = ""
			},
		},
		{
			name:   "redis mirror without redis",
			mutate: func(c *Config) { c.Compliance.MirrorBackend = "redis" },
		},
		{
			name:   "postgres archive without url",
			mutate: func(c *Config) { c.Compliance.ArchiveBackend = "postgres" },
		},
		{
			name:   "webhook without url",
			mutate: func(c *Config) { c.Notification.Backend = "webhook" },
		},
		{
			name:   "pong timeout must exceed ping interval",
			mutate: func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval },
		},
		{
			name: "port range inverted",
			mutate: func(c *Config) {
				c.WebRTC.PortRange.Min = 50000
				c.WebRTC.PortRange.Max = 40000
			},
		},
		{
			name: "tracing sample rate out of range",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 1.5
			},
		},
		{
			name: "rate limit burst must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.HTTP.Burst = 0
			},
		},
		{
			name:   "jwt secret required",
			mutate: func(c *Config) { c.Auth.JWTSecret = "" },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Session.MaxParticipants != 4 {
		t.Errorf("expected default max participants 4, got %d", cfg.Session.MaxParticipants)
	}
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telecare.yaml")
	yaml := []byte(`
server:
  address: ":9000"
session:
  max_participants: 6
  recording_enabled: true
  invitation_ttl: 12h
compliance:
  archive_backend: file
  archive_dir: /tmp/archive
`)
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TELECARE_SERVER_ADDRESS", ":9100")
	t.Setenv("TELECARE_LOG_LEVEL", "debug")
	t.Setenv("TELECARE_SESSION_MEDIA_RESOLUTION", "1080p")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Address != ":9100" {
		t.Errorf("env override not applied, address = %s", cfg.Server.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("env override not applied, level = %s", cfg.Logging.Level)
	}
	if cfg.Session.Media.Resolution != "1080p" {
		t.Errorf("nested env override not applied, resolution = %s", cfg.Session.Media.Resolution)
	}
	if cfg.Session.MaxParticipants != 6 || !cfg.Session.RecordingEnabled {
		t.Errorf("yaml values not applied: %+v", cfg.Session)
	}
	if cfg.Session.InvitationTTL != 12*time.Hour {
		t.Errorf("expected invitation ttl 12h, got %s", cfg.Session.InvitationTTL)
	}
	if cfg.Compliance.ArchiveBackend != "file" {
		t.Errorf("expected file archive backend, got %s", cfg.Compliance.ArchiveBackend)
	}
	// untouched defaults survive both layers
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected default read timeout, got %s", cfg.Server.ReadTimeout)
	}
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	t.Setenv("TELECARE_SESSION_MAX_PARTICIPANTS", "many")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric max participants")
	}
}
