package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type Config struct {
	Server struct {
		Address         string        `yaml:"address" env:"ADDRESS"`
		ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
		WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	} `yaml:"server" envPrefix:"SERVER_"`

	Signal struct {
		PingInterval        time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
		PongTimeout         time.Duration `yaml:"pong_timeout" env:"PONG_TIMEOUT"`
		MaxMessageSizeBytes int64         `yaml:"max_message_size_bytes" env:"MAX_MESSAGE_SIZE_BYTES"`
	} `yaml:"signal" envPrefix:"SIGNAL_"`

	WebRTC struct {
		ICEServers []ICEServer `yaml:"ice_servers"`
		PortRange  struct {
			Min uint16 `yaml:"min" env:"MIN"`
			Max uint16 `yaml:"max" env:"MAX"`
		} `yaml:"port_range" envPrefix:"PORT_RANGE_"`
	} `yaml:"webrtc" envPrefix:"WEBRTC_"`

	// Session holds the defaults applied to session configurations that leave a field unset.
	Session struct {
		MaxParticipants      int           `yaml:"max_participants" env:"MAX_PARTICIPANTS"`
		RecordingEnabled     bool          `yaml:"recording_enabled" env:"RECORDING_ENABLED"`
		ScreenShareEnabled   bool          `yaml:"screen_share_enabled" env:"SCREEN_SHARE_ENABLED"`
		TranscriptionEnabled bool          `yaml:"transcription_enabled" env:"TRANSCRIPTION_ENABLED"`
		InvitationTTL        time.Duration `yaml:"invitation_ttl" env:"INVITATION_TTL"`
		IdleTTL              time.Duration `yaml:"idle_ttl" env:"IDLE_TTL"`
		Media                struct {
			Video            bool   `yaml:"video" env:"VIDEO"`
			Audio            bool   `yaml:"audio" env:"AUDIO"`
			Resolution       string `yaml:"resolution" env:"RESOLUTION"`
			FrameRate        int    `yaml:"frame_rate" env:"FRAME_RATE"`
			EchoCancellation bool   `yaml:"echo_cancellation" env:"ECHO_CANCELLATION"`
			NoiseSuppression bool   `yaml:"noise_suppression" env:"NOISE_SUPPRESSION"`
		} `yaml:"media" envPrefix:"MEDIA_"`
	} `yaml:"session" envPrefix:"SESSION_"`

	Compliance struct {
		AuditLogging      bool   `yaml:"audit_logging" env:"AUDIT_LOGGING"`
		HIPAACompliant    bool   `yaml:"hipaa_compliant" env:"HIPAA_COMPLIANT"`
		DataRetentionDays int    `yaml:"data_retention_days" env:"DATA_RETENTION_DAYS"`
		ArchiveBackend    string `yaml:"archive_backend" env:"ARCHIVE_BACKEND"` // memory|redis|postgres|file
		ArchiveDir        string `yaml:"archive_dir" env:"ARCHIVE_DIR"`
		MirrorBackend     string `yaml:"mirror_backend" env:"MIRROR_BACKEND"` // none|redis|postgres
	} `yaml:"compliance" envPrefix:"COMPLIANCE_"`

	Notification struct {
		Backend        string        `yaml:"backend" env:"BACKEND"` // log|redis|webhook
		WebhookURL     string        `yaml:"webhook_url" env:"WEBHOOK_URL"`
		WebhookTimeout time.Duration `yaml:"webhook_timeout" env:"WEBHOOK_TIMEOUT"`
		Channel        string        `yaml:"channel" env:"CHANNEL"`
	} `yaml:"notification" envPrefix:"NOTIFICATION_"`

	Monitoring struct {
		PrometheusEnabled bool          `yaml:"prometheus_enabled" env:"PROMETHEUS_ENABLED"`
		HealthInterval    time.Duration `yaml:"health_interval" env:"HEALTH_INTERVAL"`
	} `yaml:"monitoring" envPrefix:"MONITORING_"`

	Tracing struct {
		Enabled        bool    `yaml:"enabled" env:"ENABLED"`
		ServiceName    string  `yaml:"service_name" env:"SERVICE_NAME"`
		JaegerEndpoint string  `yaml:"jaeger_endpoint" env:"JAEGER_ENDPOINT"`
		SampleRate     float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	} `yaml:"tracing" envPrefix:"TRACING_"`

	Logging struct {
		Level  string `yaml:"level" env:"LEVEL"`
		Format string `yaml:"format" env:"FORMAT"`
	} `yaml:"logging" envPrefix:"LOG_"`

	Redis struct {
		Enabled  bool   `yaml:"enabled" env:"ENABLED"`
		Address  string `yaml:"address" env:"ADDRESS"`
		Password string `yaml:"password" env:"PASSWORD"`
		DB       int    `yaml:"db" env:"DB"`
		PoolSize int    `yaml:"pool_size" env:"POOL_SIZE"`
	} `yaml:"redis" envPrefix:"REDIS_"`

	Postgres struct {
		DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
		MaxConns    int32  `yaml:"max_conns" env:"MAX_CONNS"`
	} `yaml:"postgres" envPrefix:"POSTGRES_"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret" env:"JWT_SECRET"`
		APIKey         string        `yaml:"api_key" env:"API_KEY"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL"`
		AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	} `yaml:"auth" envPrefix:"AUTH_"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled" env:"ENABLED"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
			Burst             int     `yaml:"burst" env:"BURST"`
		} `yaml:"http" envPrefix:"HTTP_"`

		WebSocket struct {
			MessagesPerSecond float64 `yaml:"messages_per_second" env:"MESSAGES_PER_SECOND"`
			Burst             int     `yaml:"burst" env:"BURST"`
		} `yaml:"websocket" envPrefix:"WS_"`
	} `yaml:"rate_limiting" envPrefix:"RATE_LIMIT_"`
}

var (
	archiveBackends      = map[string]bool{"memory": true, "redis": true, "postgres": true, "file": true}
	mirrorBackends       = map[string]bool{"none": true, "redis": true, "postgres": true}
	notificationBackends = map[string]bool{"log": true, "redis": true, "webhook": true}
	resolutions          = map[string]bool{"720p": true, "1080p": true, "4k": true}
)

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be > signal.ping_interval")
	}
	if c.Signal.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("signal.max_message_size_bytes must be >= 0")
	}

	// WebRTC
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}

	// Session defaults
	if c.Session.MaxParticipants <= 0 {
		return fmt.Errorf("session.max_participants must be > 0")
	}
	if c.Session.InvitationTTL <= 0 {
		return fmt.Errorf("session.invitation_ttl must be > 0")
	}
	if c.Session.IdleTTL <= 0 {
		return fmt.Errorf("session.idle_ttl must be > 0")
	}
	if !resolutions[c.Session.Media.Resolution] {
		return fmt.Errorf("session.media.resolution must be one of 720p, 1080p, 4k")
	}
	if c.Session.Media.FrameRate <= 0 {
		return fmt.Errorf("session.media.frame_rate must be > 0")
	}

	// Compliance
	if !archiveBackends[c.Compliance.ArchiveBackend] {
		return fmt.Errorf("compliance.archive_backend %q is not supported", c.Compliance.ArchiveBackend)
	}
	if c.Compliance.ArchiveBackend == "file" && c.Compliance.ArchiveDir == "" {
		return fmt.Errorf("compliance.archive_dir must not be empty when archive_backend=file")
	}
	if !mirrorBackends[c.Compliance.MirrorBackend] {
		return fmt.Errorf("compliance.mirror_backend %q is not supported", c.Compliance.MirrorBackend)
	}
	if c.Compliance.DataRetentionDays < 0 {
		return fmt.Errorf("compliance.data_retention_days must be >= 0")
	}

	// Notification
	if !notificationBackends[c.Notification.Backend] {
		return fmt.Errorf("notification.backend %q is not supported", c.Notification.Backend)
	}
	if c.Notification.Backend == "webhook" && c.Notification.WebhookURL == "" {
		return fmt.Errorf("notification.webhook_url must not be empty when backend=webhook")
	}

	// Backends that need redis or postgres
	needsRedis := c.Compliance.ArchiveBackend == "redis" || c.Compliance.MirrorBackend == "redis" ||
		c.Notification.Backend == "redis"
	if needsRedis && !c.Redis.Enabled {
		return fmt.Errorf("redis.enabled must be true when a redis backend is selected")
	}
	needsPostgres := c.Compliance.ArchiveBackend == "postgres" || c.Compliance.MirrorBackend == "postgres"
	if needsPostgres && c.Postgres.DatabaseURL == "" {
		return fmt.Errorf("postgres.database_url must not be empty when a postgres backend is selected")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerEndpoint == "" {
			return fmt.Errorf("tracing.jaeger_endpoint must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and TELECARE_* env overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
			// fall back to defaults
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.MaxMessageSizeBytes = 64 * 1024

	cfg.WebRTC.ICEServers = []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

	cfg.Session.MaxParticipants = 4
	cfg.Session.RecordingEnabled = false
	cfg.Session.ScreenShareEnabled = true
	cfg.Session.TranscriptionEnabled = false
	cfg.Session.InvitationTTL = 24 * time.Hour
	cfg.Session.IdleTTL = 24 * time.Hour
	cfg.Session.Media.Video = true
	cfg.Session.Media.Audio = true
	cfg.Session.Media.Resolution = "720p"
	cfg.Session.Media.FrameRate = 30
	cfg.Session.Media.EchoCancellation = true
	cfg.Session.Media.NoiseSuppression = true

	cfg.Compliance.AuditLogging = true
	cfg.Compliance.HIPAACompliant = true
	cfg.Compliance.DataRetentionDays = 2555 // 7 years
	cfg.Compliance.ArchiveBackend = "memory"
	cfg.Compliance.ArchiveDir = "./data/compliance"
	cfg.Compliance.MirrorBackend = "none"

	cfg.Notification.Backend = "log"
	cfg.Notification.WebhookTimeout = 10 * time.Second
	cfg.Notification.Channel = "telecare:invitations"

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.HealthInterval = 30 * time.Second

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "telecared"
	cfg.Tracing.JaegerEndpoint = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Postgres.MaxConns = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.APIKey = "change-me-admin-key"
	cfg.Auth.AccessTokenTTL = 2 * time.Hour
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 20
	cfg.RateLimiting.WebSocket.Burst = 40

	return cfg
}

// applyEnvOverrides overwrites only the fields whose TELECARE_* variable is set.
func (c *Config) applyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: "TELECARE_"}); err != nil {
		return fmt.Errorf("environment variables are invalid: %w", err)
	}
	return nil
}
