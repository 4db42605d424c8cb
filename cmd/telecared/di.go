package main

import (
	"context"
	"fmt"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/internal/core/services"
	httphandlers "telecare/internal/handlers/http"
	"telecare/internal/infrastructure/distributed"
	"telecare/internal/infrastructure/middleware"
	"telecare/internal/infrastructure/monitoring"
	"telecare/internal/infrastructure/notification"
	"telecare/internal/infrastructure/reliability"
	"telecare/internal/infrastructure/repositories"
	"telecare/internal/infrastructure/retention"
	"telecare/internal/infrastructure/signal"
	webrtcinfra "telecare/internal/infrastructure/webrtc"
	"telecare/pkg/circuitbreaker"
	"telecare/pkg/config"
	"telecare/pkg/retry"

	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	repositoryInitTimeout = 15 * time.Second
	healthCheckTimeout    = 2 * time.Second
	ownershipTTL          = 24 * time.Hour
	retentionInterval     = time.Hour
)

// instanceID tags event bus messages published by this process.
type instanceID string

func setupDI(cfg *config.Config, logger *zap.SugaredLogger, instance string) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, logger)
	do.ProvideValue(injector, instanceID(instance))

	registerStorage(injector)
	registerDistributed(injector)
	registerMedia(injector)
	registerCore(injector)
	registerTransport(injector)

	return injector
}

func registerStorage(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*repositories.RepositoryFactory, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.SugaredLogger](i)
		ctx, cancel := context.WithTimeout(context.Background(), repositoryInitTimeout)
		defer cancel()
		return repositories.NewRepositoryFactory(ctx, cfg, log)
	})

	do.Provide(injector, func(i do.Injector) (*reliability.ArchiveWrapper, error) {
		factory := do.MustInvoke[*repositories.RepositoryFactory](i)
		archive, err := factory.CreateComplianceArchive()
		if err != nil {
			return nil, fmt.Errorf("failed to create compliance archive: %w", err)
		}
		return reliability.NewArchiveWrapper(archive, retry.DefaultConfig(), circuitbreaker.DefaultConfig()), nil
	})

	// A nil wrapper means ledger mirroring is off.
	do.Provide(injector, func(i do.Injector) (*reliability.SinkWrapper, error) {
		factory := do.MustInvoke[*repositories.RepositoryFactory](i)
		log := do.MustInvoke[*zap.SugaredLogger](i)
		sink := factory.CreateEventSink()
		if sink == nil {
			return nil, nil
		}
		return reliability.NewSinkWrapper(sink, retry.DefaultConfig(), circuitbreaker.DefaultConfig(), log), nil
	})

	do.Provide(injector, func(i do.Injector) (*monitoring.PrometheusCollector, error) {
		return monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer), nil
	})
}

func registerDistributed(injector do.Injector) {
	// The bus and ownership registry need redis; both are nil without it.
	do.Provide(injector, func(i do.Injector) (*distributed.EventBus, error) {
		cfg := do.MustInvoke[*config.Config](i)
		factory := do.MustInvoke[*repositories.RepositoryFactory](i)
		log := do.MustInvoke[*zap.SugaredLogger](i)
		client := factory.RedisClient()
		if client == nil {
			return nil, nil
		}
		id := do.MustInvoke[instanceID](i)
		return distributed.NewEventBus(client, string(id), cfg.Notification.Channel, log), nil
	})

	do.Provide(injector, func(i do.Injector) (*distributed.SessionOwnership, error) {
		factory := do.MustInvoke[*repositories.RepositoryFactory](i)
		log := do.MustInvoke[*zap.SugaredLogger](i)
		client := factory.RedisClient()
		if client == nil {
			return nil, nil
		}
		return distributed.NewSessionOwnership(client, ownershipTTL, log), nil
	})

	do.Provide(injector, func(i do.Injector) (ports.InvitationNotifier, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.SugaredLogger](i)
		switch cfg.Notification.Backend {
		case "webhook":
			return notification.NewWebhookNotifier(cfg.Notification.WebhookURL, cfg.Notification.WebhookTimeout, log), nil
		case "redis":
			if bus := do.MustInvoke[*distributed.EventBus](i); bus != nil {
				return bus, nil
			}
			log.Warn("Redis unavailable, logging invitations instead")
		}
		return notification.NewLogNotifier(log), nil
	})
}

func registerMedia(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*webrtcinfra.PionMediaCapability, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.SugaredLogger](i)

		media := webrtcinfra.Config{ICEServers: iceServers(cfg)}
		media.PortRange.Min = cfg.WebRTC.PortRange.Min
		media.PortRange.Max = cfg.WebRTC.PortRange.Max
		return webrtcinfra.NewPionMediaCapability(media, log)
	})

	do.Provide(injector, func(i do.Injector) (*webrtcinfra.QualityMonitor, error) {
		log := do.MustInvoke[*zap.SugaredLogger](i)
		collector := do.MustInvoke[*monitoring.PrometheusCollector](i)
		monitor := webrtcinfra.NewQualityMonitor(webrtcinfra.DefaultQualityThresholds(), log)
		monitor.OnSample(collector.RecordConnectionQuality)
		return monitor, nil
	})
}

func registerCore(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*services.SessionRegistry, error) {
		media := do.MustInvoke[*webrtcinfra.PionMediaCapability](i)
		archive := do.MustInvoke[*reliability.ArchiveWrapper](i)
		cfg := do.MustInvoke[*config.Config](i)
		return services.NewSessionRegistry(services.Dependencies{
			Media:    media,
			Sink:     sinkPort(do.MustInvoke[*reliability.SinkWrapper](i)),
			Notifier: do.MustInvoke[ports.InvitationNotifier](i),
			Policy:   services.DefaultPermissionPolicy{},
			Archive:  archive,
			Metrics:  do.MustInvoke[*monitoring.PrometheusCollector](i),
			Logger:   do.MustInvoke[*zap.SugaredLogger](i),
			IdleTTL:  cfg.Session.IdleTTL,
		}), nil
	})

	do.Provide(injector, func(i do.Injector) (ports.AuthService, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, nil), nil
	})

	do.Provide(injector, func(i do.Injector) (*retention.Scheduler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		archive := do.MustInvoke[*reliability.ArchiveWrapper](i)
		// Redis and postgres archives expire exports on their own.
		pruner, _ := archive.ComplianceArchive.(retention.ArchivePruner)
		return retention.NewScheduler(
			do.MustInvoke[*services.SessionRegistry](i),
			pruner,
			retention.Config{Interval: retentionInterval, RetentionDays: cfg.Compliance.DataRetentionDays},
			do.MustInvoke[*zap.SugaredLogger](i),
		), nil
	})

	do.Provide(injector, func(i do.Injector) (*monitoring.HealthChecker, error) {
		cfg := do.MustInvoke[*config.Config](i)
		factory := do.MustInvoke[*repositories.RepositoryFactory](i)
		interval := cfg.Monitoring.HealthInterval

		checker := monitoring.NewHealthChecker()
		if client := factory.RedisClient(); client != nil {
			checker.AddRedisCheck(client, interval, healthCheckTimeout)
		}
		checker.AddCheck("repositories", factory.HealthCheck, interval, healthCheckTimeout)
		checker.AddArchiveCheck(do.MustInvoke[*reliability.ArchiveWrapper](i), interval, healthCheckTimeout)
		if sink := do.MustInvoke[*reliability.SinkWrapper](i); sink != nil {
			checker.AddBreakerCheck("ledger_mirror", sink.State, interval)
		}
		return checker, nil
	})
}

func registerTransport(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*signal.WebSocketServer, error) {
		cfg := do.MustInvoke[*config.Config](i)

		var limiter *middleware.LimiterStore
		if cfg.RateLimiting.Enabled {
			limiter = middleware.NewLimiterStore(
				rate.Limit(cfg.RateLimiting.WebSocket.MessagesPerSecond),
				cfg.RateLimiting.WebSocket.Burst,
			)
		}
		return signal.NewWebSocketServer(signal.Config{
			PingInterval:   cfg.Signal.PingInterval,
			PongTimeout:    cfg.Signal.PongTimeout,
			MaxMessageSize: cfg.Signal.MaxMessageSizeBytes,
			AllowedOrigins: cfg.Auth.AllowedOrigins,
		}, signal.Dependencies{
			Sessions:  do.MustInvoke[*services.SessionRegistry](i),
			Auth:      do.MustInvoke[ports.AuthService](i),
			Quality:   do.MustInvoke[*webrtcinfra.QualityMonitor](i),
			Limiter:   limiter,
			Publisher: publisherPort(do.MustInvoke[*distributed.EventBus](i)),
			Logger:    do.MustInvoke[*zap.SugaredLogger](i),
		}), nil
	})

	do.Provide(injector, func(i do.Injector) (*httphandlers.SessionHandler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		factory := do.MustInvoke[*repositories.RepositoryFactory](i)

		deps := httphandlers.Dependencies{
			Sessions:  do.MustInvoke[*services.SessionRegistry](i),
			Auth:      do.MustInvoke[ports.AuthService](i),
			Archive:   do.MustInvoke[*reliability.ArchiveWrapper](i),
			Publisher: publisherPort(do.MustInvoke[*distributed.EventBus](i)),
			Defaults:  sessionDefaults(cfg),
			APIKey:    cfg.Auth.APIKey,
			Logger:    do.MustInvoke[*zap.SugaredLogger](i),
		}
		if reader, ok := factory.CreateEventSink().(ports.ComplianceEventReader); ok {
			deps.Events = reader
		}
		if ownership := do.MustInvoke[*distributed.SessionOwnership](i); ownership != nil {
			deps.Ownership = ownership
		}
		return httphandlers.NewSessionHandler(deps), nil
	})
}

// sinkPort and publisherPort keep nil pointers from becoming non-nil interfaces.
func sinkPort(w *reliability.SinkWrapper) ports.ComplianceEventSink {
	if w == nil {
		return nil
	}
	return w
}

func publisherPort(bus *distributed.EventBus) ports.SessionEventPublisher {
	if bus == nil {
		return nil
	}
	return bus
}

func iceServers(cfg *config.Config) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(cfg.WebRTC.ICEServers))
	for _, s := range cfg.WebRTC.ICEServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return servers
}

// sessionDefaults fills the fields a create request leaves out.
func sessionDefaults(cfg *config.Config) domain.SessionConfiguration {
	return domain.SessionConfiguration{
		MaxParticipants:      cfg.Session.MaxParticipants,
		RecordingEnabled:     cfg.Session.RecordingEnabled,
		ScreenShareEnabled:   cfg.Session.ScreenShareEnabled,
		TranscriptionEnabled: cfg.Session.TranscriptionEnabled,
		InvitationTTL:        cfg.Session.InvitationTTL,
		Compliance: domain.ComplianceSettings{
			AuditLogging:      cfg.Compliance.AuditLogging,
			HIPAACompliant:    cfg.Compliance.HIPAACompliant,
			DataRetentionDays: cfg.Compliance.DataRetentionDays,
		},
		Media: domain.MediaSettings{
			VideoEnabled:     cfg.Session.Media.Video,
			AudioEnabled:     cfg.Session.Media.Audio,
			Resolution:       domain.Resolution(cfg.Session.Media.Resolution),
			FrameRate:        cfg.Session.Media.FrameRate,
			EchoCancellation: cfg.Session.Media.EchoCancellation,
			NoiseSuppression: cfg.Session.Media.NoiseSuppression,
		},
	}
}
