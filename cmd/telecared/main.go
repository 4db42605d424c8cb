package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telecare/internal/core/services"
	httphandlers "telecare/internal/handlers/http"
	"telecare/internal/infrastructure/distributed"
	"telecare/internal/infrastructure/middleware"
	"telecare/internal/infrastructure/monitoring"
	"telecare/internal/infrastructure/notification"
	"telecare/internal/infrastructure/repositories"
	"telecare/internal/infrastructure/retention"
	signalserver "telecare/internal/infrastructure/signal"
	webrtcinfra "telecare/internal/infrastructure/webrtc"
	"telecare/pkg/config"
	"telecare/pkg/logger"
	"telecare/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do/v2"
	"go.uber.org/zap"
)

var configPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"/etc/telecare/config.yaml",
	"config.yaml",
}

func main() {
	startTime := time.Now()
	cfg := loadConfig()

	zapLogger, err := logger.New(cfg.Logging.Level)
	if err != nil {
		zapLogger = zap.NewExample()
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerEndpoint,
		Environment: os.Getenv("TELECARE_ENV"),
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("Failed to initialize tracing", "error", err)
	}

	instance := uuid.New().String()
	injector := setupDI(cfg, log, instance)

	repoFactory := mustInvoke[*repositories.RepositoryFactory](injector, log)
	registry := mustInvoke[*services.SessionRegistry](injector, log)
	media := mustInvoke[*webrtcinfra.PionMediaCapability](injector, log)
	handler := mustInvoke[*httphandlers.SessionHandler](injector, log)
	ws := mustInvoke[*signalserver.WebSocketServer](injector, log)
	health := mustInvoke[*monitoring.HealthChecker](injector, log)
	scheduler := mustInvoke[*retention.Scheduler](injector, log)
	bus := mustInvoke[*distributed.EventBus](injector, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health.StartBackgroundChecks(ctx)
	go scheduler.Start(ctx)
	if bus != nil && cfg.Notification.Backend == "redis" {
		go runDeliveryWorker(ctx, cfg, bus, instance, log)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestLoggerMiddleware(logger.NewContextLogger(zapLogger)),
		middleware.TracingMiddleware(),
		middleware.NewHTTPRateLimitMiddleware(cfg),
		middleware.ErrorHandlerMiddleware(log),
	)

	handler.SetupRoutes(router)
	router.GET("/ws", gin.WrapF(ws.HandleWebSocket))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"uptime":      time.Since(startTime).String(),
			"sessions":    len(registry.List()),
			"connections": ws.ConnectionCount(),
			"media":       media.Active(),
			"checks":      health.LastResults(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		status := health.CheckAll(ctx)
		if status.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "not_ready",
				"timestamp": time.Now(),
				"checks":    status.Checks,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now(),
			"checks":    status.Checks,
		})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Starting telecare server", "address", cfg.Server.Address, "instance_id", instance)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down telecare server...")
	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if err := media.Close(); err != nil {
		log.Errorw("Error releasing media captures", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error flushing traces", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("Telecare server stopped")
}

// loadConfig tries the known paths in order and falls back to defaults.
func loadConfig() *config.Config {
	for _, path := range configPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := config.Load(path)
		if err != nil {
			zap.NewExample().Sugar().Fatalw("Invalid configuration", "path", path, "error", err)
		}
		return cfg
	}
	cfg, err := config.Load("")
	if err != nil {
		zap.NewExample().Sugar().Fatalw("Invalid configuration", "error", err)
	}
	return cfg
}

func mustInvoke[T any](injector do.Injector, log *zap.SugaredLogger) T {
	v, err := do.Invoke[T](injector)
	if err != nil {
		log.Fatalw("Failed to resolve dependency", "error", err)
	}
	return v
}

// runDeliveryWorker sends invitations this instance published on the bus and
// logs session ends reported by peers.
func runDeliveryWorker(ctx context.Context, cfg *config.Config, bus *distributed.EventBus, instance string, log *zap.SugaredLogger) {
	var deliver func(context.Context, *distributed.Event) error
	if cfg.Notification.WebhookURL != "" {
		webhook := notification.NewWebhookNotifier(cfg.Notification.WebhookURL, cfg.Notification.WebhookTimeout, log)
		deliver = func(ctx context.Context, event *distributed.Event) error {
			inv, err := distributed.InvitationFromEvent(event)
			if err != nil {
				return err
			}
			return webhook.Deliver(ctx, inv)
		}
	} else {
		fallback := notification.NewLogNotifier(log)
		deliver = func(ctx context.Context, event *distributed.Event) error {
			inv, err := distributed.InvitationFromEvent(event)
			if err != nil {
				return err
			}
			return fallback.Deliver(ctx, inv)
		}
	}

	err := bus.Subscribe(ctx, func(event *distributed.Event) error {
		switch event.Type {
		case distributed.EventInvitationCreated:
			if event.InstanceID != instance {
				return nil
			}
			return deliver(ctx, event)
		case distributed.EventSessionEnded:
			log.Infow("Session ended on peer instance",
				"session_id", event.SessionID,
				"instance_id", event.InstanceID,
			)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("Event bus subscription stopped", "error", err)
	}
}
