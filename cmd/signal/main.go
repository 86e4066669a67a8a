package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studiocast/internal/core/ports"
	"studiocast/internal/core/services"
	httphandlers "studiocast/internal/handlers/http"
	"studiocast/internal/infrastructure/middleware"
	"studiocast/internal/infrastructure/monitoring"
	"studiocast/internal/infrastructure/recording"
	registrymemory "studiocast/internal/infrastructure/registry/memory"
	registryredis "studiocast/internal/infrastructure/registry/redis"
	repomemory "studiocast/internal/infrastructure/repositories/memory"
	reporedis "studiocast/internal/infrastructure/repositories/redis"
	"studiocast/internal/infrastructure/secrets"
	signalgw "studiocast/internal/infrastructure/signal"
	"studiocast/internal/infrastructure/streaming"
	"studiocast/pkg/config"
	"studiocast/pkg/logger"
	"studiocast/pkg/tracing"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/studiocast/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Tracing
	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("tracing disabled", "error", err)
	}

	// Storage: Redis when configured, in-memory otherwise
	var registry ports.RoomRegistry
	var sessionRepo ports.SessionRepository

	if cfg.Redis.Enabled {
		client, err := registryredis.NewRedisClient(
			cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, log)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		defer client.Close()

		registry = registryredis.NewRedisRoomRegistry(client)
		sessionRepo = reporedis.NewRedisSessionRepository(client)
		log.Info("using redis-backed registry")
	} else {
		registry = registrymemory.NewMemoryRoomRegistry()
		sessionRepo = repomemory.NewMemorySessionRepository()
		log.Info("using in-memory registry")
	}

	var metrics ports.MetricsRecorder
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector()
	} else {
		metrics = monitoring.NopRecorder{}
	}

	secretStore := secrets.NewEnvSecretStore()

	encoder := streaming.NewManager(
		streaming.ConfigFromApp(cfg),
		streaming.NewExecRunner(),
		secretStore,
		metrics,
		zapLogger,
	)

	// ICE servers announced to clients on connect
	var iceServers []webrtc.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	gateway := signalgw.NewGateway(signalgw.GatewayConfig{
		PingInterval:    cfg.Signal.PingInterval,
		PongTimeout:     cfg.Signal.PongTimeout,
		ReadTimeout:     cfg.Signal.ReadTimeout,
		WriteTimeout:    cfg.Signal.WriteTimeout,
		EventsPerSecond: cfg.RateLimiting.Signal.MessagesPerSecond,
		EventBurst:      cfg.RateLimiting.Signal.Burst,
		ICEServers:      iceServers,
	}, nil, encoder, metrics, zapLogger)

	lifecycle := services.NewLifecycleService(
		registry, sessionRepo, gateway, encoder, metrics, cfg.Rooms.IdleWindow, log)
	gateway.SetLifecycle(lifecycle)

	encoder.OnStatusChange(gateway.NotifyStreamStatus)

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, registry)

	recordingSink, err := recording.NewFileSink("recordings", "/recordings")
	if err != nil {
		log.Fatalw("failed to init recording sink", "error", err)
	}

	streamHandler := httphandlers.NewStreamHandler(encoder, lifecycle, recordingSink)

	// Idle room sweeper
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go func() {
		ticker := time.NewTicker(cfg.Rooms.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if n := lifecycle.SweepIdleRooms(sweepCtx); n > 0 {
					log.Infow("swept idle rooms", "count", n)
				}
			}
		}
	}()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(logger.NewContextLogger(zapLogger)))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))
	streamHandler.SetupRoutes(api, middleware.HostPermissionMiddleware(authService))

	router.GET("/ws", gin.WrapF(gateway.HandleWebSocket))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"uptime":      time.Since(startTime).String(),
			"connections": gateway.ConnectedChannels(),
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
		log.Infof("Starting StudioCast signaling server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("graceful shutdown failed", "error", err)
	}
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Debugw("tracer shutdown failed", "error", err)
		}
	}

	log.Info("Server stopped")
}
