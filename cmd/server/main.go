package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	pipelineapp "github.com/scout/backend/internal/application/pipeline"
	"github.com/scout/backend/internal/infrastructure/cache"
	"github.com/scout/backend/internal/infrastructure/config"
	"github.com/scout/backend/internal/infrastructure/event"
	"github.com/scout/backend/internal/infrastructure/lock"
	"github.com/scout/backend/internal/infrastructure/logger"
	"github.com/scout/backend/internal/infrastructure/persistence"
	"github.com/scout/backend/internal/infrastructure/spreadsheet"
	"github.com/scout/backend/internal/infrastructure/telemetry"
	"github.com/scout/backend/internal/interfaces/http/handler"
	"github.com/scout/backend/internal/interfaces/http/middleware"
	"github.com/scout/backend/internal/interfaces/http/router"
)

// multipartOverhead leaves room for form boundaries and headers around an
// uploaded workbook of the maximum size.
const multipartOverhead = 1 << 20

//	@title			Scout Pipeline API
//	@version		1.0
//	@description	Reconciles pipeline spreadsheet imports against the deal store.

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting Scout pipeline backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", cfg.App.Version),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Telemetry
	telemetryCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	reconcileMetrics, err := telemetry.NewReconcileMetrics(meterProvider.Meter("pipeline.reconcile"))
	if err != nil {
		log.Fatal("Failed to create reconcile metrics", zap.Error(err))
	}

	// Database
	db, err := persistence.NewDatabase(&cfg.Database, persistence.Options{
		Logger:   log,
		LogLevel: logger.MapGormLogLevel(cfg.Log.Level),
		Tracing: telemetry.DBTracingConfig{
			Enabled:          cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			DBName:           cfg.Database.DBName,
			SlowQueryThresh:  cfg.Telemetry.DBSlowQueryThresh,
			WithoutVariables: !cfg.Telemetry.DBLogFullSQL,
		},
	})
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dealRepo := persistence.NewGormDealRepository(db.DB)
	accountRepo := persistence.NewGormAccountRepository(db.DB)

	// Preview sessions and the apply lock share one Redis client when Redis is up.
	sessions, err := cache.NewPreviewStoreFactory(cfg.Redis, cache.WithLogger(log)).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create preview session store", zap.Error(err))
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			log.Error("Error closing preview session store", zap.Error(err))
		}
	}()

	var locker pipelineapp.ApplyLocker
	if sessions.Client != nil {
		locker = lock.NewRedisLocker(sessions.Client, cfg.Redis.KeyPrefix, cfg.Reconcile.LockTTL, log)
	} else {
		locker = lock.NewLocalLocker()
	}

	// Domain events
	eventBus := event.NewInMemoryEventBus(log)
	auditHandler := event.NewPipelineAuditHandler(log)
	eventBus.Subscribe(auditHandler, auditHandler.EventTypes()...)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Application services
	removalMode, err := pipelineapp.ParseRemovalMode(cfg.Reconcile.RemovalMode)
	if err != nil {
		log.Fatal("Invalid reconcile configuration", zap.Error(err))
	}
	appOpts := []pipelineapp.Option{
		pipelineapp.WithLogger(log),
		pipelineapp.WithMetrics(pipelineapp.TelemetryMetrics{M: reconcileMetrics}),
	}
	engineSvc := pipelineapp.NewReconciliationService(dealRepo, appOpts...)
	executor := pipelineapp.NewApplyExecutor(dealRepo, accountRepo, eventBus, pipelineapp.ExecutorConfig{
		Timeout:         cfg.Reconcile.ApplyTimeout,
		Concurrency:     cfg.Reconcile.ApplyConcurrency,
		MaxErrorDetails: cfg.Reconcile.MaxErrorDetails,
		RemovalMode:     removalMode,
	}, appOpts...)
	workflow := pipelineapp.NewWorkflow(engineSvc, executor, sessions, locker, cfg.Reconcile.SessionTTL, appOpts...)

	parser := spreadsheet.NewPipelineParser(
		spreadsheet.WithMaxFileSize(cfg.Reconcile.MaxFileSize),
		spreadsheet.WithLogger(log),
	)

	// HTTP
	healthChecks := []handler.SystemOption{
		handler.WithSystemLogger(log),
		handler.WithHealthCheck("database", func(context.Context) error { return db.Ping() }),
	}
	if sessions.Client != nil {
		healthChecks = append(healthChecks, handler.WithHealthCheck("redis", func(ctx context.Context) error {
			return sessions.Client.Ping(ctx).Err()
		}))
	}
	pipelineHandler := handler.NewPipelineHandler(workflow, parser, log)
	systemHandler := handler.NewSystemHandler(cfg.App.Name, cfg.App.Version, healthChecks...)

	maxBody := cfg.HTTP.MaxBodySize
	if upload := cfg.Reconcile.MaxFileSize + multipartOverhead; upload > maxBody {
		maxBody = upload
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine, err := router.NewEngine(router.EngineConfig{
		Logger:         log,
		ServiceName:    cfg.Telemetry.ServiceName,
		Tracing:        tracerProvider.IsEnabled(),
		Meter:          meterProvider.Meter("http.server"),
		CORS:           cors,
		MaxBodySize:    maxBody,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}

	router.NewRouter(engine).
		Register(router.PipelineRoutes(pipelineHandler)).
		Register(router.SystemRoutes(systemHandler)).
		Setup()
	router.RegisterHealth(engine, systemHandler)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Let an in-flight apply finish within its own timeout.
	shutdownTimeout := 30 * time.Second
	if cfg.Reconcile.ApplyTimeout+5*time.Second > shutdownTimeout {
		shutdownTimeout = cfg.Reconcile.ApplyTimeout + 5*time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
