package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	detectionapp "github.com/clientpulse/backend/internal/application/detection"
	appevent "github.com/clientpulse/backend/internal/application/event"
	feedbackapp "github.com/clientpulse/backend/internal/application/feedback"
	ingestapp "github.com/clientpulse/backend/internal/application/ingest"
	insightapp "github.com/clientpulse/backend/internal/application/insight"
	"github.com/clientpulse/backend/internal/application/pipeline"
	priorityapp "github.com/clientpulse/backend/internal/application/priority"
	"github.com/clientpulse/backend/internal/domain/shared"
	signaldomain "github.com/clientpulse/backend/internal/domain/signal"
	"github.com/clientpulse/backend/internal/infrastructure/cache"
	"github.com/clientpulse/backend/internal/infrastructure/config"
	"github.com/clientpulse/backend/internal/infrastructure/event"
	"github.com/clientpulse/backend/internal/infrastructure/logger"
	"github.com/clientpulse/backend/internal/infrastructure/persistence"
	"github.com/clientpulse/backend/internal/infrastructure/scheduler"
	"github.com/clientpulse/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// The worker runs the signal pipeline end to end: interval triggers fan
// per-tenant stage jobs into the scheduler, the stage executor dispatches
// them to the application services, and domain events feed the logging and
// metrics handlers. There is no HTTP listener; ingestion happens through
// the services and everything else is scheduled.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
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
		_ = logger.Sync(log)
	}()

	log.Info("Starting ClientPulse worker",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	)

	ctx := context.Background()

	// Initialize tracing
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Initialize metrics export
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Initialize log export and bridge the zap logger to the collector
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logs provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := logsProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down logs provider", zap.Error(err))
		}
	}()

	if logsProvider.IsEnabled() {
		bridged, err := telemetry.CreateBridgedLoggerFromConfig(&logger.Config{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			Output:     cfg.Log.Output,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		}, logsProvider, cfg.Telemetry.ServiceName)
		if err != nil {
			log.Warn("Failed to bridge logs to the collector", zap.Error(err))
		} else {
			log = bridged
			log.Info("Log export to the collector enabled")
		}
	}

	// Start continuous profiling
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:             cfg.Profiling.Enabled,
		ServerAddress:       cfg.Profiling.ServerAddress,
		ApplicationName:     cfg.Profiling.ApplicationName,
		ProfileCPU:          true,
		ProfileAllocObjects: true,
		ProfileAllocSpace:   true,
		ProfileInuseObjects: true,
		ProfileInuseSpace:   true,
		ProfileGoroutines:   true,
	}, log)
	if err != nil {
		log.Warn("Failed to start continuous profiler", zap.Error(err))
	} else {
		defer func() {
			if err := profiler.Stop(); err != nil {
				log.Error("Error stopping profiler", zap.Error(err))
			}
		}()
		if profiler.IsEnabled() {
			if err := tracerProvider.EnableSpanProfiles(); err != nil {
				log.Warn("Failed to enable span profiles", zap.Error(err))
			}
		}
	}

	// Create GORM logger backed by zap, sharing the slow-query threshold
	// with the tracing plugin below
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel,
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
	)

	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Register database query tracing
	dbTracingCfg := telemetry.DefaultDBTracingConfig()
	dbTracingCfg.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracingCfg.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		dbTracingCfg.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	}
	if err := telemetry.NewDBTracingPlugin(dbTracingCfg, log).RegisterOtelGorm(db.DB); err != nil {
		log.Warn("Failed to register database tracing", zap.Error(err))
	}

	// Register database metrics (query duration, pool stats)
	dbMetrics, err := telemetry.RegisterDBMetrics(ctx, db.DB, meterProvider, telemetry.DefaultDBMetricsConfig(), log)
	if err != nil {
		log.Warn("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		defer dbMetrics.Stop()
	}

	// Create the claim store that coordinates stage batches across workers.
	// Redis when reachable, in-memory otherwise (production requires Redis).
	claimFactory := cache.NewClaimStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
		cache.WithMeter(meterProvider.Meter("claim_store")),
	)
	claimer, err := claimFactory.CreateStore()
	if err != nil {
		log.Fatal("Failed to create claim store", zap.Error(err))
	}
	defer func() {
		if err := claimer.Close(); err != nil {
			log.Error("Error closing claim store", zap.Error(err))
		}
	}()

	// Initialize repositories
	signalRepo := persistence.NewGormSignalRepository(db.DB)
	routingRuleRepo := persistence.NewGormRoutingRuleRepository(db.DB)
	metricSeriesRepo := persistence.NewGormMetricSeriesRepository(db.DB)
	anomalyRepo := persistence.NewGormAnomalyRepository(db.DB)
	thresholdOverrideRepo := persistence.NewGormThresholdOverrideRepository(db.DB)
	insightRepo := persistence.NewGormInsightRepository(db.DB)
	aggregationSettingsRepo := persistence.NewGormAggregationSettingsRepository(db.DB)
	priorityRepo := persistence.NewGormPriorityRepository(db.DB)
	weightConfigRepo := persistence.NewGormWeightConfigRepository(db.DB)
	outcomeRepo := persistence.NewGormOutcomeRepository(db.DB)
	qualityMetricRepo := persistence.NewGormQualityMetricRepository(db.DB)

	// Initialize event bus
	eventBus := event.NewInMemoryEventBus(log)

	// Initialize pipeline metrics with backlog gauges backed by the database
	pipelineMetrics, err := telemetry.NewPipelineMetrics(telemetry.PipelineMetricsConfig{
		Meter:           meterProvider.Meter("pipeline"),
		Logger:          log,
		BacklogProvider: telemetry.NewGormBacklogProvider(db.DB),
	})
	if err != nil {
		log.Fatal("Failed to initialize pipeline metrics", zap.Error(err))
	}
	defer pipelineMetrics.Stop()

	claimCfg := shared.ClaimConfig{
		Enabled: cfg.Pipeline.ClaimEnabled,
		TTL:     cfg.Pipeline.ClaimTTL,
	}

	// Initialize application services
	routerService := ingestapp.NewRouterService(signalRepo, routingRuleRepo, signaldomain.NewNormalizer(), eventBus, log)
	detectionService := detectionapp.NewDetectionService(metricSeriesRepo, anomalyRepo, thresholdOverrideRepo, routerService, eventBus, claimer, claimCfg, log)
	aggregationService := insightapp.NewAggregationService(signalRepo, insightRepo, aggregationSettingsRepo, eventBus, claimer, claimCfg, log)
	prioritizationService := priorityapp.NewPrioritizationService(insightRepo, priorityRepo, weightConfigRepo, eventBus, claimer, claimCfg, log)
	feedbackService := feedbackapp.NewFeedbackService(outcomeRepo, qualityMetricRepo, routerService, eventBus, claimer, claimCfg, log)

	// Register event handlers: one structured log line per domain event,
	// plus the pipeline counters derived from them
	loggingHandler := appevent.NewLoggingHandler(log)
	eventBus.Subscribe(loggingHandler)

	metricsHandler := appevent.NewMetricsHandler(pipelineMetrics, log)
	eventBus.Subscribe(metricsHandler)

	log.Info("Event handlers registered",
		zap.Strings("metrics_events", metricsHandler.EventTypes()),
	)

	// Start event bus
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Collect backlog gauges until pipelineMetrics.Stop runs
	pipelineMetrics.StartPeriodicCollection(context.Background(), telemetry.NewGormTenantProvider(db.DB), 5*time.Minute)

	// Initialize pipeline scheduler (if enabled)
	stageExecutor := pipeline.NewStageExecutor(detectionService, aggregationService, prioritizationService, feedbackService, log)
	stageExecutor.SetMetrics(pipelineMetrics)

	if cfg.Scheduler.Enabled {
		pipelineScheduler, err := scheduler.NewScheduler(scheduler.Config{
			Enabled:    cfg.Scheduler.Enabled,
			Workers:    cfg.Scheduler.Workers,
			QueueSize:  cfg.Scheduler.QueueSize,
			JobTimeout: cfg.Scheduler.JobTimeout,
			MaxRetries: cfg.Scheduler.MaxRetries,
			RetryDelay: cfg.Scheduler.RetryDelay,
		}, stageExecutor, log)
		if err != nil {
			log.Fatal("Failed to create pipeline scheduler", zap.Error(err))
		}
		if err := pipelineScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start pipeline scheduler", zap.Error(err))
		}

		intervalTrigger, err := scheduler.NewIntervalTrigger(scheduler.TriggerConfig{
			DetectionInterval:      cfg.Scheduler.DetectionInterval,
			AggregationInterval:    cfg.Scheduler.AggregationInterval,
			PrioritizationInterval: cfg.Scheduler.PrioritizationInterval,
			ExpiryInterval:         cfg.Scheduler.ExpiryInterval,
			QualityInterval:        cfg.Scheduler.QualityInterval,
		}, pipelineScheduler, signalRepo, log)
		if err != nil {
			log.Fatal("Failed to create interval trigger", zap.Error(err))
		}
		if err := intervalTrigger.Start(context.Background()); err != nil {
			log.Fatal("Failed to start interval trigger", zap.Error(err))
		}

		// Stop the trigger before the scheduler so no new jobs chase a
		// draining queue
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer stopCancel()
			if err := intervalTrigger.Stop(stopCtx); err != nil {
				log.Error("Error stopping interval trigger", zap.Error(err))
			}
			if err := pipelineScheduler.Stop(stopCtx); err != nil {
				log.Error("Error stopping pipeline scheduler", zap.Error(err))
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down worker...")
}
