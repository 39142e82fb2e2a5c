package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	approvalapp "github.com/erp/stockflow/internal/application/approval"
	inventoryapp "github.com/erp/stockflow/internal/application/inventory"
	transferapp "github.com/erp/stockflow/internal/application/transfer"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/infrastructure/auth"
	"github.com/erp/stockflow/internal/infrastructure/cache"
	"github.com/erp/stockflow/internal/infrastructure/config"
	"github.com/erp/stockflow/internal/infrastructure/event"
	"github.com/erp/stockflow/internal/infrastructure/logger"
	"github.com/erp/stockflow/internal/infrastructure/persistence"
	"github.com/erp/stockflow/internal/infrastructure/storage"
	"github.com/erp/stockflow/internal/infrastructure/telemetry"
	"github.com/erp/stockflow/internal/interfaces/http/handler"
	"github.com/erp/stockflow/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

//	@title			Stockflow API
//	@version		1.0
//	@description	Multi-tenant FIFO inventory ledger with inter-branch transfers and approval rules

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

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
	}, logger.WithFields(zap.String("service", cfg.App.Name)))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// Telemetry comes first so the database and HTTP layers pick up the
	// global providers.
	telCfg := telemetry.Config{
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		TracingEnabled:    cfg.Telemetry.Enabled,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		MetricsEnabled:    cfg.Telemetry.MetricsEnabled,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}
	logProvider, err := telemetry.NewLoggerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log = logProvider.Bridge(log, zapcore.InfoLevel)

	log.Info("Starting stockflow",
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", cfg.App.Version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:            cfg.Telemetry.ProfilingEnabled,
		ServerAddress:      cfg.Telemetry.PyroscopeAddress,
		ApplicationName:    cfg.Telemetry.ServiceName,
		ContentionProfiles: !cfg.IsProduction(),
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	meter := meterProvider.Meter("stockflow")
	stockMetrics, err := telemetry.NewStockMetrics(meter)
	if err != nil {
		log.Fatal("Failed to register stock metrics", zap.Error(err))
	}

	db, err := persistence.NewDatabase(&cfg.Database, cfg.Log.GormLevel, cfg.Telemetry.DBSlowQueryThresh, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:        cfg.Telemetry.DBTraceEnabled,
		DBName:         cfg.Database.DBName,
		WithVariables:  cfg.Telemetry.DBLogFullSQL,
		SlowQueryAbove: cfg.Telemetry.DBSlowQueryThresh,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Redis backs request locks, processed events and the shared catalog tier.
	stores, err := cache.NewStores(ctx, cfg.Redis, cfg.Idempotency,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.IsProduction()),
	)
	if err != nil {
		log.Fatal("Failed to initialize redis stores", zap.Error(err))
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Warn("Error closing redis stores", zap.Error(err))
		}
	}()

	// Ports
	access := persistence.NewGormAccessDirectory(db.DB)
	catalog := cache.NewCatalogCache(persistence.NewGormCatalog(db.DB), stores.Redis(), cache.CatalogCacheConfig{
		Prefix: cfg.Idempotency.KeyPrefix,
	}, log.Named("catalog"))
	if err := catalog.Start(ctx); err != nil {
		log.Fatal("Failed to subscribe to catalog invalidations", zap.Error(err))
	}
	defer func() {
		_ = catalog.Close()
	}()
	audit := persistence.NewGormAuditSink(db.DB, access)

	// Read-side repositories; writes go through the transaction scope.
	lotRepo := persistence.NewGormLotRepository(db.DB)
	entryRepo := persistence.NewGormEntryRepository(db.DB)
	levelRepo := persistence.NewGormLevelRepository(db.DB)
	transferRepo := persistence.NewGormTransferRepository(db.DB)
	approvalRepo := persistence.NewGormApprovalRecordRepository(db.DB)
	ruleRepo := persistence.NewGormRuleRepository(db.DB)

	scope := persistence.NewGormTransactionScope(db.DB, persistence.TxConfig{
		Isolation:  persistence.IsolationLevel(cfg.Database.Isolation),
		MaxRetries: cfg.Database.MaxRetries,
		Backoff:    cfg.Database.RetryBackoff,
	})
	scope.SetMetrics(stockMetrics)

	eventBus := event.NewAsyncEventBus(event.BusConfig{
		Workers:        cfg.Event.Workers,
		QueueSize:      cfg.Event.QueueSize,
		HandlerTimeout: cfg.Event.HandlerTimeout,
	}, log.Named("events"))

	exec := inventoryapp.NewExecutor(scope, log)
	exec.SetRequestLock(stores.Lock)
	exec.SetEventPublisher(eventBus)
	exec.SetAuditSink(audit)
	exec.SetMetrics(stockMetrics)
	guard := inventoryapp.NewGuard(access, catalog)

	ledgerService := inventoryapp.NewLedgerService(exec, guard, lotRepo, entryRepo, levelRepo)
	transferService := transferapp.NewTransferService(exec, guard, transferRepo, approvalRepo, audit)
	ruleService := approvalapp.NewRuleService(exec, guard, ruleRepo)

	// Dispatch manifests
	manifests := newManifestStore(ctx, cfg, log)
	manifestHandler := event.NewIdempotentHandler(
		transferapp.NewDispatchManifestHandler(transferRepo, manifests, log.Named("manifests")),
		stores.Processed,
		log,
		event.WithIdempotencyConfig(shared.IdempotencyConfig{
			TTL:     cfg.Event.ProcessedTTL,
			LockTTL: cfg.Idempotency.LockTTL,
			Enabled: true,
		}),
		event.WithRetry(3, 200*time.Millisecond),
	)
	eventBus.Subscribe(manifestHandler)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	checks := map[string]handler.Pinger{"database": db}
	if client := stores.Redis(); client != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	var httpMeter metric.Meter
	if cfg.Telemetry.MetricsEnabled {
		httpMeter = meter
	}
	engine, err := router.NewEngine(router.Options{
		Config:        cfg,
		Logger:        log,
		Authenticator: auth.NewVerifier(cfg.JWT),
		Meter:         httpMeter,
		Inventory:     handler.NewInventoryHandler(ledgerService),
		Transfers:     handler.NewTransferHandler(transferService),
		Rules:         handler.NewApprovalRuleHandler(ruleService),
		System:        handler.NewSystemHandler(cfg.App.Version, checks),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	// Handlers may still be writing manifests for requests that just finished.
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus did not drain", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Failed to stop profiler", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to flush traces", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to flush metrics", zap.Error(err))
	}
	if err := logProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to flush logs", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// newManifestStore returns the S3 bucket when storage is enabled and an
// in-process store otherwise.
func newManifestStore(ctx context.Context, cfg *config.Config, log *zap.Logger) transferapp.ManifestStore {
	if !cfg.Storage.Enabled {
		log.Warn("Object storage disabled, dispatch manifests are kept in memory")
		return storage.NewMemoryObjectStore()
	}
	store, err := storage.NewS3ObjectStore(&cfg.Storage, storage.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to create object store", zap.Error(err))
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatal("Failed to prepare manifest bucket", zap.Error(err))
	}
	log.Info("Dispatch manifests stored in S3", zap.String("bucket", store.Bucket()))
	return store
}
