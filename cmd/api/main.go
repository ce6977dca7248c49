package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-reconciliation/config"
	"payment-reconciliation/internal/adapter/events/kafka"
	httpHandler "payment-reconciliation/internal/adapter/http/handler"
	pgStorage "payment-reconciliation/internal/adapter/storage/postgres"
	redisStorage "payment-reconciliation/internal/adapter/storage/redis"
	"payment-reconciliation/internal/core/ports"
	"payment-reconciliation/internal/reconcile"
	"payment-reconciliation/internal/service"
	"payment-reconciliation/migrations"
	"payment-reconciliation/pkg/logger"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("settlement_currency", cfg.Reconciliation.SettlementCurrency).
		Msg("Starting Payment Reconciliation")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret must be set (RCN_JWT_SECRET)")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	if cfg.Database.AutoMigrate {
		n, err := pgStorage.Migrate(ctx, pool, migrations.FS, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to apply database migrations")
		}
		log.Info().Int("applied", n).Msg("Database schema up to date")
	}

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	batchRepo := pgStorage.NewBatchRepo(pool)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool)
	rateRepo := pgStorage.NewExchangeRateRepo(pool)
	accountRepo := pgStorage.NewCashAccountRepo(pool)
	currencyRepo := pgStorage.NewCurrencyRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Monetary policy
	currencies, err := currencyRepo.List(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load currency metadata")
	}
	conv := reconcile.NewConverter(
		cfg.Reconciliation.SettlementCurrency,
		reconcile.NewCurrencyTable(currencies),
		cfg.Reconciliation.DefaultMinorUnits,
	)
	policy, err := reconcile.ParsePolicy(cfg.Reconciliation.OverpaymentTolerance, cfg.Reconciliation.AdvisoryRatio)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid reconciliation policy")
	}
	log.Info().
		Int("currencies", len(currencies)).
		Int32("precision", conv.Precision()).
		Str("tolerance", policy.Tolerance.String()).
		Str("advisory_ratio", policy.AdvisoryRatio.String()).
		Msg("Reconciliation policy loaded")

	// Initialize Redis stores
	rateCache := redisStorage.NewRateCache(rdb)
	commitCache := redisStorage.NewCommitCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Commit events (optional)
	var events ports.EventPublisher
	if cfg.Kafka.Enabled() {
		publisher := kafka.NewPublisher(cfg.Kafka, log)
		defer publisher.Close()
		events = publisher
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka publisher enabled")
	} else {
		log.Info().Msg("No Kafka brokers configured, commit events disabled")
	}

	// Initialize services
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	auditSvc := service.NewAuditService(auditRepo, log)
	registry := service.NewSessionRegistry()

	reconSvc := service.NewReconciliationService(service.ReconciliationDeps{
		Registry:    registry,
		Converter:   conv,
		Policy:      policy,
		Rates:       service.NewCachedRateProvider(rateRepo, rateCache, cfg.Reconciliation.RateCacheTTL, log),
		Accounts:    service.NewCashAccountDirectory(accountRepo),
		BatchRepo:   batchRepo,
		IdempRepo:   idempotencyRepo,
		CommitCache: commitCache,
		Events:      events,
		Transactor:  transactor,
		CommitTTL:   cfg.Reconciliation.CommitCacheTTL,
	}, log)

	go registry.RunSweeper(ctx, cfg.Reconciliation.SweepInterval, cfg.Reconciliation.SessionTTL, logger.Component(log, "sweeper"))

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		ReconciliationSvc: reconSvc,
		TokenSvc:          tokenSvc,
		Precision:         conv.Precision(),
		RateLimitStore:    rateLimitStore,
		HealthCheckers:    []ports.HealthChecker{pgHealth, redisHealth},
		AuditSvc:          auditSvc,
		Logger:            log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Int("open_sessions", registry.Len()).Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	stop()

	log.Info().Msg("Server exited")
}
