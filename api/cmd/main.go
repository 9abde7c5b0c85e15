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

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/config"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/eligibility"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/infrastructure/memory"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/infrastructure/postgres"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/infrastructure/rabbitmq"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/infrastructure/redis"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/pkg/logger"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/security"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/service"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/transport/rest"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ledger is what both store drivers provide.
type ledger interface {
	domain.Store
	eligibility.Checker
	rabbitmq.Deduper
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", "booking-service").
		Str("env", cfg.AppEnv).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var checks []rest.HealthCheck

	// ---- Ledger store ----
	var store ledger
	var repo *postgres.Repository
	switch cfg.StoreDriver {
	case config.DriverMemory:
		store = memory.New(domain.SystemClock{})
		log.Warn().Msg("using in-memory ledger; state is lost on restart")

	default:
		dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres pool create failed")
		}
		defer dbPool.Close()

		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		err = dbPool.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		metrics.SetDependencyHealth("postgres", true)
		log.Info().Msg("postgres connected")

		repo = postgres.New(dbPool, cfg.LockTimeout)
		store = repo
		checks = append(checks, rest.HealthCheck{Name: "postgres", Check: dbPool.Ping})
	}

	// ---- Redis (eligibility cache + shared rate limit) ----
	var checker eligibility.Checker = store
	var limiter rest.Limiter
	if cfg.RedisEnabled {
		cache := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		err := cache.Ping(pingCtx)
		cancel()
		if err != nil {
			// cache and limiter both fail open
			log.Warn().Err(err).Msg("redis ping failed (continuing)")
		} else {
			log.Info().Msg("redis connected")
		}
		metrics.SetDependencyHealth("redis", err == nil)

		// unlocked reads only; mutations resolve eligibility on the option's tx
		checker = eligibility.NewCached(store, cache, cfg.CacheEligibilityTTL)
		limiter = cache
		checks = append(checks, rest.HealthCheck{Name: "redis", Check: cache.Ping})
	}

	// ---- Application service ----
	svc := service.NewBookingService(store, checker,
		service.WithRetry(cfg.MaxRetries, 20*time.Millisecond),
	)

	verifier := security.NewHS256Verifier(cfg.JWTSecret, cfg.JWTIssuer)

	httpHandler := rest.NewRouter(rest.RouterDeps{
		Handler:  rest.NewHandler(svc, checks...),
		Verifier: verifier,
		Limiter:  limiter,
		RateLimit: rest.RateLimit{
			Enabled: cfg.RLEnabled,
			Limit:   cfg.RLLimit,
			Window:  cfg.RLWindow,
		},
	})

	// ---- MQ consumer (option snapshots + capability changes) ----
	if cfg.ConsumerEnabled && cfg.RabbitURL != "" {
		consumer := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitExchange, svc, store)
		if err := consumer.Start(rootCtx); err != nil {
			log.Error().Err(err).Msg("consumer start failed")
		}
	}

	// ---- Outbox worker + housekeeping (postgres only) ----
	if repo != nil {
		if cfg.OutboxEnabled && cfg.RabbitURL != "" {
			repo.StartOutboxWorker(rootCtx, cfg.RabbitURL, cfg.RabbitExchange)
			log.Info().Msg("outbox worker started")
		}
		repo.StartHousekeeping(rootCtx, cfg.HousekeepingRetention, time.Hour)
	}

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
