/**
 * @description
 * Entry point for the credits service.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/redis/go-redis/v9: Backing store for per-user rate limits.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/api"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/app"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/catalog"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/config"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/metrics"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/store"
	confitorabbit "github.com/TheSkyfred/confito-57d2c83e-sub002/pkg/rabbitmq"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/pkg/stripeclient"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	repository, err := store.Open(ctx, store.Options{
		Driver:          cfg.StoreDriver,
		DatabaseURL:     cfg.DatabaseURL,
		BoltPath:        cfg.BoltPath,
		AutoMigrate:     cfg.AutoMigrate,
		ConnectAttempts: cfg.DBConnectAttempts,
	}, logger)
	if err != nil {
		logger.Error("unable to open ledger store", "error", err)
		os.Exit(1)
	}
	defer repository.Close()

	packages, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("unable to load credit package catalog", "error", err)
		os.Exit(1)
	}
	logger.Info("credit package catalog loaded", "version", packages.Version(), "packages", len(packages.List()))

	stripeClient := stripeclient.NewClient(cfg.StripeSecretKey, cfg.StripeAPIURL, logger)

	var limiter app.RateLimiter
	if cfg.RedisURL == "" {
		logger.Warn("redis url missing; checkout and verify rate limiting disabled", "env", "REDIS_URL")
	} else if redisOptions, parseErr := redis.ParseURL(cfg.RedisURL); parseErr != nil {
		logger.Warn("redis url parse failed; rate limiting disabled", "error", parseErr)
	} else {
		redisClient := redis.NewClient(redisOptions)
		pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
		pingErr := redisClient.Ping(pingCtx).Err()
		cancelPing()
		if pingErr != nil {
			logger.Warn("redis ping failed; rate limiting disabled", "error", pingErr)
			redisClient.Close()
		} else {
			defer redisClient.Close()
			limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
			logger.Info("redis connected")
		}
	}

	var publisher confitorabbit.Publisher = &confitorabbit.EventProducerFallback{Logger: logger}
	if cfg.RabbitMQURL != "" {
		if producer, err := confitorabbit.NewEventProducer(cfg.RabbitMQURL); err == nil {
			publisher = producer
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		}
	}
	defer publisher.Close()

	service := app.NewService(repository, stripeClient, packages, publisher, logger, app.Options{
		AppBaseURL:     cfg.AppBaseURL,
		EventsExchange: cfg.EventsExchange,
	})

	scheduler := app.NewScheduler(app.NewJobs(service, logger), logger, cfg.LedgerReconcileSchedule)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	verifier := api.NewTokenVerifier(api.TokenVerifierConfig{
		HMACSecret: cfg.SupabaseJWTSecret,
		JWKSURL:    cfg.SupabaseJWKSURL,
		Audience:   cfg.JWTAudience,
		Issuer:     cfg.JWTIssuer,
	})

	handler := api.NewHandler(service, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		Authenticator:     verifier,
		InternalAPIKey:    cfg.InternalAPIKey,
		AllowedOrigins:    cfg.AllowedOrigins(),
		Limiter:           limiter,
		CheckoutPerMinute: cfg.CheckoutRateLimitPerMinute,
		VerifyPerMinute:   cfg.VerifyRateLimitPerMinute,
		Logger:            logger,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before shutdown deadline")
	}

	logger.Info("server stopped")
}
