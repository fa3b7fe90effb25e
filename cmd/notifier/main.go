package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/minbarhq/minbar/internal/api"
	"github.com/minbarhq/minbar/internal/config"
	"github.com/minbarhq/minbar/internal/db"
	"github.com/minbarhq/minbar/internal/health"
	"github.com/minbarhq/minbar/internal/metrics"
	"github.com/minbarhq/minbar/internal/notify"
	"github.com/minbarhq/minbar/internal/observ"
	"github.com/minbarhq/minbar/internal/provider"
	"github.com/minbarhq/minbar/internal/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Best-effort .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting minbar notifier",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx := context.Background()

	// Database: communication audit log + persisted provider health.
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	var (
		repo    notify.Repository
		auditor api.Auditor
	)
	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		logger.Warn("database unavailable, audit logging disabled", zap.Error(err))
	} else {
		defer database.Close()
		repository := db.NewRepository(database, logger)
		repo = repository
		auditor = repository
	}

	// Redis: voice call sessions + send rate limiting.
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	var (
		sessionStore *redis.SessionStore
		rateLimiter  *redis.RateLimiter
	)
	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, voice sessions and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	} else {
		defer redisClient.Close()
		sessionStore = redis.NewSessionStore(redisClient, cfg.VoiceSessionTTL, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  300,             // sends
			Window: 1 * time.Minute, // per caller
		})
	}

	// Providers + registry. A nil session store only disables callback
	// correlation, not the providers themselves.
	registry := provider.NewRegistry(logger)
	var sessions provider.VoiceSessionWriter
	if sessionStore != nil {
		sessions = sessionStore
	}
	registry.Init(ctx, cfg, sessions)

	tracker := health.NewTracker()
	service := notify.NewService(registry, tracker, repo, logger)

	var sessionReader api.SessionReader
	if sessionStore != nil {
		sessionReader = sessionStore
	}
	handler := api.NewHandler(logger, service, sessionReader, auditor)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", handler.Healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.ClientIPKey))
			r.Post("/messages/sms", handler.SendSMS)
			r.Post("/messages/whatsapp", handler.SendWhatsApp)
			r.Post("/calls", handler.MakeCall)
		})

		r.Get("/voice/sessions/{phone}", handler.GetVoiceSession)
		r.Post("/voice/events", handler.PostVoiceEvent)
		r.Get("/providers/status", handler.GetProviderStatus)
		r.Get("/providers/health", handler.GetProviderHealth)
		r.Get("/users/{user_id}/communications", handler.GetCommunications)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	return nil
}
