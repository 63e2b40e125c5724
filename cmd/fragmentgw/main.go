package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fragmentworks/fragment-gateway/internal/api"
	"github.com/fragmentworks/fragment-gateway/internal/config"
	"github.com/fragmentworks/fragment-gateway/internal/httputil"
	"github.com/fragmentworks/fragment-gateway/internal/notifications"
	"github.com/fragmentworks/fragment-gateway/internal/provider/factory"
	"github.com/fragmentworks/fragment-gateway/internal/ratelimit"
	"github.com/fragmentworks/fragment-gateway/internal/registry"
	"github.com/fragmentworks/fragment-gateway/internal/repository"
	"github.com/fragmentworks/fragment-gateway/internal/secrets"
	"github.com/fragmentworks/fragment-gateway/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	slog.Info("starting fragment gateway", "addr", cfg.Addr, "version", "0.1.0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, "fragment-gateway", cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	var store ratelimit.Store
	if cfg.RedisURL != "" {
		store, err = ratelimit.NewRedisStore(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		slog.Info("using redis rate limit store")
	} else {
		store = ratelimit.NewMemoryStore()
		slog.Info("using in-memory rate limit store")
	}

	policy := ratelimit.FailClosed
	if cfg.RateLimitFailOpen {
		policy = ratelimit.FailOpen
		slog.Warn("rate limiter will admit requests on store errors")
	}
	limiter := ratelimit.New(store, policy)

	var creds secrets.Store = secrets.EnvStore{}
	if cfg.SecretsPrefix != "" && cfg.AWSRegion != "" {
		creds, err = secrets.NewAWSSecretsManager(ctx, cfg.AWSRegion, cfg.SecretsPrefix)
		if err != nil {
			slog.Error("failed to initialize secrets manager", "error", err)
			os.Exit(1)
		}
		slog.Info("using aws secrets manager", "prefix", cfg.SecretsPrefix)
	}

	baseURLs := make(map[string]string)
	if cfg.OpenAIBaseURL != "" {
		baseURLs[registry.ProviderOpenAI] = cfg.OpenAIBaseURL
	}
	if cfg.OllamaBaseURL != "" {
		baseURLs[registry.ProviderOllama] = cfg.OllamaBaseURL
	}

	factory := factory.NewFactory(factory.FactoryConfig{
		Credentials: creds,
		HTTPClient:  httputil.DefaultClient(),
		AWSRegion:   cfg.AWSRegion,
		BaseURLs:    baseURLs,
	})

	var usage repository.UsageRepository
	if cfg.DatabaseURL != "" {
		pg, err := repository.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		usage = pg
		slog.Info("using postgres usage repository")
	} else {
		usage = repository.NewInMemoryUsageRepository()
		slog.Info("using in-memory usage repository")
	}

	var notifier notifications.Notifier = notifications.LogNotifier{}
	if cfg.SNSTopicARN != "" {
		notifier, err = notifications.NewSNSNotifier(ctx, cfg.AWSRegion, cfg.SNSTopicARN)
		if err != nil {
			slog.Error("failed to initialize sns notifier", "error", err)
			os.Exit(1)
		}
		slog.Info("using sns notifier", "topic", cfg.SNSTopicARN)
	}

	handler := api.NewHandler(api.HandlerConfig{
		Limiter:              limiter,
		Factory:              factory,
		Usage:                usage,
		Notifier:             notifier,
		RateLimitMaxRequests: cfg.RateLimitMaxRequests,
		RateLimitWindow:      cfg.RateLimitWindow,
		MaxRequestDuration:   cfg.MaxRequestDuration,
		HiddenProviders:      cfg.HiddenProviders,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.MaxRequestDuration + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown failed", "error", err)
	}

	slog.Info("server stopped")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
