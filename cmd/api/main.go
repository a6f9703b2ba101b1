// Package main is the entrypoint for the tasknest API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tasknest/tasknest/internal/auth"
	"github.com/tasknest/tasknest/internal/cache"
	"github.com/tasknest/tasknest/internal/config"
	"github.com/tasknest/tasknest/internal/metrics"
	"github.com/tasknest/tasknest/internal/middleware"
	"github.com/tasknest/tasknest/internal/repository"
	"github.com/tasknest/tasknest/internal/server"
	"github.com/tasknest/tasknest/internal/service"
	"github.com/tasknest/tasknest/internal/taskstore"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	logger := initLogger(cfg)

	// Identity store schema
	if err := repository.Migrate(cfg.DatabaseURL); err != nil {
		logger.Error("failed to migrate database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return err
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL, repository.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
	})
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return err
	}
	logger.Info("connected to database")

	tasks, err := taskstore.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		repo.Close()
		logger.Error("failed to connect to MongoDB",
			slog.String("error", sanitizeError(err, cfg.MongoURI)),
			slog.String("mongo_uri", redactURL(cfg.MongoURI)),
		)
		return err
	}
	logger.Info("connected to MongoDB", "database", cfg.MongoDatabase)

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		repo.Close()
		_ = tasks.Close(ctx)
		logger.Error("failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return err
	}
	logger.Info("connected to Redis")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(reg)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)

	taskService := service.NewTaskService(tasks, repo, recorder)
	accountService := service.NewAccountService(service.AccountDeps{
		Users:   repo,
		Tasks:   tasks,
		Tokens:  tokens,
		Revoker: cacheClient,
		Cache:   cacheClient,
		Metrics: recorder,
		Logger:  logger,
	})

	authLimiter := middleware.NewAuthRateLimiter(middleware.AuthRateLimiterConfig{
		PerMinute: cfg.RateLimitAuthPerMinute,
		Burst:     cfg.RateLimitAuthBurst,
	}, logger)

	r := server.NewRouter(server.RouterDeps{
		Config:         cfg,
		Logger:         logger,
		Tasks:          taskService,
		Accounts:       accountService,
		Tokens:         tokens,
		Revocations:    cacheClient,
		Limiter:        cacheClient,
		AuthLimiter:    authLimiter,
		Metrics:        recorder,
		MetricsHandler: metrics.Handler(reg),
		Mongo:          tasks,
		Postgres:       repo,
		Redis:          cacheClient,
	})

	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Registered in open order; closed in reverse.
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("mongo", tasks.Close)
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})
	srv.OnShutdown("auth_rate_limiter", func(context.Context) error {
		authLimiter.Stop()
		return nil
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		return err
	}
	return nil
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s&]+`)

// redactURL strips the password from a connection URL, keeping the user.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

// sanitizeError replaces every secret URL in err's message with its
// redacted form.
func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
