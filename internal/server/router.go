package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tasknest/tasknest/internal/config"
	"github.com/tasknest/tasknest/internal/handler"
	"github.com/tasknest/tasknest/internal/metrics"
	"github.com/tasknest/tasknest/internal/middleware"
	"github.com/tasknest/tasknest/internal/service"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	Config   *config.Config
	Logger   *slog.Logger
	Tasks    *service.TaskService
	Accounts *service.AccountService

	Tokens      middleware.TokenVerifier
	Revocations middleware.RevocationChecker
	Limiter     middleware.UserRateLimiter
	AuthLimiter *middleware.AuthRateLimiter

	Metrics        metrics.Recorder
	MetricsHandler http.Handler

	Mongo    handler.HealthChecker
	Postgres handler.HealthChecker
	Redis    handler.HealthChecker
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) *chi.Mux {
	cfg, logger := deps.Config, deps.Logger
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}

	h := handler.New()
	healthHandler := handler.NewHealthHandler(logger, deps.Mongo, deps.Postgres, deps.Redis)
	taskHandler := handler.NewTaskHandler(deps.Tasks, logger)
	authHandler := handler.NewAuthHandler(deps.Accounts, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	// Operational endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authenticate := middleware.Auth(middleware.AuthConfig{
		Logger:      logger,
		Tokens:      deps.Tokens,
		Users:       deps.Accounts,
		Revocations: deps.Revocations,
		Metrics:     deps.Metrics,
	})
	rateLimit := middleware.RateLimitAPI(middleware.RateLimitConfig{
		Logger:    logger,
		Limiter:   deps.Limiter,
		Enabled:   cfg.RateLimitAPIEnabled && deps.Limiter != nil,
		PerMinute: cfg.RateLimitAPIPerMinute,
		Burst:     cfg.RateLimitAPIBurst,
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if deps.AuthLimiter != nil {
					r.Use(deps.AuthLimiter.Middleware)
				}
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)
			})

			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				r.Use(rateLimit)
				r.Get("/me", authHandler.Me)
				r.Delete("/me", authHandler.DeleteMe)
				r.Post("/logout", authHandler.Logout)
			})
		})

		r.Route("/todos", func(r chi.Router) {
			r.Use(authenticate)
			r.Use(rateLimit)
			r.Get("/", taskHandler.List)
			r.Post("/", taskHandler.Create)
			r.Get("/{id}", taskHandler.Get)
			r.Put("/{id}", taskHandler.Update)
			r.Delete("/{id}", taskHandler.Delete)
		})
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
