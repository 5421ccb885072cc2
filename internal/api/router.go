/**
 * @description
 * HTTP router setup for the credits service using go-chi/chi.
 */
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/app"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/metrics"
)

// RouterConfig carries the collaborators the router wires into middleware.
type RouterConfig struct {
	Authenticator     Authenticator
	InternalAPIKey    string
	AllowedOrigins    []string
	Limiter           app.RateLimiter
	CheckoutPerMinute int
	VerifyPerMinute   int
	Logger            *slog.Logger
}

// NewRouter creates a new Chi router and registers the credit routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Client-Info", "apikey", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Credits service is healthy"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Get("/credit-packages", h.handleListPackages)

	r.Route("/internal/ledger", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Post("/reconcile", h.handleReconcileLedger)
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Authenticator, logger))

		r.With(RateLimitMiddleware(cfg.Limiter, app.RateLimitScopeCheckout, cfg.CheckoutPerMinute, logger)).
			Post("/payments/checkout", h.handleCreateCheckout)
		r.With(RateLimitMiddleware(cfg.Limiter, app.RateLimitScopeVerify, cfg.VerifyPerMinute, logger)).
			Post("/payments/verify", h.handleVerifyPayment)

		r.Get("/credits/balance", h.handleGetBalance)
		r.Get("/credits/transactions", h.handleListTransactions)
	})

	return r
}
