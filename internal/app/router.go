package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/toko-smartprice/internal/auth"
	"github.com/noah-isme/toko-smartprice/internal/cart"
	"github.com/noah-isme/toko-smartprice/internal/catalog"
	"github.com/noah-isme/toko-smartprice/internal/common"
	"github.com/noah-isme/toko-smartprice/internal/health"
	"github.com/noah-isme/toko-smartprice/internal/obs"
	"github.com/noah-isme/toko-smartprice/internal/order"
	"github.com/noah-isme/toko-smartprice/internal/payment"
	"github.com/noah-isme/toko-smartprice/internal/ratelimit"
	"github.com/noah-isme/toko-smartprice/internal/security"
)

// Router builds the HTTP surface of the API.
func (a *App) Router() (http.Handler, error) {
	cfg := a.Config
	logger := a.Logger

	searchLimiter, err := ratelimit.NewLimiter(a.Limits, cfg.RateLimitSearch)
	if err != nil {
		return nil, err
	}
	limit := func(scope string) func(http.Handler) http.Handler {
		return ratelimit.Handler{
			Limiter: searchLimiter,
			Scope:   scope,
			Key:     ratelimit.KeyByUserOrIP,
			OnError: func(err error) { logger.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable") },
		}.Middleware
	}

	authMiddleware := auth.Middleware{Verifier: a.Verifier, AccessCookie: cfg.AccessCookie}
	adminOnly := []func(http.Handler) http.Handler{authMiddleware.RequireAuth, auth.RequireRole(common.RoleAdmin)}
	idem := common.Idem{R: a.Redis, TTL: cfg.IdempotencyTTL}

	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: a.Catalog})
	cartHandler := &cart.Handler{Svc: a.Carts}
	orderHandler := &order.Handler{Svc: a.Orders}
	paymentHandler := &payment.Handler{Svc: a.Payments}
	healthHandler := health.Handler{Checks: a.Checks}

	httpMetrics := obs.NewHTTPMetrics(MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), prometheus.DefaultRegisterer)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.TracingMiddleware)
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(authMiddleware.Authenticate)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{EnableHSTS: cfg.EnableHSTS || cfg.IsProduction()}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.CSRF{AccessCookie: cfg.AccessCookie}.Middleware)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/health", healthHandler.Live)
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{id}", catalogHandler.Product)
		v.Get("/categories", catalogHandler.Categories)

		v.Route("/cart", func(c chi.Router) {
			c.Use(authMiddleware.RequireAuth)
			c.Get("/", cartHandler.Get)
			c.Delete("/", cartHandler.Clear)
			c.Post("/items", cartHandler.Add)
			c.Put("/items", cartHandler.Update)
			c.Delete("/items/{productID}", cartHandler.Remove)
		})

		v.Route("/orders", func(o chi.Router) {
			o.Use(authMiddleware.RequireAuth)
			o.With(idem.Middleware).Post("/", orderHandler.Place)
			o.Get("/", orderHandler.List)
			o.Get("/{id}", orderHandler.Get)
		})

		v.Route("/payments", func(p chi.Router) {
			p.Use(authMiddleware.RequireAuth)
			p.Use(idem.Middleware)
			p.Post("/order", paymentHandler.CreateOrder)
			p.Post("/verify", paymentHandler.Verify)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(adminOnly...)
			admin.Post("/products", catalogHandler.Create)
			admin.With(limit("search")).Get("/products/search", catalogHandler.Search)
			admin.Post("/products/reprice", catalogHandler.RepriceAll)
			admin.Put("/products/{id}", catalogHandler.Update)
			admin.Delete("/products/{id}", catalogHandler.Delete)
			admin.With(limit("sync")).Post("/products/{id}/sync", catalogHandler.Sync)
			admin.Post("/products/{id}/reprice", catalogHandler.Reprice)
			admin.Patch("/orders/{id}/status", orderHandler.PatchStatus)
		})
	})

	return r, nil
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
