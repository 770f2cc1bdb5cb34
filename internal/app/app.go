// Package app assembles the services shared by the API and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/toko-smartprice/internal/auth"
	"github.com/noah-isme/toko-smartprice/internal/cart"
	"github.com/noah-isme/toko-smartprice/internal/catalog"
	"github.com/noah-isme/toko-smartprice/internal/competitor"
	"github.com/noah-isme/toko-smartprice/internal/config"
	"github.com/noah-isme/toko-smartprice/internal/health"
	"github.com/noah-isme/toko-smartprice/internal/lock"
	"github.com/noah-isme/toko-smartprice/internal/obs"
	"github.com/noah-isme/toko-smartprice/internal/order"
	"github.com/noah-isme/toko-smartprice/internal/payment"
	"github.com/noah-isme/toko-smartprice/internal/predictor"
	"github.com/noah-isme/toko-smartprice/internal/pricing"
	"github.com/noah-isme/toko-smartprice/internal/ratelimit"
	"github.com/noah-isme/toko-smartprice/internal/repricing"
	"github.com/noah-isme/toko-smartprice/internal/resilience"
	"github.com/noah-isme/toko-smartprice/internal/store/memory"
	"github.com/noah-isme/toko-smartprice/internal/store/postgres"
	"github.com/noah-isme/toko-smartprice/internal/tasks"
)

// MetricsNamespace prefixes every domain and HTTP metric.
const MetricsNamespace = "smartprice"

// Store is the persistence surface used by the storefront services.
type Store interface {
	catalog.Store
	cart.Store
	order.Store
}

// Dependencies carries pre-built infrastructure. Nil fields are created from
// the configuration; tests inject miniredis clients and in-memory stores.
type Dependencies struct {
	Redis     *redis.Client
	Store     Store
	Predictor predictor.Predictor
	Lookup    competitor.Lookup
	Gateway   payment.Gateway
	Now       func() time.Time
}

// App holds the wired services.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Redis    *redis.Client
	Store    Store
	Engine   *pricing.Engine
	Repricer *repricing.Service
	Catalog  *catalog.Service
	Carts    *cart.Service
	Orders   *order.Service
	Payments *payment.Service
	Verifier *auth.Verifier
	Limits   limiter.Store
	Tasks    *asynq.Client
	Checks   []health.Check

	closers []func()
}

// New builds every service from cfg. Infrastructure present in deps is used as is.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, deps Dependencies) (*App, error) {
	decimal.MarshalJSONWithoutQuotes = true
	obs.MustRegisterDomainMetrics(MetricsNamespace, prometheus.DefaultRegisterer)
	tasks.MustRegisterMetrics(prometheus.DefaultRegisterer)
	resilience.MustRegisterMetrics(prometheus.DefaultRegisterer)

	a := &App{Config: cfg, Logger: logger, Engine: pricing.New(cfg.Pricing)}

	rdb := deps.Redis
	if rdb == nil && cfg.RedisURL != "" {
		var err error
		if rdb, err = openRedis(ctx, cfg.RedisURL, logger); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		})
	}
	a.Redis = rdb

	store := deps.Store
	if store == nil {
		var err error
		if store, err = a.openStore(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Store = store

	lookup := deps.Lookup
	if lookup == nil {
		sources := make([]competitor.Source, 0, len(cfg.Competitors))
		for _, src := range cfg.Competitors {
			sources = append(sources, competitor.NewHTTPSource(competitor.HTTPSourceConfig{
				Name:    src.Name,
				BaseURL: src.BaseURL,
				APIKey:  src.APIKey,
				Limit:   cfg.CompetitorLimit,
				Timeout: cfg.CompetitorTimeout,
			}))
		}
		lookup = competitor.NewAggregator(logger, sources...)
	}

	predictorClient := predictor.NewClient(predictor.ClientConfig{
		BaseURL: cfg.AIServiceURL,
		Timeout: cfg.AITimeout,
		Logger:  logger,
	})
	var pred predictor.Predictor = predictorClient
	if deps.Predictor != nil {
		pred = deps.Predictor
	}

	cache := catalog.NewCache(rdb, cfg.CatalogCacheTTL)
	var locker repricing.Locker
	if rdb != nil {
		locker = lock.Locker{R: rdb, RetryBackoff: 50 * time.Millisecond, MaxWait: cfg.RepriceLockTTL}
	}

	repricer, err := repricing.New(repricing.Config{
		Store:     store,
		Lookup:    lookup,
		Predictor: pred,
		Engine:    a.Engine,
		Locker:    locker,
		LockTTL:   cfg.RepriceLockTTL,
		Cache:     cache,
		Logger:    logger,
		Now:       deps.Now,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Repricer = repricer

	var enqueuer catalog.Enqueuer
	if cfg.RedisURL != "" && deps.Redis == nil {
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse task broker url: %w", err)
		}
		a.Tasks = asynq.NewClient(redisOpt)
		a.closers = append(a.closers, func() { _ = a.Tasks.Close() })
		enqueuer = tasks.NewEnqueuer(a.Tasks, cfg.TaskMaxRetry, cfg.TaskDedupWindow)
	}

	a.Catalog, err = catalog.NewService(catalog.ServiceConfig{
		Store:    store,
		Cache:    cache,
		Repricer: repricer,
		Lookup:   lookup,
		Engine:   a.Engine,
		Enqueuer: enqueuer,
		Logger:   logger,
		Now:      deps.Now,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Carts = &cart.Service{Store: store, Products: store, Engine: a.Engine}
	a.Orders = &order.Service{Store: store, Carts: a.Carts, Logger: logger, Now: deps.Now}

	gateway := deps.Gateway
	if gateway == nil {
		if rzp := payment.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayBaseURL, cfg.PaymentTimeout); rzp != nil {
			gateway = rzp
		}
	}
	a.Payments = &payment.Service{
		Gateway:  gateway,
		Orders:   a.Orders,
		KeyID:    cfg.RazorpayKeyID,
		Currency: cfg.PaymentCurrency,
		Logger:   logger,
		Now:      deps.Now,
	}

	a.Verifier, err = auth.NewVerifier(auth.Config{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ClockSkew: 30 * time.Second,
		Now:       deps.Now,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if a.Limits, err = ratelimit.NewStore(rdb); err != nil {
		a.Close()
		return nil, fmt.Errorf("rate limit store: %w", err)
	}

	a.Checks = a.healthChecks(predictorClient)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (Store, error) {
	switch a.Config.StoreDriver {
	case config.StoreDriverMemory:
		a.Logger.Warn().Msg("using in-memory store; data is lost on restart")
		return memory.New(), nil
	case config.StoreDriverPostgres:
		if a.Config.MigrationsAuto {
			if err := postgres.Migrate(a.Config.DatabaseURL); err != nil {
				return nil, err
			}
			a.Logger.Info().Msg("migrations applied")
		}
		pg, err := postgres.Open(ctx, a.Config.DatabaseURL, a.Config.DBMaxConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.Config.StoreDriver)
	}
}

func (a *App) healthChecks(pred *predictor.Client) []health.Check {
	var checks []health.Check
	if pinger, ok := a.Store.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, health.Check{Name: "database", Critical: true, Timeout: 500 * time.Millisecond, Probe: pinger.Ping})
	}
	if a.Redis != nil {
		rdb := a.Redis
		checks = append(checks, health.Check{
			Name:     "redis",
			Critical: true,
			Timeout:  300 * time.Millisecond,
			Probe:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	if a.Config.AIServiceURL != "" {
		checks = append(checks, health.Check{
			Name:    "predictor",
			Timeout: 3 * time.Second,
			Probe: func(ctx context.Context) error {
				if !pred.Healthy(ctx) {
					return errors.New("unhealthy")
				}
				return nil
			},
		})
	}
	return checks
}

// Close releases connections opened by New in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openRedis(ctx context.Context, url string, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
