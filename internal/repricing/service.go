// Package repricing refreshes product prices from competitor quotes and the
// price prediction service.
package repricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-smartprice/internal/catalog"
	"github.com/noah-isme/toko-smartprice/internal/competitor"
	"github.com/noah-isme/toko-smartprice/internal/lock"
	"github.com/noah-isme/toko-smartprice/internal/obs"
	"github.com/noah-isme/toko-smartprice/internal/predictor"
	"github.com/noah-isme/toko-smartprice/internal/pricing"
)

// Locker serialises writers of the same key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service implements catalog.Repricer.
//
// Writes are guarded by the product version: a concurrent write makes the
// update fail with catalog.ErrConflict and the whole pipeline reruns against
// the fresh row, up to MaxAttempts times. An optional Locker additionally
// queues writers for the same product across processes.
type Service struct {
	store       catalog.Store
	lookup      competitor.Lookup
	predictor   predictor.Predictor
	engine      *pricing.Engine
	locker      Locker
	lockTTL     time.Duration
	cache       *catalog.Cache
	logger      zerolog.Logger
	now         func() time.Time
	maxAttempts int
}

// Config groups Service dependencies.
type Config struct {
	Store       catalog.Store
	Lookup      competitor.Lookup
	Predictor   predictor.Predictor
	Engine      *pricing.Engine
	Locker      Locker
	LockTTL     time.Duration
	Cache       *catalog.Cache
	Logger      zerolog.Logger
	Now         func() time.Time
	MaxAttempts int
}

// New constructs a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("repricing: store is required")
	}
	if cfg.Lookup == nil {
		return nil, errors.New("repricing: competitor lookup is required")
	}
	if cfg.Predictor == nil {
		return nil, errors.New("repricing: predictor is required")
	}
	engine := cfg.Engine
	if engine == nil {
		engine = pricing.New(pricing.DefaultOptions())
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{
		store:       cfg.Store,
		lookup:      cfg.Lookup,
		predictor:   cfg.Predictor,
		engine:      engine,
		locker:      cfg.Locker,
		lockTTL:     ttl,
		cache:       cfg.Cache,
		logger:      cfg.Logger.With().Str("component", "repricing").Logger(),
		now:         now,
		maxAttempts: attempts,
	}, nil
}

// Recompute refreshes the final price of one product:
//
//	reference = min(basePrice, competitor quotes..., predicted price)
//	finalPrice = smart price rule(reference), or basePrice when the rule yields no price
//
// Competitor and prediction failures only narrow the candidate set. The only
// error surfaced for a healthy store is catalog.ErrNotFound.
//
// Every call reads the row afresh, so a write that lands while another
// recompute is running still gets its own pass.
func (s *Service) Recompute(ctx context.Context, productID string) (catalog.Product, error) {
	start := time.Now()
	product, err := s.mutate(ctx, productID, s.applyRecompute)
	obs.ObserveRecompute(resultLabel(err), time.Since(start))
	if err != nil {
		return catalog.Product{}, err
	}
	s.logger.Info().
		Str("product_id", product.ID).
		Str("base_price", product.BasePrice.StringFixed(2)).
		Str("final_price", product.FinalPrice.StringFixed(2)).
		Dur("took", time.Since(start)).
		Msg("price_recomputed")
	return product, nil
}

// Sync re-bases a product on the cheapest marketplace listing: basePrice
// becomes the lowest quote and finalPrice the smart price of it. Without
// quotes the product is returned unchanged.
func (s *Service) Sync(ctx context.Context, productID string) (catalog.Product, error) {
	return s.mutate(ctx, productID, s.applySync)
}

// applyFunc rewrites p in place and reports whether it needs persisting.
type applyFunc func(ctx context.Context, p *catalog.Product) bool

func (s *Service) applyRecompute(ctx context.Context, p *catalog.Product) bool {
	quotes := s.lookup.FetchQuotes(ctx, p.Name)
	prediction := s.predictor.PredictPrice(ctx, p.ID, p.BasePrice, predictor.Features{
		Category:    p.Category,
		Stock:       p.Stock,
		Demand:      p.RatingCount,
		Competition: len(quotes),
	})
	candidates := append(competitor.Prices(quotes), prediction.PredictedPrice)
	reference := pricing.Lowest(p.BasePrice, candidates...)

	final := s.engine.ApplySmartPrice(pricing.Null(reference))
	if final.Valid {
		p.FinalPrice = final.Decimal
	} else {
		p.FinalPrice = p.BasePrice
	}
	if len(quotes) > 0 {
		now := s.now().UTC()
		p.Metadata.Competitors = competitor.Sample(quotes)
		p.Metadata.LastSync = &now
	}
	s.logger.Debug().
		Str("product_id", p.ID).
		Int("quotes", len(quotes)).
		Str("strategy", prediction.Strategy).
		Str("reference", reference.String()).
		Msg("reference_price_selected")
	return true
}

func (s *Service) applySync(ctx context.Context, p *catalog.Product) bool {
	quotes := s.lookup.FetchQuotes(ctx, p.Name)
	if len(quotes) == 0 {
		return false
	}
	lowest := pricing.Round2(quotes[0].Price)
	final := s.engine.ApplySmartPrice(pricing.Null(lowest))
	if !final.Valid {
		return false
	}
	now := s.now().UTC()
	p.BasePrice = lowest
	p.FinalPrice = final.Decimal
	p.Metadata.Competitors = competitor.Sample(quotes)
	p.Metadata.LastSync = &now
	return true
}

// mutate loads the product, applies fn and writes the result with a version
// check, retrying on conflict.
func (s *Service) mutate(ctx context.Context, productID string, fn applyFunc) (catalog.Product, error) {
	var out catalog.Product
	run := func(ctx context.Context) error {
		var err error
		out, err = s.casLoop(ctx, productID, fn)
		return err
	}
	if s.locker == nil {
		return out, run(ctx)
	}

	ran := false
	err := s.locker.WithLock(ctx, lock.ProductKey(productID), s.lockTTL, func(ctx context.Context) error {
		ran = true
		return run(ctx)
	})
	if ran {
		return out, err
	}
	if ctx.Err() != nil {
		return catalog.Product{}, ctx.Err()
	}
	// lock unavailable; the version check alone still prevents lost updates
	s.logger.Warn().Err(err).Str("product_id", productID).Msg("reprice_lock_unavailable")
	return out, run(ctx)
}

func (s *Service) casLoop(ctx context.Context, productID string, fn applyFunc) (catalog.Product, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		product, err := s.store.GetProduct(ctx, productID)
		if err != nil {
			return catalog.Product{}, err
		}
		if !fn(ctx, &product) {
			return product, nil
		}
		product.UpdatedAt = s.now().UTC()
		updated, err := s.store.UpdateProduct(ctx, product)
		if errors.Is(err, catalog.ErrConflict) {
			s.logger.Debug().Str("product_id", productID).Int("attempt", attempt).Msg("reprice_version_conflict")
			continue
		}
		if err != nil {
			return catalog.Product{}, fmt.Errorf("update product: %w", err)
		}
		if s.cache != nil {
			_ = s.cache.InvalidateProduct(ctx, productID)
		}
		return updated, nil
	}
	return catalog.Product{}, fmt.Errorf("reprice %s after %d attempts: %w", productID, s.maxAttempts, catalog.ErrConflict)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, catalog.ErrNotFound):
		return "not_found"
	case errors.Is(err, catalog.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
