package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-smartprice/internal/common"
	"github.com/noah-isme/toko-smartprice/internal/competitor"
	"github.com/noah-isme/toko-smartprice/internal/pricing"
)

const (
	defaultSearchDescription = "Fetched from e-commerce platforms"
	defaultSearchCategory    = "General"
	defaultSearchImage       = "https://via.placeholder.com/400x300?text=Product"
	defaultSearchStock       = 10
)

// Repricer refreshes a product's final price from external signals.
type Repricer interface {
	Recompute(ctx context.Context, productID string) (Product, error)
	Sync(ctx context.Context, productID string) (Product, error)
}

// Enqueuer schedules a background recomputation.
type Enqueuer interface {
	EnqueueRecompute(ctx context.Context, productID string) error
}

// Service orchestrates catalog queries, caching and price refreshes.
type Service struct {
	store        Store
	cache        *Cache
	repricer     Repricer
	lookup       competitor.Lookup
	engine       *pricing.Engine
	enqueuer     Enqueuer
	logger       zerolog.Logger
	now          func() time.Time
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store        Store
	Cache        *Cache
	Repricer     Repricer
	Lookup       competitor.Lookup
	Engine       *pricing.Engine
	Enqueuer     Enqueuer
	Logger       zerolog.Logger
	Now          func() time.Time
	DefaultLimit int
	MaxLimit     int
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []Product
	Total int64
	Page  int
	Limit int
}

// CreateInput is the payload for creating a product.
type CreateInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Images      []string        `json:"images"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	Stock       int             `json:"stock" validate:"gte=0"`
	Tags        []string        `json:"tags"`
}

// UpdateInput patches a product; nil fields are left untouched.
type UpdateInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Images      []string         `json:"images"`
	BasePrice   *decimal.Decimal `json:"basePrice"`
	Stock       *int             `json:"stock" validate:"omitnil,gte=0"`
	Tags        []string         `json:"tags"`
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	if cfg.Repricer == nil {
		return nil, errors.New("catalog: repricer is required")
	}
	engine := cfg.Engine
	if engine == nil {
		engine = pricing.New(pricing.DefaultOptions())
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		store:        cfg.Store,
		cache:        cfg.Cache,
		repricer:     cfg.Repricer,
		lookup:       cfg.Lookup,
		engine:       engine,
		enqueuer:     cfg.Enqueuer,
		logger:       cfg.Logger.With().Str("component", "catalog").Logger(),
		now:          now,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Page: 1, Limit: s.defaultLimit}
	params.Query = strings.TrimSpace(values.Get("q"))
	params.Category = strings.TrimSpace(values.Get("category"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, common.BadRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return params, common.BadRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = min(limit, s.maxLimit)
	}
	return params, nil
}

// List returns products newest first. The unfiltered first page is cached.
func (s *Service) List(ctx context.Context, params ListParams) (ListResult, error) {
	cacheable := params.Page == 1 && params.Limit == s.defaultLimit && params.Query == "" && params.Category == ""
	if cacheable {
		if items, total, ok := s.cache.FirstPage(ctx); ok {
			return ListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}, nil
		}
	}
	items, total, err := s.store.ListProducts(ctx, params)
	if err != nil {
		return ListResult{}, fmt.Errorf("list products: %w", err)
	}
	if cacheable {
		_ = s.cache.PutFirstPage(ctx, items, total)
	}
	return ListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}, nil
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, common.BadRequest("id", "id is required", nil)
	}
	if cached, ok := s.cache.Product(ctx, id); ok {
		return cached, nil
	}
	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, storeError(err)
	}
	_ = s.cache.PutProduct(ctx, product)
	return product, nil
}

// Categories returns the distinct product categories.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if len(cats) == 0 {
		return nil, common.NotFound("No categories found", nil)
	}
	return cats, nil
}

// Create persists a new product and prices it through the repricer.
func (s *Service) Create(ctx context.Context, in CreateInput) (Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	in.BasePrice = pricing.Round2(in.BasePrice)
	if in.Name == "" || in.Category == "" || !in.BasePrice.IsPositive() {
		return Product{}, common.BadRequest("", "Missing required fields", nil)
	}
	if in.Stock < 0 {
		return Product{}, common.BadRequest("stock", "stock must not be negative", nil)
	}
	now := s.now().UTC()
	product := Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		Images:      nonNil(in.Images),
		BasePrice:   in.BasePrice,
		FinalPrice:  in.BasePrice,
		Stock:       in.Stock,
		Tags:        nonNil(in.Tags),
		Metadata:    Metadata{Competitors: []competitor.Quote{}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.store.InsertProduct(ctx, product); err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	_ = s.cache.InvalidateProduct(ctx, product.ID)
	return s.reprice(ctx, product.ID)
}

// Update patches a product and re-prices it.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Product, error) {
	current, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, storeError(err)
	}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return Product{}, common.BadRequest("name", "name must not be empty", nil)
		}
		current.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		current.Description = *in.Description
	}
	if in.Category != nil {
		if strings.TrimSpace(*in.Category) == "" {
			return Product{}, common.BadRequest("category", "category must not be empty", nil)
		}
		current.Category = strings.TrimSpace(*in.Category)
	}
	if in.Images != nil {
		current.Images = in.Images
	}
	if in.BasePrice != nil {
		base := pricing.Round2(*in.BasePrice)
		if !base.IsPositive() {
			return Product{}, common.BadRequest("basePrice", "basePrice must be positive", nil)
		}
		current.BasePrice = base
	}
	if in.Stock != nil {
		if *in.Stock < 0 {
			return Product{}, common.BadRequest("stock", "stock must not be negative", nil)
		}
		current.Stock = *in.Stock
	}
	if in.Tags != nil {
		current.Tags = in.Tags
	}
	current.UpdatedAt = s.now().UTC()
	if _, err := s.store.UpdateProduct(ctx, current); err != nil {
		return Product{}, storeError(err)
	}
	_ = s.cache.InvalidateProduct(ctx, id)
	return s.reprice(ctx, id)
}

// Delete removes a product.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return storeError(err)
	}
	_ = s.cache.InvalidateProduct(ctx, id)
	return nil
}

// SearchAndCreate returns the product named name, importing it from the
// cheapest marketplace listing when it is not in the catalog yet. created
// reports whether a new product was stored.
func (s *Service) SearchAndCreate(ctx context.Context, name string) (product Product, created bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Product{}, false, common.BadRequest("name", "Product name required", nil)
	}
	existing, err := s.store.FindProductByName(ctx, name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Product{}, false, fmt.Errorf("find product by name: %w", err)
	}

	var quotes []competitor.Quote
	if s.lookup != nil {
		quotes = s.lookup.FetchQuotes(ctx, name)
	}
	if len(quotes) == 0 {
		return Product{}, false, common.NotFound("Product not found on web", nil)
	}
	best := quotes[0]
	final := s.engine.ApplySmartPrice(pricing.Null(best.Price))
	if !final.Valid {
		return Product{}, false, common.NotFound("Product not found on web", nil)
	}
	lowest := pricing.Round2(best.Price)
	now := s.now().UTC()
	product = Product{
		ID:          uuid.NewString(),
		Name:        firstNonEmpty(best.Name, name),
		Description: firstNonEmpty(best.Description, defaultSearchDescription),
		Category:    firstNonEmpty(best.Category, defaultSearchCategory),
		Images:      best.Images,
		BasePrice:   lowest,
		FinalPrice:  final.Decimal,
		Stock:       best.Stock,
		Tags:        []string{},
		Metadata: Metadata{
			Source:        firstNonEmpty(best.Source, "multiple"),
			OriginalPrice: &lowest,
			Competitors:   competitor.Sample(quotes),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(product.Images) == 0 {
		product.Images = []string{defaultSearchImage}
	}
	if product.Stock <= 0 {
		product.Stock = defaultSearchStock
	}
	stored, err := s.store.InsertProduct(ctx, product)
	if err != nil {
		return Product{}, false, fmt.Errorf("insert product: %w", err)
	}
	_ = s.cache.InvalidateProduct(ctx, stored.ID)
	s.logger.Info().Str("product_id", stored.ID).Str("name", stored.Name).Str("base_price", lowest.String()).Msg("product_imported")
	return stored, true, nil
}

// SyncPrices re-bases a product on the cheapest marketplace listing.
func (s *Service) SyncPrices(ctx context.Context, id string) (Product, error) {
	product, err := s.repricer.Sync(ctx, id)
	if err != nil {
		return Product{}, storeError(err)
	}
	return product, nil
}

// Reprice runs the recomputation pipeline for one product.
func (s *Service) Reprice(ctx context.Context, id string) (Product, error) {
	return s.reprice(ctx, id)
}

// RepriceAll schedules a recomputation for every product. Without an
// enqueuer the products are re-priced inline. It returns the number of
// products scheduled.
func (s *Service) RepriceAll(ctx context.Context) (int, error) {
	ids, err := s.store.ListProductIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list product ids: %w", err)
	}
	for i, id := range ids {
		if s.enqueuer != nil {
			if err := s.enqueuer.EnqueueRecompute(ctx, id); err != nil {
				return i, fmt.Errorf("enqueue recompute %s: %w", id, err)
			}
			continue
		}
		if _, err := s.reprice(ctx, id); err != nil && !isNotFound(err) {
			return i, err
		}
	}
	return len(ids), nil
}

func (s *Service) reprice(ctx context.Context, id string) (Product, error) {
	product, err := s.repricer.Recompute(ctx, id)
	if err != nil {
		return Product{}, storeError(err)
	}
	return product, nil
}

func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case common.IsAppError(err):
		return err
	case errors.Is(err, ErrNotFound):
		return common.NotFound("Product not found", err)
	case errors.Is(err, ErrConflict):
		return common.Conflict("product was modified concurrently, retry", err)
	default:
		return err
	}
}

func isNotFound(err error) bool {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == "NOT_FOUND"
	}
	return errors.Is(err, ErrNotFound)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
