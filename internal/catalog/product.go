package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-smartprice/internal/competitor"
)

var (
	// ErrNotFound is returned by stores when a product does not exist.
	ErrNotFound = errors.New("catalog: product not found")
	// ErrConflict is returned by UpdateProduct when the stored version moved on.
	ErrConflict = errors.New("catalog: product version conflict")
)

// Metadata records where a product's price came from.
type Metadata struct {
	Source        string             `json:"source,omitempty"`
	OriginalPrice *decimal.Decimal   `json:"originalPrice,omitempty"`
	Competitors   []competitor.Quote `json:"competitors"`
	LastSync      *time.Time         `json:"lastSync,omitempty"`
}

// Product is a catalog entry. FinalPrice is always derived by the smart price
// rule; BasePrice is the catalog reference price.
type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Images        []string        `json:"images"`
	BasePrice     decimal.Decimal `json:"basePrice"`
	FinalPrice    decimal.Decimal `json:"finalPrice"`
	Stock         int             `json:"stock"`
	RatingAverage float64         `json:"ratingAverage"`
	RatingCount   int             `json:"ratingCount"`
	Tags          []string        `json:"tags"`
	Metadata      Metadata        `json:"metadata"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query    string
	Category string
	Page     int
	Limit    int
}

// Offset returns the number of rows to skip for the requested page.
func (p ListParams) Offset() int {
	if p.Page < 1 || p.Limit < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Store persists products.
//
// UpdateProduct is a compare-and-swap on Version: it writes only when the
// stored version equals p.Version and returns the product with the version
// incremented. A mismatch yields ErrConflict, a missing row ErrNotFound.
type Store interface {
	ListProducts(ctx context.Context, params ListParams) ([]Product, int64, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	FindProductByName(ctx context.Context, name string) (Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	InsertProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) (Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ListProductIDs(ctx context.Context) ([]string, error)
}
