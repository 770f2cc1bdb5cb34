// Package competitor looks up marketplace prices for a product name.
package competitor

import (
	"context"

	"github.com/shopspring/decimal"
)

// Quote is one marketplace listing observed for a product name.
type Quote struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Source      string          `json:"source"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Images      []string        `json:"images,omitempty"`
	Stock       int             `json:"stock,omitempty"`
}

// Lookup returns competitor quotes for a product name, sorted ascending by
// price. Implementations never fail: an unreachable marketplace yields no quotes.
type Lookup interface {
	FetchQuotes(ctx context.Context, productName string) []Quote
}

// Source is a single marketplace search backend.
type Source interface {
	Name() string
	Search(ctx context.Context, query string) ([]Quote, error)
}

// SampleSize caps the competitor listings kept on a product.
const SampleSize = 4

// Sample returns the runner-up quotes (skipping the cheapest, which becomes the
// reference) capped at SampleSize.
func Sample(quotes []Quote) []Quote {
	if len(quotes) <= 1 {
		return []Quote{}
	}
	end := 1 + SampleSize
	if end > len(quotes) {
		end = len(quotes)
	}
	out := make([]Quote, end-1)
	copy(out, quotes[1:end])
	return out
}

// Prices extracts the price of every quote.
func Prices(quotes []Quote) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, q.Price)
	}
	return out
}
