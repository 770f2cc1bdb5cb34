package competitor

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/toko-smartprice/internal/obs"
)

// Aggregator queries every Source concurrently and merges the results.
type Aggregator struct {
	Sources []Source
	Logger  zerolog.Logger
}

// NewAggregator builds an Aggregator over the enabled sources. Sources
// reporting Enabled() == false are skipped.
func NewAggregator(logger zerolog.Logger, sources ...Source) *Aggregator {
	enabled := make([]Source, 0, len(sources))
	for _, src := range sources {
		if src == nil {
			continue
		}
		if toggle, ok := src.(interface{ Enabled() bool }); ok && !toggle.Enabled() {
			continue
		}
		enabled = append(enabled, src)
	}
	return &Aggregator{
		Sources: enabled,
		Logger:  logger.With().Str("component", "competitor").Logger(),
	}
}

// FetchQuotes implements Lookup. Failed sources contribute nothing. Quotes are
// deduplicated by name (a later source wins for the same name), stripped of
// non-positive prices and sorted ascending by price.
func (a *Aggregator) FetchQuotes(ctx context.Context, productName string) []Quote {
	if a == nil || len(a.Sources) == 0 || strings.TrimSpace(productName) == "" {
		return []Quote{}
	}

	results := make([][]Quote, len(a.Sources))
	var g errgroup.Group
	for i, src := range a.Sources {
		g.Go(func() error {
			quotes, err := src.Search(ctx, productName)
			if err != nil {
				obs.MarkDegraded("competitor:" + src.Name())
				a.Logger.Warn().Err(err).Str("source", src.Name()).Str("product", productName).Msg("competitor_fetch_failed")
				return nil
			}
			results[i] = quotes
			return nil
		})
	}
	_ = g.Wait()

	return merge(results)
}

func merge(batches [][]Quote) []Quote {
	index := make(map[string]int)
	merged := make([]Quote, 0)
	for _, batch := range batches {
		for _, q := range batch {
			if !q.Price.IsPositive() {
				continue
			}
			if pos, ok := index[q.Name]; ok {
				merged[pos] = q
				continue
			}
			index[q.Name] = len(merged)
			merged = append(merged, q)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Price.LessThan(merged[j].Price)
	})
	return merged
}
