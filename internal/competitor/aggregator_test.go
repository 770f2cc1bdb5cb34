package competitor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-smartprice/internal/competitor"
)

type stubSource struct {
	name   string
	quotes []competitor.Quote
	err    error
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) Search(context.Context, string) ([]competitor.Quote, error) {
	return s.quotes, s.err
}

func quote(name, price, source string) competitor.Quote {
	return competitor.Quote{Name: name, Price: decimal.RequireFromString(price), Source: source}
}

func TestAggregatorMergesAndSorts(t *testing.T) {
	agg := competitor.NewAggregator(zerolog.Nop(),
		stubSource{name: "amazon", quotes: []competitor.Quote{
			quote("Kettle A", "210", "amazon"),
			quote("Kettle B", "180", "amazon"),
		}},
		stubSource{name: "flipkart", quotes: []competitor.Quote{
			quote("Kettle A", "205", "flipkart"),
			quote("Kettle C", "0", "flipkart"),
			quote("Kettle D", "199.50", "flipkart"),
		}},
	)

	got := agg.FetchQuotes(context.Background(), "kettle")
	require.Len(t, got, 3)
	require.Equal(t, "Kettle B", got[0].Name)
	require.Equal(t, "Kettle D", got[1].Name)
	require.Equal(t, "Kettle A", got[2].Name)
	require.Equal(t, "flipkart", got[2].Source, "later source wins for duplicate names")
	require.Equal(t, "205", got[2].Price.String())
}

func TestAggregatorAbsorbsFailures(t *testing.T) {
	agg := competitor.NewAggregator(zerolog.Nop(),
		stubSource{name: "amazon", err: errors.New("timeout")},
		stubSource{name: "flipkart", quotes: []competitor.Quote{quote("Kettle", "99", "flipkart")}},
	)
	got := agg.FetchQuotes(context.Background(), "kettle")
	require.Len(t, got, 1)

	failing := competitor.NewAggregator(zerolog.Nop(), stubSource{name: "amazon", err: errors.New("down")})
	require.Empty(t, failing.FetchQuotes(context.Background(), "kettle"))
}

func TestAggregatorSkipsDisabledSources(t *testing.T) {
	disabled := competitor.NewHTTPSource(competitor.HTTPSourceConfig{Name: "amazon", BaseURL: "http://example.invalid"})
	require.False(t, disabled.Enabled())

	agg := competitor.NewAggregator(zerolog.Nop(), disabled)
	require.Empty(t, agg.Sources)
	require.Empty(t, agg.FetchQuotes(context.Background(), "kettle"))
}

func TestSample(t *testing.T) {
	quotes := []competitor.Quote{
		quote("a", "1", "x"), quote("b", "2", "x"), quote("c", "3", "x"),
		quote("d", "4", "x"), quote("e", "5", "x"), quote("f", "6", "x"),
	}
	sample := competitor.Sample(quotes)
	require.Len(t, sample, competitor.SampleSize)
	require.Equal(t, "b", sample[0].Name)
	require.Equal(t, "e", sample[3].Name)

	require.Empty(t, competitor.Sample(quotes[:1]))
	require.Len(t, competitor.Sample(quotes[:3]), 2)
}
