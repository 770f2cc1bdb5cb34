package pricing_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-smartprice/internal/pricing"
)

func money(s string) pricing.Money {
	return decimal.RequireFromString(s)
}

func requireMoney(t *testing.T, want string, got pricing.Money) {
	t.Helper()
	require.Equal(t, want, got.StringFixed(2))
}

func TestComputeEmptyCart(t *testing.T) {
	b, err := pricing.Compute(nil)
	require.NoError(t, err)
	requireMoney(t, "0.00", b.Subtotal)
	requireMoney(t, "50.00", b.Shipping)
	requireMoney(t, "0.00", b.Tax)
	requireMoney(t, "50.00", b.Total)
}

func TestComputeSingleItemAboveThreshold(t *testing.T) {
	b, err := pricing.Compute([]pricing.LineItem{{UnitPrice: money("500"), Quantity: 3}})
	require.NoError(t, err)
	requireMoney(t, "1500.00", b.Subtotal)
	requireMoney(t, "0.00", b.Shipping)
	requireMoney(t, "270.00", b.Tax)
	requireMoney(t, "1770.00", b.Total)
}

func TestComputeShippingThresholdIsStrict(t *testing.T) {
	cases := []struct {
		name     string
		items    []pricing.LineItem
		shipping string
	}{
		{"exactly threshold", []pricing.LineItem{{UnitPrice: money("1000"), Quantity: 1}}, "50.00"},
		{"threshold split across items", []pricing.LineItem{{UnitPrice: money("250"), Quantity: 4}}, "50.00"},
		{"one cent above", []pricing.LineItem{{UnitPrice: money("1000.01"), Quantity: 1}}, "0.00"},
		{"below", []pricing.LineItem{{UnitPrice: money("999.99"), Quantity: 1}}, "50.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := pricing.Compute(tc.items)
			require.NoError(t, err)
			requireMoney(t, tc.shipping, b.Shipping)
		})
	}
}

func TestComputeTwoStageRounding(t *testing.T) {
	// subtotal 10.03 -> tax 1.8054 rounds to 1.81; total 10.03+50+1.81.
	b, err := pricing.Compute([]pricing.LineItem{{UnitPrice: money("10.03"), Quantity: 1}})
	require.NoError(t, err)
	requireMoney(t, "1.81", b.Tax)
	requireMoney(t, "61.84", b.Total)

	// 0.25 * 0.18 = 0.045 -> half away from zero gives 0.05.
	b, err = pricing.Compute([]pricing.LineItem{{UnitPrice: money("0.25"), Quantity: 1}})
	require.NoError(t, err)
	requireMoney(t, "0.05", b.Tax)
	requireMoney(t, "50.30", b.Total)
}

func TestComputeIsIdempotent(t *testing.T) {
	items := []pricing.LineItem{
		{UnitPrice: money("199.99"), Quantity: 2},
		{UnitPrice: money("35.50"), Quantity: 7},
	}
	first, err := pricing.Compute(items)
	require.NoError(t, err)
	second, err := pricing.Compute(items)
	require.NoError(t, err)
	require.Equal(t, first.Total.StringFixed(2), second.Total.StringFixed(2))
	require.Equal(t, first.Tax.StringFixed(2), second.Tax.StringFixed(2))
	require.Equal(t, first.Subtotal.StringFixed(2), second.Subtotal.StringFixed(2))
	require.Equal(t, first.Shipping.StringFixed(2), second.Shipping.StringFixed(2))
}

func TestComputeRejectsInvalidItems(t *testing.T) {
	_, err := pricing.Compute([]pricing.LineItem{
		{UnitPrice: money("10"), Quantity: 1},
		{UnitPrice: money("10"), Quantity: 0},
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, pricing.ErrValidation))
	var vErr *pricing.ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Equal(t, 1, vErr.Index)
	require.Equal(t, "quantity", vErr.Field)

	_, err = pricing.Compute([]pricing.LineItem{{UnitPrice: money("-1"), Quantity: 1}})
	require.ErrorIs(t, err, pricing.ErrValidation)
}

func TestComputeWithCustomOptions(t *testing.T) {
	opts, err := pricing.OptionsFromStrings("500", "25", "0.10", "")
	require.NoError(t, err)
	engine := pricing.New(opts)
	b, err := engine.Compute([]pricing.LineItem{{UnitPrice: money("500"), Quantity: 1}})
	require.NoError(t, err)
	requireMoney(t, "25.00", b.Shipping)
	requireMoney(t, "50.00", b.Tax)
	requireMoney(t, "575.00", b.Total)
	requireMoney(t, "10.00", engine.Options().SmartPriceMarkup)
}

func TestOptionsFromStringsRejectsGarbage(t *testing.T) {
	_, err := pricing.OptionsFromStrings("abc", "", "", "")
	require.Error(t, err)
	_, err = pricing.OptionsFromStrings("", "-5", "", "")
	require.Error(t, err)
}

func TestBreakdownJSON(t *testing.T) {
	b, err := pricing.Compute([]pricing.LineItem{{UnitPrice: money("500"), Quantity: 3}})
	require.NoError(t, err)
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	require.JSONEq(t, `{"subtotal":1500.00,"shipping":0.00,"tax":270.00,"total":1770.00}`, string(raw))

	var decoded pricing.Breakdown
	require.NoError(t, json.Unmarshal(raw, &decoded))
	requireMoney(t, "1770.00", decoded.Total)
}

func TestMinorUnits(t *testing.T) {
	require.Equal(t, int64(177000), pricing.MinorUnits(money("1770")))
	require.Equal(t, int64(101), pricing.MinorUnits(money("1.005")))
	require.Equal(t, int64(0), pricing.MinorUnits(decimal.Zero))
}

func TestNullFromFloat(t *testing.T) {
	require.False(t, pricing.NullFromFloat(math.NaN()).Valid)
	require.False(t, pricing.NullFromFloat(math.Inf(1)).Valid)
	v := pricing.NullFromFloat(12.5)
	require.True(t, v.Valid)
	requireMoney(t, "12.50", v.Decimal)
}

func TestLowest(t *testing.T) {
	requireMoney(t, "180.00", pricing.Lowest(money("200"), money("180"), money("210"), money("190")))
	requireMoney(t, "200.00", pricing.Lowest(money("200")))
}
