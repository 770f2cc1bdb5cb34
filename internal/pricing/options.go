package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Options tunes the storefront pricing rules.
type Options struct {
	// FreeShippingThreshold is compared strictly: a subtotal equal to the
	// threshold still pays the flat fee.
	FreeShippingThreshold Money
	FlatShippingFee       Money
	TaxRate               Money
	// SmartPriceMarkup is a flat surcharge, not a percentage.
	SmartPriceMarkup Money
}

// DefaultOptions returns the storefront defaults.
func DefaultOptions() Options {
	return Options{
		FreeShippingThreshold: decimal.NewFromInt(1000),
		FlatShippingFee:       decimal.NewFromInt(50),
		TaxRate:               decimal.RequireFromString("0.18"),
		SmartPriceMarkup:      decimal.NewFromInt(10),
	}
}

// OptionsFromStrings parses textual overrides (typically from the environment).
// Blank values keep the defaults.
func OptionsFromStrings(threshold, fee, taxRate, markup string) (Options, error) {
	opts := DefaultOptions()
	fields := []struct {
		name  string
		raw   string
		value *Money
	}{
		{"free shipping threshold", threshold, &opts.FreeShippingThreshold},
		{"flat shipping fee", fee, &opts.FlatShippingFee},
		{"tax rate", taxRate, &opts.TaxRate},
		{"smart price markup", markup, &opts.SmartPriceMarkup},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(f.raw)
		if raw == "" {
			continue
		}
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return Options{}, fmt.Errorf("pricing: parse %s: %w", f.name, err)
		}
		if parsed.IsNegative() {
			return Options{}, fmt.Errorf("pricing: %s must not be negative", f.name)
		}
		*f.value = parsed
	}
	return opts, nil
}
