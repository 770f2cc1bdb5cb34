package pricing

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrValidation is matched by every ValidationError.
var ErrValidation = errors.New("pricing: invalid input")

// ValidationError reports a malformed monetary or quantity input.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("pricing: item %d: %s %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("pricing: %s %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// LineItem describes a cart line whose unit price has already been resolved.
type LineItem struct {
	UnitPrice Money
	Quantity  int
}

// Validate checks the line item invariants.
func (it LineItem) Validate() error {
	if it.Quantity < 1 {
		return &ValidationError{Index: -1, Field: "quantity", Reason: "must be at least 1"}
	}
	if it.UnitPrice.IsNegative() {
		return &ValidationError{Index: -1, Field: "unit price", Reason: "must not be negative"}
	}
	return nil
}

// Breakdown aggregates the monetary components of a cart or order.
type Breakdown struct {
	Subtotal Money `json:"subtotal"`
	Shipping Money `json:"shipping"`
	Tax      Money `json:"tax"`
	Total    Money `json:"total"`
}

// MarshalJSON renders every component as a number with two decimals.
func (b Breakdown) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]json.Number{
		"subtotal": json.Number(b.Subtotal.StringFixed(2)),
		"shipping": json.Number(b.Shipping.StringFixed(2)),
		"tax":      json.Number(b.Tax.StringFixed(2)),
		"total":    json.Number(b.Total.StringFixed(2)),
	})
}

// Engine applies a fixed set of Options. It holds no mutable state.
type Engine struct {
	opts Options
}

// New constructs an Engine for opts.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Options returns the configured options.
func (e *Engine) Options() Options {
	return e.opts
}

// Compute aggregates items into a Breakdown.
//
// Tax is rounded on its own before being added to the total, and the total is
// rounded again; the two-stage rounding keeps stored orders reconcilable.
func (e *Engine) Compute(items []LineItem) (Breakdown, error) {
	subtotal := decimal.Zero
	for i, it := range items {
		if err := it.Validate(); err != nil {
			var vErr *ValidationError
			if errors.As(err, &vErr) {
				vErr.Index = i
			}
			return Breakdown{}, err
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	shipping := e.opts.FlatShippingFee
	if subtotal.GreaterThan(e.opts.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := Round2(subtotal.Mul(e.opts.TaxRate))
	total := Round2(subtotal.Add(shipping).Add(tax))

	return Breakdown{
		Subtotal: Round2(subtotal),
		Shipping: Round2(shipping),
		Tax:      tax,
		Total:    total,
	}, nil
}

// ApplySmartPrice converts a reference price into the listed price.
// A null or negative reference yields null; callers fall back to another
// reference price.
func (e *Engine) ApplySmartPrice(reference decimal.NullDecimal) decimal.NullDecimal {
	if !reference.Valid || reference.Decimal.IsNegative() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(Round2(reference.Decimal.Add(e.opts.SmartPriceMarkup)))
}

var defaultEngine = New(DefaultOptions())

// Compute runs the default engine.
func Compute(items []LineItem) (Breakdown, error) {
	return defaultEngine.Compute(items)
}

// ApplySmartPrice runs the default engine.
func ApplySmartPrice(reference decimal.NullDecimal) decimal.NullDecimal {
	return defaultEngine.ApplySmartPrice(reference)
}
