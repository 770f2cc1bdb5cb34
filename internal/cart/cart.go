package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/noah-isme/toko-smartprice/internal/catalog"
	"github.com/noah-isme/toko-smartprice/internal/common"
	"github.com/noah-isme/toko-smartprice/internal/pricing"
)

// ErrItemNotFound indicates the product is not in the user's cart.
var ErrItemNotFound = errors.New("cart: item not found")

// Item is a stored cart line.
type Item struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Store persists cart lines per user.
type Store interface {
	CartItems(ctx context.Context, userID string) ([]Item, error)
	SetCartItem(ctx context.Context, userID, productID string, quantity int) error
	RemoveCartItem(ctx context.Context, userID, productID string) error
	ClearCart(ctx context.Context, userID string) error
}

// ProductReader resolves products referenced by cart lines.
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
}

// Line is a cart line resolved against the current catalog.
type Line struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// View is the cart with current prices applied.
type View struct {
	UserID  string            `json:"userId"`
	Items   []Line            `json:"items"`
	Missing []string          `json:"missing,omitempty"`
	Pricing pricing.Breakdown `json:"pricing"`
}

// LineItems turns a view into pricing line items using each product's
// current final price.
func LineItems(v View) []pricing.LineItem {
	items := make([]pricing.LineItem, 0, len(v.Items))
	for _, line := range v.Items {
		items = append(items, pricing.LineItem{UnitPrice: line.Product.FinalPrice, Quantity: line.Quantity})
	}
	return items
}

// InsufficientStockError reports a requested quantity above available stock.
type InsufficientStockError struct {
	ProductID string
	Product   string
	Available int
	Requested int
	// AtCheckout selects the message shown when re-validating a whole cart.
	AtCheckout bool
}

func (e *InsufficientStockError) Error() string {
	if e.AtCheckout {
		return fmt.Sprintf("%s: Only %d items available. You have %d in cart.", e.Product, e.Available, e.Requested)
	}
	return fmt.Sprintf("%s: Only %d items available in stock", e.Product, e.Available)
}

// StockError wraps e as a 400 AppError.
func StockError(e *InsufficientStockError) *common.AppError {
	appErr := common.NewAppError("INSUFFICIENT_STOCK", e.Error(), http.StatusBadRequest, e)
	appErr.Details = map[string]any{
		"productId": e.ProductID,
		"available": e.Available,
		"requested": e.Requested,
	}
	return appErr
}
