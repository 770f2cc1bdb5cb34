package cart_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-smartprice/internal/cart"
	"github.com/noah-isme/toko-smartprice/internal/catalog"
	"github.com/noah-isme/toko-smartprice/internal/common"
	"github.com/noah-isme/toko-smartprice/internal/store/memory"
)

func seedProduct(t *testing.T, store *memory.Store, id, name, price string, stock int) {
	t.Helper()
	_, err := store.InsertProduct(context.Background(), catalog.Product{
		ID:         id,
		Name:       name,
		Category:   "Test",
		BasePrice:  decimal.RequireFromString(price),
		FinalPrice: decimal.RequireFromString(price),
		Stock:      stock,
		CreatedAt:  time.Now(),
	})
	require.NoError(t, err)
}

func newService(t *testing.T) (*cart.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return &cart.Service{Store: store, Products: store}, store
}

func requireAppError(t *testing.T, err error, status int, message string) *common.AppError {
	t.Helper()
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	require.Equal(t, status, appErr.HTTPStatus)
	require.Equal(t, message, appErr.Message)
	return appErr
}

func TestAddAccumulatesAndPrices(t *testing.T) {
	svc, store := newService(t)
	seedProduct(t, store, "p1", "Phone X", "190.00", 5)
	ctx := context.Background()

	view, created, err := svc.Add(ctx, "u1", "p1", 2)
	require.NoError(t, err)
	require.True(t, created)
	require.Len(t, view.Items, 1)
	require.Equal(t, 2, view.Items[0].Quantity)

	view, created, err = svc.Add(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, 3, view.Items[0].Quantity)

	// 3 x 190 = 570, shipping 50, tax 102.60
	require.Equal(t, "570.00", view.Pricing.Subtotal.StringFixed(2))
	require.Equal(t, "50.00", view.Pricing.Shipping.StringFixed(2))
	require.Equal(t, "102.60", view.Pricing.Tax.StringFixed(2))
	require.Equal(t, "722.60", view.Pricing.Total.StringFixed(2))
}

func TestAddValidation(t *testing.T) {
	svc, store := newService(t)
	seedProduct(t, store, "p1", "Phone X", "190.00", 2)
	seedProduct(t, store, "empty", "Sold Out", "10.00", 0)
	ctx := context.Background()

	_, _, err := svc.Add(ctx, "u1", "p1", 0)
	requireAppError(t, err, 400, "Quantity must be greater than zero")

	_, _, err = svc.Add(ctx, "u1", "missing", 1)
	requireAppError(t, err, 404, "Product not found")

	_, _, err = svc.Add(ctx, "u1", "empty", 1)
	requireAppError(t, err, 400, "Product out of stock")

	_, _, err = svc.Add(ctx, "u1", "p1", 2)
	require.NoError(t, err)
	_, _, err = svc.Add(ctx, "u1", "p1", 1)
	appErr := requireAppError(t, err, 400, "Phone X: Only 2 items available in stock")
	require.Equal(t, "INSUFFICIENT_STOCK", appErr.Code)
}

func TestUpdateQty(t *testing.T) {
	svc, store := newService(t)
	seedProduct(t, store, "p1", "Phone X", "100.00", 4)
	ctx := context.Background()

	_, err := svc.UpdateQty(ctx, "u1", "p1", 1)
	requireAppError(t, err, 404, "Item not in cart")

	_, _, err = svc.Add(ctx, "u1", "p1", 1)
	require.NoError(t, err)

	view, err := svc.UpdateQty(ctx, "u1", "p1", 4)
	require.NoError(t, err)
	require.Equal(t, 4, view.Items[0].Quantity)

	_, err = svc.UpdateQty(ctx, "u1", "p1", 5)
	requireAppError(t, err, 400, "Phone X: Only 4 items available in stock")

	_, err = svc.UpdateQty(ctx, "u1", "p1", -1)
	requireAppError(t, err, 400, "Quantity must be greater than zero")
}

func TestGetReportsMissingProducts(t *testing.T) {
	svc, store := newService(t)
	seedProduct(t, store, "p1", "Phone X", "100.00", 4)
	seedProduct(t, store, "p2", "Case", "20.00", 4)
	ctx := context.Background()

	_, _, err := svc.Add(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	_, _, err = svc.Add(ctx, "u1", "p2", 1)
	require.NoError(t, err)
	require.NoError(t, store.DeleteProduct(ctx, "p2"))

	view, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	require.Equal(t, []string{"p2"}, view.Missing)
	require.Equal(t, "100.00", view.Pricing.Subtotal.StringFixed(2))
}

func TestGetFollowsCurrentFinalPrice(t *testing.T) {
	svc, store := newService(t)
	seedProduct(t, store, "p1", "Phone X", "100.00", 4)
	ctx := context.Background()
	_, _, err := svc.Add(ctx, "u1", "p1", 1)
	require.NoError(t, err)

	p, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	p.FinalPrice = decimal.RequireFromString("80.00")
	_, err = store.UpdateProduct(ctx, p)
	require.NoError(t, err)

	view, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "80.00", view.Pricing.Subtotal.StringFixed(2))
}

func TestRemoveAndClear(t *testing.T) {
	svc, store := newService(t)
	seedProduct(t, store, "p1", "Phone X", "100.00", 4)
	seedProduct(t, store, "p2", "Case", "20.00", 4)
	ctx := context.Background()
	_, _, _ = svc.Add(ctx, "u1", "p1", 1)
	_, _, _ = svc.Add(ctx, "u1", "p2", 1)

	view, err := svc.Remove(ctx, "u1", "p1")
	require.NoError(t, err)
	require.Len(t, view.Items, 1)

	view, err = svc.Remove(ctx, "u1", "p1")
	require.NoError(t, err)
	require.Len(t, view.Items, 1)

	require.NoError(t, svc.Clear(ctx, "u1"))
	view, err = svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, view.Items)
	require.True(t, view.Pricing.Subtotal.IsZero())
}

func TestCheckoutStockMessage(t *testing.T) {
	e := &cart.InsufficientStockError{Product: "Phone X", Available: 1, Requested: 3, AtCheckout: true}
	require.Equal(t, "Phone X: Only 1 items available. You have 3 in cart.", e.Error())
}
