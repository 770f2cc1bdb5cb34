package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-smartprice/internal/cart"
	"github.com/noah-isme/toko-smartprice/internal/catalog"
	"github.com/noah-isme/toko-smartprice/internal/common"
	"github.com/noah-isme/toko-smartprice/internal/order"
	"github.com/noah-isme/toko-smartprice/internal/store/memory"
)

type harness struct {
	store *memory.Store
	carts *cart.Service
	svc   *order.Service
}

func newHarness(t *testing.T) harness {
	t.Helper()
	store := memory.New()
	carts := &cart.Service{Store: store, Products: store}
	svc := &order.Service{
		Store:  store,
		Carts:  carts,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
	return harness{store: store, carts: carts, svc: svc}
}

func (h harness) product(t *testing.T, id, name, price string, stock int) {
	t.Helper()
	_, err := h.store.InsertProduct(context.Background(), catalog.Product{
		ID: id, Name: name, Category: "Test",
		BasePrice: decimal.RequireFromString(price), FinalPrice: decimal.RequireFromString(price),
		Stock: stock, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func (h harness) add(t *testing.T, user, productID string, qty int) {
	t.Helper()
	_, _, err := h.carts.Add(context.Background(), user, productID, qty)
	require.NoError(t, err)
}

func appError(t *testing.T, err error) *common.AppError {
	t.Helper()
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr
}

func TestPlaceSnapshotsCartAndReservesStock(t *testing.T) {
	h := newHarness(t)
	h.product(t, "p1", "Phone X", "190.00", 5)
	h.product(t, "p2", "Case", "15.50", 10)
	h.add(t, "u1", "p1", 2)
	h.add(t, "u1", "p2", 1)
	ctx := context.Background()

	o, err := h.svc.Place(ctx, "u1", order.PlaceInput{Address: map[string]any{"city": "Pune"}})
	require.NoError(t, err)
	require.Equal(t, order.PaymentPending, o.PaymentStatus)
	require.Equal(t, order.StatusPending, o.OrderStatus)
	require.Equal(t, "COD", o.PaymentInfo.Method)
	require.Len(t, o.Items, 2)
	// 395.50 + 50 shipping + 71.19 tax
	require.Equal(t, "395.50", o.Pricing.Subtotal.StringFixed(2))
	require.Equal(t, "71.19", o.Pricing.Tax.StringFixed(2))
	require.Equal(t, "516.69", o.TotalAmount.StringFixed(2))
	require.True(t, o.TotalAmount.Equal(o.Pricing.Subtotal.Add(o.Pricing.Shipping).Add(o.Pricing.Tax)))

	p1, err := h.store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 3, p1.Stock)

	view, err := h.carts.Get(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, view.Items)

	// later price changes do not touch the stored order
	p1.FinalPrice = decimal.NewFromInt(1)
	_, err = h.store.UpdateProduct(ctx, p1)
	require.NoError(t, err)
	stored, err := h.svc.Get(ctx, "u1", false, o.ID)
	require.NoError(t, err)
	require.Equal(t, "516.69", stored.TotalAmount.StringFixed(2))
	require.Equal(t, "190.00", stored.Items[0].Price.StringFixed(2))
}

func TestPlaceRejectsEmptyCart(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Place(context.Background(), "u1", order.PlaceInput{})
	appErr := appError(t, err)
	require.Equal(t, "CART_EMPTY", appErr.Code)
	require.Equal(t, "Cart empty", appErr.Message)
	require.ErrorIs(t, err, order.ErrCartEmpty)
}

func TestPlaceRejectsMissingProduct(t *testing.T) {
	h := newHarness(t)
	h.product(t, "p1", "Phone X", "190.00", 5)
	h.add(t, "u1", "p1", 1)
	require.NoError(t, h.store.DeleteProduct(context.Background(), "p1"))

	_, err := h.svc.Place(context.Background(), "u1", order.PlaceInput{})
	require.Equal(t, "One of the items no longer exists", appError(t, err).Message)
}

func TestPlaceRejectsQuantityAboveStock(t *testing.T) {
	h := newHarness(t)
	h.product(t, "p1", "Phone X", "190.00", 3)
	h.add(t, "u1", "p1", 2)
	h.add(t, "u2", "p1", 2)
	ctx := context.Background()

	_, err := h.svc.Place(ctx, "u1", order.PlaceInput{})
	require.NoError(t, err)

	_, err = h.svc.Place(ctx, "u2", order.PlaceInput{})
	appErr := appError(t, err)
	require.Equal(t, "INSUFFICIENT_STOCK", appErr.Code)
	require.Equal(t, "Phone X: Only 1 items available. You have 2 in cart.", appErr.Message)
}

// staleCarts reports the cart as it looked before another order took the stock.
type staleCarts struct {
	view cart.View
}

func (s staleCarts) Get(context.Context, string) (cart.View, error) { return s.view, nil }

func TestPlaceStockConflictAtCommit(t *testing.T) {
	h := newHarness(t)
	h.product(t, "p1", "Phone X", "190.00", 1)
	ctx := context.Background()
	p, err := h.store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	p.Stock = 5
	h.svc.Carts = staleCarts{view: cart.View{UserID: "u1", Items: []cart.Line{{Product: p, Quantity: 2}}}}

	_, err = h.svc.Place(ctx, "u1", order.PlaceInput{})
	appErr := appError(t, err)
	require.Equal(t, "INSUFFICIENT_STOCK", appErr.Code)
	require.Contains(t, appErr.Message, "Only 1 items available")

	after, err := h.store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 1, after.Stock)
}

func TestPlacePaid(t *testing.T) {
	h := newHarness(t)
	h.product(t, "p1", "Phone X", "190.00", 5)
	h.add(t, "u1", "p1", 1)

	o, err := h.svc.PlacePaid(context.Background(), "u1", order.PaidInput{
		Provider: "razorpay", OrderID: "order_1", PaymentID: "pay_1", Signature: "sig",
	})
	require.NoError(t, err)
	require.Equal(t, order.PaymentPaid, o.PaymentStatus)
	require.Equal(t, order.StatusProcessing, o.OrderStatus)
	require.Equal(t, "online", o.PaymentInfo.Method)
	require.Equal(t, "pay_1", o.PaymentInfo.PaymentID)
	require.Equal(t, "190.00", o.Pricing.Subtotal.StringFixed(2))
}

func TestGetEnforcesOwnership(t *testing.T) {
	h := newHarness(t)
	h.product(t, "p1", "Phone X", "190.00", 5)
	h.add(t, "u1", "p1", 1)
	ctx := context.Background()
	o, err := h.svc.Place(ctx, "u1", order.PlaceInput{})
	require.NoError(t, err)

	_, err = h.svc.Get(ctx, "u2", false, o.ID)
	appErr := appError(t, err)
	require.Equal(t, 403, appErr.HTTPStatus)
	require.Equal(t, "Not authorized to view this order", appErr.Message)

	got, err := h.svc.Get(ctx, "admin-1", true, o.ID)
	require.NoError(t, err)
	require.Equal(t, o.ID, got.ID)

	_, err = h.svc.Get(ctx, "u1", false, "missing")
	require.Equal(t, "Order not found", appError(t, err).Message)
}

func TestListScopesByRole(t *testing.T) {
	h := newHarness(t)
	h.product(t, "p1", "Phone X", "190.00", 5)
	ctx := context.Background()
	for _, user := range []string{"u1", "u2"} {
		h.add(t, user, "p1", 1)
		_, err := h.svc.Place(ctx, user, order.PlaceInput{})
		require.NoError(t, err)
	}
	mine, err := h.svc.List(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	all, err := h.svc.List(ctx, "admin", true)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestUpdateStatusTransitions(t *testing.T) {
	h := newHarness(t)
	h.product(t, "p1", "Phone X", "190.00", 5)
	h.add(t, "u1", "p1", 1)
	ctx := context.Background()
	o, err := h.svc.Place(ctx, "u1", order.PlaceInput{})
	require.NoError(t, err)

	o, err = h.svc.UpdateStatus(ctx, o.ID, order.StatusShipped)
	require.NoError(t, err)
	require.Equal(t, order.StatusShipped, o.OrderStatus)

	_, err = h.svc.UpdateStatus(ctx, o.ID, order.StatusProcessing)
	require.Equal(t, 409, appError(t, err).HTTPStatus)
	_, err = h.svc.UpdateStatus(ctx, o.ID, order.StatusCancelled)
	require.Equal(t, 409, appError(t, err).HTTPStatus)
	_, err = h.svc.UpdateStatus(ctx, o.ID, "lost")
	require.Equal(t, 400, appError(t, err).HTTPStatus)
}

func TestCanTransition(t *testing.T) {
	require.True(t, order.CanTransition(order.StatusPending, order.StatusProcessing))
	require.True(t, order.CanTransition(order.StatusProcessing, order.StatusCancelled))
	require.False(t, order.CanTransition(order.StatusDelivered, order.StatusShipped))
	require.False(t, order.CanTransition(order.StatusCancelled, order.StatusProcessing))
	require.False(t, order.CanTransition(order.StatusPending, order.StatusPending))
}
