package payment_test

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
	"github.com/noah-isme/toko-smartprice/internal/payment"
	"github.com/noah-isme/toko-smartprice/internal/store/memory"
)

type fakeGateway struct {
	secret string
	last   payment.OrderRequest
	err    error
}

func (g *fakeGateway) Name() string { return "razorpay" }

func (g *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (payment.GatewayOrder, error) {
	g.last = req
	if g.err != nil {
		return payment.GatewayOrder{}, g.err
	}
	return payment.GatewayOrder{ID: "order_test", Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt}, nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return payment.Sign(g.secret, orderID, paymentID) == signature
}

type setup struct {
	store   *memory.Store
	carts   *cart.Service
	gateway *fakeGateway
	svc     *payment.Service
}

func newSetup(t *testing.T, price string, stock int) setup {
	t.Helper()
	store := memory.New()
	_, err := store.InsertProduct(context.Background(), catalog.Product{
		ID: "p1", Name: "Phone X", Category: "Test",
		BasePrice: decimal.RequireFromString(price), FinalPrice: decimal.RequireFromString(price),
		Stock: stock, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	carts := &cart.Service{Store: store, Products: store}
	orders := &order.Service{Store: store, Carts: carts, Logger: zerolog.Nop()}
	gw := &fakeGateway{secret: "shh"}
	svc := &payment.Service{
		Gateway: gw,
		Orders:  orders,
		KeyID:   "rzp_test_key",
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return time.UnixMilli(1717243200123) },
	}
	return setup{store: store, carts: carts, gateway: gw, svc: svc}
}

func message(t *testing.T, err error) string {
	t.Helper()
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr.Message
}

func TestCreatePaymentOrderUsesMinorUnits(t *testing.T) {
	s := newSetup(t, "190.00", 5)
	_, _, err := s.carts.Add(context.Background(), "user-123456789", "p1", 3)
	require.NoError(t, err)

	po, err := s.svc.CreatePaymentOrder(context.Background(), "user-123456789")
	require.NoError(t, err)
	require.Equal(t, "order_test", po.OrderID)
	require.EqualValues(t, 72260, po.Amount)
	require.Equal(t, "INR", po.Currency)
	require.Equal(t, "rzp_test_key", po.Key)
	require.Equal(t, "pp_456789_43200123", s.gateway.last.Receipt)
	require.Equal(t, "722.60", po.Pricing.Total.StringFixed(2))
}

func TestCreatePaymentOrderErrors(t *testing.T) {
	s := newSetup(t, "190.00", 5)
	ctx := context.Background()

	_, err := s.svc.CreatePaymentOrder(ctx, "u1")
	require.Equal(t, "Cart empty", message(t, err))

	_, _, err = s.carts.Add(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	s.gateway.err = &payment.ProviderError{Status: 400, Description: "Authentication failed"}
	_, err = s.svc.CreatePaymentOrder(ctx, "u1")
	require.Equal(t, "Authentication failed", message(t, err))

	s.svc.Gateway = nil
	_, err = s.svc.CreatePaymentOrder(ctx, "u1")
	require.Equal(t, "Payment gateway not configured", message(t, err))
}

func TestVerifyCreatesPaidOrder(t *testing.T) {
	s := newSetup(t, "190.00", 5)
	ctx := context.Background()
	_, _, err := s.carts.Add(ctx, "u1", "p1", 2)
	require.NoError(t, err)

	res, err := s.svc.Verify(ctx, "u1", payment.VerifyInput{
		OrderID:   "order_test",
		PaymentID: "pay_9",
		Signature: payment.Sign("shh", "order_test", "pay_9"),
		Address:   map[string]any{"city": "Delhi"},
	})
	require.NoError(t, err)
	require.Equal(t, order.PaymentPaid, res.Order.PaymentStatus)
	require.Equal(t, order.StatusProcessing, res.Order.OrderStatus)
	require.Equal(t, "razorpay", res.Order.PaymentInfo.Provider)
	require.True(t, res.Pricing.Total.Equal(res.Order.TotalAmount))

	p, err := s.store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 3, p.Stock)
}

func TestVerifyRejectsBadInput(t *testing.T) {
	s := newSetup(t, "190.00", 5)
	ctx := context.Background()
	_, _, err := s.carts.Add(ctx, "u1", "p1", 1)
	require.NoError(t, err)

	_, err = s.svc.Verify(ctx, "u1", payment.VerifyInput{OrderID: "order_test"})
	require.Equal(t, "Invalid payment details", message(t, err))

	_, err = s.svc.Verify(ctx, "u1", payment.VerifyInput{OrderID: "order_test", PaymentID: "pay_9", Signature: "forged"})
	require.Equal(t, "Payment verification failed", message(t, err))

	orders, err := s.store.ListOrders(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestReceipt(t *testing.T) {
	require.Equal(t, "pp_ab_12345678", payment.Receipt("ab", time.UnixMilli(9912345678)))
	require.LessOrEqual(t, len(payment.Receipt("a-very-long-user-identifier", time.Now())), 40)
}
