package payment

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-smartprice/internal/cart"
	"github.com/noah-isme/toko-smartprice/internal/common"
	"github.com/noah-isme/toko-smartprice/internal/obs"
	"github.com/noah-isme/toko-smartprice/internal/order"
	"github.com/noah-isme/toko-smartprice/internal/pricing"
)

// minimumAmount is the smallest online payment accepted, in paise.
const minimumAmount = 100

// OrderPlacer validates carts and records paid orders.
type OrderPlacer interface {
	Checkout(ctx context.Context, userID string) (cart.View, error)
	PlacePaid(ctx context.Context, userID string, in order.PaidInput) (order.Order, error)
}

// Service opens gateway orders for carts and turns verified payments into orders.
type Service struct {
	Gateway  Gateway
	Orders   OrderPlacer
	KeyID    string
	Currency string
	Logger   zerolog.Logger
	Now      func() time.Time
}

// PaymentOrder is returned to the client to launch the gateway checkout.
type PaymentOrder struct {
	OrderID  string            `json:"orderId"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Key      string            `json:"key"`
	Pricing  pricing.Breakdown `json:"pricing"`
}

// VerifyInput is the gateway checkout callback forwarded by the client.
type VerifyInput struct {
	OrderID       string         `json:"razorpay_order_id"`
	PaymentID     string         `json:"razorpay_payment_id"`
	Signature     string         `json:"razorpay_signature"`
	Address       map[string]any `json:"address"`
	PaymentMethod string         `json:"paymentMethod"`
}

// VerifyResult is the order created for a verified payment.
type VerifyResult struct {
	Order   order.Order       `json:"order"`
	Pricing pricing.Breakdown `json:"pricing"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) currency() string {
	if c := strings.TrimSpace(s.Currency); c != "" {
		return c
	}
	return "INR"
}

func notConfigured() error {
	return common.NewAppError("PAYMENT_NOT_CONFIGURED", "Payment gateway not configured", http.StatusInternalServerError, nil)
}

// CreatePaymentOrder prices the user's cart and opens a gateway order for it.
func (s *Service) CreatePaymentOrder(ctx context.Context, userID string) (PaymentOrder, error) {
	if s.Gateway == nil {
		return PaymentOrder{}, notConfigured()
	}
	view, err := s.Orders.Checkout(ctx, userID)
	if err != nil {
		return PaymentOrder{}, err
	}
	amount := pricing.MinorUnits(view.Pricing.Total)
	if amount < minimumAmount {
		return PaymentOrder{}, common.BadRequest("amount", "Cart total must be at least ₹1 to pay online.", nil)
	}

	gatewayOrder, err := s.Gateway.CreateOrder(ctx, OrderRequest{
		Amount:   amount,
		Currency: s.currency(),
		Receipt:  Receipt(userID, s.now()),
		Notes:    map[string]string{"userId": userID},
	})
	if err != nil {
		obs.CountPaymentIntent(s.Gateway.Name(), "error")
		s.Logger.Error().Err(err).Str("user_id", userID).Int64("amount", amount).Msg("payment_order_failed")
		message := "Payment order creation failed"
		var providerErr *ProviderError
		if errors.As(err, &providerErr) && providerErr.Description != "" {
			message = providerErr.Description
		}
		return PaymentOrder{}, common.BadRequest("", message, err)
	}
	obs.CountPaymentIntent(s.Gateway.Name(), "ok")
	s.Logger.Info().Str("user_id", userID).Str("gateway_order_id", gatewayOrder.ID).Int64("amount", gatewayOrder.Amount).Msg("payment_order_created")
	return PaymentOrder{
		OrderID:  gatewayOrder.ID,
		Amount:   gatewayOrder.Amount,
		Currency: gatewayOrder.Currency,
		Key:      s.KeyID,
		Pricing:  view.Pricing,
	}, nil
}

// Verify checks the gateway signature and records the paid order.
func (s *Service) Verify(ctx context.Context, userID string, in VerifyInput) (VerifyResult, error) {
	if strings.TrimSpace(in.OrderID) == "" || strings.TrimSpace(in.PaymentID) == "" || strings.TrimSpace(in.Signature) == "" {
		obs.CountPaymentVerify("invalid")
		return VerifyResult{}, common.BadRequest("", "Invalid payment details", nil)
	}
	if s.Gateway == nil {
		return VerifyResult{}, notConfigured()
	}
	if !s.Gateway.VerifySignature(in.OrderID, in.PaymentID, in.Signature) {
		obs.CountPaymentVerify("bad_signature")
		s.Logger.Warn().Str("user_id", userID).Str("gateway_order_id", in.OrderID).Msg("payment_signature_mismatch")
		return VerifyResult{}, common.BadRequest("", "Payment verification failed", nil)
	}
	obs.CountPaymentVerify("ok")

	placed, err := s.Orders.PlacePaid(ctx, userID, order.PaidInput{
		Address:   in.Address,
		Method:    in.PaymentMethod,
		Provider:  s.Gateway.Name(),
		OrderID:   in.OrderID,
		PaymentID: in.PaymentID,
		Signature: in.Signature,
	})
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{
		Order: placed,
		Pricing: pricing.Breakdown{
			Subtotal: placed.Pricing.Subtotal,
			Shipping: placed.Pricing.Shipping,
			Tax:      placed.Pricing.Tax,
			Total:    placed.TotalAmount,
		},
	}, nil
}

// Receipt builds a gateway receipt under 40 characters from the last six
// characters of the user id and the last eight digits of the unix millis.
func Receipt(userID string, at time.Time) string {
	return "pp_" + lastN(userID, 6) + "_" + lastN(strconv.FormatInt(at.UnixMilli(), 10), 8)
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
