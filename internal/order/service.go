package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-smartprice/internal/cart"
	"github.com/noah-isme/toko-smartprice/internal/common"
	"github.com/noah-isme/toko-smartprice/internal/obs"
)

// CartReader loads the priced cart being checked out.
type CartReader interface {
	Get(ctx context.Context, userID string) (cart.View, error)
}

// Service places and reads orders.
type Service struct {
	Store  Store
	Carts  CartReader
	Logger zerolog.Logger
	Now    func() time.Time
}

// PlaceInput is the payload for a cash-on-delivery style checkout.
type PlaceInput struct {
	Address       map[string]any `json:"address"`
	PaymentMethod string         `json:"paymentMethod"`
}

// PaidInput carries a verified gateway payment.
type PaidInput struct {
	Address   map[string]any
	Method    string
	Provider  string
	OrderID   string
	PaymentID string
	Signature string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Checkout loads the user's cart and validates it for purchase: the cart is
// not empty, every product still exists and each quantity fits current stock.
func (s *Service) Checkout(ctx context.Context, userID string) (cart.View, error) {
	view, err := s.Carts.Get(ctx, userID)
	if err != nil {
		return cart.View{}, err
	}
	if len(view.Items) == 0 && len(view.Missing) == 0 {
		return cart.View{}, common.NewAppError("CART_EMPTY", "Cart empty", http.StatusBadRequest, ErrCartEmpty)
	}
	if len(view.Missing) > 0 {
		return cart.View{}, common.BadRequest("items", "One of the items no longer exists", nil)
	}
	for _, line := range view.Items {
		if line.Quantity > line.Product.Stock {
			return cart.View{}, cart.StockError(&cart.InsufficientStockError{
				ProductID:  line.Product.ID,
				Product:    line.Product.Name,
				Available:  line.Product.Stock,
				Requested:  line.Quantity,
				AtCheckout: true,
			})
		}
	}
	return view, nil
}

// Place creates a pending order from the user's cart. Stock is decremented
// and the cart cleared in the same store transaction.
func (s *Service) Place(ctx context.Context, userID string, in PlaceInput) (Order, error) {
	view, err := s.Checkout(ctx, userID)
	if err != nil {
		obs.CountOrder("rejected")
		return Order{}, err
	}
	method := strings.TrimSpace(in.PaymentMethod)
	if method == "" {
		method = "COD"
	}
	o := s.snapshot(userID, view, in.Address)
	o.PaymentStatus = PaymentPending
	o.OrderStatus = StatusPending
	o.PaymentInfo = PaymentInfo{Method: method}
	return s.create(ctx, o, view)
}

// PlacePaid creates an order for a payment the gateway already captured.
func (s *Service) PlacePaid(ctx context.Context, userID string, in PaidInput) (Order, error) {
	view, err := s.Checkout(ctx, userID)
	if err != nil {
		obs.CountOrder("rejected")
		return Order{}, err
	}
	method := strings.TrimSpace(in.Method)
	if method == "" {
		method = "online"
	}
	o := s.snapshot(userID, view, in.Address)
	o.PaymentStatus = PaymentPaid
	o.OrderStatus = StatusProcessing
	o.PaymentInfo = PaymentInfo{
		Provider:  in.Provider,
		OrderID:   in.OrderID,
		PaymentID: in.PaymentID,
		Signature: in.Signature,
		Method:    method,
	}
	return s.create(ctx, o, view)
}

func (s *Service) snapshot(userID string, view cart.View, address map[string]any) Order {
	now := s.now().UTC()
	items := make([]Item, 0, len(view.Items))
	for _, line := range view.Items {
		items = append(items, Item{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			Quantity:  line.Quantity,
			Price:     line.Product.FinalPrice,
		})
	}
	return Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		Items:       items,
		TotalAmount: view.Pricing.Total,
		Pricing: Pricing{
			Subtotal: view.Pricing.Subtotal,
			Shipping: view.Pricing.Shipping,
			Tax:      view.Pricing.Tax,
		},
		Address:   address,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Service) create(ctx context.Context, o Order, view cart.View) (Order, error) {
	created, err := s.Store.CreateOrder(ctx, o)
	if err != nil {
		var conflict *StockConflictError
		if errors.As(err, &conflict) {
			obs.CountOrder("stock_conflict")
			name := conflict.ProductID
			for _, line := range view.Items {
				if line.Product.ID == conflict.ProductID {
					name = line.Product.Name
				}
			}
			return Order{}, cart.StockError(&cart.InsufficientStockError{
				ProductID:  conflict.ProductID,
				Product:    name,
				Available:  conflict.Available,
				Requested:  conflict.Requested,
				AtCheckout: true,
			})
		}
		obs.CountOrder("error")
		return Order{}, fmt.Errorf("create order: %w", err)
	}
	obs.CountOrder(string(created.PaymentStatus))
	s.Logger.Info().
		Str("order_id", created.ID).
		Str("user_id", created.UserID).
		Str("total", created.TotalAmount.StringFixed(2)).
		Str("payment_status", string(created.PaymentStatus)).
		Msg("order_placed")
	return created, nil
}

// List returns the caller's orders, or every order for admins.
func (s *Service) List(ctx context.Context, userID string, isAdmin bool) ([]Order, error) {
	owner := userID
	if isAdmin {
		owner = ""
	}
	orders, err := s.Store.ListOrders(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Get returns one order. Non-admins may only read their own orders.
func (s *Service) Get(ctx context.Context, userID string, isAdmin bool, id string) (Order, error) {
	o, err := s.Store.GetOrder(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Order{}, common.NotFound("Order not found", err)
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	if !isAdmin && o.UserID != userID {
		return Order{}, common.NewAppError("FORBIDDEN", "Not authorized to view this order", http.StatusForbidden, ErrForbidden)
	}
	return o, nil
}

// UpdateStatus moves an order along its fulfilment lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, id string, to OrderStatus) (Order, error) {
	if statusRank(to) == -2 {
		return Order{}, common.BadRequest("status", "unsupported status", nil)
	}
	current, err := s.Store.GetOrder(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Order{}, common.NotFound("Order not found", err)
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	if !CanTransition(current.OrderStatus, to) {
		return Order{}, common.NewAppError("INVALID_STATE", "cannot transition to equal or previous state", http.StatusConflict, nil)
	}
	updated, err := s.Store.UpdateOrderStatus(ctx, id, current.OrderStatus, to)
	if errors.Is(err, ErrStatusChanged) {
		return Order{}, common.NewAppError("INVALID_STATE", "state transition not allowed", http.StatusConflict, err)
	}
	if err != nil {
		return Order{}, fmt.Errorf("update order status: %w", err)
	}
	return updated, nil
}
