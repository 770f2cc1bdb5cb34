package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the order does not exist.
	ErrNotFound = errors.New("order: not found")
	// ErrForbidden indicates the caller does not own the order.
	ErrForbidden = errors.New("order: forbidden")
	// ErrCartEmpty is returned when placing an order from an empty cart.
	ErrCartEmpty = errors.New("order: cart empty")
	// ErrStatusChanged is returned by a status update whose expected current status no longer holds.
	ErrStatusChanged = errors.New("order: status changed")
)

// PaymentStatus tracks settlement of an order.
type PaymentStatus string

// OrderStatus tracks fulfilment of an order.
type OrderStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"

	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// Item is a frozen order line.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Pricing is the breakdown snapshotted when the order was placed.
type Pricing struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
}

// PaymentInfo describes how the order was paid.
type PaymentInfo struct {
	Provider  string `json:"provider,omitempty"`
	OrderID   string `json:"orderId,omitempty"`
	PaymentID string `json:"paymentId,omitempty"`
	Signature string `json:"signature,omitempty"`
	Method    string `json:"method,omitempty"`
}

// Order is an immutable snapshot of a checkout. Only the statuses move after
// creation; amounts never follow later price changes.
type Order struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Items         []Item          `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Pricing       Pricing         `json:"pricing"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	OrderStatus   OrderStatus     `json:"orderStatus"`
	PaymentInfo   PaymentInfo     `json:"paymentInfo"`
	Address       map[string]any  `json:"address,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// StockConflictError is returned by CreateOrder when a product no longer has
// enough stock at commit time.
type StockConflictError struct {
	ProductID string
	Available int
	Requested int
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("order: product %s has %d in stock, %d requested", e.ProductID, e.Available, e.Requested)
}

// Store persists orders.
//
// CreateOrder must, atomically, decrement each item's product stock (failing
// with *StockConflictError when stock < quantity), insert the order and clear
// the owner's cart.
type Store interface {
	CreateOrder(ctx context.Context, o Order) (Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	// ListOrders returns orders newest first; an empty userID lists every order.
	ListOrders(ctx context.Context, userID string) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, id string, from, to OrderStatus) (Order, error)
}

func statusRank(status OrderStatus) int {
	switch status {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusShipped:
		return 2
	case StatusDelivered:
		return 3
	case StatusCancelled:
		return -1
	default:
		return -2
	}
}

// CanTransition reports whether an order may move from one status to another.
// Statuses only move forward; cancellation is possible until shipment.
func CanTransition(from, to OrderStatus) bool {
	if to == StatusCancelled {
		return from == StatusPending || from == StatusProcessing
	}
	fromRank, toRank := statusRank(from), statusRank(to)
	return fromRank >= 0 && toRank > fromRank
}
