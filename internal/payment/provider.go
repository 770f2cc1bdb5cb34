package payment

import "context"

// OrderRequest asks the gateway to open an order the client will pay against.
type OrderRequest struct {
	// Amount is expressed in minor units (paise).
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// GatewayOrder is the gateway's view of an opened order.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway abstracts the two operations needed from a payment gateway. Calls
// are single-shot: a failure is reported to the caller without retrying.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error)
	VerifySignature(orderID, paymentID, signature string) bool
}
