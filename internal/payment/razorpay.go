package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const razorpayDefaultBaseURL = "https://api.razorpay.com"

// ProviderError carries the gateway's own description of a rejected request.
type ProviderError struct {
	Status      int
	Description string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("razorpay: %d %s", e.Status, e.Description)
}

// Razorpay implements Gateway against the Razorpay orders API.
type Razorpay struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Client    *http.Client
}

// NewRazorpay returns nil when credentials are missing.
func NewRazorpay(keyID, keySecret, baseURL string, timeout time.Duration) *Razorpay {
	if strings.TrimSpace(keyID) == "" || strings.TrimSpace(keySecret) == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Razorpay{
		KeyID:     keyID,
		KeySecret: keySecret,
		BaseURL:   baseURL,
		Client:    &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// Name identifies the gateway.
func (Razorpay) Name() string { return "razorpay" }

type razorpayOrderBody struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Receipt        string            `json:"receipt"`
	PaymentCapture int               `json:"payment_capture"`
	Notes          map[string]string `json:"notes,omitempty"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder calls POST /v1/orders with automatic capture.
func (r Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if r.Client == nil {
		return GatewayOrder{}, errors.New("razorpay: http client not configured")
	}
	payload, err := json.Marshal(razorpayOrderBody{
		Amount:         req.Amount,
		Currency:       req.Currency,
		Receipt:        req.Receipt,
		PaymentCapture: 1,
		Notes:          req.Notes,
	})
	if err != nil {
		return GatewayOrder{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL()+"/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return GatewayOrder{}, err
	}
	httpReq.SetBasicAuth(r.KeyID, r.KeySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(httpReq)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: create order: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr razorpayError
		description := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Description != "" {
			description = apiErr.Error.Description
		}
		return GatewayOrder{}, &ProviderError{Status: resp.StatusCode, Description: description}
	}
	var out GatewayOrder
	if err := json.Unmarshal(body, &out); err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: decode order: %w", err)
	}
	return out, nil
}

// VerifySignature checks the checkout signature: hex(HMAC-SHA256(secret, orderID|paymentID)).
func (r Razorpay) VerifySignature(orderID, paymentID, signature string) bool {
	if r.KeySecret == "" || signature == "" {
		return false
	}
	expected := Sign(r.KeySecret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// Sign computes the checkout signature for orderID and paymentID.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (r Razorpay) baseURL() string {
	if base := strings.TrimSpace(r.BaseURL); base != "" {
		return strings.TrimRight(base, "/")
	}
	return razorpayDefaultBaseURL
}
