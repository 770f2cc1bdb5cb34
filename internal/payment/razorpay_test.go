package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignMatchesKnownVector(t *testing.T) {
	sig := Sign("secret", "order_1", "pay_1")
	require.Equal(t, "52115a0d3400de9e86aade1f1b6eba9e8974604f4e267a9e9a16633a4c8dd2cb", sig)
	require.NotEqual(t, sig, Sign("secret", "order_1", "pay_2"))
}

func TestVerifySignature(t *testing.T) {
	rp := NewRazorpay("key", "secret", "", time.Second)
	require.NotNil(t, rp)
	good := Sign("secret", "order_1", "pay_1")
	require.True(t, rp.VerifySignature("order_1", "pay_1", good))
	require.False(t, rp.VerifySignature("order_1", "pay_1", good[:63]+"0"))
	require.False(t, rp.VerifySignature("order_1", "pay_1", ""))
}

func TestNewRazorpayRequiresCredentials(t *testing.T) {
	require.Nil(t, NewRazorpay("", "secret", "", 0))
	require.Nil(t, NewRazorpay("key", " ", "", 0))
}

func TestCreateOrderCallsOrdersAPI(t *testing.T) {
	var received razorpayOrderBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "key", user)
		require.Equal(t, "secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc","amount":72260,"currency":"INR","receipt":"pp_1","status":"created"}`))
	}))
	defer srv.Close()

	rp := NewRazorpay("key", "secret", srv.URL, time.Second)
	out, err := rp.CreateOrder(context.Background(), OrderRequest{Amount: 72260, Currency: "INR", Receipt: "pp_1"})
	require.NoError(t, err)
	require.Equal(t, "order_abc", out.ID)
	require.EqualValues(t, 72260, out.Amount)
	require.Equal(t, 1, received.PaymentCapture)
	require.EqualValues(t, 72260, received.Amount)
}

func TestCreateOrderSurfacesProviderDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Order amount less than minimum amount allowed"}}`))
	}))
	defer srv.Close()

	rp := NewRazorpay("key", "secret", srv.URL, time.Second)
	_, err := rp.CreateOrder(context.Background(), OrderRequest{Amount: 50, Currency: "INR"})
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, http.StatusBadRequest, providerErr.Status)
	require.Equal(t, "Order amount less than minimum amount allowed", providerErr.Description)
}
