package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-smartprice/internal/app"
	"github.com/noah-isme/toko-smartprice/internal/catalog"
	"github.com/noah-isme/toko-smartprice/internal/competitor"
	"github.com/noah-isme/toko-smartprice/internal/config"
	"github.com/noah-isme/toko-smartprice/internal/order"
	"github.com/noah-isme/toko-smartprice/internal/predictor"
	"github.com/noah-isme/toko-smartprice/internal/pricing"
	"github.com/noah-isme/toko-smartprice/internal/store/memory"
)

type staticLookup []competitor.Quote

func (l staticLookup) FetchQuotes(context.Context, string) []competitor.Quote { return l }

type downPredictor struct{}

func (downPredictor) PredictPrice(_ context.Context, id string, base decimal.Decimal, _ predictor.Features) predictor.Prediction {
	return predictor.Fallback(id, base)
}

type server struct {
	app     *app.App
	handler http.Handler
	admin   string
	user    string
}

func newServer(t *testing.T) server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		StoreDriver:     config.StoreDriverMemory,
		JWTSecret:       "test-secret",
		AccessCookie:    "access_token",
		Pricing:         pricing.DefaultOptions(),
		CatalogCacheTTL: time.Minute,
		IdempotencyTTL:  time.Hour,
		RepriceLockTTL:  5 * time.Second,
		RateLimitSearch: "2-M",
		BodyLimitBytes:  1 << 20,
	}
	a, err := app.New(context.Background(), cfg, zerolog.Nop(), app.Dependencies{
		Redis: rdb,
		Store: memory.New(),
		Lookup: staticLookup{
			{Name: "Kettle Pro", Price: decimal.NewFromInt(180), Source: "amazon"},
			{Name: "Kettle Max", Price: decimal.NewFromInt(210), Source: "flipkart"},
		},
		Predictor: downPredictor{},
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	h, err := a.Router()
	require.NoError(t, err)

	admin, err := a.Verifier.Issue("admin-1", "admin", time.Hour)
	require.NoError(t, err)
	user, err := a.Verifier.Issue("user-1", "", time.Hour)
	require.NoError(t, err)
	return server{app: a, handler: h, admin: admin, user: user}
}

func (s server) do(t *testing.T, method, target, token, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s server) createProduct(t *testing.T) catalog.Product {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/admin/products", s.admin,
		`{"name":"Kettle","category":"kitchen","basePrice":200,"stock":5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		Data catalog.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Data
}

func TestHealthEndpoints(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/api/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = s.do(t, http.MethodGet, "/health/ready", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"redis":"ok"`)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	s := newServer(t)
	body := `{"name":"Kettle","category":"kitchen","basePrice":200}`

	rec := s.do(t, http.MethodPost, "/api/v1/admin/products", "", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/products", s.user, body)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreatedProductIsSmartPriced(t *testing.T) {
	s := newServer(t)
	p := s.createProduct(t)

	require.True(t, p.FinalPrice.Equal(decimal.NewFromInt(190)), p.FinalPrice.String())

	rec := s.do(t, http.MethodGet, "/api/v1/products/"+p.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"finalPrice":190`)
}

func TestCheckoutFlowWithIdempotencyKey(t *testing.T) {
	s := newServer(t)
	p := s.createProduct(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", "", `{"productId":"`+p.ID+`","quantity":2}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/cart/items", s.user, `{"productId":"`+p.ID+`","quantity":2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := `{"address":{"line1":"MG Road"},"paymentMethod":"cod"}`
	rec = s.do(t, http.MethodPost, "/api/v1/orders", s.user, body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		Data order.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.True(t, out.Data.TotalAmount.Equal(decimal.RequireFromString("498.40")), out.Data.TotalAmount.String())

	rec = s.do(t, http.MethodPost, "/api/v1/orders", s.user, body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusConflict, rec.Code)

	stored, err := s.app.Store.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.Stock)
}

func TestSearchIsRateLimited(t *testing.T) {
	s := newServer(t)
	s.createProduct(t)

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodGet, "/api/v1/admin/products/search?name=Kettle", s.admin, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := s.do(t, http.MethodGet, "/api/v1/admin/products/search?name=Kettle", s.admin, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRepriceAllRunsInlineWithoutBroker(t *testing.T) {
	s := newServer(t)
	s.createProduct(t)

	rec := s.do(t, http.MethodPost, "/api/v1/admin/products/reprice", s.admin, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"data":{"scheduled":1}}`, rec.Body.String())
}
