package catalog_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-smartprice/internal/catalog"
	"github.com/noah-isme/toko-smartprice/internal/competitor"
)

func newRouter(t *testing.T, quotes staticLookup) http.Handler {
	t.Helper()
	f := newFixture(t, quotes, nil)
	h := catalog.NewHandler(catalog.HandlerConfig{Service: f.svc})
	r := chi.NewRouter()
	r.Get("/products", h.Products)
	r.Get("/products/{id}", h.Product)
	r.Get("/categories", h.Categories)
	r.Post("/admin/products", h.Create)
	r.Get("/admin/products/search", h.Search)
	r.Put("/admin/products/{id}", h.Update)
	r.Delete("/admin/products/{id}", h.Delete)
	r.Post("/admin/products/{id}/sync", h.Sync)
	r.Post("/admin/products/reprice", h.RepriceAll)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type productEnvelope struct {
	Data catalog.Product `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestCreateAndFetchProduct(t *testing.T) {
	r := newRouter(t, nil)

	rec := do(t, r, http.MethodPost, "/admin/products", `{"name":"Kettle","category":"Kitchen","basePrice":40,"stock":3}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created productEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.True(t, created.Data.FinalPrice.Equal(decimal.NewFromInt(48)))

	rec = do(t, r, http.MethodGet, "/products/"+created.Data.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched productEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	require.Equal(t, "Kettle", fetched.Data.Name)

	rec = do(t, r, http.MethodGet, "/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-Total-Count"))
	require.Contains(t, rec.Body.String(), `"total":1`)
}

func TestCreateMissingFieldsReturns400(t *testing.T) {
	r := newRouter(t, nil)
	rec := do(t, r, http.MethodPost, "/admin/products", `{"name":"Kettle"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Missing required fields", body.Error.Message)

	rec = do(t, r, http.MethodPost, "/admin/products", `{"name":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductNotFound(t *testing.T) {
	r := newRouter(t, nil)
	rec := do(t, r, http.MethodGet, "/products/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "Product not found")
}

func TestSearchEndpointStatusCodes(t *testing.T) {
	r := newRouter(t, staticLookup{{Name: "Tablet", Price: decimal.NewFromInt(300), Source: "amazon"}})

	rec := do(t, r, http.MethodGet, "/admin/products/search?name=Tablet", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var body productEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Data.FinalPrice.Equal(decimal.NewFromInt(310)))
	require.Equal(t, []competitor.Quote{}, body.Data.Metadata.Competitors)

	rec = do(t, r, http.MethodGet, "/admin/products/search?name=Tablet", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodGet, "/admin/products/search", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncEndpoint(t *testing.T) {
	r := newRouter(t, staticLookup{{Name: "Kettle", Price: decimal.NewFromInt(30)}})
	rec := do(t, r, http.MethodPost, "/admin/products", `{"name":"Kettle","category":"Kitchen","basePrice":40}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created productEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(t, r, http.MethodPost, "/admin/products/"+created.Data.ID+"/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var synced productEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &synced))
	require.True(t, synced.Data.BasePrice.Equal(decimal.NewFromInt(30)))
	require.True(t, synced.Data.FinalPrice.Equal(decimal.NewFromInt(40)))
}

func TestRepriceAllEndpoint(t *testing.T) {
	r := newRouter(t, nil)
	rec := do(t, r, http.MethodPost, "/admin/products/reprice", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"data":{"scheduled":0}}`, rec.Body.String())
}

func TestCategoriesEmpty(t *testing.T) {
	r := newRouter(t, nil)
	rec := do(t, r, http.MethodGet, "/categories", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
