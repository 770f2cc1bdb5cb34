package competitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/toko-smartprice/internal/resilience"
)

// ErrDisabled is returned by a source that has no API key configured.
var ErrDisabled = errors.New("competitor: source disabled")

// HTTPSource queries a marketplace search API of the form
// GET {base}/search?query=..&limit=.. authenticated with X-API-Key.
type HTTPSource struct {
	name    string
	baseURL string
	apiKey  string
	limit   int
	client  resilience.HTTPClient
}

// HTTPSourceConfig configures an HTTPSource.
type HTTPSourceConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Limit   int
	Timeout time.Duration
	// Client overrides the underlying transport; tests pass httptest clients.
	Client *http.Client
}

// NewHTTPSource returns nil when the source has no base URL or API key. A nil
// source reports Enabled() == false and is skipped by NewAggregator.
func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	if strings.TrimSpace(cfg.BaseURL) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 5
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPSource{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limit:   limit,
		client: resilience.HTTPClient{
			Client:      httpClient,
			Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("competitor:" + cfg.Name),
			MaxAttempts: 1,
			Timeout:     timeout,
		},
	}
}

// Enabled reports whether the source is configured.
func (s *HTTPSource) Enabled() bool { return s != nil && s.apiKey != "" }

// Name identifies the marketplace.
func (s *HTTPSource) Name() string { return s.name }

type searchResponse struct {
	Products []Quote `json:"products"`
}

// Search implements Source.
func (s *HTTPSource) Search(ctx context.Context, query string) ([]Quote, error) {
	if s == nil || s.apiKey == "" {
		return nil, ErrDisabled
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(s.limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("X-API-Key", s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", s.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s search: unexpected status %d", s.name, resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%s search: decode: %w", s.name, err)
	}
	for i := range body.Products {
		if body.Products[i].Source == "" {
			body.Products[i].Source = s.name
		}
	}
	return body.Products, nil
}
