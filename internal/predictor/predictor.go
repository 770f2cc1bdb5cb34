// Package predictor talks to the AI price prediction service.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/toko-smartprice/internal/obs"
	"github.com/noah-isme/toko-smartprice/internal/resilience"
)

// StrategyFallback tags a prediction synthesised locally after the service failed.
const StrategyFallback = "fallback"

var (
	fallbackFactor     = decimal.RequireFromString("0.95")
	fallbackConfidence = 0.5
)

// Features are the demand signals sent alongside a prediction request.
type Features struct {
	Category    string `json:"category"`
	Stock       int    `json:"stock"`
	Demand      int    `json:"demand"`
	Competition int    `json:"competition"`
}

// Prediction is the suggested price for a product.
type Prediction struct {
	ProductID          string          `json:"product_id"`
	BasePrice          decimal.Decimal `json:"base_price"`
	PredictedPrice     decimal.Decimal `json:"predicted_price"`
	DiscountPercentage float64         `json:"discount_percentage"`
	Confidence         float64         `json:"confidence"`
	Strategy           string          `json:"strategy"`
}

// Predictor suggests a price. Implementations never fail; an unreachable
// service yields Fallback.
type Predictor interface {
	PredictPrice(ctx context.Context, productID string, basePrice decimal.Decimal, features Features) Prediction
}

// Fallback is the prediction used when the service cannot answer: a flat 5%
// discount on the base price at reduced confidence.
func Fallback(productID string, basePrice decimal.Decimal) Prediction {
	return Prediction{
		ProductID:          productID,
		BasePrice:          basePrice,
		PredictedPrice:     basePrice.Mul(fallbackFactor),
		DiscountPercentage: 5,
		Confidence:         fallbackConfidence,
		Strategy:           StrategyFallback,
	}
}

// Client calls POST {base}/api/predict-price.
type Client struct {
	baseURL       string
	http          resilience.HTTPClient
	healthTimeout time.Duration
	logger        zerolog.Logger
}

// ClientConfig configures Client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  zerolog.Logger
	// HTTPClient overrides the transport; tests pass httptest clients.
	HTTPClient *http.Client
}

// NewClient constructs a Client. The timeout bounds every prediction call.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	logger := cfg.Logger.With().Str("component", "predictor").Logger()
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http: resilience.HTTPClient{
			Client:      httpClient,
			Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("predictor").WithLogger(logger),
			MaxAttempts: 1,
			Timeout:     timeout,
		},
		healthTimeout: 3 * time.Second,
		logger:        logger,
	}
}

type predictRequest struct {
	ProductID      string          `json:"productId"`
	BasePrice      decimal.Decimal `json:"basePrice"`
	Features       Features        `json:"features"`
	HistoricalData []any           `json:"historicalData"`
}

type predictResponse struct {
	Prediction *wirePrediction `json:"prediction"`
}

// wirePrediction mirrors Prediction with a nullable price so an answer
// without predicted_price is told apart from a price of zero.
type wirePrediction struct {
	ProductID          string              `json:"product_id"`
	BasePrice          decimal.Decimal     `json:"base_price"`
	PredictedPrice     decimal.NullDecimal `json:"predicted_price"`
	DiscountPercentage float64             `json:"discount_percentage"`
	Confidence         float64             `json:"confidence"`
	Strategy           string              `json:"strategy"`
}

// PredictPrice implements Predictor.
func (c *Client) PredictPrice(ctx context.Context, productID string, basePrice decimal.Decimal, features Features) Prediction {
	prediction, err := c.predict(ctx, productID, basePrice, features)
	if err != nil {
		obs.MarkDegraded("predictor")
		c.logger.Warn().Err(err).Str("product_id", productID).Msg("price_prediction_fallback")
		return Fallback(productID, basePrice)
	}
	return prediction
}

func (c *Client) predict(ctx context.Context, productID string, basePrice decimal.Decimal, features Features) (Prediction, error) {
	if c == nil || c.baseURL == "" {
		return Prediction{}, errors.New("predictor: service url not configured")
	}
	payload, err := json.Marshal(predictRequest{
		ProductID:      productID,
		BasePrice:      basePrice,
		Features:       features,
		HistoricalData: []any{},
	})
	if err != nil {
		return Prediction{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/predict-price", bytes.NewReader(payload))
	if err != nil {
		return Prediction{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return Prediction{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Prediction{}, fmt.Errorf("predictor: unexpected status %d", resp.StatusCode)
	}
	var body predictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Prediction{}, fmt.Errorf("predictor: decode: %w", err)
	}
	wp := body.Prediction
	if wp == nil {
		return Prediction{}, errors.New("predictor: empty prediction")
	}
	if !wp.PredictedPrice.Valid {
		return Prediction{}, errors.New("predictor: prediction without predicted_price")
	}
	if wp.PredictedPrice.Decimal.IsNegative() {
		return Prediction{}, fmt.Errorf("predictor: negative predicted price %s", wp.PredictedPrice.Decimal)
	}
	return Prediction{
		ProductID:          wp.ProductID,
		BasePrice:          wp.BasePrice,
		PredictedPrice:     wp.PredictedPrice.Decimal,
		DiscountPercentage: wp.DiscountPercentage,
		Confidence:         wp.Confidence,
		Strategy:           wp.Strategy,
	}, nil
}

type healthResponse struct {
	Status string `json:"status"`
}

// Healthy reports whether GET {base}/health answers with status "healthy".
func (c *Client) Healthy(ctx context.Context) bool {
	if c == nil || c.baseURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Client.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("predictor_health_failed")
		return false
	}
	defer resp.Body.Close()
	var body healthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return false
	}
	return body.Status == "healthy"
}
