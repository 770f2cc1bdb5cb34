package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/toko-smartprice/internal/pricing"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// CompetitorSource configures one marketplace search API.
type CompetitorSource struct {
	Name    string
	BaseURL string
	APIKey  string
}

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	StoreDriver        string
	DatabaseURL        string
	DBMaxConns         int32
	MigrationsAuto     bool
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	AccessCookie       string
	CORSAllowedOrigins []string

	Pricing pricing.Options

	AIServiceURL string
	AITimeout    time.Duration

	Competitors       []CompetitorSource
	CompetitorTimeout time.Duration
	CompetitorLimit   int

	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayBaseURL   string
	PaymentCurrency   string
	PaymentTimeout    time.Duration

	CatalogCacheTTL time.Duration
	IdempotencyTTL  time.Duration
	RepriceLockTTL  time.Duration
	RateLimitSearch string
	BodyLimitBytes  int64
	EnableHSTS      bool

	WorkerConcurrency int
	TaskMaxRetry      int
	TaskDedupWindow   time.Duration

	LogFormat       string
	LogLevel        string
	OTelExporter    string
	OTelEndpoint    string
	OTelSampleRatio float64
	MetricsBuckets  string
	ShutdownTimeout time.Duration
}

// Load reads the process environment, after merging an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	k, err := environment()
	if err != nil {
		return nil, err
	}
	return build(envReader{k})
}

// MustLoad is Load for entrypoints that cannot continue without configuration.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests layers overrides on top of the process environment without
// modifying it. An empty override value unsets the key.
func LoadForTests(overrides map[string]string) (*Config, error) {
	k, err := environment()
	if err != nil {
		return nil, err
	}
	for key, value := range overrides {
		if value == "" {
			k.Delete(key)
			continue
		}
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
	}
	return build(envReader{k})
}

func environment() (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return k, nil
}

func build(e envReader) (*Config, error) {
	opts, err := pricing.OptionsFromStrings(
		e.str("PRICING_FREE_SHIPPING_THRESHOLD", ""),
		e.str("PRICING_FLAT_SHIPPING_FEE", ""),
		e.str("PRICING_TAX_RATE", ""),
		e.str("PRICING_SMART_MARKUP", ""),
	)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:             e.str("APP_ENV", "development"),
		Port:               e.str("PORT", "8080"),
		StoreDriver:        strings.ToLower(e.str("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:        e.str("DATABASE_URL", ""),
		DBMaxConns:         int32(e.integer("DB_MAX_CONNS", 10)),
		MigrationsAuto:     e.flag("MIGRATIONS_AUTO"),
		RedisURL:           e.str("REDIS_URL", ""),
		JWTSecret:          e.str("JWT_SECRET", ""),
		JWTIssuer:          e.str("JWT_ISSUER", ""),
		JWTAudience:        e.str("JWT_AUDIENCE", ""),
		AccessCookie:       e.str("ACCESS_COOKIE_NAME", "access_token"),
		CORSAllowedOrigins: e.list("CORS_ALLOWED_ORIGINS"),
		Pricing:            opts,
		AIServiceURL:       e.str("AI_SERVICE_URL", ""),
		AITimeout:          e.duration("AI_TIMEOUT", 5*time.Second),
		Competitors: []CompetitorSource{
			{Name: "amazon", BaseURL: e.str("COMPETITOR_AMAZON_URL", ""), APIKey: e.str("COMPETITOR_AMAZON_KEY", "")},
			{Name: "flipkart", BaseURL: e.str("COMPETITOR_FLIPKART_URL", ""), APIKey: e.str("COMPETITOR_FLIPKART_KEY", "")},
		},
		CompetitorTimeout: e.duration("COMPETITOR_TIMEOUT", 5*time.Second),
		CompetitorLimit:   e.integer("COMPETITOR_LIMIT", 5),
		RazorpayKeyID:     e.str("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret: e.str("RAZORPAY_KEY_SECRET", ""),
		RazorpayBaseURL:   e.str("RAZORPAY_BASE_URL", ""),
		PaymentCurrency:   strings.ToUpper(e.str("PAYMENT_CURRENCY", "INR")),
		PaymentTimeout:    e.duration("PAYMENT_TIMEOUT", 10*time.Second),
		CatalogCacheTTL:   e.duration("CATALOG_CACHE_TTL", time.Minute),
		IdempotencyTTL:    e.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		RepriceLockTTL:    e.duration("REPRICE_LOCK_TTL", 30*time.Second),
		RateLimitSearch:   e.str("RATE_LIMIT_SEARCH", "10-M"),
		BodyLimitBytes:    int64(e.integer("BODY_LIMIT_BYTES", 1<<20)),
		EnableHSTS:        e.flag("ENABLE_HSTS"),
		WorkerConcurrency: e.integer("WORKER_CONCURRENCY", 10),
		TaskMaxRetry:      e.integer("TASK_MAX_RETRY", 5),
		TaskDedupWindow:   e.duration("TASK_DEDUP_WINDOW", time.Minute),
		LogFormat:         e.str("LOG_FORMAT", "json"),
		LogLevel:          e.str("LOG_LEVEL", "info"),
		OTelExporter:      e.str("OTEL_EXPORTER", "none"),
		OTelEndpoint:      e.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelSampleRatio:   e.float("OTEL_TRACES_SAMPLER_RATIO", 1),
		MetricsBuckets:    e.str("METRICS_BUCKETS_MS", ""),
		ShutdownTimeout:   e.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

// HTTPAddr is the listen address derived from PORT, which may carry a
// leading colon.
func (c *Config) HTTPAddr() string {
	return ":" + strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.AppEnv) {
	case "production", "prod":
		return true
	}
	return false
}

// envReader reads trimmed values with typed fallbacks. Unparseable values
// fall back silently, so a typo never prevents boot.
type envReader struct {
	k *koanf.Koanf
}

func (e envReader) str(key, fallback string) string {
	if v := strings.TrimSpace(e.k.String(key)); v != "" {
		return v
	}
	return fallback
}

func (e envReader) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(e.str(key, "")); err == nil && d > 0 {
		return d
	}
	return fallback
}

func (e envReader) integer(key string, fallback int) int {
	if n, err := strconv.Atoi(e.str(key, "")); err == nil {
		return n
	}
	return fallback
}

func (e envReader) float(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(e.str(key, ""), 64); err == nil {
		return f
	}
	return fallback
}

func (e envReader) flag(key string) bool {
	b, err := strconv.ParseBool(e.str(key, "false"))
	return err == nil && b
}

func (e envReader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.k.String(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
