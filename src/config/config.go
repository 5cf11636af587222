package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"havenledger-server/src/util"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port           string
	DatabaseURL    string
	JWTSecret      string
	EncryptionKey  string
	ReadOnly       bool
	AllowedOrigins []string
	LogLevel       string
	Environment    string

	Plaid     PlaidConfig
	Stripe    StripeConfig
	Gateway   GatewayConfig
	Sync      SyncConfig
	Telemetry TelemetryConfig
}

type PlaidConfig struct {
	ClientID   string
	Secret     string
	Env        string
	ClientName string
	WebhookURL string
	PageSize   int32
}

type StripeConfig struct {
	SecretKey            string
	WebhookSecret        string
	Country              string
	Currency             string
	CheckoutSuccessURL   string
	CheckoutCancelURL    string
	OnboardingRefreshURL string
	OnboardingReturnURL  string
	PlatformFeePercent   decimal.Decimal
	PlatformFeeFixed     int64
}

type GatewayConfig struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

type SyncConfig struct {
	Concurrency         int
	ClassifierRulesPath string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	MetricsPort  string
}

func Load() (Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	pageSize, err := strconv.ParseInt(getEnv("PLAID_SYNC_PAGE_SIZE", "100"), 10, 32)
	if err != nil || pageSize < 1 || pageSize > 500 {
		return Config{}, fmt.Errorf("invalid PLAID_SYNC_PAGE_SIZE: must be 1-500")
	}
	feePercent, err := decimal.NewFromString(getEnv("PLATFORM_FEE_PERCENT", "2.5"))
	if err != nil || feePercent.IsNegative() || feePercent.GreaterThan(decimal.NewFromInt(100)) {
		return Config{}, fmt.Errorf("invalid PLATFORM_FEE_PERCENT: must be between 0 and 100")
	}
	feeFixed, err := strconv.ParseInt(getEnv("PLATFORM_FEE_FIXED", "30"), 10, 64)
	if err != nil || feeFixed < 0 {
		return Config{}, fmt.Errorf("invalid PLATFORM_FEE_FIXED: must be a non-negative integer")
	}
	timeout, err := time.ParseDuration(getEnv("GATEWAY_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid GATEWAY_TIMEOUT: %w", err)
	}
	maxRetries, err := strconv.Atoi(getEnv("GATEWAY_MAX_RETRIES", "3"))
	if err != nil || maxRetries < 0 {
		return Config{}, fmt.Errorf("invalid GATEWAY_MAX_RETRIES")
	}
	backoff, err := time.ParseDuration(getEnv("GATEWAY_RETRY_BACKOFF", "250ms"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid GATEWAY_RETRY_BACKOFF: %w", err)
	}
	concurrency, err := strconv.Atoi(getEnv("SYNC_CONCURRENCY", "4"))
	if err != nil || concurrency < 1 {
		return Config{}, fmt.Errorf("invalid SYNC_CONCURRENCY")
	}

	cfg := Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
		ReadOnly:       getBoolEnv("READ_ONLY", false),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		Plaid: PlaidConfig{
			ClientID:   getEnv("PLAID_CLIENT_ID", ""),
			Secret:     getEnv("PLAID_SECRET", ""),
			Env:        getEnv("PLAID_ENV", "sandbox"),
			ClientName: getEnv("PLAID_CLIENT_NAME", "HavenLedger"),
			WebhookURL: getEnv("PLAID_WEBHOOK_URL", ""),
			PageSize:   int32(pageSize),
		},
		Stripe: StripeConfig{
			SecretKey:            getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:        getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Country:              getEnv("PAYMENT_COUNTRY", "US"),
			Currency:             strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
			CheckoutSuccessURL:   getEnv("CHECKOUT_SUCCESS_URL", ""),
			CheckoutCancelURL:    getEnv("CHECKOUT_CANCEL_URL", ""),
			OnboardingRefreshURL: getEnv("ONBOARDING_REFRESH_URL", ""),
			OnboardingReturnURL:  getEnv("ONBOARDING_RETURN_URL", ""),
			PlatformFeePercent:   feePercent,
			PlatformFeeFixed:     feeFixed,
		},
		Gateway: GatewayConfig{
			Timeout:      timeout,
			MaxRetries:   maxRetries,
			RetryBackoff: backoff,
		},
		Sync: SyncConfig{
			Concurrency:         concurrency,
			ClassifierRulesPath: getEnv("CLASSIFIER_RULES_PATH", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "havenledger-server"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.EncryptionKey == "" {
		return Config{}, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(cfg.EncryptionKey) != 32 {
		return Config{}, fmt.Errorf("ENCRYPTION_KEY must be 32 bytes, got %d", len(cfg.EncryptionKey))
	}
	if cfg.Plaid.Env != "sandbox" && cfg.Plaid.Env != "production" {
		return Config{}, fmt.Errorf("invalid PLAID_ENV: %s", cfg.Plaid.Env)
	}
	urls := map[string]string{
		"PLAID_WEBHOOK_URL":      cfg.Plaid.WebhookURL,
		"CHECKOUT_SUCCESS_URL":   cfg.Stripe.CheckoutSuccessURL,
		"CHECKOUT_CANCEL_URL":    cfg.Stripe.CheckoutCancelURL,
		"ONBOARDING_REFRESH_URL": cfg.Stripe.OnboardingRefreshURL,
		"ONBOARDING_RETURN_URL":  cfg.Stripe.OnboardingReturnURL,
	}
	for key, u := range urls {
		if u != "" && !util.ValidateURL(u) {
			return Config{}, fmt.Errorf("invalid %s: %q", key, u)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
