package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/havenledger_test")
	t.Setenv("JWT_SECRET", "test-jwt-secret-key")
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901") // 32 bytes
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Plaid.Env != "sandbox" || cfg.Plaid.PageSize != 100 {
		t.Errorf("Plaid = %+v", cfg.Plaid)
	}
	if cfg.Stripe.Currency != "usd" || cfg.Stripe.PlatformFeePercent.String() != "2.5" || cfg.Stripe.PlatformFeeFixed != 30 {
		t.Errorf("Stripe = %+v", cfg.Stripe)
	}
	if cfg.Gateway.Timeout != 15*time.Second || cfg.Gateway.MaxRetries != 3 {
		t.Errorf("Gateway = %+v", cfg.Gateway)
	}
	if cfg.ReadOnly || cfg.Telemetry.Enabled {
		t.Error("read-only and telemetry should default off")
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com,")
	t.Setenv("READ_ONLY", "true")
	t.Setenv("PAYMENT_CURRENCY", "CAD")
	t.Setenv("PLATFORM_FEE_PERCENT", "1.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://admin.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if !cfg.ReadOnly {
		t.Error("READ_ONLY not applied")
	}
	if cfg.Stripe.Currency != "cad" || cfg.Stripe.PlatformFeePercent.String() != "1.75" {
		t.Errorf("Stripe = %+v", cfg.Stripe)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "JWT_SECRET", "ENCRYPTION_KEY"} {
		t.Run(key, func(t *testing.T) {
			setRequiredEnvVars(t)
			t.Setenv(key, "")
			os.Unsetenv(key)

			if _, err := Load(); err == nil {
				t.Errorf("Load() expected error for missing %s", key)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"ENCRYPTION_KEY":       "too-short",
		"PLAID_ENV":            "development",
		"PLAID_SYNC_PAGE_SIZE": "0",
		"PLATFORM_FEE_PERCENT": "150",
		"PLATFORM_FEE_FIXED":   "-1",
		"GATEWAY_TIMEOUT":      "soon",
		"SYNC_CONCURRENCY":     "0",
		"CHECKOUT_SUCCESS_URL": "/relative/path",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			setRequiredEnvVars(t)
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Errorf("Load() expected error for %s=%q", key, value)
			}
		})
	}
}
