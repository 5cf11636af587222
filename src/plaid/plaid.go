package plaid

import (
	"fmt"
	"net/http"
	"time"

	"github.com/plaid/plaid-go/v41/plaid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewPlaidClient builds an API client for the given environment. Outbound calls
// are traced and bounded by timeout.
func NewPlaidClient(clientID, secret, env string, timeout time.Duration) (*plaid.APIClient, error) {
	cfg := plaid.NewConfiguration()
	cfg.AddDefaultHeader("PLAID-CLIENT-ID", clientID)
	cfg.AddDefaultHeader("PLAID-SECRET", secret)
	cfg.UserAgent = "havenledger-server"
	cfg.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	switch env {
	case "sandbox":
		cfg.UseEnvironment(plaid.Sandbox)
	case "production":
		cfg.UseEnvironment(plaid.Production)
	default:
		return nil, fmt.Errorf("invalid Plaid environment: %s", env)
	}

	return plaid.NewAPIClient(cfg), nil
}
