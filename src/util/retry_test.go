package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"havenledger-server/src/models"
)

var fastPolicy = RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func TestRetry(t *testing.T) {
	unavailable := &models.GatewayError{Provider: "stripe", StatusCode: 503, Unavailable: true}
	rejected := &models.GatewayError{Provider: "stripe", StatusCode: 402, Message: "Your card was declined."}
	boom := errors.New("boom")

	tests := []struct {
		name      string
		results   []error
		wantCalls int
		wantErr   error
	}{
		{"success first try", []error{nil}, 1, nil},
		{"recovers after 5xx", []error{unavailable, unavailable, nil}, 3, nil},
		{"4xx not retried", []error{rejected}, 1, rejected},
		{"exhausts retries", []error{unavailable, unavailable, unavailable, unavailable, nil}, 4, unavailable},
		{"plain error not retried", []error{boom}, 1, boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fastPolicy, func(context.Context) error {
				e := tt.results[calls]
				calls++
				return e
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if err != tt.wantErr {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	unavailable := &models.GatewayError{Provider: "plaid", StatusCode: 500, Unavailable: true}

	calls := 0
	err := Retry(ctx, RetryPolicy{MaxRetries: 10, Backoff: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return unavailable
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, models.ErrGatewayUnavailable) {
		t.Errorf("err = %v, want unavailable", err)
	}
}
