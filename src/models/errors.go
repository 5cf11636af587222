package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected        = errors.New("organization has no connected payment account")
	ErrAlreadyExists       = errors.New("already exists")
	ErrNotFound            = errors.New("not found")
	ErrPayerNotFound       = fmt.Errorf("payer profile %w", ErrNotFound)
	ErrTokenAlreadyUsed    = errors.New("public token already used")
	ErrComplianceViolation = errors.New("metadata contains a disallowed field")
	ErrIdempotencyMismatch = errors.New("idempotency key reused with different parameters")
	ErrAlreadyAssigned     = errors.New("transaction is not unassigned")
	ErrSyncMutation        = errors.New("transactions changed during pagination")
	ErrInvalidInput        = errors.New("invalid input")
	ErrEventTargetMissing  = errors.New("payment record for event not found yet")

	ErrGatewayRejected    = errors.New("gateway rejected request")
	ErrGatewayUnavailable = errors.New("gateway unavailable")
)

// GatewayError is returned by the payment and bank clients for upstream failures.
// Unavailable errors are safe to retry with the same idempotency key; rejected
// errors carry the provider message verbatim.
type GatewayError struct {
	Provider    string
	StatusCode  int
	Code        string
	Message     string
	Unavailable bool
	Err         error
}

func (e *GatewayError) Error() string {
	kind := "rejected"
	if e.Unavailable {
		kind = "unavailable"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s %s (%d %s): %s", e.Provider, kind, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s (%d): %s", e.Provider, kind, e.StatusCode, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrGatewayUnavailable:
		return e.Unavailable
	case ErrGatewayRejected:
		return !e.Unavailable
	}
	return false
}

// IsRetryable reports whether err is a transient upstream failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}
