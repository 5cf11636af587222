package gateway

import (
	"context"

	"havenledger-server/src/models"
)

// API is the provider surface the Client drives. Implementations return
// *models.GatewayError for upstream failures.
type API interface {
	CreateAccount(ctx context.Context, req AccountRequest) (*Account, error)
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	CreateAccountLink(ctx context.Context, req AccountLinkRequest) (string, error)
	CreateLoginLink(ctx context.Context, accountID string) (string, error)
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	CreateSetupIntent(ctx context.Context, req SetupIntentRequest) (*SetupIntent, error)
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	ListPaymentMethods(ctx context.Context, connectedAccountID, customerID string) ([]models.PaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, connectedAccountID, paymentMethodID string) error
}

type AccountRequest struct {
	Country        string
	Email          string
	Metadata       Metadata
	IdempotencyKey string
}

type Account struct {
	ID               string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

type AccountLinkRequest struct {
	AccountID  string
	RefreshURL string
	ReturnURL  string
}

type CustomerRequest struct {
	ConnectedAccountID string
	Name               string
	Email              string
	Phone              string
	Metadata           Metadata
	IdempotencyKey     string
}

type SetupIntentRequest struct {
	ConnectedAccountID string
	CustomerID         string
	Metadata           Metadata
}

type SetupIntent struct {
	ID           string
	ClientSecret string
}

// ChargeRequest moves AmountMinorUnits from the payer and leaves
// AmountMinorUnits - ApplicationFeeMinorUnits with DestinationAccountID.
type ChargeRequest struct {
	AmountMinorUnits         int64
	ApplicationFeeMinorUnits int64
	Currency                 string
	DestinationAccountID     string
	CustomerID               string
	PaymentMethodID          string
	Metadata                 Metadata
	IdempotencyKey           string
}

type Charge struct {
	ID     string
	Status models.PaymentStatus
}

type CheckoutRequest struct {
	AmountMinorUnits         int64
	ApplicationFeeMinorUnits int64
	Currency                 string
	Description              string
	DestinationAccountID     string
	SuccessURL               string
	CancelURL                string
	ClientReferenceID        string
	Metadata                 Metadata
	IdempotencyKey           string
}

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
}
