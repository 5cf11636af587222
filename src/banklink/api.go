package banklink

import (
	"context"
	"time"

	"havenledger-server/src/models"
)

// API is the bank aggregation provider surface. Implementations return
// *models.GatewayError for upstream failures, wrapping ErrTokenAlreadyUsed or
// ErrSyncMutation where the provider reports them.
type API interface {
	CreateLinkToken(ctx context.Context, req LinkTokenRequest) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error)
	GetInstitutionName(ctx context.Context, accessToken string) (string, error)
	GetAccounts(ctx context.Context, accessToken string) ([]models.BankAccount, error)
	SyncTransactions(ctx context.Context, accessToken, cursor string, count int32) (*SyncPage, error)
	RemoveItem(ctx context.Context, accessToken string) error
}

type LinkTokenRequest struct {
	ClientName   string
	ClientUserID string
	WebhookURL   string
}

// SyncPage is one page of the provider's incremental transaction feed.
type SyncPage struct {
	Added      []RawTransaction
	Modified   []RawTransaction
	Removed    []string
	NextCursor string
	HasMore    bool
}

// RawTransaction is a provider transaction in minor units. Positive amounts are
// money leaving the account.
type RawTransaction struct {
	ExternalID       string
	AmountMinorUnits int64
	MerchantName     string
	CategoryTags     []string
	Date             time.Time
	Pending          bool
	Currency         string
}
