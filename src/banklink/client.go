// Package banklink connects organizations to their bank through the aggregation
// provider. Access tokens are encrypted before they are stored and decrypted
// only inside this package.
package banklink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"havenledger-server/src/models"
	"havenledger-server/src/util"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("havenledger/banklink")

type ConnectionStore interface {
	SaveBankConnection(ctx context.Context, conn *models.BankConnection) (*models.BankConnection, error)
	GetBankConnection(ctx context.Context, orgID, connectionID int64) (*models.BankConnection, error)
	DeactivateBankConnection(ctx context.Context, orgID, connectionID int64) error
}

type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type Options struct {
	ClientName string
	WebhookURL string
	PageSize   int32
	Timeout    time.Duration
	Retry      util.RetryPolicy
}

type Client struct {
	api    API
	store  ConnectionStore
	cipher Cipher
	opts   Options
	logger *zap.Logger
}

func NewClient(api API, store ConnectionStore, cipher Cipher, opts Options, logger *zap.Logger) *Client {
	if opts.ClientName == "" {
		opts.ClientName = "HavenLedger"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, store: store, cipher: cipher, opts: opts, logger: logger}
}

func (c *Client) call(ctx context.Context, op string, retry bool, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "banklink."+op)
	defer span.End()

	policy := c.opts.Retry
	if !retry {
		policy.MaxRetries = 0
	}
	attempts := 0
	err := util.Retry(ctx, policy, func(ctx context.Context) error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
		return fn(callCtx)
	})
	span.SetAttributes(attribute.Int("banklink.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op)
	}
	return err
}

func (c *Client) CreateLinkToken(ctx context.Context, orgID int64) (string, error) {
	var token string
	err := c.call(ctx, "create_link_token", true, func(ctx context.Context) error {
		var err error
		token, err = c.api.CreateLinkToken(ctx, LinkTokenRequest{
			ClientName:   c.opts.ClientName,
			ClientUserID: "org-" + strconv.FormatInt(orgID, 10),
			WebhookURL:   c.opts.WebhookURL,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create link token: %w", err)
	}
	return token, nil
}

// ExchangePublicToken trades the one-time public token for a long-lived access
// token and stores the new connection with an empty cursor. The exchange itself
// is never retried: a second attempt with a consumed token cannot succeed.
func (c *Client) ExchangePublicToken(ctx context.Context, orgID int64, publicToken string) (*models.BankConnection, error) {
	if publicToken == "" {
		return nil, fmt.Errorf("%w: public token is required", models.ErrInvalidInput)
	}

	var accessToken, itemID string
	err := c.call(ctx, "exchange_public_token", false, func(ctx context.Context) error {
		var err error
		accessToken, itemID, err = c.api.ExchangePublicToken(ctx, publicToken)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("exchange public token: %w", err)
	}

	// Institution and mask are display-only; a failure here does not fail the link.
	var institution string
	err = c.call(ctx, "get_institution", true, func(ctx context.Context) error {
		var err error
		institution, err = c.api.GetInstitutionName(ctx, accessToken)
		return err
	})
	if err != nil {
		c.logger.Warn("failed to fetch institution", zap.Int64("org_id", orgID), zap.String("item_id", itemID), zap.Error(err))
	}
	var mask string
	var accounts []models.BankAccount
	err = c.call(ctx, "get_accounts", true, func(ctx context.Context) error {
		var err error
		accounts, err = c.api.GetAccounts(ctx, accessToken)
		return err
	})
	if err != nil {
		c.logger.Warn("failed to fetch accounts", zap.Int64("org_id", orgID), zap.String("item_id", itemID), zap.Error(err))
	} else if len(accounts) > 0 {
		mask = accounts[0].Mask
	}

	enc, err := c.cipher.Encrypt(accessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}

	conn, err := c.store.SaveBankConnection(ctx, &models.BankConnection{
		OrgID:           orgID,
		ExternalItemID:  itemID,
		AccessTokenEnc:  enc,
		InstitutionName: institution,
		AccountMask:     mask,
		IsActive:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("save bank connection: %w", err)
	}
	c.logger.Info("linked bank connection",
		zap.Int64("org_id", orgID),
		zap.Int64("connection_id", conn.ID),
		zap.String("institution", institution),
	)
	return conn, nil
}

func (c *Client) accessToken(conn *models.BankConnection) (string, error) {
	token, err := c.cipher.Decrypt(conn.AccessTokenEnc)
	if err != nil {
		return "", fmt.Errorf("decrypt access token for connection %d: %w", conn.ID, err)
	}
	return token, nil
}

func (c *Client) activeConnection(ctx context.Context, orgID, connectionID int64) (*models.BankConnection, error) {
	conn, err := c.store.GetBankConnection(ctx, orgID, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsActive {
		return nil, fmt.Errorf("connection %d: %w", connectionID, models.ErrNotFound)
	}
	return conn, nil
}

// RemoveConnection revokes the connection upstream, then deactivates it locally.
// If the upstream revoke fails the local connection is left untouched.
func (c *Client) RemoveConnection(ctx context.Context, orgID, connectionID int64) error {
	conn, err := c.activeConnection(ctx, orgID, connectionID)
	if err != nil {
		return err
	}
	token, err := c.accessToken(conn)
	if err != nil {
		return err
	}
	err = c.call(ctx, "remove_item", true, func(ctx context.Context) error {
		return c.api.RemoveItem(ctx, token)
	})
	if err != nil {
		return fmt.Errorf("revoke bank connection: %w", err)
	}
	if err := c.store.DeactivateBankConnection(ctx, orgID, connectionID); err != nil {
		return fmt.Errorf("deactivate bank connection: %w", err)
	}
	c.logger.Info("removed bank connection", zap.Int64("org_id", orgID), zap.Int64("connection_id", connectionID))
	return nil
}

func (c *Client) FetchAccounts(ctx context.Context, orgID, connectionID int64) ([]models.BankAccount, error) {
	conn, err := c.activeConnection(ctx, orgID, connectionID)
	if err != nil {
		return nil, err
	}
	token, err := c.accessToken(conn)
	if err != nil {
		return nil, err
	}
	var accounts []models.BankAccount
	err = c.call(ctx, "get_accounts", true, func(ctx context.Context) error {
		var err error
		accounts, err = c.api.GetAccounts(ctx, token)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch accounts: %w", err)
	}
	return accounts, nil
}

// SyncPage fetches one page of changes after cursor for conn.
func (c *Client) SyncPage(ctx context.Context, conn *models.BankConnection, cursor string) (*SyncPage, error) {
	token, err := c.accessToken(conn)
	if err != nil {
		return nil, err
	}
	var page *SyncPage
	err = c.call(ctx, "sync_transactions", true, func(ctx context.Context) error {
		var err error
		page, err = c.api.SyncTransactions(ctx, token, cursor, c.opts.PageSize)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sync transactions: %w", err)
	}
	return page, nil
}
