package db

import (
	"context"
	"errors"
	"fmt"

	cache "havenledger-server/src/db"
	"havenledger-server/src/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orgConfigColumns = `org_id, connected_account_id, charges_enabled, payouts_enabled, onboarding_status,
	fee_mode, platform_fee_percent::text, platform_fee_fixed, created_at, updated_at`

func scanOrgConfig(row pgx.Row) (*models.OrgPaymentConfig, error) {
	var c models.OrgPaymentConfig
	var percent string
	err := row.Scan(&c.OrgID, &c.ConnectedAccountID, &c.ChargesEnabled, &c.PayoutsEnabled, &c.OnboardingStatus,
		&c.FeeMode, &percent, &c.PlatformFeeFixedMinorUnits, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.PlatformFeePercent, err = decimal.NewFromString(percent)
	if err != nil {
		return nil, fmt.Errorf("parse platform fee percent %q: %w", percent, err)
	}
	return &c, nil
}

func GetOrgPaymentConfig(ctx context.Context, q Querier, orgID int64) (*models.OrgPaymentConfig, error) {
	query := `SELECT ` + orgConfigColumns + ` FROM org_payment_configs WHERE org_id = $1`
	cfg, err := scanOrgConfig(q.QueryRow(ctx, query, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DefaultOrgPaymentConfig(orgID), nil
	}
	return cfg, err
}

// GetOrgPaymentConfig returns the organization's settings, or the defaults when
// it has none.
func (s *Store) GetOrgPaymentConfig(ctx context.Context, orgID int64) (*models.OrgPaymentConfig, error) {
	key := cache.OrgKey(cache.OrgConfigGroup, orgID)
	if v, ok := s.cache.Get(key); ok {
		cp := *v.(*models.OrgPaymentConfig)
		return &cp, nil
	}
	cfg, err := GetOrgPaymentConfig(ctx, s.pool, orgID)
	if err != nil {
		return nil, err
	}
	cp := *cfg
	s.cache.Set(cache.OrgConfigGroup, key, &cp)
	return cfg, nil
}

// SaveConnectedAccount records the organization's connected account. It fails
// with ErrAlreadyExists if one is already recorded.
func (s *Store) SaveConnectedAccount(ctx context.Context, orgID int64, accountID string, policy models.FeePolicy) (*models.OrgPaymentConfig, error) {
	query := `
		INSERT INTO org_payment_configs (org_id, connected_account_id, onboarding_status, platform_fee_percent, platform_fee_fixed)
		VALUES ($1, $2, $3, $4::numeric, $5)
		ON CONFLICT (org_id) DO UPDATE SET
			connected_account_id = EXCLUDED.connected_account_id,
			onboarding_status = EXCLUDED.onboarding_status,
			updated_at = NOW()
		WHERE org_payment_configs.connected_account_id IS NULL
		RETURNING ` + orgConfigColumns

	defer s.cache.Del(cache.OrgConfigGroup, cache.OrgKey(cache.OrgConfigGroup, orgID))
	cfg, err := scanOrgConfig(s.pool.QueryRow(ctx, query,
		orgID, accountID, models.OnboardingStatusPending, policy.Percent.String(), policy.FixedMinorUnits))
	if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
		return nil, models.ErrAlreadyExists
	}
	return cfg, err
}

func (s *Store) UpdateAccountStatus(ctx context.Context, accountID string, chargesEnabled, payoutsEnabled, detailsSubmitted bool) error {
	query := `
		UPDATE org_payment_configs
		SET charges_enabled = $1, payouts_enabled = $2, onboarding_status = $3, updated_at = NOW()
		WHERE connected_account_id = $4
		RETURNING org_id
	`
	status := models.OnboardingStatusPending
	if detailsSubmitted && chargesEnabled {
		status = models.OnboardingStatusComplete
	}
	var orgID int64
	err := s.pool.QueryRow(ctx, query, chargesEnabled, payoutsEnabled, status, accountID).Scan(&orgID)
	if err != nil {
		return notFound(err, "connected account "+accountID)
	}
	s.cache.Del(cache.OrgConfigGroup, cache.OrgKey(cache.OrgConfigGroup, orgID))
	return nil
}

// UpdateFeeMode sets the fee mode, creating the settings row if needed.
func (s *Store) UpdateFeeMode(ctx context.Context, orgID int64, mode models.FeeMode) (*models.OrgPaymentConfig, error) {
	query := `
		INSERT INTO org_payment_configs (org_id, fee_mode)
		VALUES ($1, $2)
		ON CONFLICT (org_id) DO UPDATE SET fee_mode = EXCLUDED.fee_mode, updated_at = NOW()
		RETURNING ` + orgConfigColumns

	defer s.cache.Del(cache.OrgConfigGroup, cache.OrgKey(cache.OrgConfigGroup, orgID))
	return scanOrgConfig(s.pool.QueryRow(ctx, query, orgID, mode))
}
