package services

import (
	"context"
	"fmt"

	"havenledger-server/src/models"
	"havenledger-server/src/money"
)

type SettingsStore interface {
	GetOrgPaymentConfig(ctx context.Context, orgID int64) (*models.OrgPaymentConfig, error)
	UpdateFeeMode(ctx context.Context, orgID int64, mode models.FeeMode) (*models.OrgPaymentConfig, error)
}

type SettingsService struct {
	store SettingsStore
}

func NewSettingsService(store SettingsStore) *SettingsService {
	return &SettingsService{store: store}
}

// GetFeeConfig reports how the organization presents fees to payers. An
// organization that never connected reads as absorb with default fees.
func (s *SettingsService) GetFeeConfig(ctx context.Context, orgID int64) (*models.FeeConfig, error) {
	cfg, err := s.store.GetOrgPaymentConfig(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load payment config: %w", err)
	}
	return feeConfig(cfg), nil
}

func (s *SettingsService) SetFeeMode(ctx context.Context, orgID int64, mode models.FeeMode) (*models.FeeConfig, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: fee mode %q", models.ErrInvalidInput, mode)
	}
	cfg, err := s.store.UpdateFeeMode(ctx, orgID, mode)
	if err != nil {
		return nil, fmt.Errorf("update fee mode: %w", err)
	}
	return feeConfig(cfg), nil
}

// Quote prices an amount with the organization's current settings.
func (s *SettingsService) Quote(ctx context.Context, orgID, amountMinorUnits int64) (money.Quote, error) {
	if amountMinorUnits <= 0 {
		return money.Quote{}, fmt.Errorf("%w: amount must be positive", models.ErrInvalidInput)
	}
	cfg, err := s.store.GetOrgPaymentConfig(ctx, orgID)
	if err != nil {
		return money.Quote{}, fmt.Errorf("load payment config: %w", err)
	}
	return money.QuoteFor(amountMinorUnits, cfg), nil
}

func feeConfig(cfg *models.OrgPaymentConfig) *models.FeeConfig {
	return &models.FeeConfig{
		FeeMode:                    cfg.FeeMode,
		Connected:                  cfg.Connected(),
		ChargesEnabled:             cfg.ChargesEnabled,
		PayoutsEnabled:             cfg.PayoutsEnabled,
		PlatformFeePercent:         cfg.PlatformFeePercent,
		PlatformFeeFixedMinorUnits: cfg.PlatformFeeFixedMinorUnits,
	}
}
