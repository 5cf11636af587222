package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type FeeMode string

const (
	FeeModeAbsorb      FeeMode = "absorb"
	FeeModePassThrough FeeMode = "pass_through"
)

func (m FeeMode) Valid() bool {
	return m == FeeModeAbsorb || m == FeeModePassThrough
}

const (
	OnboardingStatusNone     = "none"
	OnboardingStatusPending  = "pending"
	OnboardingStatusComplete = "complete"
)

var DefaultPlatformFeePercent = decimal.RequireFromString("2.5")

const DefaultPlatformFeeFixedMinorUnits int64 = 30

// OrgPaymentConfig is the per-organization payment settings row. Charges are
// only possible once ConnectedAccountID is set.
type OrgPaymentConfig struct {
	OrgID                      int64           `json:"org_id"`
	ConnectedAccountID         *string         `json:"connected_account_id"`
	ChargesEnabled             bool            `json:"charges_enabled"`
	PayoutsEnabled             bool            `json:"payouts_enabled"`
	OnboardingStatus           string          `json:"onboarding_status"`
	FeeMode                    FeeMode         `json:"fee_mode"`
	PlatformFeePercent         decimal.Decimal `json:"platform_fee_percent"`
	PlatformFeeFixedMinorUnits int64           `json:"platform_fee_fixed_minor_units"`
	CreatedAt                  time.Time       `json:"created_at"`
	UpdatedAt                  time.Time       `json:"updated_at"`
}

// DefaultOrgPaymentConfig is what an organization without a settings row reads as.
func DefaultOrgPaymentConfig(orgID int64) *OrgPaymentConfig {
	return &OrgPaymentConfig{
		OrgID:                      orgID,
		OnboardingStatus:           OnboardingStatusNone,
		FeeMode:                    FeeModeAbsorb,
		PlatformFeePercent:         DefaultPlatformFeePercent,
		PlatformFeeFixedMinorUnits: DefaultPlatformFeeFixedMinorUnits,
	}
}

func (c *OrgPaymentConfig) Connected() bool {
	return c != nil && c.ConnectedAccountID != nil && *c.ConnectedAccountID != ""
}

// FeePolicy is the platform fee applied to new organizations.
type FeePolicy struct {
	Percent         decimal.Decimal
	FixedMinorUnits int64
}

// FeeConfig is the read view returned to callers deciding how to present a payment.
type FeeConfig struct {
	FeeMode                    FeeMode         `json:"fee_mode"`
	Connected                  bool            `json:"connected"`
	ChargesEnabled             bool            `json:"charges_enabled"`
	PayoutsEnabled             bool            `json:"payouts_enabled"`
	PlatformFeePercent         decimal.Decimal `json:"platform_fee_percent"`
	PlatformFeeFixedMinorUnits int64           `json:"platform_fee_fixed_minor_units"`
}
