// Package money computes platform fees and payer-facing charge totals in integer
// minor units. Percentages are applied with decimal arithmetic and rounded half-up
// to the nearest minor unit.
package money

import (
	"havenledger-server/src/models"

	"github.com/shopspring/decimal"
)

var (
	// SurchargePercent and SurchargeFixedMinorUnits approximate card processing cost
	// passed to the payer in pass_through mode.
	SurchargePercent               = decimal.RequireFromString("3.0")
	SurchargeFixedMinorUnits int64 = 30

	hundred = decimal.NewFromInt(100)
)

// percentOf returns round-half-up(amount * percent / 100). Inputs are non-negative
// so decimal's half-away-from-zero rounding is half-up.
func percentOf(amount int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(percent).Div(hundred).Round(0).IntPart()
}

// PlatformFee is the platform's cut of a charge: round(amount·percent/100) + fixed.
// Zero and negative amounts carry no fee.
func PlatformFee(amount int64, percent decimal.Decimal, fixed int64) int64 {
	if amount <= 0 {
		return 0
	}
	if percent.IsNegative() {
		percent = decimal.Zero
	}
	if fixed < 0 {
		fixed = 0
	}
	return percentOf(amount, percent) + fixed
}

// Surcharge is the processing cost added on top of amount in pass_through mode.
func Surcharge(amount int64, percent decimal.Decimal, fixed int64) int64 {
	if amount <= 0 {
		return 0
	}
	return percentOf(amount, percent) + fixed
}

// ChargeTotal is what the payer is charged for amount under mode, using the
// default surcharge.
func ChargeTotal(amount int64, mode models.FeeMode) int64 {
	return ChargeTotalWith(amount, mode, SurchargePercent, SurchargeFixedMinorUnits)
}

func ChargeTotalWith(amount int64, mode models.FeeMode, percent decimal.Decimal, fixed int64) int64 {
	if amount <= 0 {
		return 0
	}
	if mode == models.FeeModePassThrough {
		return amount + Surcharge(amount, percent, fixed)
	}
	return amount
}

// NetToConnected is what the organization's connected account receives.
func NetToConnected(amount, platformFee int64) int64 {
	if platformFee >= amount {
		return 0
	}
	return amount - platformFee
}

// Quote is a breakdown of a prospective charge.
type Quote struct {
	AmountMinorUnits      int64          `json:"amount_minor_units"`
	FeeMode               models.FeeMode `json:"fee_mode"`
	ChargeTotalMinorUnits int64          `json:"charge_total_minor_units"`
	PlatformFeeMinorUnits int64          `json:"platform_fee_minor_units"`
	NetMinorUnits         int64          `json:"net_minor_units"`
}

// QuoteFor computes a Quote using the organization's fee settings. The platform
// fee is always taken from the original amount, not the surcharged total.
func QuoteFor(amount int64, cfg *models.OrgPaymentConfig) Quote {
	mode := models.FeeModeAbsorb
	percent := models.DefaultPlatformFeePercent
	fixed := models.DefaultPlatformFeeFixedMinorUnits
	if cfg != nil {
		if cfg.FeeMode.Valid() {
			mode = cfg.FeeMode
		}
		percent = cfg.PlatformFeePercent
		fixed = cfg.PlatformFeeFixedMinorUnits
	}
	fee := PlatformFee(amount, percent, fixed)
	return Quote{
		AmountMinorUnits:      amount,
		FeeMode:               mode,
		ChargeTotalMinorUnits: ChargeTotal(amount, mode),
		PlatformFeeMinorUnits: fee,
		NetMinorUnits:         NetToConnected(amount, fee),
	}
}
