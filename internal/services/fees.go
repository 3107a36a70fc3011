package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bereka/backend/internal/models"
)

// DefaultFeeRate is the platform's cut of a worker payout.
var DefaultFeeRate = decimal.RequireFromString("0.05")

// FeePolicy computes the platform fee on a payout.
type FeePolicy struct {
	Rate decimal.Decimal
}

func NewFeePolicy(rate decimal.Decimal) (FeePolicy, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return FeePolicy{}, fmt.Errorf("%w: fee rate %s outside [0, 1]", models.ErrInvalidInput, rate)
	}
	return FeePolicy{Rate: rate}, nil
}

// Fee returns round_half_up(amount * rate), clamped to [0, amount].
func (p FeePolicy) Fee(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	// Round(0) on a non-negative decimal rounds half away from zero.
	fee := decimal.NewFromInt(amount).Mul(p.Rate).Round(0).IntPart()
	switch {
	case fee < 0:
		return 0
	case fee > amount:
		return amount
	}
	return fee
}

// Split returns the worker's net and the platform fee for a gross payout.
// net + fee == gross.
func (p FeePolicy) Split(gross int64) (net, fee int64) {
	fee = p.Fee(gross)
	return gross - fee, fee
}
