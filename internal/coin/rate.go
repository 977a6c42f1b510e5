package coin

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/coinledger/internal/apperrors"
)

// Result of a proportional computation
// Actual + RoundingDiff is exactly equal to Theoretical
type RateResult struct {
	Theoretical  decimal.Decimal
	Actual       int64
	RoundingDiff decimal.Decimal
}

// CalculateByRate computes amount * rate and floors it to whole atomic units.
// Fails with apperrors.ErrInvalidArgument if amount is negative or rate is outside [0, 1].
func CalculateByRate(amount int64, rate decimal.Decimal) (RateResult, error) {
	if amount < 0 {
		return RateResult{}, fmt.Errorf("%w: amount must not be negative, got %d", apperrors.ErrInvalidArgument, amount)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return RateResult{}, fmt.Errorf("%w: rate must be within [0, 1], got %s", apperrors.ErrInvalidArgument, rate)
	}

	theoretical := decimal.NewFromInt(amount).Mul(rate)
	actual := theoretical.Floor()

	return RateResult{
		Theoretical:  theoretical,
		Actual:       actual.IntPart(),
		RoundingDiff: theoretical.Sub(actual),
	}, nil
}

// CalculateFee is CalculateByRate for fees.
// A fee under one atomic unit floors to zero (waived) and stays visible in RoundingDiff.
func CalculateFee(amount int64, feeRate decimal.Decimal) (RateResult, error) {
	return CalculateByRate(amount, feeRate)
}
