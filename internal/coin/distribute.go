package coin

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/coinledger/internal/apperrors"
)

// Decimal places kept for theoretical shares
const TheoreticalPlaces = 8

// Share of a weighted distribution.
//
// RoundingDiff is Theoretical - Actual and is signed: it is negative for entries
// that received one of the leftover units, so diffs of one distribution sum to zero.
type Allocation struct {
	Weight       int
	Theoretical  decimal.Decimal
	Actual       int64
	RoundingDiff decimal.Decimal
}

// DistributeEqually splits total into count integer shares.
// The first total%count shares get one extra unit, so shares differ by at most one.
func DistributeEqually(total int64, count int) ([]int64, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive, got %d", apperrors.ErrInvalidArgument, count)
	}
	if total < 0 {
		return nil, fmt.Errorf("%w: total must not be negative, got %d", apperrors.ErrInvalidArgument, total)
	}

	base := total / int64(count)
	remainder := int(total % int64(count))

	shares := make([]int64, count)
	for i := range shares {
		shares[i] = base
		if i < remainder {
			shares[i]++
		}
	}

	return shares, nil
}

// DistributeByWeight splits total proportionally to weights using the largest-remainder method.
// Leftover units go to the largest fractional remainders; ties go to the earlier index.
func DistributeByWeight(total int64, weights []int) ([]Allocation, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: weights must not be empty", apperrors.ErrInvalidArgument)
	}
	if total < 0 {
		return nil, fmt.Errorf("%w: total must not be negative, got %d", apperrors.ErrInvalidArgument, total)
	}

	sum := new(big.Int)
	for i, w := range weights {
		if w <= 0 {
			return nil, fmt.Errorf("%w: weight at %d must be positive, got %d", apperrors.ErrInvalidArgument, i, w)
		}
		sum.Add(sum, big.NewInt(int64(w)))
	}

	// share_i = total*w_i / sum, computed exactly: remainders share the denominator
	// so they compare as integers
	type part struct {
		numerator *big.Int
		share     int64
		remainder *big.Int
	}

	parts := make([]part, len(weights))
	bigTotal := big.NewInt(total)
	allocated := int64(0)
	for i, w := range weights {
		numerator := new(big.Int).Mul(bigTotal, big.NewInt(int64(w)))
		share, remainder := new(big.Int).QuoRem(numerator, sum, new(big.Int))
		parts[i] = part{numerator: numerator, share: share.Int64(), remainder: remainder}
		allocated += share.Int64()
	}

	order := make([]int, len(parts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return parts[order[a]].remainder.Cmp(parts[order[b]].remainder) > 0
	})

	for _, idx := range order[:total-allocated] {
		parts[idx].share++
	}

	// Theoretical shares are rounded; the last one absorbs the rounding
	// so theoretical shares sum to total and diffs sum to zero
	divisor := decimal.NewFromBigInt(sum, 0)
	rest := decimal.NewFromInt(total)
	result := make([]Allocation, len(parts))
	for i, p := range parts {
		theoretical := rest
		if i < len(parts)-1 {
			theoretical = decimal.NewFromBigInt(p.numerator, 0).DivRound(divisor, TheoreticalPlaces)
			rest = rest.Sub(theoretical)
		}
		result[i] = Allocation{
			Weight:       weights[i],
			Theoretical:  theoretical,
			Actual:       p.share,
			RoundingDiff: theoretical.Sub(decimal.NewFromInt(p.share)),
		}
	}

	return result, nil
}
