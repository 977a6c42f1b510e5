package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/coinledger/internal/coin"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
)

// AccrueInterest adds interest to the fraction pending on the user's balance and credits
// the whole units it settles. The new pending fraction is saved with the balance,
// so a credit and its remainder are written together or not at all.
func (s *Service) AccrueInterest(ctx context.Context, userID uuid.UUID, interest decimal.Decimal) (int64, error) {
	if userID == uuid.Nil {
		return 0, invalidArgument("user id is required")
	}
	if interest.IsNegative() {
		return 0, invalidArgument("interest must not be negative, got %s", interest)
	}
	if interest.IsZero() {
		return 0, nil
	}

	var credited int64
	err := s.mutate(ctx, func(tx repository.Storage) error {
		repo := tx.Balance()
		b, err := loadOrCreate(ctx, repo, userID)
		if err != nil {
			return err
		}

		theoretical := b.InterestPending.Add(interest)
		acc := coin.RestoreAccumulator(b.InterestPending)
		credited = acc.Add(interest)
		b.InterestPending = acc.Accumulated()

		if credited == 0 {
			_, err = repo.SaveBalance(ctx, b)
			return err
		}

		pending := b.InterestPending
		_, err = applyToBalance(ctx, repo, b, change{
			amount:       credited,
			txType:       models.TransactionTypeInterest,
			theoretical:  &theoretical,
			roundingDiff: &pending,
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("can't accrue interest. Err: %w", err)
	}

	return credited, nil
}
