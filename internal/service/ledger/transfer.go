package ledger

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/coinledger/internal/coin"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
)

type Transfer struct {
	Fee      coin.RateResult
	Debited  int64
	Credited int64

	Out models.Transaction
	In  *models.Transaction // nil if the fee took the whole amount
}

type Recipient struct {
	UserID uuid.UUID
	Weight int
}

type Reward struct {
	Recipient
	Allocation  coin.Allocation
	Transaction *models.Transaction // nil for zero share
}

// Balance change bound to a user. Changes are applied in ascending user id order
// so concurrent multi-user writes touch rows in the same order
type userChange struct {
	userID uuid.UUID
	change change
	result *models.Transaction
}

// TransferCoin moves amount from one user to another charging the fee from the transferred amount.
// The sender is debited the full amount, the recipient gets amount minus the fee.
func (s *Service) TransferCoin(ctx context.Context, from, to uuid.UUID, amount int64, feeRate decimal.Decimal) (Transfer, error) {
	switch {
	case from == uuid.Nil || to == uuid.Nil:
		return Transfer{}, invalidArgument("sender and recipient are required")
	case from == to:
		return Transfer{}, invalidArgument("can't transfer to the same user")
	case amount <= 0:
		return Transfer{}, invalidArgument("transfer amount must be positive, got %d", amount)
	}

	fee, err := coin.CalculateFee(amount, feeRate)
	if err != nil {
		return Transfer{}, err
	}

	transfer := Transfer{
		Fee:      fee,
		Debited:  amount,
		Credited: amount - fee.Actual,
	}

	out := &userChange{
		userID: from,
		change: change{
			amount:       -amount,
			txType:       models.TransactionTypeTransferOut,
			theoretical:  &fee.Theoretical,
			roundingDiff: &fee.RoundingDiff,
		},
	}
	changes := []*userChange{out}

	var in *userChange
	if transfer.Credited > 0 {
		in = &userChange{
			userID: to,
			change: change{amount: transfer.Credited, txType: models.TransactionTypeTransferIn},
		}
		changes = append(changes, in)
	}

	if err := s.mutate(ctx, applyInOrder(ctx, changes)); err != nil {
		return Transfer{}, fmt.Errorf("can't transfer coins. Err: %w", err)
	}

	transfer.Out = *out.result
	if in != nil {
		transfer.In = in.result
	}

	s.logger.Info("Coins transferred", "from", from, "to", to, "amount", amount, "fee", fee.Actual)
	return transfer, nil
}

// DistributeReward splits total between recipients proportionally to their weights and credits
// every positive share in one storage transaction. Rewards are returned in recipients order.
func (s *Service) DistributeReward(ctx context.Context, total int64, recipients []Recipient, transactionType string) ([]Reward, error) {
	switch {
	case total <= 0:
		return nil, invalidArgument("reward total must be positive, got %d", total)
	case len(recipients) == 0:
		return nil, invalidArgument("at least one recipient is required")
	case transactionType == "":
		return nil, invalidArgument("transaction type is required")
	}

	seen := make(map[uuid.UUID]struct{}, len(recipients))
	weights := make([]int, len(recipients))
	for i, r := range recipients {
		if r.UserID == uuid.Nil {
			return nil, invalidArgument("recipient %d has no user id", i)
		}
		if _, ok := seen[r.UserID]; ok {
			return nil, invalidArgument("recipient %s listed twice", r.UserID)
		}
		seen[r.UserID] = struct{}{}
		weights[i] = r.Weight
	}

	allocations, err := coin.DistributeByWeight(total, weights)
	if err != nil {
		return nil, err
	}

	rewards := make([]Reward, len(recipients))
	changes := make([]*userChange, 0, len(recipients))
	bound := make([]*userChange, len(recipients))
	for i, r := range recipients {
		rewards[i] = Reward{Recipient: r, Allocation: allocations[i]}
		if allocations[i].Actual == 0 {
			continue
		}

		a := allocations[i]
		uc := &userChange{
			userID: r.UserID,
			change: change{
				amount:       a.Actual,
				txType:       transactionType,
				theoretical:  &a.Theoretical,
				roundingDiff: &a.RoundingDiff,
			},
		}
		changes = append(changes, uc)
		bound[i] = uc
	}

	if err := s.mutate(ctx, applyInOrder(ctx, changes)); err != nil {
		return nil, fmt.Errorf("can't distribute reward. Err: %w", err)
	}

	for i, uc := range bound {
		if uc != nil {
			rewards[i].Transaction = uc.result
		}
	}

	s.logger.Info("Reward distributed", "total", total, "recipients", len(recipients), "type", transactionType)
	return rewards, nil
}

func applyInOrder(ctx context.Context, changes []*userChange) func(repository.Storage) error {
	ordered := slices.Clone(changes)
	slices.SortStableFunc(ordered, func(a, b *userChange) int {
		return bytes.Compare(a.userID[:], b.userID[:])
	})

	return func(st repository.Storage) error {
		for _, uc := range ordered {
			created, err := applyChange(ctx, st.Balance(), uc.userID, uc.change)
			if err != nil {
				return err
			}
			uc.result = &created
		}
		return nil
	}
}
