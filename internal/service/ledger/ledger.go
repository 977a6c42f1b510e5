// Package ledger owns user balances.
//
// Every mutation is a read-compute-write cycle against a versioned balance run inside a
// storage transaction. A write that lost the version race fails with
// apperrors.ErrConcurrencyConflict and the whole cycle is repeated by the retry policy.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
	"github.com/nkiryanov/coinledger/internal/retry"
)

type Service struct {
	storage repository.Storage
	retry   retry.Policy
	logger  logger.Logger
}

func NewService(storage repository.Storage, policy retry.Policy, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	l = l.With("component", "ledger")

	onRetry := policy.OnRetry
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		l.Debug("Balance version conflict, retrying", "attempt", attempt, "delay", delay, "error", err)
		if onRetry != nil {
			onRetry(err, attempt, delay)
		}
	}

	return &Service{
		storage: storage,
		retry:   policy,
		logger:  l,
	}
}

// GetBalance returns user balance creating an empty one on first access
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	if userID == uuid.Nil {
		return models.Balance{}, invalidArgument("user id is required")
	}

	return loadOrCreate(ctx, s.storage.Balance(), userID)
}

// GetBalances returns balances that exist already. Missing users are absent in the result
func (s *Service) GetBalances(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]models.Balance, error) {
	balances, err := s.storage.Balance().ListBalances(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("can't list balances. Err: %w", err)
	}

	result := make(map[uuid.UUID]models.Balance, len(balances))
	for _, b := range balances {
		result[b.UserID] = b
	}

	return result, nil
}

// GrantCoin credits amount to the user and increases total earned
func (s *Service) GrantCoin(ctx context.Context, userID uuid.UUID, amount int64, transactionType string) error {
	_, err := s.grant(ctx, userID, change{amount: amount, txType: transactionType})
	return err
}

func (s *Service) grant(ctx context.Context, userID uuid.UUID, c change) (models.Transaction, error) {
	switch {
	case userID == uuid.Nil:
		return models.Transaction{}, invalidArgument("user id is required")
	case c.amount <= 0:
		return models.Transaction{}, invalidArgument("grant amount must be positive, got %d", c.amount)
	case c.txType == "":
		return models.Transaction{}, invalidArgument("transaction type is required")
	}

	var created models.Transaction
	err := s.mutate(ctx, func(st repository.Storage) (err error) {
		created, err = applyChange(ctx, st.Balance(), userID, c)
		return err
	})
	if err != nil {
		return created, fmt.Errorf("can't grant coins. Err: %w", err)
	}

	s.logger.Debug("Coins granted", "user_id", userID, "amount", c.amount, "type", c.txType)
	return created, nil
}

// SpendCoin debits amount from the user and increases total spent
// Fails with apperrors.ErrBalanceInsufficient if the balance is lower than amount
func (s *Service) SpendCoin(ctx context.Context, userID uuid.UUID, amount int64, transactionType string) (models.Transaction, error) {
	switch {
	case userID == uuid.Nil:
		return models.Transaction{}, invalidArgument("user id is required")
	case amount <= 0:
		return models.Transaction{}, invalidArgument("spend amount must be positive, got %d", amount)
	case transactionType == "":
		return models.Transaction{}, invalidArgument("transaction type is required")
	}

	var created models.Transaction
	err := s.mutate(ctx, func(st repository.Storage) (err error) {
		created, err = applyChange(ctx, st.Balance(), userID, change{amount: -amount, txType: transactionType})
		return err
	})
	if err != nil {
		return created, fmt.Errorf("can't spend coins. Err: %w", err)
	}

	return created, nil
}

// AdminAdjustBalance applies delta on behalf of the operator and writes the change log
// Returns false without error if a negative delta would overdraw the balance
func (s *Service) AdminAdjustBalance(ctx context.Context, userID uuid.UUID, delta int64, reason string, operator models.Operator) (bool, error) {
	switch {
	case userID == uuid.Nil:
		return false, invalidArgument("user id is required")
	case delta == 0:
		return false, invalidArgument("adjustment delta must not be zero")
	case reason == "":
		return false, invalidArgument("adjustment reason is required")
	}

	err := s.mutate(ctx, func(st repository.Storage) error {
		_, err := applyChange(ctx, st.Balance(), userID, change{amount: delta, txType: models.TransactionTypeAdminAdjust})
		if err != nil {
			return err
		}

		_, err = st.Balance().CreateChangeLog(ctx, models.BalanceChangeLog{
			UserID:       userID,
			DeltaAmount:  delta,
			Reason:       reason,
			OperatorID:   operator.ID,
			OperatorName: operator.Name,
		})
		return err
	})

	switch {
	case err == nil:
		s.logger.Info("Balance adjusted by operator", "user_id", userID, "delta", delta, "operator_id", operator.ID, "reason", reason)
		return true, nil
	case errors.Is(err, apperrors.ErrBalanceInsufficient):
		s.logger.Info("Balance adjustment not applied: insufficient balance", "user_id", userID, "delta", delta, "operator_id", operator.ID)
		return false, nil
	default:
		return false, fmt.Errorf("can't adjust balance. Err: %w", err)
	}
}

func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, types []string) ([]models.Transaction, error) {
	transactions, err := s.storage.Balance().ListTransactions(ctx, userID, types)
	if err != nil {
		return nil, fmt.Errorf("can't list transactions. Err: %w", err)
	}
	return transactions, nil
}

func (s *Service) ListChangeLogs(ctx context.Context, userID uuid.UUID) ([]models.BalanceChangeLog, error) {
	logs, err := s.storage.Balance().ListChangeLogs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("can't list change logs. Err: %w", err)
	}
	return logs, nil
}

// Run fn in storage transaction, repeat everything on version conflicts
func (s *Service) mutate(ctx context.Context, fn func(repository.Storage) error) error {
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.storage.InTx(ctx, fn)
	})

	if retry.IsConflict(err) {
		s.logger.Warn("Balance update gave up after retries", "max_retries", s.retry.MaxRetries, "error", err)
	}

	return err
}

// Signed balance change and what to write about it in the transaction record
type change struct {
	amount       int64
	txType       string
	theoretical  *decimal.Decimal
	roundingDiff *decimal.Decimal
}

// One read-compute-write step: load (or lazily create) the balance, apply the change,
// save it with the version it was read with, then append the transaction record
func applyChange(ctx context.Context, repo repository.BalanceRepo, userID uuid.UUID, c change) (models.Transaction, error) {
	b, err := loadOrCreate(ctx, repo, userID)
	if err != nil {
		return models.Transaction{}, err
	}

	return applyToBalance(ctx, repo, b, c)
}

func applyToBalance(ctx context.Context, repo repository.BalanceRepo, b models.Balance, c change) (models.Transaction, error) {
	before := b.Balance
	switch {
	case c.amount > 0:
		if b.Balance > math.MaxInt64-c.amount || b.TotalEarned > math.MaxInt64-c.amount {
			return models.Transaction{}, fmt.Errorf("%w: can't credit %d to %d", apperrors.ErrBalanceOverflow, c.amount, b.Balance)
		}
		b.Balance += c.amount
		b.TotalEarned += c.amount

	case c.amount < 0:
		if b.Balance+c.amount < 0 {
			return models.Transaction{}, fmt.Errorf("%w: need %d, have %d", apperrors.ErrBalanceInsufficient, -c.amount, b.Balance)
		}
		debit := -c.amount
		if b.TotalSpent > math.MaxInt64-debit {
			return models.Transaction{}, fmt.Errorf("%w: total spent can't grow by %d", apperrors.ErrBalanceOverflow, debit)
		}
		b.Balance -= debit
		b.TotalSpent += debit
	}

	saved, err := repo.SaveBalance(ctx, b)
	if err != nil {
		return models.Transaction{}, err
	}

	return repo.CreateTransaction(ctx, models.Transaction{
		UserID:            b.UserID,
		Amount:            c.amount,
		Type:              c.txType,
		BalanceBefore:     before,
		BalanceAfter:      saved.Balance,
		TheoreticalAmount: c.theoretical,
		RoundingDiff:      c.roundingDiff,
	})
}

func loadOrCreate(ctx context.Context, repo repository.BalanceRepo, userID uuid.UUID) (models.Balance, error) {
	b, err := repo.GetBalance(ctx, userID)

	switch {
	case err == nil:
		return b, nil
	case errors.Is(err, apperrors.ErrBalanceNotFound):
		b, err = repo.CreateBalance(ctx, userID)
		if err != nil {
			return b, fmt.Errorf("can't create balance. Err: %w", err)
		}
		return b, nil
	default:
		return b, fmt.Errorf("can't get balance. Err: %w", err)
	}
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidArgument, fmt.Sprintf(format, args...))
}
