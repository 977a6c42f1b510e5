package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
	"github.com/nkiryanov/coinledger/internal/repository/memory"
	"github.com/nkiryanov/coinledger/internal/retry"
)

var testPolicy = retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(memory.NewStorage(memory.New()), testPolicy, nil)
}

// Storage that fails the first conflicts transactions with a version conflict
type conflictingStorage struct {
	repository.Storage
	conflicts atomic.Int32
	calls     atomic.Int32
}

func (s *conflictingStorage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	s.calls.Add(1)
	if s.conflicts.Add(-1) >= 0 {
		return apperrors.ErrConcurrencyConflict
	}
	return s.Storage.InTx(ctx, fn)
}

func TestService_GetBalance(t *testing.T) {
	t.Run("lazy creates zero balance", func(t *testing.T) {
		s := newTestService(t)
		userID := uuid.New()

		b, err := s.GetBalance(t.Context(), userID)
		require.NoError(t, err)
		require.Equal(t, userID, b.UserID)
		require.Equal(t, int64(0), b.Balance)
		require.Equal(t, int32(0), b.Version)

		again, err := s.GetBalance(t.Context(), userID)
		require.NoError(t, err)
		require.Equal(t, b, again, "second read must return the same balance")
	})

	t.Run("nil user id invalid", func(t *testing.T) {
		s := newTestService(t)

		_, err := s.GetBalance(t.Context(), uuid.Nil)
		require.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})
}

func TestService_GetBalances(t *testing.T) {
	s := newTestService(t)
	existing := uuid.New()
	missing := uuid.New()

	err := s.GrantCoin(t.Context(), existing, 50, models.TransactionTypeGrant)
	require.NoError(t, err)

	balances, err := s.GetBalances(t.Context(), []uuid.UUID{existing, missing})
	require.NoError(t, err)

	require.Len(t, balances, 1)
	require.Equal(t, int64(50), balances[existing].Balance)
	require.NotContains(t, balances, missing, "batch read must not create balances")

	_, err = s.storage.Balance().GetBalance(t.Context(), missing)
	require.ErrorIs(t, err, apperrors.ErrBalanceNotFound)
}

func TestService_GrantCoin(t *testing.T) {
	t.Run("grant updates counters and writes transaction", func(t *testing.T) {
		s := newTestService(t)
		userID := uuid.New()

		require.NoError(t, s.GrantCoin(t.Context(), userID, 100, models.TransactionTypeGrant))
		require.NoError(t, s.GrantCoin(t.Context(), userID, 25, "quest"))

		b, err := s.GetBalance(t.Context(), userID)
		require.NoError(t, err)
		require.Equal(t, int64(125), b.Balance)
		require.Equal(t, int64(125), b.TotalEarned)
		require.Equal(t, int64(0), b.TotalSpent)
		require.Equal(t, int32(2), b.Version)

		txs, err := s.ListTransactions(t.Context(), userID, nil)
		require.NoError(t, err)
		require.Len(t, txs, 2)
		require.Equal(t, "quest", txs[0].Type, "newest first")
		require.Equal(t, int64(100), txs[0].BalanceBefore)
		require.Equal(t, int64(125), txs[0].BalanceAfter)
		require.Nil(t, txs[0].TheoreticalAmount)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		s := newTestService(t)

		tests := []struct {
			name   string
			userID uuid.UUID
			amount int64
			txType string
		}{
			{"zero amount", uuid.New(), 0, models.TransactionTypeGrant},
			{"negative amount", uuid.New(), -5, models.TransactionTypeGrant},
			{"empty type", uuid.New(), 5, ""},
			{"nil user", uuid.Nil, 5, models.TransactionTypeGrant},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := s.GrantCoin(t.Context(), tt.userID, tt.amount, tt.txType)
				require.ErrorIs(t, err, apperrors.ErrInvalidArgument)
			})
		}
	})

	t.Run("retried on conflict", func(t *testing.T) {
		storage := &conflictingStorage{Storage: memory.NewStorage(memory.New())}
		storage.conflicts.Store(2)
		s := NewService(storage, testPolicy, nil)
		userID := uuid.New()

		err := s.GrantCoin(t.Context(), userID, 10, models.TransactionTypeGrant)
		require.NoError(t, err)
		require.Equal(t, int32(3), storage.calls.Load())

		b, err := s.GetBalance(t.Context(), userID)
		require.NoError(t, err)
		require.Equal(t, int64(10), b.Balance, "failed attempts must not leave any trace")
	})

	t.Run("conflict returned after retries exhausted", func(t *testing.T) {
		storage := &conflictingStorage{Storage: memory.NewStorage(memory.New())}
		storage.conflicts.Store(100)
		attempts := 0
		policy := testPolicy
		policy.OnRetry = func(error, int, time.Duration) { attempts++ }
		s := NewService(storage, policy, nil)

		err := s.GrantCoin(t.Context(), uuid.New(), 10, models.TransactionTypeGrant)
		require.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)
		require.Equal(t, int32(4), storage.calls.Load(), "first attempt and three retries")
		require.Equal(t, 3, attempts)
	})

	t.Run("overflow rejected", func(t *testing.T) {
		s := newTestService(t)
		userID := uuid.New()

		require.NoError(t, s.GrantCoin(t.Context(), userID, 1<<62, models.TransactionTypeGrant))
		err := s.GrantCoin(t.Context(), userID, 1<<62, models.TransactionTypeGrant)
		require.ErrorIs(t, err, apperrors.ErrBalanceOverflow)
	})
}

func TestService_ConcurrentGrants(t *testing.T) {
	for _, workers := range []int{2, 10} {
		s := NewService(memory.NewStorage(memory.New()), retry.Policy{MaxRetries: 10, BaseDelay: 100 * time.Microsecond}, nil)
		userID := uuid.New()

		_, err := s.GetBalance(t.Context(), userID)
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.GrantCoin(context.Background(), userID, int64(i+1), models.TransactionTypeGrant)
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		b, err := s.GetBalance(t.Context(), userID)
		require.NoError(t, err)
		require.Equal(t, int64(workers*(workers+1)/2), b.Balance)
		require.Equal(t, int32(workers), b.Version, "every grant must advance the version exactly once")

		txs, err := s.ListTransactions(t.Context(), userID, nil)
		require.NoError(t, err)
		require.Len(t, txs, workers)
	}
}

func TestService_SpendCoin(t *testing.T) {
	s := newTestService(t)
	userID := uuid.New()
	require.NoError(t, s.GrantCoin(t.Context(), userID, 100, models.TransactionTypeGrant))

	t.Run("spend decreases balance", func(t *testing.T) {
		tx, err := s.SpendCoin(t.Context(), userID, 30, models.TransactionTypeSpend)
		require.NoError(t, err)
		require.Equal(t, int64(-30), tx.Amount)
		require.Equal(t, int64(100), tx.BalanceBefore)
		require.Equal(t, int64(70), tx.BalanceAfter)

		b, err := s.GetBalance(t.Context(), userID)
		require.NoError(t, err)
		require.Equal(t, int64(70), b.Balance)
		require.Equal(t, int64(30), b.TotalSpent)
		require.Equal(t, b.TotalEarned-b.TotalSpent, b.Balance)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		_, err := s.SpendCoin(t.Context(), userID, 71, models.TransactionTypeSpend)
		require.ErrorIs(t, err, apperrors.ErrBalanceInsufficient)

		b, err := s.GetBalance(t.Context(), userID)
		require.NoError(t, err)
		require.Equal(t, int64(70), b.Balance, "balance must be untouched")
	})

	t.Run("spend from unknown user", func(t *testing.T) {
		_, err := s.SpendCoin(t.Context(), uuid.New(), 1, models.TransactionTypeSpend)
		require.ErrorIs(t, err, apperrors.ErrBalanceInsufficient)
	})

	t.Run("invalid amount", func(t *testing.T) {
		_, err := s.SpendCoin(t.Context(), userID, 0, models.TransactionTypeSpend)
		require.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})
}

func TestService_AdminAdjustBalance(t *testing.T) {
	operator := models.Operator{ID: "op-1", Name: "Alice"}

	t.Run("positive adjustment", func(t *testing.T) {
		s := newTestService(t)
		userID := uuid.New()

		applied, err := s.AdminAdjustBalance(t.Context(), userID, 40, "compensation", operator)
		require.NoError(t, err)
		require.True(t, applied)

		b, err := s.GetBalance(t.Context(), userID)
		require.NoError(t, err)
		require.Equal(t, int64(40), b.Balance)
		require.Equal(t, int64(40), b.TotalEarned)

		logs, err := s.ListChangeLogs(t.Context(), userID)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		require.Equal(t, int64(40), logs[0].DeltaAmount)
		require.Equal(t, "compensation", logs[0].Reason)
		require.Equal(t, "op-1", logs[0].OperatorID)
		require.Equal(t, "Alice", logs[0].OperatorName)

		txs, err := s.ListTransactions(t.Context(), userID, []string{models.TransactionTypeAdminAdjust})
		require.NoError(t, err)
		require.Len(t, txs, 1)
	})

	t.Run("negative adjustment", func(t *testing.T) {
		s := newTestService(t)
		userID := uuid.New()
		require.NoError(t, s.GrantCoin(t.Context(), userID, 100, models.TransactionTypeGrant))

		applied, err := s.AdminAdjustBalance(t.Context(), userID, -60, "fraud", operator)
		require.NoError(t, err)
		require.True(t, applied)

		b, err := s.GetBalance(t.Context(), userID)
		require.NoError(t, err)
		require.Equal(t, int64(40), b.Balance)
		require.Equal(t, int64(60), b.TotalSpent)
	})

	t.Run("overdraw not applied", func(t *testing.T) {
		s := newTestService(t)
		userID := uuid.New()
		require.NoError(t, s.GrantCoin(t.Context(), userID, 10, models.TransactionTypeGrant))

		applied, err := s.AdminAdjustBalance(t.Context(), userID, -11, "fraud", operator)
		require.NoError(t, err)
		require.False(t, applied)

		logs, err := s.ListChangeLogs(t.Context(), userID)
		require.NoError(t, err)
		require.Empty(t, logs, "change log must not be written for rejected adjustment")
	})

	t.Run("invalid arguments", func(t *testing.T) {
		s := newTestService(t)

		_, err := s.AdminAdjustBalance(t.Context(), uuid.New(), 0, "reason", operator)
		require.ErrorIs(t, err, apperrors.ErrInvalidArgument)

		_, err = s.AdminAdjustBalance(t.Context(), uuid.New(), 10, "", operator)
		require.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})
}

func TestService_TransferCoin(t *testing.T) {
	t.Run("fee charged from transferred amount", func(t *testing.T) {
		s := newTestService(t)
		from, to := uuid.New(), uuid.New()
		require.NoError(t, s.GrantCoin(t.Context(), from, 1000, models.TransactionTypeGrant))

		transfer, err := s.TransferCoin(t.Context(), from, to, 333, decimal.RequireFromString("0.05"))
		require.NoError(t, err)

		// 333 * 0.05 = 16.65
		require.Equal(t, int64(16), transfer.Fee.Actual)
		require.True(t, decimal.RequireFromString("0.65").Equal(transfer.Fee.RoundingDiff))
		require.Equal(t, int64(333), transfer.Debited)
		require.Equal(t, int64(317), transfer.Credited)

		require.Equal(t, models.TransactionTypeTransferOut, transfer.Out.Type)
		require.NotNil(t, transfer.Out.RoundingDiff)
		require.True(t, decimal.RequireFromString("16.65").Equal(*transfer.Out.TheoreticalAmount))
		require.NotNil(t, transfer.In)
		require.Equal(t, int64(317), transfer.In.Amount)

		sender, err := s.GetBalance(t.Context(), from)
		require.NoError(t, err)
		require.Equal(t, int64(667), sender.Balance)

		recipient, err := s.GetBalance(t.Context(), to)
		require.NoError(t, err)
		require.Equal(t, int64(317), recipient.Balance)
		require.Equal(t, int64(317), recipient.TotalEarned)
	})

	t.Run("insufficient balance moves nothing", func(t *testing.T) {
		s := newTestService(t)
		from, to := uuid.New(), uuid.New()
		require.NoError(t, s.GrantCoin(t.Context(), from, 10, models.TransactionTypeGrant))

		_, err := s.TransferCoin(t.Context(), from, to, 11, decimal.Zero)
		require.ErrorIs(t, err, apperrors.ErrBalanceInsufficient)

		balances, err := s.GetBalances(t.Context(), []uuid.UUID{from, to})
		require.NoError(t, err)
		require.Equal(t, int64(10), balances[from].Balance)
		require.NotContains(t, balances, to, "recipient must not be created by failed transfer")
	})

	t.Run("full fee credits nothing", func(t *testing.T) {
		s := newTestService(t)
		from, to := uuid.New(), uuid.New()
		require.NoError(t, s.GrantCoin(t.Context(), from, 10, models.TransactionTypeGrant))

		transfer, err := s.TransferCoin(t.Context(), from, to, 10, decimal.NewFromInt(1))
		require.NoError(t, err)
		require.Equal(t, int64(0), transfer.Credited)
		require.Nil(t, transfer.In)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		s := newTestService(t)
		userID := uuid.New()

		_, err := s.TransferCoin(t.Context(), userID, userID, 10, decimal.Zero)
		require.ErrorIs(t, err, apperrors.ErrInvalidArgument, "self transfer")

		_, err = s.TransferCoin(t.Context(), userID, uuid.New(), 0, decimal.Zero)
		require.ErrorIs(t, err, apperrors.ErrInvalidArgument, "zero amount")

		_, err = s.TransferCoin(t.Context(), userID, uuid.New(), 10, decimal.RequireFromString("1.5"))
		require.ErrorIs(t, err, apperrors.ErrInvalidArgument, "fee rate above one")
	})
}

func TestService_DistributeReward(t *testing.T) {
	t.Run("largest remainder shares", func(t *testing.T) {
		s := newTestService(t)
		recipients := []Recipient{
			{UserID: uuid.New(), Weight: 1},
			{UserID: uuid.New(), Weight: 2},
			{UserID: uuid.New(), Weight: 2},
		}

		rewards, err := s.DistributeReward(t.Context(), 7, recipients, models.TransactionTypeReward)
		require.NoError(t, err)
		require.Len(t, rewards, 3)

		want := []int64{1, 3, 3}
		for i, r := range rewards {
			require.Equal(t, recipients[i].UserID, r.UserID)
			require.Equal(t, want[i], r.Allocation.Actual)
			require.NotNil(t, r.Transaction)
			require.Equal(t, want[i], r.Transaction.Amount)
			require.True(t, r.Allocation.RoundingDiff.Equal(*r.Transaction.RoundingDiff))

			b, err := s.GetBalance(t.Context(), r.UserID)
			require.NoError(t, err)
			require.Equal(t, want[i], b.Balance)
		}
	})

	t.Run("zero share skipped", func(t *testing.T) {
		s := newTestService(t)
		recipients := []Recipient{
			{UserID: uuid.New(), Weight: 1},
			{UserID: uuid.New(), Weight: 1},
			{UserID: uuid.New(), Weight: 1},
		}

		rewards, err := s.DistributeReward(t.Context(), 2, recipients, models.TransactionTypeReward)
		require.NoError(t, err)
		require.Equal(t, int64(1), rewards[0].Allocation.Actual)
		require.Equal(t, int64(1), rewards[1].Allocation.Actual)
		require.Equal(t, int64(0), rewards[2].Allocation.Actual)
		require.Nil(t, rewards[2].Transaction)

		balances, err := s.GetBalances(t.Context(), []uuid.UUID{recipients[2].UserID})
		require.NoError(t, err)
		require.Empty(t, balances)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		s := newTestService(t)
		userID := uuid.New()

		_, err := s.DistributeReward(t.Context(), 0, []Recipient{{UserID: userID, Weight: 1}}, models.TransactionTypeReward)
		require.ErrorIs(t, err, apperrors.ErrInvalidArgument)

		_, err = s.DistributeReward(t.Context(), 10, nil, models.TransactionTypeReward)
		require.ErrorIs(t, err, apperrors.ErrInvalidArgument)

		_, err = s.DistributeReward(t.Context(), 10, []Recipient{{UserID: userID, Weight: 1}, {UserID: userID, Weight: 1}}, models.TransactionTypeReward)
		require.ErrorIs(t, err, apperrors.ErrInvalidArgument, "duplicate recipient")

		_, err = s.DistributeReward(t.Context(), 10, []Recipient{{UserID: userID, Weight: 0}}, models.TransactionTypeReward)
		require.ErrorIs(t, err, apperrors.ErrInvalidArgument, "zero weight")
	})
}
