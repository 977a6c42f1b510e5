package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
)

type BalanceRepo struct {
	DB DBTX
}

const balanceColumns = `user_id, balance, frozen_balance, total_earned, total_spent, version, created_at, updated_at, interest_pending`

func (r *BalanceRepo) GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	const getBalance = `SELECT ` + balanceColumns + ` FROM balances WHERE user_id = $1`

	rows, _ := r.DB.Query(ctx, getBalance, userID)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return balance, apperrors.ErrBalanceNotFound
	default:
		return balance, fmt.Errorf("db error: %w", mapError(err))
	}
}

func (r *BalanceRepo) ListBalances(ctx context.Context, userIDs []uuid.UUID) ([]models.Balance, error) {
	const listBalances = `SELECT ` + balanceColumns + ` FROM balances WHERE user_id = ANY($1) ORDER BY user_id`

	if len(userIDs) == 0 {
		return []models.Balance{}, nil
	}

	rows, _ := r.DB.Query(ctx, listBalances, userIDs)
	balances, err := pgx.CollectRows(rows, rowToBalance)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", mapError(err))
	}

	return balances, nil
}

// Insert zero balance or return existed one
const createBalance = `
WITH inserted AS (
	INSERT INTO balances (user_id, balance, frozen_balance, total_earned, total_spent, version)
	VALUES ($1, 0, 0, 0, 0, 0)
	ON CONFLICT (user_id) DO NOTHING
	RETURNING ` + balanceColumns + `
)
SELECT ` + balanceColumns + ` FROM inserted
UNION ALL
SELECT ` + balanceColumns + ` FROM balances WHERE user_id = $1
LIMIT 1
`

func (r *BalanceRepo) CreateBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, createBalance, userID)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Concurrent insert committed after the statement snapshot was taken: it is visible to the next statement
		return r.GetBalance(ctx, userID)
	default:
		return balance, fmt.Errorf("db error: %w", mapError(err))
	}
}

// Compare-and-set on version
const saveBalance = `
UPDATE balances
SET balance = $3, frozen_balance = $4, total_earned = $5, total_spent = $6, interest_pending = $7, version = version + 1, updated_at = NOW()
WHERE user_id = $1 AND version = $2
RETURNING ` + balanceColumns

func (r *BalanceRepo) SaveBalance(ctx context.Context, b models.Balance) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, saveBalance, b.UserID, b.Version, b.Balance, b.FrozenBalance, b.TotalEarned, b.TotalSpent, b.InterestPending)
	saved, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return saved, nil
	case errors.Is(err, pgx.ErrNoRows):
		return saved, fmt.Errorf("balance version %d is stale: %w", b.Version, apperrors.ErrConcurrencyConflict)
	default:
		return saved, fmt.Errorf("db error: %w", mapError(err))
	}
}

const createTransaction = `
INSERT INTO transactions (id, user_id, amount, transaction_type, balance_before, balance_after, theoretical_amount, rounding_diff)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, user_id, amount, transaction_type, balance_before, balance_after, theoretical_amount, rounding_diff, created_at
`

func (r *BalanceRepo) CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createTransaction,
		t.ID, t.UserID, t.Amount, t.Type, t.BalanceBefore, t.BalanceAfter, t.TheoreticalAmount, t.RoundingDiff,
	)
	created, err := pgx.CollectOneRow(rows, rowToTransaction)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return created, apperrors.ErrBalanceNotFound
		}
		return created, fmt.Errorf("db error: %w", mapError(err))
	}

	return created, nil
}

func (r *BalanceRepo) ListTransactions(ctx context.Context, userID uuid.UUID, types []string) ([]models.Transaction, error) {
	const listTransactions = `
	SELECT id, user_id, amount, transaction_type, balance_before, balance_after, theoretical_amount, rounding_diff, created_at
	FROM transactions
	WHERE user_id = $1 AND (cardinality($2::text[]) = 0 OR transaction_type = ANY($2::text[]))
	ORDER BY created_at DESC, id
	`

	if types == nil {
		types = []string{}
	}

	rows, _ := r.DB.Query(ctx, listTransactions, userID, types)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", mapError(err))
	}

	return transactions, nil
}

const createChangeLog = `
INSERT INTO balance_change_logs (id, user_id, delta_amount, reason, operator_id, operator_name)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, user_id, delta_amount, reason, operator_id, operator_name, created_at
`

func (r *BalanceRepo) CreateChangeLog(ctx context.Context, l models.BalanceChangeLog) (models.BalanceChangeLog, error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createChangeLog, l.ID, l.UserID, l.DeltaAmount, l.Reason, l.OperatorID, l.OperatorName)
	created, err := pgx.CollectOneRow(rows, rowToChangeLog)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return created, apperrors.ErrBalanceNotFound
		}
		return created, fmt.Errorf("db error: %w", mapError(err))
	}

	return created, nil
}

func (r *BalanceRepo) ListChangeLogs(ctx context.Context, userID uuid.UUID) ([]models.BalanceChangeLog, error) {
	const listChangeLogs = `
	SELECT id, user_id, delta_amount, reason, operator_id, operator_name, created_at
	FROM balance_change_logs
	WHERE user_id = $1
	ORDER BY created_at DESC, id
	`

	rows, _ := r.DB.Query(ctx, listChangeLogs, userID)
	logs, err := pgx.CollectRows(rows, rowToChangeLog)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", mapError(err))
	}

	return logs, nil
}

func (r *BalanceRepo) ListUserIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	const listUserIDs = `SELECT user_id FROM balances WHERE user_id > $1 ORDER BY user_id LIMIT $2`

	rows, _ := r.DB.Query(ctx, listUserIDs, after, limit)
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("db error: %w", mapError(err))
	}

	return ids, nil
}

func rowToBalance(row pgx.CollectableRow) (models.Balance, error) {
	var b models.Balance
	err := row.Scan(&b.UserID, &b.Balance, &b.FrozenBalance, &b.TotalEarned, &b.TotalSpent, &b.Version, &b.CreatedAt, &b.UpdatedAt, &b.InterestPending)
	return b, err
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.BalanceBefore, &t.BalanceAfter, &t.TheoreticalAmount, &t.RoundingDiff, &t.CreatedAt)
	return t, err
}

func rowToChangeLog(row pgx.CollectableRow) (models.BalanceChangeLog, error) {
	var l models.BalanceChangeLog
	err := row.Scan(&l.ID, &l.UserID, &l.DeltaAmount, &l.Reason, &l.OperatorID, &l.OperatorName, &l.CreatedAt)
	return l, err
}

// Serialization failures and deadlocks lose a race the same way a stale version does,
// so they are reported as conflicts and retried by the caller.
// A violated non-negative check means the write would overdraw the balance.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("%w: %s", apperrors.ErrConcurrencyConflict, pgErr.Message)
	case pgerrcode.CheckViolation:
		return fmt.Errorf("%w: %s", apperrors.ErrBalanceInsufficient, pgErr.Message)
	default:
		return err
	}
}
