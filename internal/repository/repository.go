package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/models"
)

// Balance repository interface
type BalanceRepo interface {
	// Get balance by user id
	// If balance not found must return apperrors.ErrBalanceNotFound
	GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)

	// Batch read. Users without balance are skipped silently
	ListBalances(ctx context.Context, userIDs []uuid.UUID) ([]models.Balance, error)

	// Create zero balance with version 0
	// If balance already exists must return the stored one untouched
	CreateBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)

	// Save balance counters if the stored version equals b.Version and increment the version by one
	// If the version changed since read must return apperrors.ErrConcurrencyConflict
	SaveBalance(ctx context.Context, b models.Balance) (models.Balance, error)

	// Append-only records, never updated or deleted
	CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)
	CreateChangeLog(ctx context.Context, l models.BalanceChangeLog) (models.BalanceChangeLog, error)

	// Newest first. If types is empty all types are returned
	ListTransactions(ctx context.Context, userID uuid.UUID, types []string) ([]models.Transaction, error)
	ListChangeLogs(ctx context.Context, userID uuid.UUID) ([]models.BalanceChangeLog, error)

	// User ids with balance ordered ascending, starting after the given id (keyset pagination)
	ListUserIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type Storage interface {
	Balance() BalanceRepo

	// Run fn in a transaction: commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
