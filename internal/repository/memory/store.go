// Package memory keeps balances in process memory.
// Used when no database is configured and as a fast storage for service tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
)

// Committed state shared by all storages created from it
type Store struct {
	mu sync.RWMutex

	balances     map[uuid.UUID]models.Balance
	transactions []models.Transaction
	changeLogs   []models.BalanceChangeLog
}

func New() *Store {
	return &Store{
		balances:     make(map[uuid.UUID]models.Balance),
		transactions: make([]models.Transaction, 0),
		changeLogs:   make([]models.BalanceChangeLog, 0),
	}
}

// Writes staged by a transaction. Applied on commit only if every balance it touched
// still has the version the transaction based its write on
type txn struct {
	balances     map[uuid.UUID]models.Balance
	baseVersions map[uuid.UUID]int32 // notExisted if the balance was created in this transaction
	transactions []models.Transaction
	changeLogs   []models.BalanceChangeLog
}

const notExisted int32 = -1

func newTxn() *txn {
	return &txn{
		balances:     make(map[uuid.UUID]models.Balance),
		baseVersions: make(map[uuid.UUID]int32),
	}
}

type Storage struct {
	store *Store
	tx    *txn // nil means autocommit
}

func NewStorage(store *Store) repository.Storage {
	return &Storage{store: store}
}

func (s *Storage) Balance() repository.BalanceRepo {
	return &BalanceRepo{store: s.store, tx: s.tx}
}

// Nested calls join the outer transaction
func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx := newTxn()
	if err := fn(&Storage{store: s.store, tx: tx}); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return s.store.commit(tx)
}

func (s *Store) commit(tx *txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, base := range tx.baseVersions {
		current, ok := s.balances[userID]
		switch {
		case base == notExisted && ok:
			return fmt.Errorf("balance created concurrently: %w", apperrors.ErrConcurrencyConflict)
		case base != notExisted && (!ok || current.Version != base):
			return fmt.Errorf("balance version %d is stale: %w", base, apperrors.ErrConcurrencyConflict)
		}
	}

	for userID, b := range tx.balances {
		s.balances[userID] = b
	}
	s.transactions = append(s.transactions, tx.transactions...)
	s.changeLogs = append(s.changeLogs, tx.changeLogs...)

	return nil
}

type BalanceRepo struct {
	store *Store
	tx    *txn
}

// Balance visible to this repo: staged one first, then committed
// Caller must hold store lock
func (r *BalanceRepo) visible(userID uuid.UUID) (models.Balance, bool) {
	if r.tx != nil {
		if b, ok := r.tx.balances[userID]; ok {
			return b, true
		}
	}
	b, ok := r.store.balances[userID]
	return b, ok
}

func (r *BalanceRepo) GetBalance(_ context.Context, userID uuid.UUID) (models.Balance, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	b, ok := r.visible(userID)
	if !ok {
		return b, apperrors.ErrBalanceNotFound
	}
	return b, nil
}

func (r *BalanceRepo) ListBalances(_ context.Context, userIDs []uuid.UUID) ([]models.Balance, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	balances := make([]models.Balance, 0, len(userIDs))
	seen := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		if b, ok := r.visible(id); ok {
			balances = append(balances, b)
		}
	}

	slices.SortFunc(balances, func(a, b models.Balance) int {
		return bytes.Compare(a.UserID[:], b.UserID[:])
	})

	return balances, nil
}

func (r *BalanceRepo) CreateBalance(_ context.Context, userID uuid.UUID) (models.Balance, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if b, ok := r.visible(userID); ok {
		return b, nil
	}

	now := time.Now()
	b := models.Balance{UserID: userID, CreatedAt: now, UpdatedAt: now}

	if r.tx == nil {
		r.store.balances[userID] = b
		return b, nil
	}

	r.tx.balances[userID] = b
	r.tx.baseVersions[userID] = notExisted
	return b, nil
}

func (r *BalanceRepo) SaveBalance(_ context.Context, b models.Balance) (models.Balance, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.visible(b.UserID)
	if !ok || current.Version != b.Version {
		return models.Balance{}, fmt.Errorf("balance version %d is stale: %w", b.Version, apperrors.ErrConcurrencyConflict)
	}
	if b.Balance < 0 || b.FrozenBalance < 0 {
		return models.Balance{}, fmt.Errorf("%w: balance must not be negative", apperrors.ErrBalanceInsufficient)
	}

	saved := current
	saved.Balance = b.Balance
	saved.FrozenBalance = b.FrozenBalance
	saved.TotalEarned = b.TotalEarned
	saved.TotalSpent = b.TotalSpent
	saved.InterestPending = b.InterestPending
	saved.Version++
	saved.UpdatedAt = time.Now()

	if r.tx == nil {
		r.store.balances[b.UserID] = saved
		return saved, nil
	}

	if _, tracked := r.tx.baseVersions[b.UserID]; !tracked {
		r.tx.baseVersions[b.UserID] = current.Version
	}
	r.tx.balances[b.UserID] = saved
	return saved, nil
}

func (r *BalanceRepo) CreateTransaction(_ context.Context, t models.Transaction) (models.Transaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.visible(t.UserID); !ok {
		return t, apperrors.ErrBalanceNotFound
	}

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()

	if r.tx == nil {
		r.store.transactions = append(r.store.transactions, t)
	} else {
		r.tx.transactions = append(r.tx.transactions, t)
	}

	return t, nil
}

func (r *BalanceRepo) CreateChangeLog(_ context.Context, l models.BalanceChangeLog) (models.BalanceChangeLog, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.visible(l.UserID); !ok {
		return l, apperrors.ErrBalanceNotFound
	}

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.CreatedAt = time.Now()

	if r.tx == nil {
		r.store.changeLogs = append(r.store.changeLogs, l)
	} else {
		r.tx.changeLogs = append(r.tx.changeLogs, l)
	}

	return l, nil
}

func (r *BalanceRepo) ListTransactions(_ context.Context, userID uuid.UUID, types []string) ([]models.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	all := r.store.transactions
	if r.tx != nil {
		all = append(slices.Clip(all), r.tx.transactions...)
	}

	// Appended in commit order, so walk backwards to return newest first
	result := make([]models.Transaction, 0)
	for i := len(all) - 1; i >= 0; i-- {
		t := all[i]
		if t.UserID != userID {
			continue
		}
		if len(types) > 0 && !slices.Contains(types, t.Type) {
			continue
		}
		result = append(result, t)
	}

	return result, nil
}

func (r *BalanceRepo) ListChangeLogs(_ context.Context, userID uuid.UUID) ([]models.BalanceChangeLog, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	all := r.store.changeLogs
	if r.tx != nil {
		all = append(slices.Clip(all), r.tx.changeLogs...)
	}

	result := make([]models.BalanceChangeLog, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].UserID == userID {
			result = append(result, all[i])
		}
	}

	return result, nil
}

func (r *BalanceRepo) ListUserIDs(_ context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.store.balances))
	for id := range r.store.balances {
		if bytes.Compare(id[:], after[:]) > 0 {
			ids = append(ids, id)
		}
	}

	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})

	if limit >= 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	return ids, nil
}
