package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionTypeGrant       = "grant"
	TransactionTypeSpend       = "spend"
	TransactionTypeAdminAdjust = "admin_adjust"
	TransactionTypeTransferIn  = "transfer_in"
	TransactionTypeTransferOut = "transfer_out"
	TransactionTypeReward      = "reward"
	TransactionTypeInterest    = "interest"
)

// Balance of a single user
// Version is the optimistic lock token: storage increments it by one on every successful save
type Balance struct {
	UserID        uuid.UUID
	Balance       int64
	FrozenBalance int64
	TotalEarned   int64
	TotalSpent    int64
	Version       int32
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Accrued interest not yet credited, within [0, 1)
	InterestPending decimal.Decimal
}

// Append-only record, one per balance mutation
type Transaction struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Amount        int64
	Type          string
	BalanceBefore int64
	BalanceAfter  int64

	// Set only when the amount came out of a proportional computation
	TheoreticalAmount *decimal.Decimal
	RoundingDiff      *decimal.Decimal

	CreatedAt time.Time
}

// Audit entry written by administrative adjustments only
type BalanceChangeLog struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	DeltaAmount  int64
	Reason       string
	OperatorID   string
	OperatorName string
	CreatedAt    time.Time
}
