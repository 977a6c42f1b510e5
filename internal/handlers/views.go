package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/coinledger/internal/coin"
	"github.com/nkiryanov/coinledger/internal/models"
)

type balanceView struct {
	UserID        uuid.UUID `json:"user_id"`
	Balance       int64     `json:"balance"`
	FrozenBalance int64     `json:"frozen_balance"`
	TotalEarned   int64     `json:"total_earned"`
	TotalSpent    int64     `json:"total_spent"`
	Version       int32     `json:"version"`
	Display       string    `json:"display"`
	DisplayLarge  string    `json:"display_large"`
}

func newBalanceView(b models.Balance) balanceView {
	return balanceView{
		UserID:        b.UserID,
		Balance:       b.Balance,
		FrozenBalance: b.FrozenBalance,
		TotalEarned:   b.TotalEarned,
		TotalSpent:    b.TotalSpent,
		Version:       b.Version,
		Display:       coin.FormatDisplay(b.Balance),
		DisplayLarge:  coin.FormatAsLargeUnit(b.Balance),
	}
}

type transactionView struct {
	ID                uuid.UUID        `json:"id"`
	UserID            uuid.UUID        `json:"user_id"`
	Amount            int64            `json:"amount"`
	Type              string           `json:"type"`
	BalanceBefore     int64            `json:"balance_before"`
	BalanceAfter      int64            `json:"balance_after"`
	TheoreticalAmount *decimal.Decimal `json:"theoretical_amount,omitempty"`
	RoundingDiff      *decimal.Decimal `json:"rounding_diff,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

func newTransactionView(t models.Transaction) transactionView {
	return transactionView{
		ID:                t.ID,
		UserID:            t.UserID,
		Amount:            t.Amount,
		Type:              t.Type,
		BalanceBefore:     t.BalanceBefore,
		BalanceAfter:      t.BalanceAfter,
		TheoreticalAmount: t.TheoreticalAmount,
		RoundingDiff:      t.RoundingDiff,
		CreatedAt:         t.CreatedAt,
	}
}

type changeLogView struct {
	ID           uuid.UUID `json:"id"`
	DeltaAmount  int64     `json:"delta_amount"`
	Reason       string    `json:"reason"`
	OperatorID   string    `json:"operator_id"`
	OperatorName string    `json:"operator_name"`
	CreatedAt    time.Time `json:"created_at"`
}

func newChangeLogView(l models.BalanceChangeLog) changeLogView {
	return changeLogView{
		ID:           l.ID,
		DeltaAmount:  l.DeltaAmount,
		Reason:       l.Reason,
		OperatorID:   l.OperatorID,
		OperatorName: l.OperatorName,
		CreatedAt:    l.CreatedAt,
	}
}
