package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/coinledger/internal/handlers/middleware"
	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/service/ledger"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	ledgerService ledgerService,
	tokenParser tokenParser,
	logger logger.Logger,
) http.Handler {
	withOperator := middleware.OperatorAuth(tokenParser)

	api := http.NewServeMux()

	api.Handle("GET /balances/{userID}", handleGetBalance(ledgerService, logger))
	api.Handle("POST /balances/batch", handleGetBalances(ledgerService, logger))
	api.Handle("POST /balances/{userID}/grant", handleGrant(ledgerService, logger))
	api.Handle("POST /balances/{userID}/spend", handleSpend(ledgerService, logger))
	api.Handle("GET /balances/{userID}/transactions", handleListTransactions(ledgerService, logger))
	api.Handle("POST /transfers", handleTransfer(ledgerService, logger))

	api.Handle("POST /admin/balances/{userID}/adjust", withOperator(handleAdminAdjust(ledgerService, logger)))
	api.Handle("GET /admin/balances/{userID}/changelogs", withOperator(handleListChangeLogs(ledgerService, logger)))
	api.Handle("POST /admin/rewards", withOperator(handleAdminReward(ledgerService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type ledgerService interface {
	// Get balance, lazily creating an empty one
	GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)

	// Batch read, missing balances are not created
	GetBalances(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]models.Balance, error)

	GrantCoin(ctx context.Context, userID uuid.UUID, amount int64, transactionType string) error

	// Has to return apperrors.ErrBalanceInsufficient if balance is lower than amount
	SpendCoin(ctx context.Context, userID uuid.UUID, amount int64, transactionType string) (models.Transaction, error)

	TransferCoin(ctx context.Context, from, to uuid.UUID, amount int64, feeRate decimal.Decimal) (ledger.Transfer, error)
	DistributeReward(ctx context.Context, total int64, recipients []ledger.Recipient, transactionType string) ([]ledger.Reward, error)

	// Returns false if negative delta would overdraw the balance
	AdminAdjustBalance(ctx context.Context, userID uuid.UUID, delta int64, reason string, operator models.Operator) (bool, error)

	ListTransactions(ctx context.Context, userID uuid.UUID, types []string) ([]models.Transaction, error)
	ListChangeLogs(ctx context.Context, userID uuid.UUID) ([]models.BalanceChangeLog, error)
}

type tokenParser interface {
	Parse(token string) (models.Operator, error)
}
