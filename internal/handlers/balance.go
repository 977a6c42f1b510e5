package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/handlers/render"
	"github.com/nkiryanov/coinledger/internal/logger"
)

const maxBatchSize = 100

func handleGetBalance(ledger ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathUserID(w, r)
		if !ok {
			return
		}

		balance, err := ledger.GetBalance(r.Context(), userID)
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		render.JSON(w, newBalanceView(balance))
	})
}

func handleGetBalances(ledger ledgerService, l logger.Logger) http.Handler {
	type request struct {
		UserIDs []uuid.UUID `json:"user_ids" validate:"required,min=1,max=100"`
	}

	type response struct {
		Balances map[uuid.UUID]balanceView `json:"balances"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		balances, err := ledger.GetBalances(r.Context(), req.UserIDs)
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		resp := response{Balances: make(map[uuid.UUID]balanceView, len(balances))}
		for userID, b := range balances {
			resp.Balances[userID] = newBalanceView(b)
		}
		render.JSON(w, resp)
	})
}

func handleGrant(ledger ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Amount int64  `json:"amount" validate:"gt=0"`
		Type   string `json:"type" validate:"required,txtype"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathUserID(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := ledger.GrantCoin(r.Context(), userID, req.Amount, req.Type); err != nil {
			renderLedgerError(w, err, l)
			return
		}

		balance, err := ledger.GetBalance(r.Context(), userID)
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		render.JSON(w, newBalanceView(balance))
	})
}

func handleSpend(ledger ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Amount int64  `json:"amount" validate:"gt=0"`
		Type   string `json:"type" validate:"required,txtype"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathUserID(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tx, err := ledger.SpendCoin(r.Context(), userID, req.Amount, req.Type)
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		render.JSON(w, newTransactionView(tx))
	})
}

// Transactions can be filtered by type: ?type=grant&type=spend or ?type=grant,spend
func handleListTransactions(ledger ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathUserID(w, r)
		if !ok {
			return
		}

		var types []string
		for _, value := range r.URL.Query()["type"] {
			for _, t := range strings.Split(value, ",") {
				if t = strings.TrimSpace(t); t != "" {
					types = append(types, t)
				}
			}
		}

		transactions, err := ledger.ListTransactions(r.Context(), userID, types)
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		views := make([]transactionView, 0, len(transactions))
		for _, t := range transactions {
			views = append(views, newTransactionView(t))
		}
		render.JSON(w, views)
	})
}
