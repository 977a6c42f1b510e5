package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/coinledger/internal/handlers/render"
	"github.com/nkiryanov/coinledger/internal/logger"
)

func handleTransfer(ledger ledgerService, l logger.Logger) http.Handler {
	type request struct {
		From    uuid.UUID       `json:"from" validate:"required"`
		To      uuid.UUID       `json:"to" validate:"required"`
		Amount  int64           `json:"amount" validate:"gt=0"`
		FeeRate decimal.Decimal `json:"fee_rate"`
	}

	type response struct {
		Debited         int64            `json:"debited"`
		Credited        int64            `json:"credited"`
		Fee             int64            `json:"fee"`
		FeeTheoretical  decimal.Decimal  `json:"fee_theoretical"`
		FeeRoundingDiff decimal.Decimal  `json:"fee_rounding_diff"`
		Out             transactionView  `json:"out"`
		In              *transactionView `json:"in,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		transfer, err := ledger.TransferCoin(r.Context(), req.From, req.To, req.Amount, req.FeeRate)
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		resp := response{
			Debited:         transfer.Debited,
			Credited:        transfer.Credited,
			Fee:             transfer.Fee.Actual,
			FeeTheoretical:  transfer.Fee.Theoretical,
			FeeRoundingDiff: transfer.Fee.RoundingDiff,
			Out:             newTransactionView(transfer.Out),
		}
		if transfer.In != nil {
			in := newTransactionView(*transfer.In)
			resp.In = &in
		}

		render.JSON(w, resp)
	})
}
