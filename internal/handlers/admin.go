package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/handlers/operatorctx"
	"github.com/nkiryanov/coinledger/internal/handlers/render"
	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/service/ledger"
)

func handleAdminAdjust(ledger ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Delta  int64  `json:"delta" validate:"ne=0"`
		Reason string `json:"reason" validate:"required,max=500"`
	}

	type response struct {
		Applied bool        `json:"applied"`
		Balance balanceView `json:"balance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, ok := operatorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		userID, ok := pathUserID(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		applied, err := ledger.AdminAdjustBalance(r.Context(), userID, req.Delta, req.Reason, op)
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		balance, err := ledger.GetBalance(r.Context(), userID)
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		render.JSON(w, response{Applied: applied, Balance: newBalanceView(balance)})
	})
}

func handleAdminReward(svc ledgerService, l logger.Logger) http.Handler {
	type recipient struct {
		UserID uuid.UUID `json:"user_id" validate:"required"`
		Weight int       `json:"weight" validate:"gt=0"`
	}

	type request struct {
		Total      int64       `json:"total" validate:"gt=0"`
		Type       string      `json:"type" validate:"required,txtype"`
		Recipients []recipient `json:"recipients" validate:"required,min=1,max=1000,dive"`
	}

	type share struct {
		UserID       uuid.UUID `json:"user_id"`
		Weight       int       `json:"weight"`
		Amount       int64     `json:"amount"`
		Theoretical  string    `json:"theoretical"`
		RoundingDiff string    `json:"rounding_diff"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, ok := operatorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		recipients := make([]ledger.Recipient, 0, len(req.Recipients))
		for _, rc := range req.Recipients {
			recipients = append(recipients, ledger.Recipient{UserID: rc.UserID, Weight: rc.Weight})
		}

		rewards, err := svc.DistributeReward(r.Context(), req.Total, recipients, req.Type)
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		l.Info("Reward distributed by operator", "operator_id", op.ID, "total", req.Total, "type", req.Type)

		shares := make([]share, 0, len(rewards))
		for _, rw := range rewards {
			shares = append(shares, share{
				UserID:       rw.UserID,
				Weight:       rw.Weight,
				Amount:       rw.Allocation.Actual,
				Theoretical:  rw.Allocation.Theoretical.String(),
				RoundingDiff: rw.Allocation.RoundingDiff.String(),
			})
		}
		render.JSON(w, shares)
	})
}

func handleListChangeLogs(ledger ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathUserID(w, r)
		if !ok {
			return
		}

		logs, err := ledger.ListChangeLogs(r.Context(), userID)
		if err != nil {
			renderLedgerError(w, err, l)
			return
		}

		views := make([]changeLogView, 0, len(logs))
		for _, log := range logs {
			views = append(views, newChangeLogView(log))
		}
		render.JSON(w, views)
	})
}
