package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/handlers/render"
	"github.com/nkiryanov/coinledger/internal/logger"
)

// Render ledger error with matching status code
// Unknown errors are logged and hidden behind 500
func renderLedgerError(w http.ResponseWriter, err error, l logger.Logger) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidArgument):
		render.ServiceError(w, "Invalid argument", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrBalanceOverflow):
		render.ServiceError(w, "Balance overflow", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrBalanceInsufficient):
		render.ServiceError(w, "Insufficient balance", http.StatusConflict)
	case errors.Is(err, apperrors.ErrBalanceNotFound):
		render.ServiceError(w, "Balance not found", http.StatusNotFound)
	default:
		l.Error("Ledger operation failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// Parse user id from the request path; writes 400 response if it is not a valid uuid
func pathUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := uuid.Parse(r.PathValue("userID"))
	if err != nil || userID == uuid.Nil {
		render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return userID, true
}
