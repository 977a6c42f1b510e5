package middleware

import (
	"net/http"
	"strings"

	"github.com/nkiryanov/coinledger/internal/handlers/operatorctx"
	"github.com/nkiryanov/coinledger/internal/handlers/render"
	"github.com/nkiryanov/coinledger/internal/models"
)

const bearerPrefix = "Bearer "

type tokenParser interface {
	Parse(token string) (models.Operator, error)
}

// OperatorAuth lets through requests with a valid operator bearer token
// and puts the operator into request context
func OperatorAuth(p tokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, bearerPrefix)
			if !ok || token == "" {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			op, err := p.Parse(token)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := operatorctx.New(r.Context(), op)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
