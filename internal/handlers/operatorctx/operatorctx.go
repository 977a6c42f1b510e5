package operatorctx

import (
	"context"

	"github.com/nkiryanov/coinledger/internal/models"
)

type ctxKey string

const operatorKey ctxKey = "operator"

// Create a new context with the operator
func New(ctx context.Context, op models.Operator) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

// Extract the operator from the context
func FromContext(ctx context.Context) (models.Operator, bool) {
	op, ok := ctx.Value(operatorKey).(models.Operator)
	return op, ok
}
