package apperrors

import (
	"errors"
)

var (
	// Caller errors, never retried
	ErrInvalidArgument = errors.New("invalid argument")

	// Optimistic lock token mismatch on save; the only retryable error
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	ErrBalanceNotFound     = errors.New("balance not found")
	ErrBalanceInsufficient = errors.New("insufficient balance")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

var (
	ErrOperatorTokenInvalid = errors.New("operator token invalid")
)
