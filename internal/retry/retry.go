// Package retry re-runs optimistic-locked operations that lost a version race.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nkiryanov/coinledger/internal/apperrors"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 100 * time.Millisecond
)

type Policy struct {
	// Retries after the first attempt
	MaxRetries int

	// Delay before the first retry, doubled for every next one: 100ms, 200ms, 400ms...
	BaseDelay time.Duration

	// Called before sleeping; attempt is the number of the failed attempt starting from 1
	OnRetry func(err error, attempt int, delay time.Duration)
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
	}
}

// IsConflict reports whether the error is worth another attempt
func IsConflict(err error) bool {
	return errors.Is(err, apperrors.ErrConcurrencyConflict)
}

// Execute runs action and repeats it on concurrency conflicts with exponential backoff.
// Other errors are returned immediately. After MaxRetries the last conflict is returned.
// Cancelling ctx stops waiting and returns ctx.Err().
func Execute[T any](ctx context.Context, p Policy, action func(context.Context) (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		res, err := action(ctx)
		if err != nil && !IsConflict(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, delay time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(err, attempt, delay)
		}
	}

	return backoff.RetryNotifyWithData(operation, p.backoff(ctx), notify)
}

// Do is Execute for actions without result
func Do(ctx context.Context, p Policy, action func(context.Context) error) error {
	_, err := Execute(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, action(ctx)
	})
	return err
}

func (p Policy) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0 // bounded by retries count and ctx only

	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}
