package interest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
)

// Pages balances in user id order and sends them to workers
type producer struct {
	batchSize int
	repo      repository.BalanceRepo
	logger    logger.Logger
}

// Produce returns when every balance is sent, on storage error or on context cancellation
// Caller owns the out channel
func (p *producer) produce(ctx context.Context, out chan<- models.Balance) error {
	p.logger.Debug("Starting producer", "batch_size", p.batchSize)
	after := uuid.Nil

	for {
		ids, err := p.repo.ListUserIDs(ctx, after, p.batchSize)
		if err != nil {
			return fmt.Errorf("can't list users. Err: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		after = ids[len(ids)-1]

		balances, err := p.repo.ListBalances(ctx, ids)
		if err != nil {
			return fmt.Errorf("can't list balances. Err: %w", err)
		}

		for _, b := range balances {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context while sending balances")
				return ctx.Err()
			case out <- b:
			}
		}

		if len(ids) < p.batchSize {
			return nil
		}
	}
}
