package interest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/models"
)

// Credits interest to balances received from the producer with a pool of workers
type consumer struct {
	countWorkers int
	accrue       func(ctx context.Context, b models.Balance) (int64, error)
	logger       logger.Logger

	users    atomic.Int64
	credited atomic.Int64
	granted  atomic.Int64
}

func (c *consumer) consume(ctx context.Context, in <-chan models.Balance) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range c.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, in)
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return idleStopped
}

func (c *consumer) worker(ctx context.Context, in <-chan models.Balance) {
	for {
		select {
		case <-ctx.Done():
			return

		case b, ok := <-in:
			if !ok {
				return
			}

			c.users.Add(1)
			granted, err := c.accrue(ctx, b)
			if err != nil {
				c.logger.Error("Interest credit failed", "user_id", b.UserID, "error", err)
				continue
			}
			if granted > 0 {
				c.credited.Add(1)
				c.granted.Add(granted)
			}
		}
	}
}

func (c *consumer) report() Report {
	return Report{
		Users:    int(c.users.Load()),
		Credited: int(c.credited.Load()),
		Granted:  c.granted.Load(),
	}
}
