// Package interest periodically credits interest on balances.
//
// Each run computes balance * rate for every user. Balances are paged by a producer and
// credited by a pool of workers. The fractional part is carried over between runs
// on the balance itself, so a user is credited as soon as the accrued interest adds up
// to a whole atomic unit and nothing pending is lost on restart.
package interest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/coinledger/internal/coin"
	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
)

const (
	pageSize            = 100
	defaultCountWorkers = 10
)

type Accruer interface {
	// Add interest to the user's pending fraction and return the whole units credited
	AccrueInterest(ctx context.Context, userID uuid.UUID, interest decimal.Decimal) (int64, error)
}

type Report struct {
	Users    int   // balances visited
	Credited int   // users who got a grant this run
	Granted  int64 // atomic units granted in total
}

type Service struct {
	storage repository.Storage
	accruer Accruer
	rate    decimal.Decimal
	logger  logger.Logger

	countWorkers int
	runMu        sync.Mutex // one run at a time

	cron *cron.Cron
}

func NewService(storage repository.Storage, accruer Accruer, rate decimal.Decimal, l logger.Logger) (*Service, error) {
	if _, err := coin.CalculateByRate(0, rate); err != nil {
		return nil, fmt.Errorf("invalid interest rate. Err: %w", err)
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		storage:      storage,
		accruer:      accruer,
		rate:         rate,
		countWorkers: defaultCountWorkers,
		logger:       l.With("component", "interest"),
		cron:         cron.New(),
	}, nil
}

// Accrue runs one accrual over all balances
// A failed credit is logged and skipped; the user's pending fraction is left as it was before the run
func (s *Service) Accrue(ctx context.Context) (Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	balances := make(chan models.Balance)
	c := &consumer{countWorkers: s.countWorkers, accrue: s.accrueOne, logger: s.logger}
	consumed := c.consume(ctx, balances)

	p := &producer{batchSize: pageSize, repo: s.storage.Balance(), logger: s.logger}
	err := p.produce(ctx, balances)
	close(balances)
	<-consumed

	report := c.report()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return report, err
	}

	s.logger.Info("Interest accrued", "users", report.Users, "credited", report.Credited, "granted", report.Granted)
	return report, nil
}

func (s *Service) accrueOne(ctx context.Context, b models.Balance) (int64, error) {
	interest, err := coin.CalculateByRate(b.Balance, s.rate)
	if err != nil {
		return 0, err
	}

	return s.accruer.AccrueInterest(ctx, b.UserID, interest.Theoretical)
}

// Start schedules Accrue with a cron spec (e.g. "@daily" or "0 0 * * *")
func (s *Service) Start(ctx context.Context, schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Accrue(ctx); err != nil {
			s.logger.Error("Interest accrual failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid interest schedule %q. Err: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info("Interest accrual scheduled", "schedule", schedule, "rate", s.rate.String())
	return nil
}

// Stop the scheduler and wait for a running accrual to finish
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Interest accrual stopped")
}
