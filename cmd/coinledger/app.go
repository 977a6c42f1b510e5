package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/coinledger/internal/db"
	"github.com/nkiryanov/coinledger/internal/handlers"
	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/repository"
	"github.com/nkiryanov/coinledger/internal/repository/memory"
	"github.com/nkiryanov/coinledger/internal/repository/postgres"
	"github.com/nkiryanov/coinledger/internal/service/interest"
	"github.com/nkiryanov/coinledger/internal/service/ledger"
	"github.com/nkiryanov/coinledger/internal/service/operator"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger           logger.Logger
	interest         *interest.Service // nil if accrual disabled
	interestSchedule string
	closers          []func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{
		ListenAddr:       c.ListenAddr,
		logger:           l,
		interestSchedule: c.InterestSchedule,
	}

	// Initialize storage: postgres if configured, memory otherwise
	var storage repository.Storage
	if c.DatabaseDSN != "" {
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		app.closers = append(app.closers, pool.Close)
		storage = postgres.NewStorage(pool)
	} else {
		l.Warn("Database is not configured, balances are kept in memory")
		storage = memory.NewStorage(memory.New())
	}

	// Initialize services
	ledgerService := ledger.NewService(storage, c.RetryPolicy(), l)

	tokens, err := operator.New(operator.Config{SecretKey: c.SecretKey})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating operator token manager. Err: %w", err)
	}

	rate, err := c.Rate()
	if err != nil {
		app.Close()
		return nil, err
	}
	if rate.IsPositive() {
		app.interest, err = interest.NewService(storage, ledgerService, rate, l)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("error while creating interest service. Err: %w", err)
		}
	}

	app.Handler = handlers.NewRouter(ledgerService, tokens, l)

	return app, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	if s.interest != nil {
		if err := s.interest.Start(ctx, s.interestSchedule); err != nil {
			return err
		}
		defer s.interest.Stop()
	}

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}

// Release resources acquired by NewServerApp
func (s *ServerApp) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
