package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/retry"
)

const (
	defaultListenAddr       = "localhost:8000"
	defaultLoggingLevel     = logger.LevelInfo
	defaultEnvironment      = logger.EnvProduction
	defaultInterestRate     = "0"
	defaultInterestSchedule = "@daily"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	// If empty balances are kept in memory and lost on restart
	DatabaseDSN string

	// Secret key
	// Used to sign and verify operator tokens
	SecretKey string

	// Environment
	Environment string

	// Optimistic lock retries: how many times and how long to wait before the first retry
	RetryMax       int
	RetryBaseDelay time.Duration

	// Interest rate per accrual run, "0" disables accrual
	InterestRate string

	// Cron spec of the accrual job
	InterestSchedule string
}

func NewConfig() *Config {
	policy := retry.DefaultPolicy()

	return &Config{
		LogLevel:         defaultLoggingLevel,
		ListenAddr:       defaultListenAddr,
		Environment:      defaultEnvironment,
		RetryMax:         policy.MaxRetries,
		RetryBaseDelay:   policy.BaseDelay,
		InterestRate:     defaultInterestRate,
		InterestSchedule: defaultInterestSchedule,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}

	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			v, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = v
			return nil
		}
	}

	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			v, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = v
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":       setString(&c.ListenAddr),
		"DATABASE_URI":      setString(&c.DatabaseDSN),
		"SECRET_KEY":        setString(&c.SecretKey),
		"LOG_LEVEL":         setString(&c.LogLevel),
		"ENVIRONMENT":       setString(&c.Environment),
		"RETRY_MAX":         setInt(&c.RetryMax),
		"RETRY_BASE_DELAY":  setDuration(&c.RetryBaseDelay),
		"INTEREST_RATE":     setString(&c.InterestRate),
		"INTEREST_SCHEDULE": setString(&c.InterestSchedule),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s. Err: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("coinledger", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string, in-memory storage if empty")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.IntVar(&c.RetryMax, "retry-max", c.RetryMax, "Retries on balance version conflict")
	fs.DurationVar(&c.RetryBaseDelay, "retry-base-delay", c.RetryBaseDelay, "Delay before the first retry, doubled for every next one")
	fs.StringVar(&c.InterestRate, "interest-rate", c.InterestRate, "Interest rate per accrual run, 0 disables accrual")
	fs.StringVar(&c.InterestSchedule, "interest-schedule", c.InterestSchedule, "Cron spec of interest accrual")

	return fs.Parse(args)
}

// Check options that can't be checked while parsing
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("secret key must be set")
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("retry max must not be negative, got %d", c.RetryMax)
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("retry base delay must not be negative, got %s", c.RetryBaseDelay)
	}

	rate, err := c.Rate()
	if err != nil {
		return err
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("interest rate must be within [0, 1], got %s", rate)
	}

	if _, err := cron.ParseStandard(c.InterestSchedule); err != nil {
		return fmt.Errorf("invalid interest schedule %q. Err: %w", c.InterestSchedule, err)
	}

	return nil
}

func (c *Config) Rate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.InterestRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid interest rate %q. Err: %w", c.InterestRate, err)
	}
	return rate, nil
}

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: c.RetryMax,
		BaseDelay:  c.RetryBaseDelay,
	}
}
