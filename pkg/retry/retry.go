package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pagegrab/pkg/config"
	errs "pagegrab/pkg/errors"
	"pagegrab/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// ErrExhausted is wrapped into the error returned when a bound is reached
var ErrExhausted = errors.New("retry budget exhausted")

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (0 means unlimited)
	MaxAttempts int
	// MaxElapsed stops retrying once this much time has passed (0 means unlimited)
	MaxElapsed time.Duration
	// Backoff strategy to use
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry wait, for every retry
	OnRetry func(attempt int, err error, delay time.Duration)
	// VerboseAttempts is how many retries are logged at WARN before the
	// rest are demoted to DEBUG
	VerboseAttempts int
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration matching the download defaults:
// unlimited attempts with a constant ten second pause.
func DefaultConfig() *Config {
	return FromConfig(config.DefaultConfig().Download.Retry, logger.GetLogger())
}

// FromConfig builds a retry Config from the file/env/flag settings
func FromConfig(rc config.RetryConfig, log logger.Logger) *Config {
	return &Config{
		MaxAttempts:     rc.MaxAttempts,
		MaxElapsed:      rc.MaxElapsed,
		Backoff:         NewBackoff(rc.Backoff, rc.Delay, rc.MaxDelay),
		RetryIf:         DefaultRetryIf,
		VerboseAttempts: rc.VerboseAttempts,
		Logger:          log,
	}
}

// DefaultRetryIf retries only per-asset transport and status failures
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errs.IsRetryable(err)
}

// Do executes op until it succeeds, returns a non-retryable error, a bound
// is reached or ctx is cancelled.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = &ConstantBackoff{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	start := time.Now()
	attempt := 0

	for {
		attempt++

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		if !retryIf(err) {
			return err
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			log.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt,
				"last_error": err.Error(),
			})
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
		}

		delay := backoff.NextDelay(attempt)

		if cfg.MaxElapsed > 0 && time.Since(start)+delay > cfg.MaxElapsed {
			log.ErrorWithFields("retry time budget exceeded", map[string]interface{}{
				"attempts":   attempt,
				"elapsed":    time.Since(start),
				"last_error": err.Error(),
			})
			return fmt.Errorf("%w after %s: %w", ErrExhausted, time.Since(start).Round(time.Millisecond), err)
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		logRetry(log, attempt, cfg.VerboseAttempts, err, delay)

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// logRetry logs the first verbose retries at WARN, announces suppression once,
// then drops to DEBUG so an unbounded loop does not flood the console.
func logRetry(log logger.Logger, retryNum, verbose int, err error, delay time.Duration) {
	if verbose < 0 {
		verbose = 0
	}
	fields := map[string]interface{}{
		"attempt":  retryNum,
		"error":    err.Error(),
		"delay_ms": delay.Milliseconds(),
	}
	if code := errs.StatusCode(err); code != 0 {
		fields["status_code"] = code
	}

	switch {
	case retryNum <= verbose:
		log.WarnWithFields("retrying operation", fields)
	case retryNum == verbose+1:
		log.WarnWithFields("retrying operation, further retry attempts suppressed", fields)
	default:
		log.DebugWithFields("retrying operation", fields)
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	}, cfg)

	return result, err
}

// Retrier provides a reusable retry mechanism
type Retrier struct {
	config *Config
}

// NewRetrier creates a new retrier with the given configuration
func NewRetrier(cfg *Config) *Retrier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Retrier{config: cfg}
}

// Do executes an operation with retry logic
func (r *Retrier) Do(ctx context.Context, op Operation) error {
	return Do(ctx, op, r.config)
}

// WithOnRetry returns a retrier that also calls fn before each retry
func (r *Retrier) WithOnRetry(fn func(attempt int, err error, delay time.Duration)) *Retrier {
	newConfig := *r.config
	prev := r.config.OnRetry
	newConfig.OnRetry = func(attempt int, err error, delay time.Duration) {
		if prev != nil {
			prev(attempt, err, delay)
		}
		fn(attempt, err, delay)
	}
	return &Retrier{config: &newConfig}
}

// WithLogger returns a retrier that logs through l
func (r *Retrier) WithLogger(l logger.Logger) *Retrier {
	newConfig := *r.config
	newConfig.Logger = l
	return &Retrier{config: &newConfig}
}
