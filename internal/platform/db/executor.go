package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
)

// Readiness is the part of Manager the executor consults.
type Readiness interface {
	State() State
	EnsureReady(ctx context.Context) error
	MarkUnhealthy(err error)
}

// ExecutorConfig bounds retries of a single store operation.
type ExecutorConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultExecutorConfig returns 3 attempts spaced 1 second apart.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{MaxAttempts: 3, Backoff: time.Second}
}

// Executor runs store operations with bounded retry, reconnecting through
// the Manager when the store is not known to be healthy.
type Executor struct {
	readiness Readiness
	cfg       ExecutorConfig
	logger    *slog.Logger
	retries   *prometheus.CounterVec
}

// NewExecutor builds an Executor. A nil registerer disables the retry counter.
func NewExecutor(readiness Readiness, cfg ExecutorConfig, logger *slog.Logger, registerer prometheus.Registerer) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultExecutorConfig().MaxAttempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	exec := &Executor{readiness: readiness, cfg: cfg, logger: logger}
	if registerer != nil {
		exec.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_db_operation_retries_total",
			Help: "Store operations retried after a failed attempt, by operation name.",
		}, []string{"op"})
		registerer.MustRegister(exec.retries)
	}
	return exec
}

// Run executes op with the configured number of attempts.
func (e *Executor) Run(ctx context.Context, name string, op func(context.Context) error) error {
	return e.RunN(ctx, name, e.cfg.MaxAttempts, op)
}

// RunN executes op with up to maxAttempts attempts and returns the last error
// once they are exhausted. Errors wrapped with Permanent are not retried.
// Readiness is checked once per call; a connection lost mid-call is left to
// the next call.
func (e *Executor) RunN(ctx context.Context, name string, maxAttempts int, op func(context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	e.ensureReady(ctx)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return fmt.Errorf("%s: %w", name, err)
		}
		if isConnectionError(err) {
			e.readiness.MarkUnhealthy(err)
		}
		if attempt == maxAttempts {
			break
		}

		e.logger.Debug("store operation failed, retrying",
			slog.String("op", name),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
		if e.retries != nil {
			e.retries.WithLabelValues(name).Inc()
		}
		if err := sleep(ctx, e.cfg.Backoff); err != nil {
			return fmt.Errorf("%s: retry cancelled: %w", name, err)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, maxAttempts, lastErr)
}

func (e *Executor) ensureReady(ctx context.Context) {
	state := e.readiness.State()
	if state == StateConnected || state == StateInitializing {
		return
	}
	if err := e.readiness.EnsureReady(ctx); err != nil {
		e.logger.Warn("store not ready, attempting operation anyway", slog.Any("error", err))
	}
}

// Do runs op through exec and returns its result.
func Do[T any](ctx context.Context, exec *Executor, name string, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := exec.Run(ctx, name, func(ctx context.Context) error {
		value, err := op(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}

// PermanentError marks an error no retry can fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the executor returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// PostgreSQL error codes that identify a rejected row rather than a store fault.
const (
	CodeUniqueViolation  = "23505"
	CodeNotNullViolation = "23502"
	CodeNumericRange     = "22003"
	CodeStringTooLong    = "22001"
)

// IsRowRejection reports whether err is a PostgreSQL error caused by the
// row's own values.
func IsRowRejection(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case CodeUniqueViolation, CodeNotNullViolation, CodeNumericRange, CodeStringTooLong:
		return true
	}
	return false
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == CodeUniqueViolation
}

func isConnectionError(err error) bool {
	if errors.Is(err, ErrNotConnected) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}
