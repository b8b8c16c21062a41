package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type stubReadiness struct {
	state     State
	ensureErr error
	ensured   int
	unhealthy []error
}

func (s *stubReadiness) State() State { return s.state }

func (s *stubReadiness) EnsureReady(context.Context) error {
	s.ensured++
	if s.ensureErr == nil {
		s.state = StateConnected
	}
	return s.ensureErr
}

func (s *stubReadiness) MarkUnhealthy(err error) {
	s.unhealthy = append(s.unhealthy, err)
	s.state = StateFailed
}

func fastExecutor(r Readiness, reg prometheus.Registerer) *Executor {
	return NewExecutor(r, ExecutorConfig{MaxAttempts: 3, Backoff: time.Millisecond}, nil, reg)
}

func TestRunRetriesUntilSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	exec := fastExecutor(&stubReadiness{state: StateConnected}, reg)

	calls := 0
	err := exec.Run(context.Background(), "insert", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, 2.0, testutil.ToFloat64(exec.retries.WithLabelValues("insert")))
}

func TestRunPropagatesLastError(t *testing.T) {
	exec := fastExecutor(&stubReadiness{state: StateConnected}, nil)

	calls := 0
	last := errors.New("attempt 3")
	err := exec.Run(context.Background(), "find", func(context.Context) error {
		calls++
		if calls == 3 {
			return last
		}
		return errors.New("earlier")
	})
	require.ErrorIs(t, err, last)
	require.Equal(t, 3, calls)
}

func TestRunEnsuresReadinessWhenNotHealthy(t *testing.T) {
	readiness := &stubReadiness{state: StateFailed}
	exec := fastExecutor(readiness, nil)

	require.NoError(t, exec.Run(context.Background(), "count", func(context.Context) error { return nil }))
	require.Equal(t, 1, readiness.ensured)

	// Initializing is trusted optimistically.
	readiness = &stubReadiness{state: StateInitializing}
	exec = fastExecutor(readiness, nil)
	require.NoError(t, exec.Run(context.Background(), "count", func(context.Context) error { return nil }))
	require.Zero(t, readiness.ensured)
}

func TestRunStillAttemptsWhenEnsureReadyFails(t *testing.T) {
	readiness := &stubReadiness{state: StateFailed, ensureErr: ErrConnectFailed}
	exec := fastExecutor(readiness, nil)

	calls := 0
	err := exec.Run(context.Background(), "count", func(context.Context) error {
		calls++
		return ErrNotConnected
	})
	require.ErrorIs(t, err, ErrNotConnected)
	require.Equal(t, 3, calls)
	require.Equal(t, 1, readiness.ensured)
}

func TestRunChecksReadinessOncePerCall(t *testing.T) {
	readiness := &stubReadiness{state: StateConnected}
	exec := fastExecutor(readiness, nil)

	calls := 0
	err := exec.Run(context.Background(), "insert", func(context.Context) error {
		calls++
		return ErrNotConnected
	})
	require.ErrorIs(t, err, ErrNotConnected)
	require.Equal(t, 3, calls)
	require.Len(t, readiness.unhealthy, 3)
	require.Zero(t, readiness.ensured)

	require.NoError(t, exec.Run(context.Background(), "insert", func(context.Context) error { return nil }))
	require.Equal(t, 1, readiness.ensured)
}

func TestRunDoesNotRetryPermanentErrors(t *testing.T) {
	exec := fastExecutor(&stubReadiness{state: StateConnected}, nil)

	calls := 0
	pgErr := &pgconn.PgError{Code: CodeNumericRange}
	err := exec.Run(context.Background(), "insert", func(context.Context) error {
		calls++
		return Permanent(pgErr)
	})
	require.Equal(t, 1, calls)
	require.True(t, IsPermanent(err))
	require.True(t, IsRowRejection(err))
	require.False(t, IsUniqueViolation(err))
}

func TestRunMarksConnectionErrorsUnhealthy(t *testing.T) {
	readiness := &stubReadiness{state: StateConnected}
	exec := NewExecutor(readiness, ExecutorConfig{MaxAttempts: 1}, nil, nil)

	err := exec.Run(context.Background(), "insert", func(context.Context) error {
		return ErrNotConnected
	})
	require.Error(t, err)
	require.Len(t, readiness.unhealthy, 1)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	exec := NewExecutor(&stubReadiness{state: StateConnected}, ExecutorConfig{MaxAttempts: 3, Backoff: time.Hour}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.Run(ctx, "insert", func(context.Context) error { return errors.New("boom") })
	require.ErrorIs(t, err, context.Canceled)
}

func TestDoReturnsResult(t *testing.T) {
	exec := fastExecutor(&stubReadiness{state: StateConnected}, nil)
	n, err := Do(context.Background(), exec, "count", func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, n)
}
