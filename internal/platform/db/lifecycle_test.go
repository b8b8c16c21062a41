package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 1 {
		if n, ok := dest[0].(*int64); ok {
			*n = 3
		}
	}
	return nil
}

type fakePool struct {
	verifyErr error
	closed    atomic.Bool
}

func (p *fakePool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (p *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (p *fakePool) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeRow{err: p.verifyErr}
}

func (p *fakePool) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}

func (p *fakePool) Close() {
	p.closed.Store(true)
}

// scriptedDialer fails the first failures dials, then hands out healthy pools.
type scriptedDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	gate     chan struct{}
}

func (d *scriptedDialer) Dial(ctx context.Context) (Pool, error) {
	if d.gate != nil {
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("dial tcp 127.0.0.1:5432: connection refused")
	}
	return &fakePool{}, nil
}

func (d *scriptedDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func TestEnsureReadyConnectsAfterTransientFailures(t *testing.T) {
	dialer := &scriptedDialer{failures: 2}
	m := NewManager(dialer, ManagerConfig{Attempts: 5, Backoff: time.Millisecond}, nil)
	require.Equal(t, StateUninitialized, m.State())

	require.NoError(t, m.EnsureReady(context.Background()))
	require.Equal(t, StateConnected, m.State())
	require.Equal(t, 3, dialer.count())

	health := m.Snapshot()
	require.True(t, health.Connected)
	require.False(t, health.Initializing)
	require.Nil(t, health.Error)

	// Connected is a no-op.
	require.NoError(t, m.EnsureReady(context.Background()))
	require.Equal(t, 3, dialer.count())
}

func TestEnsureReadyFailsAfterExhaustingAttempts(t *testing.T) {
	dialer := &scriptedDialer{failures: 100}
	m := NewManager(dialer, ManagerConfig{Attempts: 5, Backoff: time.Millisecond}, nil)

	err := m.EnsureReady(context.Background())
	require.ErrorIs(t, err, ErrConnectFailed)
	require.Equal(t, StateFailed, m.State())
	require.Equal(t, 5, dialer.count())

	health := m.Snapshot()
	require.False(t, health.Connected)
	require.NotNil(t, health.Error)
	require.Contains(t, *health.Error, "connection refused")

	// No automatic retry; a new call starts a new sequence.
	require.Equal(t, 5, dialer.count())
	dialer.mu.Lock()
	dialer.failures = 0
	dialer.mu.Unlock()
	require.NoError(t, m.EnsureReady(context.Background()))
	require.Equal(t, StateConnected, m.State())
	require.Nil(t, m.Snapshot().Error)
}

func TestEnsureReadyVerificationFailureRedials(t *testing.T) {
	pools := []*fakePool{{verifyErr: errors.New("relation \"branches\" does not exist")}, {}}
	var idx atomic.Int32
	dialer := dialerFunc(func(ctx context.Context) (Pool, error) {
		p := pools[idx.Add(1)-1]
		return p, nil
	})
	m := NewManager(dialer, ManagerConfig{Attempts: 3, Backoff: time.Millisecond}, nil)

	require.NoError(t, m.EnsureReady(context.Background()))
	require.True(t, pools[0].closed.Load())
	require.False(t, pools[1].closed.Load())
	require.Equal(t, int32(2), idx.Load())
}

func TestEnsureReadyDoesNotOverlapInitialization(t *testing.T) {
	dialer := &scriptedDialer{gate: make(chan struct{})}
	m := NewManager(dialer, ManagerConfig{Attempts: 1}, nil)

	done := make(chan error, 1)
	go func() {
		done <- m.EnsureReady(context.Background())
	}()
	require.Eventually(t, func() bool { return m.State() == StateInitializing }, time.Second, time.Millisecond)

	// A second caller returns immediately while the first is still dialing.
	require.NoError(t, m.EnsureReady(context.Background()))
	require.True(t, m.Snapshot().Initializing)

	close(dialer.gate)
	require.NoError(t, <-done)
	require.Equal(t, 1, dialer.count())
	require.Equal(t, StateConnected, m.State())
}

func TestManagerQueriesWithoutPool(t *testing.T) {
	m := NewManager(&scriptedDialer{}, DefaultManagerConfig(), nil)
	_, err := m.Exec(context.Background(), "SELECT 1")
	require.ErrorIs(t, err, ErrNotConnected)
	var n int64
	require.ErrorIs(t, m.QueryRow(context.Background(), "SELECT 1").Scan(&n), ErrNotConnected)
}

func TestMarkUnhealthyAndClose(t *testing.T) {
	m := NewManager(&scriptedDialer{}, ManagerConfig{Attempts: 1}, nil)
	require.NoError(t, m.EnsureReady(context.Background()))

	m.MarkUnhealthy(errors.New("conn reset"))
	require.Equal(t, StateFailed, m.State())
	require.Equal(t, "conn reset", *m.Snapshot().Error)

	m.Close()
	require.Equal(t, StateUninitialized, m.State())
	require.Nil(t, m.Snapshot().Error)
}

type dialerFunc func(ctx context.Context) (Pool, error)

func (f dialerFunc) Dial(ctx context.Context) (Pool, error) {
	return f(ctx)
}
