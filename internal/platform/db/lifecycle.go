package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// State enumerates the lifecycle of the backing store connection.
type State int32

const (
	// StateUninitialized means no connection has been attempted yet.
	StateUninitialized State = iota
	// StateInitializing means a connection sequence is running.
	StateInitializing
	// StateConnected means the last verification read succeeded.
	StateConnected
	// StateFailed means the last connection sequence exhausted its attempts.
	StateFailed
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected is returned by query methods when no pool is open.
	ErrNotConnected = errors.New("platform/db: not connected")
	// ErrConnectFailed wraps the last error of an exhausted connection sequence.
	ErrConnectFailed = errors.New("platform/db: connection failed")
)

const verifyQuery = `SELECT COUNT(*) FROM branches`

// ManagerConfig bounds the connection sequence.
type ManagerConfig struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultManagerConfig returns 5 attempts spaced 2 seconds apart.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{Attempts: 5, Backoff: 2 * time.Second}
}

// Health is the read-only connection snapshot exposed to liveness checks.
type Health struct {
	Connected    bool    `json:"connected"`
	Initializing bool    `json:"initializing"`
	Error        *string `json:"error"`
}

// Manager owns the process-wide store connection and its state machine.
// State reads are lock-free; only one connection sequence runs at a time.
type Manager struct {
	dialer Dialer
	cfg    ManagerConfig
	logger *slog.Logger

	state  atomic.Int32
	reason atomic.Pointer[string]

	mu   sync.RWMutex
	pool Pool
}

// NewManager constructs a Manager in the Uninitialized state.
func NewManager(dialer Dialer, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultManagerConfig().Attempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{dialer: dialer, cfg: cfg, logger: logger}
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Snapshot returns the health view of the connection.
func (m *Manager) Snapshot() Health {
	state := m.State()
	return Health{
		Connected:    state == StateConnected,
		Initializing: state == StateInitializing,
		Error:        m.reason.Load(),
	}
}

// EnsureReady establishes connectivity unless the store is already connected
// or another caller is initializing it, in which case it returns immediately.
func (m *Manager) EnsureReady(ctx context.Context) error {
	current := m.state.Load()
	if State(current) == StateConnected || State(current) == StateInitializing {
		return nil
	}
	if !m.state.CompareAndSwap(current, int32(StateInitializing)) {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= m.cfg.Attempts; attempt++ {
		err := m.connect(ctx)
		if err == nil {
			m.reason.Store(nil)
			m.state.Store(int32(StateConnected))
			m.logger.Info("store connected", slog.Int("attempt", attempt))
			return nil
		}
		lastErr = err
		m.logger.Warn("store connection attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", m.cfg.Attempts),
			slog.Any("error", err))

		if attempt == m.cfg.Attempts {
			break
		}
		if err := sleep(ctx, m.cfg.Backoff); err != nil {
			lastErr = err
			break
		}
	}

	msg := lastErr.Error()
	m.reason.Store(&msg)
	m.state.Store(int32(StateFailed))
	m.logger.Error("store unavailable", slog.String("reason", msg))
	return fmt.Errorf("%w: %w", ErrConnectFailed, lastErr)
}

// MarkUnhealthy moves a connected manager to Failed so the next executor
// call re-runs the connection sequence.
func (m *Manager) MarkUnhealthy(err error) {
	if err == nil {
		return
	}
	if m.state.CompareAndSwap(int32(StateConnected), int32(StateFailed)) {
		msg := err.Error()
		m.reason.Store(&msg)
		m.logger.Warn("store marked unhealthy", slog.Any("error", err))
	}
}

// Close releases the pool and resets the state machine.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.pool != nil {
		m.pool.Close()
		m.pool = nil
	}
	m.mu.Unlock()
	m.reason.Store(nil)
	m.state.Store(int32(StateUninitialized))
}

func (m *Manager) connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pool == nil {
		pool, err := m.dialer.Dial(ctx)
		if err != nil {
			return err
		}
		m.pool = pool
	}

	var count int64
	if err := m.pool.QueryRow(ctx, verifyQuery).Scan(&count); err != nil {
		m.pool.Close()
		m.pool = nil
		return fmt.Errorf("platform/db: verify: %w", err)
	}
	return nil
}

func (m *Manager) current() (Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pool == nil {
		return nil, ErrNotConnected
	}
	return m.pool, nil
}

// Exec delegates to the current pool.
func (m *Manager) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	pool, err := m.current()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return pool.Exec(ctx, sql, args...)
}

// Query delegates to the current pool.
func (m *Manager) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	pool, err := m.current()
	if err != nil {
		return nil, err
	}
	return pool.Query(ctx, sql, args...)
}

// QueryRow delegates to the current pool.
func (m *Manager) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	pool, err := m.current()
	if err != nil {
		return errRow{err: err}
	}
	return pool.QueryRow(ctx, sql, args...)
}

// CopyFrom delegates to the current pool.
func (m *Manager) CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	pool, err := m.current()
	if err != nil {
		return 0, err
	}
	return pool.CopyFrom(ctx, table, columns, src)
}

// Begin delegates to the current pool.
func (m *Manager) Begin(ctx context.Context) (pgx.Tx, error) {
	pool, err := m.current()
	if err != nil {
		return nil, err
	}
	return pool.Begin(ctx)
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error {
	return r.err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
