package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy is returned when the lock is still held after the wait budget.
var ErrLockBusy = errors.New("platform/cache: lock busy")

// LockConfig tunes a Lock.
type LockConfig struct {
	Key string
	// TTL bounds how long a crashed holder can keep the Redis lock. A live
	// holder refreshes it every TTL/3.
	TTL time.Duration
	// Wait bounds how long Acquire polls for a held lock.
	Wait time.Duration
	// Poll is the linear retry interval while waiting.
	Poll time.Duration
}

// DefaultLockConfig returns the settings of the global restore lock.
func DefaultLockConfig() LockConfig {
	return LockConfig{
		Key:  "lock:inventory:restore",
		TTL:  10 * time.Minute,
		Wait: 2 * time.Minute,
		Poll: 250 * time.Millisecond,
	}
}

// Lock is a global mutex held in Redis and backed by an in-process
// semaphore. Callers in the same process queue on the semaphore; callers in
// other processes meet on the Redis key. When Redis is unreachable the lock
// degrades to the in-process semaphore alone.
type Lock struct {
	locker *redislock.Client
	cfg    LockConfig
	local  chan struct{}
	logger *slog.Logger
}

// NewLock builds a Lock. A nil client yields an in-process lock.
func NewLock(client redis.UniversalClient, cfg LockConfig, logger *slog.Logger) *Lock {
	def := DefaultLockConfig()
	if cfg.Key == "" {
		cfg.Key = def.Key
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.Poll <= 0 {
		cfg.Poll = def.Poll
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Lock{cfg: cfg, local: make(chan struct{}, 1), logger: logger}
	if client != nil {
		l.locker = redislock.New(client)
	}
	return l
}

// Acquire blocks until the lock is held, the wait budget is spent or ctx
// ends. The returned release func may be called more than once.
func (l *Lock) Acquire(ctx context.Context) (func(), error) {
	started := time.Now()
	if err := l.acquireLocal(ctx); err != nil {
		return nil, err
	}
	if l.locker == nil {
		return l.localRelease(), nil
	}

	opts := &redislock.Options{RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.cfg.Poll), l.retries(time.Since(started)))}
	lock, err := l.locker.Obtain(ctx, l.cfg.Key, l.cfg.TTL, opts)
	switch {
	case errors.Is(err, redislock.ErrNotObtained):
		l.releaseLocal()
		return nil, fmt.Errorf("%w: %s", ErrLockBusy, l.cfg.Key)
	case err != nil && ctx.Err() != nil:
		l.releaseLocal()
		return nil, ctx.Err()
	case err != nil:
		l.logger.Warn("redis lock unavailable, holding in-process lock only",
			slog.String("key", l.cfg.Key),
			slog.Any("error", err))
		return l.localRelease(), nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(lock, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.logger.Warn("release redis lock", slog.String("key", l.cfg.Key), slog.Any("error", err))
			}
			l.releaseLocal()
		})
	}, nil
}

// keepAlive extends the Redis lock until stop is closed. A lost lock is
// logged; the holder keeps the in-process lock either way.
func (l *Lock) keepAlive(lock *redislock.Lock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.cfg.TTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.cfg.TTL/3)
			err := lock.Refresh(ctx, l.cfg.TTL, nil)
			cancel()
			if errors.Is(err, redislock.ErrNotObtained) {
				l.logger.Warn("redis lock lost while held", slog.String("key", l.cfg.Key))
				return
			}
			if err != nil {
				l.logger.Warn("refresh redis lock", slog.String("key", l.cfg.Key), slog.Any("error", err))
			}
		}
	}
}

func (l *Lock) acquireLocal(ctx context.Context) error {
	var timeout <-chan time.Time
	if l.cfg.Wait > 0 {
		timer := time.NewTimer(l.cfg.Wait)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case l.local <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("%w: %s", ErrLockBusy, l.cfg.Key)
	}
}

func (l *Lock) localRelease() func() {
	var once sync.Once
	return func() { once.Do(l.releaseLocal) }
}

func (l *Lock) releaseLocal() {
	<-l.local
}

func (l *Lock) retries(spent time.Duration) int {
	remaining := l.cfg.Wait - spent
	if remaining <= 0 {
		return 0
	}
	return int(remaining / l.cfg.Poll)
}
