package lock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options configures Redis lock acquisition.
type Options struct {
	// Expiry is how long the lock is held before auto-expiring
	Expiry time.Duration
	// Tries is the number of attempts to acquire the lock before giving up
	Tries int
	// RetryDelay is the delay between attempts
	RetryDelay time.Duration
}

// DefaultOptions suit short critical sections such as creating a few rows.
func DefaultOptions() Options {
	return Options{
		Expiry:     10 * time.Second,
		Tries:      32,
		RetryDelay: 100 * time.Millisecond,
	}
}

// Redis is a Locker shared by every process connected to the same Redis,
// using the RedLock algorithm.
type Redis struct {
	rs     *redsync.Redsync
	opts   Options
	logger *zap.Logger
}

// NewRedis creates a distributed locker on top of client.
func NewRedis(client goredislib.UniversalClient, opts Options, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger,
	}
}

// WithLock acquires key, runs fn and releases key even if fn fails.
func (r *Redis) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	mutex := r.rs.NewMutex(
		key,
		redsync.WithExpiry(r.opts.Expiry),
		redsync.WithTries(r.opts.Tries),
		redsync.WithRetryDelay(r.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	defer func() {
		if ok, err := mutex.UnlockContext(ctx); !ok || err != nil {
			r.logger.Warn("failed to release lock", zap.String("lock_key", key), zap.Bool("unlock_ok", ok), zap.Error(err))
		}
	}()

	return fn(ctx)
}

// Ensure Redis implements Locker.
var _ Locker = (*Redis)(nil)
