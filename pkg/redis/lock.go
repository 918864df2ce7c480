package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another holder is never released by mistake.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a distributed mutex keyed by string, built on SET NX PX.
// Locks expire after the configured TTL if the holder dies.
type Locker struct {
	client  redis.UniversalClient
	ttl     time.Duration
	backoff time.Duration
	prefix  string
	logger  *slog.Logger
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithLockTTL sets the lock expiry.
func WithLockTTL(ttl time.Duration) LockerOption {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLockRetryBackoff sets the pause between acquisition attempts.
func WithLockRetryBackoff(d time.Duration) LockerOption {
	return func(l *Locker) {
		if d > 0 {
			l.backoff = d
		}
	}
}

// WithLockKeyPrefix sets the namespace prepended to every key.
func WithLockKeyPrefix(prefix string) LockerOption {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

// WithLockLogger sets the logger used to report failed releases.
func WithLockLogger(log *slog.Logger) LockerOption {
	return func(l *Locker) {
		if log != nil {
			l.logger = log
		}
	}
}

// NewLocker creates a Locker. Options override the defaults: 30s TTL,
// 25ms backoff and the "lock:" prefix.
func NewLocker(client redis.UniversalClient, opts ...LockerOption) *Locker {
	l := &Locker{
		client:  client,
		ttl:     30 * time.Second,
		backoff: 25 * time.Millisecond,
		prefix:  "lock:",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewLockerFromConfig creates a Locker using the Lock* fields of cfg.
func NewLockerFromConfig(client redis.UniversalClient, cfg Config, opts ...LockerOption) *Locker {
	base := []LockerOption{
		WithLockTTL(cfg.LockTTL),
		WithLockRetryBackoff(cfg.LockRetryBackoff),
	}
	if cfg.LockKeyPrefix != "" {
		base = append(base, WithLockKeyPrefix(cfg.LockKeyPrefix))
	}
	return NewLocker(client, append(base, opts...)...)
}

// Acquire blocks until the lock for key is held or ctx is done.
// The returned release func is idempotent.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		release, ok, err := l.TryAcquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}

		t := time.NewTimer(l.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Join(ErrLockNotAcquired, ctx.Err())
		case <-t.C:
		}
	}
}

// TryAcquire makes a single attempt. It reports false when another holder owns the lock.
func (l *Locker) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, errors.Join(ErrLockNotAcquired, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// the caller's ctx may already be canceled
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl)
			defer cancel()

			n, err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Int()
			switch {
			case err != nil:
				l.logger.ErrorContext(ctx, "failed to release redis lock",
					slog.String("key", fullKey), logger.Error(err))
			case n == 0:
				l.logger.WarnContext(ctx, "redis lock expired before release",
					slog.String("key", fullKey), logger.Error(ErrLockReleased))
			}
		})
	}
	return release, true, nil
}
