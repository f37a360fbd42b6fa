package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.CodeConflict, "failed to acquire lock")
	ErrLockNotHeld     = errors.New(errors.CodeConflict, "lock not held by this owner")
)

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Mutex is a single-holder distributed lock.  The worker takes one around
// corpus rebuilds so only one instance rebuilds at a time.
type Mutex struct {
	client *Client
	logger logging.Logger
	name   string
	value  string
	ttl    time.Duration
}

// NewMutex constructs a lock with a fresh owner token.  ttl bounds how long
// a crashed holder can block others.
func NewMutex(client *Client, log logging.Logger, name string, ttl time.Duration) *Mutex {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Mutex{
		client: client,
		logger: log,
		name:   name,
		value:  uuid.NewString(),
		ttl:    ttl,
	}
}

func (m *Mutex) key() string { return m.client.Key("lock", m.name) }

// TryLock attempts to take the lock without blocking.
func (m *Mutex) TryLock(ctx context.Context) (bool, error) {
	ok, err := m.client.rdb.SetNX(ctx, m.key(), m.value, m.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.CodeCacheError, "lock acquire failed")
	}
	return ok, nil
}

// Lock blocks until the lock is taken, retrying every 200ms, or the context
// is cancelled.
func (m *Mutex) Lock(ctx context.Context) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		ok, err := m.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrLockNotAcquired
		case <-ticker.C:
		}
	}
}

// Unlock releases the lock if still held by this owner.
func (m *Mutex) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, m.client.rdb, []string{m.key()}, m.value).Int64()
	if err != nil {
		return errors.Wrap(err, errors.CodeCacheError, "lock release failed")
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend pushes the expiry out by ttl; returns false when the lock is no
// longer held by this owner.
func (m *Mutex) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, m.client.rdb, []string{m.key()}, m.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, errors.Wrap(err, errors.CodeCacheError, "lock extend failed")
	}
	return n == 1, nil
}
