package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockPollInterval = 20 * time.Millisecond

// Locker is used by the appointment service to guard booking of a single slot.
type Locker interface {
	WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// SlotKey identifies one bookable instant of a doctor at a clinic.
func SlotKey(doctorID, clinicID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s:%s:%d", doctorID, clinicID, at.Unix())
}

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	log    *zap.Logger
}

// NewRedisSlotLocker creates a locker that uses a per slot Redis key.
// A busy key is polled for up to ttl; the holder's own critical section is
// bounded by the same ttl. When Redis cannot be reached, or the key stays busy,
// fn still runs unlocked and the database constraint decides the race.
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration, log *zap.Logger) Locker {
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
		wait:   ttl,
		log:    log,
	}
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, slot string, fn func(ctx context.Context) error) error {
	key := "lock:slot:" + slot
	token := uuid.NewString()

	acquired, err := l.acquire(ctx, key, token)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.log.Warn("slot lock unavailable, continuing without it",
			zap.String("key", key),
			zap.Error(err),
		)
		return fn(ctx)
	}
	if !acquired {
		l.log.Warn("slot lock still held, continuing without it",
			zap.String("key", key),
			zap.Duration("waited", l.wait),
		)
		return fn(ctx)
	}

	defer func() {
		// release even when the request context is already gone
		if err := l.release(context.WithoutCancel(ctx), key, token); err != nil {
			l.log.Warn("release slot lock", zap.String("key", key), zap.Error(err))
		}
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

// acquire polls SETNX until it wins, the wait elapses, or ctx ends. A holder
// that fails releases the key, so a waiter then runs its own checks instead of
// inheriting the holder's outcome.
func (l *redisSlotLocker) acquire(ctx context.Context, key, token string) (bool, error) {
	deadline := time.Now().Add(l.wait)
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil || ok {
			return ok, err
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

// NoopLocker runs fn directly. Used when no Redis is configured.
type NoopLocker struct{}

func (NoopLocker) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
