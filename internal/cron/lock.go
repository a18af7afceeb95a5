package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cinerent/cinerent-backend/pkg/instance"
)

// defaultLockTTL bounds how long a crashed worker can block the next cycle.
const defaultLockTTL = 15 * time.Minute

// Lock guarantees that at most one worker runs a cron cycle at a time.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock stores a per-acquisition token under key. The token carries the
// worker instance id so a stuck lock can be traced to its holder.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	token string
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("cron lock store required")
	case key == "":
		return nil, errors.New("cron lock key required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

// Acquire reports whether this worker now holds the lock.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := instance.GetID() + "/" + uuid.NewString()
	acquired, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", l.key, err)
	}
	if acquired {
		l.token = token
	}
	return acquired, nil
}

// Release deletes the key only while it still holds this worker's token, so an
// expired lock re-acquired by another worker is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""

	current, err := l.store.Get(ctx, l.key)
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("inspect %s: %w", l.key, err)
	case current != token:
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("drop %s: %w", l.key, err)
	}
	return nil
}
