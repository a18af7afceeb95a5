package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cinerent/cinerent-backend/pkg/config"
)

type mockCmdable struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	m.values[key] = toString(value)
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	val, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := m.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.values[key] = toString(value)
	m.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var removed int64
	for _, key := range keys {
		if _, ok := m.values[key]; ok {
			delete(m.values, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func TestSetNXOnlyFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.WebhookReplayKey("midtrans", "RENTAL-1:settlement:200")
	set, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || !set {
		t.Fatalf("expected first SetNX to win, set=%v err=%v", set, err)
	}
	set, err = client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || set {
		t.Fatalf("expected second SetNX to lose, set=%v err=%v", set, err)
	}
	if mock.ttls[key] != time.Hour {
		t.Fatalf("expected ttl to be applied, got %v", mock.ttls[key])
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := client.Get(ctx, key); !errors.Is(err, ErrNil) {
		t.Fatalf("expected ErrNil after delete, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("rentals.pay", "abc"); got != "cr:idempotency:rentals.pay:abc" {
		t.Fatalf("unexpected idempotency key %q", got)
	}
	if got := client.WebhookReplayKey("midtrans", " order "); got != "cr:webhook:midtrans:order" {
		t.Fatalf("unexpected webhook key %q", got)
	}
	if got := client.LockKey(""); got != "cr:lock" {
		t.Fatalf("unexpected lock key %q", got)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if _, err := client.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close without raw client should be a no-op: %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 3 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error when url and address are empty")
	}
}
