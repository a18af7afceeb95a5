package midtranswebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cinerent/cinerent-backend/pkg/midtrans"
)

const replayProvider = "midtrans"

type replayStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookReplayKey(provider, id string) string
}

// ReplayGuard drops notifications already accepted within the TTL. A
// notification is identified by order id, transaction status, status code and
// signature, so each signed state the gateway reports for an order is processed
// once. Callers verify the signature before marking.
type ReplayGuard struct {
	store replayStore
	ttl   time.Duration
}

func NewReplayGuard(store replayStore, ttl time.Duration) (*ReplayGuard, error) {
	if store == nil {
		return nil, errors.New("replay store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &ReplayGuard{store: store, ttl: ttl}, nil
}

// ReplayID is the dedupe identity of a notification.
func ReplayID(n midtrans.Notification) string {
	signature := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	return strings.Join([]string{n.OrderID, n.TransactionStatus, n.StatusCode, signature}, ":")
}

// CheckAndMark reports whether the notification was seen before and marks it
// otherwise.
func (g *ReplayGuard) CheckAndMark(ctx context.Context, n midtrans.Notification) (bool, error) {
	if n.OrderID == "" {
		return false, errors.New("order id is required")
	}
	key := g.store.WebhookReplayKey(replayProvider, ReplayID(n))
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set replay marker: %w", err)
	}
	return !set, nil
}

// Forget removes the marker so a failed notification can be retried.
func (g *ReplayGuard) Forget(ctx context.Context, n midtrans.Notification) error {
	if n.OrderID == "" {
		return errors.New("order id is required")
	}
	return g.store.Del(ctx, g.store.WebhookReplayKey(replayProvider, ReplayID(n)))
}
