package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	midtranswebhook "github.com/cinerent/cinerent-backend/internal/webhooks/midtrans"
	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
	"github.com/cinerent/cinerent-backend/pkg/midtrans"
)

const notificationBody = `{
	"order_id": "RENT-20261019-abc",
	"status_code": "200",
	"gross_amount": "15000.00",
	"transaction_status": "settlement",
	"signature_key": "sig",
	"payment_type": "bank_transfer",
	"currency": "IDR"
}`

type fakeMidtransService struct {
	calls   int
	outcome midtranswebhook.Outcome
	err     error
}

// Verify accepts only the signature carried by notificationBody.
func (f *fakeMidtransService) Verify(n midtrans.Notification) error {
	if n.SignatureKey != "sig" {
		return pkgerrors.New(pkgerrors.CodeInvalidSig, "invalid signature")
	}
	return nil
}

func (f *fakeMidtransService) Handle(_ context.Context, _ midtrans.Notification) (midtranswebhook.Outcome, error) {
	f.calls++
	return f.outcome, f.err
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: map[string]string{}}
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = "1"
	return true, nil
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *inMemoryStore) WebhookReplayKey(provider, id string) string {
	return provider + ":" + id
}

func (s *inMemoryStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func newGuard(t *testing.T) *midtranswebhook.ReplayGuard {
	t.Helper()
	guard, err := midtranswebhook.NewReplayGuard(newInMemoryStore(), time.Hour)
	require.NoError(t, err)
	return guard
}

func post(handler http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/midtrans", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMidtransWebhookAppliesOnceAndAcknowledgesReplay(t *testing.T) {
	svc := &fakeMidtransService{outcome: midtranswebhook.OutcomeSettled}
	handler := MidtransWebhook(svc, newGuard(t), nil)

	rec := post(handler, notificationBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"outcome":"settled"`)

	rec = post(handler, notificationBody)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"outcome":"duplicate"`)
	require.Equal(t, 1, svc.calls)
}

func TestMidtransWebhookRejectsMissingSignature(t *testing.T) {
	svc := &fakeMidtransService{outcome: midtranswebhook.OutcomeSettled}
	handler := MidtransWebhook(svc, newGuard(t), nil)

	rec := post(handler, `{"order_id":"RENT-1","status_code":"200","gross_amount":"1.00","transaction_status":"settlement"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
	require.Zero(t, svc.calls)
}

func TestMidtransWebhookFailureAllowsRetry(t *testing.T) {
	svc := &fakeMidtransService{err: pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")}
	handler := MidtransWebhook(svc, newGuard(t), nil)

	rec := post(handler, notificationBody)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")

	svc.err = nil
	svc.outcome = midtranswebhook.OutcomeNoop
	rec = post(handler, notificationBody)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"outcome":"noop"`)
	require.Equal(t, 2, svc.calls)
}

func TestMidtransWebhookUnsignedNotificationCannotClaimReplayMarker(t *testing.T) {
	store := newInMemoryStore()
	guard, err := midtranswebhook.NewReplayGuard(store, time.Hour)
	require.NoError(t, err)
	svc := &fakeMidtransService{outcome: midtranswebhook.OutcomeSettled}
	handler := MidtransWebhook(svc, guard, nil)

	forged := strings.Replace(notificationBody, `"signature_key": "sig"`, `"signature_key": "forged"`, 1)
	rec := post(handler, forged)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_SIGNATURE")
	require.Zero(t, store.size())
	require.Zero(t, svc.calls)

	rec = post(handler, notificationBody)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"outcome":"settled"`)
	require.Equal(t, 1, svc.calls)
	require.Equal(t, 1, store.size())
}
