package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	return true, f.Set(ctx, key, value, ttl)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func createRentalRequest(key, body string) *http.Request {
	req := requestWithPattern(http.MethodPost, "/api/v1/rentals", "/api/v1/rentals", strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestTTLForRoutes(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"create rental", http.MethodPost, "/api/v1/rentals", rentalMutationTTL, true},
		{"return rental", http.MethodPatch, "/api/v1/rentals/{rentalId}", rentalMutationTTL, true},
		{"gateway payment", http.MethodPost, "/api/v1/rentals/pay", paymentTTL, true},
		{"cash payment", http.MethodPost, "/api/v1/rentals/pay/cash", paymentTTL, true},
		{"late fee", http.MethodPost, "/api/v1/rentals/late-fee/payment", paymentTTL, true},
		{"read rental", http.MethodGet, "/api/v1/rentals/{rentalId}", 0, false},
		{"webhook", http.MethodPost, "/api/v1/webhooks/midtrans", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ttl, ok := ttlFor(tt.method, tt.pattern)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, ttl)
		})
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	called := false
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, createRentalRequest("", `{"movie_id":"m-1"}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, called)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"rental_id":"r-1"}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, createRentalRequest("abc", `{"movie_id":"m-1"}`))
	require.Equal(t, http.StatusCreated, first.Code)

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, createRentalRequest("abc", `{"movie_id":"m-1"}`))
	require.Equal(t, http.StatusCreated, replay.Code)
	require.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	require.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, `{"data":{"rental_id":"r-1"}}`, replay.Body.String())
	require.Equal(t, 1, calls)

	for key, ttl := range store.ttls {
		require.Equal(t, rentalMutationTTL, ttl, key)
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), createRentalRequest("xyz", `{"movie_id":"m-1"}`))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, createRentalRequest("xyz", `{"movie_id":"m-2"}`))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyRejectsConcurrentRetry(t *testing.T) {
	store := newFakeStore()
	var inner *httptest.ResponseRecorder
	var handler http.Handler
	handler = Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inner == nil {
			// The retry lands while the first request still holds the key.
			inner = httptest.NewRecorder()
			handler.ServeHTTP(inner, createRentalRequest("race", `{"movie_id":"m-1"}`))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, createRentalRequest("race", `{"movie_id":"m-1"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, http.StatusConflict, inner.Code)
	require.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, inner))
}

func TestIdempotencyReleasesKeyAfterServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, createRentalRequest("retry", `{"movie_id":"m-1"}`))
	require.Equal(t, http.StatusServiceUnavailable, first.Code)
	require.Empty(t, store.data)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, createRentalRequest("retry", `{"movie_id":"m-1"}`))
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, 2, calls)
}

func TestIdempotencyKeepsClientErrors(t *testing.T) {
	calls := 0
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusConflict)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, createRentalRequest("oos", `{"movie_id":"m-1"}`))
		require.Equal(t, http.StatusConflict, rec.Code)
	}
	require.Equal(t, 1, calls)
}

func TestIdempotencySkipsUnguardedRoutes(t *testing.T) {
	calls := 0
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	req := requestWithPattern(http.MethodGet, "/api/v1/rentals", "/api/v1/rentals", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, 2, calls)
}
