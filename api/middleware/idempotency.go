package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/cinerent/cinerent-backend/api/responses"
	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
	"github.com/cinerent/cinerent-backend/pkg/logger"
	pkgredis "github.com/cinerent/cinerent-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"

	rentalMutationTTL = 24 * time.Hour
	paymentTTL        = 7 * 24 * time.Hour
	// inFlightTTL caps how long a crashed request can block its key.
	inFlightTTL = 2 * time.Minute
)

// mutatingRoute names a write endpoint whose retries must not repeat side
// effects. Patterns are chi route patterns, so path params stay literal.
type mutatingRoute struct {
	method  string
	pattern string
	prefix  bool
	ttl     time.Duration
}

func (m mutatingRoute) matches(method, pattern string) bool {
	if m.method != method {
		return false
	}
	if m.prefix {
		return strings.HasPrefix(pattern, m.pattern)
	}
	return pattern == m.pattern
}

var mutatingRoutes = []mutatingRoute{
	{method: http.MethodPost, pattern: "/api/v1/rentals/pay", ttl: paymentTTL},
	{method: http.MethodPost, pattern: "/api/v1/rentals/pay/cash", ttl: paymentTTL},
	{method: http.MethodPost, pattern: "/api/v1/rentals/late-fee/payment", ttl: paymentTTL},
	{method: http.MethodPost, pattern: "/api/v1/rentals", ttl: rentalMutationTTL},
	{method: http.MethodPatch, pattern: "/api/v1/rentals/", prefix: true, ttl: rentalMutationTTL},
}

// storedResponse is what a replay returns. An entry with InFlight set marks a
// request that has claimed the key but not finished yet.
type storedResponse struct {
	InFlight    bool   `json:"in_flight,omitempty"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency makes rental and payment writes safe to retry. The first request
// under a key claims it, runs, and stores its response; retries with the same
// body get that response back, a different body is rejected, and a retry that
// races the first one is told to back off. Server errors release the key.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, guarded := ttlFor(r.Method, routePattern(r))
			if !guarded || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				fail(pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintBody(body)
			key := store.IdempotencyKey(scopeFor(r), clientKey)

			claim, _ := json.Marshal(storedResponse{InFlight: true, RequestHash: fingerprint})
			claimed, err := store.SetNX(ctx, key, string(claim), inFlightTTL)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayExisting(ctx, store, logg, w, key, fingerprint)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// Context may already be cancelled once the client has its answer.
			bg := context.WithoutCancel(ctx)
			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				if err := store.Del(bg, key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}
			final, _ := json.Marshal(storedResponse{
				RequestHash: fingerprint,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err := store.Set(bg, key, string(final), ttl); err != nil && logg != nil {
				logg.Error(ctx, "store idempotent response", err)
			}
		})
	}
}

func replayExisting(ctx context.Context, store pkgredis.IdempotencyStore, logg *logger.Logger, w http.ResponseWriter, key, fingerprint string) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// Released between our claim attempt and this read; the client may retry.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key did not complete, retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotent response"))
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotent response"))
		return
	}
	switch {
	case stored.RequestHash != fingerprint:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case stored.InFlight:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
	default:
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
	}
}

// scopeFor keeps keys from colliding across users and endpoints.
func scopeFor(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func ttlFor(method, pattern string) (time.Duration, bool) {
	for _, route := range mutatingRoutes {
		if route.matches(method, pattern) {
			return route.ttl, true
		}
	}
	return 0, false
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
