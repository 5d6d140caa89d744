package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenly/backend/internal/ratelimit"
	pkgAuth "github.com/ovenly/backend/pkg/auth"
	"github.com/ovenly/backend/pkg/config"
	"github.com/ovenly/backend/pkg/enums"
)

var jwtCfg = config.JWTConfig{Secret: "secret", Issuer: "ovenly", ExpirationMinutes: 10}

func mintToken(t *testing.T, role enums.StaffRole) string {
	t.Helper()
	token, err := pkgAuth.MintStaffToken(jwtCfg, time.Now(), pkgAuth.StaffTokenPayload{StaffID: uuid.New(), Role: role})
	require.NoError(t, err)
	return token
}

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

func TestStaffAuthRequiresToken(t *testing.T) {
	h := StaffAuth(jwtCfg, nil)(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/v1/payments/reconcile", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payments/reconcile", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStaffAuthAndRequireRole(t *testing.T) {
	var seen enums.StaffRole
	h := StaffAuth(jwtCfg, nil)(RequireRole(nil, enums.StaffRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RoleFromContext(r.Context())
		assert.NotEmpty(t, StaffIDFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, enums.StaffRoleAdmin))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, enums.StaffRoleAdmin, seen)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, enums.StaffRoleKitchen))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOptionalStaffAuthAllowsAnonymous(t *testing.T) {
	var role enums.StaffRole = "unset"
	h := OptionalStaffAuth(jwtCfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, enums.StaffRole(""), role)
}

func TestIdempotencyKeyRequired(t *testing.T) {
	var got string
	h := IdempotencyKey(true, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdempotencyKeyFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(IdempotencyHeader, "has space")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(IdempotencyHeader, strings.Repeat("k", 129))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(IdempotencyHeader, " push-1 ")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "push-1", got)
}

func TestIdempotencyKeyOptional(t *testing.T) {
	h := IdempotencyKey(false, nil)(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, assert.AnError
}

func TestWebhookRateLimitBlocksPerIP(t *testing.T) {
	policy := WebhookRateLimitPolicy{Name: "stk", Limit: 2, Window: time.Minute}
	h := WebhookRateLimit(policy, ratelimit.NewMemory(), nil)(http.HandlerFunc(okHandler))

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mpesa/stk-callback", nil)
		req.RemoteAddr = ip + ":443"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, send("196.201.214.200").Code)
	assert.Equal(t, http.StatusNoContent, send("196.201.214.200").Code)
	blocked := send("196.201.214.200")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusNoContent, send("196.201.214.206").Code)
}

func TestWebhookRateLimitFailsOpen(t *testing.T) {
	policy := WebhookRateLimitPolicy{Name: "stk", Limit: 1, Window: time.Minute}
	h := WebhookRateLimit(policy, failingLimiter{}, nil)(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClientIPUsesTrustedHop(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	// caller-supplied entry first, load balancer appends the real peer
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 41.90.1.2")
	assert.Equal(t, "41.90.1.2", clientIP(req, 1))
	assert.Equal(t, "1.2.3.4", clientIP(req, 2))
	assert.Equal(t, "10.0.0.9", clientIP(req, 0))
	assert.Equal(t, "10.0.0.9", clientIP(req, 3))
}

func TestWebhookRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	policy := WebhookRateLimitPolicy{Name: "stk", Limit: 1, Window: time.Minute, TrustedHops: 1}
	h := WebhookRateLimit(policy, ratelimit.NewMemory(), nil)(http.HandlerFunc(okHandler))

	send := func(spoofed string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Forwarded-For", spoofed+", 41.90.1.2")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNoContent, send("7.7.7.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("7.7.7.2"))
}

func TestRecovererReturnsInternalError(t *testing.T) {
	h := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDEchoesHeader(t *testing.T) {
	h := RequestID(nil)(http.HandlerFunc(okHandler))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))
}

func TestRequestIDReplacesUnsafeHeader(t *testing.T) {
	var seen string
	h := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	for _, bad := range []string{"", "has space", strings.Repeat("a", 129), "tab\tid"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", bad)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		got := rec.Header().Get("X-Request-Id")
		_, err := uuid.Parse(got)
		require.NoError(t, err, "input %q", bad)
		assert.Equal(t, got, seen)
	}
}

func TestRecovererRepanicsOnAbort(t *testing.T) {
	h := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
