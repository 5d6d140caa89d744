package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenly/backend/api/middleware"
	"github.com/ovenly/backend/internal/cron"
	internalorders "github.com/ovenly/backend/internal/orders"
	"github.com/ovenly/backend/internal/reconciliation"
	"github.com/ovenly/backend/pkg/config"
	"github.com/ovenly/backend/pkg/db/models"
	"github.com/ovenly/backend/pkg/enums"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
	"github.com/ovenly/backend/pkg/types"
)

type stubTransitioner struct {
	input internalorders.TransitionInput
	err   error
}

func (s *stubTransitioner) Transition(_ context.Context, input internalorders.TransitionInput) (*models.Order, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{ID: input.OrderID, OrderNumber: "P2603010900ZZ99", Status: input.Next, PaymentStatus: enums.PaymentStatusPaid}, nil
}

func withStaff(role enums.StaffRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithStaff(r.Context(), "staff-1", role)))
		})
	}
}

func TestAdminOrderStatusPassesRole(t *testing.T) {
	svc := &stubTransitioner{}
	r := chi.NewRouter()
	r.With(withStaff(enums.StaffRoleKitchen)).Post("/orders/{orderId}/status", AdminOrderStatus(svc, nil))

	id := uuid.New()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/"+id.String()+"/status", strings.NewReader(`{"status":"in_kitchen"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, svc.input.OrderID)
	assert.Equal(t, enums.OrderStatusInKitchen, svc.input.Next)
	assert.Equal(t, enums.StaffRoleKitchen, svc.input.Role)
	assert.Equal(t, "staff-1", svc.input.StaffID)
}

func TestAdminOrderStatusStateConflict(t *testing.T) {
	svc := &stubTransitioner{err: pkgerrors.New(pkgerrors.CodeStateConflict, "unpaid delivery order").
		WithDetails(map[string]any{"reason": "unpaid delivery order"})}
	r := chi.NewRouter()
	r.With(withStaff(enums.StaffRoleKitchen)).Post("/orders/{orderId}/status", AdminOrderStatus(svc, nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/"+uuid.NewString()+"/status", strings.NewReader(`{"status":"in_kitchen"}`)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "STATE_CONFLICT", body.Error.Code)
	assert.NotNil(t, body.Error.Details)
}

func TestAdminOrderStatusRejectsBadID(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/orders/{orderId}/status", AdminOrderStatus(&stubTransitioner{}, nil))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/not-a-uuid/status", strings.NewReader(`{"status":"in_kitchen"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubRunner struct {
	summary reconciliation.Summary
	err     error
	runs    int
}

func (s *stubRunner) Run(context.Context) (reconciliation.Summary, error) {
	s.runs++
	return s.summary, s.err
}

type memLock struct{ held *bool }

func (m memLock) Acquire(context.Context) (bool, error) {
	if *m.held {
		return false, nil
	}
	*m.held = true
	return true, nil
}

func (m memLock) Release(context.Context) error { *m.held = false; return nil }

func TestAdminReconcileReturnsSummary(t *testing.T) {
	runner := &stubRunner{summary: reconciliation.Summary{Scanned: 3, Advanced: 2, Pending: 1}}
	held := false
	h := AdminReconcile(runner, func() (cron.Lock, error) { return memLock{held: &held}, nil }, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data reconciliation.Summary `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body.Data.Advanced)
	assert.False(t, held)
}

func TestAdminReconcileConflictsWhileLocked(t *testing.T) {
	runner := &stubRunner{}
	held := true
	h := AdminReconcile(runner, func() (cron.Lock, error) { return memLock{held: &held}, nil }, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, runner.runs)
}

func TestAdminReconcileSurfacesListingFailure(t *testing.T) {
	runner := &stubRunner{err: errors.New("db down")}
	h := AdminReconcile(runner, nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}})(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{err: errors.New("refused")}})(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
