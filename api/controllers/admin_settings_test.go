package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubBusy struct {
	busy   bool
	setErr error
}

func (s *stubBusy) Busy(context.Context) bool { return s.busy }

func (s *stubBusy) SetBusy(_ context.Context, busy bool) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.busy = busy
	return nil
}

func TestAdminBusyModeToggle(t *testing.T) {
	gate := &stubBusy{}

	rec := httptest.NewRecorder()
	AdminSetBusyMode(gate, nil)(rec, httptest.NewRequest(http.MethodPost, "/api/admin/v1/settings/busy-mode", strings.NewReader(`{"busy":true}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gate.busy)

	rec = httptest.NewRecorder()
	AdminGetBusyMode(gate, nil)(rec, httptest.NewRequest(http.MethodGet, "/api/admin/v1/settings/busy-mode", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"busy":true}}`, rec.Body.String())
}

func TestAdminBusyModeRequiresFlag(t *testing.T) {
	rec := httptest.NewRecorder()
	AdminSetBusyMode(&stubBusy{}, nil)(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminBusyModeStoreFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	AdminSetBusyMode(&stubBusy{setErr: errors.New("redis down")}, nil)(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"busy":false}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
