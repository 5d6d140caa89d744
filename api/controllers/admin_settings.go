package controllers

import (
	"context"
	"net/http"

	"github.com/ovenly/backend/api/middleware"
	"github.com/ovenly/backend/api/responses"
	"github.com/ovenly/backend/api/validators"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
	"github.com/ovenly/backend/pkg/logger"
)

type busySwitch interface {
	Busy(ctx context.Context) bool
	SetBusy(ctx context.Context, busy bool) error
}

type busyModeRequest struct {
	Busy *bool `json:"busy" validate:"required"`
}

type busyModeResponse struct {
	Busy bool `json:"busy"`
}

// AdminGetBusyMode reports whether new orders are currently paused.
func AdminGetBusyMode(gate busySwitch, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gate == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "busy mode unavailable"))
			return
		}
		responses.WriteSuccess(w, busyModeResponse{Busy: gate.Busy(r.Context())})
	}
}

// AdminSetBusyMode pauses or resumes order intake for every API instance.
func AdminSetBusyMode(gate busySwitch, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gate == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "busy mode unavailable"))
			return
		}
		var req busyModeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if err := gate.SetBusy(ctx, *req.Busy); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to update busy mode"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"busy":     *req.Busy,
				"staff_id": middleware.StaffIDFromContext(ctx),
			})
			logg.Info(ctx, "busy mode updated")
		}
		responses.WriteSuccess(w, busyModeResponse{Busy: *req.Busy})
	}
}
