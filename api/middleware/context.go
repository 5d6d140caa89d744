package middleware

import (
	"context"

	"github.com/ovenly/backend/pkg/enums"
	"github.com/ovenly/backend/pkg/types"
)

type contextKey string

const (
	ctxStaffID        contextKey = "staff_id"
	ctxRole           contextKey = "staff_role"
	ctxIdempotencyKey contextKey = "idempotency_key"
)

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	return types.RequestID(ctx)
}

func StaffIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxStaffID).(string); ok {
		return v
	}
	return ""
}

// RoleFromContext returns the authenticated staff role, or "" for anonymous callers.
func RoleFromContext(ctx context.Context) enums.StaffRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.StaffRole); ok {
		return v
	}
	return ""
}

func IdempotencyKeyFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxIdempotencyKey).(string); ok {
		return v
	}
	return ""
}

// WithStaff injects the authenticated staff member into the context.
func WithStaff(ctx context.Context, staffID string, role enums.StaffRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxStaffID, staffID)
	return context.WithValue(ctx, ctxRole, role)
}
