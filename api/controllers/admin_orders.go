package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ovenly/backend/api/middleware"
	"github.com/ovenly/backend/api/responses"
	"github.com/ovenly/backend/api/validators"
	internalorders "github.com/ovenly/backend/internal/orders"
	"github.com/ovenly/backend/pkg/db/models"
	"github.com/ovenly/backend/pkg/enums"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
	"github.com/ovenly/backend/pkg/logger"
	"github.com/ovenly/backend/pkg/pagination"
)

type statusTransitioner interface {
	Transition(ctx context.Context, input internalorders.TransitionInput) (*models.Order, error)
}

type statusRequest struct {
	Status enums.OrderStatus `json:"status" validate:"required"`
}

type statusResponse struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
}

// AdminOrderStatus moves an order along the kitchen flow on behalf of the
// authenticated staff member.
func AdminOrderStatus(svc statusTransitioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "orderId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}

		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		order, err := svc.Transition(ctx, internalorders.TransitionInput{
			OrderID: orderID,
			Next:    req.Status,
			Role:    middleware.RoleFromContext(ctx),
			StaffID: middleware.StaffIDFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, statusResponse{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			Status:        order.Status,
			PaymentStatus: order.PaymentStatus,
		})
	}
}

type orderLister interface {
	List(ctx context.Context, input internalorders.ListInput) (*internalorders.ListResult, error)
}

// AdminListOrders serves the kitchen board: newest orders first, optionally
// filtered by status, paged with an opaque cursor.
func AdminListOrders(svc orderLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), internalorders.ListInput{
			Status: enums.OrderStatus(validators.QueryString(r, "status", 32)),
			Limit:  limit,
			Cursor: validators.QueryString(r, "cursor", 256),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
