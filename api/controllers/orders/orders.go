package orders

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ovenly/backend/api/middleware"
	"github.com/ovenly/backend/api/responses"
	"github.com/ovenly/backend/api/validators"
	internalorders "github.com/ovenly/backend/internal/orders"
	"github.com/ovenly/backend/internal/payments"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
	"github.com/ovenly/backend/pkg/logger"
)

const (
	maxOrderRef = 64
	maxPhone    = 20
)

type orderCreator interface {
	Create(ctx context.Context, input internalorders.CreateOrderInput, idempotencyKey string) (internalorders.CreateOrderResult, error)
}

type balanceReader interface {
	Balance(ctx context.Context, input internalorders.BalanceInput) (*internalorders.BalanceView, error)
}

type stkPusher interface {
	Push(ctx context.Context, input payments.STKPushInput, idempotencyKey string) (payments.STKPushResult, error)
}

// Create submits a storefront order. The optional Idempotency-Key makes
// retries return the original order.
func Create(svc orderCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var input internalorders.CreateOrderInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), input, middleware.IdempotencyKeyFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// STKPush prompts the customer's phone for the deposit or the outstanding balance.
func STKPush(svc stkPusher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var input payments.STKPushInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.OrderRef = validators.SanitizeString(chi.URLParam(r, "orderId"), maxOrderRef)
		if input.CorrelationID == "" {
			input.CorrelationID = w.Header().Get("X-Request-Id")
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, input.OrderRef)
		}
		result, err := svc.Push(ctx, input, middleware.IdempotencyKeyFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Balance shows the payment progress of an order. Customers must pass the
// phone the order was placed with; staff tokens skip that check.
func Balance(svc balanceReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		view, err := svc.Balance(r.Context(), internalorders.BalanceInput{
			OrderRef: validators.SanitizeString(chi.URLParam(r, "orderId"), maxOrderRef),
			Phone:    validators.SanitizeString(r.URL.Query().Get("phone"), maxPhone),
			Staff:    middleware.RoleFromContext(r.Context()) != "",
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
