package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ovenly/backend/internal/paymentstate"
	pkgdb "github.com/ovenly/backend/pkg/db"
	"github.com/ovenly/backend/pkg/db/models"
	"github.com/ovenly/backend/pkg/enums"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
)

// TransitionInput is a staff request to move an order along the kitchen flow.
type TransitionInput struct {
	OrderID uuid.UUID
	Next    enums.OrderStatus
	Role    enums.StaffRole
	StaffID string
}

// Transition applies a staff status change after the role-aware authorizer
// approves it. The write is conditioned on the status that was authorized.
func (s *Service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Next.IsValid() {
		return nil, fieldError("status", "unknown order status %q", input.Next)
	}
	if !input.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if pkgdb.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		decision := paymentstate.AuthorizeOrderTransition(input.Role, paymentstate.OrderView{
			Status:        order.Status,
			PaymentMethod: order.PaymentMethod,
			PaymentStatus: order.PaymentStatus,
			Fulfilment:    order.Fulfilment,
		}, input.Next)
		if !decision.Allowed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, decision.Reason).
				WithDetails(map[string]any{
					"reason":         decision.Reason,
					"status":         order.Status,
					"payment_status": order.PaymentStatus,
				})
		}
		if order.Status == input.Next {
			updated = order
			return nil
		}

		now := s.now()
		ok, err := repo.UpdateStatus(ctx, order.ID, order.Status, input.Next, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed, reload and try again")
		}
		order.Status = input.Next
		order.UpdatedAt = now
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": updated.ID.String(),
		"status":   updated.Status,
		"role":     input.Role,
		"staff_id": input.StaffID,
	})
	s.logg.Info(logCtx, "order status updated")
	return updated, nil
}
