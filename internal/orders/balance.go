package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"

	pkgdb "github.com/ovenly/backend/pkg/db"
	"github.com/ovenly/backend/pkg/db/models"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
)

// BalanceInput identifies an order by id or order number. Customers must
// also present the phone the order was placed with.
type BalanceInput struct {
	OrderRef string
	Phone    string
	Staff    bool
}

// Balance returns the order snapshot and the latest payment delivery.
// Unknown orders and phone mismatches are indistinguishable.
func (s *Service) Balance(ctx context.Context, input BalanceInput) (*BalanceView, error) {
	order, err := s.Lookup(ctx, input.OrderRef)
	if err != nil {
		return nil, err
	}

	if !input.Staff {
		phone, err := NormalizePhone(input.Phone)
		if err != nil || phone != order.Phone {
			return nil, orderNotFound()
		}
	}

	attempt, err := s.repo.LatestAttempt(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest payment")
	}
	return &BalanceView{
		Order:         snapshotOrder(order),
		LatestPayment: snapshotAttempt(attempt),
	}, nil
}

// Lookup resolves an order by uuid or customer-facing order number.
func (s *Service) Lookup(ctx context.Context, ref string) (*models.Order, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, orderNotFound()
	}

	var (
		order *models.Order
		err   error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		order, err = s.repo.FindByID(ctx, id)
	} else {
		order, err = s.repo.FindByNumber(ctx, strings.ToUpper(ref))
	}
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, orderNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func orderNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}
