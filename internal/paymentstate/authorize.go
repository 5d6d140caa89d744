package paymentstate

import (
	"fmt"

	"github.com/ovenly/backend/pkg/enums"
)

// Reasons returned by AuthorizeOrderTransition.
const (
	ReasonInvalidRole       = "unknown staff role"
	ReasonInvalidTarget     = "unknown order status"
	ReasonRoleNotPermitted  = "role may not set this status"
	ReasonTransitionBlocked = "transition not allowed from current status"
	ReasonPaymentLocked     = "mpesa delivery orders must have a deposit or full payment before preparation"
)

var roleTargets = map[enums.StaffRole][]enums.OrderStatus{
	enums.StaffRoleKitchen: {
		enums.OrderStatusInKitchen,
		enums.OrderStatusReadyForPickup,
	},
	enums.StaffRoleDelivery: {
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusDelivered,
		enums.OrderStatusCollected,
	},
}

// OrderView is the slice of an order the authorizer needs.
type OrderView struct {
	Status        enums.OrderStatus
	PaymentMethod enums.PaymentMethod
	PaymentStatus enums.PaymentStatus
	Fulfilment    enums.Fulfilment
}

// Decision is the authorizer verdict. Reason is empty when Allowed.
type Decision struct {
	Allowed bool
	Reason  string
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// AuthorizeOrderTransition decides whether role may move order to next.
func AuthorizeOrderTransition(role enums.StaffRole, order OrderView, next enums.OrderStatus) Decision {
	if !role.IsValid() {
		return deny(ReasonInvalidRole)
	}
	if !next.IsValid() {
		return deny(ReasonInvalidTarget)
	}
	if order.Status == next {
		return Decision{Allowed: true}
	}
	if !CanTransitionOrderStatus(order.Status, next) {
		return deny(fmt.Sprintf("%s: %s -> %s", ReasonTransitionBlocked, order.Status, next))
	}
	if role != enums.StaffRoleAdmin && !contains(roleTargets[role], next) {
		return deny(ReasonRoleNotPermitted)
	}
	if role == enums.StaffRoleKitchen && next.IsPreparation() && PaymentLocked(order) {
		return deny(ReasonPaymentLocked)
	}
	return Decision{Allowed: true}
}

// PaymentLocked reports whether an order may not enter preparation yet:
// an mpesa delivery order with neither a deposit nor a full payment.
// Cash and pickup orders are never locked.
func PaymentLocked(order OrderView) bool {
	if order.PaymentMethod != enums.PaymentMethodMpesa || order.Fulfilment != enums.FulfilmentDelivery {
		return false
	}
	switch order.PaymentStatus {
	case enums.PaymentStatusDepositPaid, enums.PaymentStatusPaid:
		return false
	default:
		return true
	}
}
