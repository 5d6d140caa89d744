package paymentstate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ovenly/backend/pkg/enums"
)

func TestCanTransitionPayment(t *testing.T) {
	cases := []struct {
		from, to enums.PaymentStatus
		want     bool
	}{
		{enums.PaymentStatusPending, enums.PaymentStatusInitiated, true},
		{enums.PaymentStatusPending, enums.PaymentStatusPayOnPickup, true},
		{enums.PaymentStatusInitiated, enums.PaymentStatusDepositPaid, true},
		{enums.PaymentStatusInitiated, enums.PaymentStatusFailed, true},
		{enums.PaymentStatusDepositPaid, enums.PaymentStatusPaid, true},
		{enums.PaymentStatusDepositPaid, enums.PaymentStatusFailed, false},
		{enums.PaymentStatusDepositPaid, enums.PaymentStatusInitiated, false},
		{enums.PaymentStatusFailed, enums.PaymentStatusInitiated, true},
		{enums.PaymentStatusPaid, enums.PaymentStatusFailed, false},
		{enums.PaymentStatusPaid, enums.PaymentStatusDepositPaid, false},
		{enums.PaymentStatusPaid, enums.PaymentStatusPaid, true},
		{enums.PaymentStatus("bogus"), enums.PaymentStatusPaid, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransitionPayment(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCanTransitionOrderStatus(t *testing.T) {
	cases := []struct {
		from, to enums.OrderStatus
		want     bool
	}{
		{enums.OrderStatusReceived, enums.OrderStatusInKitchen, true},
		{enums.OrderStatusReceived, enums.OrderStatusReadyForPickup, true},
		{enums.OrderStatusReceived, enums.OrderStatusDelivered, false},
		{enums.OrderStatusInKitchen, enums.OrderStatusOutForDelivery, true},
		{enums.OrderStatusReadyForPickup, enums.OrderStatusCollected, true},
		{enums.OrderStatusOutForDelivery, enums.OrderStatusCollected, false},
		{enums.OrderStatusDelivered, enums.OrderStatusCancelled, false},
		{enums.OrderStatusCancelled, enums.OrderStatusInKitchen, false},
		{enums.OrderStatusCancelled, enums.OrderStatusCancelled, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransitionOrderStatus(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAuthorizeOrderTransition_StrictLock(t *testing.T) {
	order := OrderView{
		Status:        enums.OrderStatusReceived,
		PaymentMethod: enums.PaymentMethodMpesa,
		PaymentStatus: enums.PaymentStatusInitiated,
		Fulfilment:    enums.FulfilmentDelivery,
	}

	decision := AuthorizeOrderTransition(enums.StaffRoleKitchen, order, enums.OrderStatusInKitchen)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonPaymentLocked, decision.Reason)

	decision = AuthorizeOrderTransition(enums.StaffRoleKitchen, order, enums.OrderStatusReadyForPickup)
	assert.False(t, decision.Allowed)

	for _, status := range []enums.PaymentStatus{enums.PaymentStatusDepositPaid, enums.PaymentStatusPaid} {
		order.PaymentStatus = status
		decision = AuthorizeOrderTransition(enums.StaffRoleKitchen, order, enums.OrderStatusInKitchen)
		assert.True(t, decision.Allowed, "status %s", status)
		assert.Empty(t, decision.Reason)
	}
}

func TestAuthorizeOrderTransition_LockExemptions(t *testing.T) {
	cash := OrderView{
		Status:        enums.OrderStatusReceived,
		PaymentMethod: enums.PaymentMethodCash,
		PaymentStatus: enums.PaymentStatusPayOnDelivery,
		Fulfilment:    enums.FulfilmentDelivery,
	}
	assert.True(t, AuthorizeOrderTransition(enums.StaffRoleKitchen, cash, enums.OrderStatusInKitchen).Allowed)

	pickup := OrderView{
		Status:        enums.OrderStatusReceived,
		PaymentMethod: enums.PaymentMethodMpesa,
		PaymentStatus: enums.PaymentStatusPending,
		Fulfilment:    enums.FulfilmentPickup,
	}
	assert.True(t, AuthorizeOrderTransition(enums.StaffRoleKitchen, pickup, enums.OrderStatusInKitchen).Allowed)

	unpaid := OrderView{
		Status:        enums.OrderStatusReceived,
		PaymentMethod: enums.PaymentMethodMpesa,
		PaymentStatus: enums.PaymentStatusPending,
		Fulfilment:    enums.FulfilmentDelivery,
	}
	assert.True(t, AuthorizeOrderTransition(enums.StaffRoleAdmin, unpaid, enums.OrderStatusInKitchen).Allowed)
}

func TestAuthorizeOrderTransition_Roles(t *testing.T) {
	order := OrderView{
		Status:        enums.OrderStatusReadyForPickup,
		PaymentMethod: enums.PaymentMethodCash,
		PaymentStatus: enums.PaymentStatusPayOnPickup,
		Fulfilment:    enums.FulfilmentPickup,
	}

	decision := AuthorizeOrderTransition(enums.StaffRoleKitchen, order, enums.OrderStatusCollected)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonRoleNotPermitted, decision.Reason)

	assert.True(t, AuthorizeOrderTransition(enums.StaffRoleDelivery, order, enums.OrderStatusCollected).Allowed)
	assert.False(t, AuthorizeOrderTransition(enums.StaffRoleDelivery, order, enums.OrderStatusCancelled).Allowed)
	assert.True(t, AuthorizeOrderTransition(enums.StaffRoleAdmin, order, enums.OrderStatusCancelled).Allowed)

	decision = AuthorizeOrderTransition(enums.StaffRole("baker"), order, enums.OrderStatusCollected)
	assert.Equal(t, ReasonInvalidRole, decision.Reason)

	order.Status = enums.OrderStatusDelivered
	decision = AuthorizeOrderTransition(enums.StaffRoleAdmin, order, enums.OrderStatusCancelled)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, ReasonTransitionBlocked)
}
