// Package paymentstate holds the order and payment transition tables and the
// role-aware authorizer staff actions go through. Nothing here touches storage.
package paymentstate

import "github.com/ovenly/backend/pkg/enums"

var paymentEdges = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending: {
		enums.PaymentStatusInitiated,
		enums.PaymentStatusDepositPaid,
		enums.PaymentStatusPaid,
		enums.PaymentStatusPayOnDelivery,
		enums.PaymentStatusPayOnPickup,
		enums.PaymentStatusFailed,
	},
	enums.PaymentStatusInitiated: {
		enums.PaymentStatusPending,
		enums.PaymentStatusDepositPaid,
		enums.PaymentStatusPaid,
		enums.PaymentStatusFailed,
	},
	enums.PaymentStatusDepositPaid: {
		enums.PaymentStatusPaid,
	},
	enums.PaymentStatusPayOnDelivery: {
		enums.PaymentStatusPending,
		enums.PaymentStatusInitiated,
		enums.PaymentStatusDepositPaid,
		enums.PaymentStatusPaid,
	},
	enums.PaymentStatusPayOnPickup: {
		enums.PaymentStatusPending,
		enums.PaymentStatusInitiated,
		enums.PaymentStatusDepositPaid,
		enums.PaymentStatusPaid,
	},
	enums.PaymentStatusFailed: {
		enums.PaymentStatusPending,
		enums.PaymentStatusInitiated,
		enums.PaymentStatusDepositPaid,
		enums.PaymentStatusPaid,
	},
	enums.PaymentStatusPaid: {},
}

var orderEdges = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusReceived: {
		enums.OrderStatusInKitchen,
		enums.OrderStatusReadyForPickup,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusInKitchen: {
		enums.OrderStatusReadyForPickup,
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusReadyForPickup: {
		enums.OrderStatusDelivered,
		enums.OrderStatusCollected,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusOutForDelivery: {
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusDelivered: {},
	enums.OrderStatusCollected: {},
	enums.OrderStatusCancelled: {},
}

// CanTransitionPayment reports whether a payment status may move from current to next.
// Self transitions are always allowed.
func CanTransitionPayment(current, next enums.PaymentStatus) bool {
	if !current.IsValid() || !next.IsValid() {
		return false
	}
	if current == next {
		return true
	}
	return contains(paymentEdges[current], next)
}

// CanTransitionOrderStatus reports whether an order status may move from current to next.
func CanTransitionOrderStatus(current, next enums.OrderStatus) bool {
	if !current.IsValid() || !next.IsValid() {
		return false
	}
	if current == next {
		return true
	}
	return contains(orderEdges[current], next)
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
