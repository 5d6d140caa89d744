package enums

import "fmt"

// PaymentStatus tracks how much of an order has been settled.
type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusInitiated     PaymentStatus = "initiated"
	PaymentStatusDepositPaid   PaymentStatus = "deposit_paid"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusPayOnDelivery PaymentStatus = "pay_on_delivery"
	PaymentStatusPayOnPickup   PaymentStatus = "pay_on_pickup"
	PaymentStatusFailed        PaymentStatus = "failed"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusInitiated,
	PaymentStatusDepositPaid,
	PaymentStatusPaid,
	PaymentStatusPayOnDelivery,
	PaymentStatusPayOnPickup,
	PaymentStatusFailed,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}

// IsTerminal reports whether the order is fully settled.
func (p PaymentStatus) IsTerminal() bool {
	return p == PaymentStatusPaid
}

// HasPayment reports whether at least part of the order has been paid.
func (p PaymentStatus) HasPayment() bool {
	return p == PaymentStatusDepositPaid || p == PaymentStatusPaid
}

// Unsettled lists the statuses the reconciliation sweep may inspect.
func UnsettledPaymentStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentStatusInitiated, PaymentStatusPending, PaymentStatusDepositPaid}
}
