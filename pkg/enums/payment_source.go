package enums

import "fmt"

// PaymentSource identifies which channel reported a payment outcome.
type PaymentSource string

const (
	PaymentSourceSTKCallback     PaymentSource = "stk_callback"
	PaymentSourceC2BConfirmation PaymentSource = "c2b_confirmation"
	PaymentSourceGatewayWebhook  PaymentSource = "gateway_webhook"
	PaymentSourceReconciliation  PaymentSource = "reconciliation"
)

var validPaymentSources = []PaymentSource{
	PaymentSourceSTKCallback,
	PaymentSourceC2BConfirmation,
	PaymentSourceGatewayWebhook,
	PaymentSourceReconciliation,
}

// String implements fmt.Stringer.
func (p PaymentSource) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentSource.
func (p PaymentSource) IsValid() bool {
	for _, candidate := range validPaymentSources {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentSource converts raw input into a PaymentSource.
func ParsePaymentSource(value string) (PaymentSource, error) {
	for _, candidate := range validPaymentSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment source %q", value)
}
