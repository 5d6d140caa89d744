package enums

import "fmt"

// PaymentPlan selects between paying everything upfront or a deposit first.
type PaymentPlan string

const (
	PaymentPlanFull    PaymentPlan = "full"
	PaymentPlanDeposit PaymentPlan = "deposit"
)

var validPaymentPlans = []PaymentPlan{
	PaymentPlanFull,
	PaymentPlanDeposit,
}

// String implements fmt.Stringer.
func (p PaymentPlan) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentPlan.
func (p PaymentPlan) IsValid() bool {
	for _, candidate := range validPaymentPlans {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentPlan converts raw input into a PaymentPlan.
func ParsePaymentPlan(value string) (PaymentPlan, error) {
	for _, candidate := range validPaymentPlans {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment plan %q", value)
}
