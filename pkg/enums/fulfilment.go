package enums

import "fmt"

// Fulfilment says how the order leaves the shop.
type Fulfilment string

const (
	FulfilmentDelivery Fulfilment = "delivery"
	FulfilmentPickup   Fulfilment = "pickup"
)

var validFulfilments = []Fulfilment{
	FulfilmentDelivery,
	FulfilmentPickup,
}

// String implements fmt.Stringer.
func (f Fulfilment) String() string {
	return string(f)
}

// IsValid reports whether the value is a known Fulfilment.
func (f Fulfilment) IsValid() bool {
	for _, candidate := range validFulfilments {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFulfilment converts raw input into a Fulfilment.
func ParseFulfilment(value string) (Fulfilment, error) {
	for _, candidate := range validFulfilments {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfilment %q", value)
}
