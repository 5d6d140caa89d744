package enums

import "fmt"

// ProductType is the family of goods an order is for.
type ProductType string

const (
	ProductTypeCake  ProductType = "cake"
	ProductTypePizza ProductType = "pizza"
)

var validProductTypes = []ProductType{
	ProductTypeCake,
	ProductTypePizza,
}

// String implements fmt.Stringer.
func (p ProductType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProductType.
func (p ProductType) IsValid() bool {
	for _, candidate := range validProductTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProductType converts raw input into a ProductType.
func ParseProductType(value string) (ProductType, error) {
	for _, candidate := range validProductTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product type %q", value)
}

// OrderPrefix is the single letter that starts order numbers for this product type.
func (p ProductType) OrderPrefix() string {
	switch p {
	case ProductTypePizza:
		return "P"
	default:
		return "C"
	}
}
