package orders

import (
	"strings"

	pkgerrors "github.com/ovenly/backend/pkg/errors"
)

// NormalizePhone converts Kenyan mobile numbers to the 2547XXXXXXXX /
// 2541XXXXXXXX form M-Pesa expects. Accepted inputs include 0712345678,
// 712345678, +254712345678 and 254112345678, with spaces or dashes.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '(', r == ')':
		case r == '+' && b.Len() == 0:
		default:
			return "", invalidPhone()
		}
	}
	digits := b.String()

	var local string
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "254"):
		local = digits[3:]
	case len(digits) == 10 && strings.HasPrefix(digits, "0"):
		local = digits[1:]
	case len(digits) == 9:
		local = digits
	default:
		return "", invalidPhone()
	}

	if local[0] != '7' && local[0] != '1' {
		return "", invalidPhone()
	}
	return "254" + local, nil
}

func invalidPhone() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "phone must be a Kenyan mobile number").
		WithDetails(map[string]any{"field": "phone"})
}
