package enums

import "fmt"

// LedgerStatus is the per-session outcome recorded in the payment ledger.
type LedgerStatus string

const (
	LedgerStatusInitiated LedgerStatus = "initiated"
	LedgerStatusSuccess   LedgerStatus = "success"
	LedgerStatusFailed    LedgerStatus = "failed"
)

var validLedgerStatuses = []LedgerStatus{
	LedgerStatusInitiated,
	LedgerStatusSuccess,
	LedgerStatusFailed,
}

// String implements fmt.Stringer.
func (l LedgerStatus) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LedgerStatus.
func (l LedgerStatus) IsValid() bool {
	for _, candidate := range validLedgerStatuses {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLedgerStatus converts raw input into a LedgerStatus.
func ParseLedgerStatus(value string) (LedgerStatus, error) {
	for _, candidate := range validLedgerStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger status %q", value)
}
