package enums

import "fmt"

// IdempotencyStatus is the state of a protected operation.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusCompleted  IdempotencyStatus = "completed"
	IdempotencyStatusFailed     IdempotencyStatus = "failed"
)

var validIdempotencyStatuses = []IdempotencyStatus{
	IdempotencyStatusProcessing,
	IdempotencyStatusCompleted,
	IdempotencyStatusFailed,
}

// String implements fmt.Stringer.
func (i IdempotencyStatus) String() string {
	return string(i)
}

// IsValid reports whether the value is a known IdempotencyStatus.
func (i IdempotencyStatus) IsValid() bool {
	for _, candidate := range validIdempotencyStatuses {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseIdempotencyStatus converts raw input into a IdempotencyStatus.
func ParseIdempotencyStatus(value string) (IdempotencyStatus, error) {
	for _, candidate := range validIdempotencyStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid idempotency status %q", value)
}
