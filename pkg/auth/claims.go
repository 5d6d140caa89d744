package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ovenly/backend/pkg/enums"
)

// StaffTokenPayload captures the data available when minting a staff JWT.
type StaffTokenPayload struct {
	StaffID uuid.UUID
	Name    string
	Role    enums.StaffRole
	JTI     string
}

// StaffClaims is the typed JWT carried by back-office callers.
type StaffClaims struct {
	StaffID uuid.UUID       `json:"staff_id"`
	Name    string          `json:"name,omitempty"`
	Role    enums.StaffRole `json:"role"`
	jwt.RegisteredClaims
}
