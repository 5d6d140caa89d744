package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ovenly/backend/pkg/enums"
)

// PaymentAttempt is the audit row for one distinct provider delivery or query.
// A row with ProcessedAt set has already been applied to the order ledger.
type PaymentAttempt struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           *uuid.UUID          `gorm:"column:order_id;type:uuid;index"`
	Source            enums.PaymentSource `gorm:"column:source;type:payment_source;not null"`
	CheckoutRequestID *string             `gorm:"column:checkout_request_id;uniqueIndex"`
	MerchantRequestID *string             `gorm:"column:merchant_request_id"`
	Receipt           *string             `gorm:"column:receipt;uniqueIndex"`
	OrderRef          *string             `gorm:"column:order_ref"`
	Outcome           string              `gorm:"column:outcome;not null"`
	ResultCode        *int                `gorm:"column:result_code"`
	ResultDesc        *string             `gorm:"column:result_desc"`
	Amount            *int64              `gorm:"column:amount"`
	Phone             *string             `gorm:"column:phone"`
	RawPayload        string              `gorm:"column:raw_payload;type:jsonb;not null;default:'{}'"`
	ProcessedAt       *time.Time          `gorm:"column:processed_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentAttempt) TableName() string { return "payment_attempts" }

// Processed reports whether the ledger update for this delivery already ran.
func (p PaymentAttempt) Processed() bool {
	return p.ProcessedAt != nil
}
