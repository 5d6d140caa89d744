package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ovenly/backend/pkg/enums"
)

// PaymentLedgerEntry records what was requested and observed for one STK session.
type PaymentLedgerEntry struct {
	CheckoutRequestID string             `gorm:"column:checkout_request_id;primaryKey"`
	OrderID           uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	MerchantRequestID *string            `gorm:"column:merchant_request_id"`
	Amount            int64              `gorm:"column:amount;not null"`
	Status            enums.LedgerStatus `gorm:"column:status;type:ledger_status;not null"`
	Receipt           *string            `gorm:"column:receipt"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentLedgerEntry) TableName() string { return "payment_ledger_entries" }
