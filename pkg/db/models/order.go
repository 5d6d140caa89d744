package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ovenly/backend/pkg/enums"
)

// Order is a single cake or pizza order together with its payment ledger view.
// Amounts are whole Kenyan shillings; AmountPaid + AmountDue == TotalAmount.
type Order struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber           string              `gorm:"column:order_number;not null;uniqueIndex"`
	ProductType           enums.ProductType   `gorm:"column:product_type;type:product_type;not null"`
	CustomerName          string              `gorm:"column:customer_name;not null"`
	Phone                 string              `gorm:"column:phone;not null"`
	Email                 *string             `gorm:"column:email"`
	Status                enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'order_received'"`
	PaymentMethod         enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`
	PaymentStatus         enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null"`
	PaymentPlan           enums.PaymentPlan   `gorm:"column:payment_plan;type:payment_plan;not null;default:'full'"`
	Fulfilment            enums.Fulfilment    `gorm:"column:fulfilment;type:fulfilment;not null"`
	DeliveryZone          *string             `gorm:"column:delivery_zone"`
	DeliveryAddress       *string             `gorm:"column:delivery_address"`
	DeliveryLat           *float64            `gorm:"column:delivery_lat"`
	DeliveryLng           *float64            `gorm:"column:delivery_lng"`
	FulfilmentAt          *time.Time          `gorm:"column:fulfilment_at"`
	Subtotal              int64               `gorm:"column:subtotal;not null"`
	DeliveryFee           int64               `gorm:"column:delivery_fee;not null;default:0"`
	TotalAmount           int64               `gorm:"column:total_amount;not null"`
	DepositAmount         int64               `gorm:"column:deposit_amount;not null;default:0"`
	AmountPaid            int64               `gorm:"column:amount_paid;not null;default:0"`
	AmountDue             int64               `gorm:"column:amount_due;not null"`
	LastRequestAmount     *int64              `gorm:"column:last_request_amount"`
	LastCheckoutRequestID *string             `gorm:"column:last_checkout_request_id;index"`
	TransactionID         *string             `gorm:"column:transaction_id"`
	Notes                 *string             `gorm:"column:notes"`
	PaymentUpdatedAt      *time.Time          `gorm:"column:payment_updated_at"`
	LastPushAt            *time.Time          `gorm:"column:last_push_at"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID;references:ID"`
}

func (Order) TableName() string { return "orders" }

// HasActivePush reports whether an STK push is outstanding for the order.
func (o Order) HasActivePush() bool {
	return o.LastRequestAmount != nil && *o.LastRequestAmount > 0
}
