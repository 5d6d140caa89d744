package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ovenly/backend/pkg/enums"
)

// OrderItem is the product line of an order. Orders currently carry exactly one.
type OrderItem struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	ProductType enums.ProductType `gorm:"column:product_type;type:product_type;not null"`
	Name        string            `gorm:"column:name;not null"`
	Size        string            `gorm:"column:size;not null"`
	Flavour     *string           `gorm:"column:flavour"`
	Toppings    []string          `gorm:"column:toppings;type:jsonb;serializer:json"`
	Message     *string           `gorm:"column:message"`
	Quantity    int               `gorm:"column:quantity;not null"`
	UnitPrice   int64             `gorm:"column:unit_price;not null"`
	LineTotal   int64             `gorm:"column:line_total;not null"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (OrderItem) TableName() string { return "order_items" }
