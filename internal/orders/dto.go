package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/ovenly/backend/pkg/db/models"
	"github.com/ovenly/backend/pkg/enums"
)

// CreateOrderInput is the storefront order payload.
type CreateOrderInput struct {
	CustomerName  string              `json:"customer_name" validate:"required,min=2,max=120"`
	Phone         string              `json:"phone" validate:"required"`
	Email         *string             `json:"email,omitempty" validate:"omitempty,email"`
	ProductType   enums.ProductType   `json:"product_type" validate:"required,oneof=cake pizza"`
	Item          ItemInput           `json:"item"`
	Fulfilment    enums.Fulfilment    `json:"fulfilment" validate:"required,oneof=delivery pickup"`
	Delivery      *DeliveryInput      `json:"delivery,omitempty"`
	FulfilmentAt  *time.Time          `json:"fulfilment_at,omitempty"`
	PaymentMethod enums.PaymentMethod `json:"payment_method" validate:"required,oneof=mpesa cash"`
	PaymentPlan   enums.PaymentPlan   `json:"payment_plan,omitempty" validate:"omitempty,oneof=full deposit"`
	Notes         *string             `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// ItemInput describes the single product on an order.
type ItemInput struct {
	Size     string   `json:"size" validate:"required"`
	Flavour  *string  `json:"flavour,omitempty"`
	Toppings []string `json:"toppings,omitempty"`
	Message  *string  `json:"message,omitempty"`
	Quantity int      `json:"quantity" validate:"gte=1,lte=20"`
}

// DeliveryInput locates a delivery by zone, coordinates, or map place id.
type DeliveryInput struct {
	Zone    string   `json:"zone,omitempty"`
	Address string   `json:"address,omitempty" validate:"omitempty,max=300"`
	Lat     *float64 `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lng     *float64 `json:"lng,omitempty" validate:"omitempty,longitude"`
	PlaceID string   `json:"place_id,omitempty"`
}

func (d DeliveryInput) coordinates() (float64, float64, bool) {
	if d.Lat == nil || d.Lng == nil {
		return 0, 0, false
	}
	return *d.Lat, *d.Lng, true
}

// CreateOrderResult is returned (and replayed) for a created order.
type CreateOrderResult struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	PaymentPlan   enums.PaymentPlan   `json:"payment_plan"`
	Subtotal      int64               `json:"subtotal"`
	DeliveryFee   int64               `json:"delivery_fee"`
	TotalAmount   int64               `json:"total_amount"`
	DepositAmount int64               `json:"deposit_amount"`
	AmountDue     int64               `json:"amount_due"`
}

func resultFromOrder(order *models.Order) CreateOrderResult {
	return CreateOrderResult{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		PaymentPlan:   order.PaymentPlan,
		Subtotal:      order.Subtotal,
		DeliveryFee:   order.DeliveryFee,
		TotalAmount:   order.TotalAmount,
		DepositAmount: order.DepositAmount,
		AmountDue:     order.AmountDue,
	}
}

// OrderSnapshot is the customer-visible view of an order's balance.
type OrderSnapshot struct {
	ID            uuid.UUID           `json:"id"`
	OrderNumber   string              `json:"order_number"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	PaymentPlan   enums.PaymentPlan   `json:"payment_plan"`
	TotalAmount   int64               `json:"total_amount"`
	DepositAmount int64               `json:"deposit_amount"`
	AmountPaid    int64               `json:"amount_paid"`
	AmountDue     int64               `json:"amount_due"`
	PushPending   bool                `json:"push_pending"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// AttemptSnapshot summarizes the latest payment delivery for an order.
type AttemptSnapshot struct {
	Source     enums.PaymentSource `json:"source"`
	Outcome    string              `json:"outcome"`
	ResultCode *int                `json:"result_code,omitempty"`
	ResultDesc *string             `json:"result_desc,omitempty"`
	Amount     *int64              `json:"amount,omitempty"`
	Receipt    *string             `json:"receipt,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// BalanceView answers the customer-facing balance read.
type BalanceView struct {
	Order         OrderSnapshot    `json:"order"`
	LatestPayment *AttemptSnapshot `json:"latest_payment,omitempty"`
}

func snapshotOrder(order *models.Order) OrderSnapshot {
	return OrderSnapshot{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		PaymentPlan:   order.PaymentPlan,
		TotalAmount:   order.TotalAmount,
		DepositAmount: order.DepositAmount,
		AmountPaid:    order.AmountPaid,
		AmountDue:     order.AmountDue,
		PushPending:   order.HasActivePush(),
		UpdatedAt:     order.UpdatedAt,
	}
}

func snapshotAttempt(attempt *models.PaymentAttempt) *AttemptSnapshot {
	if attempt == nil {
		return nil
	}
	return &AttemptSnapshot{
		Source:     attempt.Source,
		Outcome:    attempt.Outcome,
		ResultCode: attempt.ResultCode,
		ResultDesc: attempt.ResultDesc,
		Amount:     attempt.Amount,
		Receipt:    attempt.Receipt,
		CreatedAt:  attempt.CreatedAt,
	}
}
