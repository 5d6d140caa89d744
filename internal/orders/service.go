package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ovenly/backend/internal/idempotency"
	"github.com/ovenly/backend/internal/ratelimit"
	"github.com/ovenly/backend/pkg/config"
	pkgdb "github.com/ovenly/backend/pkg/db"
	"github.com/ovenly/backend/pkg/db/models"
	"github.com/ovenly/backend/pkg/enums"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
	"github.com/ovenly/backend/pkg/logger"
)

const (
	ScopeCreateOrder = "orders.create"

	orderNumberConstraint = "orders_order_number_key"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type busyChecker interface {
	Busy(ctx context.Context) bool
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Idempotency *idempotency.Store
	Limiter     ratelimit.Limiter
	Busy        busyChecker
	Catalog     PriceCatalog
	Fees        DeliveryFeeResolver
	Config      config.OrdersConfig
	Logger      *logger.Logger
	Numbers     NumberGenerator
	Now         func() time.Time
}

// Service owns order creation, staff status transitions and balance reads.
type Service struct {
	repo    Repository
	tx      txRunner
	idem    *idempotency.Store
	limiter ratelimit.Limiter
	busy    busyChecker
	catalog PriceCatalog
	fees    DeliveryFeeResolver
	cfg     config.OrdersConfig
	logg    *logger.Logger
	numbers NumberGenerator
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Limiter == nil {
		return nil, fmt.Errorf("rate limiter required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("price catalog required")
	}
	if params.Fees == nil {
		return nil, fmt.Errorf("delivery fee resolver required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Numbers == nil {
		params.Numbers = GenerateOrderNumber
	}
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	if params.Config.NumberRetries <= 0 {
		params.Config.NumberRetries = 3
	}
	if params.Config.DepositPercent <= 0 {
		params.Config.DepositPercent = 50
	}
	return &Service{
		repo:    params.Repo,
		tx:      params.Tx,
		idem:    params.Idempotency,
		limiter: params.Limiter,
		busy:    params.Busy,
		catalog: params.Catalog,
		fees:    params.Fees,
		cfg:     params.Config,
		logg:    params.Logger,
		numbers: params.Numbers,
		now:     params.Now,
	}, nil
}

// Create validates and persists an order. Calls sharing an idempotency key
// create at most one order and observe the same result.
func (s *Service) Create(ctx context.Context, input CreateOrderInput, idempotencyKey string) (CreateOrderResult, error) {
	hash := idempotency.HashRequest(input)
	return idempotency.Run(ctx, s.idem, s.logg, ScopeCreateOrder, idempotencyKey, hash, func(ctx context.Context) (CreateOrderResult, error) {
		order, err := s.create(ctx, input)
		if err != nil {
			return CreateOrderResult{}, err
		}
		return resultFromOrder(order), nil
	})
}

func (s *Service) create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	name := strings.TrimSpace(input.CustomerName)
	if name == "" {
		return nil, fieldError("customer_name", "customer name is required")
	}
	phone, err := NormalizePhone(input.Phone)
	if err != nil {
		return nil, err
	}
	if !input.ProductType.IsValid() {
		return nil, fieldError("product_type", "product type must be cake or pizza")
	}
	if !input.Fulfilment.IsValid() {
		return nil, fieldError("fulfilment", "fulfilment must be delivery or pickup")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, fieldError("payment_method", "payment method must be mpesa or cash")
	}
	plan := input.PaymentPlan
	if plan == "" {
		plan = enums.PaymentPlanFull
	}
	if !plan.IsValid() {
		return nil, fieldError("payment_plan", "payment plan must be full or deposit")
	}
	if plan == enums.PaymentPlanDeposit && !input.PaymentMethod.SupportsDeposit() {
		return nil, fieldError("payment_plan", "deposits are only taken through M-Pesa")
	}
	quantity := input.Item.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	if err := s.checkRateLimits(ctx, phone); err != nil {
		return nil, err
	}
	if s.busy != nil && s.busy.Busy(ctx) {
		return nil, pkgerrors.New(pkgerrors.CodeUnavailable, "we are not taking new orders right now, please try again later")
	}

	priced, err := s.catalog.Price(input.ProductType, input.Item)
	if err != nil {
		return nil, err
	}
	lineTotal := priced.UnitPrice * int64(quantity)

	var deliveryFee int64
	if input.Fulfilment == enums.FulfilmentDelivery {
		if input.Delivery == nil {
			return nil, fieldError("delivery", "delivery details are required")
		}
		deliveryFee, err = s.fees.Fee(ctx, *input.Delivery)
		if err != nil {
			if pkgerrors.As(err) == nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve delivery fee")
			}
			return nil, err
		}
	}

	total := lineTotal + deliveryFee
	if total < s.cfg.MinimumAmount {
		return nil, fieldError("item", "order total must be at least KES %d", s.cfg.MinimumAmount)
	}

	now := s.now()
	order := &models.Order{
		ID:            uuid.New(),
		ProductType:   input.ProductType,
		CustomerName:  name,
		Phone:         phone,
		Email:         trimmedPtr(input.Email),
		Status:        enums.OrderStatusReceived,
		PaymentMethod: input.PaymentMethod,
		PaymentStatus: initialPaymentStatus(input.PaymentMethod, input.Fulfilment),
		PaymentPlan:   plan,
		Fulfilment:    input.Fulfilment,
		FulfilmentAt:  input.FulfilmentAt,
		Subtotal:      lineTotal,
		DeliveryFee:   deliveryFee,
		TotalAmount:   total,
		AmountDue:     total,
		Notes:         trimmedPtr(input.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if plan == enums.PaymentPlanDeposit {
		order.DepositAmount = DepositFor(total, s.cfg.DepositPercent)
	}
	if d := input.Delivery; d != nil && input.Fulfilment == enums.FulfilmentDelivery {
		order.DeliveryZone = trimmedPtr(&d.Zone)
		order.DeliveryAddress = trimmedPtr(&d.Address)
		order.DeliveryLat = d.Lat
		order.DeliveryLng = d.Lng
	}

	item := models.OrderItem{
		ID:          uuid.New(),
		OrderID:     order.ID,
		ProductType: input.ProductType,
		Name:        priced.Name,
		Size:        strings.ToLower(strings.TrimSpace(input.Item.Size)),
		Flavour:     trimmedPtr(input.Item.Flavour),
		Toppings:    input.Item.Toppings,
		Message:     trimmedPtr(input.Item.Message),
		Quantity:    quantity,
		UnitPrice:   priced.UnitPrice,
		LineTotal:   lineTotal,
		CreatedAt:   now,
	}

	if err := s.insert(ctx, order, item); err != nil {
		return nil, err
	}
	order.Items = []models.OrderItem{item}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":       order.ID.String(),
		"order_number":   order.OrderNumber,
		"payment_method": order.PaymentMethod,
		"total_amount":   order.TotalAmount,
	})
	s.logg.Info(logCtx, "order created")
	return order, nil
}

// insert writes order and item in one transaction, regenerating the order
// number on collision.
func (s *Service) insert(ctx context.Context, order *models.Order, item models.OrderItem) error {
	var lastErr error
	for attempt := 0; attempt < s.cfg.NumberRetries; attempt++ {
		order.OrderNumber = s.numbers(order.ProductType, s.now())
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.CreateOrder(ctx, order); err != nil {
				return err
			}
			if err := repo.CreateItems(ctx, []models.OrderItem{item}); err != nil {
				s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "order item insert failed; order rolled back", err)
				return err
			}
			return nil
		})
		if err == nil {
			return nil
		}
		if !pkgdb.IsUniqueViolation(err, orderNumberConstraint) && !pkgdb.IsUniqueViolation(err, "order_number") {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		lastErr = err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, lastErr, "could not allocate an order number")
}

func (s *Service) checkRateLimits(ctx context.Context, phone string) error {
	checks := []struct {
		key    string
		limit  int
		window time.Duration
	}{
		{key: "orders:burst:" + phone, limit: s.cfg.BurstLimit, window: s.cfg.BurstWindow},
		{key: "orders:phone:" + phone, limit: s.cfg.PhoneWindowLimit, window: s.cfg.PhoneWindow},
	}
	for _, check := range checks {
		decision, err := s.limiter.Allow(ctx, check.key, check.limit, check.window)
		if err != nil {
			// limiter outages do not block orders
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order rate limiter unavailable")
			continue
		}
		if !decision.Allowed {
			return RateLimited(decision)
		}
	}
	return nil
}

// RateLimited builds the 429 error carrying retry_after_ms.
func RateLimited(decision ratelimit.Decision) error {
	return pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests, please wait before trying again").
		WithDetails(map[string]any{"retry_after_ms": decision.RetryAfterMs()})
}

func initialPaymentStatus(method enums.PaymentMethod, fulfilment enums.Fulfilment) enums.PaymentStatus {
	if method == enums.PaymentMethodCash {
		if fulfilment == enums.FulfilmentPickup {
			return enums.PaymentStatusPayOnPickup
		}
		return enums.PaymentStatusPayOnDelivery
	}
	return enums.PaymentStatusPending
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
