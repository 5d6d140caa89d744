package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ovenly/backend/internal/idempotency"
	"github.com/ovenly/backend/internal/orders"
	"github.com/ovenly/backend/internal/paymentstate"
	"github.com/ovenly/backend/internal/ratelimit"
	"github.com/ovenly/backend/pkg/db/models"
	"github.com/ovenly/backend/pkg/enums"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
	"github.com/ovenly/backend/pkg/logger"
	"github.com/ovenly/backend/pkg/mpesa"
)

const ScopeSTKPush = "stk_push"

type stkClient interface {
	STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
}

// STKPushInput asks for a payment prompt on the customer's phone.
type STKPushInput struct {
	OrderRef      string `json:"-"`
	Phone         string `json:"phone" validate:"required"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type STKPushResult struct {
	OrderID           uuid.UUID `json:"order_id"`
	CheckoutRequestID string    `json:"checkout_request_id"`
	MerchantRequestID string    `json:"merchant_request_id"`
	CustomerMessage   string    `json:"customer_message"`
	Amount            int64     `json:"amount"`
}

type STKServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Client      stkClient
	Idempotency *idempotency.Store
	Limiter     ratelimit.Limiter
	Cooldown    time.Duration
	Logger      *logger.Logger
	Now         func() time.Time
}

// STKService starts deposit and balance pushes for M-Pesa orders.
type STKService struct {
	repo     Repository
	tx       txRunner
	client   stkClient
	idem     *idempotency.Store
	limiter  ratelimit.Limiter
	cooldown time.Duration
	logg     *logger.Logger
	now      func() time.Time
}

func NewSTKService(params STKServiceParams) (*STKService, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Client == nil {
		return nil, fmt.Errorf("mpesa client required")
	}
	if params.Limiter == nil {
		return nil, fmt.Errorf("rate limiter required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	return &STKService{
		repo:     params.Repo,
		tx:       params.Tx,
		client:   params.Client,
		idem:     params.Idempotency,
		limiter:  params.Limiter,
		cooldown: params.Cooldown,
		logg:     params.Logger,
		now:      params.Now,
	}, nil
}

// Push requests the amount currently owed: the deposit for an untouched
// deposit order, otherwise the outstanding balance.
func (s *STKService) Push(ctx context.Context, input STKPushInput, idempotencyKey string) (STKPushResult, error) {
	hash := idempotency.HashRequest(input)
	scopeKey := strings.TrimSpace(idempotencyKey)
	if scopeKey != "" {
		scopeKey = strings.ToUpper(strings.TrimSpace(input.OrderRef)) + ":" + scopeKey
	}
	return idempotency.Run(ctx, s.idem, s.logg, ScopeSTKPush, scopeKey, hash, func(ctx context.Context) (STKPushResult, error) {
		return s.push(ctx, input)
	})
}

func (s *STKService) push(ctx context.Context, input STKPushInput) (STKPushResult, error) {
	phone, err := orders.NormalizePhone(input.Phone)
	if err != nil {
		return STKPushResult{}, err
	}
	order, err := s.lookup(ctx, input.OrderRef)
	if err != nil {
		return STKPushResult{}, err
	}
	if order.Phone != phone {
		return STKPushResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.PaymentMethod != enums.PaymentMethodMpesa {
		return STKPushResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid through M-Pesa")
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return STKPushResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}
	amount := PushAmount(order)
	if amount <= 0 {
		return STKPushResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "nothing is owed on this order")
	}

	if s.cooldown > 0 {
		decision, err := s.limiter.Allow(ctx, "stk:order:"+order.ID.String(), 1, s.cooldown)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "stk cooldown limiter unavailable")
		} else if !decision.Allowed {
			return STKPushResult{}, orders.RateLimited(decision)
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":       order.ID.String(),
		"amount":         amount,
		"correlation_id": input.CorrelationID,
	})

	resp, err := s.client.STKPush(ctx, mpesa.STKPushRequest{
		Amount:           amount,
		Phone:            phone,
		AccountReference: order.OrderNumber,
		Description:      "Order " + order.OrderNumber,
	})
	if err != nil {
		s.logg.Error(logCtx, "stk push rejected", err)
		if pkgerrors.As(err) != nil {
			return STKPushResult{}, err
		}
		return STKPushResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stk push failed")
	}
	if strings.TrimSpace(resp.CheckoutRequestID) == "" {
		return STKPushResult{}, pkgerrors.New(pkgerrors.CodeDependency, "stk push accepted without a checkout request id")
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		recorded, err := repo.RecordPush(ctx, PushUpdate{
			OrderID:       order.ID,
			SessionID:     resp.CheckoutRequestID,
			Amount:        amount,
			MarkInitiated: paymentstate.CanTransitionPayment(order.PaymentStatus, enums.PaymentStatusInitiated),
			At:            now,
		})
		if err != nil {
			return err
		}
		if !recorded {
			s.logg.Warn(logCtx, "order settled while the push was in flight")
		}
		// the callback may have beaten this commit and been claimed unmatched;
		// reopen it so the next reconciliation pass replays it
		early, err := repo.FindAttemptBySession(ctx, resp.CheckoutRequestID)
		if err != nil {
			return err
		}
		if early != nil && early.Processed() && early.OrderID == nil {
			if _, err := repo.ReopenUnmatchedAttempt(ctx, early.ID, now); err != nil {
				return err
			}
		}
		return repo.UpsertLedgerEntry(ctx, &models.PaymentLedgerEntry{
			CheckoutRequestID: resp.CheckoutRequestID,
			OrderID:           order.ID,
			MerchantRequestID: optional(resp.MerchantRequestID),
			Amount:            amount,
			Status:            enums.LedgerStatusInitiated,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	})
	if err != nil {
		// The prompt already reached the phone but the order never learned
		// the session. STK callbacks carry no order reference, so that
		// payment needs staff follow-up from this log line.
		s.logg.Error(s.logg.WithField(logCtx, "checkout_request_id", resp.CheckoutRequestID), "record stk push failed", err)
		return STKPushResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stk push")
	}

	s.logg.Info(s.logg.WithField(logCtx, "checkout_request_id", resp.CheckoutRequestID), "stk push sent")
	return STKPushResult{
		OrderID:           order.ID,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
		Amount:            amount,
	}, nil
}

func (s *STKService) lookup(ctx context.Context, ref string) (*models.Order, error) {
	ref = strings.TrimSpace(ref)
	var (
		order *models.Order
		err   error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		order, err = s.repo.FindOrderByID(ctx, id)
	} else if ref != "" {
		order, err = s.repo.FindOrderByNumber(ctx, strings.ToUpper(ref))
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// PushAmount is what the next STK push for order should request.
func PushAmount(order *models.Order) int64 {
	if order.PaymentPlan == enums.PaymentPlanDeposit && order.AmountPaid == 0 && order.DepositAmount > 0 {
		return order.DepositAmount
	}
	return order.AmountDue
}
