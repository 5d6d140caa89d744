package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ovenly/backend/pkg/db/models"
	"github.com/ovenly/backend/pkg/enums"
)

// CreditUpdate is a guarded ledger increment. It only lands when the order
// is not paid yet and amount_paid still equals ObservedPaid.
type CreditUpdate struct {
	OrderID      uuid.UUID
	ObservedPaid int64
	NextPaid     int64
	NextDue      int64
	NextStatus   enums.PaymentStatus
	Receipt      string
	ClearRequest bool
	At           time.Time
}

// PushUpdate records an accepted STK push on its order.
type PushUpdate struct {
	OrderID       uuid.UUID
	SessionID     string
	Amount        int64
	MarkInitiated bool
	At            time.Time
}

// CandidateFilter selects orders with an outstanding push between Since
// and Before.
type CandidateFilter struct {
	Since  time.Time
	Before time.Time
	Limit  int
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindAttemptByID(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error)
	FindAttemptByReceipt(ctx context.Context, receipt string) (*models.PaymentAttempt, error)
	FindAttemptBySession(ctx context.Context, sessionID string) (*models.PaymentAttempt, error)
	CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
	RefreshAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
	ClaimAttempt(ctx context.Context, id uuid.UUID, orderID *uuid.UUID, at time.Time) (bool, error)
	ReopenUnmatchedAttempt(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListStrandedAttempts(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentAttempt, error)

	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	FindOrderBySession(ctx context.Context, sessionID string) (*models.Order, error)
	ApplyCredit(ctx context.Context, update CreditUpdate) (bool, error)
	MarkFailed(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error)
	MarkInitiated(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error)
	ClearRequest(ctx context.Context, orderID uuid.UUID, sessionID string, at time.Time) error
	RecordPush(ctx context.Context, update PushUpdate) (bool, error)
	ListReconcileCandidates(ctx context.Context, filter CandidateFilter) ([]models.Order, error)

	FindLedgerEntry(ctx context.Context, sessionID string) (*models.PaymentLedgerEntry, error)
	UpsertLedgerEntry(ctx context.Context, entry *models.PaymentLedgerEntry) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// first returns (nil, nil) when nothing matches.
func first[T any](q *gorm.DB) (*T, error) {
	var out T
	if err := q.First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *repository) FindAttemptByID(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *repository) FindAttemptByReceipt(ctx context.Context, receipt string) (*models.PaymentAttempt, error) {
	return first[models.PaymentAttempt](r.db.WithContext(ctx).Where("receipt = ?", receipt))
}

func (r *repository) FindAttemptBySession(ctx context.Context, sessionID string) (*models.PaymentAttempt, error) {
	return first[models.PaymentAttempt](r.db.WithContext(ctx).Where("checkout_request_id = ?", sessionID))
}

func (r *repository) CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

// RefreshAttempt overwrites the outcome of an unprocessed attempt with a
// later delivery for the same key.
func (r *repository) RefreshAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	updates := map[string]any{
		"source":      attempt.Source,
		"outcome":     attempt.Outcome,
		"result_code": attempt.ResultCode,
		"result_desc": attempt.ResultDesc,
		"raw_payload": attempt.RawPayload,
		"updated_at":  attempt.UpdatedAt,
	}
	if attempt.Amount != nil {
		updates["amount"] = attempt.Amount
	}
	if attempt.Receipt != nil {
		updates["receipt"] = attempt.Receipt
	}
	if attempt.Phone != nil {
		updates["phone"] = attempt.Phone
	}
	if attempt.MerchantRequestID != nil {
		updates["merchant_request_id"] = attempt.MerchantRequestID
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("id = ? AND processed_at IS NULL", attempt.ID).
		Updates(updates).Error
}

// ClaimAttempt marks the attempt processed. Only one caller can win.
func (r *repository) ClaimAttempt(ctx context.Context, id uuid.UUID, orderID *uuid.UUID, at time.Time) (bool, error) {
	updates := map[string]any{"processed_at": at, "updated_at": at}
	if orderID != nil {
		updates["order_id"] = *orderID
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReopenUnmatchedAttempt clears processed_at on an attempt that was claimed
// without an order, so a later delivery or push can still credit it.
func (r *repository) ReopenUnmatchedAttempt(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("id = ? AND processed_at IS NOT NULL AND order_id IS NULL", id).
		Updates(map[string]any{"processed_at": nil, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListStrandedAttempts(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentAttempt, error) {
	var attempts []models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("processed_at IS NULL AND outcome <> ? AND created_at <= ?", string(OutcomePending), olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

func (r *repository) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return first[models.Order](r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	return first[models.Order](r.db.WithContext(ctx).Where("order_number = ?", number))
}

func (r *repository) FindOrderBySession(ctx context.Context, sessionID string) (*models.Order, error) {
	return first[models.Order](r.db.WithContext(ctx).Where("last_checkout_request_id = ?", sessionID))
}

func (r *repository) ApplyCredit(ctx context.Context, u CreditUpdate) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", u.OrderID).
		Where("payment_status <> ?", enums.PaymentStatusPaid).
		Where("amount_paid = ?", u.ObservedPaid)
	updates := map[string]any{
		"amount_paid":        u.NextPaid,
		"amount_due":         u.NextDue,
		"payment_status":     u.NextStatus,
		"payment_updated_at": u.At,
		"updated_at":         u.At,
	}
	if u.Receipt != "" {
		q = q.Where("(transaction_id IS NULL OR transaction_id <> ?)", u.Receipt)
		updates["transaction_id"] = u.Receipt
	}
	if u.ClearRequest {
		updates["last_request_amount"] = nil
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkFailed fails a push that has not moved money yet.
func (r *repository) MarkFailed(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status IN ?", orderID, []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusInitiated}).
		Updates(map[string]any{
			"payment_status":      enums.PaymentStatusFailed,
			"last_request_amount": nil,
			"payment_updated_at":  at,
			"updated_at":          at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkInitiated(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, enums.PaymentStatusPending).
		Updates(map[string]any{"payment_status": enums.PaymentStatusInitiated, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ClearRequest drops the outstanding push amount if sessionID is still the
// order's latest push.
func (r *repository) ClearRequest(ctx context.Context, orderID uuid.UUID, sessionID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND last_checkout_request_id = ?", orderID, sessionID).
		Updates(map[string]any{"last_request_amount": nil, "updated_at": at}).Error
}

func (r *repository) RecordPush(ctx context.Context, u PushUpdate) (bool, error) {
	updates := map[string]any{
		"last_checkout_request_id": u.SessionID,
		"last_request_amount":      u.Amount,
		"last_push_at":             u.At,
		"updated_at":               u.At,
	}
	if u.MarkInitiated {
		updates["payment_status"] = enums.PaymentStatusInitiated
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", u.OrderID, enums.PaymentStatusPaid).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListReconcileCandidates returns M-Pesa orders whose latest push is still
// unresolved. deposit_paid orders qualify only while a balance push is
// outstanding.
func (r *repository) ListReconcileCandidates(ctx context.Context, f CandidateFilter) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("payment_method = ?", enums.PaymentMethodMpesa).
		Where("last_checkout_request_id IS NOT NULL").
		Where("(payment_status IN ? OR (payment_status = ? AND last_request_amount > 0))",
			[]enums.PaymentStatus{enums.PaymentStatusInitiated, enums.PaymentStatusPending},
			enums.PaymentStatusDepositPaid).
		Where("COALESCE(last_push_at, created_at) >= ?", f.Since).
		Where("COALESCE(last_push_at, created_at) <= ?", f.Before).
		Order("COALESCE(last_push_at, created_at) ASC").
		Limit(f.Limit).
		Find(&orders).Error
	return orders, err
}

func (r *repository) FindLedgerEntry(ctx context.Context, sessionID string) (*models.PaymentLedgerEntry, error) {
	return first[models.PaymentLedgerEntry](r.db.WithContext(ctx).Where("checkout_request_id = ?", sessionID))
}

func (r *repository) UpsertLedgerEntry(ctx context.Context, entry *models.PaymentLedgerEntry) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "checkout_request_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"order_id", "amount", "status", "receipt", "updated_at"}),
		}).
		Create(entry).Error
}
