package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ovenly/backend/internal/alerts"
	"github.com/ovenly/backend/internal/paymentstate"
	pkgdb "github.com/ovenly/backend/pkg/db"
	"github.com/ovenly/backend/pkg/db/models"
	"github.com/ovenly/backend/pkg/enums"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
	"github.com/ovenly/backend/pkg/logger"
)

const maxCreditAttempts = 3

type Action string

const (
	ActionCredited      Action = "credited"
	ActionAlreadyPaid   Action = "already_paid"
	ActionMarkedFailed  Action = "marked_failed"
	ActionPending       Action = "pending"
	ActionDuplicate     Action = "duplicate"
	ActionOrderNotFound Action = "order_not_found"
	ActionBlocked       Action = "blocked"
	ActionIgnored       Action = "ignored"
)

// Result describes what Apply did to the order.
type Result struct {
	AttemptID     uuid.UUID
	OrderID       *uuid.UUID
	Action        Action
	Increment     int64
	PaymentStatus enums.PaymentStatus
	AmountPaid    int64
	AmountDue     int64
}

// Recorded is the outcome of persisting a delivery.
type Recorded struct {
	AttemptID uuid.UUID
	Duplicate bool
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type alertNotifier interface {
	PaymentReceived(ctx context.Context, alert alerts.PaymentAlert) bool
}

type ProcessorParams struct {
	Repo   Repository
	Tx     txRunner
	Alerts alertNotifier
	Runner Runner
	Logger *logger.Logger
	Now    func() time.Time
}

// Processor records provider deliveries and applies them to the order ledger.
type Processor struct {
	repo   Repository
	tx     txRunner
	alerts alertNotifier
	runner Runner
	logg   *logger.Logger
	now    func() time.Time
}

func NewProcessor(params ProcessorParams) (*Processor, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Runner == nil {
		params.Runner = SyncRunner{}
	}
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Processor{
		repo:   params.Repo,
		tx:     params.Tx,
		alerts: params.Alerts,
		runner: params.Runner,
		logg:   params.Logger,
		now:    params.Now,
	}, nil
}

// Ingest records a webhook delivery and schedules its ledger update on the
// runner. The caller acknowledges the provider as soon as Ingest returns.
func (p *Processor) Ingest(ctx context.Context, ev Event) (Recorded, error) {
	rec, err := p.Record(ctx, ev)
	if err != nil || rec.Duplicate {
		return rec, err
	}
	attemptID := rec.AttemptID
	p.runner.Go(ctx, func(ctx context.Context) {
		if _, err := p.Apply(ctx, attemptID); err != nil {
			p.logg.Error(p.logg.WithField(ctx, "attempt_id", attemptID.String()), "apply payment delivery failed", err)
		}
	})
	return rec, nil
}

// Record persists the delivery as an unprocessed attempt. A delivery whose
// receipt or session was already applied to an order is reported as a
// duplicate; an attempt claimed without an order is reopened.
func (p *Processor) Record(ctx context.Context, ev Event) (Recorded, error) {
	if !ev.HasKey() {
		return Recorded{}, pkgerrors.New(pkgerrors.CodeValidation, "payment event needs a checkout request id or receipt")
	}
	now := p.now()

	existing, err := p.findAttempt(ctx, p.repo, ev)
	if err != nil {
		return Recorded{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempt")
	}
	if existing == nil {
		attempt := attemptFromEvent(ev, now)
		err = p.repo.CreateAttempt(ctx, attempt)
		if err == nil {
			return Recorded{AttemptID: attempt.ID}, nil
		}
		if !pkgdb.IsUniqueViolation(err, "") {
			return Recorded{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment attempt")
		}
		// lost the insert race to a concurrent delivery
		existing, err = p.findAttempt(ctx, p.repo, ev)
		if err != nil || existing == nil {
			return Recorded{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment attempt")
		}
	}

	if existing.Processed() {
		if existing.OrderID != nil {
			return Recorded{AttemptID: existing.ID, Duplicate: true}, nil
		}
		// claimed before any order knew the session; give it another go
		reopened, err := p.repo.ReopenUnmatchedAttempt(ctx, existing.ID, now)
		if err != nil {
			return Recorded{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reopen payment attempt")
		}
		if !reopened {
			return Recorded{AttemptID: existing.ID, Duplicate: true}, nil
		}
	}
	// a pending report never overwrites a final one
	if ev.Outcome != OutcomePending || existing.Outcome == string(OutcomePending) {
		refreshed := attemptFromEvent(ev, now)
		refreshed.ID = existing.ID
		if err := p.repo.RefreshAttempt(ctx, refreshed); err != nil {
			if pkgdb.IsUniqueViolation(err, "") {
				return Recorded{AttemptID: existing.ID, Duplicate: true}, nil
			}
			return Recorded{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment attempt")
		}
	}
	return Recorded{AttemptID: existing.ID}, nil
}

func (p *Processor) findAttempt(ctx context.Context, repo Repository, ev Event) (*models.PaymentAttempt, error) {
	if ev.Receipt != "" {
		attempt, err := repo.FindAttemptByReceipt(ctx, ev.Receipt)
		if err != nil || attempt != nil {
			return attempt, err
		}
	}
	if ev.SessionID != "" {
		return repo.FindAttemptBySession(ctx, ev.SessionID)
	}
	return nil, nil
}

// Apply runs the ledger update for one recorded attempt inside a single
// transaction. Pending attempts stay unprocessed; everything else is
// claimed exactly once.
func (p *Processor) Apply(ctx context.Context, attemptID uuid.UUID) (Result, error) {
	res := Result{AttemptID: attemptID}
	var alert *alerts.PaymentAlert

	err := p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := p.repo.WithTx(tx)
		attempt, err := repo.FindAttemptByID(ctx, attemptID)
		if err != nil {
			if pkgdb.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment attempt not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempt")
		}
		if attempt.Processed() {
			res.Action = ActionDuplicate
			return nil
		}

		order, ledger, err := p.resolveOrder(ctx, repo, attempt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve order")
		}
		now := p.now()

		if Outcome(attempt.Outcome) == OutcomePending {
			res.Action = ActionPending
			if order != nil {
				res.OrderID = &order.ID
				res.fill(order)
				if order.PaymentStatus == enums.PaymentStatusPending && sessionIsLatest(order, attempt) {
					ok, err := repo.MarkInitiated(ctx, order.ID, now)
					if err != nil {
						return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order initiated")
					}
					if ok {
						res.PaymentStatus = enums.PaymentStatusInitiated
					}
				}
			}
			return nil
		}

		var orderID *uuid.UUID
		if order != nil {
			orderID = &order.ID
		}
		claimed, err := repo.ClaimAttempt(ctx, attempt.ID, orderID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim payment attempt")
		}
		if !claimed {
			res.Action = ActionDuplicate
			return nil
		}
		if order == nil {
			res.Action = ActionOrderNotFound
			return nil
		}
		res.OrderID = &order.ID

		var ledgerStatus enums.LedgerStatus
		switch Outcome(attempt.Outcome) {
		case OutcomeSuccess:
			ledgerStatus = enums.LedgerStatusSuccess
			order, err = p.credit(ctx, repo, order, attempt, ledger, now, &res)
			if err != nil {
				return err
			}
			if res.Action == ActionCredited {
				alert = buildAlert(order, attempt, res.Increment, now)
			}
		default:
			ledgerStatus = enums.LedgerStatusFailed
			if err := p.fail(ctx, repo, order, attempt, now, &res); err != nil {
				return err
			}
		}

		if attempt.CheckoutRequestID != nil {
			entry := ledgerEntryFor(order.ID, attempt, ledger, ledgerStatus, res.Increment, now)
			if err := repo.UpsertLedgerEntry(ctx, entry); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert ledger entry")
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	p.logResult(ctx, res)
	if alert != nil && p.alerts != nil {
		p.alerts.PaymentReceived(ctx, *alert)
	}
	return res, nil
}

func (p *Processor) credit(ctx context.Context, repo Repository, order *models.Order, attempt *models.PaymentAttempt, ledger *models.PaymentLedgerEntry, now time.Time, res *Result) (*models.Order, error) {
	receipt := deref(attempt.Receipt)
	for try := 0; try < maxCreditAttempts; try++ {
		res.fill(order)
		if order.PaymentStatus == enums.PaymentStatusPaid {
			res.Action = ActionAlreadyPaid
			return order, nil
		}
		if receipt != "" && deref(order.TransactionID) == receipt {
			res.Action = ActionDuplicate
			return order, nil
		}

		increment := creditIncrement(order, attempt, ledger)
		nextPaid := min(order.TotalAmount, order.AmountPaid+increment)
		if nextPaid <= order.AmountPaid {
			res.Action = ActionIgnored
			return order, nil
		}
		nextDue := max(order.TotalAmount-nextPaid, 0)
		nextStatus := enums.PaymentStatusDepositPaid
		if nextPaid >= order.TotalAmount {
			nextStatus = enums.PaymentStatusPaid
		}
		if !paymentstate.CanTransitionPayment(order.PaymentStatus, nextStatus) {
			res.Action = ActionBlocked
			return order, nil
		}

		ok, err := repo.ApplyCredit(ctx, CreditUpdate{
			OrderID:      order.ID,
			ObservedPaid: order.AmountPaid,
			NextPaid:     nextPaid,
			NextDue:      nextDue,
			NextStatus:   nextStatus,
			Receipt:      receipt,
			ClearRequest: nextStatus == enums.PaymentStatusPaid || sessionIsLatest(order, attempt),
			At:           now,
		})
		if err != nil {
			return order, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply payment credit")
		}
		if ok {
			res.Action = ActionCredited
			res.Increment = nextPaid - order.AmountPaid
			res.AmountPaid = nextPaid
			res.AmountDue = nextDue
			res.PaymentStatus = nextStatus
			return order, nil
		}

		// another delivery moved the order; re-read and decide again
		reloaded, err := repo.FindOrderByID(ctx, order.ID)
		if err != nil {
			return order, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		if reloaded == nil {
			return order, pkgerrors.New(pkgerrors.CodeNotFound, "order disappeared during payment update")
		}
		order = reloaded
	}
	return order, pkgerrors.New(pkgerrors.CodeDependency, "order kept changing during payment update")
}

func (p *Processor) fail(ctx context.Context, repo Repository, order *models.Order, attempt *models.PaymentAttempt, now time.Time, res *Result) error {
	res.fill(order)
	res.Action = ActionIgnored
	if !sessionIsLatest(order, attempt) {
		return nil
	}
	switch order.PaymentStatus {
	case enums.PaymentStatusPending, enums.PaymentStatusInitiated:
		ok, err := repo.MarkFailed(ctx, order.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		if ok {
			res.Action = ActionMarkedFailed
			res.PaymentStatus = enums.PaymentStatusFailed
		}
	case enums.PaymentStatusPaid:
		res.Action = ActionAlreadyPaid
	case enums.PaymentStatusDepositPaid:
		// the balance push failed; the deposit stands
		if session := deref(attempt.CheckoutRequestID); session != "" {
			if err := repo.ClearRequest(ctx, order.ID, session, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear balance request")
			}
		}
	}
	return nil
}

// resolveOrder finds the order by session ledger, then the order's latest
// session, then the attempt's own order id or reference.
func (p *Processor) resolveOrder(ctx context.Context, repo Repository, attempt *models.PaymentAttempt) (*models.Order, *models.PaymentLedgerEntry, error) {
	var (
		order  *models.Order
		ledger *models.PaymentLedgerEntry
		err    error
	)
	if session := deref(attempt.CheckoutRequestID); session != "" {
		if ledger, err = repo.FindLedgerEntry(ctx, session); err != nil {
			return nil, nil, err
		}
		if ledger != nil {
			if order, err = repo.FindOrderByID(ctx, ledger.OrderID); err != nil {
				return nil, nil, err
			}
		}
		if order == nil {
			if order, err = repo.FindOrderBySession(ctx, session); err != nil {
				return nil, nil, err
			}
		}
	}
	if order == nil && attempt.OrderID != nil {
		if order, err = repo.FindOrderByID(ctx, *attempt.OrderID); err != nil {
			return nil, nil, err
		}
	}
	if order == nil && attempt.OrderRef != nil {
		ref := strings.TrimSpace(*attempt.OrderRef)
		if id, parseErr := uuid.Parse(ref); parseErr == nil {
			order, err = repo.FindOrderByID(ctx, id)
		} else if ref != "" {
			order, err = repo.FindOrderByNumber(ctx, strings.ToUpper(ref))
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return order, ledger, nil
}

// creditIncrement picks the amount this delivery pays: the reported
// amount, the session's requested amount, the outstanding push amount,
// then the deposit or the full total.
func creditIncrement(order *models.Order, attempt *models.PaymentAttempt, ledger *models.PaymentLedgerEntry) int64 {
	if attempt.Amount != nil && *attempt.Amount > 0 {
		return *attempt.Amount
	}
	if ledger != nil && ledger.Amount > 0 {
		return ledger.Amount
	}
	if order.LastRequestAmount != nil && *order.LastRequestAmount > 0 {
		return *order.LastRequestAmount
	}
	if order.PaymentPlan == enums.PaymentPlanDeposit && order.AmountPaid == 0 && order.DepositAmount > 0 {
		return order.DepositAmount
	}
	return order.TotalAmount
}

// sessionIsLatest reports whether the attempt refers to the order's most
// recent push. Attempts without a session and orders without a push match.
func sessionIsLatest(order *models.Order, attempt *models.PaymentAttempt) bool {
	session := deref(attempt.CheckoutRequestID)
	if session == "" || order.LastCheckoutRequestID == nil {
		return true
	}
	return *order.LastCheckoutRequestID == session
}

func ledgerEntryFor(orderID uuid.UUID, attempt *models.PaymentAttempt, existing *models.PaymentLedgerEntry, status enums.LedgerStatus, increment int64, now time.Time) *models.PaymentLedgerEntry {
	entry := &models.PaymentLedgerEntry{
		CheckoutRequestID: *attempt.CheckoutRequestID,
		OrderID:           orderID,
		MerchantRequestID: attempt.MerchantRequestID,
		Status:            status,
		Receipt:           attempt.Receipt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	switch {
	case attempt.Amount != nil && *attempt.Amount > 0:
		entry.Amount = *attempt.Amount
	case existing != nil:
		entry.Amount = existing.Amount
	default:
		entry.Amount = increment
	}
	if existing != nil && entry.Receipt == nil {
		entry.Receipt = existing.Receipt
	}
	return entry
}

func attemptFromEvent(ev Event, now time.Time) *models.PaymentAttempt {
	raw := string(ev.Raw)
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	attempt := &models.PaymentAttempt{
		ID:                uuid.New(),
		Source:            ev.Source,
		CheckoutRequestID: optional(ev.SessionID),
		MerchantRequestID: optional(ev.MerchantRequestID),
		Receipt:           optional(ev.Receipt),
		OrderRef:          optional(ev.OrderRef),
		Outcome:           string(ev.Outcome),
		ResultCode:        ev.ResultCode.Ptr(),
		ResultDesc:        optional(ev.ResultDesc),
		Phone:             optional(ev.Phone),
		RawPayload:        raw,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if ev.Amount > 0 {
		amount := ev.Amount
		attempt.Amount = &amount
	}
	return attempt
}

func buildAlert(order *models.Order, attempt *models.PaymentAttempt, increment int64, now time.Time) *alerts.PaymentAlert {
	alert := &alerts.PaymentAlert{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		CustomerName: order.CustomerName,
		Phone:        order.Phone,
		Source:       attempt.Source,
		Amount:       increment,
		AmountPaid:   min(order.TotalAmount, order.AmountPaid+increment),
		Receipt:      deref(attempt.Receipt),
		OccurredAt:   now,
	}
	alert.AmountDue = max(order.TotalAmount-alert.AmountPaid, 0)
	alert.PaymentStatus = enums.PaymentStatusDepositPaid
	if alert.AmountDue == 0 {
		alert.PaymentStatus = enums.PaymentStatusPaid
	}
	return alert
}

func (r *Result) fill(order *models.Order) {
	r.PaymentStatus = order.PaymentStatus
	r.AmountPaid = order.AmountPaid
	r.AmountDue = order.AmountDue
}

func (p *Processor) logResult(ctx context.Context, res Result) {
	fields := map[string]any{
		"attempt_id":     res.AttemptID.String(),
		"action":         res.Action,
		"increment":      res.Increment,
		"payment_status": res.PaymentStatus,
	}
	if res.OrderID != nil {
		fields["order_id"] = res.OrderID.String()
	}
	p.logg.Info(p.logg.WithFields(ctx, fields), "payment delivery applied")
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
