// Package reconciliation polls the provider for pushes whose callback never
// arrived and feeds the answers through the same ledger update webhooks use.
package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/ovenly/backend/internal/payments"
	"github.com/ovenly/backend/pkg/config"
	"github.com/ovenly/backend/pkg/db/models"
	"github.com/ovenly/backend/pkg/enums"
	"github.com/ovenly/backend/pkg/logger"
	"github.com/ovenly/backend/pkg/metrics"
	"github.com/ovenly/backend/pkg/mpesa"
)

type statusQuerier interface {
	QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*mpesa.STKStatus, error)
}

type candidateStore interface {
	ListReconcileCandidates(ctx context.Context, filter payments.CandidateFilter) ([]models.Order, error)
	ListStrandedAttempts(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentAttempt, error)
}

type ledgerApplier interface {
	Record(ctx context.Context, ev payments.Event) (payments.Recorded, error)
	Apply(ctx context.Context, attemptID uuid.UUID) (payments.Result, error)
}

// Summary counts what one pass did.
type Summary struct {
	Scanned      int `json:"scanned"`
	Queried      int `json:"queried"`
	Advanced     int `json:"advanced"`
	AlreadyPaid  int `json:"already_paid"`
	MarkedFailed int `json:"marked_failed"`
	Pending      int `json:"pending"`
	Errors       int `json:"errors"`
	Skipped      int `json:"skipped"`
	Replayed     int `json:"replayed"`
}

type ServiceParams struct {
	Store     candidateStore
	Processor ledgerApplier
	Client    statusQuerier
	Config    config.ReconciliationConfig
	Metrics   *metrics.PaymentMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type Service struct {
	store   candidateStore
	proc    ledgerApplier
	client  statusQuerier
	cfg     config.ReconciliationConfig
	metrics *metrics.PaymentMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("candidate store required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	if params.Client == nil {
		return nil, fmt.Errorf("status client required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	if params.Config.QueryTimeout <= 0 {
		params.Config.QueryTimeout = 8 * time.Second
	}
	return &Service{
		store:   params.Store,
		proc:    params.Processor,
		client:  params.Client,
		cfg:     params.Config,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     params.Now,
	}, nil
}

// Run performs one pass: query every candidate push, then replay attempts
// that were recorded but never applied. Per-order failures are counted and
// the pass continues; only listing failures are returned.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	var (
		summary Summary
		errs    error
	)
	now := s.now()

	candidates, err := s.store.ListReconcileCandidates(ctx, payments.CandidateFilter{
		Since:  now.Add(-s.cfg.Lookback()),
		Before: now.Add(-s.cfg.MinAge),
		Limit:  s.cfg.Batch(),
	})
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("list reconcile candidates: %w", err))
	}
	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		summary.Scanned++
		s.reconcileOrder(ctx, &candidates[i], &summary)
	}

	stranded, err := s.store.ListStrandedAttempts(ctx, now.Add(-s.cfg.MinAge), s.cfg.Batch())
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("list stranded attempts: %w", err))
	}
	for _, attempt := range stranded {
		if ctx.Err() != nil {
			break
		}
		res, err := s.proc.Apply(ctx, attempt.ID)
		if err != nil {
			summary.Errors++
			s.logg.Error(s.logg.WithField(ctx, "attempt_id", attempt.ID.String()), "replay payment attempt failed", err)
			continue
		}
		summary.Replayed++
		tally(&summary, res.Action)
	}

	s.observe(summary)
	s.logg.Info(s.logg.WithFields(ctx, summary.fields()), "payment reconciliation pass complete")
	return summary, errs
}

func (s *Service) reconcileOrder(ctx context.Context, order *models.Order, summary *Summary) {
	session := ""
	if order.LastCheckoutRequestID != nil {
		session = *order.LastCheckoutRequestID
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":            order.ID.String(),
		"checkout_request_id": session,
	})
	if session == "" {
		summary.Skipped++
		return
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	status, err := s.client.QuerySTKStatus(queryCtx, session)
	cancel()
	if err != nil {
		summary.Errors++
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "stk status query failed")
		return
	}
	summary.Queried++
	if status.ProviderError() {
		// transient; the attempt stays open for the callback or the next pass
		summary.Pending++
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"error_code":    status.ErrorCode,
			"error_message": status.ErrorMessage,
			"http_status":   status.HTTPStatus,
		}), "stk status query returned a provider error")
		return
	}

	ev := eventFromStatus(session, status)
	rec, err := s.proc.Record(ctx, ev)
	if err != nil {
		summary.Errors++
		s.logg.Error(logCtx, "record reconciliation result failed", err)
		return
	}
	if rec.Duplicate {
		summary.Skipped++
		return
	}
	res, err := s.proc.Apply(ctx, rec.AttemptID)
	if err != nil {
		summary.Errors++
		s.logg.Error(logCtx, "apply reconciliation result failed", err)
		return
	}
	tally(summary, res.Action)
}

func eventFromStatus(session string, status *mpesa.STKStatus) payments.Event {
	raw, _ := json.Marshal(status)
	return payments.Event{
		Source:            enums.PaymentSourceReconciliation,
		SessionID:         session,
		MerchantRequestID: status.MerchantRequestID,
		ResultCode:        status.ResultCode,
		ResultDesc:        status.ResultDesc,
		Outcome:           payments.ClassifyStatus(status),
		Raw:               raw,
	}
}

func tally(summary *Summary, action payments.Action) {
	switch action {
	case payments.ActionCredited:
		summary.Advanced++
	case payments.ActionAlreadyPaid:
		summary.AlreadyPaid++
	case payments.ActionMarkedFailed:
		summary.MarkedFailed++
	case payments.ActionPending:
		summary.Pending++
	default:
		summary.Skipped++
	}
}

func (s *Service) observe(summary Summary) {
	for result, n := range summary.counts() {
		s.metrics.AddReconciled(result, n)
	}
}

func (s Summary) counts() map[string]int {
	return map[string]int{
		"advanced":      s.Advanced,
		"already_paid":  s.AlreadyPaid,
		"marked_failed": s.MarkedFailed,
		"pending":       s.Pending,
		"errors":        s.Errors,
		"skipped":       s.Skipped,
		"replayed":      s.Replayed,
	}
}

func (s Summary) fields() map[string]any {
	fields := map[string]any{"scanned": s.Scanned, "queried": s.Queried}
	for k, v := range s.counts() {
		fields[k] = v
	}
	return fields
}
