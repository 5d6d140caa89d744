package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ovenly/backend/internal/payments"
	"github.com/ovenly/backend/internal/testdb"
	"github.com/ovenly/backend/pkg/config"
	pkgdb "github.com/ovenly/backend/pkg/db"
	"github.com/ovenly/backend/pkg/db/models"
	"github.com/ovenly/backend/pkg/enums"
	"github.com/ovenly/backend/pkg/metrics"
	"github.com/ovenly/backend/pkg/mpesa"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeQuerier struct {
	mu       sync.Mutex
	statuses map[string]*mpesa.STKStatus
	errs     map[string]error
	calls    []string
}

func (f *fakeQuerier) QuerySTKStatus(_ context.Context, id string) (*mpesa.STKStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	if status, ok := f.statuses[id]; ok {
		return status, nil
	}
	return nil, errors.New("unexpected query")
}

type fixture struct {
	db     *gorm.DB
	repo   payments.Repository
	proc   *payments.Processor
	client *fakeQuerier
	svc    *Service
	reg    *prometheus.Registry
	seq    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testdb.Open(t)
	repo := payments.NewRepository(conn)
	now := func() time.Time { return testNow }
	proc, err := payments.NewProcessor(payments.ProcessorParams{
		Repo:   repo,
		Tx:     pkgdb.Wrap(conn),
		Runner: payments.SyncRunner{},
		Now:    now,
	})
	require.NoError(t, err)

	f := &fixture{
		db:     conn,
		repo:   repo,
		proc:   proc,
		client: &fakeQuerier{statuses: map[string]*mpesa.STKStatus{}, errs: map[string]error{}},
		reg:    prometheus.NewRegistry(),
	}
	svc, err := NewService(ServiceParams{
		Store:     repo,
		Processor: proc,
		Client:    f.client,
		Config:    config.ReconciliationConfig{MinAge: time.Minute, QueryTimeout: time.Second},
		Metrics:   metrics.NewPaymentMetrics(f.reg),
		Now:       now,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

// pushedOrder seeds a deposit order for 2000 with an initiated push for
// the 1000 deposit sent pushedAgo before now.
func (f *fixture) pushedOrder(t *testing.T, session string, pushedAgo time.Duration) *models.Order {
	t.Helper()
	f.seq++
	pushedAt := testNow.Add(-pushedAgo)
	amount := int64(1000)
	order := &models.Order{
		ID:                    uuid.New(),
		OrderNumber:           fmt.Sprintf("C2603010900%04d", f.seq),
		ProductType:           enums.ProductTypeCake,
		CustomerName:          "Achieng",
		Phone:                 "254722000111",
		Status:                enums.OrderStatusReceived,
		PaymentMethod:         enums.PaymentMethodMpesa,
		PaymentStatus:         enums.PaymentStatusInitiated,
		PaymentPlan:           enums.PaymentPlanDeposit,
		Fulfilment:            enums.FulfilmentPickup,
		Subtotal:              2000,
		TotalAmount:           2000,
		DepositAmount:         1000,
		AmountDue:             2000,
		LastRequestAmount:     &amount,
		LastCheckoutRequestID: &session,
		LastPushAt:            &pushedAt,
		CreatedAt:             pushedAt.Add(-time.Minute),
		UpdatedAt:             pushedAt,
	}
	require.NoError(t, f.db.Create(order).Error)
	require.NoError(t, f.repo.UpsertLedgerEntry(context.Background(), &models.PaymentLedgerEntry{
		CheckoutRequestID: session,
		OrderID:           order.ID,
		Amount:            amount,
		Status:            enums.LedgerStatusInitiated,
		CreatedAt:         pushedAt,
		UpdatedAt:         pushedAt,
	}))
	return order
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.db.First(&order, "id = ?", id).Error)
	return order
}

func TestRun_AdvancesStuckInitiatedOrder(t *testing.T) {
	f := newFixture(t)
	order := f.pushedOrder(t, "ws_CO_stuck", 5*time.Minute)
	f.client.statuses["ws_CO_stuck"] = &mpesa.STKStatus{
		ResponseCode: "0",
		ResultCode:   mpesa.Code(0),
		ResultDesc:   "The service request is processed successfully.",
	}

	summary, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 1, summary.Queried)
	assert.Equal(t, 1, summary.Advanced)
	assert.Zero(t, summary.Errors)

	got := f.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusDepositPaid, got.PaymentStatus)
	assert.EqualValues(t, 1000, got.AmountPaid)
	assert.EqualValues(t, 1000, got.AmountDue)
	assert.Nil(t, got.LastRequestAmount)

	// nothing left to reconcile
	summary, err = f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Scanned)
}

func TestRun_StillProcessingStaysPending(t *testing.T) {
	f := newFixture(t)
	order := f.pushedOrder(t, "ws_CO_slow", 3*time.Minute)
	f.client.statuses["ws_CO_slow"] = &mpesa.STKStatus{
		ErrorCode:    "500.001.1001",
		ErrorMessage: "The transaction is being processed",
	}

	summary, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pending)
	assert.Zero(t, summary.MarkedFailed)

	got := f.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusInitiated, got.PaymentStatus)
	assert.Zero(t, got.AmountPaid)
	require.NotNil(t, got.LastRequestAmount)
}

// stkSuccess is the callback Daraja posts once the customer enters their PIN.
func stkSuccess(session, receipt string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"29115-1","CheckoutRequestID":%q,"ResultCode":0,"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[{"Name":"Amount","Value":%d},{"Name":"MpesaReceiptNumber","Value":%q},{"Name":"PhoneNumber","Value":254722000111}]}}}}`, session, amount, receipt))
}

func (f *fixture) deliver(t *testing.T, body []byte) payments.Recorded {
	t.Helper()
	ev, err := payments.ParseSTKCallback(body)
	require.NoError(t, err)
	rec, err := f.proc.Ingest(context.Background(), ev)
	require.NoError(t, err)
	return rec
}

func TestRun_ProviderErrorBodiesLeaveOrderOpen(t *testing.T) {
	f := newFixture(t)
	token := f.pushedOrder(t, "ws_CO_token", 5*time.Minute)
	slow := f.pushedOrder(t, "ws_CO_timeout", 4*time.Minute)
	f.client.statuses["ws_CO_token"] = &mpesa.STKStatus{ErrorCode: "404.001.04", ErrorMessage: "Invalid Access Token", HTTPStatus: 401}
	f.client.statuses["ws_CO_timeout"] = &mpesa.STKStatus{ErrorCode: "500.003.02", ErrorMessage: "Request timed out", HTTPStatus: 503}

	summary, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Queried)
	assert.Equal(t, 2, summary.Pending)
	assert.Zero(t, summary.MarkedFailed)
	assert.Equal(t, enums.PaymentStatusInitiated, f.reload(t, token.ID).PaymentStatus)
	assert.Equal(t, enums.PaymentStatusInitiated, f.reload(t, slow.ID).PaymentStatus)

	// the real result still lands
	rec := f.deliver(t, stkSuccess("ws_CO_token", "RCP123", 1000))
	assert.False(t, rec.Duplicate)
	got := f.reload(t, token.ID)
	assert.Equal(t, enums.PaymentStatusDepositPaid, got.PaymentStatus)
	assert.EqualValues(t, 1000, got.AmountPaid)
}

func TestRun_CreditsCallbackThatBeatThePush(t *testing.T) {
	f := newFixture(t)
	order := f.pushedOrder(t, "ws_CO_first", 6*time.Minute)

	// the callback for the second push lands before the push is recorded
	f.deliver(t, stkSuccess("ws_CO_new", "RCPNEW001", 1000))
	ok, err := f.repo.RecordPush(context.Background(), payments.PushUpdate{
		OrderID:   order.ID,
		SessionID: "ws_CO_new",
		Amount:    1000,
		At:        testNow.Add(-5 * time.Minute),
	})
	require.NoError(t, err)
	require.True(t, ok)
	f.client.statuses["ws_CO_new"] = &mpesa.STKStatus{ResultCode: mpesa.Code(0), ResultDesc: "The service request is processed successfully."}

	summary, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Queried)
	assert.Equal(t, 1, summary.Advanced)
	assert.Zero(t, summary.Skipped)

	got := f.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusDepositPaid, got.PaymentStatus)
	assert.EqualValues(t, 1000, got.AmountPaid)
	require.NotNil(t, got.TransactionID)
	assert.Equal(t, "RCPNEW001", *got.TransactionID)
}

func TestRun_CancelledMarksFailed(t *testing.T) {
	f := newFixture(t)
	order := f.pushedOrder(t, "ws_CO_cancel", 4*time.Minute)
	f.client.statuses["ws_CO_cancel"] = &mpesa.STKStatus{
		ResultCode: mpesa.Code(1032),
		ResultDesc: "Request cancelled by user",
	}

	summary, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MarkedFailed)

	got := f.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusFailed, got.PaymentStatus)
	assert.Zero(t, got.AmountPaid)
}

func TestRun_QueryErrorDoesNotStopPass(t *testing.T) {
	f := newFixture(t)
	broken := f.pushedOrder(t, "ws_CO_broken", 10*time.Minute)
	ok := f.pushedOrder(t, "ws_CO_ok", 5*time.Minute)
	f.client.errs["ws_CO_broken"] = errors.New("gateway timeout")
	f.client.statuses["ws_CO_ok"] = &mpesa.STKStatus{ResultCode: mpesa.Code(0), ResultDesc: "processed successfully"}

	summary, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Advanced)

	assert.Equal(t, enums.PaymentStatusInitiated, f.reload(t, broken.ID).PaymentStatus)
	assert.Equal(t, enums.PaymentStatusDepositPaid, f.reload(t, ok.ID).PaymentStatus)
}

func TestRun_SkipsFreshAndStalePushes(t *testing.T) {
	f := newFixture(t)
	f.pushedOrder(t, "ws_CO_fresh", 10*time.Second)
	f.pushedOrder(t, "ws_CO_ancient", 48*time.Hour)

	summary, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Scanned)
	assert.Empty(t, f.client.calls)
}

func TestRun_ReplaysStrandedAttempt(t *testing.T) {
	f := newFixture(t)
	// push is outside the lookback window so only the replay can reach it
	order := f.pushedOrder(t, "ws_CO_stranded", 10*time.Hour)
	session := "ws_CO_stranded"
	receipt := "UCB1XYZ9"
	amount := int64(1000)
	require.NoError(t, f.db.Create(&models.PaymentAttempt{
		ID:                uuid.New(),
		Source:            enums.PaymentSourceSTKCallback,
		CheckoutRequestID: &session,
		Receipt:           &receipt,
		Outcome:           string(payments.OutcomeSuccess),
		Amount:            &amount,
		RawPayload:        "{}",
		CreatedAt:         testNow.Add(-20 * time.Minute),
		UpdatedAt:         testNow.Add(-20 * time.Minute),
	}).Error)

	summary, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Scanned)
	assert.Equal(t, 1, summary.Replayed)
	assert.Equal(t, 1, summary.Advanced)

	got := f.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusDepositPaid, got.PaymentStatus)
	assert.EqualValues(t, 1000, got.AmountPaid)
	require.NotNil(t, got.TransactionID)
	assert.Equal(t, receipt, *got.TransactionID)
}

func TestRun_RecordsMetrics(t *testing.T) {
	f := newFixture(t)
	f.pushedOrder(t, "ws_CO_m1", 5*time.Minute)
	f.client.statuses["ws_CO_m1"] = &mpesa.STKStatus{ResultCode: mpesa.Code(0), ResultDesc: "processed successfully"}

	_, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	families, err := f.reg.Gather()
	require.NoError(t, err)
	var advanced float64
	for _, mf := range families {
		if mf.GetName() != "payment_reconciliation_orders_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == "advanced" {
					advanced = m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, float64(1), advanced)
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
