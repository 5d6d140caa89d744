package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ovenly/backend/internal/alerts"
	"github.com/ovenly/backend/internal/testdb"
	pkgdb "github.com/ovenly/backend/pkg/db"
	"github.com/ovenly/backend/pkg/db/models"
	"github.com/ovenly/backend/pkg/enums"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingAlerts struct {
	mu  sync.Mutex
	got []alerts.PaymentAlert
}

func (r *recordingAlerts) PaymentReceived(_ context.Context, alert alerts.PaymentAlert) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, alert)
	return true
}

func (r *recordingAlerts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

type harness struct {
	db     *gorm.DB
	repo   Repository
	proc   *Processor
	alerts *recordingAlerts
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := testdb.Open(t)
	h := &harness{db: conn, repo: NewRepository(conn), alerts: &recordingAlerts{}}
	proc, err := NewProcessor(ProcessorParams{
		Repo:   h.repo,
		Tx:     pkgdb.Wrap(conn),
		Alerts: h.alerts,
		Runner: SyncRunner{},
		Now:    func() time.Time { return testNow },
	})
	require.NoError(t, err)
	h.proc = proc
	return h
}

var orderSeq int

// seedOrder inserts an unpaid M-Pesa deposit order for 2000.
func (h *harness) seedOrder(t *testing.T, mutate func(*models.Order)) *models.Order {
	t.Helper()
	orderSeq++
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   fmt.Sprintf("C2603011200%04d", orderSeq),
		ProductType:   enums.ProductTypeCake,
		CustomerName:  "Wanjiru",
		Phone:         "254712345678",
		Status:        enums.OrderStatusReceived,
		PaymentMethod: enums.PaymentMethodMpesa,
		PaymentStatus: enums.PaymentStatusPending,
		PaymentPlan:   enums.PaymentPlanDeposit,
		Fulfilment:    enums.FulfilmentPickup,
		Subtotal:      2000,
		TotalAmount:   2000,
		DepositAmount: 1000,
		AmountDue:     2000,
		CreatedAt:     testNow.Add(-10 * time.Minute),
		UpdatedAt:     testNow.Add(-10 * time.Minute),
	}
	if mutate != nil {
		mutate(order)
	}
	require.NoError(t, h.db.Create(order).Error)
	return order
}

// startPush records an accepted STK push the way STKService does.
func (h *harness) startPush(t *testing.T, order *models.Order, session string, amount int64, at time.Time) {
	t.Helper()
	ctx := context.Background()
	current := h.reload(t, order.ID)
	ok, err := h.repo.RecordPush(ctx, PushUpdate{
		OrderID:       order.ID,
		SessionID:     session,
		Amount:        amount,
		MarkInitiated: current.PaymentStatus == enums.PaymentStatusPending,
		At:            at,
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, h.repo.UpsertLedgerEntry(ctx, &models.PaymentLedgerEntry{
		CheckoutRequestID: session,
		OrderID:           order.ID,
		Amount:            amount,
		Status:            enums.LedgerStatusInitiated,
		CreatedAt:         at,
		UpdatedAt:         at,
	}))
}

func (h *harness) reload(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, h.db.First(&order, "id = ?", id).Error)
	return order
}

func (h *harness) ingestSTK(t *testing.T, body []byte) Recorded {
	t.Helper()
	ev, err := ParseSTKCallback(body)
	require.NoError(t, err)
	rec, err := h.proc.Ingest(context.Background(), ev)
	require.NoError(t, err)
	return rec
}

type metaItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

func stkCallback(session string, code int, desc string, amount float64, receipt string) []byte {
	var items []metaItem
	if amount > 0 {
		items = append(items, metaItem{Name: "Amount", Value: amount})
	}
	if receipt != "" {
		items = append(items, metaItem{Name: "MpesaReceiptNumber", Value: receipt})
	}
	items = append(items, metaItem{Name: "PhoneNumber", Value: 254712345678})
	cb := map[string]any{
		"MerchantRequestID": "29115-34620561-1",
		"CheckoutRequestID": session,
		"ResultCode":        code,
		"ResultDesc":        desc,
	}
	if code == 0 {
		cb["CallbackMetadata"] = map[string]any{"Item": items}
	}
	body, _ := json.Marshal(map[string]any{"Body": map[string]any{"stkCallback": cb}})
	return body
}

func strPtr(s string) *string { return &s }
