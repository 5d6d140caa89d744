package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPaymentMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)
	m.IncWebhook("stk_callback", "accepted")
	m.IncWebhook("stk_callback", "accepted")
	m.IncWebhook("c2b_confirmation", "duplicate")
	m.AddReconciled("advanced", 3)
	m.AddReconciled("errors", 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := counterWithLabels(mfs, "payment_webhook_events_total", map[string]string{"source": "stk_callback"}); err != nil {
		t.Fatalf("fetch webhook counter: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 stk deliveries, got %f", got)
	}
	if got, err := counterWithLabels(mfs, "payment_reconciliation_orders_total", map[string]string{"result": "advanced"}); err != nil {
		t.Fatalf("fetch reconcile counter: %v", err)
	} else if got != 3 {
		t.Fatalf("expected advanced=3, got %f", got)
	}
	if _, err := counterWithLabels(mfs, "payment_reconciliation_orders_total", map[string]string{"result": "errors"}); err == nil {
		t.Fatalf("zero additions must not create a series")
	}
}

func TestPaymentMetricsNilSafe(t *testing.T) {
	var m *PaymentMetrics
	m.IncWebhook("x", "y")
	NewPaymentMetrics(nil).AddReconciled("advanced", 1)
}
