package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics counts webhook deliveries and reconciliation outcomes.
type PaymentMetrics struct {
	webhooks  *prometheus.CounterVec
	reconcile *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment counters on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Payment webhook deliveries by source and outcome.",
	}, []string{"source", "outcome"})
	reconcile := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliation_orders_total",
		Help: "Orders visited by the reconciliation job by result.",
	}, []string{"result"})
	reg.MustRegister(webhooks, reconcile)
	return &PaymentMetrics{webhooks: webhooks, reconcile: reconcile}
}

// IncWebhook counts one delivery for source with the given outcome
// (for example accepted, duplicate, unauthorized, malformed).
func (p *PaymentMetrics) IncWebhook(source, outcome string) {
	if p == nil || p.webhooks == nil {
		return
	}
	p.webhooks.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

// AddReconciled adds n orders with the given result.
func (p *PaymentMetrics) AddReconciled(result string, n int) {
	if p == nil || p.reconcile == nil || n <= 0 {
		return
	}
	p.reconcile.WithLabelValues(normalizeLabel(result)).Add(float64(n))
}
