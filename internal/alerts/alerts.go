// Package alerts delivers best-effort admin notifications when money lands
// on an order. Delivery failures are logged and never reach the caller.
package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ovenly/backend/pkg/enums"
	"github.com/ovenly/backend/pkg/logger"
)

const DefaultTimeout = 5 * time.Second

// PaymentAlert describes one applied payment increment.
type PaymentAlert struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	CustomerName  string              `json:"customer_name"`
	Phone         string              `json:"phone"`
	Source        enums.PaymentSource `json:"source"`
	Amount        int64               `json:"amount"`
	AmountPaid    int64               `json:"amount_paid"`
	AmountDue     int64               `json:"amount_due"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Receipt       string              `json:"receipt,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// Sender is one delivery transport.
type Sender interface {
	Send(ctx context.Context, alert PaymentAlert) error
}

// Notifier bounds each send with a timeout and swallows its failure.
type Notifier struct {
	sender  Sender
	logg    *logger.Logger
	timeout time.Duration
}

func NewNotifier(sender Sender, logg *logger.Logger, timeout time.Duration) *Notifier {
	if logg == nil {
		logg = logger.Nop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Notifier{sender: sender, logg: logg, timeout: timeout}
}

// PaymentReceived sends the alert and reports whether it was delivered.
func (n *Notifier) PaymentReceived(ctx context.Context, alert PaymentAlert) bool {
	if n == nil || n.sender == nil {
		return false
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	if err := n.sender.Send(sendCtx, alert); err != nil {
		logCtx := n.logg.WithFields(ctx, map[string]any{
			"order_id": alert.OrderID.String(),
			"amount":   alert.Amount,
		})
		n.logg.Warn(n.logg.WithField(logCtx, "error", err.Error()), "payment alert not delivered")
		return false
	}
	return true
}

// LogSender writes alerts to the service log. It stands in when no
// Pub/Sub topic is configured.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LogSender{logg: logg}
}

func (s *LogSender) Send(ctx context.Context, alert PaymentAlert) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":       alert.OrderID.String(),
		"order_number":   alert.OrderNumber,
		"amount":         alert.Amount,
		"amount_due":     alert.AmountDue,
		"payment_status": alert.PaymentStatus,
		"receipt":        alert.Receipt,
	})
	s.logg.Info(logCtx, "payment received")
	return nil
}
