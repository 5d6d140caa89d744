package webhooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/ovenly/backend/api/responses"
	"github.com/ovenly/backend/internal/payments"
	"github.com/ovenly/backend/pkg/enums"
	"github.com/ovenly/backend/pkg/logger"
	"github.com/ovenly/backend/pkg/metrics"
)

const maxWebhookBody = 1 << 20

type paymentIngestor interface {
	Ingest(ctx context.Context, ev payments.Event) (payments.Recorded, error)
}

type requestVerifier interface {
	Verify(r *http.Request, body []byte) error
}

// Deps are shared by the three payment webhooks.
type Deps struct {
	Ingestor paymentIngestor
	Verifier requestVerifier
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
}

type ackSet struct {
	ok           any
	unauthorized any
	// rejectMalformed answers 400 instead of acknowledging a payload that
	// cannot be parsed.
	rejectMalformed bool
	malformed       any
}

type stkAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

type c2bAck struct {
	ResultCode string `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

type gatewayAck struct {
	Received bool `json:"received"`
}

var (
	stkAcks = ackSet{
		ok:           stkAck{ResultCode: 0, ResultDesc: "Accepted"},
		unauthorized: stkAck{ResultCode: 1, ResultDesc: "Unauthorized"},
	}
	c2bAcks = ackSet{
		ok:           c2bAck{ResultCode: "0", ResultDesc: "Accepted"},
		unauthorized: c2bAck{ResultCode: "1", ResultDesc: "Unauthorized"},
	}
	gatewayAcks = ackSet{
		ok:              gatewayAck{Received: true},
		unauthorized:    gatewayAck{Received: false},
		rejectMalformed: true,
		malformed:       gatewayAck{Received: false},
	}
)

// STKCallback receives Lipa na M-Pesa Online results.
func STKCallback(deps Deps) http.HandlerFunc {
	return handle(deps, enums.PaymentSourceSTKCallback, payments.ParseSTKCallback, stkAcks)
}

// C2BConfirmation receives paybill confirmations keyed by account reference.
func C2BConfirmation(deps Deps) http.HandlerFunc {
	return handle(deps, enums.PaymentSourceC2BConfirmation, payments.ParseC2BConfirmation, c2bAcks)
}

// GatewayWebhook receives signed events from the payment gateway.
func GatewayWebhook(deps Deps) http.HandlerFunc {
	return handle(deps, enums.PaymentSourceGatewayWebhook, payments.ParseGatewayWebhook, gatewayAcks)
}

func handle(deps Deps, source enums.PaymentSource, parse func([]byte) (payments.Event, error), acks ackSet) http.HandlerFunc {
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := logg.WithField(r.Context(), "source", string(source))
		// The provider must get its ack even when processing blows up;
		// a 500 only buys a retry storm. Reconciliation covers the payment.
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			logg.Error(logg.WithFields(ctx, map[string]any{
				"panic": fmt.Sprint(rec),
				"stack": string(debug.Stack()),
			}), "webhook.panic", fmt.Errorf("panic: %v", rec))
			deps.Metrics.IncWebhook(string(source), "error")
			responses.WriteJSON(w, http.StatusOK, acks.ok)
		}()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook.read_failed")
			deps.Metrics.IncWebhook(string(source), "malformed")
			malformed(w, acks)
			return
		}

		if deps.Verifier != nil {
			if err := deps.Verifier.Verify(r, body); err != nil {
				logg.Warn(logg.WithField(ctx, "reason", err.Error()), "webhook.unauthorized")
				deps.Metrics.IncWebhook(string(source), "unauthorized")
				responses.WriteJSON(w, http.StatusUnauthorized, acks.unauthorized)
				return
			}
		}

		ev, err := parse(body)
		if err != nil {
			logg.Warn(logg.WithField(ctx, "reason", err.Error()), "webhook.malformed")
			deps.Metrics.IncWebhook(string(source), "malformed")
			malformed(w, acks)
			return
		}

		ctx = logg.WithFields(ctx, map[string]any{
			"checkout_request_id": ev.SessionID,
			"receipt":             ev.Receipt,
			"order_ref":           ev.OrderRef,
			"outcome":             string(ev.Outcome),
		})

		if deps.Ingestor == nil {
			logg.Error(ctx, "webhook.ingest_unavailable", errors.New("payment ingestor not configured"))
			deps.Metrics.IncWebhook(string(source), "error")
			responses.WriteJSON(w, http.StatusOK, acks.ok)
			return
		}

		rec, err := deps.Ingestor.Ingest(ctx, ev)
		switch {
		case err != nil:
			// Acknowledge anyway; reconciliation picks the push up from the order.
			logg.Error(ctx, "webhook.ingest_failed", err)
			deps.Metrics.IncWebhook(string(source), "error")
		case rec.Duplicate:
			logg.Info(logg.WithField(ctx, "attempt_id", rec.AttemptID.String()), "webhook.duplicate")
			deps.Metrics.IncWebhook(string(source), "duplicate")
		default:
			logg.Info(logg.WithField(ctx, "attempt_id", rec.AttemptID.String()), "webhook.accepted")
			deps.Metrics.IncWebhook(string(source), "accepted")
		}
		responses.WriteJSON(w, http.StatusOK, acks.ok)
	}
}

func malformed(w http.ResponseWriter, acks ackSet) {
	if acks.rejectMalformed {
		responses.WriteJSON(w, http.StatusBadRequest, acks.malformed)
		return
	}
	responses.WriteJSON(w, http.StatusOK, acks.ok)
}
