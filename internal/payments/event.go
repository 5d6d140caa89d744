// Package payments turns provider deliveries into ledger updates on orders.
// All three webhooks and the reconciliation job feed the same Processor.
package payments

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ovenly/backend/pkg/enums"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
	"github.com/ovenly/backend/pkg/mpesa"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomePending Outcome = "pending"
)

// Event is one normalized provider report. Amount is zero when the
// provider did not say how much was paid.
type Event struct {
	Source            enums.PaymentSource
	SessionID         string
	MerchantRequestID string
	OrderRef          string
	ResultCode        mpesa.ResultCode
	ResultDesc        string
	Outcome           Outcome
	Amount            int64
	Receipt           string
	Phone             string
	Raw               json.RawMessage
}

// HasKey reports whether the event can be deduplicated.
func (e Event) HasKey() bool {
	return e.SessionID != "" || e.Receipt != ""
}

func malformed(format string, args ...any) error {
	return pkgerrors.Newf(pkgerrors.CodeValidation, format, args...)
}

type stkCallbackEnvelope struct {
	Body struct {
		STKCallback *struct {
			MerchantRequestID string           `json:"MerchantRequestID"`
			CheckoutRequestID string           `json:"CheckoutRequestID"`
			ResultCode        mpesa.ResultCode `json:"ResultCode"`
			ResultDesc        string           `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseSTKCallback normalizes a Daraja STK result callback.
func ParseSTKCallback(body []byte) (Event, error) {
	var env stkCallbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, malformed("stk callback is not valid json")
	}
	cb := env.Body.STKCallback
	if cb == nil || strings.TrimSpace(cb.CheckoutRequestID) == "" {
		return Event{}, malformed("stk callback missing CheckoutRequestID")
	}

	ev := Event{
		Source:            enums.PaymentSourceSTKCallback,
		SessionID:         strings.TrimSpace(cb.CheckoutRequestID),
		MerchantRequestID: strings.TrimSpace(cb.MerchantRequestID),
		ResultCode:        cb.ResultCode,
		ResultDesc:        strings.TrimSpace(cb.ResultDesc),
		Raw:               json.RawMessage(body),
	}
	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			ev.Amount = rawAmount(item.Value)
		case "MpesaReceiptNumber":
			ev.Receipt = rawString(item.Value)
		case "PhoneNumber":
			ev.Phone = rawString(item.Value)
		}
	}
	ev.Outcome = Classify(ev.ResultCode, ev.ResultDesc)
	return ev, nil
}

type c2bConfirmation struct {
	TransID       string          `json:"TransID"`
	TransAmount   json.RawMessage `json:"TransAmount"`
	BillRefNumber string          `json:"BillRefNumber"`
	MSISDN        json.RawMessage `json:"MSISDN"`
}

// ParseC2BConfirmation normalizes a paybill confirmation. Confirmations are
// only sent for completed payments, so the outcome is always success.
func ParseC2BConfirmation(body []byte) (Event, error) {
	var payload c2bConfirmation
	if err := json.Unmarshal(body, &payload); err != nil {
		return Event{}, malformed("c2b confirmation is not valid json")
	}
	receipt := strings.TrimSpace(payload.TransID)
	if receipt == "" {
		return Event{}, malformed("c2b confirmation missing TransID")
	}
	return Event{
		Source:   enums.PaymentSourceC2BConfirmation,
		Receipt:  receipt,
		OrderRef: strings.ToUpper(strings.TrimSpace(payload.BillRefNumber)),
		Amount:   rawAmount(payload.TransAmount),
		Phone:    rawString(payload.MSISDN),
		Outcome:  OutcomeSuccess,
		Raw:      json.RawMessage(body),
	}, nil
}

// ParseGatewayWebhook normalizes the signed gateway payload. Field names
// vary between gateway versions, so each value is looked up under all of
// its known spellings.
func ParseGatewayWebhook(body []byte) (Event, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return Event{}, malformed("gateway webhook is not valid json")
	}
	var data map[string]json.RawMessage
	if raw := pick(top, "data", "Data"); raw != nil {
		if err := json.Unmarshal(raw, &data); err != nil {
			return Event{}, malformed("gateway webhook data must be an object")
		}
	}
	if data == nil {
		return Event{}, malformed("gateway webhook missing data")
	}

	ev := Event{
		Source:            enums.PaymentSourceGatewayWebhook,
		SessionID:         rawString(pick(data, "checkout_request_id", "CheckoutRequestID", "checkoutRequestId")),
		MerchantRequestID: rawString(pick(data, "merchant_request_id", "MerchantRequestID")),
		OrderRef:          strings.ToUpper(rawString(pick(data, "order_ref", "order_number", "order_id", "account_reference", "BillRefNumber"))),
		ResultDesc:        rawString(pick(data, "ResultDesc", "result_desc", "description")),
		Amount:            rawAmount(pick(data, "amount", "Amount", "TransAmount")),
		Receipt:           rawString(pick(data, "receipt", "mpesa_receipt", "MpesaReceiptNumber", "TransID")),
		Phone:             rawString(pick(data, "phone", "PhoneNumber", "MSISDN")),
		Raw:               json.RawMessage(body),
	}
	if raw := pick(data, "ResultCode", "result_code", "resultCode"); raw != nil {
		_ = json.Unmarshal(raw, &ev.ResultCode)
	}
	if ev.SessionID == "" && ev.OrderRef == "" {
		return Event{}, malformed("gateway webhook needs a checkout request id or an order reference")
	}
	if !ev.HasKey() {
		return Event{}, malformed("gateway webhook needs a checkout request id or a receipt")
	}

	eventType := rawString(pick(top, "type", "Type", "event", "Event"))
	ev.Outcome = classifyGateway(eventType, ev.ResultCode, ev.ResultDesc)
	return ev, nil
}

func classifyGateway(eventType string, code mpesa.ResultCode, desc string) Outcome {
	if code.Valid {
		return Classify(code, desc)
	}
	t := strings.ToLower(eventType)
	switch {
	case strings.Contains(t, "success"), strings.Contains(t, "completed"), strings.HasSuffix(t, ".paid"):
		return OutcomeSuccess
	case strings.Contains(t, "fail"), strings.Contains(t, "cancel"):
		return OutcomeFailed
	}
	return classifyText(desc)
}

func pick(m map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, key := range keys {
		if raw, ok := m[key]; ok && len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			return raw
		}
	}
	return nil
}

// rawString renders a JSON string or number as text.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// rawAmount parses "1000", "1000.00" or 1000.0 into whole shillings.
func rawAmount(raw json.RawMessage) int64 {
	text := rawString(raw)
	if text == "" {
		return 0
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return max(n, 0)
	}
	d, err := decimal.NewFromString(text)
	if err != nil || d.IsNegative() {
		return 0
	}
	return d.Round(0).IntPart()
}
