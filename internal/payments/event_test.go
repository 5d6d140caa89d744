package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenly/backend/pkg/enums"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
	"github.com/ovenly/backend/pkg/mpesa"
)

func TestParseSTKCallback(t *testing.T) {
	body := []byte(`{"Body":{"stkCallback":{
		"MerchantRequestID":"29115-34620561-1",
		"CheckoutRequestID":"ws_CO_191220191020363925",
		"ResultCode":0,
		"ResultDesc":"The service request is processed successfully.",
		"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":1.00},
			{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},
			{"Name":"TransactionDate","Value":20191219102115},
			{"Name":"PhoneNumber","Value":254708374149}
		]}}}}`)

	ev, err := ParseSTKCallback(body)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentSourceSTKCallback, ev.Source)
	assert.Equal(t, "ws_CO_191220191020363925", ev.SessionID)
	assert.Equal(t, "29115-34620561-1", ev.MerchantRequestID)
	assert.Equal(t, mpesa.Code(0), ev.ResultCode)
	assert.Equal(t, OutcomeSuccess, ev.Outcome)
	assert.EqualValues(t, 1, ev.Amount)
	assert.Equal(t, "NLJ7RT61SV", ev.Receipt)
	assert.Equal(t, "254708374149", ev.Phone)
}

func TestParseSTKCallbackFailureWithoutMetadata(t *testing.T) {
	ev, err := ParseSTKCallback([]byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, ev.Outcome)
	assert.Zero(t, ev.Amount)
	assert.Empty(t, ev.Receipt)
}

func TestParseSTKCallbackMalformed(t *testing.T) {
	for _, body := range []string{`not json`, `{}`, `{"Body":{"stkCallback":{"ResultCode":0}}}`} {
		_, err := ParseSTKCallback([]byte(body))
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), body)
	}
}

func TestParseC2BConfirmation(t *testing.T) {
	ev, err := ParseC2BConfirmation([]byte(`{"TransactionType":"Pay Bill","TransID":"RKTQDM7W6S","TransTime":"20191122063845","TransAmount":"10.00","BusinessShortCode":"600638","BillRefNumber":"c2603011200ab7k","MSISDN":"254708374149"}`))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentSourceC2BConfirmation, ev.Source)
	assert.Equal(t, "RKTQDM7W6S", ev.Receipt)
	assert.Equal(t, "C2603011200AB7K", ev.OrderRef)
	assert.EqualValues(t, 10, ev.Amount)
	assert.Equal(t, OutcomeSuccess, ev.Outcome)
	assert.Empty(t, ev.SessionID)

	_, err = ParseC2BConfirmation([]byte(`{"TransAmount":"10"}`))
	assert.Error(t, err)
}

func TestParseGatewayWebhook(t *testing.T) {
	ev, err := ParseGatewayWebhook([]byte(`{"Type":"payment.failed","Data":{"checkout_request_id":"ws_CO_9","order_number":"p2603011200zz22"}}`))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentSourceGatewayWebhook, ev.Source)
	assert.Equal(t, "ws_CO_9", ev.SessionID)
	assert.Equal(t, "P2603011200ZZ22", ev.OrderRef)
	assert.Equal(t, OutcomeFailed, ev.Outcome)

	ev, err = ParseGatewayWebhook([]byte(`{"event":"payment.update","data":{"checkout_request_id":"ws_CO_9","result_code":0,"Amount":250}}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, ev.Outcome)
	assert.EqualValues(t, 250, ev.Amount)
}

func TestParseGatewayWebhookRejectsMissingKeys(t *testing.T) {
	cases := []string{
		`[]`,
		`{"type":"payment.success"}`,
		`{"type":"payment.success","data":"nope"}`,
		`{"type":"payment.success","data":{"ResultCode":0}}`,
		`{"type":"payment.success","data":{"order_ref":"C2603011200AB7K"}}`,
	}
	for _, body := range cases {
		_, err := ParseGatewayWebhook([]byte(body))
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), body)
	}
}

func TestRawAmount(t *testing.T) {
	assert.EqualValues(t, 1000, rawAmount([]byte(`"1000"`)))
	assert.EqualValues(t, 1000, rawAmount([]byte(`"1000.00"`)))
	assert.EqualValues(t, 1001, rawAmount([]byte(`1000.5`)))
	assert.Zero(t, rawAmount([]byte(`"-5"`)))
	assert.Zero(t, rawAmount([]byte(`"abc"`)))
	assert.Zero(t, rawAmount(nil))
}
