package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenly/backend/api/middleware"
	internalorders "github.com/ovenly/backend/internal/orders"
	"github.com/ovenly/backend/internal/payments"
	"github.com/ovenly/backend/pkg/enums"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
	"github.com/ovenly/backend/pkg/types"
)

type stubCreator struct {
	input internalorders.CreateOrderInput
	key   string
	err   error
}

func (s *stubCreator) Create(_ context.Context, input internalorders.CreateOrderInput, key string) (internalorders.CreateOrderResult, error) {
	s.input = input
	s.key = key
	if s.err != nil {
		return internalorders.CreateOrderResult{}, s.err
	}
	return internalorders.CreateOrderResult{OrderID: uuid.New(), OrderNumber: "C2603010900AB12", TotalAmount: 2000}, nil
}

type stubPusher struct {
	input payments.STKPushInput
	key   string
}

func (s *stubPusher) Push(_ context.Context, input payments.STKPushInput, key string) (payments.STKPushResult, error) {
	s.input = input
	s.key = key
	return payments.STKPushResult{CheckoutRequestID: "ws_CO_1", Amount: 1000}, nil
}

type stubBalance struct {
	input internalorders.BalanceInput
}

func (s *stubBalance) Balance(_ context.Context, input internalorders.BalanceInput) (*internalorders.BalanceView, error) {
	s.input = input
	if input.Phone != "0712345678" && !input.Staff {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return &internalorders.BalanceView{Order: internalorders.OrderSnapshot{AmountDue: 1000}}, nil
}

func router(creator orderCreator, pusher stkPusher, balance balanceReader) http.Handler {
	r := chi.NewRouter()
	r.With(middleware.IdempotencyKey(false, nil)).Post("/api/v1/orders", Create(creator, nil))
	r.With(middleware.IdempotencyKey(true, nil)).Post("/api/v1/orders/{orderId}/stk-push", STKPush(pusher, nil))
	r.Get("/api/v1/orders/{orderId}/balance", Balance(balance, nil))
	return r
}

const orderBody = `{"customer_name":"Wanjiru","phone":"0712345678","product_type":"cake","item":{"size":"1kg","flavour":"vanilla","quantity":1},"fulfilment":"pickup","payment_method":"mpesa","payment_plan":"deposit"}`

func TestCreateOrderPassesIdempotencyKey(t *testing.T) {
	creator := &stubCreator{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(orderBody))
	req.Header.Set(middleware.IdempotencyHeader, "order-1")
	rec := httptest.NewRecorder()

	router(creator, nil, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "order-1", creator.key)
	assert.Equal(t, enums.ProductTypeCake, creator.input.ProductType)
	assert.Equal(t, enums.PaymentPlanDeposit, creator.input.PaymentPlan)

	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "C2603010900AB12", body.Data.(map[string]any)["order_number"])
}

func TestCreateOrderRejectsUnknownFields(t *testing.T) {
	creator := &stubCreator{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"customer_name":"x","price":1}`))
	rec := httptest.NewRecorder()

	router(creator, nil, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrderSurfacesServiceErrors(t *testing.T) {
	creator := &stubCreator{err: pkgerrors.New(pkgerrors.CodeInProgress, "order submission in progress")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(orderBody))
	rec := httptest.NewRecorder()

	router(creator, nil, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSTKPushRequiresIdempotencyKey(t *testing.T) {
	pusher := &stubPusher{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/C2603010900AB12/stk-push", strings.NewReader(`{"phone":"0712345678"}`))
	rec := httptest.NewRecorder()

	router(nil, pusher, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/orders/C2603010900AB12/stk-push", strings.NewReader(`{"phone":"0712345678"}`))
	req.Header.Set(middleware.IdempotencyHeader, "push-1")
	rec = httptest.NewRecorder()
	router(nil, pusher, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "C2603010900AB12", pusher.input.OrderRef)
	assert.Equal(t, "0712345678", pusher.input.Phone)
	assert.Equal(t, "push-1", pusher.key)
}

func TestBalanceHidesMismatchedPhone(t *testing.T) {
	balance := &stubBalance{}

	rec := httptest.NewRecorder()
	router(nil, nil, balance).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/C2603010900AB12/balance?phone=0799999999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router(nil, nil, balance).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/C2603010900AB12/balance?phone=0712345678", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "C2603010900AB12", balance.input.OrderRef)
	assert.False(t, balance.input.Staff)
}
