package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenly/backend/pkg/enums"
)

type fakeResult struct{ err error }

func (r fakeResult) Get(context.Context) (string, error) { return "msg-1", r.err }

type fakePublisher struct {
	msgs []*gcppubsub.Message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.msgs = append(p.msgs, msg)
	return fakeResult{err: p.err}
}

type blockingSender struct{}

func (blockingSender) Send(ctx context.Context, _ PaymentAlert) error {
	<-ctx.Done()
	return ctx.Err()
}

func sampleAlert() PaymentAlert {
	return PaymentAlert{
		OrderID:       uuid.New(),
		OrderNumber:   "C2603011200AB7K",
		Source:        enums.PaymentSourceSTKCallback,
		Amount:        1000,
		AmountPaid:    1000,
		AmountDue:     1000,
		PaymentStatus: enums.PaymentStatusDepositPaid,
		Receipt:       "SLK4H2J9QX",
		OccurredAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestPubSubSenderPublishesAlert(t *testing.T) {
	pub := &fakePublisher{}
	sender := &PubSubSender{pub: pub}
	alert := sampleAlert()

	require.NoError(t, sender.Send(context.Background(), alert))
	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, EventPaymentReceived, msg.Attributes["event_type"])
	assert.Equal(t, alert.OrderID.String(), msg.Attributes["order_id"])

	var decoded PaymentAlert
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, alert.OrderNumber, decoded.OrderNumber)
	assert.EqualValues(t, 1000, decoded.Amount)
}

func TestPubSubSenderSurfacesPublishError(t *testing.T) {
	sender := &PubSubSender{pub: &fakePublisher{err: errors.New("deadline")}}
	assert.Error(t, sender.Send(context.Background(), sampleAlert()))
}

func TestNotifierSwallowsFailures(t *testing.T) {
	failing := NewNotifier(&PubSubSender{pub: &fakePublisher{err: errors.New("unavailable")}}, nil, time.Second)
	assert.False(t, failing.PaymentReceived(context.Background(), sampleAlert()))

	slow := NewNotifier(blockingSender{}, nil, 10*time.Millisecond)
	start := time.Now()
	assert.False(t, slow.PaymentReceived(context.Background(), sampleAlert()))
	assert.Less(t, time.Since(start), time.Second)

	ok := NewNotifier(NewLogSender(nil), nil, 0)
	assert.True(t, ok.PaymentReceived(context.Background(), sampleAlert()))

	var none *Notifier
	assert.False(t, none.PaymentReceived(context.Background(), sampleAlert()))
}
