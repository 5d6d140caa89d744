package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

const EventPaymentReceived = "payment.received"

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubSender publishes alerts to the topic the admin mailer consumes.
type PubSubSender struct {
	pub publisher
}

func NewPubSubSender(p *gcppubsub.Publisher) (*PubSubSender, error) {
	if p == nil {
		return nil, errors.New("alerts publisher required")
	}
	return &PubSubSender{pub: &gcpPublisher{Publisher: p}}, nil
}

func (s *PubSubSender) Send(ctx context.Context, alert PaymentAlert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode payment alert: %w", err)
	}
	msg := &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type":  EventPaymentReceived,
			"order_id":    alert.OrderID.String(),
			"occurred_at": alert.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
	result := s.pub.Publish(ctx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish payment alert: %w", err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
