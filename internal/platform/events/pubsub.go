package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/ds-advance/api/internal/domain"
)

// PubSubPublisher publishes rate change events to a Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	closer  func() error
}

// NewPubSubPublisher constructs a Pub/Sub backed publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub rate publisher: topic is required")
	}
	return &PubSubPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishRateChange publishes the event and waits for the server acknowledgement.
func (p *PubSubPublisher) PublishRateChange(ctx context.Context, event domain.RateChangeEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub rate publisher: not initialised")
	}
	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal rate change: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: eventAttributes(event),
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish rate change: %w", err)
	}
	return nil
}

// Close flushes pending messages and releases the client when the publisher owns it.
func (p *PubSubPublisher) Close() error {
	if p == nil || p.topic == nil {
		return nil
	}
	p.topic.Stop()
	if p.closer != nil {
		return p.closer()
	}
	return nil
}
