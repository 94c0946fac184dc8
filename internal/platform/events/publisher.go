package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/ds-advance/api/internal/domain"
	"github.com/ds-advance/api/internal/platform/config"
)

// Publisher delivers rate change notifications to downstream booking surfaces.
type Publisher interface {
	PublishRateChange(ctx context.Context, event domain.RateChangeEvent) error
	Close() error
}

// NopPublisher drops every event. It backs the "none" events backend.
type NopPublisher struct{}

func (NopPublisher) PublishRateChange(context.Context, domain.RateChangeEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

// NewPublisher builds the publisher selected by cfg.Backend.
func NewPublisher(ctx context.Context, projectID string, cfg config.EventsConfig, logger *zap.Logger) (Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", config.EventsBackendNone:
		return NopPublisher{}, nil
	case config.EventsBackendPubSub:
		client, err := pubsub.NewClient(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("events: create pubsub client: %w", err)
		}
		publisher, err := NewPubSubPublisher(client.Topic(cfg.PubSubTopic))
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		publisher.closer = client.Close
		logger.Info("events: pubsub publisher ready", zap.String("topic", cfg.PubSubTopic))
		return publisher, nil
	case config.EventsBackendKafka:
		publisher, err := NewKafkaPublisher(cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("events: kafka publisher ready", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		return publisher, nil
	default:
		return nil, errors.New("events: unsupported backend " + cfg.Backend)
	}
}

func eventAttributes(event domain.RateChangeEvent) map[string]string {
	attrs := make(map[string]string, 3)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "customerId", event.CustomerID)
	setAttr(attrs, "serviceTypeId", event.ServiceTypeID)
	return attrs
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
