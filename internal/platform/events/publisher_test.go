package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/segmentio/kafka-go"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ds-advance/api/internal/domain"
	"github.com/ds-advance/api/internal/platform/config"
)

func sampleEvent() domain.RateChangeEvent {
	return domain.RateChangeEvent{
		Type:          domain.RateChangeCreated,
		CustomerID:    "cust-1",
		ServiceTypeID: "svc-express",
		RateID:        "rate-1",
		OccurredAt:    time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestPubSubPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "special-rates")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	publisher, err := NewPubSubPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}

	if err := publisher.PublishRateChange(ctx, sampleEvent()); err != nil {
		t.Fatalf("PublishRateChange: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload domain.RateChangeEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.RateID != "rate-1" || payload.Type != domain.RateChangeCreated {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["customerId"]; attr != "cust-1" {
		t.Fatalf("expected customerId attribute, got %q", attr)
	}
}

func TestNewPubSubPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherKeysByCustomer(t *testing.T) {
	writer := &recordingWriter{}
	publisher := newKafkaPublisher(writer)

	if err := publisher.PublishRateChange(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("PublishRateChange: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "cust-1" {
		t.Fatalf("expected customer key, got %q", msg.Key)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["type"] != domain.RateChangeCreated || headers["serviceTypeId"] != "svc-express" {
		t.Fatalf("unexpected headers %v", headers)
	}

	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer to close, err=%v", err)
	}
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	publisher := newKafkaPublisher(&recordingWriter{err: boom})

	if err := publisher.PublishRateChange(context.Background(), sampleEvent()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}

func TestNewPublisherSelectsBackend(t *testing.T) {
	ctx := context.Background()

	publisher, err := NewPublisher(ctx, "proj", config.EventsConfig{Backend: config.EventsBackendNone}, nil)
	if err != nil {
		t.Fatalf("none backend: %v", err)
	}
	if _, ok := publisher.(NopPublisher); !ok {
		t.Fatalf("expected NopPublisher, got %T", publisher)
	}

	publisher, err = NewPublisher(ctx, "proj", config.EventsConfig{
		Backend:      config.EventsBackendKafka,
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "special-rates",
	}, nil)
	if err != nil {
		t.Fatalf("kafka backend: %v", err)
	}
	if _, ok := publisher.(*KafkaPublisher); !ok {
		t.Fatalf("expected KafkaPublisher, got %T", publisher)
	}
	_ = publisher.Close()

	if _, err := NewPublisher(ctx, "proj", config.EventsConfig{Backend: "carrier-pigeon"}, nil); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}
