package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ds-advance/api/internal/domain"
	"github.com/ds-advance/api/internal/platform/config"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes rate change events keyed by customer so a customer's changes stay ordered.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaPublisher builds a synchronous kafka-go writer for the configured topic.
func NewKafkaPublisher(cfg config.EventsConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.KafkaBrokers) == 0 || cfg.KafkaTopic == "" {
		return nil, errors.New("kafka rate publisher: brokers and topic are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		WriteTimeout: cfg.KafkaWriteTimeout,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}
	return newKafkaPublisher(writer), nil
}

func newKafkaPublisher(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, now: time.Now}
}

// PublishRateChange writes one message and returns once the leader acknowledges it.
func (p *KafkaPublisher) PublishRateChange(ctx context.Context, event domain.RateChangeEvent) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka rate publisher: not initialised")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal rate change: %w", err)
	}

	headers := make([]kafka.Header, 0, 3)
	for key, value := range eventAttributes(event) {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.CustomerID),
		Value:   data,
		Headers: headers,
		Time:    p.now(),
	}); err != nil {
		return fmt.Errorf("publish rate change: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
