// Package kafka publishes committed events to a Kafka topic so
// downstream consumers can build their own read models.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/example/cqrs-es/cqrs"
)

// Config holds broker and topic settings, loadable from the
// environment.
type Config struct {
	Brokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"events"`
}

// LoadConfigFromEnv reads Config from KAFKA_* environment variables.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse kafka config: %w", err)
	}
	return cfg, nil
}

// message is the wire format for a published event.
type message struct {
	MessageID     string            `json:"message_id"`
	AggregateType string            `json:"aggregate_type"`
	AggregateID   string            `json:"aggregate_id"`
	Sequence      uint64            `json:"sequence"`
	EventType     string            `json:"event_type"`
	EventVersion  string            `json:"event_version"`
	Payload       any               `json:"payload"`
	Metadata      map[string]string `json:"metadata"`
}

// writer is the subset of kafka-go's Writer the publisher uses,
// extracted so tests can substitute a recorder.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher dispatches committed events to Kafka, keyed by aggregate
// id so one aggregate's events stay in order within a partition. It
// plugs into the command framework as a query.
type Publisher[E cqrs.DomainEvent] struct {
	writer        writer
	aggregateType string
	logger        *slog.Logger
	errorHandler  func(error)
}

var _ cqrs.Query[cqrs.DomainEvent] = (*Publisher[cqrs.DomainEvent])(nil)

// NewPublisher creates a publisher for one aggregate type's events.
func NewPublisher[E cqrs.DomainEvent](cfg Config, aggregateType string) *Publisher[E] {
	return &Publisher[E]{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafkago.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
		},
		aggregateType: aggregateType,
		logger:        slog.Default(),
	}
}

// WithLogger overrides the default logger.
func (p *Publisher[E]) WithLogger(logger *slog.Logger) *Publisher[E] {
	p.logger = logger
	return p
}

// WithErrorHandler installs a handler called with publish failures
// instead of logging them.
func (p *Publisher[E]) WithErrorHandler(handler func(error)) *Publisher[E] {
	p.errorHandler = handler
	return p
}

// Dispatch publishes each committed event. Publish failures do not
// fail the command; the events are already durable in the store.
func (p *Publisher[E]) Dispatch(ctx context.Context, aggregateID string, events []cqrs.EventEnvelope[E]) {
	msgs := make([]kafkago.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(message{
			MessageID:     uuid.New().String(),
			AggregateType: p.aggregateType,
			AggregateID:   event.AggregateID,
			Sequence:      event.Sequence,
			EventType:     event.Payload.EventType(),
			EventVersion:  event.Payload.EventVersion(),
			Payload:       event.Payload,
			Metadata:      event.Metadata,
		})
		if err != nil {
			p.handleError(fmt.Errorf("marshal event %s/%d: %w", aggregateID, event.Sequence, err))
			return
		}
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(aggregateID),
			Value: value,
			Time:  time.Now(),
		})
	}
	if len(msgs) == 0 {
		return
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.handleError(fmt.Errorf("publish %d events for %s: %w", len(msgs), aggregateID, err))
	}
}

func (p *Publisher[E]) handleError(err error) {
	if p.errorHandler != nil {
		p.errorHandler(err)
		return
	}
	p.logger.Error("event publication failed", "error", err)
}

// Close flushes and closes the underlying writer.
func (p *Publisher[E]) Close() error {
	return p.writer.Close()
}
