package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scanguard/internal/domain/events"
	"github.com/ahrav/scanguard/internal/infra/eventbus/kafka/tracing"
	"github.com/ahrav/scanguard/pkg/common/logger"
)

// PublisherMetrics tracks publish outcomes per topic.
type PublisherMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
}

// HeaderEventType carries the event type on every message.
const HeaderEventType = "event_type"

var _ events.DomainEventPublisher = (*Publisher)(nil)

// Publisher implements events.DomainEventPublisher on a sarama SyncProducer.
// Messages are JSON envelopes keyed by the publish key.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics PublisherMetrics
}

// NewPublisher wraps an existing producer. metrics may be nil.
func NewPublisher(
	producer sarama.SyncProducer,
	topic string,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics PublisherMetrics,
) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   log.With("component", "kafka_publisher"),
		tracer:   tracer,
		metrics:  metrics,
	}
}

// NewPublisherFromConfig dials the brokers and returns a ready Publisher.
func NewPublisherFromConfig(
	cfg *Config,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics PublisherMetrics,
) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, producerConfig(cfg.ClientID))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return NewPublisher(producer, cfg.Topic, log, tracer, metrics), nil
}

// wireEnvelope is the JSON form of an events.EventEnvelope.
type wireEnvelope struct {
	Type       events.EventType  `json:"type"`
	Key        string            `json:"key,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Payload    any               `json:"payload"`
}

// PublishDomainEvent sends event to the configured topic.
func (p *Publisher) PublishDomainEvent(
	ctx context.Context,
	event events.DomainEvent,
	opts ...events.PublishOption,
) error {
	ctx, span := tracing.StartProducerSpan(ctx, p.topic, p.tracer)
	defer span.End()

	params := events.ApplyOptions(opts)
	env := events.EventEnvelope{
		Type:      event.EventType(),
		Key:       params.Key,
		Headers:   params.Headers,
		Timestamp: event.OccurredAt(),
		Payload:   event,
	}
	span.SetAttributes(attribute.String("event.type", env.Type.String()))
	if env.Key != "" {
		span.SetAttributes(attribute.String("event.key", env.Key))
	}

	msgBytes, err := json.Marshal(wireEnvelope{
		Type:       env.Type,
		Key:        env.Key,
		Headers:    env.Headers,
		OccurredAt: env.Timestamp,
		Payload:    env.Payload,
	})
	if err != nil {
		p.recordFailure(ctx, span, err)
		return fmt.Errorf("failed to serialize payload for event %s: %w", env.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Value:     sarama.ByteEncoder(msgBytes),
		Timestamp: env.Timestamp,
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(env.Type)},
		},
	}
	if env.Key != "" {
		msg.Key = sarama.StringEncoder(env.Key)
	}
	for k, v := range env.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	tracing.InjectTraceContext(ctx, msg)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.recordFailure(ctx, span, err)
		return fmt.Errorf("failed to send message to kafka topic %s: %w", p.topic, err)
	}

	if p.metrics != nil {
		p.metrics.IncMessagePublished(ctx, p.topic)
	}
	p.logger.Debug(ctx, "Published message to Kafka",
		"topic", p.topic,
		"partition", partition,
		"offset", offset,
		"event_type", env.Type,
		"key", env.Key,
	)

	return nil
}

func (p *Publisher) recordFailure(ctx context.Context, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if p.metrics != nil {
		p.metrics.IncPublishError(ctx, p.topic)
	}
}

// Close flushes and closes the underlying producer.
func (p *Publisher) Close() error { return p.producer.Close() }
