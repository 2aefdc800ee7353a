package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/scanguard/internal/domain/events"
	"github.com/ahrav/scanguard/internal/domain/scanning"
	"github.com/ahrav/scanguard/pkg/common/logger"
)

type mockPublisherMetrics struct{ mock.Mock }

func (m *mockPublisherMetrics) IncMessagePublished(ctx context.Context, topic string) {
	m.Called(ctx, topic)
}

func (m *mockPublisherMetrics) IncPublishError(ctx context.Context, topic string) {
	m.Called(ctx, topic)
}

func headerValue(msg *sarama.ProducerMessage, key string) string {
	for _, h := range msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestPublisher_PublishDomainEvent(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	metrics := new(mockPublisherMetrics)
	metrics.On("IncMessagePublished", mock.Anything, "scanguard.events").Once()

	jobID := uuid.New()
	evt := scanning.NewJobStartedEvent(jobID, "/data", scanning.ScanModeFull)

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "scanguard.events", msg.Topic)
		assert.Equal(t, string(scanning.EventTypeJobStarted), headerValue(msg, HeaderEventType))
		assert.Equal(t, "abc", headerValue(msg, "origin"))

		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, jobID.String(), string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)

		var env struct {
			Type    string         `json:"type"`
			Key     string         `json:"key"`
			Payload map[string]any `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(value, &env))
		assert.Equal(t, string(scanning.EventTypeJobStarted), env.Type)
		assert.Equal(t, jobID.String(), env.Key)
		assert.Equal(t, "/data", env.Payload["Directory"])
		return nil
	})

	pub := NewPublisher(producer, "scanguard.events", logger.Noop(), noop.NewTracerProvider().Tracer("test"), metrics)
	err := pub.PublishDomainEvent(context.Background(), evt,
		events.WithKey(jobID.String()),
		events.WithHeaders(map[string]string{"origin": "abc"}),
	)
	require.NoError(t, err)

	require.NoError(t, pub.Close())
	metrics.AssertExpectations(t)
}

func TestPublisher_SendFailure(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	sendErr := errors.New("leader not available")
	producer.ExpectSendMessageAndFail(sendErr)

	metrics := new(mockPublisherMetrics)
	metrics.On("IncPublishError", mock.Anything, "events").Once()

	pub := NewPublisher(producer, "events", logger.Noop(), noop.NewTracerProvider().Tracer("test"), metrics)
	err := pub.PublishDomainEvent(context.Background(), scanning.NewJobCompletedEvent(uuid.New(), 3, 1))
	require.ErrorIs(t, err, sendErr)

	require.NoError(t, pub.Close())
	metrics.AssertExpectations(t)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{Brokers: []string{"localhost:9092"}, Topic: "t"}},
		{name: "no brokers", cfg: Config{Topic: "t"}, wantErr: true},
		{name: "no topic", cfg: Config{Brokers: []string{"localhost:9092"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
