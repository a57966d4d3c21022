package kafka

import (
	"context"
	"errors"
	"testing"

	"fraudpulse/internal/domain"
	"fraudpulse/internal/infrastructure/telemetry"
	"fraudpulse/internal/streaming"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return w.err
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishTransactions(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	provider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(provider)
	defer provider.Shutdown(context.Background())

	writer := &recordingWriter{}
	producer := &Producer{writer: writer, topic: "feed", sessionID: "session-1"}

	err := producer.PublishTransactions(context.Background(), []domain.ScoredTransaction{
		{ID: 7, DFIdx: 70, RiskLevel: domain.RiskCritical, Recommendation: domain.RecommendBlock, Amount: 99.5},
		{ID: 8, DFIdx: 80, RiskLevel: domain.RiskLow, Recommendation: domain.RecommendAllow},
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 2)

	msg := writer.messages[0]
	assert.Equal(t, "feed", msg.Topic)
	assert.Equal(t, "7", string(msg.Key))
	decoded, err := streaming.DecodeTransaction(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, int64(70), decoded.DFIdx)

	carrier := &telemetry.HeaderCarrier{Headers: msg.Headers}
	assert.Equal(t, "CRITICAL", carrier.Get("risk-level"))
	assert.Equal(t, "session-1", carrier.Get("session-id"))
	assert.NotEmpty(t, carrier.Get("traceparent"))

	require.NoError(t, producer.Close())
	assert.True(t, writer.closed)
}

func TestPublishTransactionsRejectsInvalid(t *testing.T) {
	writer := &recordingWriter{}
	producer := &Producer{writer: writer, topic: "feed"}

	err := producer.PublishTransactions(context.Background(), []domain.ScoredTransaction{{ID: 1, RiskLevel: "EXTREME"}})
	require.ErrorIs(t, err, streaming.ErrMalformed)
	assert.Empty(t, writer.messages)
}

func TestPublishTransactionsWriteError(t *testing.T) {
	writer := &recordingWriter{err: errors.New("leader not available")}
	producer := &Producer{writer: writer, topic: "feed"}

	err := producer.PublishTransactions(context.Background(), []domain.ScoredTransaction{{ID: 1, RiskLevel: domain.RiskLow}})
	require.EqualError(t, err, "leader not available")
}

func TestPublishNothing(t *testing.T) {
	producer := &Producer{writer: &recordingWriter{}, topic: "feed"}
	assert.NoError(t, producer.PublishTransactions(context.Background(), nil))
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(ProducerConfig{})
	assert.Error(t, err)

	producer, err := NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	assert.Equal(t, defaultTopic, producer.topic)
	assert.NoError(t, producer.Close())
}
