package kafka

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"fraudpulse/internal/domain"
	"fraudpulse/internal/infrastructure/telemetry"
	"fraudpulse/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTopic    = "fraudpulse-transactions"
	sessionHeader   = "session-id"
	riskLevelHeader = "risk-level"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer republishes accepted feed transactions, one message per transaction
// keyed by its stream id.
type Producer struct {
	writer    messageWriter
	topic     string
	sessionID string
}

type ProducerConfig struct {
	Brokers   []string
	Topic     string
	SessionID string
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = defaultTopic
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           200 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer, topic: cfg.Topic, sessionID: cfg.SessionID}, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) PublishTransactions(ctx context.Context, txs []domain.ScoredTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	tracer := otel.Tracer("fraudpulse/kafka")
	messages := make([]kafka.Message, 0, len(txs))
	spans := make([]trace.Span, 0, len(txs))
	defer func() {
		for _, span := range spans {
			span.End()
		}
	}()

	for _, tx := range txs {
		spanCtx, span := tracer.Start(ctx, "mirror.publish_transaction", trace.WithSpanKind(trace.SpanKindProducer))
		span.SetAttributes(
			attribute.Int64("transaction.id", tx.ID),
			attribute.Int64("transaction.df_idx", tx.DFIdx),
			attribute.String("transaction.risk_level", string(tx.RiskLevel)),
			attribute.String("messaging.destination.name", p.topic),
		)
		spans = append(spans, span)

		payload, err := streaming.EncodeTransaction(tx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		headers := []kafka.Header{{Key: riskLevelHeader, Value: []byte(tx.RiskLevel)}}
		if p.sessionID != "" {
			headers = append(headers, kafka.Header{Key: sessionHeader, Value: []byte(p.sessionID)})
		}
		messages = append(messages, kafka.Message{
			Topic:   p.topic,
			Key:     []byte(strconv.FormatInt(tx.ID, 10)),
			Value:   payload,
			Headers: telemetry.InjectHeaders(spanCtx, headers),
		})
	}

	err := p.writer.WriteMessages(ctx, messages...)
	if err != nil {
		for _, span := range spans {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	return err
}
