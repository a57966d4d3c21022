package telemetry

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// HeaderCarrier adapts kafka message headers to the otel TextMapCarrier interface.
type HeaderCarrier struct {
	Headers []kafka.Header
}

func (c *HeaderCarrier) Get(key string) string {
	for _, header := range c.Headers {
		if strings.EqualFold(header.Key, key) {
			return string(header.Value)
		}
	}
	return ""
}

func (c *HeaderCarrier) Set(key, value string) {
	for i := range c.Headers {
		if strings.EqualFold(c.Headers[i].Key, key) {
			c.Headers[i].Value = []byte(value)
			return
		}
	}
	c.Headers = append(c.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *HeaderCarrier) Keys() []string {
	keys := make([]string, len(c.Headers))
	for i, header := range c.Headers {
		keys[i] = header.Key
	}
	return keys
}

// InjectHeaders appends the trace context of ctx to headers.
func InjectHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &HeaderCarrier{Headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.Headers
}

// ExtractHeaders returns ctx carrying the remote trace context found in headers.
func ExtractHeaders(ctx context.Context, headers []kafka.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, &HeaderCarrier{Headers: headers})
}
