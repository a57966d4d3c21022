package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"fraudpulse/internal/application"

	"go.opentelemetry.io/otel/trace"
)

const doneMarker = "[DONE]"

// ErrStreamTruncated reports an event stream that ended before its end marker.
var ErrStreamTruncated = errors.New("explanation stream ended without end marker")

// StreamExplanation opens the explanation event stream for one backend row.
func (c *Client) StreamExplanation(ctx context.Context, dfIdx int64) (application.ExplanationStream, error) {
	path := "/api/explain/" + strconv.FormatInt(dfIdx, 10)
	ctx, span := startSpan(ctx, "backend.explain", path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, nil), nil)
	if err != nil {
		span.End()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		recordSpanError(span, err)
		span.End()
		return nil, err
	}
	if err := checkStatus(path, resp); err != nil {
		resp.Body.Close()
		recordSpanError(span, err)
		span.End()
		return nil, err
	}
	return newEventStream(resp.Body, span), nil
}

// EventStream reads `data:` lines of a server-sent event stream and yields the
// `text` field of each JSON payload until `data: [DONE]`.
type EventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	span    trace.Span
	done    bool
	closed  bool
}

func newEventStream(body io.ReadCloser, span trace.Span) *EventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	return &EventStream{body: body, scanner: scanner, span: span}
}

type explainEvent struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Next returns the next text fragment. It returns io.EOF after the end marker and
// ErrStreamTruncated when the body ends before it.
func (s *EventStream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimPrefix(data, " ")
		if data == doneMarker {
			s.done = true
			return "", io.EOF
		}
		var event explainEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			slog.Debug("skipping malformed explanation fragment", "err", err)
			continue
		}
		if event.Error != "" {
			return "", errors.New("explanation service error: " + event.Error)
		}
		if event.Text == "" {
			continue
		}
		return event.Text, nil
	}
	if err := s.scanner.Err(); err != nil {
		recordSpanError(s.span, err)
		return "", err
	}
	recordSpanError(s.span, ErrStreamTruncated)
	return "", ErrStreamTruncated
}

func (s *EventStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.span.End()
	return s.body.Close()
}
