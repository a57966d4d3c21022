package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fraudpulse/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTimeout = 10 * time.Second

// ErrStatus is matched by every *StatusError.
var ErrStatus = errors.New("unexpected backend status")

type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend %s: status %d", e.Path, e.Code)
	}
	return fmt.Sprintf("backend %s: status %d: %s", e.Path, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the scoring backend's REST and event-stream endpoints.
type Client struct {
	baseURL *url.URL
	// httpClient serves bounded JSON calls; streamClient has no overall timeout since
	// an explanation stream lives until it ends or its context is cancelled.
	httpClient   *http.Client
	streamClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("backend url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported backend url scheme %q", base.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		baseURL:      base,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
	}, nil
}

func (c *Client) PollTransactions(ctx context.Context, sinceID int64, limit int) (domain.PollBatch, error) {
	query := url.Values{}
	query.Set("since_id", strconv.FormatInt(sinceID, 10))
	query.Set("limit", strconv.Itoa(limit))
	var batch domain.PollBatch
	if err := c.getJSON(ctx, "/api/poll/transactions", query, &batch); err != nil {
		return domain.PollBatch{}, err
	}
	return batch, nil
}

func (c *Client) FetchStats(ctx context.Context) (domain.DerivedStats, error) {
	var stats domain.DerivedStats
	if err := c.getJSON(ctx, "/api/stats", nil, &stats); err != nil {
		return domain.DerivedStats{}, err
	}
	return stats, nil
}

func (c *Client) FetchTransactions(ctx context.Context, page, limit int) (domain.TransactionPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	var out domain.TransactionPage
	if err := c.getJSON(ctx, "/api/transactions", query, &out); err != nil {
		return domain.TransactionPage{}, err
	}
	return out, nil
}

func (c *Client) FetchPrediction(ctx context.Context, dfIdx int64) (domain.Prediction, error) {
	var prediction domain.Prediction
	if err := c.getJSON(ctx, "/api/predict/"+strconv.FormatInt(dfIdx, 10), nil, &prediction); err != nil {
		return domain.Prediction{}, err
	}
	return prediction, nil
}

func (c *Client) FetchAttribution(ctx context.Context, dfIdx int64) (domain.Attribution, error) {
	var attribution domain.Attribution
	if err := c.getJSON(ctx, "/api/shap/"+strconv.FormatInt(dfIdx, 10), nil, &attribution); err != nil {
		return domain.Attribution{}, err
	}
	return attribution, nil
}

func (c *Client) Health(ctx context.Context) (domain.BackendHealth, error) {
	var health domain.BackendHealth
	if err := c.getJSON(ctx, "/api/health", nil, &health); err != nil {
		return domain.BackendHealth{}, err
	}
	return health, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	ctx, span := startSpan(ctx, "backend.get", path)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if err := checkStatus(path, resp); err != nil {
		recordSpanError(span, err)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		err = fmt.Errorf("decode %s response: %w", path, err)
		recordSpanError(span, err)
		return err
	}
	return nil
}

func checkStatus(path string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func startSpan(ctx context.Context, name, path string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("fraudpulse/backend").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("http.route", path))
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
