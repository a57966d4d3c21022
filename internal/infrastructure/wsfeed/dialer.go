package wsfeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"fraudpulse/internal/application"

	"github.com/gorilla/websocket"
)

const defaultHandshakeTimeout = 5 * time.Second

type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	SessionID        string
}

// Dialer opens the backend's transaction websocket.
type Dialer struct {
	url       string
	header    http.Header
	websocket *websocket.Dialer
}

func NewDialer(cfg Config) (*Dialer, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("websocket url is required")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported websocket url scheme %q", parsed.Scheme)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	header := http.Header{}
	if cfg.SessionID != "" {
		header.Set("X-Session-ID", cfg.SessionID)
	}
	return &Dialer{
		url:    cfg.URL,
		header: header,
		websocket: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}, nil
}

// DeriveURL maps a backend base url to its transaction websocket endpoint.
func DeriveURL(backendURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimRight(backendURL, "/"))
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported backend url scheme %q", parsed.Scheme)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/ws/transactions"
	parsed.RawQuery = ""
	return parsed.String(), nil
}

func (d *Dialer) Dial(ctx context.Context) (application.PushConn, error) {
	ws, resp, err := d.websocket.DialContext(ctx, d.url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	conn := &Conn{ws: ws, done: make(chan struct{})}
	go conn.closeOnCancel(ctx)
	return conn, nil
}

// Conn is one open push connection. Cancelling the context it was dialled with
// closes it and unblocks a pending read.
type Conn struct {
	ws        *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (c *Conn) closeOnCancel(ctx context.Context) {
	select {
	case <-ctx.Done():
		_ = c.Close()
	case <-c.done:
	}
}

// ReadMessage blocks for the next data frame. A normal or going-away close frame
// is reported as application.ErrPushClosed.
func (c *Conn) ReadMessage(ctx context.Context) ([]byte, error) {
	for {
		kind, payload, err := c.ws.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, fmt.Errorf("%w: %v", application.ErrPushClosed, err)
			}
			return nil, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		return payload, nil
	}
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
