package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fraudpulse/internal/domain"
	"fraudpulse/internal/streaming"
)

// ErrPushClosed reports that the peer closed the push connection cleanly.
var ErrPushClosed = errors.New("push connection closed")

// PushConn is an open push connection delivering one encoded transaction per message.
type PushConn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	Close() error
}

// PushDialer opens the push transport.
type PushDialer interface {
	Dial(ctx context.Context) (PushConn, error)
}

// FeedSink is the single append path both transports deliver into.
type FeedSink interface {
	Append(tx domain.ScoredTransaction) bool
	LatestID() int64
}

type SupervisorObserver interface {
	OnConnectionState(state domain.ConnectionState)
	OnPushFailure(failures int, err error)
	OnReconnectScheduled(delay time.Duration)
	OnDecodeError(err error)
	OnPoll(received, added int)
	OnPollError(err error)
}

type SupervisorConfig struct {
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	FallbackThreshold int
	PollInterval      time.Duration
	PollLimit         int
}

// Supervisor keeps the feed live: it prefers the push transport, reconnects with
// exponential backoff and, once the consecutive failure count reaches the fallback
// threshold, switches to polling for the rest of the session.
type Supervisor struct {
	dialer   PushDialer
	pull     PullSource
	sink     FeedSink
	observer SupervisorObserver
	clock    Clock
	cfg      SupervisorConfig

	mu       sync.RWMutex
	state    domain.ConnectionState
	failures int
}

func NewSupervisor(dialer PushDialer, pull PullSource, sink FeedSink, observer SupervisorObserver, clock Clock, cfg SupervisorConfig) (*Supervisor, error) {
	if dialer == nil || pull == nil || sink == nil {
		return nil, errors.New("supervisor dependencies must not be nil")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 10 * time.Second
	}
	if cfg.FallbackThreshold <= 0 {
		cfg.FallbackThreshold = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollLimit <= 0 {
		cfg.PollLimit = 10
	}
	return &Supervisor{
		dialer:   dialer,
		pull:     pull,
		sink:     sink,
		observer: observer,
		clock:    clock,
		cfg:      cfg,
		state:    domain.ConnectionConnecting,
	}, nil
}

// BackoffDelay is the wait before the next push attempt: min(base * 2^failures, max).
func BackoffDelay(failures int, base, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func (s *Supervisor) State() domain.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Failures is the current consecutive push failure count.
func (s *Supervisor) Failures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures
}

// Run drives the transports until ctx is cancelled. It only returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.runPush(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}

		failures := s.Failures()
		if failures >= s.cfg.FallbackThreshold {
			slog.Warn("push transport failed repeatedly, switching to polling", "failures", failures)
			s.setState(domain.ConnectionPoll)
			return s.runPoll(ctx)
		}

		delay := BackoffDelay(failures, s.cfg.ReconnectBase, s.cfg.ReconnectMax)
		if s.observer != nil {
			s.observer.OnReconnectScheduled(delay)
		}
		slog.Info("push reconnect scheduled", "delay", delay, "failures", failures)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(delay):
		}
	}
}

// runPush holds one push connection until it closes.
func (s *Supervisor) runPush(ctx context.Context) {
	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.recordFailure(err)
		}
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()
	s.setState(domain.ConnectionPush)
	slog.Info("push transport connected")

	for {
		payload, err := conn.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, ErrPushClosed) {
				s.recordFailure(err)
			}
			slog.Info("push transport disconnected", "err", err)
			return
		}
		tx, err := streaming.DecodeTransaction(payload)
		if err != nil {
			slog.Warn("dropping malformed push message", "err", err)
			if s.observer != nil {
				s.observer.OnDecodeError(err)
			}
			continue
		}
		s.sink.Append(tx)
	}
}

// runPoll polls for transactions newer than the watermark on a fixed interval. It is
// never torn down before ctx is cancelled.
func (s *Supervisor) runPoll(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.cfg.PollInterval):
		}
		s.pollOnce(ctx)
	}
}

func (s *Supervisor) pollOnce(ctx context.Context) {
	batch, err := s.pull.PollTransactions(ctx, s.sink.LatestID(), s.cfg.PollLimit)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("poll failed", "err", err)
		if s.observer != nil {
			s.observer.OnPollError(err)
		}
		return
	}
	added := 0
	for _, tx := range batch.Transactions {
		if err := streaming.Validate(tx); err != nil {
			slog.Warn("dropping malformed polled transaction", "err", err)
			if s.observer != nil {
				s.observer.OnDecodeError(err)
			}
			continue
		}
		if s.sink.Append(tx) {
			added++
		}
	}
	if s.observer != nil {
		s.observer.OnPoll(len(batch.Transactions), added)
	}
}

func (s *Supervisor) recordFailure(err error) {
	s.mu.Lock()
	s.failures++
	failures := s.failures
	s.mu.Unlock()
	slog.Warn("push transport error", "failures", failures, "err", err)
	if s.observer != nil {
		s.observer.OnPushFailure(failures, err)
	}
}

func (s *Supervisor) setState(state domain.ConnectionState) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()
	if changed && s.observer != nil {
		s.observer.OnConnectionState(state)
	}
}
