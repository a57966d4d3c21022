package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fraudpulse/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrSessionStarted      = errors.New("session already started")
	ErrSessionNotStarted   = errors.New("session not started")
	ErrTransactionNotFound = errors.New("transaction not found in feed")
)

const (
	StatsSourceLocal  = "local"
	StatsSourceServer = "server"
)

type SessionDeps struct {
	Push     PushDialer
	Pull     PullSource
	Details  DetailSource
	Explain  ExplanationSource
	Stats    StatsFetcher
	Mirror   *Mirror
	Observer SupervisorObserver
	Clock    Clock
}

type SessionConfig struct {
	// ID defaults to a random UUID.
	ID            string
	StoreCapacity int
	DisplayLimit  int
	SeedLimit     int
	StatsSource   string
	StatsInterval time.Duration
	Supervisor    SupervisorConfig
}

// Session is one live view of the feed: it owns the store and everything that
// writes to or derives from it, and is started and stopped explicitly.
type Session struct {
	id          string
	cfg         SessionConfig
	pull        PullSource
	store       *Store
	supervisor  *Supervisor
	stats       StatsProvider
	serverStats *ServerStats
	details     *DetailLoader
	mirror      *Mirror

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSession(deps SessionDeps, cfg SessionConfig) (*Session, error) {
	if cfg.DisplayLimit <= 0 {
		cfg.DisplayLimit = 50
	}
	if cfg.SeedLimit <= 0 {
		cfg.SeedLimit = cfg.Supervisor.PollLimit
	}
	if cfg.StatsSource == "" {
		cfg.StatsSource = StatsSourceLocal
	}

	store := NewStore(cfg.StoreCapacity)
	supervisor, err := NewSupervisor(deps.Push, deps.Pull, store, deps.Observer, deps.Clock, cfg.Supervisor)
	if err != nil {
		return nil, err
	}
	details, err := NewDetailLoader(deps.Details, deps.Explain)
	if err != nil {
		return nil, err
	}

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	session := &Session{
		id:         cfg.ID,
		cfg:        cfg,
		pull:       deps.Pull,
		store:      store,
		supervisor: supervisor,
		details:    details,
		mirror:     deps.Mirror,
	}

	switch cfg.StatsSource {
	case StatsSourceLocal:
		session.stats = NewLocalStats(store)
	case StatsSourceServer:
		if deps.Stats == nil {
			return nil, errors.New("server stats source requires a stats fetcher")
		}
		session.serverStats = NewServerStats(deps.Stats, deps.Clock, cfg.StatsInterval)
		session.stats = session.serverStats
	default:
		return nil, errors.New("unknown stats source " + cfg.StatsSource)
	}

	if deps.Mirror != nil {
		store.Subscribe(deps.Mirror.Enqueue)
	}
	return session, nil
}

// Start seeds the store and launches the transports in the background.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSessionStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx

	slog.Info("session starting", "session_id", s.id, "stats_source", s.cfg.StatsSource)

	s.spawn(func() {
		_, _ = SeedStore(runCtx, s.pull, s.store, s.cfg.SeedLimit)
	})
	s.spawn(func() {
		_ = s.supervisor.Run(runCtx)
	})
	if s.serverStats != nil {
		s.spawn(func() {
			_ = s.serverStats.Run(runCtx)
		})
	}
	if s.mirror != nil {
		s.spawn(func() {
			_ = s.mirror.Run(runCtx)
		})
	}
	return nil
}

// Stop tears the session down: the active transport is closed, pending reconnects
// and polls are abandoned, and the selection is cancelled.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.details.Clear()
	s.wg.Wait()
	s.details.Wait()
	slog.Info("session stopped", "session_id", s.id)
}

func (s *Session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) ConnectionState() domain.ConnectionState {
	return s.supervisor.State()
}

// Recent is the displayed slice of the feed.
func (s *Session) Recent(limit int) []domain.ScoredTransaction {
	if limit <= 0 || limit > s.cfg.DisplayLimit {
		limit = s.cfg.DisplayLimit
	}
	return s.store.Recent(limit)
}

func (s *Session) Stats() *domain.DerivedStats {
	return s.stats.Stats()
}

func (s *Session) LatestID() int64 {
	return s.store.LatestID()
}

func (s *Session) Size() int {
	return s.store.Len()
}

// Select makes the feed entry with the given stream id the current selection. The
// detail requests use the entry's backend row index.
func (s *Session) Select(id int64) (domain.ScoredTransaction, error) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return domain.ScoredTransaction{}, ErrSessionNotStarted
	}
	tx, ok := s.store.Find(id)
	if !ok {
		return domain.ScoredTransaction{}, ErrTransactionNotFound
	}
	s.details.Select(ctx, tx)
	return tx, nil
}

func (s *Session) ClearSelection() {
	s.details.Clear()
}

func (s *Session) Selection() SelectionState {
	return s.details.State()
}
