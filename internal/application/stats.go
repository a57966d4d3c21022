package application

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"fraudpulse/internal/domain"
)

// ComputeStats derives the aggregate counters from a set of transactions. It returns
// nil for an empty set so callers never see a NaN rate.
func ComputeStats(txs []domain.ScoredTransaction) *domain.DerivedStats {
	if len(txs) == 0 {
		return nil
	}
	stats := domain.DerivedStats{
		TotalTransactions: len(txs),
		RiskDistribution:  make(map[domain.RiskLevel]int, len(domain.RiskLevels)),
	}
	var (
		confidence float64
		agreed     int
	)
	for _, tx := range txs {
		flagged := tx.Flagged()
		if flagged {
			stats.FlaggedTransactions++
		}
		if flagged == (tx.IsFraud == 1) {
			agreed++
		}
		if tx.Recommendation == domain.RecommendBlock {
			stats.BlockedAmount += math.Abs(tx.Amount)
		}
		confidence += tx.CombinedConfidence
		if tx.RiskLevel.Valid() {
			stats.RiskDistribution[tx.RiskLevel]++
		}
	}
	total := float64(len(txs))
	stats.FraudRate = float64(stats.FlaggedTransactions) / total
	stats.ModelAccuracy = float64(agreed) / total
	stats.AvgRiskScore = confidence / total
	return &stats
}

// StatsProvider exposes the most recent derived stats, nil when none are available.
type StatsProvider interface {
	Stats() *domain.DerivedStats
}

// LocalStats recomputes the stats from the full store contents on every accepted transaction.
type LocalStats struct {
	store *Store
	mu    sync.RWMutex
	// compute serialises recomputation so a newer snapshot is never overwritten by an older one.
	compute sync.Mutex
	current *domain.DerivedStats
}

func NewLocalStats(store *Store) *LocalStats {
	calc := &LocalStats{store: store}
	store.Subscribe(func(domain.ScoredTransaction) { calc.Recompute() })
	calc.Recompute()
	return calc
}

func (c *LocalStats) Recompute() {
	c.compute.Lock()
	defer c.compute.Unlock()
	stats := ComputeStats(c.store.Snapshot())
	c.mu.Lock()
	c.current = stats
	c.mu.Unlock()
}

func (c *LocalStats) Stats() *domain.DerivedStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneStats(c.current)
}

// StatsFetcher returns the backend-computed stats snapshot.
type StatsFetcher interface {
	FetchStats(ctx context.Context) (domain.DerivedStats, error)
}

// ServerStats replaces its value with a backend snapshot on a fixed interval. A failed
// fetch keeps the previous value.
type ServerStats struct {
	fetcher  StatsFetcher
	clock    Clock
	interval time.Duration
	mu       sync.RWMutex
	current  *domain.DerivedStats
}

func NewServerStats(fetcher StatsFetcher, clock Clock, interval time.Duration) *ServerStats {
	if clock == nil {
		clock = SystemClock{}
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &ServerStats{fetcher: fetcher, clock: clock, interval: interval}
}

func (p *ServerStats) Run(ctx context.Context) error {
	for {
		p.Refresh(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(p.interval):
		}
	}
}

func (p *ServerStats) Refresh(ctx context.Context) {
	stats, err := p.fetcher.FetchStats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Debug("stats fetch failed", "err", err)
		}
		return
	}
	p.mu.Lock()
	p.current = &stats
	p.mu.Unlock()
}

func (p *ServerStats) Stats() *domain.DerivedStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneStats(p.current)
}

func cloneStats(stats *domain.DerivedStats) *domain.DerivedStats {
	if stats == nil {
		return nil
	}
	out := *stats
	if stats.RiskDistribution != nil {
		out.RiskDistribution = make(map[domain.RiskLevel]int, len(stats.RiskDistribution))
		for level, count := range stats.RiskDistribution {
			out.RiskDistribution[level] = count
		}
	}
	return &out
}
