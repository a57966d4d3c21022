package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fraudpulse/internal/domain"
)

// ArchiveWriter persists accepted transactions. Writes must be idempotent on id.
type ArchiveWriter interface {
	StoreTransactions(ctx context.Context, txs []domain.ScoredTransaction) error
}

// StreamPublisher republishes accepted transactions to a downstream stream.
type StreamPublisher interface {
	PublishTransactions(ctx context.Context, txs []domain.ScoredTransaction) error
}

type MirrorObserver interface {
	OnMirrorFlush(count int)
	OnMirrorError(sink string, err error)
	OnMirrorDropped()
}

type MirrorConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
}

// Batch accumulates accepted transactions between flushes.
type Batch struct {
	txs   []domain.ScoredTransaction
	minID int64
	maxID int64
}

func NewBatch(capacity int) *Batch {
	return &Batch{txs: make([]domain.ScoredTransaction, 0, capacity)}
}

func (b *Batch) Add(tx domain.ScoredTransaction) {
	if len(b.txs) == 0 || tx.ID < b.minID {
		b.minID = tx.ID
	}
	if len(b.txs) == 0 || tx.ID > b.maxID {
		b.maxID = tx.ID
	}
	b.txs = append(b.txs, tx)
}

func (b *Batch) Len() int {
	return len(b.txs)
}

func (b *Batch) Reset() {
	clear(b.txs)
	b.txs = b.txs[:0]
	b.minID, b.maxID = 0, 0
}

// Mirror copies every transaction the store accepts to the archive and the stream in
// batches. The live feed never waits on it: when the queue is full the transaction is
// dropped from the mirror and counted.
type Mirror struct {
	archive   ArchiveWriter
	publisher StreamPublisher
	observer  MirrorObserver
	cfg       MirrorConfig
	queue     chan domain.ScoredTransaction
}

func NewMirror(archive ArchiveWriter, publisher StreamPublisher, observer MirrorObserver, cfg MirrorConfig) (*Mirror, error) {
	if archive == nil && publisher == nil {
		return nil, errors.New("mirror needs at least one sink")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.BatchSize * 10
	}
	return &Mirror{
		archive:   archive,
		publisher: publisher,
		observer:  observer,
		cfg:       cfg,
		queue:     make(chan domain.ScoredTransaction, cfg.QueueSize),
	}, nil
}

// Enqueue is a StoreListener.
func (m *Mirror) Enqueue(tx domain.ScoredTransaction) {
	select {
	case m.queue <- tx:
	default:
		if m.observer != nil {
			m.observer.OnMirrorDropped()
		}
	}
}

// Run flushes batches by size or interval until ctx is cancelled, then flushes what
// is left with a short grace period.
func (m *Mirror) Run(ctx context.Context) error {
	batch := NewBatch(m.cfg.BatchSize)
	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.drain(batch)
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			m.Flush(flushCtx, batch)
			cancel()
			return ctx.Err()
		case tx := <-m.queue:
			batch.Add(tx)
			if batch.Len() >= m.cfg.BatchSize {
				m.Flush(ctx, batch)
			}
		case <-ticker.C:
			m.Flush(ctx, batch)
		}
	}
}

func (m *Mirror) drain(batch *Batch) {
	for {
		select {
		case tx := <-m.queue:
			batch.Add(tx)
		default:
			return
		}
	}
}

// Flush writes the batch to every sink and resets it. Sink errors are logged and
// reported; the batch is not retried.
func (m *Mirror) Flush(ctx context.Context, batch *Batch) {
	if batch.Len() == 0 {
		return
	}
	start := time.Now()
	if m.archive != nil {
		if err := m.archive.StoreTransactions(ctx, batch.txs); err != nil {
			m.report("archive", fmt.Errorf("failed to archive transactions: %w", err))
		}
	}
	if m.publisher != nil {
		if err := m.publisher.PublishTransactions(ctx, batch.txs); err != nil {
			m.report("stream", fmt.Errorf("failed to publish transactions: %w", err))
		}
	}
	if m.observer != nil {
		m.observer.OnMirrorFlush(batch.Len())
	}
	slog.Debug("flushed mirror batch",
		"count", batch.Len(),
		"min_id", batch.minID,
		"max_id", batch.maxID,
		"duration", time.Since(start),
	)
	batch.Reset()
}

func (m *Mirror) report(sink string, err error) {
	slog.Error("mirror sink error", "sink", sink, "err", err)
	if m.observer != nil {
		m.observer.OnMirrorError(sink, err)
	}
}
