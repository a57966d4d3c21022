package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fraudpulse/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]int64
	err     error
}

func (s *recordingSink) record(txs []domain.ScoredTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, ids(txs))
	return s.err
}

func (s *recordingSink) StoreTransactions(ctx context.Context, txs []domain.ScoredTransaction) error {
	return s.record(txs)
}

func (s *recordingSink) PublishTransactions(ctx context.Context, txs []domain.ScoredTransaction) error {
	return s.record(txs)
}

func (s *recordingSink) Batches() [][]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]int64(nil), s.batches...)
}

type mirrorEvents struct {
	mu      sync.Mutex
	flushed int
	errors  []string
	dropped int
}

func (o *mirrorEvents) OnMirrorFlush(count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushed += count
}

func (o *mirrorEvents) OnMirrorError(sink string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, sink)
}

func (o *mirrorEvents) OnMirrorDropped() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped++
}

func runMirror(t *testing.T, mirror *Mirror) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mirror.Run(ctx) }()
	return cancel, done
}

func TestMirrorFlushesBySize(t *testing.T) {
	archive := &recordingSink{}
	mirror, err := NewMirror(archive, nil, nil, MirrorConfig{BatchSize: 2, FlushInterval: time.Hour})
	require.NoError(t, err)
	cancel, done := runMirror(t, mirror)

	mirror.Enqueue(tx(1, domain.RiskLow))
	mirror.Enqueue(tx(2, domain.RiskLow))
	mirror.Enqueue(tx(3, domain.RiskLow))

	require.Eventually(t, func() bool { return len(archive.Batches()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []int64{1, 2}, archive.Batches()[0])

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, [][]int64{{1, 2}, {3}}, archive.Batches(), "remaining entries are flushed on shutdown")
}

func TestMirrorFlushesByInterval(t *testing.T) {
	publisher := &recordingSink{}
	events := &mirrorEvents{}
	mirror, err := NewMirror(nil, publisher, events, MirrorConfig{BatchSize: 100, FlushInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	cancel, done := runMirror(t, mirror)
	defer func() {
		cancel()
		<-done
	}()

	mirror.Enqueue(tx(9, domain.RiskHigh))
	require.Eventually(t, func() bool { return len(publisher.Batches()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []int64{9}, publisher.Batches()[0])
}

func TestMirrorReportsSinkErrorsAndKeepsGoing(t *testing.T) {
	archive := &recordingSink{err: errors.New("disk full")}
	publisher := &recordingSink{}
	events := &mirrorEvents{}
	mirror, err := NewMirror(archive, publisher, events, MirrorConfig{BatchSize: 1})
	require.NoError(t, err)

	batch := NewBatch(1)
	batch.Add(tx(4, domain.RiskLow))
	mirror.Flush(context.Background(), batch)

	assert.Equal(t, []string{"archive"}, events.errors)
	assert.Equal(t, [][]int64{{4}}, publisher.Batches())
	assert.Equal(t, 1, events.flushed)
	assert.Zero(t, batch.Len())
}

func TestMirrorDropsWhenQueueIsFull(t *testing.T) {
	events := &mirrorEvents{}
	mirror, err := NewMirror(&recordingSink{}, nil, events, MirrorConfig{BatchSize: 1, QueueSize: 1})
	require.NoError(t, err)

	mirror.Enqueue(tx(1, domain.RiskLow))
	mirror.Enqueue(tx(2, domain.RiskLow))
	assert.Equal(t, 1, events.dropped)
}

func TestNewMirrorRequiresSink(t *testing.T) {
	_, err := NewMirror(nil, nil, nil, MirrorConfig{})
	assert.Error(t, err)
}
