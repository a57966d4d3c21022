package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"fraudpulse/internal/domain"

	"golang.org/x/sync/errgroup"
)

// ExplanationFallback replaces a partial explanation when the stream fails.
const ExplanationFallback = "Unable to generate explanation. The AI service may be unavailable."

// DetailSource fetches per-row detail. Rows are addressed by the backend row index,
// not by the stream id.
type DetailSource interface {
	FetchPrediction(ctx context.Context, dfIdx int64) (domain.Prediction, error)
	FetchAttribution(ctx context.Context, dfIdx int64) (domain.Attribution, error)
}

// ExplanationStream is a lazy, finite, non-restartable sequence of text fragments.
// Next returns io.EOF once the end-of-stream marker has been read.
type ExplanationStream interface {
	Next() (string, error)
	Close() error
}

type ExplanationSource interface {
	StreamExplanation(ctx context.Context, dfIdx int64) (ExplanationStream, error)
}

type SelectionStatus string

const (
	SelectionIdle    SelectionStatus = "idle"
	SelectionLoading SelectionStatus = "loading"
	SelectionLoaded  SelectionStatus = "loaded"
	SelectionFailed  SelectionStatus = "failed"
)

// SelectionState is the detail view of the currently selected transaction.
type SelectionState struct {
	Transaction *domain.ScoredTransaction `json:"transaction"`
	Status      SelectionStatus           `json:"status"`
	Prediction  *domain.Prediction        `json:"prediction"`
	Attribution *domain.Attribution       `json:"attribution"`
	Error       string                    `json:"error,omitempty"`
	Explanation string                    `json:"explanation"`
	Streaming   bool                      `json:"streaming"`
}

// DetailLoader owns the selection. Each Select starts a new generation; work started
// for an older generation is cancelled and its results are discarded.
type DetailLoader struct {
	details DetailSource
	explain ExplanationSource

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	state      SelectionState
	explained  strings.Builder
	wg         sync.WaitGroup
}

func NewDetailLoader(details DetailSource, explain ExplanationSource) (*DetailLoader, error) {
	if details == nil || explain == nil {
		return nil, errors.New("detail loader dependencies must not be nil")
	}
	return &DetailLoader{
		details: details,
		explain: explain,
		state:   SelectionState{Status: SelectionIdle},
	}, nil
}

// Select replaces the current selection with tx and starts loading its detail and
// explanation. It returns immediately.
func (l *DetailLoader) Select(ctx context.Context, tx domain.ScoredTransaction) {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.generation++
	gen := l.generation
	selCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.explained.Reset()
	l.state = SelectionState{
		Transaction: &tx,
		Status:      SelectionLoading,
		Streaming:   true,
	}
	l.wg.Add(2)
	l.mu.Unlock()

	go l.loadDetail(selCtx, gen, tx.DFIdx)
	go l.streamExplanation(selCtx, gen, tx.DFIdx)
}

// Clear drops the selection and cancels any work in flight.
func (l *DetailLoader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.generation++
	l.explained.Reset()
	l.state = SelectionState{Status: SelectionIdle}
}

// Wait blocks until every started load and stream has finished.
func (l *DetailLoader) Wait() {
	l.wg.Wait()
}

func (l *DetailLoader) State() SelectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.state
	out.Explanation = l.explained.String()
	if l.state.Transaction != nil {
		tx := *l.state.Transaction
		out.Transaction = &tx
	}
	if l.state.Prediction != nil {
		pred := *l.state.Prediction
		out.Prediction = &pred
	}
	if l.state.Attribution != nil {
		attr := *l.state.Attribution
		attr.Values = append([]domain.FeatureAttribution(nil), l.state.Attribution.Values...)
		out.Attribution = &attr
	}
	return out
}

func (l *DetailLoader) loadDetail(ctx context.Context, gen uint64, dfIdx int64) {
	defer l.wg.Done()

	var (
		prediction  domain.Prediction
		attribution domain.Attribution
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		prediction, err = l.details.FetchPrediction(gctx, dfIdx)
		return err
	})
	g.Go(func() error {
		var err error
		attribution, err = l.details.FetchAttribution(gctx, dfIdx)
		return err
	})
	err := g.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.generation {
		return
	}
	if err != nil {
		slog.Warn("detail load failed", "df_idx", dfIdx, "err", err)
		l.state.Status = SelectionFailed
		l.state.Prediction = nil
		l.state.Attribution = nil
		l.state.Error = err.Error()
		return
	}
	l.state.Status = SelectionLoaded
	l.state.Prediction = &prediction
	l.state.Attribution = &attribution
	l.state.Error = ""
}

func (l *DetailLoader) streamExplanation(ctx context.Context, gen uint64, dfIdx int64) {
	defer l.wg.Done()

	stream, err := l.explain.StreamExplanation(ctx, dfIdx)
	if err != nil {
		l.failExplanation(gen, dfIdx, err)
		return
	}
	defer stream.Close()

	for {
		fragment, err := stream.Next()
		if errors.Is(err, io.EOF) {
			l.finishExplanation(gen)
			return
		}
		if err != nil {
			l.failExplanation(gen, dfIdx, err)
			return
		}
		if !l.appendFragment(gen, fragment) {
			return
		}
	}
}

// appendFragment reports false once gen is no longer the current selection.
func (l *DetailLoader) appendFragment(gen uint64, fragment string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.generation {
		return false
	}
	l.explained.WriteString(fragment)
	return true
}

func (l *DetailLoader) finishExplanation(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.generation {
		return
	}
	l.state.Streaming = false
}

func (l *DetailLoader) failExplanation(gen uint64, dfIdx int64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.generation {
		return
	}
	slog.Warn("explanation stream failed", "df_idx", dfIdx, "err", err)
	l.explained.Reset()
	l.explained.WriteString(ExplanationFallback)
	l.state.Streaming = false
}
