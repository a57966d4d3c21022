package application

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"fraudpulse/internal/domain"
)

func tx(id int64, risk domain.RiskLevel) domain.ScoredTransaction {
	return domain.ScoredTransaction{ID: id, DFIdx: id * 10, RiskLevel: risk, Recommendation: domain.RecommendAllow}
}

// fakeClock fires every timer immediately and records the requested delays.
type fakeClock struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Unix(0, 0)
	return ch
}

func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// scriptedConn replays messages, then ends with closeErr.
type scriptedConn struct {
	messages [][]byte
	closeErr error
	closed   bool
}

func (c *scriptedConn) ReadMessage(ctx context.Context) ([]byte, error) {
	if len(c.messages) == 0 {
		return nil, c.closeErr
	}
	msg := c.messages[0]
	c.messages = c.messages[1:]
	return msg, nil
}

func (c *scriptedConn) Close() error {
	c.closed = true
	return nil
}

// scriptedDialer hands out one scripted outcome per Dial call. A nil conn with a nil
// err means "cancel the run".
type dialOutcome struct {
	conn PushConn
	err  error
}

type scriptedDialer struct {
	mu       sync.Mutex
	outcomes []dialOutcome
	cancel   context.CancelFunc
	calls    int
}

func (d *scriptedDialer) Dial(ctx context.Context) (PushConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.outcomes) == 0 {
		d.cancel()
		return nil, context.Canceled
	}
	next := d.outcomes[0]
	d.outcomes = d.outcomes[1:]
	return next.conn, next.err
}

type fakePull struct {
	mu      sync.Mutex
	batches []domain.PollBatch
	since   []int64
	err     error
	after   int
	cancel  context.CancelFunc
}

func (p *fakePull) PollTransactions(ctx context.Context, sinceID int64, limit int) (domain.PollBatch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.since = append(p.since, sinceID)
	if p.cancel != nil && len(p.since) >= p.after {
		defer p.cancel()
	}
	if p.err != nil {
		return domain.PollBatch{}, p.err
	}
	if len(p.batches) == 0 {
		return domain.PollBatch{LatestID: sinceID}, nil
	}
	next := p.batches[0]
	p.batches = p.batches[1:]
	return next, nil
}

func (p *fakePull) Since() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.since...)
}

type recordingObserver struct {
	mu           sync.Mutex
	states       []domain.ConnectionState
	failures     []int
	decodeErrors int
	polls        int
	pollErrors   int
}

func (o *recordingObserver) OnConnectionState(state domain.ConnectionState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *recordingObserver) OnPushFailure(failures int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, failures)
}

func (o *recordingObserver) OnReconnectScheduled(time.Duration) {}

func (o *recordingObserver) OnDecodeError(error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decodeErrors++
}

func (o *recordingObserver) OnPoll(received, added int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.polls++
}

func (o *recordingObserver) OnPollError(error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pollErrors++
}

type fakeDetails struct {
	predictionErr  error
	attributionErr error
	mu             sync.Mutex
	requested      []int64
}

func (d *fakeDetails) FetchPrediction(ctx context.Context, dfIdx int64) (domain.Prediction, error) {
	d.mu.Lock()
	d.requested = append(d.requested, dfIdx)
	d.mu.Unlock()
	if d.predictionErr != nil {
		return domain.Prediction{}, d.predictionErr
	}
	return domain.Prediction{TransactionID: dfIdx, RiskLevel: domain.RiskHigh, Recommendation: domain.RecommendReview}, nil
}

func (d *fakeDetails) FetchAttribution(ctx context.Context, dfIdx int64) (domain.Attribution, error) {
	if d.attributionErr != nil {
		return domain.Attribution{}, d.attributionErr
	}
	return domain.Attribution{
		TransactionID: dfIdx,
		BaseValue:     0.1,
		Values:        []domain.FeatureAttribution{{Feature: "V14", Value: -3.2, ShapValue: 0.4}},
	}, nil
}

// chanStream yields whatever is sent on fragments; closing it ends the stream with
// io.EOF, sending on fail ends it with that error.
type chanStream struct {
	fragments chan string
	fail      chan error
}

func newChanStream() *chanStream {
	return &chanStream{fragments: make(chan string), fail: make(chan error, 1)}
}

func (s *chanStream) Next() (string, error) {
	select {
	case fragment, ok := <-s.fragments:
		if !ok {
			return "", io.EOF
		}
		return fragment, nil
	case err := <-s.fail:
		return "", err
	}
}

func (s *chanStream) Close() error { return nil }

type fakeExplain struct {
	mu      sync.Mutex
	streams map[int64]*chanStream
	openErr error
}

func (e *fakeExplain) StreamExplanation(ctx context.Context, dfIdx int64) (ExplanationStream, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	stream, ok := e.streams[dfIdx]
	if !ok {
		return nil, errors.New("no stream scripted")
	}
	return stream, nil
}
