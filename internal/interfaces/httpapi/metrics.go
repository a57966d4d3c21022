package httpapi

import (
	"sync"
	"time"

	"fraudpulse/internal/domain"
)

// Metrics collects supervisor and mirror events for the /metrics endpoint. It
// implements application.SupervisorObserver and application.MirrorObserver.
type Metrics struct {
	mu                  sync.RWMutex
	startTime           time.Time
	connectionState     domain.ConnectionState
	stateChanges        uint64
	pushFailures        uint64
	consecutiveFailures int
	reconnects          uint64
	lastReconnectDelay  time.Duration
	decodeErrors        uint64
	polls               uint64
	pollReceived        uint64
	pollAdded           uint64
	pollErrors          uint64
	lastPoll            time.Time
	mirrorFlushed       uint64
	mirrorDropped       uint64
	mirrorErrors        map[string]uint64
}

func NewMetrics() *Metrics {
	return &Metrics{
		startTime:       time.Now(),
		connectionState: domain.ConnectionConnecting,
		mirrorErrors:    make(map[string]uint64),
	}
}

func (m *Metrics) OnConnectionState(state domain.ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectionState = state
	m.stateChanges++
	if state == domain.ConnectionPush {
		m.consecutiveFailures = 0
	}
}

func (m *Metrics) OnPushFailure(failures int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushFailures++
	m.consecutiveFailures = failures
}

func (m *Metrics) OnReconnectScheduled(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnects++
	m.lastReconnectDelay = delay
}

func (m *Metrics) OnDecodeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decodeErrors++
}

func (m *Metrics) OnPoll(received, added int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	m.pollReceived += uint64(received)
	m.pollAdded += uint64(added)
	m.lastPoll = time.Now()
}

func (m *Metrics) OnPollError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollErrors++
}

func (m *Metrics) OnMirrorFlush(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirrorFlushed += uint64(count)
}

func (m *Metrics) OnMirrorError(sink string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirrorErrors[sink]++
}

func (m *Metrics) OnMirrorDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirrorDropped++
}

type Snapshot struct {
	StartTime           time.Time
	ConnectionState     domain.ConnectionState
	StateChanges        uint64
	PushFailures        uint64
	ConsecutiveFailures int
	Reconnects          uint64
	LastReconnectDelay  time.Duration
	DecodeErrors        uint64
	Polls               uint64
	PollReceived        uint64
	PollAdded           uint64
	PollErrors          uint64
	LastPoll            time.Time
	MirrorFlushed       uint64
	MirrorDropped       uint64
	MirrorErrors        map[string]uint64
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mirrorErrors := make(map[string]uint64, len(m.mirrorErrors))
	for sink, count := range m.mirrorErrors {
		mirrorErrors[sink] = count
	}
	return Snapshot{
		StartTime:           m.startTime,
		ConnectionState:     m.connectionState,
		StateChanges:        m.stateChanges,
		PushFailures:        m.pushFailures,
		ConsecutiveFailures: m.consecutiveFailures,
		Reconnects:          m.reconnects,
		LastReconnectDelay:  m.lastReconnectDelay,
		DecodeErrors:        m.decodeErrors,
		Polls:               m.polls,
		PollReceived:        m.pollReceived,
		PollAdded:           m.pollAdded,
		PollErrors:          m.pollErrors,
		LastPoll:            m.lastPoll,
		MirrorFlushed:       m.mirrorFlushed,
		MirrorDropped:       m.mirrorDropped,
		MirrorErrors:        mirrorErrors,
	}
}
