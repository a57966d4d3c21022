package application

import (
	"sync"

	"fraudpulse/internal/domain"
)

// StoreListener is notified, outside the store lock, for every transaction the store accepts.
type StoreListener func(tx domain.ScoredTransaction)

// Store is the ordered, deduplicated, optionally bounded feed of scored transactions.
// Entries are kept newest first. Append is the only writer.
type Store struct {
	mu        sync.RWMutex
	items     []domain.ScoredTransaction
	ids       map[int64]struct{}
	latestID  int64
	capacity  int
	seeded    bool
	listeners []StoreListener
}

// NewStore creates a store that keeps at most capacity entries. Zero keeps everything.
func NewStore(capacity int) *Store {
	if capacity < 0 {
		capacity = 0
	}
	return &Store{ids: make(map[int64]struct{}), capacity: capacity}
}

// Subscribe registers a listener. It must be called before the store is shared.
func (s *Store) Subscribe(listener StoreListener) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()
}

// Append prepends tx unless an entry with the same id is already stored.
// It reports whether the transaction was accepted.
func (s *Store) Append(tx domain.ScoredTransaction) bool {
	s.mu.Lock()
	added := s.appendLocked(tx)
	listeners := s.listeners
	s.mu.Unlock()

	if added {
		notify(listeners, tx)
	}
	return added
}

// Seed initialises an empty store from a snapshot batch. The batch is ordered
// descending by id and fed oldest first through the append path so the result is
// newest first. Seeding runs at most once and is skipped when a transport already
// filled the store; the watermark still advances to the batch maximum.
func (s *Store) Seed(batch []domain.ScoredTransaction) int {
	sorted := sortDescending(batch)

	s.mu.Lock()
	if s.seeded {
		s.mu.Unlock()
		return 0
	}
	s.seeded = true
	if len(s.items) > 0 {
		if len(sorted) > 0 && sorted[0].ID > s.latestID {
			s.latestID = sorted[0].ID
		}
		s.mu.Unlock()
		return 0
	}
	accepted := make([]domain.ScoredTransaction, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		if s.appendLocked(sorted[i]) {
			accepted = append(accepted, sorted[i])
		}
	}
	listeners := s.listeners
	s.mu.Unlock()

	for _, tx := range accepted {
		notify(listeners, tx)
	}
	return len(accepted)
}

func (s *Store) appendLocked(tx domain.ScoredTransaction) bool {
	if _, ok := s.ids[tx.ID]; ok {
		return false
	}
	s.items = append(s.items, domain.ScoredTransaction{})
	copy(s.items[1:], s.items)
	s.items[0] = tx
	s.ids[tx.ID] = struct{}{}
	if tx.ID > s.latestID {
		s.latestID = tx.ID
	}
	if s.capacity > 0 && len(s.items) > s.capacity {
		for _, evicted := range s.items[s.capacity:] {
			delete(s.ids, evicted.ID)
		}
		clear(s.items[s.capacity:])
		s.items = s.items[:s.capacity]
	}
	return true
}

// Snapshot returns a copy of every stored entry, newest first.
func (s *Store) Snapshot() []domain.ScoredTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ScoredTransaction, len(s.items))
	copy(out, s.items)
	return out
}

// Recent returns a copy of the newest limit entries. A non-positive limit returns all of them.
func (s *Store) Recent(limit int) []domain.ScoredTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.ScoredTransaction, n)
	copy(out, s.items[:n])
	return out
}

// Find looks a stored transaction up by its stream id.
func (s *Store) Find(id int64) (domain.ScoredTransaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.ids[id]; !ok {
		return domain.ScoredTransaction{}, false
	}
	for _, tx := range s.items {
		if tx.ID == id {
			return tx, true
		}
	}
	return domain.ScoredTransaction{}, false
}

// LatestID is the highest id seen so far, including evicted entries.
func (s *Store) LatestID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestID
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func notify(listeners []StoreListener, tx domain.ScoredTransaction) {
	for _, listener := range listeners {
		listener(tx)
	}
}
