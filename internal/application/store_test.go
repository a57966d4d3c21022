package application

import (
	"sync"
	"testing"

	"fraudpulse/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(txs []domain.ScoredTransaction) []int64 {
	out := make([]int64, 0, len(txs))
	for _, t := range txs {
		out = append(out, t.ID)
	}
	return out
}

func TestStoreAppendDeduplicatesAndPrepends(t *testing.T) {
	store := NewStore(0)

	assert.True(t, store.Append(tx(5, domain.RiskLow)))
	assert.True(t, store.Append(tx(2, domain.RiskLow)))
	assert.False(t, store.Append(tx(5, domain.RiskHigh)))

	assert.Equal(t, []int64{2, 5}, ids(store.Snapshot()))
	assert.Equal(t, int64(5), store.LatestID())

	kept, ok := store.Find(5)
	require.True(t, ok)
	assert.Equal(t, domain.RiskLow, kept.RiskLevel, "stored entries are never replaced")
}

func TestStoreCapacityDropsOldest(t *testing.T) {
	store := NewStore(3)
	for id := int64(1); id <= 5; id++ {
		store.Append(tx(id, domain.RiskLow))
	}
	assert.Equal(t, []int64{5, 4, 3}, ids(store.Snapshot()))
	assert.Equal(t, int64(5), store.LatestID())
	_, ok := store.Find(1)
	assert.False(t, ok)
}

func TestStoreRecentReturnsCopy(t *testing.T) {
	store := NewStore(0)
	for id := int64(1); id <= 4; id++ {
		store.Append(tx(id, domain.RiskLow))
	}
	recent := store.Recent(2)
	assert.Equal(t, []int64{4, 3}, ids(recent))

	recent[0].Amount = 999
	fresh := store.Recent(1)
	assert.Zero(t, fresh[0].Amount)
	assert.Len(t, store.Recent(0), 4)
}

func TestStoreSeedSortsDescending(t *testing.T) {
	store := NewStore(0)
	added := store.Seed([]domain.ScoredTransaction{tx(3, domain.RiskLow), tx(9, domain.RiskLow), tx(3, domain.RiskLow), tx(1, domain.RiskLow)})

	assert.Equal(t, 3, added)
	assert.Equal(t, []int64{9, 3, 1}, ids(store.Snapshot()))
	assert.Equal(t, int64(9), store.LatestID())

	assert.Zero(t, store.Seed([]domain.ScoredTransaction{tx(20, domain.RiskLow)}), "seeding runs once")
	assert.Equal(t, []int64{9, 3, 1}, ids(store.Snapshot()))
}

func TestStoreSeedAfterLiveDeliveryDoesNotDuplicate(t *testing.T) {
	store := NewStore(0)
	store.Append(tx(7, domain.RiskLow))

	added := store.Seed([]domain.ScoredTransaction{tx(7, domain.RiskLow), tx(6, domain.RiskLow), tx(8, domain.RiskLow)})

	assert.Zero(t, added)
	assert.Equal(t, []int64{7}, ids(store.Snapshot()))
	assert.Equal(t, int64(8), store.LatestID(), "watermark covers the seed batch")
}

func TestStoreConcurrentAppendKeepsOneEntryPerID(t *testing.T) {
	store := NewStore(0)
	var wg sync.WaitGroup
	for worker := 0; worker < 3; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := int64(0); id < 200; id++ {
				store.Append(tx(id, domain.RiskLow))
			}
		}()
	}
	wg.Wait()

	seen := make(map[int64]int)
	for _, entry := range store.Snapshot() {
		seen[entry.ID]++
	}
	assert.Len(t, seen, 200)
	for id, count := range seen {
		assert.Equal(t, 1, count, "id %d", id)
	}
}

func TestStoreNotifiesListenersOnlyForAccepted(t *testing.T) {
	store := NewStore(0)
	var got []int64
	store.Subscribe(func(tx domain.ScoredTransaction) { got = append(got, tx.ID) })

	store.Append(tx(1, domain.RiskLow))
	store.Append(tx(1, domain.RiskLow))
	store.Append(tx(2, domain.RiskLow))

	assert.Equal(t, []int64{1, 2}, got)
}
