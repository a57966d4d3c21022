package application

import (
	"context"
	"log/slog"
	"sort"

	"fraudpulse/internal/domain"
)

// PullSource requests transactions newer than a watermark. It serves both the
// startup snapshot (sinceID = 0) and the polling fallback.
type PullSource interface {
	PollTransactions(ctx context.Context, sinceID int64, limit int) (domain.PollBatch, error)
}

// SeedStore fetches the startup snapshot and seeds the store with it. A failed
// fetch is logged and leaves the store to the live transports.
func SeedStore(ctx context.Context, source PullSource, store *Store, limit int) (int, error) {
	batch, err := source.PollTransactions(ctx, 0, limit)
	if err != nil {
		slog.Warn("snapshot seed failed", "err", err)
		return 0, err
	}
	added := store.Seed(batch.Transactions)
	slog.Info("snapshot seeded", "received", len(batch.Transactions), "added", added, "latest_id", store.LatestID())
	return added, nil
}

func sortDescending(batch []domain.ScoredTransaction) []domain.ScoredTransaction {
	sorted := make([]domain.ScoredTransaction, len(batch))
	copy(sorted, batch)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].ID > sorted[b].ID
	})
	return sorted
}
