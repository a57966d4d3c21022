package application

import (
	"context"

	"fraudpulse/internal/domain"
)

// ArchiveQueryFilter selects archived transactions newer than SinceID.
type ArchiveQueryFilter struct {
	SinceID   int64
	RiskLevel domain.RiskLevel
	Limit     int
}

// ArchiveRepository is the durable copy of the feed written by the mirror.
type ArchiveRepository interface {
	ArchiveWriter
	QueryTransactions(ctx context.Context, filter ArchiveQueryFilter) ([]domain.ScoredTransaction, error)
	LatestID(ctx context.Context) (int64, bool, error)
	Ping(ctx context.Context) error
	Close() error
}

const (
	DefaultArchiveLimit = 100
	MaxArchiveLimit     = 1000
)

// NormalizeLimit clamps a caller supplied page size.
func NormalizeLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
