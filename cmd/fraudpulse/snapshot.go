package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"fraudpulse/internal/application"
	"fraudpulse/internal/domain"
	"fraudpulse/internal/infrastructure/backend"

	"github.com/spf13/cobra"
)

type snapshotReport struct {
	LatestID     int64                      `json:"latest_id"`
	Count        int                        `json:"count"`
	Stats        *domain.DerivedStats       `json:"stats"`
	Transactions []domain.ScoredTransaction `json:"transactions,omitempty"`
}

func snapshotCmd() *cobra.Command {
	var (
		limit   int
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch the startup snapshot once and print it with derived stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := backend.NewClient(backend.Config{BaseURL: cfg.BackendURL})
			if err != nil {
				return fmt.Errorf("backend client error: %w", err)
			}
			if limit <= 0 {
				limit = cfg.PollLimit
			}
			return printSnapshot(cmd.Context(), client, cfg.StoreCapacity, limit, verbose, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of transactions to request (defaults to POLL_LIMIT)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include the transactions, newest first")
	return cmd
}

func printSnapshot(ctx context.Context, source application.PullSource, capacity, limit int, verbose bool, out io.Writer) error {
	store := application.NewStore(capacity)
	if _, err := application.SeedStore(ctx, source, store, limit); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	txs := store.Snapshot()
	report := snapshotReport{
		LatestID: store.LatestID(),
		Count:    len(txs),
		Stats:    application.ComputeStats(txs),
	}
	if verbose {
		report.Transactions = txs
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
