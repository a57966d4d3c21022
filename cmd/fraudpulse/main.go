package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fraudpulse/internal/config"
	"fraudpulse/internal/infrastructure/logging"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fraudpulse",
		Short: "Real-time sync client for the fraud scoring backend",
		Long: `fraudpulse keeps a live, deduplicated feed of scored transactions from the
fraud scoring backend. It prefers the websocket feed, falls back to polling after
repeated failures, and serves the feed, derived stats and per-transaction detail
over a local JSON API.

Configuration is read from the environment (BACKEND_URL, HTTP_ADDR, ...).`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd())
	root.AddCommand(explainCmd())
	root.AddCommand(snapshotCmd())
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and installs stderr-only logging, which keeps
// stdout free for command output.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	if _, err := logging.Init(logging.Config{Level: cfg.LogLevel, Stdout: os.Stderr}); err != nil {
		return config.Config{}, fmt.Errorf("logging error: %w", err)
	}
	return cfg, nil
}
