package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"fraudpulse/internal/application"
	"fraudpulse/internal/config"
	"fraudpulse/internal/infrastructure/backend"
	"fraudpulse/internal/infrastructure/cache"
	"fraudpulse/internal/infrastructure/kafka"
	"fraudpulse/internal/infrastructure/logging"
	"fraudpulse/internal/infrastructure/storage"
	"fraudpulse/internal/infrastructure/telemetry"
	"fraudpulse/internal/infrastructure/wsfeed"
	"fraudpulse/internal/interfaces/httpapi"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Follow the live feed and serve the local API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logFile, err := logging.Init(logging.Config{
				Level:      cfg.LogLevel,
				File:       cfg.LogFile,
				MaxSizeMB:  cfg.LogMaxSizeMB,
				MaxBackups: cfg.LogMaxBackups,
			})
			if err != nil {
				return fmt.Errorf("logging error: %w", err)
			}
			if logFile != nil {
				defer logFile.Close()
			}
			return run(cmd.Context(), cfg)
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	sessionID := uuid.NewString()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "fraudpulse",
		Version:     version,
		Endpoint:    cfg.OtelEndpoint,
	})
	if err != nil {
		slog.Warn("tracing disabled", "err", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown error", "err", err)
		}
	}()

	client, err := backend.NewClient(backend.Config{BaseURL: cfg.BackendURL})
	if err != nil {
		return fmt.Errorf("backend client error: %w", err)
	}
	dialer, err := wsfeed.NewDialer(wsfeed.Config{URL: cfg.WSURL, SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("websocket error: %w", err)
	}

	var details application.DetailSource = client
	if cached, err := cache.NewCachedDetails(client, cache.Config{Addr: cfg.RedisAddr, TTL: cfg.DetailCacheTTL}); err != nil {
		slog.Warn("redis detail cache disabled", "addr", cfg.RedisAddr, "err", err)
	} else {
		defer cached.Close()
		details = cached
	}

	archive, err := storage.OpenArchive(cfg.ArchiveDriver, cfg.ArchiveDSN)
	if err != nil {
		return fmt.Errorf("archive error: %w", err)
	}
	if archive != nil {
		defer archive.Close()
	}

	metrics := httpapi.NewMetrics()
	mirror, closeMirror, err := newMirror(cfg, sessionID, archive, metrics)
	if err != nil {
		return err
	}
	defer closeMirror()

	session, err := application.NewSession(application.SessionDeps{
		Push:     dialer,
		Pull:     client,
		Details:  details,
		Explain:  client,
		Stats:    client,
		Mirror:   mirror,
		Observer: metrics,
	}, application.SessionConfig{
		ID:            sessionID,
		StoreCapacity: cfg.StoreCapacity,
		DisplayLimit:  cfg.DisplayLimit,
		SeedLimit:     cfg.PollLimit,
		StatsSource:   cfg.StatsSource,
		StatsInterval: cfg.StatsInterval,
		Supervisor: application.SupervisorConfig{
			ReconnectBase:     cfg.ReconnectBase,
			ReconnectMax:      cfg.ReconnectMax,
			FallbackThreshold: cfg.FallbackThreshold,
			PollInterval:      cfg.PollInterval,
			PollLimit:         cfg.PollLimit,
		},
	})
	if err != nil {
		return fmt.Errorf("session error: %w", err)
	}

	server, err := httpapi.NewServer(cfg, session, client, archive, metrics, httpapi.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	})
	if err != nil {
		return fmt.Errorf("http server error: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("session start error: %w", err)
	}
	defer session.Stop()

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		serverErr <- server.ListenAndServe(ctx, cfg.HTTPAddr)
	}()

	slog.Info("fraudpulse started",
		"session_id", sessionID,
		"backend", cfg.BackendURL,
		"ws", cfg.WSURL,
		"archive", cfg.ArchiveDriver,
		"kafka", len(cfg.KafkaBrokers) > 0,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		return nil
	case err := <-serverErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	}
}

// newMirror wires whichever mirror sinks are configured. It returns a nil mirror
// when neither the archive nor kafka is enabled.
func newMirror(cfg config.Config, sessionID string, archive application.ArchiveRepository, metrics *httpapi.Metrics) (*application.Mirror, func(), error) {
	var (
		writer    application.ArchiveWriter
		publisher application.StreamPublisher
		closers   []io.Closer
	)
	if archive != nil {
		writer = archive
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:   cfg.KafkaBrokers,
			Topic:     cfg.KafkaTopic,
			SessionID: sessionID,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("kafka producer error: %w", err)
		}
		publisher = producer
		closers = append(closers, producer)
	}
	closeAll := func() {
		for _, closer := range closers {
			if err := closer.Close(); err != nil {
				slog.Warn("mirror sink close error", "err", err)
			}
		}
	}
	if writer == nil && publisher == nil {
		return nil, closeAll, nil
	}
	mirror, err := application.NewMirror(writer, publisher, metrics, application.MirrorConfig{
		BatchSize:     cfg.MirrorBatchSize,
		FlushInterval: cfg.MirrorFlush,
	})
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return mirror, closeAll, nil
}
