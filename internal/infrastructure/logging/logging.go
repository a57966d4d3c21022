package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

// Init installs the default slog logger, fanned out to stdout and, when a file is
// configured, a size-rotated log file. The standard log package is routed through
// the same handler. The returned closer is nil when no file is configured.
func Init(cfg Config) (io.Closer, error) {
	level := ParseLevel(cfg.Level)
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	writers := []io.Writer{stdout}

	var closer io.Closer
	if path := strings.TrimSpace(cfg.File); path != "" {
		file, err := NewRotatingWriter(path, cfg.MaxSizeMB, cfg.MaxBackups)
		if err != nil {
			return nil, err
		}
		closer = file
		writers = append(writers, file)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler).With("service", "fraudpulse"))

	log.SetFlags(0)
	log.SetOutput(slog.NewLogLogger(handler, slog.LevelInfo).Writer())
	return closer, nil
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
