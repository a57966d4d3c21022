package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	BackendURL        string
	WSURL             string
	HTTPAddr          string
	StoreCapacity     int
	DisplayLimit      int
	PollInterval      time.Duration
	PollLimit         int
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	FallbackThreshold int
	StatsSource       string
	StatsInterval     time.Duration
	RedisAddr         string
	DetailCacheTTL    time.Duration
	KafkaBrokers      []string
	KafkaTopic        string
	ArchiveDriver     string
	ArchiveDSN        string
	MirrorBatchSize   int
	MirrorFlush       time.Duration
	OtelEndpoint      string
	LogLevel          string
	LogFile           string
	LogMaxSizeMB      int
	LogMaxBackups     int
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

type osEnv struct{}

func (osEnv) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

func FromEnviron() EnvSource {
	return osEnv{}
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	backendURL := lookupString(source, "BACKEND_URL", "http://localhost:8000")
	parsedBackend, err := url.Parse(backendURL)
	if err != nil || (parsedBackend.Scheme != "http" && parsedBackend.Scheme != "https") || parsedBackend.Host == "" {
		return Config{}, fmt.Errorf("invalid BACKEND_URL %q", backendURL)
	}
	wsURL := lookupString(source, "WS_URL", "")
	if wsURL == "" {
		wsURL = deriveWSURL(parsedBackend)
	}

	storeCapacity, err := parseIntEnv(source, "STORE_CAPACITY", 5000, 0, 1_000_000)
	if err != nil {
		return Config{}, err
	}
	displayLimit, err := parseIntEnv(source, "DISPLAY_LIMIT", 50, 1, 10_000)
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := parseDurationEnv(source, "POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	pollLimit, err := parseIntEnv(source, "POLL_LIMIT", 10, 1, 50)
	if err != nil {
		return Config{}, err
	}
	reconnectBase, err := parseDurationEnv(source, "RECONNECT_BASE", time.Second)
	if err != nil {
		return Config{}, err
	}
	reconnectMax, err := parseDurationEnv(source, "RECONNECT_MAX", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	if reconnectMax < reconnectBase {
		return Config{}, errors.New("RECONNECT_MAX must not be smaller than RECONNECT_BASE")
	}
	fallbackThreshold, err := parseIntEnv(source, "FALLBACK_THRESHOLD", 3, 1, 100)
	if err != nil {
		return Config{}, err
	}

	statsSource := strings.ToLower(lookupString(source, "STATS_SOURCE", "local"))
	if statsSource != "local" && statsSource != "server" {
		return Config{}, fmt.Errorf("invalid STATS_SOURCE %q: want local or server", statsSource)
	}
	statsInterval, err := parseDurationEnv(source, "STATS_INTERVAL", 3*time.Second)
	if err != nil {
		return Config{}, err
	}

	detailCacheTTL, err := parseDurationEnv(source, "DETAIL_CACHE_TTL", time.Hour)
	if err != nil {
		return Config{}, err
	}

	archiveDriver := strings.ToLower(lookupString(source, "ARCHIVE_DRIVER", "sqlite"))
	switch archiveDriver {
	case "sqlite", "mysql", "none":
	default:
		return Config{}, fmt.Errorf("invalid ARCHIVE_DRIVER %q: want sqlite, mysql or none", archiveDriver)
	}
	archiveDSN := lookupString(source, "ARCHIVE_DSN", "")
	if archiveDSN == "" {
		switch archiveDriver {
		case "sqlite":
			archiveDSN = "data/fraudpulse.db"
		case "mysql":
			return Config{}, errors.New("ARCHIVE_DSN is required for the mysql archive")
		}
	}

	mirrorBatchSize, err := parseIntEnv(source, "MIRROR_BATCH_SIZE", 100, 1, 10_000)
	if err != nil {
		return Config{}, err
	}
	mirrorFlush, err := parseDurationEnv(source, "MIRROR_FLUSH_INTERVAL", time.Second)
	if err != nil {
		return Config{}, err
	}

	logMaxSize, err := parseIntEnv(source, "LOG_MAX_SIZE_MB", 100, 1, 10_000)
	if err != nil {
		return Config{}, err
	}
	logMaxBackups, err := parseIntEnv(source, "LOG_MAX_BACKUPS", 3, 0, 100)
	if err != nil {
		return Config{}, err
	}

	return Config{
		BackendURL:        strings.TrimRight(backendURL, "/"),
		WSURL:             wsURL,
		HTTPAddr:          lookupString(source, "HTTP_ADDR", ":8090"),
		StoreCapacity:     storeCapacity,
		DisplayLimit:      displayLimit,
		PollInterval:      pollInterval,
		PollLimit:         pollLimit,
		ReconnectBase:     reconnectBase,
		ReconnectMax:      reconnectMax,
		FallbackThreshold: fallbackThreshold,
		StatsSource:       statsSource,
		StatsInterval:     statsInterval,
		RedisAddr:         lookupString(source, "REDIS_ADDR", ""),
		DetailCacheTTL:    detailCacheTTL,
		KafkaBrokers:      parseList(source, "KAFKA_BROKERS"),
		KafkaTopic:        lookupString(source, "KAFKA_TOPIC", "fraudpulse-transactions"),
		ArchiveDriver:     archiveDriver,
		ArchiveDSN:        archiveDSN,
		MirrorBatchSize:   mirrorBatchSize,
		MirrorFlush:       mirrorFlush,
		OtelEndpoint:      lookupString(source, "OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LogLevel:          lookupString(source, "LOG_LEVEL", "info"),
		LogFile:           lookupString(source, "LOG_FILE", "logs/fraudpulse.log"),
		LogMaxSizeMB:      logMaxSize,
		LogMaxBackups:     logMaxBackups,
	}, nil
}

func deriveWSURL(backend *url.URL) string {
	ws := *backend
	if ws.Scheme == "https" {
		ws.Scheme = "wss"
	} else {
		ws.Scheme = "ws"
	}
	ws.Path = strings.TrimRight(ws.Path, "/") + "/ws/transactions"
	ws.RawQuery = ""
	return ws.String()
}

func lookupString(source EnvSource, key, defaultValue string) string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	return strings.TrimSpace(raw)
}

func parseIntEnv(source EnvSource, key string, defaultValue, min, max int) (int, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value < min || value > max {
		return 0, fmt.Errorf("invalid %s: %d is outside %d..%d", key, value, min, max)
	}
	return value, nil
}

func parseDurationEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return value, nil
}

func parseList(source EnvSource, key string) []string {
	raw, _ := source.Lookup(key)
	var values []string
	for _, item := range strings.Split(raw, ",") {
		if value := strings.TrimSpace(item); value != "" {
			values = append(values, value)
		}
	}
	return values
}
