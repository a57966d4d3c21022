package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"fraudpulse/internal/application"
	"fraudpulse/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	predictionKeyPrefix  = "fraudpulse:predict:"
	attributionKeyPrefix = "fraudpulse:shap:"
	defaultTTL           = time.Hour
)

type Config struct {
	Addr string
	TTL  time.Duration
}

// CachedDetails is a read-through redis cache in front of the backend's per-row
// detail endpoints. Scores for a row do not change, so entries only expire by TTL.
type CachedDetails struct {
	base  application.DetailSource
	cache *redis.Client
	ttl   time.Duration
}

// NewCachedDetails returns base unchanged in behaviour when no address is configured.
func NewCachedDetails(base application.DetailSource, cfg Config) (*CachedDetails, error) {
	if base == nil {
		return nil, errors.New("base detail source is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return &CachedDetails{base: base}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return newCachedDetails(base, client, cfg.TTL), nil
}

func newCachedDetails(base application.DetailSource, client *redis.Client, ttl time.Duration) *CachedDetails {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &CachedDetails{base: base, cache: client, ttl: ttl}
}

func (c *CachedDetails) Close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}

func (c *CachedDetails) FetchPrediction(ctx context.Context, dfIdx int64) (domain.Prediction, error) {
	return readThrough(ctx, c, predictionKey(dfIdx), func(ctx context.Context) (domain.Prediction, error) {
		return c.base.FetchPrediction(ctx, dfIdx)
	})
}

func (c *CachedDetails) FetchAttribution(ctx context.Context, dfIdx int64) (domain.Attribution, error) {
	return readThrough(ctx, c, attributionKey(dfIdx), func(ctx context.Context) (domain.Attribution, error) {
		return c.base.FetchAttribution(ctx, dfIdx)
	})
}

func readThrough[T any](ctx context.Context, c *CachedDetails, key string, load func(context.Context) (T, error)) (T, error) {
	if c.cache == nil {
		return load(ctx)
	}
	if cached, err := c.cache.Get(ctx, key).Result(); err == nil {
		var value T
		if err := json.Unmarshal([]byte(cached), &value); err == nil {
			return value, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		slog.Debug("detail cache read failed", "key", key, "err", err)
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return value, nil
	}
	_ = c.cache.Set(ctx, key, payload, c.ttl).Err()
	return value, nil
}

func predictionKey(dfIdx int64) string {
	return predictionKeyPrefix + strconv.FormatInt(dfIdx, 10)
}

func attributionKey(dfIdx int64) string {
	return attributionKeyPrefix + strconv.FormatInt(dfIdx, 10)
}
