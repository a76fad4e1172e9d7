package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fastfish/assortment-engine/internal/config"
	"github.com/fastfish/assortment-engine/internal/domain"
)

const (
	summaryKeyPrefix   = "recommendations:summary"
	summaryScanBatches = 100
)

// SummaryCache caches per-period recommendation summaries. The noop
// implementation keeps the serving path identical when Redis is disabled.
type SummaryCache interface {
	GetSummary(ctx context.Context, periodLabel string) (*domain.RecommendationSummary, bool, error)
	SetSummary(ctx context.Context, periodLabel string, summary *domain.RecommendationSummary) error
	InvalidatePeriod(ctx context.Context, periodLabel string) error
	InvalidateAll(ctx context.Context) error
}

type redisSummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopSummaryCache struct{}

func NewSummaryCache(cfg config.CacheConfig) (SummaryCache, error) {
	if !cfg.Enabled {
		return &noopSummaryCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisSummaryCache{
		client: client,
		ttl:    ttl,
	}, nil
}

func NewNoopSummaryCache() SummaryCache {
	return &noopSummaryCache{}
}

func (c *redisSummaryCache) GetSummary(ctx context.Context, periodLabel string) (*domain.RecommendationSummary, bool, error) {
	payload, err := c.client.Get(ctx, summaryKey(periodLabel)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var summary domain.RecommendationSummary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return nil, false, fmt.Errorf("decode summary cache: %w", err)
	}
	return &summary, true, nil
}

func (c *redisSummaryCache) SetSummary(ctx context.Context, periodLabel string, summary *domain.RecommendationSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary cache: %w", err)
	}

	if err := c.client.Set(ctx, summaryKey(periodLabel), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisSummaryCache) InvalidatePeriod(ctx context.Context, periodLabel string) error {
	return c.client.Del(ctx, summaryKey(periodLabel)).Err()
}

func (c *redisSummaryCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, summaryKeyPrefix, summaryScanBatches)
}

func (n *noopSummaryCache) GetSummary(ctx context.Context, periodLabel string) (*domain.RecommendationSummary, bool, error) {
	return nil, false, nil
}

func (n *noopSummaryCache) SetSummary(ctx context.Context, periodLabel string, summary *domain.RecommendationSummary) error {
	return nil
}

func (n *noopSummaryCache) InvalidatePeriod(ctx context.Context, periodLabel string) error {
	return nil
}

func (n *noopSummaryCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func summaryKey(periodLabel string) string {
	return fmt.Sprintf("%s:%s", summaryKeyPrefix, periodLabel)
}
