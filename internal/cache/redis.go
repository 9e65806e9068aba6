// Package cache holds the Redis backend for the transfer summary.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"torrentstream/seedwarden/internal/domain"
)

const statsKeyPrefix = "seedwarden:stats:"

// StatsKey names the cache entry of one torrent client. Instances watching
// the same client share the entry; instances watching different clients
// never see each other's summary.
func StatsKey(clientURL string) string {
	raw := strings.TrimSpace(clientURL)
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return statsKeyPrefix + strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
	}
	return statsKeyPrefix + strings.TrimRight(raw, "/")
}

// RedisStatsCache stores the latest transfer summary in Redis as JSON under
// a per-client key.
type RedisStatsCache struct {
	client *redis.Client
	key    string
}

func NewRedisStatsCache(client *redis.Client, key string) *RedisStatsCache {
	return &RedisStatsCache{client: client, key: key}
}

func (r *RedisStatsCache) Get(ctx context.Context) (domain.TransferStats, bool, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.TransferStats{}, false, nil
		}
		return domain.TransferStats{}, false, err
	}
	var stats domain.TransferStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return domain.TransferStats{}, false, err
	}
	return stats, true, nil
}

func (r *RedisStatsCache) Set(ctx context.Context, stats domain.TransferStats, ttl time.Duration) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, data, ttl).Err()
}

func (r *RedisStatsCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
