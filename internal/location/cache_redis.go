package location

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
)

const (
	DefaultCacheTTL = 30 * time.Second
	keyPrefix       = "location:latest:"
)

// RedisCache stores latest locations as JSON strings with a TTL.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

type cachedLocation struct {
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lng"`
	Accuracy   float64   `json:"acc"`
	CapturedAt time.Time `json:"at"`
}

func cacheKey(deviceID id.DeviceID) string {
	return keyPrefix + deviceID.String()
}

func (c *RedisCache) GetMany(ctx context.Context, deviceIDs []id.DeviceID) (map[id.DeviceID]domain.Location, error) {
	keys := make([]string, len(deviceIDs))
	for i, d := range deviceIDs {
		keys[i] = cacheKey(d)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	out := make(map[id.DeviceID]domain.Location, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var cl cachedLocation
		if err := json.Unmarshal([]byte(raw), &cl); err != nil {
			continue
		}
		out[deviceIDs[i]] = domain.Location{
			DeviceID:   deviceIDs[i],
			Latitude:   cl.Latitude,
			Longitude:  cl.Longitude,
			Accuracy:   cl.Accuracy,
			CapturedAt: cl.CapturedAt,
		}
	}
	return out, nil
}

func (c *RedisCache) SetMany(ctx context.Context, locations map[id.DeviceID]domain.Location) error {
	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for d, loc := range locations {
			payload, err := json.Marshal(cachedLocation{
				Latitude:   loc.Latitude,
				Longitude:  loc.Longitude,
				Accuracy:   loc.Accuracy,
				CapturedAt: loc.CapturedAt,
			})
			if err != nil {
				return err
			}
			p.Set(ctx, cacheKey(d), payload, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis pipeline set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, deviceID id.DeviceID) error {
	if err := c.client.Del(ctx, cacheKey(deviceID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
