package redis

import (
	// Go Internal Packages
	"context"
	"errors"
	"strconv"
	"time"

	// Local Packages
	models "rwa-stream/models"

	// External Packages
	"github.com/redis/go-redis/v9"
)

// VolumeCache stores the aggregator snapshot under key and its write time in
// milliseconds under the companion expiry key. Both entries carry the cache
// expiry as TTL.
type VolumeCache struct {
	client    *redis.Client
	key       string
	expiryKey string
	ttl       time.Duration
}

func NewVolumeCache(client *redis.Client, key string, ttl time.Duration) *VolumeCache {
	return &VolumeCache{client: client, key: key, expiryKey: models.ExpiryKey(key), ttl: ttl}
}

func (c *VolumeCache) Load(ctx context.Context) (*models.VolumeSnapshot, error) {
	values, err := c.client.MGet(ctx, c.key, c.expiryKey).Result()
	if err != nil {
		return nil, err
	}

	raw, ok := values[0].(string)
	if !ok {
		return nil, nil
	}
	snap, err := models.DecodeSnapshot([]byte(raw))
	if err != nil {
		return nil, err
	}

	if ms, ok := values[1].(string); ok {
		if n, err := strconv.ParseInt(ms, 10, 64); err == nil {
			snap.WrittenAt = time.UnixMilli(n).UTC()
		}
	}
	return snap, nil
}

func (c *VolumeCache) Save(ctx context.Context, snapshot *models.VolumeSnapshot) error {
	data, err := models.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.key, data, c.ttl)
		pipe.Set(ctx, c.expiryKey, snapshot.WrittenAt.UnixMilli(), c.ttl)
		return nil
	})
	return err
}

func (c *VolumeCache) Clear(ctx context.Context) error {
	err := c.client.Del(ctx, c.key, c.expiryKey).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
