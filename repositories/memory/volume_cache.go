package memory

import (
	// Go Internal Packages
	"context"
	"time"

	// Local Packages
	models "rwa-stream/models"

	// External Packages
	"github.com/patrickmn/go-cache"
)

// VolumeCache keeps the encoded snapshot in process only. Nothing survives a
// restart; it backs the ephemeral "memory" mode.
type VolumeCache struct {
	store     *cache.Cache
	key       string
	expiryKey string
}

func NewVolumeCache(key string, ttl time.Duration) *VolumeCache {
	return &VolumeCache{
		store:     cache.New(ttl, ttl),
		key:       key,
		expiryKey: models.ExpiryKey(key),
	}
}

func (c *VolumeCache) Load(_ context.Context) (*models.VolumeSnapshot, error) {
	raw, ok := c.store.Get(c.key)
	if !ok {
		return nil, nil
	}
	data, ok := raw.([]byte)
	if !ok {
		return models.DecodeSnapshot(nil)
	}
	snap, err := models.DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	if ms, ok := c.store.Get(c.expiryKey); ok {
		if n, ok := ms.(int64); ok {
			snap.WrittenAt = time.UnixMilli(n).UTC()
		}
	}
	return snap, nil
}

func (c *VolumeCache) Save(_ context.Context, snapshot *models.VolumeSnapshot) error {
	data, err := models.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	c.store.SetDefault(c.key, data)
	c.store.SetDefault(c.expiryKey, snapshot.WrittenAt.UnixMilli())
	return nil
}

func (c *VolumeCache) Clear(_ context.Context) error {
	c.store.Delete(c.key)
	c.store.Delete(c.expiryKey)
	return nil
}

