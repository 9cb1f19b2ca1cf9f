package sqlite

import (
	// Go Internal Packages
	"context"
	"database/sql"
	"errors"
	"time"

	// Local Packages
	models "rwa-stream/models"
)

const createVolumeCacheTable = `
CREATE TABLE IF NOT EXISTS volume_cache (
	cache_key  TEXT PRIMARY KEY,
	payload    BLOB    NOT NULL,
	written_at INTEGER NOT NULL
);`

// VolumeCache keeps the aggregator snapshot in a local SQLite file so a
// restarted process can pick its session back up without Redis.
type VolumeCache struct {
	db  *sql.DB
	key string
}

// NewVolumeCache creates the cache table when needed.
func NewVolumeCache(ctx context.Context, db *sql.DB, key string) (*VolumeCache, error) {
	if _, err := db.ExecContext(ctx, createVolumeCacheTable); err != nil {
		return nil, err
	}
	return &VolumeCache{db: db, key: key}, nil
}

// Load returns nil when nothing is stored. written_at is authoritative for
// the snapshot age.
func (c *VolumeCache) Load(ctx context.Context) (*models.VolumeSnapshot, error) {
	var (
		payload []byte
		written int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, written_at FROM volume_cache WHERE cache_key = ?`, c.key).Scan(&payload, &written)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap, err := models.DecodeSnapshot(payload)
	if err != nil {
		return nil, err
	}
	snap.WrittenAt = time.UnixMilli(written).UTC()
	return snap, nil
}

func (c *VolumeCache) Save(ctx context.Context, snapshot *models.VolumeSnapshot) error {
	data, err := models.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO volume_cache (cache_key, payload, written_at) VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, written_at = excluded.written_at`,
		c.key, data, snapshot.WrittenAt.UnixMilli())
	return err
}

func (c *VolumeCache) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM volume_cache WHERE cache_key = ?`, c.key)
	return err
}
