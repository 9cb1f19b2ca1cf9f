package snapshots

import (
	// Go Internal Packages
	"context"
	"time"

	// Local Packages
	models "rwa-stream/models"

	// External Packages
	"go.uber.org/zap"
)

type Source interface {
	Snapshot() models.VolumeSnapshot
}

type Store interface {
	InsertSnapshot(ctx context.Context, snap models.VolumeSnapshot) (int64, error)
}

// Snapshotter periodically copies the aggregator state into the history
// store.
type Snapshotter struct {
	source   Source
	store    Store
	interval time.Duration
	logger   *zap.Logger
}

func New(source Source, store Store, interval time.Duration, logger *zap.Logger) *Snapshotter {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Snapshotter{source: source, store: store, interval: interval, logger: logger}
}

// Capture writes one snapshot. Failures are logged and reported.
func (s *Snapshotter) Capture(ctx context.Context) (int64, error) {
	snap := s.source.Snapshot()
	n, err := s.store.InsertSnapshot(ctx, snap)
	if err != nil {
		s.logger.Error("failed to store volume snapshot", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.logger.Debug("stored volume snapshot", zap.Int64("rows", n), zap.String("session_id", snap.SessionID))
	}
	return n, nil
}

// Run captures on every interval until ctx is done, then takes a final
// capture so the last state of the session is kept.
func (s *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			_, _ = s.Capture(final)
			cancel()
			return nil
		case <-ticker.C:
			_, _ = s.Capture(ctx)
		}
	}
}
