package postgres

import (
	// Go Internal Packages
	"context"
	"fmt"
	"time"

	// Local Packages
	models "rwa-stream/models"

	// External Packages
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const snapshotTable = "issuer_volume_snapshots"

const createSnapshotTable = `
CREATE TABLE IF NOT EXISTS issuer_volume_snapshots (
	session_id        TEXT        NOT NULL,
	issuer            TEXT        NOT NULL,
	currency          TEXT        NOT NULL,
	cumulative_volume NUMERIC     NOT NULL,
	transaction_count BIGINT      NOT NULL,
	last_updated      TIMESTAMPTZ NOT NULL,
	captured_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS issuer_volume_snapshots_issuer_idx
	ON issuer_volume_snapshots (issuer, captured_at DESC);
`

var snapshotColumns = []string{
	"session_id", "issuer", "currency", "cumulative_volume",
	"transaction_count", "last_updated", "captured_at",
}

// SnapshotRepository keeps a history of aggregator snapshots, one row per
// issuing address per capture.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

func (r *SnapshotRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, createSnapshotTable)
	return err
}

// InsertSnapshot copies every record of snap in one transaction and returns
// the number of rows written.
func (r *SnapshotRepository) InsertSnapshot(ctx context.Context, snap models.VolumeSnapshot) (int64, error) {
	if len(snap.Records) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin snapshot insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	captured := snap.WrittenAt
	if captured.IsZero() {
		captured = time.Now().UTC()
	}

	n, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{snapshotTable},
		snapshotColumns,
		pgx.CopyFromSlice(len(snap.Records), func(i int) ([]any, error) {
			rec := snap.Records[i]
			return []any{
				snap.SessionID, rec.Issuer, rec.Currency, toNumeric(rec.CumulativeVolume),
				rec.TransactionCount, rec.LastUpdated, captured,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy snapshot rows: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return n, nil
}

type SnapshotPoint struct {
	SessionID        string          `json:"sessionId"`
	CumulativeVolume decimal.Decimal `json:"sessionVolume"`
	TransactionCount int64           `json:"transactionCount"`
	CapturedAt       time.Time       `json:"capturedAt"`
}

// History returns the latest captures for one address, newest first.
func (r *SnapshotRepository) History(ctx context.Context, issuer string, limit int) ([]SnapshotPoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_id, cumulative_volume, transaction_count, captured_at
		FROM issuer_volume_snapshots
		WHERE issuer = $1
		ORDER BY captured_at DESC
		LIMIT $2`, issuer, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []SnapshotPoint
	for rows.Next() {
		var (
			p   SnapshotPoint
			vol pgtype.Numeric
		)
		if err := rows.Scan(&p.SessionID, &vol, &p.TransactionCount, &p.CapturedAt); err != nil {
			return nil, err
		}
		p.CumulativeVolume = fromNumeric(vol)
		points = append(points, p)
	}
	return points, rows.Err()
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
