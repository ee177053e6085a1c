package sqlite

import (
	"context"
	"fmt"

	"github.com/example/agenda-bot/internal/persistence"
)

// WarningRepository implements persistence.WarningRepository using SQLite.
// The (item_id, tier) primary key enforces the at-most-one-record-per-tier
// ledger invariant at the storage level.
type WarningRepository struct {
	pool *ConnectionPool
}

// NewWarningRepository creates a SQLite-backed warning ledger.
func NewWarningRepository(pool *ConnectionPool) *WarningRepository {
	return &WarningRepository{pool: pool}
}

// RecordWarning appends a ledger entry. A second record for the same
// (item, tier) pair fails with persistence.ErrDuplicate.
func (r *WarningRepository) RecordWarning(ctx context.Context, record persistence.WarningRecord) error {
	if record.ItemID == "" || record.Tier == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO warning_records (item_id, tier, elapsed_minutes, planned_minutes, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		record.ItemID,
		record.Tier,
		record.ElapsedMinutes,
		record.PlannedMinutes,
		formatTime(record.RecordedAt),
	)
	return mapSQLiteError(err)
}

// ListWarningsForItem returns an item's ledger entries ordered by record time.
func (r *WarningRepository) ListWarningsForItem(ctx context.Context, itemID string) ([]persistence.WarningRecord, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT item_id, tier, elapsed_minutes, planned_minutes, recorded_at
		FROM warning_records
		WHERE item_id = ?
		ORDER BY recorded_at ASC, tier ASC`, itemID)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var records []persistence.WarningRecord
	for rows.Next() {
		var record persistence.WarningRecord
		var recordedAt string
		if err := rows.Scan(&record.ItemID, &record.Tier, &record.ElapsedMinutes, &record.PlannedMinutes, &recordedAt); err != nil {
			return nil, mapSQLiteError(err)
		}
		if record.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError(err)
	}
	return records, nil
}

// DeleteWarningsForItem drops the ledger for one item, resetting its
// escalation state.
func (r *WarningRepository) DeleteWarningsForItem(ctx context.Context, itemID string) error {
	_, err := r.pool.db.ExecContext(ctx, `DELETE FROM warning_records WHERE item_id = ?`, itemID)
	return mapSQLiteError(err)
}
