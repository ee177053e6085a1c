package sqlite

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS agenda_items (
		id              TEXT PRIMARY KEY,
		room_id         TEXT NOT NULL,
		position        INTEGER NOT NULL,
		title           TEXT NOT NULL,
		planned_minutes INTEGER NOT NULL CHECK (planned_minutes > 0),
		is_completed    INTEGER NOT NULL DEFAULT 0,
		completed_at    TEXT,
		start_time      TEXT,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL,
		UNIQUE (room_id, position)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_agenda_items_room ON agenda_items (room_id, position)`,
	`CREATE INDEX IF NOT EXISTS idx_agenda_items_active ON agenda_items (is_completed, start_time)`,
	`CREATE TABLE IF NOT EXISTS warning_records (
		item_id         TEXT NOT NULL REFERENCES agenda_items (id) ON DELETE CASCADE,
		tier            TEXT NOT NULL,
		elapsed_minutes INTEGER NOT NULL,
		planned_minutes INTEGER NOT NULL,
		recorded_at     TEXT NOT NULL,
		PRIMARY KEY (item_id, tier)
	)`,
	`CREATE TABLE IF NOT EXISTS room_config_sections (
		room_id       TEXT NOT NULL,
		section       TEXT NOT NULL,
		payload       TEXT NOT NULL,
		configured_by TEXT NOT NULL,
		configured_at TEXT NOT NULL,
		PRIMARY KEY (room_id, section)
	)`,
}

// Migrate creates the schema when absent. Statements are idempotent so the
// binary can run it unconditionally at startup.
func (cp *ConnectionPool) Migrate(ctx context.Context) error {
	for _, statement := range schemaStatements {
		if _, err := cp.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
