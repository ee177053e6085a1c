package sqlite

import (
	"context"
	"fmt"

	"github.com/example/agenda-bot/internal/persistence"
)

// RoomConfigRepository implements persistence.RoomConfigRepository using
// SQLite. Sections are sparse rows keyed by (room_id, section); absence of a
// row means the room inherits the global default for that concern.
type RoomConfigRepository struct {
	pool *ConnectionPool
}

// NewRoomConfigRepository creates a SQLite-backed room config store.
func NewRoomConfigRepository(pool *ConnectionPool) *RoomConfigRepository {
	return &RoomConfigRepository{pool: pool}
}

// GetSection retrieves one configuration section for a room.
func (r *RoomConfigRepository) GetSection(ctx context.Context, roomID, section string) (persistence.ConfigSection, error) {
	row := r.pool.db.QueryRowContext(ctx, `
		SELECT room_id, section, payload, configured_by, configured_at
		FROM room_config_sections
		WHERE room_id = ? AND section = ?`, roomID, section)

	var stored persistence.ConfigSection
	var payload string
	var configuredAt string
	if err := row.Scan(&stored.RoomID, &stored.Section, &payload, &stored.ConfiguredBy, &configuredAt); err != nil {
		return persistence.ConfigSection{}, mapSQLiteError(err)
	}

	stored.Payload = []byte(payload)
	parsed, err := parseTime(configuredAt)
	if err != nil {
		return persistence.ConfigSection{}, fmt.Errorf("failed to parse configured_at: %w", err)
	}
	stored.ConfiguredAt = parsed
	return stored, nil
}

// ListSections returns all sections stored for a room ordered by name.
func (r *RoomConfigRepository) ListSections(ctx context.Context, roomID string) ([]persistence.ConfigSection, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT room_id, section, payload, configured_by, configured_at
		FROM room_config_sections
		WHERE room_id = ?
		ORDER BY section ASC`, roomID)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var sections []persistence.ConfigSection
	for rows.Next() {
		var stored persistence.ConfigSection
		var payload, configuredAt string
		if err := rows.Scan(&stored.RoomID, &stored.Section, &payload, &stored.ConfiguredBy, &configuredAt); err != nil {
			return nil, mapSQLiteError(err)
		}
		stored.Payload = []byte(payload)
		if stored.ConfiguredAt, err = parseTime(configuredAt); err != nil {
			return nil, fmt.Errorf("failed to parse configured_at: %w", err)
		}
		sections = append(sections, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError(err)
	}
	return sections, nil
}

// UpsertSection creates or replaces a section.
func (r *RoomConfigRepository) UpsertSection(ctx context.Context, section persistence.ConfigSection) error {
	if section.RoomID == "" || section.Section == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO room_config_sections (room_id, section, payload, configured_by, configured_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (room_id, section) DO UPDATE SET
			payload = excluded.payload,
			configured_by = excluded.configured_by,
			configured_at = excluded.configured_at`,
		section.RoomID,
		section.Section,
		string(section.Payload),
		section.ConfiguredBy,
		formatTime(section.ConfiguredAt),
	)
	return mapSQLiteError(err)
}

// DeleteSection removes one section; deleting an absent section fails with
// persistence.ErrNotFound.
func (r *RoomConfigRepository) DeleteSection(ctx context.Context, roomID, section string) error {
	result, err := r.pool.db.ExecContext(ctx, `
		DELETE FROM room_config_sections WHERE room_id = ? AND section = ?`, roomID, section)
	if err != nil {
		return mapSQLiteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// DeleteRoomConfig removes every section for a room, auxiliary rows included.
func (r *RoomConfigRepository) DeleteRoomConfig(ctx context.Context, roomID string) error {
	_, err := r.pool.db.ExecContext(ctx, `DELETE FROM room_config_sections WHERE room_id = ?`, roomID)
	return mapSQLiteError(err)
}
