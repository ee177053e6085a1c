package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/agenda-bot/internal/persistence"
)

// AgendaRepository implements persistence.AgendaRepository using SQLite.
//
// Ordering mutations run inside a single transaction and use a two-phase
// negate-then-apply update so the UNIQUE (room_id, position) constraint never
// observes a transient collision mid-statement.
type AgendaRepository struct {
	pool *ConnectionPool
}

// NewAgendaRepository creates a SQLite-backed agenda repository.
func NewAgendaRepository(pool *ConnectionPool) *AgendaRepository {
	return &AgendaRepository{pool: pool}
}

const agendaColumns = `id, room_id, position, title, planned_minutes, is_completed, completed_at, start_time, created_at, updated_at`

// CreateItem inserts a new item, resolving position conflicts to the next
// free slot inside the same transaction.
func (r *AgendaRepository) CreateItem(ctx context.Context, item persistence.AgendaItem, requestedPosition int) (persistence.AgendaItem, error) {
	if item.ID == "" || item.RoomID == "" {
		return persistence.AgendaItem{}, persistence.ErrConstraintViolation
	}
	if item.PlannedMinutes <= 0 {
		return persistence.AgendaItem{}, persistence.ErrConstraintViolation
	}

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var maxPosition int
		if err := tx.QueryRow(`SELECT COALESCE(MAX(position), 0) FROM agenda_items WHERE room_id = ?`, item.RoomID).Scan(&maxPosition); err != nil {
			return mapSQLiteError(err)
		}

		// Positions stay contiguous 1..N, so any request outside that range
		// appends. Requests beyond max+1 would leave a gap no later
		// compaction heals.
		position := requestedPosition
		if position <= 0 || position > maxPosition {
			position = maxPosition + 1
		} else {
			var occupied bool
			if err := tx.QueryRow(`SELECT EXISTS (SELECT 1 FROM agenda_items WHERE room_id = ? AND position = ?)`, item.RoomID, position).Scan(&occupied); err != nil {
				return mapSQLiteError(err)
			}
			if occupied {
				position = maxPosition + 1
			}
		}
		item.Position = position

		_, err := tx.Exec(`
			INSERT INTO agenda_items (`+agendaColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.RoomID,
			item.Position,
			item.Title,
			item.PlannedMinutes,
			boolToInt(item.IsCompleted),
			formatNullableTime(item.CompletedAt),
			formatNullableTime(item.StartTime),
			formatTime(item.CreatedAt),
			formatTime(item.UpdatedAt),
		)
		return mapSQLiteError(err)
	})
	if err != nil {
		return persistence.AgendaItem{}, err
	}
	return item, nil
}

// GetItem retrieves an item by ID.
func (r *AgendaRepository) GetItem(ctx context.Context, id string) (persistence.AgendaItem, error) {
	row := r.pool.db.QueryRowContext(ctx, `SELECT `+agendaColumns+` FROM agenda_items WHERE id = ?`, id)
	return scanAgendaItem(row)
}

// GetItemByPosition retrieves the item at a position within a room.
func (r *AgendaRepository) GetItemByPosition(ctx context.Context, roomID string, position int) (persistence.AgendaItem, error) {
	row := r.pool.db.QueryRowContext(ctx, `SELECT `+agendaColumns+` FROM agenda_items WHERE room_id = ? AND position = ?`, roomID, position)
	return scanAgendaItem(row)
}

// ListItems returns a room's items in position order.
func (r *AgendaRepository) ListItems(ctx context.Context, roomID string) ([]persistence.AgendaItem, error) {
	rows, err := r.pool.db.QueryContext(ctx, `SELECT `+agendaColumns+` FROM agenda_items WHERE room_id = ? ORDER BY position ASC`, roomID)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()
	return collectAgendaItems(rows)
}

// ListActiveItems returns started, incomplete items across all rooms.
func (r *AgendaRepository) ListActiveItems(ctx context.Context) ([]persistence.AgendaItem, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT `+agendaColumns+` FROM agenda_items
		WHERE is_completed = 0 AND start_time IS NOT NULL AND planned_minutes > 0
		ORDER BY room_id ASC, position ASC`)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()
	return collectAgendaItems(rows)
}

// UpdateItem updates an item's mutable attributes. Room and position are
// managed by the ordering operations and left untouched.
func (r *AgendaRepository) UpdateItem(ctx context.Context, item persistence.AgendaItem) error {
	if item.PlannedMinutes <= 0 {
		return persistence.ErrConstraintViolation
	}

	result, err := r.pool.db.ExecContext(ctx, `
		UPDATE agenda_items
		SET title = ?, planned_minutes = ?, is_completed = ?, completed_at = ?, start_time = ?, updated_at = ?
		WHERE id = ?`,
		item.Title,
		item.PlannedMinutes,
		boolToInt(item.IsCompleted),
		formatNullableTime(item.CompletedAt),
		formatNullableTime(item.StartTime),
		formatTime(item.UpdatedAt),
		item.ID,
	)
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

// Reorder applies a full item-id to position mapping atomically.
func (r *AgendaRepository) Reorder(ctx context.Context, roomID string, positions map[string]int) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		current, err := roomPositionsTx(tx, roomID)
		if err != nil {
			return err
		}
		for id := range positions {
			if _, ok := current[id]; !ok {
				return persistence.ErrNotFound
			}
		}

		// Only the remapped rows pass through negative position space; rows
		// outside the mapping keep their slots.
		for id := range positions {
			if _, err := tx.Exec(`UPDATE agenda_items SET position = -position WHERE id = ?`, id); err != nil {
				return mapSQLiteError(err)
			}
		}
		for id, position := range positions {
			if _, err := tx.Exec(`UPDATE agenda_items SET position = ? WHERE id = ?`, position, id); err != nil {
				return mapSQLiteError(err)
			}
		}
		return nil
	})
}

// Move shifts the item at from to to, sliding the items in between by one.
func (r *AgendaRepository) Move(ctx context.Context, roomID string, from, to int) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		current, err := roomPositionsTx(tx, roomID)
		if err != nil {
			return err
		}
		if to < 1 || to > len(current) {
			return persistence.ErrConstraintViolation
		}

		var movingID string
		for id, position := range current {
			if position == from {
				movingID = id
				break
			}
		}
		if movingID == "" {
			return persistence.ErrNotFound
		}
		if from == to {
			return nil
		}

		final := make(map[string]int)
		for id, position := range current {
			switch {
			case id == movingID:
				final[id] = to
			case to > from && position > from && position <= to:
				final[id] = position - 1
			case to < from && position >= to && position < from:
				final[id] = position + 1
			}
		}

		lo, hi := from, to
		if lo > hi {
			lo, hi = hi, lo
		}
		if _, err := tx.Exec(`UPDATE agenda_items SET position = -position WHERE room_id = ? AND position BETWEEN ? AND ?`, roomID, lo, hi); err != nil {
			return mapSQLiteError(err)
		}
		for id, position := range final {
			if _, err := tx.Exec(`UPDATE agenda_items SET position = ? WHERE id = ?`, position, id); err != nil {
				return mapSQLiteError(err)
			}
		}
		return nil
	})
}

// Swap exchanges the positions of two items.
func (r *AgendaRepository) Swap(ctx context.Context, roomID string, a, b int) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		firstID, err := itemIDAtPositionTx(tx, roomID, a)
		if err != nil {
			return err
		}
		if a == b {
			return nil
		}
		secondID, err := itemIDAtPositionTx(tx, roomID, b)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(`UPDATE agenda_items SET position = -position WHERE id IN (?, ?)`, firstID, secondID); err != nil {
			return mapSQLiteError(err)
		}
		if _, err := tx.Exec(`UPDATE agenda_items SET position = ? WHERE id = ?`, b, firstID); err != nil {
			return mapSQLiteError(err)
		}
		if _, err := tx.Exec(`UPDATE agenda_items SET position = ? WHERE id = ?`, a, secondID); err != nil {
			return mapSQLiteError(err)
		}
		return nil
	})
}

// Remove deletes the item at a position and compacts higher positions down
// by one in the same transaction.
func (r *AgendaRepository) Remove(ctx context.Context, roomID string, position int) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		id, err := itemIDAtPositionTx(tx, roomID, position)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(`DELETE FROM agenda_items WHERE id = ?`, id); err != nil {
			return mapSQLiteError(err)
		}
		// Shift the tail down through negative position space so the unique
		// constraint holds throughout.
		if _, err := tx.Exec(`UPDATE agenda_items SET position = -(position - 1) WHERE room_id = ? AND position > ?`, roomID, position); err != nil {
			return mapSQLiteError(err)
		}
		if _, err := tx.Exec(`UPDATE agenda_items SET position = -position WHERE room_id = ? AND position < 0`, roomID); err != nil {
			return mapSQLiteError(err)
		}
		return nil
	})
}

// RemoveCompleted deletes completed items and densely renumbers the rest.
func (r *AgendaRepository) RemoveCompleted(ctx context.Context, roomID string) (int, error) {
	removed := 0
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(`DELETE FROM agenda_items WHERE room_id = ? AND is_completed = 1`, roomID)
		if err != nil {
			return mapSQLiteError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		removed = int(affected)

		rows, err := tx.Query(`SELECT id FROM agenda_items WHERE room_id = ? ORDER BY position ASC`, roomID)
		if err != nil {
			return mapSQLiteError(err)
		}
		remaining := make([]string, 0)
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return mapSQLiteError(err)
			}
			remaining = append(remaining, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return mapSQLiteError(err)
		}
		rows.Close()

		if _, err := tx.Exec(`UPDATE agenda_items SET position = -position WHERE room_id = ?`, roomID); err != nil {
			return mapSQLiteError(err)
		}
		for index, id := range remaining {
			if _, err := tx.Exec(`UPDATE agenda_items SET position = ? WHERE id = ?`, index+1, id); err != nil {
				return mapSQLiteError(err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// SetCurrentItem clears every other start marker in the room and stamps the
// target, all within one transaction.
func (r *AgendaRepository) SetCurrentItem(ctx context.Context, roomID, itemID string, startedAt time.Time) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var storedRoom string
		if err := tx.QueryRow(`SELECT room_id FROM agenda_items WHERE id = ?`, itemID).Scan(&storedRoom); err != nil {
			return mapSQLiteError(err)
		}
		if storedRoom != roomID {
			return persistence.ErrNotFound
		}

		if _, err := tx.Exec(`
			UPDATE agenda_items SET start_time = NULL
			WHERE room_id = ? AND id <> ? AND is_completed = 0 AND start_time IS NOT NULL`, roomID, itemID); err != nil {
			return mapSQLiteError(err)
		}
		if _, err := tx.Exec(`UPDATE agenda_items SET start_time = ? WHERE id = ?`, formatTime(startedAt), itemID); err != nil {
			return mapSQLiteError(err)
		}
		return nil
	})
}

// ClearActiveItems removes start markers from incomplete items in a room.
func (r *AgendaRepository) ClearActiveItems(ctx context.Context, roomID string) (int, error) {
	result, err := r.pool.db.ExecContext(ctx, `
		UPDATE agenda_items SET start_time = NULL
		WHERE room_id = ? AND is_completed = 0 AND start_time IS NOT NULL`, roomID)
	if err != nil {
		return 0, mapSQLiteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// --- Helpers ---

func roomPositionsTx(tx *sql.Tx, roomID string) (map[string]int, error) {
	rows, err := tx.Query(`SELECT id, position FROM agenda_items WHERE room_id = ?`, roomID)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	positions := make(map[string]int)
	for rows.Next() {
		var id string
		var position int
		if err := rows.Scan(&id, &position); err != nil {
			return nil, mapSQLiteError(err)
		}
		positions[id] = position
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError(err)
	}
	return positions, nil
}

func itemIDAtPositionTx(tx *sql.Tx, roomID string, position int) (string, error) {
	var id string
	err := tx.QueryRow(`SELECT id FROM agenda_items WHERE room_id = ? AND position = ?`, roomID, position).Scan(&id)
	if err != nil {
		return "", mapSQLiteError(err)
	}
	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgendaItem(scanner rowScanner) (persistence.AgendaItem, error) {
	var item persistence.AgendaItem
	var completed int
	var completedAt, startTime sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&item.ID,
		&item.RoomID,
		&item.Position,
		&item.Title,
		&item.PlannedMinutes,
		&completed,
		&completedAt,
		&startTime,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.AgendaItem{}, mapSQLiteError(err)
	}

	item.IsCompleted = completed != 0
	if item.CompletedAt, err = parseNullableTime(completedAt); err != nil {
		return persistence.AgendaItem{}, fmt.Errorf("failed to parse completed_at: %w", err)
	}
	if item.StartTime, err = parseNullableTime(startTime); err != nil {
		return persistence.AgendaItem{}, fmt.Errorf("failed to parse start_time: %w", err)
	}
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.AgendaItem{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if item.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.AgendaItem{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return item, nil
}

func collectAgendaItems(rows *sql.Rows) ([]persistence.AgendaItem, error) {
	var items []persistence.AgendaItem
	for rows.Next() {
		item, err := scanAgendaItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError(err)
	}
	return items, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullableTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	parsed, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
