package persistence

import (
	"context"
	"time"
)

// AgendaRepository stores the ordered agenda item collection per room and
// owns the position invariants. Every ordering mutation is applied as a
// single atomic unit.
type AgendaRepository interface {
	// CreateItem persists a new item. When requestedPosition is outside
	// 1..max(position) or already occupied the item is appended at
	// max(position)+1; position conflicts never fail.
	CreateItem(ctx context.Context, item AgendaItem, requestedPosition int) (AgendaItem, error)
	GetItem(ctx context.Context, id string) (AgendaItem, error)
	GetItemByPosition(ctx context.Context, roomID string, position int) (AgendaItem, error)
	// ListItems returns a room's items in position order.
	ListItems(ctx context.Context, roomID string) ([]AgendaItem, error)
	// ListActiveItems returns, across all rooms, items that are not
	// completed, carry a start marker, and have a positive plan.
	ListActiveItems(ctx context.Context) ([]AgendaItem, error)
	UpdateItem(ctx context.Context, item AgendaItem) error
	// Reorder applies a full item-id to position mapping for a room.
	Reorder(ctx context.Context, roomID string, positions map[string]int) error
	// Move shifts the item at from to to, sliding the items between by one.
	Move(ctx context.Context, roomID string, from, to int) error
	// Swap exchanges the positions of two items.
	Swap(ctx context.Context, roomID string, a, b int) error
	// Remove deletes the item at position and compacts higher positions
	// down by one in the same transaction.
	Remove(ctx context.Context, roomID string, position int) error
	// RemoveCompleted deletes all completed items and densely renumbers the
	// remainder from 1, preserving relative order. Returns the delete count.
	RemoveCompleted(ctx context.Context, roomID string) (int, error)
	// SetCurrentItem clears the start marker on every other incomplete item
	// in the room and stamps the target, in one transaction.
	SetCurrentItem(ctx context.Context, roomID, itemID string, startedAt time.Time) error
	// ClearActiveItems removes start markers from all incomplete items in
	// the room without completing them. Returns the cleared count.
	ClearActiveItems(ctx context.Context, roomID string) (int, error)
}

// WarningRepository stores the append-only warning ledger.
type WarningRepository interface {
	// RecordWarning appends a ledger entry; a second record for the same
	// (item, tier) pair fails with ErrDuplicate.
	RecordWarning(ctx context.Context, record WarningRecord) error
	ListWarningsForItem(ctx context.Context, itemID string) ([]WarningRecord, error)
	// DeleteWarningsForItem resets the monitoring state for an item, used
	// when its planned duration is edited.
	DeleteWarningsForItem(ctx context.Context, itemID string) error
}

// RoomConfigRepository stores sparse per-room configuration sections.
type RoomConfigRepository interface {
	GetSection(ctx context.Context, roomID, section string) (ConfigSection, error)
	ListSections(ctx context.Context, roomID string) ([]ConfigSection, error)
	UpsertSection(ctx context.Context, section ConfigSection) error
	DeleteSection(ctx context.Context, roomID, section string) error
	// DeleteRoomConfig removes every section, including auxiliary ones, for
	// the room.
	DeleteRoomConfig(ctx context.Context, roomID string) error
}
