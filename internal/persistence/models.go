package persistence

import "time"

// AgendaItem represents one ordered agenda entry stored for a room.
//
// Positions within a room are 1-based and contiguous; the repository
// implementations restore that invariant inside the same transaction as any
// mutation. A non-nil StartTime on an incomplete item marks the room's
// current item.
type AgendaItem struct {
	ID             string
	RoomID         string
	Position       int
	Title          string
	PlannedMinutes int
	IsCompleted    bool
	CompletedAt    *time.Time
	StartTime      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WarningRecord is the append-only idempotence ledger entry for one emitted
// time warning. At most one record exists per (item, tier) pair.
type WarningRecord struct {
	ItemID         string
	Tier           string
	ElapsedMinutes int
	PlannedMinutes int
	RecordedAt     time.Time
}

// ConfigSection is one sparse per-room configuration override. Absence of a
// section means the room inherits the global default for that concern.
type ConfigSection struct {
	RoomID       string
	Section      string
	Payload      []byte
	ConfiguredBy string
	ConfiguredAt time.Time
}
