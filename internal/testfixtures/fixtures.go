package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/agenda-bot/internal/application"
	"github.com/example/agenda-bot/internal/persistence"
)

var (
	itemCounter    uint64
	warningCounter uint64
)

var referenceTime = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ItemFixture represents a deterministic agenda item record that can be
// materialised for application or persistence tests.
type ItemFixture struct {
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

// ItemOption configures the generated item fixture.
type ItemOption func(*ItemFixture)

// NewItemFixture returns a deterministic agenda item fixture with optional
// overrides.
func NewItemFixture(opts ...ItemOption) ItemFixture {
	idx := atomic.AddUint64(&itemCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := ItemFixture{
		ID:             fmt.Sprintf("item-%03d", idx),
		RoomID:         "room-001",
		Position:       int(idx),
		Title:          fmt.Sprintf("Topic %03d", idx),
		PlannedMinutes: 10,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithItemID overrides the generated item ID.
func WithItemID(id string) ItemOption {
	return func(f *ItemFixture) {
		f.ID = id
	}
}

// WithItemRoom sets the owning room.
func WithItemRoom(roomID string) ItemOption {
	return func(f *ItemFixture) {
		f.RoomID = roomID
	}
}

// WithItemPosition sets the 1-based position.
func WithItemPosition(position int) ItemOption {
	return func(f *ItemFixture) {
		f.Position = position
	}
}

// WithItemTitle overrides the generated title.
func WithItemTitle(title string) ItemOption {
	return func(f *ItemFixture) {
		f.Title = title
	}
}

// WithItemPlannedMinutes sets the planned duration.
func WithItemPlannedMinutes(minutes int) ItemOption {
	return func(f *ItemFixture) {
		f.PlannedMinutes = minutes
	}
}

// WithItemStarted marks the item active as of the given time.
func WithItemStarted(startedAt time.Time) ItemOption {
	return func(f *ItemFixture) {
		started := startedAt
		f.StartTime = &started
	}
}

// WithItemCompleted marks the item completed at the given time.
func WithItemCompleted(completedAt time.Time) ItemOption {
	return func(f *ItemFixture) {
		completed := completedAt
		f.IsCompleted = true
		f.CompletedAt = &completed
	}
}

// WithItemTimestamps sets both created and updated timestamps.
func WithItemTimestamps(created, updated time.Time) ItemOption {
	return func(f *ItemFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Application returns the fixture as an application.AgendaItem value.
func (f ItemFixture) Application() application.AgendaItem {
	return application.AgendaItem{
		ID:             f.ID,
		RoomID:         f.RoomID,
		Position:       f.Position,
		Title:          f.Title,
		PlannedMinutes: f.PlannedMinutes,
		IsCompleted:    f.IsCompleted,
		CompletedAt:    copyTimePtr(f.CompletedAt),
		StartTime:      copyTimePtr(f.StartTime),
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

// Persistence returns the fixture as a persistence.AgendaItem value.
func (f ItemFixture) Persistence() persistence.AgendaItem {
	return persistence.AgendaItem{
		ID:             f.ID,
		RoomID:         f.RoomID,
		Position:       f.Position,
		Title:          f.Title,
		PlannedMinutes: f.PlannedMinutes,
		IsCompleted:    f.IsCompleted,
		CompletedAt:    copyTimePtr(f.CompletedAt),
		StartTime:      copyTimePtr(f.StartTime),
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

// WarningFixture represents a deterministic warning ledger entry.
type WarningFixture struct {
	ItemID         string
	Tier           string
	ElapsedMinutes int
	PlannedMinutes int
	RecordedAt     time.Time
}

// WarningOption configures the generated warning fixture.
type WarningOption func(*WarningFixture)

// NewWarningFixture returns a deterministic warning fixture with optional
// overrides.
func NewWarningFixture(opts ...WarningOption) WarningFixture {
	idx := atomic.AddUint64(&warningCounter, 1)
	fixture := WarningFixture{
		ItemID:         fmt.Sprintf("item-%03d", idx),
		Tier:           string(application.TierApproaching),
		ElapsedMinutes: 9,
		PlannedMinutes: 10,
		RecordedAt:     referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithWarningItem sets the parent item ID.
func WithWarningItem(itemID string) WarningOption {
	return func(f *WarningFixture) {
		f.ItemID = itemID
	}
}

// WithWarningTier sets the warning tier.
func WithWarningTier(tier application.WarningTier) WarningOption {
	return func(f *WarningFixture) {
		f.Tier = string(tier)
	}
}

// WithWarningMinutes sets the elapsed and planned minute snapshot.
func WithWarningMinutes(elapsed, planned int) WarningOption {
	return func(f *WarningFixture) {
		f.ElapsedMinutes = elapsed
		f.PlannedMinutes = planned
	}
}

// WithWarningRecordedAt sets the record timestamp.
func WithWarningRecordedAt(t time.Time) WarningOption {
	return func(f *WarningFixture) {
		f.RecordedAt = t
	}
}

// Application returns the fixture as an application.WarningRecord value.
func (f WarningFixture) Application() application.WarningRecord {
	return application.WarningRecord{
		ItemID:         f.ItemID,
		Tier:           application.WarningTier(f.Tier),
		ElapsedMinutes: f.ElapsedMinutes,
		PlannedMinutes: f.PlannedMinutes,
		RecordedAt:     f.RecordedAt,
	}
}

// Persistence returns the fixture as a persistence.WarningRecord value.
func (f WarningFixture) Persistence() persistence.WarningRecord {
	return persistence.WarningRecord{
		ItemID:         f.ItemID,
		Tier:           f.Tier,
		ElapsedMinutes: f.ElapsedMinutes,
		PlannedMinutes: f.PlannedMinutes,
		RecordedAt:     f.RecordedAt,
	}
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
