package application

import "time"

// Actor represents the user behind an inbound command. Capabilities arrive
// pre-resolved from the external permission authority; this layer only gates
// on them.
type Actor struct {
	UserID      string
	CanModerate bool
	CanAddItems bool
}

// AgendaItem represents one ordered agenda entry exposed by the services.
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

// IsActive reports whether the item is the room's current item. The start
// marker doubles as the activity flag; call sites never inspect the raw
// timestamp for boolean meaning.
func (i AgendaItem) IsActive() bool {
	return i.StartTime != nil && !i.IsCompleted
}

// WarningTier identifies one of the three ordered time-warning severities.
type WarningTier string

const (
	// TierApproaching fires when elapsed time crosses the warning threshold.
	TierApproaching WarningTier = "approaching"
	// TierOvertime fires when elapsed time reaches the full plan. The 1.0
	// threshold is fixed and never configurable.
	TierOvertime WarningTier = "overtime"
	// TierOvertimeCritical fires when elapsed time crosses the overtime
	// threshold.
	TierOvertimeCritical WarningTier = "overtime_critical"
)

// Rank returns the tier's place in the escalation order. Higher ranks never
// yield back to lower ones for a given item.
func (t WarningTier) Rank() int {
	switch t {
	case TierApproaching:
		return 1
	case TierOvertime:
		return 2
	case TierOvertimeCritical:
		return 3
	}
	return 0
}

// Valid reports whether the value names a known tier.
func (t WarningTier) Valid() bool {
	return t.Rank() > 0
}

// WarningRecord is one entry in the per-item idempotence ledger.
type WarningRecord struct {
	ItemID         string
	Tier           WarningTier
	ElapsedMinutes int
	PlannedMinutes int
	RecordedAt     time.Time
}

// ConfigSource identifies where an effective setting came from.
type ConfigSource string

const (
	// SourceRoom marks a value overridden by the room document.
	SourceRoom ConfigSource = "room"
	// SourceGlobal marks a value inherited from the global defaults.
	SourceGlobal ConfigSource = "global"
)

// TimeMonitoringConfig is the effective time-monitoring configuration for a
// room after override resolution.
type TimeMonitoringConfig struct {
	Enabled           bool
	WarningThreshold  float64
	OvertimeThreshold float64
	Source            ConfigSource
	ConfiguredBy      string
	ConfiguredAt      *time.Time
}

// TimeMonitoringPatch carries a partial time-monitoring update. Nil fields
// keep their current effective value.
type TimeMonitoringPatch struct {
	Enabled           *bool
	WarningThreshold  *float64
	OvertimeThreshold *float64
}

// ResponseMode controls how the bot delivers messages to a room.
type ResponseMode string

const (
	// ResponseModeNormal delivers messages with notifications.
	ResponseModeNormal ResponseMode = "normal"
	// ResponseModeSilent delivers messages without notifying members.
	ResponseModeSilent ResponseMode = "silent"
)

// AgendaLimits bounds per-room agenda growth. Zero values mean unlimited.
type AgendaLimits struct {
	MaxItems          int
	MaxPlannedMinutes int
}

// AutoBehaviors toggles automatic reactions to lifecycle events.
type AutoBehaviors struct {
	AutoAdvance      bool
	AutoCleanupOnEnd bool
}

// DisplaySymbols customizes the status markers external formatters render.
type DisplaySymbols struct {
	Current   string
	Completed string
	Pending   string
}

// RoomSettings aggregates every resolved section for a room, with the source
// of each.
type RoomSettings struct {
	TimeMonitoring TimeMonitoringConfig
	ResponseMode   ResponseMode
	ResponseSource ConfigSource
	Limits         AgendaLimits
	LimitsSource   ConfigSource
	Behaviors      AutoBehaviors
	BehaviorsSrc   ConfigSource
	Symbols        DisplaySymbols
	SymbolsSource  ConfigSource
	Language       string
	LanguageSource ConfigSource
}

// GlobalDefaults supplies the fallback values used when a room has no
// override for a section.
type GlobalDefaults struct {
	TimeMonitoringEnabled bool
	WarningThreshold      float64
	OvertimeThreshold     float64
	ResponseMode          ResponseMode
	Limits                AgendaLimits
	Behaviors             AutoBehaviors
	Symbols               DisplaySymbols
	Language              string
}

// BuiltinDefaults returns the hardcoded end of the override → global →
// hardcoded fallback chain.
func BuiltinDefaults() GlobalDefaults {
	return GlobalDefaults{
		TimeMonitoringEnabled: true,
		WarningThreshold:      0.8,
		OvertimeThreshold:     1.5,
		ResponseMode:          ResponseModeNormal,
		Limits:                AgendaLimits{MaxItems: 50, MaxPlannedMinutes: 480},
		Behaviors:             AutoBehaviors{AutoAdvance: true, AutoCleanupOnEnd: false},
		Symbols:               DisplaySymbols{Current: "▶", Completed: "✅", Pending: "⬜"},
		Language:              "en",
	}
}

// AddItemParams wraps the data required to add an agenda item.
type AddItemParams struct {
	Actor             Actor
	RoomID            string
	Title             string
	PlannedMinutes    int
	RequestedPosition int
}

// ReorderParams wraps the data required to reorder a room's agenda. The
// value at index i is the new position for the item currently at position
// i+1.
type ReorderParams struct {
	Actor     Actor
	RoomID    string
	Positions []int
}

// MoveParams wraps the data required to move an item to a new position.
type MoveParams struct {
	Actor  Actor
	RoomID string
	From   int
	To     int
}

// SwapParams wraps the data required to swap two items.
type SwapParams struct {
	Actor  Actor
	RoomID string
	A      int
	B      int
}

// SetPlannedMinutesParams wraps a planned-duration edit.
type SetPlannedMinutesParams struct {
	Actor          Actor
	RoomID         string
	Position       int
	PlannedMinutes int
}

// CompleteParams wraps the data required to complete an item. A zero
// Position targets the room's current item.
type CompleteParams struct {
	Actor    Actor
	RoomID   string
	Position int
}

// CompleteResult reports a completion and, when auto-advance found one, the
// next active item.
type CompleteResult struct {
	Completed AgendaItem
	Next      *AgendaItem
}

// CallEndedResult reports what the end-of-call cleanup touched.
type CallEndedResult struct {
	ClearedActive    int
	RemovedCompleted int
}
