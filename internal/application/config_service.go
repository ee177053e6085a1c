package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Section names for the sparse per-room configuration document. Auxiliary
// sections carry bookkeeping and do not count toward document existence.
const (
	SectionTimeMonitoring = "time_monitoring"
	SectionResponseMode   = "response_mode"
	SectionAgendaLimits   = "agenda_limits"
	SectionAutoBehaviors  = "auto_behaviors"
	SectionDisplaySymbols = "display_symbols"
	SectionLanguage       = "language"
	SectionLastSummary    = "last_summary"
)

// Threshold clamp bounds applied at write time.
const (
	minWarningThreshold  = 0.10
	maxWarningThreshold  = 0.95
	minOvertimeThreshold = 1.05
	maxOvertimeThreshold = 3.00
)

var meaningfulSections = map[string]bool{
	SectionTimeMonitoring: true,
	SectionResponseMode:   true,
	SectionAgendaLimits:   true,
	SectionAutoBehaviors:  true,
	SectionDisplaySymbols: true,
}

var resettableSections = map[string]bool{
	SectionTimeMonitoring: true,
	SectionResponseMode:   true,
	SectionAgendaLimits:   true,
	SectionAutoBehaviors:  true,
	SectionDisplaySymbols: true,
	SectionLanguage:       true,
}

// ConfigSection mirrors one stored per-room override row.
type ConfigSection struct {
	RoomID       string
	Section      string
	Payload      []byte
	ConfiguredBy string
	ConfiguredAt time.Time
}

// RoomConfigRepository captures the persistence operations needed by the
// resolver.
type RoomConfigRepository interface {
	GetSection(ctx context.Context, roomID, section string) (ConfigSection, error)
	ListSections(ctx context.Context, roomID string) ([]ConfigSection, error)
	UpsertSection(ctx context.Context, section ConfigSection) error
	DeleteSection(ctx context.Context, roomID, section string) error
	DeleteRoomConfig(ctx context.Context, roomID string) error
}

// RoomConfigService resolves effective per-room settings through the
// room-override → global-default chain. Absence of a stored section means
// inheritance, so partial updates never clobber sibling sections.
type RoomConfigService struct {
	sections RoomConfigRepository
	defaults GlobalDefaults
	now      func() time.Time
	logger   *slog.Logger
}

// NewRoomConfigService constructs the resolver with the provided defaults.
func NewRoomConfigService(sections RoomConfigRepository, defaults GlobalDefaults, now func() time.Time) *RoomConfigService {
	return NewRoomConfigServiceWithLogger(sections, defaults, now, nil)
}

// NewRoomConfigServiceWithLogger constructs the resolver with a specified logger.
func NewRoomConfigServiceWithLogger(sections RoomConfigRepository, defaults GlobalDefaults, now func() time.Time, logger *slog.Logger) *RoomConfigService {
	if now == nil {
		now = time.Now
	}
	return &RoomConfigService{sections: sections, defaults: defaults, now: now, logger: defaultLogger(logger)}
}

func (s *RoomConfigService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RoomConfigService", operation, attrs...)
}

type timeMonitoringPayload struct {
	Enabled           bool    `json:"enabled"`
	WarningThreshold  float64 `json:"warning_threshold"`
	OvertimeThreshold float64 `json:"overtime_threshold"`
}

type responseModePayload struct {
	Mode string `json:"mode"`
}

type agendaLimitsPayload struct {
	MaxItems          int `json:"max_items"`
	MaxPlannedMinutes int `json:"max_planned_minutes"`
}

type autoBehaviorsPayload struct {
	AutoAdvance      bool `json:"auto_advance"`
	AutoCleanupOnEnd bool `json:"auto_cleanup_on_end"`
}

type displaySymbolsPayload struct {
	Current   string `json:"current"`
	Completed string `json:"completed"`
	Pending   string `json:"pending"`
}

type languagePayload struct {
	Language string `json:"language"`
}

type lastSummaryPayload struct {
	MessageID string `json:"message_id"`
}

// GetTimeMonitoring resolves the effective time-monitoring configuration for
// a room.
func (s *RoomConfigService) GetTimeMonitoring(ctx context.Context, roomID string) (TimeMonitoringConfig, error) {
	fallback := TimeMonitoringConfig{
		Enabled:           s.defaults.TimeMonitoringEnabled,
		WarningThreshold:  s.defaults.WarningThreshold,
		OvertimeThreshold: s.defaults.OvertimeThreshold,
		Source:            SourceGlobal,
	}
	if s.sections == nil {
		return fallback, nil
	}

	stored, err := s.sections.GetSection(ctx, roomID, SectionTimeMonitoring)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fallback, nil
		}
		return TimeMonitoringConfig{}, err
	}

	var payload timeMonitoringPayload
	if err := json.Unmarshal(stored.Payload, &payload); err != nil {
		return TimeMonitoringConfig{}, fmt.Errorf("failed to decode time monitoring section: %w", err)
	}

	configuredAt := stored.ConfiguredAt
	return TimeMonitoringConfig{
		Enabled:           payload.Enabled,
		WarningThreshold:  payload.WarningThreshold,
		OvertimeThreshold: payload.OvertimeThreshold,
		Source:            SourceRoom,
		ConfiguredBy:      stored.ConfiguredBy,
		ConfiguredAt:      &configuredAt,
	}, nil
}

// SetTimeMonitoringParams wraps a partial time-monitoring update.
type SetTimeMonitoringParams struct {
	Actor  Actor
	RoomID string
	Patch  TimeMonitoringPatch
}

// SetTimeMonitoring merges the patch onto the current effective
// configuration, clamps thresholds to their legal ranges, and stores the
// result stamped with the acting user.
func (s *RoomConfigService) SetTimeMonitoring(ctx context.Context, params SetTimeMonitoringParams) (cfg TimeMonitoringConfig, err error) {
	logger := s.loggerWith(ctx, "SetTimeMonitoring",
		"room_id", params.RoomID,
		"actor_id", params.Actor.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update time monitoring config", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "time monitoring config updated",
			"enabled", cfg.Enabled,
			"warning_threshold", cfg.WarningThreshold,
			"overtime_threshold", cfg.OvertimeThreshold,
		)
	}()

	if !params.Actor.CanModerate {
		err = ErrPermissionDenied
		return
	}

	effective, err := s.GetTimeMonitoring(ctx, params.RoomID)
	if err != nil {
		return TimeMonitoringConfig{}, err
	}

	// Merge onto the effective values so a single-field patch keeps its
	// siblings.
	if params.Patch.Enabled != nil {
		effective.Enabled = *params.Patch.Enabled
	}
	if params.Patch.WarningThreshold != nil {
		effective.WarningThreshold = *params.Patch.WarningThreshold
	}
	if params.Patch.OvertimeThreshold != nil {
		effective.OvertimeThreshold = *params.Patch.OvertimeThreshold
	}

	effective.WarningThreshold = clamp(effective.WarningThreshold, minWarningThreshold, maxWarningThreshold)
	effective.OvertimeThreshold = clamp(effective.OvertimeThreshold, minOvertimeThreshold, maxOvertimeThreshold)

	payload, err := json.Marshal(timeMonitoringPayload{
		Enabled:           effective.Enabled,
		WarningThreshold:  effective.WarningThreshold,
		OvertimeThreshold: effective.OvertimeThreshold,
	})
	if err != nil {
		return TimeMonitoringConfig{}, err
	}

	configuredAt := s.now()
	if err = s.sections.UpsertSection(ctx, ConfigSection{
		RoomID:       params.RoomID,
		Section:      SectionTimeMonitoring,
		Payload:      payload,
		ConfiguredBy: params.Actor.UserID,
		ConfiguredAt: configuredAt,
	}); err != nil {
		return TimeMonitoringConfig{}, err
	}

	effective.Source = SourceRoom
	effective.ConfiguredBy = params.Actor.UserID
	effective.ConfiguredAt = &configuredAt
	cfg = effective
	return cfg, nil
}

// ResetParams wraps a configuration reset. An empty Section resets the whole
// room document.
type ResetParams struct {
	Actor   Actor
	RoomID  string
	Section string
}

// Reset removes a room's overrides. Resetting a single section restores
// global behavior for that section only; once no meaningful sections remain
// the whole document is deleted, auxiliary bookkeeping included.
func (s *RoomConfigService) Reset(ctx context.Context, params ResetParams) (err error) {
	logger := s.loggerWith(ctx, "Reset",
		"room_id", params.RoomID,
		"actor_id", params.Actor.UserID,
		"section", params.Section,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to reset room config", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "room config reset")
	}()

	if !params.Actor.CanModerate {
		return ErrPermissionDenied
	}

	if params.Section == "" {
		return s.sections.DeleteRoomConfig(ctx, params.RoomID)
	}

	if !resettableSections[params.Section] {
		vErr := &ValidationError{}
		vErr.add("section", "unknown configuration section")
		return vErr
	}

	if err := s.sections.DeleteSection(ctx, params.RoomID, params.Section); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Nothing was removed, so the document cannot have just lost its
			// last meaningful section; leave it untouched.
			return nil
		}
		return err
	}

	remaining, err := s.sections.ListSections(ctx, params.RoomID)
	if err != nil {
		return err
	}
	for _, section := range remaining {
		if meaningfulSections[section.Section] {
			return nil
		}
	}
	if len(remaining) == 0 {
		return nil
	}
	return s.sections.DeleteRoomConfig(ctx, params.RoomID)
}

// SetResponseMode stores the room's message delivery mode.
func (s *RoomConfigService) SetResponseMode(ctx context.Context, actor Actor, roomID string, mode ResponseMode) error {
	if !actor.CanModerate {
		return ErrPermissionDenied
	}
	if mode != ResponseModeNormal && mode != ResponseModeSilent {
		vErr := &ValidationError{}
		vErr.add("mode", "mode must be normal or silent")
		return vErr
	}
	return s.upsertJSON(ctx, actor, roomID, SectionResponseMode, responseModePayload{Mode: string(mode)})
}

// ResponseMode resolves the room's effective message delivery mode.
func (s *RoomConfigService) ResponseMode(ctx context.Context, roomID string) (ResponseMode, ConfigSource, error) {
	var payload responseModePayload
	found, err := s.getJSON(ctx, roomID, SectionResponseMode, &payload)
	if err != nil {
		return "", "", err
	}
	if !found {
		return s.defaults.ResponseMode, SourceGlobal, nil
	}
	return ResponseMode(payload.Mode), SourceRoom, nil
}

// SetAgendaLimits stores the room's agenda growth bounds. Negative values
// clamp to zero (unlimited).
func (s *RoomConfigService) SetAgendaLimits(ctx context.Context, actor Actor, roomID string, limits AgendaLimits) error {
	if !actor.CanModerate {
		return ErrPermissionDenied
	}
	if limits.MaxItems < 0 {
		limits.MaxItems = 0
	}
	if limits.MaxPlannedMinutes < 0 {
		limits.MaxPlannedMinutes = 0
	}
	return s.upsertJSON(ctx, actor, roomID, SectionAgendaLimits, agendaLimitsPayload{
		MaxItems:          limits.MaxItems,
		MaxPlannedMinutes: limits.MaxPlannedMinutes,
	})
}

// AgendaLimits resolves the room's effective agenda bounds.
func (s *RoomConfigService) AgendaLimits(ctx context.Context, roomID string) (AgendaLimits, ConfigSource, error) {
	var payload agendaLimitsPayload
	found, err := s.getJSON(ctx, roomID, SectionAgendaLimits, &payload)
	if err != nil {
		return AgendaLimits{}, "", err
	}
	if !found {
		return s.defaults.Limits, SourceGlobal, nil
	}
	return AgendaLimits{MaxItems: payload.MaxItems, MaxPlannedMinutes: payload.MaxPlannedMinutes}, SourceRoom, nil
}

// SetAutoBehaviors stores the room's automatic lifecycle reactions.
func (s *RoomConfigService) SetAutoBehaviors(ctx context.Context, actor Actor, roomID string, behaviors AutoBehaviors) error {
	if !actor.CanModerate {
		return ErrPermissionDenied
	}
	return s.upsertJSON(ctx, actor, roomID, SectionAutoBehaviors, autoBehaviorsPayload{
		AutoAdvance:      behaviors.AutoAdvance,
		AutoCleanupOnEnd: behaviors.AutoCleanupOnEnd,
	})
}

// AutoBehaviors resolves the room's effective automatic behaviors.
func (s *RoomConfigService) AutoBehaviors(ctx context.Context, roomID string) (AutoBehaviors, ConfigSource, error) {
	var payload autoBehaviorsPayload
	found, err := s.getJSON(ctx, roomID, SectionAutoBehaviors, &payload)
	if err != nil {
		return AutoBehaviors{}, "", err
	}
	if !found {
		return s.defaults.Behaviors, SourceGlobal, nil
	}
	return AutoBehaviors{AutoAdvance: payload.AutoAdvance, AutoCleanupOnEnd: payload.AutoCleanupOnEnd}, SourceRoom, nil
}

// SetDisplaySymbols stores the room's custom status markers. Empty fields
// keep the global default symbol.
func (s *RoomConfigService) SetDisplaySymbols(ctx context.Context, actor Actor, roomID string, symbols DisplaySymbols) error {
	if !actor.CanModerate {
		return ErrPermissionDenied
	}
	if symbols.Current == "" {
		symbols.Current = s.defaults.Symbols.Current
	}
	if symbols.Completed == "" {
		symbols.Completed = s.defaults.Symbols.Completed
	}
	if symbols.Pending == "" {
		symbols.Pending = s.defaults.Symbols.Pending
	}
	return s.upsertJSON(ctx, actor, roomID, SectionDisplaySymbols, displaySymbolsPayload{
		Current:   symbols.Current,
		Completed: symbols.Completed,
		Pending:   symbols.Pending,
	})
}

// DisplaySymbols resolves the room's effective status markers.
func (s *RoomConfigService) DisplaySymbols(ctx context.Context, roomID string) (DisplaySymbols, ConfigSource, error) {
	var payload displaySymbolsPayload
	found, err := s.getJSON(ctx, roomID, SectionDisplaySymbols, &payload)
	if err != nil {
		return DisplaySymbols{}, "", err
	}
	if !found {
		return s.defaults.Symbols, SourceGlobal, nil
	}
	return DisplaySymbols{Current: payload.Current, Completed: payload.Completed, Pending: payload.Pending}, SourceRoom, nil
}

// SetLanguage stores the room's language tag for the external localizer.
func (s *RoomConfigService) SetLanguage(ctx context.Context, actor Actor, roomID, language string) error {
	if !actor.CanModerate {
		return ErrPermissionDenied
	}
	if language == "" {
		vErr := &ValidationError{}
		vErr.add("language", "language is required")
		return vErr
	}
	return s.upsertJSON(ctx, actor, roomID, SectionLanguage, languagePayload{Language: language})
}

// Language resolves the room's effective language tag.
func (s *RoomConfigService) Language(ctx context.Context, roomID string) (string, ConfigSource, error) {
	var payload languagePayload
	found, err := s.getJSON(ctx, roomID, SectionLanguage, &payload)
	if err != nil {
		return "", "", err
	}
	if !found {
		return s.defaults.Language, SourceGlobal, nil
	}
	return payload.Language, SourceRoom, nil
}

// SetLastSummary records the pointer to the most recent agenda summary
// message posted in the room.
func (s *RoomConfigService) SetLastSummary(ctx context.Context, roomID, messageID string) error {
	return s.upsertJSON(ctx, Actor{UserID: "system"}, roomID, SectionLastSummary, lastSummaryPayload{MessageID: messageID})
}

// LastSummary returns the stored summary message pointer, empty when none.
func (s *RoomConfigService) LastSummary(ctx context.Context, roomID string) (string, error) {
	var payload lastSummaryPayload
	found, err := s.getJSON(ctx, roomID, SectionLastSummary, &payload)
	if err != nil {
		return "", err
	}
	if !found {
		return "", nil
	}
	return payload.MessageID, nil
}

// GetEffective aggregates every resolved section for a room.
func (s *RoomConfigService) GetEffective(ctx context.Context, roomID string) (RoomSettings, error) {
	settings := RoomSettings{}

	monitoring, err := s.GetTimeMonitoring(ctx, roomID)
	if err != nil {
		return RoomSettings{}, err
	}
	settings.TimeMonitoring = monitoring

	if settings.ResponseMode, settings.ResponseSource, err = s.ResponseMode(ctx, roomID); err != nil {
		return RoomSettings{}, err
	}
	if settings.Limits, settings.LimitsSource, err = s.AgendaLimits(ctx, roomID); err != nil {
		return RoomSettings{}, err
	}
	if settings.Behaviors, settings.BehaviorsSrc, err = s.AutoBehaviors(ctx, roomID); err != nil {
		return RoomSettings{}, err
	}
	if settings.Symbols, settings.SymbolsSource, err = s.DisplaySymbols(ctx, roomID); err != nil {
		return RoomSettings{}, err
	}
	if settings.Language, settings.LanguageSource, err = s.Language(ctx, roomID); err != nil {
		return RoomSettings{}, err
	}
	return settings, nil
}

func (s *RoomConfigService) getJSON(ctx context.Context, roomID, section string, target any) (bool, error) {
	if s.sections == nil {
		return false, nil
	}
	stored, err := s.sections.GetSection(ctx, roomID, section)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(stored.Payload, target); err != nil {
		return false, fmt.Errorf("failed to decode %s section: %w", section, err)
	}
	return true, nil
}

func (s *RoomConfigService) upsertJSON(ctx context.Context, actor Actor, roomID, section string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.sections.UpsertSection(ctx, ConfigSection{
		RoomID:       roomID,
		Section:      section,
		Payload:      encoded,
		ConfiguredBy: actor.UserID,
		ConfiguredAt: s.now(),
	})
}

func clamp(value, lower, upper float64) float64 {
	if value < lower {
		return lower
	}
	if value > upper {
		return upper
	}
	return value
}
