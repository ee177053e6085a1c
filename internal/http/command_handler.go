package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/agenda-bot/internal/application"
	"github.com/example/agenda-bot/internal/timeutil"
)

type agendaService interface {
	AddItem(ctx context.Context, params application.AddItemParams) (application.AgendaItem, error)
	List(ctx context.Context, roomID string) ([]application.AgendaItem, error)
	Reorder(ctx context.Context, params application.ReorderParams) error
	Move(ctx context.Context, params application.MoveParams) error
	Swap(ctx context.Context, params application.SwapParams) error
	Remove(ctx context.Context, actor application.Actor, roomID string, position int) (application.AgendaItem, error)
	RemoveCompleted(ctx context.Context, actor application.Actor, roomID string) (int, error)
	SetPlannedMinutes(ctx context.Context, params application.SetPlannedMinutesParams) (application.AgendaItem, error)
}

type trackerService interface {
	SetCurrent(ctx context.Context, actor application.Actor, roomID string, position int) (application.AgendaItem, error)
	Complete(ctx context.Context, params application.CompleteParams) (application.CompleteResult, error)
	Reopen(ctx context.Context, actor application.Actor, roomID string, position int) (application.AgendaItem, error)
	ClearAllActive(ctx context.Context, actor application.Actor, roomID string) (int, error)
	HandleCallEnded(ctx context.Context, roomID string) (application.CallEndedResult, error)
}

type configService interface {
	SetTimeMonitoring(ctx context.Context, params application.SetTimeMonitoringParams) (application.TimeMonitoringConfig, error)
	Reset(ctx context.Context, params application.ResetParams) error
	SetResponseMode(ctx context.Context, actor application.Actor, roomID string, mode application.ResponseMode) error
	SetLanguage(ctx context.Context, actor application.Actor, roomID, language string) error
	GetEffective(ctx context.Context, roomID string) (application.RoomSettings, error)
}

type CommandHandler struct {
	agenda    agendaService
	tracker   trackerService
	config    configService
	responder responder
	logger    *slog.Logger
}

func NewCommandHandler(agenda agendaService, tracker trackerService, config configService, logger *slog.Logger) *CommandHandler {
	base := defaultLogger(logger)
	return &CommandHandler{
		agenda:    agenda,
		tracker:   tracker,
		config:    config,
		responder: newResponder(base),
		logger:    base,
	}
}

func (h *CommandHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "CommandHandler", operation, attrs...)
}

// Execute dispatches one parsed intent against the room named in the path.
func (h *CommandHandler) Execute(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.agenda == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roomID, _ := RoomIDFromContext(r.Context())

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Execute", "room_id", roomID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode command", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	command := strings.TrimSpace(req.Command)
	if command == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingCommand)
		return
	}
	if strings.TrimSpace(req.Actor.UserID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingActor)
		return
	}

	actor := application.Actor{
		UserID:      strings.TrimSpace(req.Actor.UserID),
		CanModerate: req.Actor.CanModerate,
		CanAddItems: req.Actor.CanAddItems,
	}
	logger := h.log(r.Context(), "Execute", "room_id", roomID, "actor_id", actor.UserID, "command", command)

	status, payload, err := h.dispatch(r.Context(), command, actor, roomID, req)
	if err != nil {
		logger.ErrorContext(r.Context(), "command failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "command executed")
	h.responder.writeJSON(r.Context(), w, status, payload)
}

func (h *CommandHandler) dispatch(ctx context.Context, command string, actor application.Actor, roomID string, req commandRequest) (int, any, error) {
	switch command {
	case "add":
		planned := req.PlannedMinutes
		if duration := strings.TrimSpace(req.Duration); duration != "" {
			parsed, err := timeutil.ParsePlannedMinutes(duration, 10)
			if err != nil {
				vErr := &application.ValidationError{FieldErrors: map[string]string{
					"duration": "duration must be minutes or in 1h30m form",
				}}
				return 0, nil, vErr
			}
			planned = parsed
		}
		item, err := h.agenda.AddItem(ctx, application.AddItemParams{
			Actor:             actor,
			RoomID:            roomID,
			Title:             req.Title,
			PlannedMinutes:    planned,
			RequestedPosition: req.Position,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, itemResponse{Item: toItemDTO(item)}, nil

	case "set_current":
		item, err := h.tracker.SetCurrent(ctx, actor, roomID, req.Position)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, itemResponse{Item: toItemDTO(item)}, nil

	case "complete":
		result, err := h.tracker.Complete(ctx, application.CompleteParams{
			Actor:    actor,
			RoomID:   roomID,
			Position: req.Position,
		})
		if err != nil {
			return 0, nil, err
		}
		resp := completeResponse{Completed: toItemDTO(result.Completed)}
		if result.Completed.StartTime != nil && result.Completed.CompletedAt != nil {
			resp.ActualMinutes = int(timeutil.ActualMinutes(*result.Completed.StartTime, *result.Completed.CompletedAt))
		}
		if result.Next != nil {
			next := toItemDTO(*result.Next)
			resp.Next = &next
		}
		return http.StatusOK, resp, nil

	case "reopen":
		item, err := h.tracker.Reopen(ctx, actor, roomID, req.Position)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, itemResponse{Item: toItemDTO(item)}, nil

	case "remove":
		item, err := h.agenda.Remove(ctx, actor, roomID, req.Position)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, itemResponse{Item: toItemDTO(item)}, nil

	case "cleanup":
		removed, err := h.agenda.RemoveCompleted(ctx, actor, roomID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, cleanupResponse{Removed: removed}, nil

	case "clear_active":
		cleared, err := h.tracker.ClearAllActive(ctx, actor, roomID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, clearActiveResponse{Cleared: cleared}, nil

	case "reorder":
		if err := h.agenda.Reorder(ctx, application.ReorderParams{
			Actor:     actor,
			RoomID:    roomID,
			Positions: req.Positions,
		}); err != nil {
			return 0, nil, err
		}
		return http.StatusNoContent, nil, nil

	case "move":
		if err := h.agenda.Move(ctx, application.MoveParams{
			Actor:  actor,
			RoomID: roomID,
			From:   req.From,
			To:     req.To,
		}); err != nil {
			return 0, nil, err
		}
		return http.StatusNoContent, nil, nil

	case "swap":
		if err := h.agenda.Swap(ctx, application.SwapParams{
			Actor:  actor,
			RoomID: roomID,
			A:      req.A,
			B:      req.B,
		}); err != nil {
			return 0, nil, err
		}
		return http.StatusNoContent, nil, nil

	case "set_duration":
		planned := req.PlannedMinutes
		if duration := strings.TrimSpace(req.Duration); duration != "" {
			parsed, err := timeutil.ParsePlannedMinutes(duration, 0)
			if err != nil {
				vErr := &application.ValidationError{FieldErrors: map[string]string{
					"duration": "duration must be minutes or in 1h30m form",
				}}
				return 0, nil, vErr
			}
			planned = parsed
		}
		item, err := h.agenda.SetPlannedMinutes(ctx, application.SetPlannedMinutesParams{
			Actor:          actor,
			RoomID:         roomID,
			Position:       req.Position,
			PlannedMinutes: planned,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, itemResponse{Item: toItemDTO(item)}, nil

	case "configure":
		if req.Config == nil {
			vErr := &application.ValidationError{FieldErrors: map[string]string{
				"config": "config payload is required",
			}}
			return 0, nil, vErr
		}
		cfg, err := h.config.SetTimeMonitoring(ctx, application.SetTimeMonitoringParams{
			Actor:  actor,
			RoomID: roomID,
			Patch: application.TimeMonitoringPatch{
				Enabled:           req.Config.Enabled,
				WarningThreshold:  req.Config.WarningThreshold,
				OvertimeThreshold: req.Config.OvertimeThreshold,
			},
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, configResponse{Config: toMonitoringDTO(cfg)}, nil

	case "reset_config":
		if err := h.config.Reset(ctx, application.ResetParams{
			Actor:   actor,
			RoomID:  roomID,
			Section: strings.TrimSpace(req.Section),
		}); err != nil {
			return 0, nil, err
		}
		return http.StatusNoContent, nil, nil

	case "set_response_mode":
		if err := h.config.SetResponseMode(ctx, actor, roomID, application.ResponseMode(strings.TrimSpace(req.Mode))); err != nil {
			return 0, nil, err
		}
		return http.StatusNoContent, nil, nil

	case "set_language":
		if err := h.config.SetLanguage(ctx, actor, roomID, strings.TrimSpace(req.Language)); err != nil {
			return 0, nil, err
		}
		return http.StatusNoContent, nil, nil

	default:
		vErr := &application.ValidationError{FieldErrors: map[string]string{
			"command": "unknown command " + command,
		}}
		return 0, nil, vErr
	}
}

// Agenda returns the room's agenda in position order.
func (h *CommandHandler) Agenda(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.agenda == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roomID, _ := RoomIDFromContext(r.Context())
	logger := h.log(r.Context(), "Agenda", "room_id", roomID)

	items, err := h.agenda.List(r.Context(), roomID)
	if err != nil {
		logger.ErrorContext(r.Context(), "agenda listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(items)).InfoContext(r.Context(), "agenda listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, agendaResponse{Items: toItemDTOs(items)})
}

// Config returns the room's effective configuration.
func (h *CommandHandler) Config(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.config == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roomID, _ := RoomIDFromContext(r.Context())
	logger := h.log(r.Context(), "Config", "room_id", roomID)

	settings, err := h.config.GetEffective(r.Context(), roomID)
	if err != nil {
		logger.ErrorContext(r.Context(), "config resolution failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "config resolved")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSettingsDTO(settings))
}

// Event accepts room lifecycle signals from the hosting integration.
func (h *CommandHandler) Event(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.tracker == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roomID, _ := RoomIDFromContext(r.Context())

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Event", "room_id", roomID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode event", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Event", "room_id", roomID, "event_type", req.Type)
	if req.Type != "call_ended" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("unknown event type "+req.Type))
		return
	}

	result, err := h.tracker.HandleCallEnded(r.Context(), roomID)
	if err != nil {
		logger.ErrorContext(r.Context(), "call ended handling failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "call ended handled")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, callEndedResponse{
		ClearedActive:    result.ClearedActive,
		RemovedCompleted: result.RemovedCompleted,
	})
}

type actorPayload struct {
	UserID      string `json:"user_id"`
	CanModerate bool   `json:"can_moderate"`
	CanAddItems bool   `json:"can_add_items"`
}

type monitoringPatchPayload struct {
	Enabled           *bool    `json:"enabled"`
	WarningThreshold  *float64 `json:"warning_threshold"`
	OvertimeThreshold *float64 `json:"overtime_threshold"`
}

type commandRequest struct {
	Command string       `json:"command"`
	Actor   actorPayload `json:"actor"`

	Title          string `json:"title"`
	Duration       string `json:"duration"`
	PlannedMinutes int    `json:"planned_minutes"`
	Position       int    `json:"position"`
	Positions      []int  `json:"positions"`
	From           int    `json:"from"`
	To             int    `json:"to"`
	A              int    `json:"a"`
	B              int    `json:"b"`

	Config   *monitoringPatchPayload `json:"config"`
	Section  string                  `json:"section"`
	Mode     string                  `json:"mode"`
	Language string                  `json:"language"`
}

type eventRequest struct {
	Type string `json:"type"`
}

type itemDTO struct {
	ID             string `json:"id"`
	Position       int    `json:"position"`
	Title          string `json:"title"`
	PlannedMinutes int    `json:"planned_minutes"`
	IsCompleted    bool   `json:"is_completed"`
	IsActive       bool   `json:"is_active"`
	StartTime      string `json:"start_time,omitempty"`
	CompletedAt    string `json:"completed_at,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func toItemDTO(item application.AgendaItem) itemDTO {
	dto := itemDTO{
		ID:             item.ID,
		Position:       item.Position,
		Title:          item.Title,
		PlannedMinutes: item.PlannedMinutes,
		IsCompleted:    item.IsCompleted,
		IsActive:       item.IsActive(),
		CreatedAt:      item.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:      item.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if item.StartTime != nil {
		dto.StartTime = item.StartTime.UTC().Format(time.RFC3339Nano)
	}
	if item.CompletedAt != nil {
		dto.CompletedAt = item.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	return dto
}

func toItemDTOs(items []application.AgendaItem) []itemDTO {
	if len(items) == 0 {
		return nil
	}
	out := make([]itemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toItemDTO(item))
	}
	return out
}

type itemResponse struct {
	Item itemDTO `json:"item"`
}

type agendaResponse struct {
	Items []itemDTO `json:"items"`
}

type completeResponse struct {
	Completed     itemDTO  `json:"completed"`
	ActualMinutes int      `json:"actual_minutes"`
	Next          *itemDTO `json:"next,omitempty"`
}

type cleanupResponse struct {
	Removed int `json:"removed"`
}

type clearActiveResponse struct {
	Cleared int `json:"cleared"`
}

type callEndedResponse struct {
	ClearedActive    int `json:"cleared_active"`
	RemovedCompleted int `json:"removed_completed"`
}

type monitoringDTO struct {
	Enabled           bool    `json:"enabled"`
	WarningThreshold  float64 `json:"warning_threshold"`
	OvertimeThreshold float64 `json:"overtime_threshold"`
	Source            string  `json:"source"`
	ConfiguredBy      string  `json:"configured_by,omitempty"`
	ConfiguredAt      string  `json:"configured_at,omitempty"`
}

func toMonitoringDTO(cfg application.TimeMonitoringConfig) monitoringDTO {
	dto := monitoringDTO{
		Enabled:           cfg.Enabled,
		WarningThreshold:  cfg.WarningThreshold,
		OvertimeThreshold: cfg.OvertimeThreshold,
		Source:            string(cfg.Source),
		ConfiguredBy:      cfg.ConfiguredBy,
	}
	if cfg.ConfiguredAt != nil {
		dto.ConfiguredAt = cfg.ConfiguredAt.UTC().Format(time.RFC3339Nano)
	}
	return dto
}

type configResponse struct {
	Config monitoringDTO `json:"config"`
}

type settingsDTO struct {
	TimeMonitoring monitoringDTO `json:"time_monitoring"`
	ResponseMode   string        `json:"response_mode"`
	ResponseSource string        `json:"response_mode_source"`
	MaxItems       int           `json:"max_items"`
	MaxPlanned     int           `json:"max_planned_minutes"`
	LimitsSource   string        `json:"limits_source"`
	AutoAdvance    bool          `json:"auto_advance"`
	AutoCleanup    bool          `json:"auto_cleanup_on_end"`
	BehaviorsSrc   string        `json:"behaviors_source"`
	SymbolCurrent  string        `json:"symbol_current"`
	SymbolDone     string        `json:"symbol_completed"`
	SymbolPending  string        `json:"symbol_pending"`
	SymbolsSource  string        `json:"symbols_source"`
	Language       string        `json:"language"`
	LanguageSource string        `json:"language_source"`
}

func toSettingsDTO(settings application.RoomSettings) settingsDTO {
	return settingsDTO{
		TimeMonitoring: toMonitoringDTO(settings.TimeMonitoring),
		ResponseMode:   string(settings.ResponseMode),
		ResponseSource: string(settings.ResponseSource),
		MaxItems:       settings.Limits.MaxItems,
		MaxPlanned:     settings.Limits.MaxPlannedMinutes,
		LimitsSource:   string(settings.LimitsSource),
		AutoAdvance:    settings.Behaviors.AutoAdvance,
		AutoCleanup:    settings.Behaviors.AutoCleanupOnEnd,
		BehaviorsSrc:   string(settings.BehaviorsSrc),
		SymbolCurrent:  settings.Symbols.Current,
		SymbolDone:     settings.Symbols.Completed,
		SymbolPending:  settings.Symbols.Pending,
		SymbolsSource:  string(settings.SymbolsSource),
		Language:       settings.Language,
		LanguageSource: string(settings.LanguageSource),
	}
}
