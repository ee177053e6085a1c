package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const defaultPlannedMinutes = 10

// AgendaRepository captures the persistence operations the agenda services
// need, expressed over application models. Ordering mutations are atomic per
// room at the repository level.
type AgendaRepository interface {
	CreateItem(ctx context.Context, item AgendaItem, requestedPosition int) (AgendaItem, error)
	GetItem(ctx context.Context, id string) (AgendaItem, error)
	GetItemByPosition(ctx context.Context, roomID string, position int) (AgendaItem, error)
	ListItems(ctx context.Context, roomID string) ([]AgendaItem, error)
	ListActiveItems(ctx context.Context) ([]AgendaItem, error)
	UpdateItem(ctx context.Context, item AgendaItem) error
	Reorder(ctx context.Context, roomID string, positions map[string]int) error
	Move(ctx context.Context, roomID string, from, to int) error
	Swap(ctx context.Context, roomID string, a, b int) error
	Remove(ctx context.Context, roomID string, position int) error
	RemoveCompleted(ctx context.Context, roomID string) (int, error)
	SetCurrentItem(ctx context.Context, roomID, itemID string, startedAt time.Time) error
	ClearActiveItems(ctx context.Context, roomID string) (int, error)
}

// WarningLedger captures the warning idempotence ledger operations.
type WarningLedger interface {
	RecordWarning(ctx context.Context, record WarningRecord) error
	ListWarningsForItem(ctx context.Context, itemID string) ([]WarningRecord, error)
	DeleteWarningsForItem(ctx context.Context, itemID string) error
}

// AgendaService implements the agenda command operations for a room.
type AgendaService struct {
	items       AgendaRepository
	warnings    WarningLedger
	config      *RoomConfigService
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewAgendaService constructs the service with the default logger.
func NewAgendaService(items AgendaRepository, warnings WarningLedger, config *RoomConfigService, idGenerator func() string, now func() time.Time) *AgendaService {
	return NewAgendaServiceWithLogger(items, warnings, config, idGenerator, now, nil)
}

// NewAgendaServiceWithLogger constructs the service with a specified logger.
func NewAgendaServiceWithLogger(items AgendaRepository, warnings WarningLedger, config *RoomConfigService, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AgendaService {
	if now == nil {
		now = time.Now
	}
	return &AgendaService{
		items:       items,
		warnings:    warnings,
		config:      config,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *AgendaService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AgendaService", operation, attrs...)
}

// AddItem appends or inserts a new agenda item. A requested position of zero
// or one that is already occupied appends to the end of the agenda.
func (s *AgendaService) AddItem(ctx context.Context, params AddItemParams) (item AgendaItem, err error) {
	logger := s.loggerWith(ctx, "AddItem",
		"room_id", params.RoomID,
		"actor_id", params.Actor.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add agenda item", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "agenda item added",
			"item_id", item.ID,
			"position", item.Position,
			"planned_minutes", item.PlannedMinutes,
		)
	}()

	if !params.Actor.CanAddItems {
		err = ErrPermissionDenied
		return
	}

	title := strings.TrimSpace(params.Title)
	planned := params.PlannedMinutes
	if planned == 0 {
		planned = defaultPlannedMinutes
	}

	vErr := &ValidationError{}
	if title == "" {
		vErr.add("title", "title is required")
	}
	if planned < 0 {
		vErr.add("planned_minutes", "planned minutes must be positive")
	}
	if params.RequestedPosition < 0 {
		vErr.add("position", "position must be positive")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	limits, _, err := s.config.AgendaLimits(ctx, params.RoomID)
	if err != nil {
		return AgendaItem{}, err
	}
	if limits.MaxPlannedMinutes > 0 && planned > limits.MaxPlannedMinutes {
		vErr.add("planned_minutes", fmt.Sprintf("planned minutes must not exceed %d", limits.MaxPlannedMinutes))
		err = vErr
		return
	}
	if limits.MaxItems > 0 {
		existing, listErr := s.items.ListItems(ctx, params.RoomID)
		if listErr != nil {
			return AgendaItem{}, listErr
		}
		if len(existing) >= limits.MaxItems {
			vErr.add("room", fmt.Sprintf("agenda is full, at most %d items allowed", limits.MaxItems))
			err = vErr
			return
		}
	}

	createdAt := s.now()
	item, err = s.items.CreateItem(ctx, AgendaItem{
		ID:             s.idGenerator(),
		RoomID:         params.RoomID,
		Title:          title,
		PlannedMinutes: planned,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, params.RequestedPosition)
	if err != nil {
		return AgendaItem{}, err
	}
	return item, nil
}

// FindByPosition returns the item at a 1-based position.
func (s *AgendaService) FindByPosition(ctx context.Context, roomID string, position int) (AgendaItem, error) {
	if position < 1 {
		vErr := &ValidationError{}
		vErr.add("position", "position must be positive")
		return AgendaItem{}, vErr
	}
	return s.items.GetItemByPosition(ctx, roomID, position)
}

// List returns the room's agenda in position order.
func (s *AgendaService) List(ctx context.Context, roomID string) ([]AgendaItem, error) {
	return s.items.ListItems(ctx, roomID)
}

// Reorder applies a full permutation of the room's agenda. Positions[i] names
// the new position for the item currently at position i+1.
func (s *AgendaService) Reorder(ctx context.Context, params ReorderParams) (err error) {
	logger := s.loggerWith(ctx, "Reorder",
		"room_id", params.RoomID,
		"actor_id", params.Actor.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to reorder agenda", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "agenda reordered", "item_count", len(params.Positions))
	}()

	if !params.Actor.CanModerate {
		return ErrPermissionDenied
	}

	items, err := s.items.ListItems(ctx, params.RoomID)
	if err != nil {
		return err
	}

	vErr := &ValidationError{}
	if len(params.Positions) != len(items) {
		vErr.add("positions", fmt.Sprintf("expected %d positions, got %d", len(items), len(params.Positions)))
		return vErr
	}
	seen := make(map[int]bool, len(params.Positions))
	for _, position := range params.Positions {
		if position < 1 || position > len(items) {
			vErr.add("positions", fmt.Sprintf("position %d is out of range", position))
			return vErr
		}
		if seen[position] {
			vErr.add("positions", fmt.Sprintf("position %d appears more than once", position))
			return vErr
		}
		seen[position] = true
	}

	// Only changed rows go to the repository.
	mapping := make(map[string]int)
	for i, item := range items {
		target := params.Positions[i]
		if item.Position != target {
			mapping[item.ID] = target
		}
	}
	if len(mapping) == 0 {
		return nil
	}
	return s.items.Reorder(ctx, params.RoomID, mapping)
}

// Move shifts the item at From to To, sliding the items in between by one.
func (s *AgendaService) Move(ctx context.Context, params MoveParams) (err error) {
	logger := s.loggerWith(ctx, "Move",
		"room_id", params.RoomID,
		"actor_id", params.Actor.UserID,
		"from", params.From,
		"to", params.To,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to move agenda item", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "agenda item moved")
	}()

	if !params.Actor.CanModerate {
		return ErrPermissionDenied
	}
	// An absent source position is a lookup failure; a bad target is a caller
	// mistake.
	if _, err = s.items.GetItemByPosition(ctx, params.RoomID, params.From); err != nil {
		return err
	}
	if err = s.validateRange(ctx, params.RoomID, params.To); err != nil {
		return err
	}
	if params.From == params.To {
		return nil
	}
	return s.items.Move(ctx, params.RoomID, params.From, params.To)
}

// Swap exchanges the positions of the items at A and B.
func (s *AgendaService) Swap(ctx context.Context, params SwapParams) (err error) {
	logger := s.loggerWith(ctx, "Swap",
		"room_id", params.RoomID,
		"actor_id", params.Actor.UserID,
		"a", params.A,
		"b", params.B,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to swap agenda items", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "agenda items swapped")
	}()

	if !params.Actor.CanModerate {
		return ErrPermissionDenied
	}
	if err = s.validateRange(ctx, params.RoomID, params.A, params.B); err != nil {
		return err
	}
	if params.A == params.B {
		return nil
	}
	return s.items.Swap(ctx, params.RoomID, params.A, params.B)
}

// Remove deletes the item at a position and compacts the agenda. The removed
// item is returned so callers can echo what was deleted.
func (s *AgendaService) Remove(ctx context.Context, actor Actor, roomID string, position int) (item AgendaItem, err error) {
	logger := s.loggerWith(ctx, "Remove",
		"room_id", roomID,
		"actor_id", actor.UserID,
		"position", position,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to remove agenda item", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "agenda item removed", "item_id", item.ID)
	}()

	if !actor.CanModerate {
		err = ErrPermissionDenied
		return
	}
	if position < 1 {
		vErr := &ValidationError{}
		vErr.add("position", "position must be positive")
		err = vErr
		return
	}

	item, err = s.items.GetItemByPosition(ctx, roomID, position)
	if err != nil {
		return AgendaItem{}, err
	}
	if err = s.items.Remove(ctx, roomID, position); err != nil {
		return AgendaItem{}, err
	}
	return item, nil
}

// RemoveCompleted deletes every completed item in the room and renumbers the
// remainder. Returns how many items were removed.
func (s *AgendaService) RemoveCompleted(ctx context.Context, actor Actor, roomID string) (removed int, err error) {
	logger := s.loggerWith(ctx, "RemoveCompleted",
		"room_id", roomID,
		"actor_id", actor.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to remove completed items", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "completed items removed", "removed", removed)
	}()

	if !actor.CanModerate {
		return 0, ErrPermissionDenied
	}
	return s.items.RemoveCompleted(ctx, roomID)
}

// SetPlannedMinutes edits an item's planned duration and invalidates its
// warning history so monitoring re-evaluates against the new plan.
func (s *AgendaService) SetPlannedMinutes(ctx context.Context, params SetPlannedMinutesParams) (item AgendaItem, err error) {
	logger := s.loggerWith(ctx, "SetPlannedMinutes",
		"room_id", params.RoomID,
		"actor_id", params.Actor.UserID,
		"position", params.Position,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to set planned minutes", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "planned minutes updated",
			"item_id", item.ID,
			"planned_minutes", item.PlannedMinutes,
		)
	}()

	if !params.Actor.CanModerate {
		err = ErrPermissionDenied
		return
	}

	vErr := &ValidationError{}
	if params.Position < 1 {
		vErr.add("position", "position must be positive")
	}
	if params.PlannedMinutes <= 0 {
		vErr.add("planned_minutes", "planned minutes must be positive")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	limits, _, err := s.config.AgendaLimits(ctx, params.RoomID)
	if err != nil {
		return AgendaItem{}, err
	}
	if limits.MaxPlannedMinutes > 0 && params.PlannedMinutes > limits.MaxPlannedMinutes {
		vErr.add("planned_minutes", fmt.Sprintf("planned minutes must not exceed %d", limits.MaxPlannedMinutes))
		err = vErr
		return
	}

	item, err = s.items.GetItemByPosition(ctx, params.RoomID, params.Position)
	if err != nil {
		return AgendaItem{}, err
	}
	if item.PlannedMinutes == params.PlannedMinutes {
		return item, nil
	}

	item.PlannedMinutes = params.PlannedMinutes
	item.UpdatedAt = s.now()
	if err = s.items.UpdateItem(ctx, item); err != nil {
		return AgendaItem{}, err
	}
	if err = s.warnings.DeleteWarningsForItem(ctx, item.ID); err != nil {
		return AgendaItem{}, err
	}
	return item, nil
}

func (s *AgendaService) validateRange(ctx context.Context, roomID string, positions ...int) error {
	items, err := s.items.ListItems(ctx, roomID)
	if err != nil {
		return err
	}
	vErr := &ValidationError{}
	for _, position := range positions {
		if position < 1 || position > len(items) {
			vErr.add("position", fmt.Sprintf("position %d is out of range", position))
			return vErr
		}
	}
	return nil
}
