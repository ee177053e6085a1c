package application

import (
	"context"
	"log/slog"
	"time"
)

// CurrentItemTracker manages the single-current-item lifecycle for rooms. It
// shares the agenda repository with AgendaService; the exclusivity invariant
// lives in the repository's SetCurrentItem transaction.
type CurrentItemTracker struct {
	items  AgendaRepository
	config *RoomConfigService
	now    func() time.Time
	logger *slog.Logger
}

// NewCurrentItemTracker constructs the tracker with the default logger.
func NewCurrentItemTracker(items AgendaRepository, config *RoomConfigService, now func() time.Time) *CurrentItemTracker {
	return NewCurrentItemTrackerWithLogger(items, config, now, nil)
}

// NewCurrentItemTrackerWithLogger constructs the tracker with a specified logger.
func NewCurrentItemTrackerWithLogger(items AgendaRepository, config *RoomConfigService, now func() time.Time, logger *slog.Logger) *CurrentItemTracker {
	if now == nil {
		now = time.Now
	}
	return &CurrentItemTracker{items: items, config: config, now: now, logger: defaultLogger(logger)}
}

func (t *CurrentItemTracker) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, t.logger, "CurrentItemTracker", operation, attrs...)
}

// Current returns the room's active item, or ErrNoCurrentItem when none.
func (t *CurrentItemTracker) Current(ctx context.Context, roomID string) (AgendaItem, error) {
	items, err := t.items.ListItems(ctx, roomID)
	if err != nil {
		return AgendaItem{}, err
	}
	for _, item := range items {
		if item.IsActive() {
			return item, nil
		}
	}
	return AgendaItem{}, ErrNoCurrentItem
}

// SetCurrent marks the item at a position as the room's current item. Any
// previously active item loses its start marker in the same transaction, so
// at most one item per room ever carries one.
func (t *CurrentItemTracker) SetCurrent(ctx context.Context, actor Actor, roomID string, position int) (item AgendaItem, err error) {
	logger := t.loggerWith(ctx, "SetCurrent",
		"room_id", roomID,
		"actor_id", actor.UserID,
		"position", position,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to set current item", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "current item set", "item_id", item.ID)
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

	item, err = t.items.GetItemByPosition(ctx, roomID, position)
	if err != nil {
		return AgendaItem{}, err
	}
	if item.IsCompleted {
		err = ErrAlreadyCompleted
		return AgendaItem{}, err
	}

	startedAt := t.now()
	if err = t.items.SetCurrentItem(ctx, roomID, item.ID, startedAt); err != nil {
		return AgendaItem{}, err
	}
	item.StartTime = &startedAt
	item.UpdatedAt = startedAt
	return item, nil
}

// Complete marks an item as finished. A zero position targets the room's
// current item. When the room's auto-advance behavior is enabled the first
// incomplete item by position becomes current.
func (t *CurrentItemTracker) Complete(ctx context.Context, params CompleteParams) (result CompleteResult, err error) {
	logger := t.loggerWith(ctx, "Complete",
		"room_id", params.RoomID,
		"actor_id", params.Actor.UserID,
		"position", params.Position,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to complete item", "error", err, "error_kind", ErrorKind(err))
			return
		}
		attrs := []any{"item_id", result.Completed.ID}
		if result.Next != nil {
			attrs = append(attrs, "next_item_id", result.Next.ID)
		}
		logger.InfoContext(ctx, "item completed", attrs...)
	}()

	if !params.Actor.CanModerate {
		err = ErrPermissionDenied
		return
	}

	var item AgendaItem
	if params.Position == 0 {
		item, err = t.Current(ctx, params.RoomID)
		if err != nil {
			return CompleteResult{}, err
		}
	} else {
		item, err = t.items.GetItemByPosition(ctx, params.RoomID, params.Position)
		if err != nil {
			return CompleteResult{}, err
		}
	}
	if item.IsCompleted {
		err = ErrAlreadyCompleted
		return CompleteResult{}, err
	}

	completedAt := t.now()
	item.IsCompleted = true
	item.CompletedAt = &completedAt
	// StartTime survives completion so actual duration stays computable as
	// completedAt minus startTime. Reopen clears it.
	item.UpdatedAt = completedAt
	if err = t.items.UpdateItem(ctx, item); err != nil {
		return CompleteResult{}, err
	}
	result.Completed = item

	behaviors, _, err := t.config.AutoBehaviors(ctx, params.RoomID)
	if err != nil {
		return CompleteResult{}, err
	}
	if !behaviors.AutoAdvance {
		return result, nil
	}

	next, found, err := t.firstIncomplete(ctx, params.RoomID)
	if err != nil {
		return CompleteResult{}, err
	}
	if !found {
		return result, nil
	}
	startedAt := t.now()
	if err = t.items.SetCurrentItem(ctx, params.RoomID, next.ID, startedAt); err != nil {
		return CompleteResult{}, err
	}
	next.StartTime = &startedAt
	next.UpdatedAt = startedAt
	result.Next = &next
	return result, nil
}

// Reopen clears the completion of an item. Its start marker stays cleared;
// the item has to be explicitly made current again, which stamps a fresh
// start time.
func (t *CurrentItemTracker) Reopen(ctx context.Context, actor Actor, roomID string, position int) (item AgendaItem, err error) {
	logger := t.loggerWith(ctx, "Reopen",
		"room_id", roomID,
		"actor_id", actor.UserID,
		"position", position,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to reopen item", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "item reopened", "item_id", item.ID)
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

	item, err = t.items.GetItemByPosition(ctx, roomID, position)
	if err != nil {
		return AgendaItem{}, err
	}
	if !item.IsCompleted {
		err = ErrNotCompleted
		return AgendaItem{}, err
	}

	item.IsCompleted = false
	item.CompletedAt = nil
	item.StartTime = nil
	item.UpdatedAt = t.now()
	if err = t.items.UpdateItem(ctx, item); err != nil {
		return AgendaItem{}, err
	}
	return item, nil
}

// ClearAllActive removes start markers from every incomplete item in the
// room without completing anything. Returns the cleared count.
func (t *CurrentItemTracker) ClearAllActive(ctx context.Context, actor Actor, roomID string) (cleared int, err error) {
	logger := t.loggerWith(ctx, "ClearAllActive",
		"room_id", roomID,
		"actor_id", actor.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to clear active items", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "active items cleared", "cleared", cleared)
	}()

	if !actor.CanModerate {
		return 0, ErrPermissionDenied
	}
	return t.items.ClearActiveItems(ctx, roomID)
}

// HandleCallEnded reacts to a call ending in the room. Start markers are
// always cleared so nothing keeps accruing elapsed time; completed items are
// additionally removed when the room's auto-cleanup behavior is enabled.
func (t *CurrentItemTracker) HandleCallEnded(ctx context.Context, roomID string) (result CallEndedResult, err error) {
	logger := t.loggerWith(ctx, "HandleCallEnded", "room_id", roomID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "call ended handling failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "call ended handled",
			"cleared_active", result.ClearedActive,
			"removed_completed", result.RemovedCompleted,
		)
	}()

	result.ClearedActive, err = t.items.ClearActiveItems(ctx, roomID)
	if err != nil {
		return CallEndedResult{}, err
	}

	behaviors, _, err := t.config.AutoBehaviors(ctx, roomID)
	if err != nil {
		return CallEndedResult{}, err
	}
	if behaviors.AutoCleanupOnEnd {
		result.RemovedCompleted, err = t.items.RemoveCompleted(ctx, roomID)
		if err != nil {
			return CallEndedResult{}, err
		}
	}
	return result, nil
}

// firstIncomplete returns the earliest incomplete item by position. Advance
// order deliberately ignores where the completed item sat, so skipped items
// get their turn before the meeting moves on.
func (t *CurrentItemTracker) firstIncomplete(ctx context.Context, roomID string) (AgendaItem, bool, error) {
	items, err := t.items.ListItems(ctx, roomID)
	if err != nil {
		return AgendaItem{}, false, err
	}
	for _, item := range items {
		if !item.IsCompleted {
			return item, true, nil
		}
	}
	return AgendaItem{}, false, nil
}
