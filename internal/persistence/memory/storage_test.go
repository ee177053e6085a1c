package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/agenda-bot/internal/persistence"
)

var baseTime = time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)

func seedItems(t *testing.T, store *Storage, roomID string, count int) []persistence.AgendaItem {
	t.Helper()
	items := make([]persistence.AgendaItem, 0, count)
	for i := 1; i <= count; i++ {
		item, err := store.CreateItem(context.Background(), persistence.AgendaItem{
			ID:             fmt.Sprintf("%s-item-%d", roomID, i),
			RoomID:         roomID,
			Title:          fmt.Sprintf("Topic %d", i),
			PlannedMinutes: 10,
			CreatedAt:      baseTime,
			UpdatedAt:      baseTime,
		}, 0)
		if err != nil {
			t.Fatalf("seed item %d: %v", i, err)
		}
		items = append(items, item)
	}
	return items
}

func assertContiguous(t *testing.T, store *Storage, roomID string) {
	t.Helper()
	items, err := store.ListItems(context.Background(), roomID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	for i, item := range items {
		if item.Position != i+1 {
			t.Fatalf("expected contiguous positions, got %v", positions(items))
		}
	}
}

func positions(items []persistence.AgendaItem) []int {
	out := make([]int, len(items))
	for i, item := range items {
		out[i] = item.Position
	}
	return out
}

func TestCreateItemResolvesPositionConflicts(t *testing.T) {
	store := NewStorage()
	seedItems(t, store, "room-1", 3)

	item, err := store.CreateItem(context.Background(), persistence.AgendaItem{
		ID: "conflicting", RoomID: "room-1", Title: "Late addition", PlannedMinutes: 5,
	}, 2)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if item.Position != 4 {
		t.Fatalf("expected conflicting position to resolve to 4, got %d", item.Position)
	}

	if _, err := store.CreateItem(context.Background(), persistence.AgendaItem{
		ID: "bad-plan", RoomID: "room-1", Title: "x", PlannedMinutes: 0,
	}, 0); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation for zero plan, got %v", err)
	}
}

func TestCreateItemAppendsOutOfRangePosition(t *testing.T) {
	store := NewStorage()

	first, err := store.CreateItem(context.Background(), persistence.AgendaItem{
		ID: "first", RoomID: "room-1", Title: "Opening", PlannedMinutes: 5,
	}, 5)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if first.Position != 1 {
		t.Fatalf("expected out-of-range request to append at 1, got %d", first.Position)
	}

	second, err := store.CreateItem(context.Background(), persistence.AgendaItem{
		ID: "second", RoomID: "room-1", Title: "Closing", PlannedMinutes: 5,
	}, 9)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if second.Position != 2 {
		t.Fatalf("expected out-of-range request to append at 2, got %d", second.Position)
	}
	assertContiguous(t, store, "room-1")
}

func TestRemoveCompactsPositions(t *testing.T) {
	store := NewStorage()
	items := seedItems(t, store, "room-1", 3)

	if err := store.Remove(context.Background(), "room-1", 2); err != nil {
		t.Fatalf("remove: %v", err)
	}
	assertContiguous(t, store, "room-1")

	remaining, _ := store.ListItems(context.Background(), "room-1")
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining, got %d", len(remaining))
	}
	if remaining[0].ID != items[0].ID || remaining[1].ID != items[2].ID {
		t.Fatalf("expected old items 1 and 3 to remain, got %s, %s", remaining[0].ID, remaining[1].ID)
	}

	if err := store.Remove(context.Background(), "room-1", 9); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveCascadesWarnings(t *testing.T) {
	store := NewStorage()
	items := seedItems(t, store, "room-1", 1)

	record := persistence.WarningRecord{ItemID: items[0].ID, Tier: "approaching", ElapsedMinutes: 9, PlannedMinutes: 10, RecordedAt: baseTime}
	if err := store.RecordWarning(context.Background(), record); err != nil {
		t.Fatalf("record warning: %v", err)
	}
	if err := store.RecordWarning(context.Background(), record); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	if err := store.Remove(context.Background(), "room-1", 1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	records, _ := store.ListWarningsForItem(context.Background(), items[0].ID)
	if len(records) != 0 {
		t.Fatalf("expected warnings to cascade on delete, got %d", len(records))
	}
}

func TestMoveShiftsIntermediateItems(t *testing.T) {
	store := NewStorage()
	items := seedItems(t, store, "room-1", 4)

	if err := store.Move(context.Background(), "room-1", 1, 3); err != nil {
		t.Fatalf("move: %v", err)
	}
	assertContiguous(t, store, "room-1")

	got, _ := store.ListItems(context.Background(), "room-1")
	wantOrder := []string{items[1].ID, items[2].ID, items[0].ID, items[3].ID}
	for i, item := range got {
		if item.ID != wantOrder[i] {
			t.Fatalf("unexpected order after move: position %d holds %s", i+1, item.ID)
		}
	}

	if err := store.Move(context.Background(), "room-1", 2, 9); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation for out-of-range target, got %v", err)
	}
	if err := store.Move(context.Background(), "room-1", 9, 2); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected not found for absent source, got %v", err)
	}
}

func TestSwapAndReorder(t *testing.T) {
	store := NewStorage()
	items := seedItems(t, store, "room-1", 3)

	if err := store.Swap(context.Background(), "room-1", 1, 3); err != nil {
		t.Fatalf("swap: %v", err)
	}
	assertContiguous(t, store, "room-1")
	first, _ := store.GetItemByPosition(context.Background(), "room-1", 1)
	if first.ID != items[2].ID {
		t.Fatalf("expected item 3 at position 1 after swap, got %s", first.ID)
	}

	// Swapping a position with itself succeeds without changes.
	if err := store.Swap(context.Background(), "room-1", 2, 2); err != nil {
		t.Fatalf("self swap: %v", err)
	}

	mapping := map[string]int{items[0].ID: 1, items[1].ID: 2, items[2].ID: 3}
	if err := store.Reorder(context.Background(), "room-1", mapping); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	assertContiguous(t, store, "room-1")
}

func TestRemoveCompletedRenumbersDensely(t *testing.T) {
	store := NewStorage()
	items := seedItems(t, store, "room-1", 4)

	for _, id := range []string{items[0].ID, items[2].ID} {
		item, _ := store.GetItem(context.Background(), id)
		item.IsCompleted = true
		completed := baseTime.Add(30 * time.Minute)
		item.CompletedAt = &completed
		if err := store.UpdateItem(context.Background(), item); err != nil {
			t.Fatalf("update item: %v", err)
		}
	}

	removed, err := store.RemoveCompleted(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("remove completed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	assertContiguous(t, store, "room-1")

	remaining, _ := store.ListItems(context.Background(), "room-1")
	if remaining[0].ID != items[1].ID || remaining[1].ID != items[3].ID {
		t.Fatalf("expected relative order preserved, got %s, %s", remaining[0].ID, remaining[1].ID)
	}
}

func TestSetCurrentItemEnforcesSingleActive(t *testing.T) {
	store := NewStorage()
	items := seedItems(t, store, "room-1", 3)

	if err := store.SetCurrentItem(context.Background(), "room-1", items[0].ID, baseTime); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := store.SetCurrentItem(context.Background(), "room-1", items[1].ID, baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("set current second: %v", err)
	}

	active, _ := store.ListActiveItems(context.Background())
	if len(active) != 1 {
		t.Fatalf("expected exactly one active item, got %d", len(active))
	}
	if active[0].ID != items[1].ID {
		t.Fatalf("expected second item to be active, got %s", active[0].ID)
	}

	cleared, err := store.ClearActiveItems(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("clear active: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected one cleared marker, got %d", cleared)
	}
	active, _ = store.ListActiveItems(context.Background())
	if len(active) != 0 {
		t.Fatalf("expected no active items after clear, got %d", len(active))
	}
}

func TestConfigSectionLifecycle(t *testing.T) {
	store := NewStorage()

	section := persistence.ConfigSection{
		RoomID:       "room-1",
		Section:      "time_monitoring",
		Payload:      []byte(`{"enabled":true}`),
		ConfiguredBy: "moderator-1",
		ConfiguredAt: baseTime,
	}
	if err := store.UpsertSection(context.Background(), section); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.GetSection(context.Background(), "room-1", "time_monitoring")
	if err != nil {
		t.Fatalf("get section: %v", err)
	}
	got.Payload[0] = 'X'
	again, _ := store.GetSection(context.Background(), "room-1", "time_monitoring")
	if string(again.Payload) != `{"enabled":true}` {
		t.Fatalf("expected stored payload to be isolated from callers, got %s", again.Payload)
	}

	if err := store.DeleteSection(context.Background(), "room-1", "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected not found for absent section, got %v", err)
	}
	if err := store.DeleteSection(context.Background(), "room-1", "time_monitoring"); err != nil {
		t.Fatalf("delete section: %v", err)
	}
	sections, _ := store.ListSections(context.Background(), "room-1")
	if len(sections) != 0 {
		t.Fatalf("expected empty document after delete, got %d sections", len(sections))
	}
}
