package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/agenda-bot/internal/persistence"
	"github.com/example/agenda-bot/internal/testfixtures"
)

func newPersistenceItem(opts ...testfixtures.ItemOption) persistence.AgendaItem {
	return testfixtures.NewItemFixture(opts...).Persistence()
}

func newPersistenceWarning(opts ...testfixtures.WarningOption) persistence.WarningRecord {
	return testfixtures.NewWarningFixture(opts...).Persistence()
}

func TestSQLiteAgendaRepository(t *testing.T) {
	t.Run("round-trips an item", func(t *testing.T) {
		harness := testfixtures.NewSQLiteHarness(t)
		ctx := context.Background()

		base := testfixtures.ReferenceTime()
		item := newPersistenceItem(
			testfixtures.WithItemID("item-1"),
			testfixtures.WithItemRoom("room-1"),
			testfixtures.WithItemTitle("Opening"),
			testfixtures.WithItemPlannedMinutes(15),
			testfixtures.WithItemTimestamps(base, base),
		)

		created, err := harness.Items.CreateItem(ctx, item, 0)
		if err != nil {
			t.Fatalf("CreateItem returned error: %v", err)
		}
		if created.Position != 1 {
			t.Fatalf("expected first item at position 1, got %d", created.Position)
		}

		fetched, err := harness.Items.GetItem(ctx, "item-1")
		if err != nil {
			t.Fatalf("GetItem returned error: %v", err)
		}
		if fetched.Title != "Opening" || fetched.PlannedMinutes != 15 {
			t.Fatalf("unexpected stored item: %+v", fetched)
		}
		if !fetched.CreatedAt.Equal(base) {
			t.Fatalf("expected created at %v, got %v", base, fetched.CreatedAt)
		}
	})

	t.Run("remove compacts higher positions", func(t *testing.T) {
		harness := testfixtures.NewSQLiteHarness(t)
		ctx := context.Background()

		for _, id := range []string{"item-1", "item-2", "item-3"} {
			if _, err := harness.Items.CreateItem(ctx, newPersistenceItem(
				testfixtures.WithItemID(id),
				testfixtures.WithItemRoom("room-1"),
			), 0); err != nil {
				t.Fatalf("CreateItem(%s) returned error: %v", id, err)
			}
		}

		if err := harness.Items.Remove(ctx, "room-1", 2); err != nil {
			t.Fatalf("Remove returned error: %v", err)
		}

		items, err := harness.Items.ListItems(ctx, "room-1")
		if err != nil {
			t.Fatalf("ListItems returned error: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("expected 2 remaining items, got %d", len(items))
		}
		if items[0].Position != 1 || items[1].Position != 2 {
			t.Fatalf("expected compacted positions [1 2], got [%d %d]", items[0].Position, items[1].Position)
		}
		if items[1].ID != "item-3" {
			t.Fatalf("expected item-3 renumbered to position 2, got %s", items[1].ID)
		}
	})

	t.Run("missing lookups map to the not-found sentinel", func(t *testing.T) {
		harness := testfixtures.NewSQLiteHarness(t)

		if _, err := harness.Items.GetItem(context.Background(), "absent"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSQLiteWarningRepository(t *testing.T) {
	t.Run("rejects a duplicate tier for the same item", func(t *testing.T) {
		harness := testfixtures.NewSQLiteHarness(t)
		ctx := context.Background()

		if _, err := harness.Items.CreateItem(ctx, newPersistenceItem(
			testfixtures.WithItemID("item-1"),
			testfixtures.WithItemRoom("room-1"),
		), 0); err != nil {
			t.Fatalf("CreateItem returned error: %v", err)
		}

		record := newPersistenceWarning(testfixtures.WithWarningItem("item-1"))
		if err := harness.Warnings.RecordWarning(ctx, record); err != nil {
			t.Fatalf("RecordWarning returned error: %v", err)
		}
		if err := harness.Warnings.RecordWarning(ctx, record); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate for repeated tier, got %v", err)
		}
	})

	t.Run("records cascade away with the parent item", func(t *testing.T) {
		harness := testfixtures.NewSQLiteHarness(t)
		ctx := context.Background()

		created, err := harness.Items.CreateItem(ctx, newPersistenceItem(
			testfixtures.WithItemID("item-1"),
			testfixtures.WithItemRoom("room-1"),
		), 0)
		if err != nil {
			t.Fatalf("CreateItem returned error: %v", err)
		}
		if err := harness.Warnings.RecordWarning(ctx, newPersistenceWarning(
			testfixtures.WithWarningItem("item-1"),
		)); err != nil {
			t.Fatalf("RecordWarning returned error: %v", err)
		}

		if err := harness.Items.Remove(ctx, "room-1", created.Position); err != nil {
			t.Fatalf("Remove returned error: %v", err)
		}

		records, err := harness.Warnings.ListWarningsForItem(ctx, "item-1")
		if err != nil {
			t.Fatalf("ListWarningsForItem returned error: %v", err)
		}
		if len(records) != 0 {
			t.Fatalf("expected ledger emptied by cascade, got %d records", len(records))
		}
	})
}

func TestSQLiteRoomConfigRepository(t *testing.T) {
	harness := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	section := persistence.ConfigSection{
		RoomID:       "room-1",
		Section:      "time_monitoring",
		Payload:      []byte(`{"enabled":true,"warning_threshold":0.8,"overtime_threshold":1.5}`),
		ConfiguredBy: "alice",
		ConfiguredAt: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC),
	}
	if err := harness.Config.UpsertSection(ctx, section); err != nil {
		t.Fatalf("UpsertSection returned error: %v", err)
	}

	stored, err := harness.Config.GetSection(ctx, "room-1", "time_monitoring")
	if err != nil {
		t.Fatalf("GetSection returned error: %v", err)
	}
	if stored.ConfiguredBy != "alice" {
		t.Fatalf("expected configured_by alice, got %q", stored.ConfiguredBy)
	}

	if err := harness.Config.DeleteRoomConfig(ctx, "room-1"); err != nil {
		t.Fatalf("DeleteRoomConfig returned error: %v", err)
	}
	if _, err := harness.Config.GetSection(ctx, "room-1", "time_monitoring"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after document delete, got %v", err)
	}
}
