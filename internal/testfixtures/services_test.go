package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/agenda-bot/internal/application"
)

type capturingAgendaRepo struct {
	created application.AgendaItem
}

func (c *capturingAgendaRepo) CreateItem(ctx context.Context, item application.AgendaItem, requestedPosition int) (application.AgendaItem, error) {
	item.Position = 1
	c.created = item
	return item, nil
}

func (c *capturingAgendaRepo) GetItem(ctx context.Context, id string) (application.AgendaItem, error) {
	return application.AgendaItem{}, application.ErrNotFound
}

func (c *capturingAgendaRepo) GetItemByPosition(ctx context.Context, roomID string, position int) (application.AgendaItem, error) {
	return application.AgendaItem{}, application.ErrNotFound
}

func (c *capturingAgendaRepo) ListItems(ctx context.Context, roomID string) ([]application.AgendaItem, error) {
	return nil, nil
}

func (c *capturingAgendaRepo) ListActiveItems(ctx context.Context) ([]application.AgendaItem, error) {
	return nil, nil
}

func (c *capturingAgendaRepo) UpdateItem(ctx context.Context, item application.AgendaItem) error {
	return nil
}

func (c *capturingAgendaRepo) Reorder(ctx context.Context, roomID string, positions map[string]int) error {
	return nil
}

func (c *capturingAgendaRepo) Move(ctx context.Context, roomID string, from, to int) error {
	return nil
}

func (c *capturingAgendaRepo) Swap(ctx context.Context, roomID string, a, b int) error {
	return nil
}

func (c *capturingAgendaRepo) Remove(ctx context.Context, roomID string, position int) error {
	return nil
}

func (c *capturingAgendaRepo) RemoveCompleted(ctx context.Context, roomID string) (int, error) {
	return 0, nil
}

func (c *capturingAgendaRepo) SetCurrentItem(ctx context.Context, roomID, itemID string, startedAt time.Time) error {
	return nil
}

func (c *capturingAgendaRepo) ClearActiveItems(ctx context.Context, roomID string) (int, error) {
	return 0, nil
}

func TestServiceFactoryNewAgendaService(t *testing.T) {
	factory := NewServiceFactory()
	repo := &capturingAgendaRepo{}

	svc := factory.NewAgendaService(AgendaServiceDeps{Items: repo})
	actor := application.Actor{UserID: "alice", CanAddItems: true}

	item, err := svc.AddItem(context.Background(), application.AddItemParams{
		Actor:  actor,
		RoomID: "room-1",
		Title:  "Opening",
	})
	if err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}

	if item.ID != "id-1" {
		t.Fatalf("expected generated ID id-1, got %q", item.ID)
	}
	if repo.created.ID != item.ID {
		t.Fatalf("repository received unexpected ID: %q", repo.created.ID)
	}
	if item.PlannedMinutes != 10 {
		t.Fatalf("expected default planned minutes, got %d", item.PlannedMinutes)
	}
	if !item.CreatedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Now(), item.CreatedAt)
	}
}

func TestServiceFactoryClockAdvance(t *testing.T) {
	clock := NewClock(time.Time{})
	factory := NewServiceFactory(WithClock(clock))

	before := factory.Clock.Now()
	clock.Advance(9 * time.Minute)
	if got := factory.Clock.Now().Sub(before); got != 9*time.Minute {
		t.Fatalf("expected the factory clock to advance 9 minutes, got %v", got)
	}
}
