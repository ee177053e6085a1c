package application

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// agendaRepoFake mirrors the position semantics of the real repositories over
// an in-memory slice.
type agendaRepoFake struct {
	items []AgendaItem

	listErr   error
	updateErr error
}

func (r *agendaRepoFake) sorted() []AgendaItem {
	out := make([]AgendaItem, len(r.items))
	copy(out, r.items)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (r *agendaRepoFake) roomItems(roomID string) []AgendaItem {
	var out []AgendaItem
	for _, item := range r.sorted() {
		if item.RoomID == roomID {
			out = append(out, item)
		}
	}
	return out
}

func (r *agendaRepoFake) CreateItem(ctx context.Context, item AgendaItem, requestedPosition int) (AgendaItem, error) {
	occupied := make(map[int]bool)
	max := 0
	for _, existing := range r.items {
		if existing.RoomID != item.RoomID {
			continue
		}
		occupied[existing.Position] = true
		if existing.Position > max {
			max = existing.Position
		}
	}
	if requestedPosition > 0 && requestedPosition <= max && !occupied[requestedPosition] {
		item.Position = requestedPosition
	} else {
		item.Position = max + 1
	}
	r.items = append(r.items, item)
	return item, nil
}

func (r *agendaRepoFake) GetItem(ctx context.Context, id string) (AgendaItem, error) {
	for _, item := range r.items {
		if item.ID == id {
			return item, nil
		}
	}
	return AgendaItem{}, ErrNotFound
}

func (r *agendaRepoFake) GetItemByPosition(ctx context.Context, roomID string, position int) (AgendaItem, error) {
	for _, item := range r.items {
		if item.RoomID == roomID && item.Position == position {
			return item, nil
		}
	}
	return AgendaItem{}, ErrNotFound
}

func (r *agendaRepoFake) ListItems(ctx context.Context, roomID string) ([]AgendaItem, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.roomItems(roomID), nil
}

func (r *agendaRepoFake) ListActiveItems(ctx context.Context) ([]AgendaItem, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []AgendaItem
	for _, item := range r.sorted() {
		if item.IsActive() && item.PlannedMinutes > 0 {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *agendaRepoFake) UpdateItem(ctx context.Context, item AgendaItem) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	for i, existing := range r.items {
		if existing.ID == item.ID {
			r.items[i] = item
			return nil
		}
	}
	return ErrNotFound
}

func (r *agendaRepoFake) Reorder(ctx context.Context, roomID string, positions map[string]int) error {
	for i, item := range r.items {
		if item.RoomID != roomID {
			continue
		}
		if target, ok := positions[item.ID]; ok {
			r.items[i].Position = target
		}
	}
	return nil
}

func (r *agendaRepoFake) Move(ctx context.Context, roomID string, from, to int) error {
	for i, item := range r.items {
		if item.RoomID != roomID {
			continue
		}
		switch {
		case item.Position == from:
			r.items[i].Position = to
		case from < to && item.Position > from && item.Position <= to:
			r.items[i].Position--
		case to < from && item.Position >= to && item.Position < from:
			r.items[i].Position++
		}
	}
	return nil
}

func (r *agendaRepoFake) Swap(ctx context.Context, roomID string, a, b int) error {
	for i, item := range r.items {
		if item.RoomID != roomID {
			continue
		}
		switch item.Position {
		case a:
			r.items[i].Position = b
		case b:
			r.items[i].Position = a
		}
	}
	return nil
}

func (r *agendaRepoFake) Remove(ctx context.Context, roomID string, position int) error {
	kept := r.items[:0]
	for _, item := range r.items {
		if item.RoomID == roomID && item.Position == position {
			continue
		}
		if item.RoomID == roomID && item.Position > position {
			item.Position--
		}
		kept = append(kept, item)
	}
	r.items = kept
	return nil
}

func (r *agendaRepoFake) RemoveCompleted(ctx context.Context, roomID string) (int, error) {
	removed := 0
	var kept []AgendaItem
	for _, item := range r.sorted() {
		if item.RoomID == roomID && item.IsCompleted {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	next := 1
	for i := range kept {
		if kept[i].RoomID == roomID {
			kept[i].Position = next
			next++
		}
	}
	r.items = kept
	return removed, nil
}

func (r *agendaRepoFake) SetCurrentItem(ctx context.Context, roomID, itemID string, startedAt time.Time) error {
	found := false
	for i, item := range r.items {
		if item.RoomID != roomID {
			continue
		}
		if item.ID == itemID {
			started := startedAt
			r.items[i].StartTime = &started
			r.items[i].UpdatedAt = startedAt
			found = true
			continue
		}
		if !item.IsCompleted {
			r.items[i].StartTime = nil
		}
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (r *agendaRepoFake) ClearActiveItems(ctx context.Context, roomID string) (int, error) {
	cleared := 0
	for i, item := range r.items {
		if item.RoomID == roomID && item.StartTime != nil && !item.IsCompleted {
			r.items[i].StartTime = nil
			cleared++
		}
	}
	return cleared, nil
}

type warningLedgerFake struct {
	records map[string]map[WarningTier]WarningRecord

	recordErr error
	listErr   error
	deleted   []string
}

func newWarningLedgerFake() *warningLedgerFake {
	return &warningLedgerFake{records: make(map[string]map[WarningTier]WarningRecord)}
}

func (l *warningLedgerFake) RecordWarning(ctx context.Context, record WarningRecord) error {
	if l.recordErr != nil {
		return l.recordErr
	}
	byTier, ok := l.records[record.ItemID]
	if !ok {
		byTier = make(map[WarningTier]WarningRecord)
		l.records[record.ItemID] = byTier
	}
	if _, exists := byTier[record.Tier]; exists {
		return ErrDuplicateWarning
	}
	byTier[record.Tier] = record
	return nil
}

func (l *warningLedgerFake) ListWarningsForItem(ctx context.Context, itemID string) ([]WarningRecord, error) {
	if l.listErr != nil {
		return nil, l.listErr
	}
	var out []WarningRecord
	for _, record := range l.records[itemID] {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier.Rank() < out[j].Tier.Rank() })
	return out, nil
}

func (l *warningLedgerFake) DeleteWarningsForItem(ctx context.Context, itemID string) error {
	delete(l.records, itemID)
	l.deleted = append(l.deleted, itemID)
	return nil
}

func (l *warningLedgerFake) count(itemID string) int {
	return len(l.records[itemID])
}

type configRepoFake struct {
	sections map[string]map[string]ConfigSection

	getErr    error
	upsertErr error
}

func newConfigRepoFake() *configRepoFake {
	return &configRepoFake{sections: make(map[string]map[string]ConfigSection)}
}

func (r *configRepoFake) GetSection(ctx context.Context, roomID, section string) (ConfigSection, error) {
	if r.getErr != nil {
		return ConfigSection{}, r.getErr
	}
	stored, ok := r.sections[roomID][section]
	if !ok {
		return ConfigSection{}, ErrNotFound
	}
	return stored, nil
}

func (r *configRepoFake) ListSections(ctx context.Context, roomID string) ([]ConfigSection, error) {
	var out []ConfigSection
	for _, section := range r.sections[roomID] {
		out = append(out, section)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Section < out[j].Section })
	return out, nil
}

func (r *configRepoFake) UpsertSection(ctx context.Context, section ConfigSection) (err error) {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	byName, ok := r.sections[section.RoomID]
	if !ok {
		byName = make(map[string]ConfigSection)
		r.sections[section.RoomID] = byName
	}
	byName[section.Section] = section
	return nil
}

func (r *configRepoFake) DeleteSection(ctx context.Context, roomID, section string) error {
	if _, ok := r.sections[roomID][section]; !ok {
		return ErrNotFound
	}
	delete(r.sections[roomID], section)
	return nil
}

func (r *configRepoFake) DeleteRoomConfig(ctx context.Context, roomID string) error {
	delete(r.sections, roomID)
	return nil
}

type sessionGateFake struct {
	live map[string]bool
	err  error
}

func (g *sessionGateFake) IsLive(ctx context.Context, roomID string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	return g.live[roomID], nil
}

type sentMessage struct {
	RoomID string
	Text   string
	Silent bool
}

type messageSinkFake struct {
	sent []sentMessage
	err  error
}

func (s *messageSinkFake) Send(ctx context.Context, roomID, text string, silent bool) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{RoomID: roomID, Text: text, Silent: silent})
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func positionsOf(items []AgendaItem) []int {
	out := make([]int, len(items))
	for i, item := range items {
		out[i] = item.Position
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	return &t
}
