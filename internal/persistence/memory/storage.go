// Package memory provides an in-memory implementation of the persistence
// repositories. It backs tests and fixtures and mirrors the SQLite
// implementation's semantics, including warning-ledger cascade on item
// deletion.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/agenda-bot/internal/persistence"
)

// Storage implements persistence.AgendaRepository, WarningRepository, and
// RoomConfigRepository over process-local maps guarded by a single RWMutex.
type Storage struct {
	mu       sync.RWMutex
	items    map[string]persistence.AgendaItem
	warnings map[string]map[string]persistence.WarningRecord
	sections map[string]map[string]persistence.ConfigSection
}

// NewStorage returns an empty storage.
func NewStorage() *Storage {
	return &Storage{
		items:    make(map[string]persistence.AgendaItem),
		warnings: make(map[string]map[string]persistence.WarningRecord),
		sections: make(map[string]map[string]persistence.ConfigSection),
	}
}

// --- AgendaRepository implementation ---

// CreateItem stores a new agenda item, resolving position conflicts to the
// next free slot.
func (s *Storage) CreateItem(ctx context.Context, item persistence.AgendaItem, requestedPosition int) (persistence.AgendaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" || item.RoomID == "" {
		return persistence.AgendaItem{}, persistence.ErrConstraintViolation
	}
	if item.PlannedMinutes <= 0 {
		return persistence.AgendaItem{}, persistence.ErrConstraintViolation
	}
	if _, ok := s.items[item.ID]; ok {
		return persistence.AgendaItem{}, persistence.ErrDuplicate
	}

	occupied := make(map[int]struct{})
	maxPosition := 0
	for _, existing := range s.items {
		if existing.RoomID != item.RoomID {
			continue
		}
		occupied[existing.Position] = struct{}{}
		if existing.Position > maxPosition {
			maxPosition = existing.Position
		}
	}

	// Requests beyond max+1 append instead of opening a gap in 1..N.
	position := requestedPosition
	if position <= 0 || position > maxPosition {
		position = maxPosition + 1
	} else if _, taken := occupied[position]; taken {
		position = maxPosition + 1
	}

	item.Position = position
	s.items[item.ID] = item
	return item, nil
}

// GetItem retrieves an item by ID.
func (s *Storage) GetItem(ctx context.Context, id string) (persistence.AgendaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return persistence.AgendaItem{}, persistence.ErrNotFound
	}
	return cloneItem(item), nil
}

// GetItemByPosition retrieves the item occupying a position within a room.
func (s *Storage) GetItemByPosition(ctx context.Context, roomID string, position int) (persistence.AgendaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.RoomID == roomID && item.Position == position {
			return cloneItem(item), nil
		}
	}
	return persistence.AgendaItem{}, persistence.ErrNotFound
}

// ListItems returns a room's items ordered by position.
func (s *Storage) ListItems(ctx context.Context, roomID string) ([]persistence.AgendaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomItemsLocked(roomID), nil
}

// ListActiveItems returns started, incomplete items across all rooms.
func (s *Storage) ListActiveItems(ctx context.Context) ([]persistence.AgendaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]persistence.AgendaItem, 0)
	for _, item := range s.items {
		if item.IsCompleted || item.StartTime == nil || item.PlannedMinutes <= 0 {
			continue
		}
		active = append(active, cloneItem(item))
	}

	sort.Slice(active, func(i, j int) bool {
		if active[i].RoomID == active[j].RoomID {
			return active[i].Position < active[j].Position
		}
		return active[i].RoomID < active[j].RoomID
	})

	return active, nil
}

// UpdateItem replaces a stored item.
func (s *Storage) UpdateItem(ctx context.Context, item persistence.AgendaItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[item.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if item.PlannedMinutes <= 0 {
		return persistence.ErrConstraintViolation
	}

	item.RoomID = existing.RoomID
	item.Position = existing.Position
	item.CreatedAt = existing.CreatedAt
	s.items[item.ID] = cloneItem(item)
	return nil
}

// Reorder applies an item-id to position mapping atomically.
func (s *Storage) Reorder(ctx context.Context, roomID string, positions map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range positions {
		item, ok := s.items[id]
		if !ok || item.RoomID != roomID {
			return persistence.ErrNotFound
		}
	}
	for id, position := range positions {
		item := s.items[id]
		item.Position = position
		s.items[id] = item
	}
	return nil
}

// Move shifts an item to a new position, sliding the items in between.
func (s *Storage) Move(ctx context.Context, roomID string, from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.roomItemsLocked(roomID)
	if to < 1 || to > len(items) {
		return persistence.ErrConstraintViolation
	}

	var movingID string
	for _, item := range items {
		if item.Position == from {
			movingID = item.ID
			break
		}
	}
	if movingID == "" {
		return persistence.ErrNotFound
	}
	if from == to {
		return nil
	}

	for _, item := range items {
		stored := s.items[item.ID]
		switch {
		case stored.ID == movingID:
			stored.Position = to
		case to > from && stored.Position > from && stored.Position <= to:
			stored.Position--
		case to < from && stored.Position >= to && stored.Position < from:
			stored.Position++
		default:
			continue
		}
		s.items[stored.ID] = stored
	}
	return nil
}

// Swap exchanges the positions of two items.
func (s *Storage) Swap(ctx context.Context, roomID string, a, b int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a == b {
		if _, err := s.findByPositionLocked(roomID, a); err != nil {
			return err
		}
		return nil
	}

	first, err := s.findByPositionLocked(roomID, a)
	if err != nil {
		return err
	}
	second, err := s.findByPositionLocked(roomID, b)
	if err != nil {
		return err
	}

	first.Position, second.Position = b, a
	s.items[first.ID] = first
	s.items[second.ID] = second
	return nil
}

// Remove deletes the item at a position and compacts higher positions.
func (s *Storage) Remove(ctx context.Context, roomID string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.findByPositionLocked(roomID, position)
	if err != nil {
		return err
	}

	delete(s.items, target.ID)
	delete(s.warnings, target.ID)

	for id, item := range s.items {
		if item.RoomID == roomID && item.Position > position {
			item.Position--
			s.items[id] = item
		}
	}
	return nil
}

// RemoveCompleted deletes completed items and renumbers the remainder.
func (s *Storage) RemoveCompleted(ctx context.Context, roomID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.roomItemsLocked(roomID)
	removed := 0
	next := 1
	for _, item := range items {
		if item.IsCompleted {
			delete(s.items, item.ID)
			delete(s.warnings, item.ID)
			removed++
			continue
		}
		stored := s.items[item.ID]
		stored.Position = next
		s.items[item.ID] = stored
		next++
	}
	return removed, nil
}

// SetCurrentItem clears other start markers and stamps the target in one
// critical section.
func (s *Storage) SetCurrentItem(ctx context.Context, roomID, itemID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.items[itemID]
	if !ok || target.RoomID != roomID {
		return persistence.ErrNotFound
	}

	for id, item := range s.items {
		if id == itemID || item.RoomID != roomID {
			continue
		}
		if item.StartTime != nil && !item.IsCompleted {
			item.StartTime = nil
			s.items[id] = item
		}
	}

	started := startedAt
	target.StartTime = &started
	s.items[itemID] = target
	return nil
}

// ClearActiveItems removes start markers without completing items.
func (s *Storage) ClearActiveItems(ctx context.Context, roomID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := 0
	for id, item := range s.items {
		if item.RoomID != roomID || item.IsCompleted || item.StartTime == nil {
			continue
		}
		item.StartTime = nil
		s.items[id] = item
		cleared++
	}
	return cleared, nil
}

// --- WarningRepository implementation ---

// RecordWarning appends a ledger entry, rejecting duplicates per (item, tier).
func (s *Storage) RecordWarning(ctx context.Context, record persistence.WarningRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ItemID == "" || record.Tier == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.items[record.ItemID]; !ok {
		return persistence.ErrConstraintViolation
	}

	byTier, ok := s.warnings[record.ItemID]
	if !ok {
		byTier = make(map[string]persistence.WarningRecord)
		s.warnings[record.ItemID] = byTier
	}
	if _, exists := byTier[record.Tier]; exists {
		return persistence.ErrDuplicate
	}
	byTier[record.Tier] = record
	return nil
}

// ListWarningsForItem returns an item's ledger entries ordered by record time.
func (s *Storage) ListWarningsForItem(ctx context.Context, itemID string) ([]persistence.WarningRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byTier := s.warnings[itemID]
	records := make([]persistence.WarningRecord, 0, len(byTier))
	for _, record := range byTier {
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].RecordedAt.Equal(records[j].RecordedAt) {
			return records[i].Tier < records[j].Tier
		}
		return records[i].RecordedAt.Before(records[j].RecordedAt)
	})

	return records, nil
}

// DeleteWarningsForItem drops the ledger for one item.
func (s *Storage) DeleteWarningsForItem(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.warnings, itemID)
	return nil
}

// --- RoomConfigRepository implementation ---

// GetSection retrieves one configuration section for a room.
func (s *Storage) GetSection(ctx context.Context, roomID, section string) (persistence.ConfigSection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sections[roomID][section]
	if !ok {
		return persistence.ConfigSection{}, persistence.ErrNotFound
	}
	return cloneSection(stored), nil
}

// ListSections returns all sections stored for a room ordered by name.
func (s *Storage) ListSections(ctx context.Context, roomID string) ([]persistence.ConfigSection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byName := s.sections[roomID]
	sections := make([]persistence.ConfigSection, 0, len(byName))
	for _, stored := range byName {
		sections = append(sections, cloneSection(stored))
	}

	sort.Slice(sections, func(i, j int) bool {
		return sections[i].Section < sections[j].Section
	})

	return sections, nil
}

// UpsertSection creates or replaces a section.
func (s *Storage) UpsertSection(ctx context.Context, section persistence.ConfigSection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if section.RoomID == "" || section.Section == "" {
		return persistence.ErrConstraintViolation
	}

	byName, ok := s.sections[section.RoomID]
	if !ok {
		byName = make(map[string]persistence.ConfigSection)
		s.sections[section.RoomID] = byName
	}
	byName[section.Section] = cloneSection(section)
	return nil
}

// DeleteSection removes one section; deleting an absent section is an error.
func (s *Storage) DeleteSection(ctx context.Context, roomID, section string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byName, ok := s.sections[roomID]
	if !ok {
		return persistence.ErrNotFound
	}
	if _, exists := byName[section]; !exists {
		return persistence.ErrNotFound
	}
	delete(byName, section)
	if len(byName) == 0 {
		delete(s.sections, roomID)
	}
	return nil
}

// DeleteRoomConfig removes every section for a room.
func (s *Storage) DeleteRoomConfig(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sections, roomID)
	return nil
}

// --- Helpers ---

func (s *Storage) roomItemsLocked(roomID string) []persistence.AgendaItem {
	items := make([]persistence.AgendaItem, 0)
	for _, item := range s.items {
		if item.RoomID != roomID {
			continue
		}
		items = append(items, cloneItem(item))
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Position < items[j].Position
	})
	return items
}

func (s *Storage) findByPositionLocked(roomID string, position int) (persistence.AgendaItem, error) {
	for _, item := range s.items {
		if item.RoomID == roomID && item.Position == position {
			return item, nil
		}
	}
	return persistence.AgendaItem{}, persistence.ErrNotFound
}

func cloneItem(item persistence.AgendaItem) persistence.AgendaItem {
	if item.CompletedAt != nil {
		completed := *item.CompletedAt
		item.CompletedAt = &completed
	}
	if item.StartTime != nil {
		started := *item.StartTime
		item.StartTime = &started
	}
	return item
}

func cloneSection(section persistence.ConfigSection) persistence.ConfigSection {
	payload := make([]byte, len(section.Payload))
	copy(payload, section.Payload)
	section.Payload = payload
	return section
}
