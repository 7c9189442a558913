package manager

import (
	"fmt"
	"maps"
	"slices"

	"github.com/runoshun/tracker/internal/domain"
)

// Snapshot returns a copy of the full manager state.
func (m *Manager) Snapshot() *domain.Snapshot {
	ids := slices.Sorted(maps.Keys(m.kinds))
	items := make([]*domain.Item, 0, len(ids))
	for _, id := range ids {
		it, _ := m.find(id)
		items = append(items, it.Clone())
	}
	return &domain.Snapshot{
		Items:   items,
		History: m.history.IDs(),
	}
}

// Restore replaces the manager state with snap. Subtasks are re-linked to
// their epics through their EpicID, epics are recomputed, the priority index
// is rebuilt, the history is replayed in order and the ID counter moves one
// past the highest ID seen.
//
// Stores may persist parts of the state independently, so references to IDs
// that are absent from snap are dropped with a warning: a subtask whose epic
// is missing is unlinked and a history entry without an item is skipped.
// Invalid items, duplicate IDs and references to an item of the wrong kind
// fail with ErrStorageCorrupt and leave the manager unchanged.
func (m *Manager) Restore(snap *domain.Snapshot) error {
	fresh := New(WithLogger(m.logger), WithStore(m.store))
	if snap == nil {
		snap = &domain.Snapshot{}
	}

	for _, item := range snap.Items {
		if item == nil || item.ID <= 0 {
			return fmt.Errorf("restore: item without id: %w", domain.ErrStorageCorrupt)
		}
		if err := item.Validate(); err != nil {
			return fmt.Errorf("restore: item %d: %w: %w", item.ID, domain.ErrStorageCorrupt, err)
		}
		if _, dup := fresh.kinds[item.ID]; dup {
			return fmt.Errorf("restore: duplicate id %d: %w", item.ID, domain.ErrStorageCorrupt)
		}
		it := item.Clone()
		it.Start = domain.NormalizeStart(it.Start)
		if it.Status == "" {
			it.Status = domain.StatusNew
		}
		if it.Kind == domain.KindEpic {
			it.Subtasks = nil
		}
		fresh.buckets[it.Kind][it.ID] = it
		fresh.kinds[it.ID] = it.Kind
		fresh.nextID = max(fresh.nextID, it.ID+1)
	}

	for _, sub := range fresh.buckets[domain.KindSubtask] {
		if sub.EpicID == 0 {
			continue
		}
		if _, ok := fresh.kinds[sub.EpicID]; !ok {
			m.logger.Warn("unlinking subtask from missing epic", "subtask", sub.ID, "epic", sub.EpicID)
			sub.EpicID = 0
			continue
		}
		epic, err := fresh.lookup(sub.EpicID, domain.KindEpic)
		if err != nil {
			return fmt.Errorf("restore: subtask %d: %w: %w", sub.ID, domain.ErrStorageCorrupt, err)
		}
		epic.AddSubtask(sub.ID)
	}
	for _, epic := range fresh.buckets[domain.KindEpic] {
		fresh.recompute(epic)
	}

	all := make([]*domain.Item, 0, len(fresh.kinds))
	for _, bucket := range fresh.buckets {
		for _, it := range bucket {
			all = append(all, it)
		}
	}
	fresh.priority.Rebuild(all)

	for _, id := range snap.History {
		it, ok := fresh.find(id)
		if !ok {
			m.logger.Warn("skipping history entry for missing item", "id", id)
			continue
		}
		if err := fresh.history.Record(it); err != nil {
			return err
		}
	}

	m.buckets = fresh.buckets
	m.kinds = fresh.kinds
	m.history = fresh.history
	m.priority = fresh.priority
	m.nextID = max(m.nextID, fresh.nextID)
	return nil
}

// Reload restores the state from the configured store.
func (m *Manager) Reload() error {
	if m.store == nil {
		return nil
	}
	snap, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	return m.Restore(snap)
}

// persist writes the full state through to the store, if any.
// The in-memory change has already been applied when this fails.
func (m *Manager) persist(op string) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Save(m.Snapshot()); err != nil {
		m.logger.Warn("state not persisted", "op", op, "error", err)
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageWrite, err)
	}
	return nil
}
