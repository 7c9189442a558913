// Package manager implements the task manager core: the item store, epic
// aggregation, conflict detection, view history, priority ordering and
// write-through persistence.
//
// A Manager is not safe for concurrent use. Hosts that serve several callers
// at once must serialize calls themselves.
package manager

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/runoshun/tracker/internal/domain"
)

// Manager owns every item, the view history and the priority index.
// Fields are ordered to minimize memory padding.
type Manager struct {
	store    domain.StateStore     // nil = in-memory only
	logger   *slog.Logger          // never nil
	history  *domain.History       // recently fetched items
	priority *domain.PriorityIndex // tasks and subtasks by start time
	buckets  map[domain.Kind]map[int]*domain.Item
	kinds    map[int]domain.Kind // id -> bucket
	nextID   int
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore enables write-through persistence to store.
func WithStore(store domain.StateStore) Option {
	return func(m *Manager) { m.store = store }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates an empty manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		logger:   slog.New(slog.DiscardHandler),
		history:  domain.NewHistory(domain.HistoryLimit),
		priority: domain.NewPriorityIndex(),
		buckets:  make(map[domain.Kind]map[int]*domain.Item, 3),
		kinds:    make(map[int]domain.Kind),
		nextID:   1,
	}
	for _, kind := range domain.AllKinds() {
		m.buckets[kind] = make(map[int]*domain.Item)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open creates a manager and restores its state from the configured store.
// A store that was never written yields an empty manager.
func Open(opts ...Option) (*Manager, error) {
	m := New(opts...)
	if m.store == nil {
		return m, nil
	}
	snap, err := m.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if err := m.Restore(snap); err != nil {
		return nil, err
	}
	m.logger.Info("state restored", "items", len(m.kinds), "history", m.history.Len(), "next_id", m.nextID)
	return m, nil
}

// Create stores a new item and returns its assigned ID.
// The item must not have an ID yet. Start times are kept in UTC at minute
// precision. A scheduled item that overlaps another task or subtask fails
// with ErrTimeIntersection and is not created.
// A subtask carrying an EpicID is linked to that epic.
// On ErrStorageWrite the item was created and the returned ID is valid.
func (m *Manager) Create(item *domain.Item) (int, error) {
	if item == nil {
		return 0, fmt.Errorf("create: nil item: %w", domain.ErrInvalidArgument)
	}
	if item.ID != 0 {
		return 0, fmt.Errorf("create: item already has id %d: %w", item.ID, domain.ErrInvalidArgument)
	}
	if err := item.Validate(); err != nil {
		return 0, fmt.Errorf("create: %w", errInvalid(err))
	}

	it := item.Clone()
	it.Start = domain.NormalizeStart(it.Start)
	if it.Status == "" {
		it.Status = domain.StatusNew
	}

	var epic *domain.Item
	switch it.Kind {
	case domain.KindEpic:
		// Status and schedule are derived; a new epic has no subtasks.
		it.Subtasks = nil
		it.Recompute(nil)
	case domain.KindSubtask:
		if it.EpicID != 0 {
			e, err := m.lookup(it.EpicID, domain.KindEpic)
			if err != nil {
				return 0, fmt.Errorf("create: epic %d: %w", it.EpicID, err)
			}
			epic = e
		}
	case domain.KindTask:
	}

	if conflict := domain.FindConflict(it, m.priority.Snapshot()); conflict != nil {
		return 0, fmt.Errorf("create: overlaps item %d: %w", conflict.ID, domain.ErrTimeIntersection)
	}

	it.ID = m.nextID
	m.nextID++
	m.insert(it)
	if epic != nil {
		epic.AddSubtask(it.ID)
		m.recompute(epic)
	}

	m.logger.Debug("item created", "id", it.ID, "kind", it.Kind)
	return it.ID, m.persist("create")
}

// Get returns a copy of the item and records the access in the history.
func (m *Manager) Get(id int) (*domain.Item, error) {
	it, ok := m.find(id)
	if !ok {
		return nil, fmt.Errorf("get %d: %w", id, domain.ErrNoSuchItem)
	}
	if err := m.history.Record(it); err != nil {
		return nil, err
	}
	return it.Clone(), m.persist("get")
}

// Peek returns a copy of the item without touching the history.
func (m *Manager) Peek(id int) (*domain.Item, error) {
	it, ok := m.find(id)
	if !ok {
		return nil, fmt.Errorf("peek %d: %w", id, domain.ErrNoSuchItem)
	}
	return it.Clone(), nil
}

// List returns copies of all items of a kind in creation order.
// An empty slice is returned when there are none.
func (m *Manager) List(kind domain.Kind) ([]*domain.Item, error) {
	bucket, ok := m.buckets[kind]
	if !ok {
		return nil, fmt.Errorf("list: %w", domain.ErrInvalidKind)
	}
	items := make([]*domain.Item, 0, len(bucket))
	for _, id := range slices.Sorted(maps.Keys(bucket)) {
		items = append(items, bucket[id].Clone())
	}
	return items, nil
}

// Update replaces the item with this ID by item.
// The stored item must have the same kind. For epics only the name and
// description are taken from item. A subtask with EpicID 0 keeps its epic; a
// different EpicID moves it. A scheduled item that overlaps another task or
// subtask fails with ErrTimeIntersection and nothing changes.
func (m *Manager) Update(id int, item *domain.Item) error {
	if item == nil {
		return fmt.Errorf("update %d: nil item: %w", id, domain.ErrInvalidArgument)
	}
	old, err := m.lookup(id, item.Kind)
	if err != nil {
		return fmt.Errorf("update %d: %w", id, err)
	}
	if err := item.Validate(); err != nil {
		return fmt.Errorf("update %d: %w", id, errInvalid(err))
	}

	it := item.Clone()
	it.ID = id
	it.Start = domain.NormalizeStart(it.Start)
	if it.Status == "" {
		it.Status = domain.StatusNew
	}

	var oldEpic, newEpic *domain.Item
	switch it.Kind {
	case domain.KindEpic:
		it.Subtasks = slices.Clone(old.Subtasks)
		it.Recompute(m.subtasksOf(it))
	case domain.KindSubtask:
		if it.EpicID == 0 {
			it.EpicID = old.EpicID
		}
		if it.EpicID != 0 {
			e, err := m.lookup(it.EpicID, domain.KindEpic)
			if err != nil {
				return fmt.Errorf("update %d: epic %d: %w", id, it.EpicID, err)
			}
			newEpic = e
		}
		if old.EpicID != 0 && old.EpicID != it.EpicID {
			oldEpic, _ = m.lookup(old.EpicID, domain.KindEpic)
		}
	case domain.KindTask:
	}

	if conflict := domain.FindConflict(it, m.priority.Snapshot()); conflict != nil {
		return fmt.Errorf("update %d: overlaps item %d: %w", id, conflict.ID, domain.ErrTimeIntersection)
	}

	m.buckets[it.Kind][id] = it
	m.history.Refresh(it)
	m.priority.Update(it)
	if oldEpic != nil {
		oldEpic.RemoveSubtask(id)
		m.recompute(oldEpic)
	}
	if newEpic != nil {
		newEpic.AddSubtask(id)
		m.recompute(newEpic)
	}

	m.logger.Debug("item updated", "id", id, "kind", it.Kind)
	return m.persist("update")
}

// Delete removes the item with this ID. Deleting a subtask unlinks it from
// its epic; deleting an epic deletes all of its subtasks first.
func (m *Manager) Delete(id int) error {
	it, ok := m.find(id)
	if !ok {
		return fmt.Errorf("delete %d: %w", id, domain.ErrNoSuchItem)
	}

	switch it.Kind {
	case domain.KindEpic:
		for _, sid := range it.Subtasks {
			m.drop(sid)
		}
	case domain.KindSubtask:
		if epic, err := m.lookup(it.EpicID, domain.KindEpic); err == nil {
			epic.RemoveSubtask(id)
			m.recompute(epic)
		}
	case domain.KindTask:
	}
	m.drop(id)

	m.logger.Debug("item deleted", "id", id, "kind", it.Kind)
	return m.persist("delete")
}

// DeleteAll removes every item of a kind. Deleting all subtasks empties
// every epic; deleting all epics also deletes the subtasks they own.
func (m *Manager) DeleteAll(kind domain.Kind) error {
	bucket, ok := m.buckets[kind]
	if !ok {
		return fmt.Errorf("delete all: %w", domain.ErrInvalidKind)
	}
	ids := slices.Sorted(maps.Keys(bucket))

	switch kind {
	case domain.KindEpic:
		for _, id := range ids {
			for _, sid := range bucket[id].Subtasks {
				m.drop(sid)
			}
		}
	case domain.KindSubtask:
		for _, epic := range m.buckets[domain.KindEpic] {
			if len(epic.Subtasks) == 0 {
				continue
			}
			epic.Subtasks = nil
			m.recompute(epic)
		}
	case domain.KindTask:
	}
	for _, id := range ids {
		m.drop(id)
	}

	m.logger.Debug("items deleted", "kind", kind, "count", len(ids))
	return m.persist("delete all")
}

// Link attaches a subtask to an epic and recomputes the epic.
// Linking twice is a no-op on the set. A subtask owned by another epic is
// moved, and the previous epic is recomputed as well.
func (m *Manager) Link(subtaskID, epicID int) error {
	sub, err := m.lookup(subtaskID, domain.KindSubtask)
	if err != nil {
		return fmt.Errorf("link: subtask %d: %w", subtaskID, err)
	}
	epic, err := m.lookup(epicID, domain.KindEpic)
	if err != nil {
		return fmt.Errorf("link: epic %d: %w", epicID, err)
	}

	if sub.EpicID != 0 && sub.EpicID != epicID {
		if prev, err := m.lookup(sub.EpicID, domain.KindEpic); err == nil {
			prev.RemoveSubtask(subtaskID)
			m.recompute(prev)
		}
	}
	sub.EpicID = epicID
	epic.AddSubtask(subtaskID)
	m.recompute(epic)

	m.logger.Debug("subtask linked", "subtask", subtaskID, "epic", epicID)
	return m.persist("link")
}

// EpicSubtasks returns copies of the subtasks owned by an epic.
func (m *Manager) EpicSubtasks(epicID int) ([]*domain.Item, error) {
	epic, err := m.lookup(epicID, domain.KindEpic)
	if err != nil {
		return nil, fmt.Errorf("epic subtasks %d: %w", epicID, err)
	}
	subs := m.subtasksOf(epic)
	out := make([]*domain.Item, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.Clone())
	}
	return out, nil
}

// Prioritized returns copies of all tasks and subtasks ordered by start time,
// unscheduled items last.
func (m *Manager) Prioritized() []*domain.Item {
	return cloneAll(m.priority.Snapshot())
}

// History returns copies of the recently fetched items, oldest first.
func (m *Manager) History() []*domain.Item {
	return cloneAll(m.history.Snapshot())
}

// NextID returns the ID the next created item will receive.
func (m *Manager) NextID() int {
	return m.nextID
}

// ResetIDs sets the next ID to allocate. It never moves the counter below
// one past the highest ID currently stored.
func (m *Manager) ResetIDs(next int) {
	floor := 1
	for id := range m.kinds {
		floor = max(floor, id+1)
	}
	m.nextID = max(next, floor)
}

// find returns the live item with this ID.
func (m *Manager) find(id int) (*domain.Item, bool) {
	kind, ok := m.kinds[id]
	if !ok {
		return nil, false
	}
	it, ok := m.buckets[kind][id]
	return it, ok
}

// lookup returns the live item with this ID if it has the expected kind.
func (m *Manager) lookup(id int, kind domain.Kind) (*domain.Item, error) {
	it, ok := m.find(id)
	if !ok || it.Kind != kind {
		return nil, fmt.Errorf("%s %d: %w", kind.Slug(), id, domain.ErrNoSuchItem)
	}
	return it, nil
}

// insert adds a live item to its bucket and the priority index.
func (m *Manager) insert(it *domain.Item) {
	m.buckets[it.Kind][it.ID] = it
	m.kinds[it.ID] = it.Kind
	m.priority.Insert(it)
}

// drop removes an item from every structure without touching epics.
func (m *Manager) drop(id int) {
	kind, ok := m.kinds[id]
	if !ok {
		return
	}
	delete(m.buckets[kind], id)
	delete(m.kinds, id)
	m.history.Remove(id)
	m.priority.Remove(id)
}

// subtasksOf returns the live subtasks owned by epic, in ID order.
func (m *Manager) subtasksOf(epic *domain.Item) []*domain.Item {
	subs := make([]*domain.Item, 0, len(epic.Subtasks))
	for _, sid := range epic.Subtasks {
		if s, ok := m.buckets[domain.KindSubtask][sid]; ok {
			subs = append(subs, s)
		}
	}
	return subs
}

// recompute refreshes an epic's derived fields from its live subtasks.
func (m *Manager) recompute(epic *domain.Item) {
	epic.Recompute(m.subtasksOf(epic))
}

// errInvalid maps validation errors onto ErrInvalidArgument while keeping the cause.
func errInvalid(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
}

func cloneAll(items []*domain.Item) []*domain.Item {
	out := make([]*domain.Item, 0, len(items))
	for _, it := range items {
		out = append(out, it.Clone())
	}
	return out
}
