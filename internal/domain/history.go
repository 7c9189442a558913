package domain

import (
	"container/list"
	"fmt"
)

// HistoryLimit is the maximum number of entries kept in the view history.
const HistoryLimit = 10

// History is a bounded most-recently-used record of accessed items.
// Each ID appears at most once; the oldest entry is evicted when the limit
// is exceeded. It is not safe for concurrent use.
type History struct {
	order *list.List            // *Item values, oldest at Front
	index map[int]*list.Element // item ID -> element in order
	limit int
}

// NewHistory creates an empty history holding at most limit entries.
// A non-positive limit falls back to HistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = HistoryLimit
	}
	return &History{
		order: list.New(),
		index: make(map[int]*list.Element),
		limit: limit,
	}
}

// Record appends item as the most recent entry, moving it there if it was
// already present and evicting the oldest entry if the limit is exceeded.
func (h *History) Record(item *Item) error {
	if item == nil {
		return fmt.Errorf("record history: %w", ErrInvalidArgument)
	}
	if el, ok := h.index[item.ID]; ok {
		el.Value = item
		h.order.MoveToBack(el)
		return nil
	}
	h.index[item.ID] = h.order.PushBack(item)
	if h.order.Len() > h.limit {
		oldest := h.order.Front()
		h.order.Remove(oldest)
		delete(h.index, oldest.Value.(*Item).ID)
	}
	return nil
}

// Refresh replaces the stored entry for item.ID without changing its position.
// It is a no-op if the ID is not in the history.
func (h *History) Refresh(item *Item) {
	if el, ok := h.index[item.ID]; ok {
		el.Value = item
	}
}

// Remove drops the entry with this ID if present.
func (h *History) Remove(id int) {
	el, ok := h.index[id]
	if !ok {
		return
	}
	h.order.Remove(el)
	delete(h.index, id)
}

// Contains reports whether the ID is in the history.
func (h *History) Contains(id int) bool {
	_, ok := h.index[id]
	return ok
}

// Len returns the number of entries.
func (h *History) Len() int {
	return h.order.Len()
}

// Clear removes all entries.
func (h *History) Clear() {
	h.order.Init()
	clear(h.index)
}

// Snapshot returns the entries oldest first.
func (h *History) Snapshot() []*Item {
	items := make([]*Item, 0, h.order.Len())
	for el := h.order.Front(); el != nil; el = el.Next() {
		items = append(items, el.Value.(*Item))
	}
	return items
}

// IDs returns the entry IDs oldest first.
func (h *History) IDs() []int {
	ids := make([]int, 0, h.order.Len())
	for el := h.order.Front(); el != nil; el = el.Next() {
		ids = append(ids, el.Value.(*Item).ID)
	}
	return ids
}
