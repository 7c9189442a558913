package domain

import (
	"cmp"
	"slices"
)

// PriorityIndex keeps tasks and subtasks ordered by start time.
// Items without a start time sort after all scheduled items; ties are
// broken by ID, which follows creation order. An item that loses its start
// time therefore returns to its creation slot among the unscheduled items,
// and the order is the same after a restore. Epics are never indexed.
// It is not safe for concurrent use.
type PriorityIndex struct {
	items []*Item
}

// NewPriorityIndex creates an empty index.
func NewPriorityIndex() *PriorityIndex {
	return &PriorityIndex{}
}

// ComparePriority orders two items for the priority index.
func ComparePriority(a, b *Item) int {
	switch {
	case a.HasStart() && !b.HasStart():
		return -1
	case !a.HasStart() && b.HasStart():
		return 1
	case a.HasStart() && b.HasStart():
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.ID, b.ID)
}

// Rebuild replaces the index contents with the schedulable items in items.
func (p *PriorityIndex) Rebuild(items []*Item) {
	p.items = p.items[:0]
	for _, it := range items {
		if it.Kind.Schedulable() {
			p.items = append(p.items, it)
		}
	}
	slices.SortStableFunc(p.items, ComparePriority)
}

// Insert adds item in order. Epics are ignored.
func (p *PriorityIndex) Insert(item *Item) {
	if !item.Kind.Schedulable() {
		return
	}
	pos, _ := slices.BinarySearchFunc(p.items, item, ComparePriority)
	p.items = slices.Insert(p.items, pos, item)
}

// Remove drops the item with this ID if present.
func (p *PriorityIndex) Remove(id int) {
	p.items = slices.DeleteFunc(p.items, func(it *Item) bool {
		return it.ID == id
	})
}

// Update re-sorts item after its schedule may have changed.
func (p *PriorityIndex) Update(item *Item) {
	p.Remove(item.ID)
	p.Insert(item)
}

// Len returns the number of indexed items.
func (p *PriorityIndex) Len() int {
	return len(p.items)
}

// Snapshot returns the indexed items in priority order.
func (p *PriorityIndex) Snapshot() []*Item {
	return slices.Clone(p.items)
}
