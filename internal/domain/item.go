// Package domain contains core business entities and interfaces.
package domain

import (
	"slices"
	"time"
)

// Item is a unit of work tracked by the manager: a task, an epic or a subtask.
// Kind selects which of the variant-specific fields are meaningful.
// A zero Start means the item is unscheduled; a zero Duration counts as none.
// Fields are ordered to minimize memory padding.
type Item struct {
	Start       time.Time     // Scheduled start (zero = unset)
	End         time.Time     // Derived end, epics only (zero = unset)
	Name        string        // Short name
	Description string        // Free-form description (may be empty)
	Kind        Kind          // Variant discriminator
	Status      Status        // Lifecycle status (derived for epics)
	Subtasks    []int         // Owned subtask IDs sorted ascending, epics only
	Duration    time.Duration // Planned duration (derived for epics)
	ID          int           // Assigned by the manager (0 = not yet created)
	EpicID      int           // Owning epic, subtasks only (0 = unlinked)
}

// NewTask returns an unsaved task.
func NewTask(name, description string) *Item {
	return &Item{Kind: KindTask, Name: name, Description: description, Status: StatusNew}
}

// NewEpic returns an unsaved epic with no subtasks.
func NewEpic(name, description string) *Item {
	return &Item{Kind: KindEpic, Name: name, Description: description, Status: StatusNew}
}

// NewSubtask returns an unsaved subtask. epicID may be 0 to create it unlinked.
func NewSubtask(name, description string, epicID int) *Item {
	return &Item{Kind: KindSubtask, Name: name, Description: description, Status: StatusNew, EpicID: epicID}
}

// Schedule sets the start time and duration and returns the item for chaining.
func (i *Item) Schedule(start time.Time, d time.Duration) *Item {
	i.Start = start
	i.Duration = d
	return i
}

// HasStart reports whether the item has a start time.
func (i *Item) HasStart() bool {
	return !i.Start.IsZero()
}

// EndTime returns the end of the item's schedule.
// For tasks and subtasks it is Start + Duration; for epics it is the derived End.
// ok is false when the item has no start time.
func (i *Item) EndTime() (end time.Time, ok bool) {
	if i.Kind == KindEpic {
		return i.End, !i.End.IsZero()
	}
	if !i.HasStart() {
		return time.Time{}, false
	}
	return i.Start.Add(i.Duration), true
}

// Equal compares the fields visible to users: id, name, description and status.
// Kind and schedule are intentionally not part of equality.
func (i *Item) Equal(other *Item) bool {
	if i == nil || other == nil {
		return i == other
	}
	return i.ID == other.ID &&
		i.Name == other.Name &&
		i.Description == other.Description &&
		i.Status == other.Status
}

// Clone returns a deep copy of the item.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	c := *i
	c.Subtasks = slices.Clone(i.Subtasks)
	return &c
}

// Validate checks the fields a client is allowed to supply.
// An empty status is accepted and means StatusNew.
func (i *Item) Validate() error {
	if !i.Kind.IsValid() {
		return ErrInvalidKind
	}
	if i.Status != "" && !i.Status.IsValid() {
		return ErrInvalidStatus
	}
	if i.Duration < 0 {
		return ErrInvalidArgument
	}
	return nil
}

// HasSubtask reports whether the epic owns the given subtask.
func (i *Item) HasSubtask(id int) bool {
	_, found := slices.BinarySearch(i.Subtasks, id)
	return found
}

// AddSubtask inserts id into the epic's owned set, keeping it sorted.
// Adding an id twice is a no-op.
func (i *Item) AddSubtask(id int) {
	pos, found := slices.BinarySearch(i.Subtasks, id)
	if found {
		return
	}
	i.Subtasks = slices.Insert(i.Subtasks, pos, id)
}

// RemoveSubtask removes id from the epic's owned set if present.
func (i *Item) RemoveSubtask(id int) {
	pos, found := slices.BinarySearch(i.Subtasks, id)
	if !found {
		return
	}
	i.Subtasks = slices.Delete(i.Subtasks, pos, pos+1)
}
