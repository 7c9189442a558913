package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

func TestItem_EndTime(t *testing.T) {
	task := NewTask("a", "").Schedule(t0, 90*time.Minute)
	end, ok := task.EndTime()
	assert.True(t, ok)
	assert.Equal(t, t0.Add(90*time.Minute), end)

	_, ok = NewTask("b", "").EndTime()
	assert.False(t, ok)

	epic := NewEpic("e", "")
	_, ok = epic.EndTime()
	assert.False(t, ok)
	epic.End = t0
	end, ok = epic.EndTime()
	assert.True(t, ok)
	assert.Equal(t, t0, end)
}

func TestItem_Equal(t *testing.T) {
	a := &Item{ID: 1, Name: "n", Description: "d", Status: StatusNew, Kind: KindTask}
	b := &Item{ID: 1, Name: "n", Description: "d", Status: StatusNew, Kind: KindSubtask, Start: t0}
	assert.True(t, a.Equal(b), "kind and schedule are not compared")

	c := a.Clone()
	c.Status = StatusDone
	assert.False(t, a.Equal(c))

	var nilItem *Item
	assert.True(t, nilItem.Equal(nil))
	assert.False(t, a.Equal(nil))
}

func TestItem_Clone(t *testing.T) {
	epic := NewEpic("e", "")
	epic.Subtasks = []int{1, 2}

	c := epic.Clone()
	c.Subtasks[0] = 99
	c.Name = "changed"

	assert.Equal(t, []int{1, 2}, epic.Subtasks)
	assert.Equal(t, "e", epic.Name)

	var nilItem *Item
	assert.Nil(t, nilItem.Clone())
}

func TestItem_Validate(t *testing.T) {
	assert.NoError(t, NewTask("a", "").Validate())
	assert.NoError(t, (&Item{Kind: KindEpic}).Validate(), "empty status means new")
	assert.ErrorIs(t, (&Item{Kind: "STORY"}).Validate(), ErrInvalidKind)
	assert.ErrorIs(t, (&Item{Kind: KindTask, Status: "OPEN"}).Validate(), ErrInvalidStatus)
	assert.ErrorIs(t, (&Item{Kind: KindTask, Duration: -time.Minute}).Validate(), ErrInvalidArgument)
}

func TestItem_SubtaskSet(t *testing.T) {
	epic := NewEpic("e", "")
	epic.AddSubtask(5)
	epic.AddSubtask(2)
	epic.AddSubtask(9)
	epic.AddSubtask(5)
	assert.Equal(t, []int{2, 5, 9}, epic.Subtasks)
	assert.True(t, epic.HasSubtask(9))
	assert.False(t, epic.HasSubtask(3))

	epic.RemoveSubtask(5)
	epic.RemoveSubtask(42)
	assert.Equal(t, []int{2, 9}, epic.Subtasks)
}

func TestEpicStatus(t *testing.T) {
	sub := func(s Status) *Item { return &Item{Kind: KindSubtask, Status: s} }
	tests := []struct {
		name string
		subs []*Item
		want Status
	}{
		{"no subtasks", nil, StatusNew},
		{"all new", []*Item{sub(StatusNew), sub(StatusNew)}, StatusNew},
		{"all done", []*Item{sub(StatusDone), sub(StatusDone)}, StatusDone},
		{"mixed new and done", []*Item{sub(StatusNew), sub(StatusDone)}, StatusInProgress},
		{"one in progress", []*Item{sub(StatusInProgress)}, StatusInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EpicStatus(tt.subs))
		})
	}
}

func TestItem_Recompute(t *testing.T) {
	epic := NewEpic("e", "")
	subs := []*Item{
		{Kind: KindSubtask, Status: StatusDone, Start: t0.Add(2 * time.Hour), Duration: time.Hour},
		{Kind: KindSubtask, Status: StatusNew, Start: t0, Duration: 30 * time.Minute},
		{Kind: KindSubtask, Status: StatusNew, Duration: 15 * time.Minute},
	}
	epic.Recompute(subs)

	assert.Equal(t, StatusInProgress, epic.Status)
	assert.Equal(t, t0, epic.Start)
	assert.Equal(t, 105*time.Minute, epic.Duration)
	assert.Equal(t, t0.Add(3*time.Hour), epic.End)

	epic.Recompute(nil)
	assert.Equal(t, StatusNew, epic.Status)
	assert.False(t, epic.HasStart())
	assert.Zero(t, epic.Duration)
	assert.True(t, epic.End.IsZero())

	task := NewTask("t", "")
	task.Recompute(subs)
	assert.Equal(t, StatusNew, task.Status)
	assert.Zero(t, task.Duration)
}

func TestOverlaps(t *testing.T) {
	at := func(offset, d time.Duration) *Item {
		return NewTask("x", "").Schedule(t0.Add(offset), d)
	}
	tests := []struct {
		name string
		a, b *Item
		want bool
	}{
		{"same interval", at(0, time.Hour), at(0, time.Hour), true},
		{"partial overlap", at(0, time.Hour), at(30*time.Minute, time.Hour), true},
		{"contained", at(0, 3*time.Hour), at(time.Hour, time.Minute), true},
		{"touching end to start", at(0, time.Hour), at(time.Hour, time.Hour), false},
		{"disjoint", at(0, time.Hour), at(2*time.Hour, time.Hour), false},
		{"zero duration inside", at(0, time.Hour), at(30*time.Minute, 0), true},
		{"zero duration at start", at(0, time.Hour), at(0, 0), false},
		{"unscheduled", at(0, time.Hour), NewTask("u", ""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.a, tt.b))
			assert.Equal(t, tt.want, Overlaps(tt.b, tt.a), "symmetric")
		})
	}
}

func TestFindConflict(t *testing.T) {
	a := NewTask("a", "").Schedule(t0, time.Hour)
	a.ID = 1
	epic := NewEpic("e", "")
	epic.ID = 2
	epic.Start = t0
	epic.Duration = time.Hour

	others := []*Item{a, epic}

	b := NewSubtask("b", "", 0).Schedule(t0.Add(30*time.Minute), time.Hour)
	assert.Same(t, a, FindConflict(b, others))

	self := a.Clone()
	self.Duration = 2 * time.Hour
	assert.Nil(t, FindConflict(self, others), "own id is skipped")

	assert.Nil(t, FindConflict(NewTask("u", ""), others))
	assert.Nil(t, FindConflict(epic, []*Item{a}), "epics are derived, never checked")

	later := NewTask("c", "").Schedule(t0.Add(time.Hour), time.Hour)
	assert.Nil(t, FindConflict(later, others))
}
