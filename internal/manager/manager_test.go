package manager

import (
	"errors"
	"testing"
	"time"

	"github.com/runoshun/tracker/internal/domain"
	"github.com/runoshun/tracker/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2023, 1, 2, 12, 0, 0, 0, time.UTC)

func mustCreate(t *testing.T, m *Manager, item *domain.Item) int {
	t.Helper()
	id, err := m.Create(item)
	require.NoError(t, err)
	return id
}

func itemIDs(items []*domain.Item) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestManager_CreateAssignsIncreasingIDs(t *testing.T) {
	m := New()
	a := mustCreate(t, m, domain.NewTask("a", ""))
	b := mustCreate(t, m, domain.NewEpic("b", ""))
	require.NoError(t, m.Delete(b))
	c := mustCreate(t, m, domain.NewTask("c", ""))

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 3, c, "ids are never reused")
	assert.Equal(t, 4, m.NextID())
}

func TestManager_CreateRejectsInvalid(t *testing.T) {
	m := New()

	_, err := m.Create(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	withID := domain.NewTask("a", "")
	withID.ID = 7
	_, err = m.Create(withID)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = m.Create(&domain.Item{Kind: "STORY"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	_, err = m.Create(domain.NewSubtask("s", "", 99))
	assert.ErrorIs(t, err, domain.ErrNoSuchItem)

	assert.Equal(t, 1, m.NextID(), "failed creates do not consume ids")
}

func TestManager_CreateDoesNotAliasInput(t *testing.T) {
	m := New()
	in := domain.NewTask("a", "")
	id := mustCreate(t, m, in)
	in.Name = "mutated"

	got, err := m.Peek(id)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
	assert.Zero(t, in.ID)
}

func TestManager_CreateEpicIgnoresClientSchedule(t *testing.T) {
	m := New()
	epic := domain.NewEpic("e", "")
	epic.Status = domain.StatusDone
	epic.Start = base
	epic.Duration = time.Hour
	epic.Subtasks = []int{42}

	id := mustCreate(t, m, epic)
	got, err := m.Peek(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, got.Status)
	assert.False(t, got.HasStart())
	assert.Zero(t, got.Duration)
	assert.Empty(t, got.Subtasks)
}

func TestManager_TimeIntersection(t *testing.T) {
	store := testutil.NewMockStore(nil)
	m := New(WithStore(store))

	mustCreate(t, m, domain.NewTask("T", "").Schedule(time.Date(2023, 1, 1, 11, 50, 0, 0, time.UTC), 120*time.Minute))
	saves := store.Saves

	_, err := m.Create(domain.NewTask("U", "").Schedule(time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC), 30*time.Minute))
	require.ErrorIs(t, err, domain.ErrTimeIntersection)

	tasks, err := m.List(domain.KindTask)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	assert.Equal(t, saves, store.Saves, "rejected create is not persisted")

	adjacent := domain.NewTask("V", "").Schedule(time.Date(2023, 1, 1, 13, 50, 0, 0, time.UTC), 10*time.Minute)
	mustCreate(t, m, adjacent)
}

func TestManager_UpdateConflictLeavesStateUnchanged(t *testing.T) {
	m := New()
	a := mustCreate(t, m, domain.NewTask("a", "").Schedule(base, time.Hour))
	b := mustCreate(t, m, domain.NewTask("b", "").Schedule(base.Add(2*time.Hour), time.Hour))

	moved := domain.NewTask("b2", "").Schedule(base.Add(30*time.Minute), time.Hour)
	err := m.Update(b, moved)
	require.ErrorIs(t, err, domain.ErrTimeIntersection)

	got, err := m.Peek(b)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)
	assert.Equal(t, []int{a, b}, itemIDs(m.Prioritized()))

	longer := domain.NewTask("a", "").Schedule(base, 2*time.Hour)
	require.NoError(t, m.Update(a, longer), "an item never conflicts with itself")
}

func TestManager_GetRecordsHistory(t *testing.T) {
	m := New()
	a := mustCreate(t, m, domain.NewTask("a", ""))
	b := mustCreate(t, m, domain.NewTask("b", ""))

	_, err := m.Get(a)
	require.NoError(t, err)
	_, err = m.Get(b)
	require.NoError(t, err)
	_, err = m.Get(a)
	require.NoError(t, err)

	assert.Equal(t, []int{b, a}, itemIDs(m.History()))

	_, err = m.Peek(b)
	require.NoError(t, err)
	assert.Equal(t, []int{b, a}, itemIDs(m.History()), "peek does not touch history")

	_, err = m.Get(99)
	assert.ErrorIs(t, err, domain.ErrNoSuchItem)
}

func TestManager_HistoryCapAndDeletion(t *testing.T) {
	m := New()
	var ids []int
	for range 12 {
		id := mustCreate(t, m, domain.NewTask("t", ""))
		ids = append(ids, id)
		_, err := m.Get(id)
		require.NoError(t, err)
	}
	assert.Equal(t, ids[2:], itemIDs(m.History()))

	// head, middle, tail
	require.NoError(t, m.Delete(ids[2]))
	require.NoError(t, m.Delete(ids[6]))
	require.NoError(t, m.Delete(ids[11]))

	want := []int{ids[3], ids[4], ids[5], ids[7], ids[8], ids[9], ids[10]}
	assert.Equal(t, want, itemIDs(m.History()))
}

func TestManager_HistoryReflectsUpdates(t *testing.T) {
	m := New()
	id := mustCreate(t, m, domain.NewTask("a", ""))
	_, err := m.Get(id)
	require.NoError(t, err)

	upd := domain.NewTask("a", "")
	upd.Status = domain.StatusDone
	require.NoError(t, m.Update(id, upd))

	hist := m.History()
	require.Len(t, hist, 1)
	assert.Equal(t, domain.StatusDone, hist[0].Status)
}

func TestManager_EpicAggregation(t *testing.T) {
	m := New()
	e := mustCreate(t, m, domain.NewEpic("E", ""))
	s1 := mustCreate(t, m, domain.NewSubtask("S1", "", 0))
	s2 := mustCreate(t, m, domain.NewSubtask("S2", "", 0).Schedule(base, 30*time.Minute))
	require.NoError(t, m.Link(s1, e))
	require.NoError(t, m.Link(s2, e))

	epic, err := m.Peek(e)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, epic.Status)
	assert.Equal(t, base, epic.Start)
	assert.Equal(t, 30*time.Minute, epic.Duration)
	end, ok := epic.EndTime()
	require.True(t, ok)
	assert.Equal(t, base.Add(30*time.Minute), end)
	assert.Equal(t, []int{s1, s2}, epic.Subtasks)

	done := domain.NewSubtask("S1", "", 0)
	done.Status = domain.StatusDone
	require.NoError(t, m.Update(s1, done))
	epic, _ = m.Peek(e)
	assert.Equal(t, domain.StatusInProgress, epic.Status)

	done2 := domain.NewSubtask("S2", "", 0).Schedule(base, 30*time.Minute)
	done2.Status = domain.StatusDone
	require.NoError(t, m.Update(s2, done2))
	epic, _ = m.Peek(e)
	assert.Equal(t, domain.StatusDone, epic.Status)

	require.NoError(t, m.Delete(s2))
	epic, _ = m.Peek(e)
	assert.Equal(t, []int{s1}, epic.Subtasks)
	assert.Equal(t, domain.StatusDone, epic.Status)
	assert.False(t, epic.HasStart())
	assert.Zero(t, epic.Duration)
}

func TestManager_CreateSubtaskLinksEpic(t *testing.T) {
	m := New()
	e := mustCreate(t, m, domain.NewEpic("E", ""))
	s := mustCreate(t, m, domain.NewSubtask("S", "", e).Schedule(base, time.Hour))

	epic, err := m.Peek(e)
	require.NoError(t, err)
	assert.Equal(t, []int{s}, epic.Subtasks)
	assert.Equal(t, time.Hour, epic.Duration)

	subs, err := m.EpicSubtasks(e)
	require.NoError(t, err)
	assert.Equal(t, []int{s}, itemIDs(subs))
}

func TestManager_UpdateEpicKeepsDerivedFields(t *testing.T) {
	m := New()
	e := mustCreate(t, m, domain.NewEpic("E", ""))
	mustCreate(t, m, domain.NewSubtask("S", "", e).Schedule(base, time.Hour))

	upd := domain.NewEpic("renamed", "new desc")
	upd.Status = domain.StatusDone
	upd.Duration = 5 * time.Hour
	require.NoError(t, m.Update(e, upd))

	epic, err := m.Peek(e)
	require.NoError(t, err)
	assert.Equal(t, "renamed", epic.Name)
	assert.Equal(t, "new desc", epic.Description)
	assert.Equal(t, domain.StatusNew, epic.Status)
	assert.Equal(t, time.Hour, epic.Duration)
	assert.Len(t, epic.Subtasks, 1)
}

func TestManager_UpdateKindMismatch(t *testing.T) {
	m := New()
	id := mustCreate(t, m, domain.NewTask("a", ""))

	err := m.Update(id, domain.NewEpic("a", ""))
	assert.ErrorIs(t, err, domain.ErrNoSuchItem)
	assert.ErrorIs(t, m.Update(99, domain.NewTask("x", "")), domain.ErrNoSuchItem)
	assert.ErrorIs(t, m.Update(id, nil), domain.ErrInvalidArgument)

	bad := domain.NewTask("a", "")
	bad.Status = "OPEN"
	assert.ErrorIs(t, m.Update(id, bad), domain.ErrInvalidStatus)
}

func TestManager_UpdateMovesSubtask(t *testing.T) {
	m := New()
	e1 := mustCreate(t, m, domain.NewEpic("E1", ""))
	e2 := mustCreate(t, m, domain.NewEpic("E2", ""))
	s := mustCreate(t, m, domain.NewSubtask("S", "", e1))

	keep := domain.NewSubtask("S", "", 0)
	keep.Status = domain.StatusInProgress
	require.NoError(t, m.Update(s, keep))
	sub, _ := m.Peek(s)
	assert.Equal(t, e1, sub.EpicID, "zero epic keeps the current owner")

	require.NoError(t, m.Update(s, domain.NewSubtask("S", "", e2)))
	first, _ := m.Peek(e1)
	second, _ := m.Peek(e2)
	assert.Empty(t, first.Subtasks)
	assert.Equal(t, domain.StatusNew, first.Status)
	assert.Equal(t, []int{s}, second.Subtasks)

	assert.ErrorIs(t, m.Update(s, domain.NewSubtask("S", "", 77)), domain.ErrNoSuchItem)
}

func TestManager_Link(t *testing.T) {
	m := New()
	e1 := mustCreate(t, m, domain.NewEpic("E1", ""))
	e2 := mustCreate(t, m, domain.NewEpic("E2", ""))
	task := mustCreate(t, m, domain.NewTask("T", ""))
	s := mustCreate(t, m, domain.NewSubtask("S", "", 0))

	require.NoError(t, m.Link(s, e1))
	require.NoError(t, m.Link(s, e1))
	first, _ := m.Peek(e1)
	assert.Equal(t, []int{s}, first.Subtasks, "linking twice keeps one entry")

	require.NoError(t, m.Link(s, e2))
	first, _ = m.Peek(e1)
	second, _ := m.Peek(e2)
	assert.Empty(t, first.Subtasks)
	assert.Equal(t, []int{s}, second.Subtasks)
	sub, _ := m.Peek(s)
	assert.Equal(t, e2, sub.EpicID)

	assert.ErrorIs(t, m.Link(task, e1), domain.ErrNoSuchItem)
	assert.ErrorIs(t, m.Link(s, task), domain.ErrNoSuchItem)
	assert.ErrorIs(t, m.Link(s, 99), domain.ErrNoSuchItem)
}

func TestManager_DeleteEpicCascades(t *testing.T) {
	m := New()
	e := mustCreate(t, m, domain.NewEpic("E", ""))
	s1 := mustCreate(t, m, domain.NewSubtask("S1", "", e))
	s2 := mustCreate(t, m, domain.NewSubtask("S2", "", e).Schedule(base, time.Hour))
	other := mustCreate(t, m, domain.NewSubtask("loose", "", 0))
	_, err := m.Get(s1)
	require.NoError(t, err)

	require.NoError(t, m.Delete(e))

	for _, id := range []int{e, s1, s2} {
		_, err := m.Peek(id)
		assert.ErrorIs(t, err, domain.ErrNoSuchItem, id)
	}
	_, err = m.Peek(other)
	assert.NoError(t, err)
	assert.Empty(t, m.History())
	assert.Equal(t, []int{other}, itemIDs(m.Prioritized()))

	assert.ErrorIs(t, m.Delete(e), domain.ErrNoSuchItem)
}

func TestManager_DeleteAll(t *testing.T) {
	m := New()
	e := mustCreate(t, m, domain.NewEpic("E", ""))
	mustCreate(t, m, domain.NewSubtask("S1", "", e).Schedule(base, time.Hour))
	mustCreate(t, m, domain.NewSubtask("S2", "", e))
	task := mustCreate(t, m, domain.NewTask("T", ""))

	require.NoError(t, m.DeleteAll(domain.KindSubtask))
	epic, _ := m.Peek(e)
	assert.Empty(t, epic.Subtasks)
	assert.Zero(t, epic.Duration)
	assert.False(t, epic.HasStart())

	s3 := mustCreate(t, m, domain.NewSubtask("S3", "", e))
	require.NoError(t, m.DeleteAll(domain.KindEpic))
	_, err := m.Peek(s3)
	assert.ErrorIs(t, err, domain.ErrNoSuchItem)

	epics, err := m.List(domain.KindEpic)
	require.NoError(t, err)
	assert.Empty(t, epics)

	tasks, err := m.List(domain.KindTask)
	require.NoError(t, err)
	assert.Equal(t, []int{task}, itemIDs(tasks))

	assert.ErrorIs(t, m.DeleteAll("STORY"), domain.ErrInvalidKind)
	_, err = m.List("STORY")
	assert.ErrorIs(t, err, domain.ErrInvalidKind)
}

func TestManager_Prioritized(t *testing.T) {
	m := New()
	unsched := mustCreate(t, m, domain.NewTask("u", ""))
	late := mustCreate(t, m, domain.NewTask("late", "").Schedule(base.Add(3*time.Hour), time.Hour))
	e := mustCreate(t, m, domain.NewEpic("E", ""))
	early := mustCreate(t, m, domain.NewSubtask("early", "", e).Schedule(base, time.Hour))

	assert.Equal(t, []int{early, late, unsched}, itemIDs(m.Prioritized()))

	moved := domain.NewTask("late", "").Schedule(base.Add(-2*time.Hour), time.Hour)
	require.NoError(t, m.Update(late, moved))
	assert.Equal(t, []int{late, early, unsched}, itemIDs(m.Prioritized()))

	for _, it := range m.Prioritized() {
		assert.NotEqual(t, domain.KindEpic, it.Kind)
	}
}

func TestManager_PrioritizedUnscheduledByCreation(t *testing.T) {
	store := testutil.NewMockStore(nil)
	m := New(WithStore(store))
	a := mustCreate(t, m, domain.NewTask("a", ""))
	b := mustCreate(t, m, domain.NewTask("b", "").Schedule(base, time.Hour))
	c := mustCreate(t, m, domain.NewTask("c", ""))
	assert.Equal(t, []int{b, a, c}, itemIDs(m.Prioritized()))

	require.NoError(t, m.Update(b, domain.NewTask("b", "")))
	assert.Equal(t, []int{a, b, c}, itemIDs(m.Prioritized()))

	restored, err := Open(WithStore(store))
	require.NoError(t, err)
	assert.Equal(t, itemIDs(m.Prioritized()), itemIDs(restored.Prioritized()))
}

func TestManager_ReturnsCopies(t *testing.T) {
	m := New()
	e := mustCreate(t, m, domain.NewEpic("E", ""))
	mustCreate(t, m, domain.NewSubtask("S", "", e))

	got, err := m.Get(e)
	require.NoError(t, err)
	got.Subtasks[0] = 1000
	got.Name = "x"

	again, _ := m.Peek(e)
	assert.Equal(t, "E", again.Name)
	assert.NotEqual(t, 1000, again.Subtasks[0])
}

func TestManager_ResetIDs(t *testing.T) {
	m := New()
	mustCreate(t, m, domain.NewTask("a", ""))
	mustCreate(t, m, domain.NewTask("b", ""))

	m.ResetIDs(1)
	assert.Equal(t, 3, m.NextID(), "never below the highest stored id")

	m.ResetIDs(50)
	assert.Equal(t, 50, m.NextID())
	assert.Equal(t, 50, mustCreate(t, m, domain.NewTask("c", "")))
}

func TestManager_StorageWriteFailure(t *testing.T) {
	store := testutil.NewMockStore(nil)
	store.SaveErr = errors.New("disk full")
	m := New(WithStore(store))

	id, err := m.Create(domain.NewTask("a", ""))
	require.ErrorIs(t, err, domain.ErrStorageWrite)
	assert.Equal(t, 1, id, "the item was created anyway")

	got, err := m.Get(id)
	assert.ErrorIs(t, err, domain.ErrStorageWrite)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.Name)

	assert.ErrorIs(t, m.Delete(id), domain.ErrStorageWrite)
	_, err = m.Peek(id)
	assert.ErrorIs(t, err, domain.ErrNoSuchItem)
}

func TestManager_WriteThrough(t *testing.T) {
	store := testutil.NewMockStore(nil)
	m := New(WithStore(store))

	e := mustCreate(t, m, domain.NewEpic("E", ""))
	s := mustCreate(t, m, domain.NewSubtask("S", "", 0))
	require.NoError(t, m.Link(s, e))
	_, err := m.Get(s)
	require.NoError(t, err)

	assert.Equal(t, 4, store.Saves)
	require.NotNil(t, store.Saved)
	assert.Equal(t, []int{e, s}, itemIDs(store.Saved.Items))
	assert.Equal(t, []int{s}, store.Saved.History)
	assert.Equal(t, e, store.Saved.Items[1].EpicID)
}
