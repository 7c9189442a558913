package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/runoshun/tracker/internal/domain"
	"github.com/runoshun/tracker/internal/manager"
	"github.com/runoshun/tracker/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epicWithSubtasks = `---
kind: epic
name: Release 1.0
---
Ship it.

---
kind: subtask
name: Write changelog
epic: 1
start: 02-01-2025 12:00
duration: 30m
---

---
kind: subtask
name: Tag release
epic: 1
status: done
---
`

func TestImportItems_Execute_SingleTask(t *testing.T) {
	core := manager.New()
	uc := NewImportItems(core, nil)

	out, err := uc.Execute(context.Background(), ImportItemsInput{Content: `---
name: Test Task
duration: PT1H
start: 01-01-2025 09:00
---
Task description here.`})

	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Nil(t, out.StorageErr)
	assert.Equal(t, 1, out.Items[0].ID)

	stored, err := core.Peek(1)
	require.NoError(t, err)
	assert.Equal(t, domain.KindTask, stored.Kind)
	assert.Equal(t, "Test Task", stored.Name)
	assert.Equal(t, "Task description here.", stored.Description)
	assert.Equal(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), stored.Start)
	assert.Equal(t, time.Hour, stored.Duration)
}

func TestImportItems_Execute_EpicWithRelativeSubtasks(t *testing.T) {
	core := manager.New()
	_, err := core.Create(domain.NewTask("existing", ""))
	require.NoError(t, err)
	uc := NewImportItems(core, nil)

	out, err := uc.Execute(context.Background(), ImportItemsInput{Content: epicWithSubtasks})
	require.NoError(t, err)
	require.Len(t, out.Items, 3)

	epicID := out.Items[0].ID
	assert.Equal(t, 2, epicID)
	assert.Equal(t, epicID, out.Items[1].EpicID)
	assert.True(t, out.Items[1].Relative)

	subs, err := core.EpicSubtasks(epicID)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	epic, err := core.Peek(epicID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, epic.Status)
	assert.Equal(t, 30*time.Minute, epic.Duration)
}

func TestImportItems_Execute_AbsoluteEpic(t *testing.T) {
	core := manager.New()
	epicID, err := core.Create(domain.NewEpic("existing epic", ""))
	require.NoError(t, err)
	uc := NewImportItems(core, nil)

	out, err := uc.Execute(context.Background(), ImportItemsInput{Content: `---
kind: subtask
name: child
epic: "#1"
---
`})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.False(t, out.Items[0].Relative)

	subs, err := core.EpicSubtasks(epicID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "child", subs[0].Name)
}

func TestImportItems_Execute_AbsoluteRefToTask(t *testing.T) {
	core := manager.New()
	_, err := core.Create(domain.NewTask("not an epic", ""))
	require.NoError(t, err)
	uc := NewImportItems(core, nil)

	_, err = uc.Execute(context.Background(), ImportItemsInput{Content: `---
kind: subtask
name: child
epic: "#1"
---
`})
	assert.ErrorIs(t, err, domain.ErrNoSuchItem)
}

func TestImportItems_Execute_RelativeRefToTask(t *testing.T) {
	core := manager.New()
	uc := NewImportItems(core, nil)

	_, err := uc.Execute(context.Background(), ImportItemsInput{Content: `---
name: plain task
---

---
kind: subtask
name: child
epic: 1
---
`})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestImportItems_Execute_StopsAtConflict(t *testing.T) {
	core := manager.New()
	uc := NewImportItems(core, nil)

	out, err := uc.Execute(context.Background(), ImportItemsInput{Content: `---
name: first
start: 01-01-2025 09:00
duration: 1h
---

---
name: second
start: 01-01-2025 09:30
duration: 1h
---

---
name: third
---
`})
	require.ErrorIs(t, err, domain.ErrTimeIntersection)
	require.NotNil(t, out)
	require.Len(t, out.Items, 1)

	tasks, err := core.List(domain.KindTask)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestImportItems_Execute_DryRun(t *testing.T) {
	core := manager.New()
	uc := NewImportItems(core, nil)

	out, err := uc.Execute(context.Background(), ImportItemsInput{Content: epicWithSubtasks, DryRun: true})
	require.NoError(t, err)
	require.Len(t, out.Items, 3)
	assert.Equal(t, 1, out.Items[1].EpicID)
	assert.True(t, out.Items[1].Relative)
	assert.Equal(t, domain.StatusDone, out.Items[2].Item.Status)

	for _, kind := range domain.AllKinds() {
		items, err := core.List(kind)
		require.NoError(t, err)
		assert.Empty(t, items)
	}
}

func TestImportItems_Execute_StorageErrorKeepsGoing(t *testing.T) {
	store := testutil.NewMockStore(nil)
	store.SaveErr = errors.New("disk full")
	core := manager.New(manager.WithStore(store))
	uc := NewImportItems(core, nil)

	out, err := uc.Execute(context.Background(), ImportItemsInput{Content: epicWithSubtasks})
	require.NoError(t, err)
	assert.Len(t, out.Items, 3)
	assert.ErrorIs(t, out.StorageErr, domain.ErrStorageWrite)
}

func TestImportItems_Execute_EmptyContent(t *testing.T) {
	uc := NewImportItems(manager.New(), nil)
	_, err := uc.Execute(context.Background(), ImportItemsInput{Content: "  \n"})
	assert.Error(t, err)
}
