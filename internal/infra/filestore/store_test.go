package filestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/runoshun/tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2023, 1, 1, 11, 50, 0, 0, time.UTC)

func sampleSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Items: []*domain.Item{
			{ID: 1, Kind: domain.KindTask, Name: "Write docs", Status: domain.StatusNew, Start: start, Duration: 30 * time.Minute},
			{ID: 2, Kind: domain.KindEpic, Name: "Release", Status: domain.StatusInProgress, Subtasks: []int{3}, Start: start, Duration: time.Hour},
			{ID: 3, Kind: domain.KindSubtask, Name: "Tag, then push", Description: "line one\nline \"two\"", Status: domain.StatusDone, EpicID: 2},
			{ID: 4, Kind: domain.KindSubtask, Name: "Loose", Status: domain.StatusNew},
		},
		History: []int{3, 1},
	}
}

func TestEncode(t *testing.T) {
	data, err := Encode(sampleSnapshot())
	require.NoError(t, err)

	want := strings.Join([]string{
		"id,type,name,status,description,duration,startTime,epic",
		"1,TASK,Write docs,NEW,,PT30M,01-01-2023 11:50,",
		"2,EPIC,Release,IN_PROGRESS,,,,",
		`3,SUBTASK,"Tag, then push",DONE,"line one` + "\n" + `line ""two""",,,2`,
		"4,SUBTASK,Loose,NEW,,,,",
		"",
		"3,1",
		"",
	}, "\n")
	assert.Equal(t, want, string(data))
}

func TestDecode_RoundTrip(t *testing.T) {
	data, err := Encode(sampleSnapshot())
	require.NoError(t, err)

	snap, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, snap.Items, 4)
	assert.Equal(t, []int{3, 1}, snap.History)

	task := snap.Items[0]
	assert.Equal(t, domain.KindTask, task.Kind)
	assert.True(t, task.Start.Equal(start))
	assert.Equal(t, 30*time.Minute, task.Duration)

	epic := snap.Items[1]
	assert.Equal(t, domain.KindEpic, epic.Kind)
	assert.False(t, epic.HasStart(), "epic schedule is derived on restore")
	assert.Empty(t, epic.Subtasks)

	sub := snap.Items[2]
	assert.Equal(t, "Tag, then push", sub.Name)
	assert.Equal(t, "line one\nline \"two\"", sub.Description)
	assert.Equal(t, domain.StatusDone, sub.Status)
	assert.Equal(t, 2, sub.EpicID)

	assert.Zero(t, snap.Items[3].EpicID)
}

func TestDecode_Empty(t *testing.T) {
	for _, content := range []string{"", "\n\n", strings.Join(Header, ",") + "\n"} {
		snap, err := Decode([]byte(content))
		require.NoError(t, err)
		assert.Empty(t, snap.Items)
		assert.Empty(t, snap.History)
	}

	snap, err := Decode([]byte(strings.Join(Header, ",") + "\n1,TASK,a,NEW,,,,\n\n\n"))
	require.NoError(t, err)
	assert.Len(t, snap.Items, 1)
	assert.Empty(t, snap.History)
}

func TestDecode_SingleHistoryEntry(t *testing.T) {
	content := strings.Join(Header, ",") + "\n1,TASK,a,NEW,,,,\n\n1\n"
	snap, err := Decode([]byte(content))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, snap.History)
}

func TestDecode_Corrupt(t *testing.T) {
	header := strings.Join(Header, ",") + "\n"
	tests := map[string]string{
		"wrong header":        "id,kind,name\n",
		"bad id":              header + "x,TASK,a,NEW,,,,\n",
		"bad status":          header + "1,TASK,a,OPEN,,,,\n",
		"bad duration":        header + "1,TASK,a,NEW,,30 minutes,,\n",
		"bad start":           header + "1,TASK,a,NEW,,,2023-01-01,\n",
		"bad epic":            header + "1,SUBTASK,a,NEW,,,,epic\n",
		"unknown type":        header + "1,STORY,a,NEW,,,,\n",
		"bad history":         header + "1,TASK,a,NEW,,,,\n\n1,two\n",
		"data after history":  header + "1,TASK,a,NEW,,,,\n\n1\n2,TASK,b,NEW,,,,\n",
		"unterminated quotes": header + "1,TASK,\"a,NEW,,,,\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(content))
			assert.ErrorIs(t, err, domain.ErrStorageCorrupt)
		})
	}
}

func TestStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tasks.csv")
	store := New(path, nil)
	assert.Equal(t, path, store.Path())

	require.NoError(t, store.Save(sampleSnapshot()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	snap, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, snap.Items, 4)
	assert.Equal(t, []int{3, 1}, snap.History)

	require.NoError(t, store.Save(&domain.Snapshot{}))
	snap, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
}

func TestStore_LoadMissingFile(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "absent.csv"), nil)
	snap, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
}

func TestStore_LoadUnreadableIsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.csv")
	require.NoError(t, os.Mkdir(path, 0o750))

	snap, err := New(path, nil).Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
}

func TestStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.csv")
	require.NoError(t, os.WriteFile(path, []byte("garbage\n"), 0o600))

	_, err := New(path, nil).Load()
	assert.ErrorIs(t, err, domain.ErrStorageCorrupt)
}

func TestStore_SaveFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.csv")
	require.NoError(t, os.Mkdir(path, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), nil, 0o600))

	err := New(path, nil).Save(sampleSnapshot())
	assert.Error(t, err)
}

func TestWriteSynced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.tmp")
	require.NoError(t, os.WriteFile(path, []byte("a much longer previous content"), 0o644))

	require.NoError(t, writeSynced(path, []byte("new")))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(content), "previous content is truncated")

	assert.Error(t, writeSynced(filepath.Join(path, "child"), nil))
}
