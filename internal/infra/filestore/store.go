// Package filestore provides a line-oriented file implementation of StateStore.
//
// File layout (UTF-8, comma-separated, RFC 4180 quoting):
//
//	id,type,name,status,description,duration,startTime,epic
//	1,TASK,Write docs,NEW,,PT30M,01-01-2023 11:50,
//	2,EPIC,Release,IN_PROGRESS,,,,
//	3,SUBTASK,Tag,DONE,,,,2
//
//	3,1
//
// The last line lists the history IDs, oldest first. The header is part of
// the compatibility surface and must not change without a format version bump.
package filestore

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/runoshun/tracker/internal/domain"
)

// Header is the first line of every state file.
var Header = []string{"id", "type", "name", "status", "description", "duration", "startTime", "epic"}

// Store implements domain.StateStore using a single file.
type Store struct {
	logger   *slog.Logger
	path     string
	lockPath string
}

// New creates a new Store for the given file path.
// The file does not need to exist; it will be created on first write.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		logger:   logger,
		path:     path,
		lockPath: path + ".lock",
	}
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Save overwrites the file with snap.
func (s *Store) Save(snap *domain.Snapshot) error {
	content, err := Encode(snap)
	if err != nil {
		return err
	}

	lock, err := s.acquireLock(syscall.LOCK_EX)
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)

	return s.write(content)
}

// Load reads the file. A missing or unreadable file yields an empty
// snapshot; a malformed file fails with domain.ErrStorageCorrupt.
func (s *Store) Load() (*domain.Snapshot, error) {
	lock, err := s.acquireLock(syscall.LOCK_SH)
	if err != nil {
		s.logger.Warn("state file not locked, starting empty", "path", s.path, "error", err)
		return &domain.Snapshot{}, nil
	}
	defer s.releaseLock(lock)

	content, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("state file unreadable, starting empty", "path", s.path, "error", err)
		}
		return &domain.Snapshot{}, nil
	}
	return Decode(content)
}

// Encode renders snap in the file format.
func Encode(snap *domain.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, it := range snap.Items {
		if err := w.Write(encodeItem(it)); err != nil {
			return nil, fmt.Errorf("write item %d: %w", it.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush items: %w", err)
	}

	buf.WriteByte('\n')
	ids := make([]string, len(snap.History))
	for i, id := range snap.History {
		ids[i] = strconv.Itoa(id)
	}
	buf.WriteString(strings.Join(ids, ","))
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func encodeItem(it *domain.Item) []string {
	var duration, start, epic string
	switch it.Kind {
	case domain.KindTask, domain.KindSubtask:
		if it.HasStart() || it.Duration != 0 {
			duration = domain.FormatISODuration(it.Duration)
		}
		start = domain.FormatStart(it.Start)
		if it.Kind == domain.KindSubtask && it.EpicID != 0 {
			epic = strconv.Itoa(it.EpicID)
		}
	case domain.KindEpic:
		// Schedule is derived from subtasks on load.
	}
	return []string{
		strconv.Itoa(it.ID),
		string(it.Kind),
		it.Name,
		string(it.Status),
		it.Description,
		duration,
		start,
		epic,
	}
}

// Decode parses the file format. Empty content yields an empty snapshot.
func Decode(content []byte) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}
	if len(bytes.TrimSpace(content)) == 0 {
		return snap, nil
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, corrupt("read header", err)
	}
	if strings.Join(header, ",") != strings.Join(Header, ",") {
		return nil, corrupt("unexpected header", errors.New(strings.Join(header, ",")))
	}

	historySeen := false
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, corrupt("read record", err)
		}
		if historySeen {
			return nil, corrupt("data after history line", nil)
		}
		if isItemRecord(rec) {
			it, err := decodeItem(rec)
			if err != nil {
				return nil, err
			}
			snap.Items = append(snap.Items, it)
			continue
		}
		ids, err := decodeHistory(rec)
		if err != nil {
			return nil, err
		}
		snap.History = ids
		historySeen = true
	}
	return snap, nil
}

func isItemRecord(rec []string) bool {
	if len(rec) != len(Header) {
		return false
	}
	_, err := domain.ParseKind(rec[1])
	return err == nil
}

func decodeItem(rec []string) (*domain.Item, error) {
	id, err := strconv.Atoi(rec[0])
	if err != nil || id <= 0 {
		return nil, corrupt("item id "+strconv.Quote(rec[0]), err)
	}
	kind, err := domain.ParseKind(rec[1])
	if err != nil {
		return nil, corrupt(fmt.Sprintf("item %d type", id), err)
	}
	status, err := domain.ParseStatus(rec[3])
	if err != nil {
		return nil, corrupt(fmt.Sprintf("item %d status", id), err)
	}
	duration, err := domain.ParseISODuration(rec[5])
	if err != nil {
		return nil, corrupt(fmt.Sprintf("item %d duration", id), err)
	}
	start, err := domain.ParseStart(rec[6])
	if err != nil {
		return nil, corrupt(fmt.Sprintf("item %d start", id), err)
	}
	epicID := 0
	if rec[7] != "" {
		epicID, err = strconv.Atoi(rec[7])
		if err != nil || epicID <= 0 {
			return nil, corrupt(fmt.Sprintf("item %d epic", id), err)
		}
	}

	it := &domain.Item{
		ID:          id,
		Kind:        kind,
		Name:        rec[2],
		Status:      status,
		Description: rec[4],
	}
	switch kind {
	case domain.KindSubtask:
		it.EpicID = epicID
		it.Schedule(start, duration)
	case domain.KindTask:
		it.Schedule(start, duration)
	case domain.KindEpic:
	}
	return it, nil
}

func decodeHistory(rec []string) ([]int, error) {
	ids := make([]int, 0, len(rec))
	for _, field := range rec {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.Atoi(field)
		if err != nil {
			return nil, corrupt("history id "+strconv.Quote(field), err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func corrupt(what string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", domain.ErrStorageCorrupt, what)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStorageCorrupt, what, cause)
}

func (s *Store) acquireLock(lockType int) (*os.File, error) {
	// Ensure lock file directory exists
	dir := filepath.Dir(s.lockPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lock, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(lock.Fd()), lockType); err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	return lock, nil
}

func (s *Store) releaseLock(lock *os.File) {
	_ = syscall.Flock(int(lock.Fd()), syscall.LOCK_UN)
	_ = lock.Close()
}

func (s *Store) write(content []byte) error {
	// Write to temp file first, then rename for atomicity
	tmpPath := s.path + ".tmp"
	if err := writeSynced(tmpPath, content); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath) // Clean up
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// writeSynced writes content to path with mode 0600 and flushes it to disk.
func writeSynced(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Ensure Store implements StateStore.
var _ domain.StateStore = (*Store)(nil)
