// Package testutil provides shared test utilities and mock implementations.
package testutil

import (
	"context"
	"sync"

	"github.com/runoshun/tracker/internal/domain"
)

// MockStore is a test double for domain.StateStore.
// Saved snapshots are deep copies, so later changes to the caller's items
// do not leak into them.
// Fields are ordered to minimize memory padding.
type MockStore struct {
	SaveErr error
	LoadErr error
	Saved   *domain.Snapshot
	Saves   int
}

// NewMockStore creates a MockStore holding snap, which may be nil.
func NewMockStore(snap *domain.Snapshot) *MockStore {
	return &MockStore{Saved: snap}
}

// Save records a copy of the snapshot unless SaveErr is set.
func (m *MockStore) Save(snap *domain.Snapshot) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Saves++
	m.Saved = CloneSnapshot(snap)
	return nil
}

// Load returns a copy of the last saved snapshot, or an empty one.
func (m *MockStore) Load() (*domain.Snapshot, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if m.Saved == nil {
		return &domain.Snapshot{}, nil
	}
	return CloneSnapshot(m.Saved), nil
}

// Ensure MockStore implements domain.StateStore.
var _ domain.StateStore = (*MockStore)(nil)

// CloneSnapshot returns a deep copy of snap.
func CloneSnapshot(snap *domain.Snapshot) *domain.Snapshot {
	out := &domain.Snapshot{
		History: append([]int(nil), snap.History...),
	}
	for _, it := range snap.Items {
		out.Items = append(out.Items, it.Clone())
	}
	return out
}

// MockKV is an in-memory key-value service.
// Fields are ordered to minimize memory padding.
type MockKV struct {
	Data       map[string][]byte
	KeyPutErrs map[string]error // Put failures for single keys
	PutErr     error
	GetErr     error
	Puts       []string
	mu         sync.Mutex
}

// NewMockKV creates an empty MockKV.
func NewMockKV() *MockKV {
	return &MockKV{Data: make(map[string][]byte)}
}

// Put stores value under key.
func (m *MockKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	if err := m.KeyPutErrs[key]; err != nil {
		return err
	}
	m.Puts = append(m.Puts, key)
	m.Data[key] = append([]byte(nil), value...)
	return nil
}

// Get returns the value under key, or nil if it was never written.
func (m *MockKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	v, ok := m.Data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}
