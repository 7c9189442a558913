// Package kvstore provides a StateStore backed by a remote key-value service.
//
// Each kind's items are stored as a JSON array under a fixed key, and the
// history as a JSON array of IDs. Writes blindly overwrite the previous value;
// concurrent writers sharing one service race and the last write wins.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/runoshun/tracker/internal/domain"
)

// Fixed keys in the key-value service.
const (
	KeyTasks    = "TASKS"
	KeySubtasks = "SUBTASKS"
	KeyEpics    = "EPICS"
	KeyHistory  = "HISTORY"
)

// kindKeys maps each kind to its key, in write order.
var kindKeys = []struct {
	kind domain.Kind
	key  string
}{
	{domain.KindTask, KeyTasks},
	{domain.KindEpic, KeyEpics},
	{domain.KindSubtask, KeySubtasks},
}

// KV is the key-value boundary consumed by the store.
type KV interface {
	// Put stores value under key.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value under key, or nil if it was never written.
	Get(ctx context.Context, key string) ([]byte, error)
}

// Cipher transforms values before they leave the process.
type Cipher interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// Store implements domain.StateStore on top of a KV.
type Store struct {
	kv      KV
	cipher  Cipher
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithCipher encrypts every stored value.
func WithCipher(c Cipher) Option {
	return func(s *Store) { s.cipher = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimeout bounds a whole Save or Load.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// New creates a store writing through kv.
func New(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		logger:  slog.New(slog.DiscardHandler),
		timeout: 4 * domain.DefaultKVTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save writes every key. All keys are attempted even if one fails; the
// returned error joins every failure.
func (s *Store) Save(snap *domain.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var errs []error
	for _, kk := range kindKeys {
		items := snap.ItemsOfKind(kk.kind)
		if items == nil {
			items = []*domain.Item{}
		}
		if err := s.put(ctx, kk.key, items); err != nil {
			errs = append(errs, err)
		}
	}
	history := snap.History
	if history == nil {
		history = []int{}
	}
	if err := s.put(ctx, KeyHistory, history); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Load reads every key. Keys that were never written count as empty.
// Values that cannot be decoded fail with domain.ErrStorageCorrupt.
func (s *Store) Load() (*domain.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	snap := &domain.Snapshot{}
	for _, kk := range kindKeys {
		var items []*domain.Item
		if err := s.get(ctx, kk.key, &items); err != nil {
			return nil, err
		}
		for _, it := range items {
			if it == nil {
				return nil, fmt.Errorf("%w: %s: null item", domain.ErrStorageCorrupt, kk.key)
			}
			if it.Kind != kk.kind {
				return nil, fmt.Errorf("%w: %s: item %d has type %q", domain.ErrStorageCorrupt, kk.key, it.ID, it.Kind)
			}
		}
		snap.Items = append(snap.Items, items...)
	}
	slices.SortFunc(snap.Items, func(a, b *domain.Item) int { return a.ID - b.ID })

	if err := s.get(ctx, KeyHistory, &snap.History); err != nil {
		return nil, err
	}
	s.logger.Debug("state loaded", "category", "kv", "items", len(snap.Items), "history", len(snap.History))
	return snap, nil
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if s.cipher != nil {
		if data, err = s.cipher.Seal(data); err != nil {
			return fmt.Errorf("encrypt %s: %w", key, err)
		}
	}
	return s.kv.Put(ctx, key, data)
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if s.cipher != nil {
		if data, err = s.cipher.Open(data); err != nil {
			return fmt.Errorf("%w: decrypt %s: %w", domain.ErrStorageCorrupt, key, err)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %w", domain.ErrStorageCorrupt, key, err)
	}
	return nil
}

// Ensure Store implements StateStore.
var _ domain.StateStore = (*Store)(nil)
