package domain

// Snapshot is the full persisted state of a manager.
// Fields are ordered to minimize memory padding.
type Snapshot struct {
	Items   []*Item // All items of every kind, ascending by ID
	History []int   // History IDs, oldest first
}

// StateStore persists and restores the full manager state.
type StateStore interface {
	// Save overwrites the stored state with snap.
	Save(snap *Snapshot) error

	// Load returns the stored state. A store that was never written returns
	// an empty snapshot, not an error. Malformed state fails with ErrStorageCorrupt.
	Load() (*Snapshot, error)
}

// ItemsOfKind returns the items of the given kind, preserving order.
func (s *Snapshot) ItemsOfKind(kind Kind) []*Item {
	var out []*Item
	for _, it := range s.Items {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out
}
