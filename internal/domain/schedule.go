package domain

// Overlaps reports whether two scheduled items occupy intersecting
// half-open intervals [Start, Start+Duration). Touching endpoints do not
// overlap, and an item without a start time never overlaps anything.
func Overlaps(a, b *Item) bool {
	if !a.HasStart() || !b.HasStart() {
		return false
	}
	aEnd := a.Start.Add(a.Duration)
	bEnd := b.Start.Add(b.Duration)
	return a.Start.Before(bEnd) && b.Start.Before(aEnd)
}

// FindConflict returns the first item in others whose schedule overlaps
// candidate, skipping candidate's own ID and non-schedulable kinds.
// It returns nil when candidate is an epic, has no start time or nothing
// overlaps.
func FindConflict(candidate *Item, others []*Item) *Item {
	if !candidate.Kind.Schedulable() || !candidate.HasStart() {
		return nil
	}
	for _, o := range others {
		if o.ID == candidate.ID && candidate.ID != 0 {
			continue
		}
		if !o.Kind.Schedulable() {
			continue
		}
		if Overlaps(candidate, o) {
			return o
		}
	}
	return nil
}
