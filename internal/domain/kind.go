package domain

import "strings"

// Kind discriminates the three item variants.
type Kind string

const (
	KindTask    Kind = "TASK"    // Independent schedulable item
	KindEpic    Kind = "EPIC"    // Container whose status and schedule derive from subtasks
	KindSubtask Kind = "SUBTASK" // Schedulable item owned by an epic
)

// AllKinds returns every kind in storage order.
func AllKinds() []Kind {
	return []Kind{KindTask, KindEpic, KindSubtask}
}

// ParseKind parses a kind name case-insensitively ("task", "TASK").
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", ErrInvalidKind
	}
	return k, nil
}

// IsValid returns true if the kind is one of the known variants.
func (k Kind) IsValid() bool {
	switch k {
	case KindTask, KindEpic, KindSubtask:
		return true
	default:
		return false
	}
}

// Schedulable reports whether items of this kind carry their own schedule.
// Epics never do: their schedule is derived.
func (k Kind) Schedulable() bool {
	switch k {
	case KindTask, KindSubtask:
		return true
	case KindEpic:
		return false
	default:
		return false
	}
}

// Slug returns the lower-case name used in URLs and CLI arguments.
func (k Kind) Slug() string {
	return strings.ToLower(string(k))
}
