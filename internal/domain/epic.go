package domain

import "time"

// Recompute derives the epic's status, start, duration and end from its
// current subtasks. It is a no-op for non-epic items.
//
//   - status: NEW if there are no subtasks or all are NEW, DONE if all are DONE,
//     IN_PROGRESS otherwise.
//   - start: earliest subtask start (unset if no subtask has one).
//   - duration: sum of subtask durations.
//   - end: latest subtask Start+Duration among subtasks with a start.
func (i *Item) Recompute(subtasks []*Item) {
	if i.Kind != KindEpic {
		return
	}
	i.Status = EpicStatus(subtasks)

	var (
		start time.Time
		end   time.Time
		total time.Duration
	)
	for _, s := range subtasks {
		total += s.Duration
		if !s.HasStart() {
			continue
		}
		if start.IsZero() || s.Start.Before(start) {
			start = s.Start
		}
		if e := s.Start.Add(s.Duration); end.IsZero() || e.After(end) {
			end = e
		}
	}
	i.Start = start
	i.Duration = total
	i.End = end
}

// EpicStatus applies the three-way status rule to a set of subtasks.
func EpicStatus(subtasks []*Item) Status {
	if len(subtasks) == 0 {
		return StatusNew
	}
	allNew, allDone := true, true
	for _, s := range subtasks {
		if s.Status != StatusNew {
			allNew = false
		}
		if s.Status != StatusDone {
			allDone = false
		}
	}
	switch {
	case allNew:
		return StatusNew
	case allDone:
		return StatusDone
	default:
		return StatusInProgress
	}
}
