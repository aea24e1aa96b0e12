// Package model defines core data structures for pmdash.
package model

import "time"

// Event represents a single activity execution within a case.
type Event struct {
	// CaseID identifies the process instance (trace).
	CaseID string

	// Activity is the event name/activity label.
	Activity string

	// Start and End bound the activity execution.
	Start time.Time
	End   time.Time

	// DurationMinutes is End-Start in minutes. Negative when the
	// timestamps are inconsistent.
	DurationMinutes float64

	// Row is the 1-based data row the event was read from (header excluded).
	Row int
}

// NewEvent builds an event and derives its duration.
func NewEvent(caseID, activity string, start, end time.Time, row int) Event {
	return Event{
		CaseID:          caseID,
		Activity:        activity,
		Start:           start,
		End:             end,
		DurationMinutes: end.Sub(start).Minutes(),
		Row:             row,
	}
}

// Log is a validated, immutable event log in input order.
// A nil *Log behaves like an empty log.
type Log struct {
	events []Event
}

// NewLog copies events into a new log.
func NewLog(events []Event) *Log {
	cp := make([]Event, len(events))
	copy(cp, events)
	return &Log{events: cp}
}

// Len returns the number of events.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	return len(l.events)
}

// At returns the i-th event in input order.
func (l *Log) At(i int) Event {
	return l.events[i]
}

// Events returns a copy of all events.
func (l *Log) Events() []Event {
	if l == nil {
		return nil
	}
	cp := make([]Event, len(l.events))
	copy(cp, l.events)
	return cp
}

// Head returns a copy of at most n leading events.
func (l *Log) Head(n int) []Event {
	if n > l.Len() {
		n = l.Len()
	}
	if n <= 0 {
		return nil
	}
	cp := make([]Event, n)
	copy(cp, l.events[:n])
	return cp
}

// CaseIDs returns the distinct case ids in first-seen order.
func (l *Log) CaseIDs() []string {
	return l.distinct(func(e *Event) string { return e.CaseID })
}

// Activities returns the distinct activity names in first-seen order.
func (l *Log) Activities() []string {
	return l.distinct(func(e *Event) string { return e.Activity })
}

// TimeRange returns the earliest start and latest end in the log.
// Both are zero for an empty log.
func (l *Log) TimeRange() (start, end time.Time) {
	if l == nil {
		return start, end
	}
	for i := range l.events {
		e := &l.events[i]
		if i == 0 || e.Start.Before(start) {
			start = e.Start
		}
		if i == 0 || e.End.After(end) {
			end = e.End
		}
	}
	return start, end
}

func (l *Log) distinct(key func(*Event) string) []string {
	if l == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for i := range l.events {
		k := key(&l.events[i])
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
