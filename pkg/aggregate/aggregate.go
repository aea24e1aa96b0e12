// Package aggregate computes process views over a validated event log.
//
// Every function is pure: the log is read, never modified, and repeated
// calls return identical results. A nil or empty log yields empty views.
package aggregate

import (
	"encoding/json"
	"sort"

	"github.com/logflow/pmdash/internal/model"
)

// ActivityCount holds an activity frequency.
type ActivityCount struct {
	Activity string  `json:"activity"`
	Count    int64   `json:"count"`
	Percent  float64 `json:"percent"`
}

// Transition is a directly-follows edge between two activities of the
// same case.
type Transition struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int64  `json:"count"`
}

// Average is a mean that may be undefined.
type Average struct {
	Value float64
	Valid bool
}

// MarshalJSON encodes an undefined average as null.
func (a Average) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(a.Value)
}

// UnmarshalJSON reads a number or null.
func (a *Average) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = Average{}
		return nil
	}
	if err := json.Unmarshal(data, &a.Value); err != nil {
		return err
	}
	a.Valid = true
	return nil
}

// CaseDurations sums event durations per case, in minutes.
func CaseDurations(log *model.Log) map[string]float64 {
	out := make(map[string]float64)
	for _, e := range log.Events() {
		out[e.CaseID] += e.DurationMinutes
	}
	return out
}

// ActivityFrequencies counts events per activity, most frequent first.
// Equal counts are ordered by activity name.
func ActivityFrequencies(log *model.Log) []ActivityCount {
	counts := make(map[string]int64)
	events := log.Events()
	for _, e := range events {
		counts[e.Activity]++
	}
	return rank(counts, int64(len(events)))
}

// AverageCompletionTime is the mean of the per-case durations. It is
// undefined for an empty map.
func AverageCompletionTime(durations map[string]float64) Average {
	if len(durations) == 0 {
		return Average{}
	}
	// Sum in key order so the result does not depend on map iteration.
	keys := make([]string, 0, len(durations))
	for k := range durations {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sum float64
	for _, k := range keys {
		sum += durations[k]
	}
	return Average{Value: sum / float64(len(durations)), Valid: true}
}

// Transitions returns the directly-follows edges of the log with their
// frequencies. Within a case, events are ordered by Start time and then
// by input row. Edges are sorted by count descending, then From, then To.
func Transitions(log *model.Log) []Transition {
	type pair struct{ from, to string }
	counts := make(map[pair]int64)

	for _, tr := range traces(log) {
		for i := 0; i+1 < len(tr.events); i++ {
			counts[pair{tr.events[i].Activity, tr.events[i+1].Activity}]++
		}
	}

	out := make([]Transition, 0, len(counts))
	for p, c := range counts {
		out = append(out, Transition{From: p.from, To: p.to, Count: c})
	}
	sortTransitions(out)
	return out
}

func sortTransitions(ts []Transition) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Count != ts[j].Count {
			return ts[i].Count > ts[j].Count
		}
		if ts[i].From != ts[j].From {
			return ts[i].From < ts[j].From
		}
		return ts[i].To < ts[j].To
	})
}

// trace is the time-ordered event sequence of one case.
type trace struct {
	caseID string
	events []model.Event
}

// traces partitions the log by case in first-seen case order and sorts
// each case by Start, breaking ties by input row.
func traces(log *model.Log) []trace {
	index := make(map[string]int)
	var out []trace
	for _, e := range log.Events() {
		i, ok := index[e.CaseID]
		if !ok {
			i = len(out)
			index[e.CaseID] = i
			out = append(out, trace{caseID: e.CaseID})
		}
		out[i].events = append(out[i].events, e)
	}

	for _, tr := range out {
		evs := tr.events
		sort.SliceStable(evs, func(i, j int) bool {
			if !evs[i].Start.Equal(evs[j].Start) {
				return evs[i].Start.Before(evs[j].Start)
			}
			return evs[i].Row < evs[j].Row
		})
	}
	return out
}

// rank turns counts into a sorted frequency list. total is the
// denominator for Percent.
func rank(counts map[string]int64, total int64) []ActivityCount {
	out := make([]ActivityCount, 0, len(counts))
	for name, c := range counts {
		ac := ActivityCount{Activity: name, Count: c}
		if total > 0 {
			ac.Percent = float64(c) * 100 / float64(total)
		}
		out = append(out, ac)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Activity < out[j].Activity
	})
	return out
}
