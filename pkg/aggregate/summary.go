package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/logflow/pmdash/internal/model"
)

// VariantSeparator joins the activities of a variant path.
const VariantSeparator = " -> "

// Summary describes the size and time span of a log.
type Summary struct {
	Events     int       `json:"events"`
	Cases      int       `json:"cases"`
	Activities int       `json:"activities"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`

	MinEventsPerCase int     `json:"min_events_per_case"`
	MaxEventsPerCase int     `json:"max_events_per_case"`
	AvgEventsPerCase float64 `json:"avg_events_per_case"`
}

// Duration is the span between the earliest start and the latest end.
func (s Summary) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Variant is a distinct activity sequence and the number of cases that
// follow it.
type Variant struct {
	Path    []string `json:"path"`
	Count   int64    `json:"count"`
	Percent float64  `json:"percent"`
}

func (v Variant) String() string {
	return strings.Join(v.Path, VariantSeparator)
}

// Summarize computes log-level statistics.
func Summarize(log *model.Log) Summary {
	s := Summary{
		Events:     log.Len(),
		Activities: len(log.Activities()),
	}
	s.Start, s.End = log.TimeRange()

	perCase := make(map[string]int)
	for _, e := range log.Events() {
		perCase[e.CaseID]++
	}
	s.Cases = len(perCase)
	if s.Cases == 0 {
		return s
	}

	s.MinEventsPerCase = s.Events
	for _, n := range perCase {
		s.MinEventsPerCase = min(s.MinEventsPerCase, n)
		s.MaxEventsPerCase = max(s.MaxEventsPerCase, n)
	}
	s.AvgEventsPerCase = float64(s.Events) / float64(s.Cases)
	return s
}

// Variants groups cases by their ordered activity sequence, most common
// first. Equal counts are ordered by the joined path.
func Variants(log *model.Log) []Variant {
	type entry struct {
		path  []string
		count int64
	}
	byKey := make(map[string]*entry)
	trs := traces(log)

	for _, tr := range trs {
		path := make([]string, len(tr.events))
		for i, e := range tr.events {
			path[i] = e.Activity
		}
		key := strings.Join(path, "\x00")
		if v, ok := byKey[key]; ok {
			v.count++
			continue
		}
		byKey[key] = &entry{path: path, count: 1}
	}

	out := make([]Variant, 0, len(byKey))
	for _, v := range byKey {
		out = append(out, Variant{
			Path:    v.path,
			Count:   v.count,
			Percent: float64(v.count) * 100 / float64(len(trs)),
		})
	}
	SortVariants(out)
	return out
}

// SortVariants orders variants by count descending, then by joined path.
func SortVariants(vs []Variant) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].Count != vs[j].Count {
			return vs[i].Count > vs[j].Count
		}
		return vs[i].String() < vs[j].String()
	})
}

// Endpoints counts the first and last activity of every case. Percent is
// relative to the number of cases.
func Endpoints(log *model.Log) (start, end []ActivityCount) {
	first := make(map[string]int64)
	last := make(map[string]int64)
	trs := traces(log)

	for _, tr := range trs {
		first[tr.events[0].Activity]++
		last[tr.events[len(tr.events)-1].Activity]++
	}
	total := int64(len(trs))
	return rank(first, total), rank(last, total)
}

// TopActivities returns at most n entries. n <= 0 returns all of them.
func TopActivities(acts []ActivityCount, n int) []ActivityCount {
	if n <= 0 || n >= len(acts) {
		return acts
	}
	return acts[:n]
}

// TopTransitions returns at most n edges. n <= 0 returns all of them.
func TopTransitions(ts []Transition, n int) []Transition {
	if n <= 0 || n >= len(ts) {
		return ts
	}
	return ts[:n]
}
