package aggregate

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/logflow/pmdash/internal/model"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(m int) time.Time {
	return t0.Add(time.Duration(m) * time.Minute)
}

type row struct {
	caseID, activity string
	start, end       int
}

func newLog(rows ...row) *model.Log {
	events := make([]model.Event, len(rows))
	for i, r := range rows {
		events[i] = model.NewEvent(r.caseID, r.activity, at(r.start), at(r.end), i+1)
	}
	return model.NewLog(events)
}

// twoCases is A = [X 0-10, Y 10-20], B = [X 0-5].
func twoCases() *model.Log {
	return newLog(
		row{"A", "X", 0, 10},
		row{"A", "Y", 10, 20},
		row{"B", "X", 0, 5},
	)
}

func TestRoundTrip(t *testing.T) {
	log := twoCases()

	durations := CaseDurations(log)
	if want := map[string]float64{"A": 20, "B": 5}; !reflect.DeepEqual(durations, want) {
		t.Errorf("CaseDurations = %v, want %v", durations, want)
	}

	acts := ActivityFrequencies(log)
	if len(acts) != 2 || acts[0] != (ActivityCount{"X", 2, 200.0 / 3}) || acts[1].Activity != "Y" || acts[1].Count != 1 {
		t.Errorf("ActivityFrequencies = %+v", acts)
	}

	trs := Transitions(log)
	if want := []Transition{{From: "X", To: "Y", Count: 1}}; !reflect.DeepEqual(trs, want) {
		t.Errorf("Transitions = %+v, want %+v", trs, want)
	}

	avg := AverageCompletionTime(durations)
	if !avg.Valid || avg.Value != 12.5 {
		t.Errorf("AverageCompletionTime = %+v, want 12.5", avg)
	}
}

func TestEmptyLog(t *testing.T) {
	for _, log := range []*model.Log{nil, model.NewLog(nil)} {
		v := Compute(log)
		if len(v.CaseDurations) != 0 || len(v.Activities) != 0 || len(v.Transitions) != 0 {
			t.Errorf("Expected empty views, got %+v", v)
		}
		if v.Average.Valid {
			t.Error("Average of empty log should be undefined")
		}
		if len(v.Variants) != 0 || len(v.StartActivities) != 0 || v.Summary.Cases != 0 {
			t.Errorf("Expected empty supplements, got %+v", v)
		}
	}
}

func TestNegativeDuration(t *testing.T) {
	log := newLog(row{"A", "X", 30, 0})
	if d := CaseDurations(log)["A"]; d != -30 {
		t.Errorf("Expected -30, got %v", d)
	}
}

func TestActivityFrequencies_TieBreak(t *testing.T) {
	log := newLog(
		row{"1", "b", 0, 1},
		row{"1", "a", 1, 2},
		row{"2", "c", 0, 1},
		row{"2", "c", 1, 2},
	)
	acts := ActivityFrequencies(log)
	got := []string{acts[0].Activity, acts[1].Activity, acts[2].Activity}
	if want := []string{"c", "a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Order = %v, want %v", got, want)
	}
}

func TestEmptyActivity(t *testing.T) {
	// A blank activity cell is a distinct activity, so counts still add
	// up to the number of rows.
	log := newLog(
		row{"A", "", 0, 5},
		row{"A", "X", 5, 10},
	)
	acts := ActivityFrequencies(log)
	if len(acts) != 2 || acts[0].Activity != "" || acts[0].Count != 1 {
		t.Errorf("ActivityFrequencies = %+v", acts)
	}
	trs := Transitions(log)
	if len(trs) != 1 || trs[0].From != "" || trs[0].To != "X" {
		t.Errorf("Transitions = %+v", trs)
	}
}

func TestTransitions_Ordering(t *testing.T) {
	// Rows are out of time order within the case and two events share a
	// start time; input row decides the tie.
	log := newLog(
		row{"A", "C", 20, 30},
		row{"A", "A", 0, 10},
		row{"A", "B", 10, 15},
		row{"A", "D", 10, 12},
	)
	trs := Transitions(log)
	want := []Transition{
		{From: "A", To: "B", Count: 1},
		{From: "B", To: "D", Count: 1},
		{From: "D", To: "C", Count: 1},
	}
	if !reflect.DeepEqual(trs, want) {
		t.Errorf("Transitions = %+v, want %+v", trs, want)
	}
}

func TestTransitions_NoCrossCaseEdges(t *testing.T) {
	log := newLog(
		row{"A", "X", 0, 1},
		row{"B", "Y", 1, 2},
		row{"A", "Z", 2, 3},
	)
	trs := Transitions(log)
	if len(trs) != 1 || trs[0].From != "X" || trs[0].To != "Z" {
		t.Errorf("Expected only X->Z, got %+v", trs)
	}
}

func TestProperties(t *testing.T) {
	log := newLog(
		row{"1", "register", 0, 5},
		row{"1", "check", 5, 20},
		row{"1", "approve", 20, 21},
		row{"2", "register", 3, 4},
		row{"2", "reject", 4, 9},
		row{"3", "register", 1, 2},
		row{"3", "check", 2, 3},
		row{"3", "check", 3, 7},
		row{"3", "approve", 8, 9},
	)
	events := log.Events()

	durations := CaseDurations(log)
	cases := log.CaseIDs()
	if len(durations) != len(cases) {
		t.Errorf("Expected %d keys, got %d", len(cases), len(durations))
	}
	for _, id := range cases {
		if _, ok := durations[id]; !ok {
			t.Errorf("Missing case %q", id)
		}
	}

	var total int64
	for _, a := range ActivityFrequencies(log) {
		total += a.Count
	}
	if total != int64(len(events)) {
		t.Errorf("Frequencies sum to %d, want %d", total, len(events))
	}

	var edges int64
	for _, tr := range Transitions(log) {
		edges += tr.Count
	}
	if want := int64(len(events) - len(cases)); edges != want {
		t.Errorf("Edge counts sum to %d, want %d", edges, want)
	}
}

func TestIdempotent(t *testing.T) {
	log := newLog(
		row{"1", "a", 0, 5},
		row{"1", "b", 5, 6},
		row{"2", "b", 0, 3},
		row{"2", "a", 3, 4},
		row{"3", "a", 0, 1},
	)
	before := log.Events()

	first := Compute(log)
	second := Compute(log)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Views differ between runs:\n%+v\n%+v", first, second)
	}
	if !reflect.DeepEqual(before, log.Events()) {
		t.Error("Log was modified")
	}
}

func TestVariants(t *testing.T) {
	log := newLog(
		row{"1", "a", 0, 1},
		row{"1", "b", 1, 2},
		row{"2", "a", 0, 1},
		row{"2", "b", 1, 2},
		row{"3", "b", 0, 1},
	)
	vs := Variants(log)
	if len(vs) != 2 {
		t.Fatalf("Expected 2 variants, got %d", len(vs))
	}
	if vs[0].String() != "a -> b" || vs[0].Count != 2 {
		t.Errorf("Unexpected top variant: %+v", vs[0])
	}
	if vs[1].String() != "b" || vs[1].Count != 1 {
		t.Errorf("Unexpected second variant: %+v", vs[1])
	}
}

func TestEndpointsAndSummary(t *testing.T) {
	log := twoCases()

	start, end := Endpoints(log)
	if len(start) != 1 || start[0].Activity != "X" || start[0].Count != 2 || start[0].Percent != 100 {
		t.Errorf("Unexpected start activities: %+v", start)
	}
	if len(end) != 2 || end[0].Activity != "X" || end[1].Activity != "Y" {
		t.Errorf("Unexpected end activities: %+v", end)
	}

	s := Summarize(log)
	if s.Events != 3 || s.Cases != 2 || s.Activities != 2 {
		t.Errorf("Unexpected summary: %+v", s)
	}
	if s.MinEventsPerCase != 1 || s.MaxEventsPerCase != 2 || s.AvgEventsPerCase != 1.5 {
		t.Errorf("Unexpected case stats: %+v", s)
	}
	if s.Duration() != 20*time.Minute {
		t.Errorf("Expected 20m span, got %v", s.Duration())
	}
}

func TestTopN(t *testing.T) {
	acts := []ActivityCount{{Activity: "a"}, {Activity: "b"}, {Activity: "c"}}
	if got := TopActivities(acts, 2); len(got) != 2 {
		t.Errorf("Expected 2, got %d", len(got))
	}
	if got := TopActivities(acts, 0); len(got) != 3 {
		t.Errorf("Expected all, got %d", len(got))
	}
	if got := TopTransitions(nil, 5); len(got) != 0 {
		t.Errorf("Expected none, got %d", len(got))
	}
}

func TestAverage_JSON(t *testing.T) {
	b, _ := json.Marshal(Average{})
	if string(b) != "null" {
		t.Errorf("Expected null, got %s", b)
	}
	b, _ = json.Marshal(Average{Value: 12.5, Valid: true})
	if string(b) != "12.5" {
		t.Errorf("Expected 12.5, got %s", b)
	}

	var got struct {
		A Average `json:"a"`
		B Average `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":12.5,"b":null}`), &got); err != nil {
		t.Fatal(err)
	}
	if got.A != (Average{12.5, true}) || got.B.Valid {
		t.Errorf("Unexpected decode: %+v", got)
	}
}
