package aggregate

import "github.com/logflow/pmdash/internal/model"

// Views holds every derived view of one log.
type Views struct {
	CaseDurations   map[string]float64 `json:"case_durations"`
	Activities      []ActivityCount    `json:"activities"`
	Average         Average            `json:"average_completion_time"`
	Transitions     []Transition       `json:"transitions"`
	Summary         Summary            `json:"summary"`
	Variants        []Variant          `json:"variants"`
	StartActivities []ActivityCount    `json:"start_activities"`
	EndActivities   []ActivityCount    `json:"end_activities"`
}

// Compute derives all views from the log.
func Compute(log *model.Log) *Views {
	durations := CaseDurations(log)
	start, end := Endpoints(log)
	return &Views{
		CaseDurations:   durations,
		Activities:      ActivityFrequencies(log),
		Average:         AverageCompletionTime(durations),
		Transitions:     Transitions(log),
		Summary:         Summarize(log),
		Variants:        Variants(log),
		StartActivities: start,
		EndActivities:   end,
	}
}
