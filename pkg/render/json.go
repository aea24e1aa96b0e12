package render

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/logflow/pmdash/internal/model"
	"github.com/logflow/pmdash/pkg/analysis"
)

// JSON writes the bundle views with a raw data preview.
type JSON struct {
	opts Options
}

// NewJSON creates a JSON renderer.
func NewJSON(opts Options) *JSON {
	return &JSON{opts: opts.withDefaults()}
}

// Name implements Renderer.
func (*JSON) Name() string { return NameJSON }

// ContentType implements Renderer.
func (*JSON) ContentType() string { return "application/json" }

// EventJSON is the wire form of one event.
type EventJSON struct {
	Row             int       `json:"row"`
	CaseID          string    `json:"case_id"`
	Activity        string    `json:"activity"`
	Start           time.Time `json:"start_time"`
	End             time.Time `json:"end_time"`
	DurationMinutes float64   `json:"duration_minutes"`
}

// WarningJSON is the wire form of a load warning.
type WarningJSON struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type document struct {
	*analysis.Bundle
	Rows     int           `json:"rows"`
	Preview  []EventJSON   `json:"preview"`
	Warnings []WarningJSON `json:"warnings"`
}

// Events converts events to their wire form.
func Events(events []model.Event) []EventJSON {
	out := make([]EventJSON, len(events))
	for i, e := range events {
		out[i] = EventJSON{
			Row:             e.Row,
			CaseID:          e.CaseID,
			Activity:        e.Activity,
			Start:           e.Start,
			End:             e.End,
			DurationMinutes: e.DurationMinutes,
		}
	}
	return out
}

// Warnings converts bundle warnings to their wire form.
func Warnings(b *analysis.Bundle) []WarningJSON {
	out := make([]WarningJSON, len(b.Warnings))
	for i, w := range b.Warnings {
		out[i] = WarningJSON{Code: string(w.Code()), Message: w.Error()}
	}
	return out
}

// Render implements Renderer.
func (j *JSON) Render(ctx context.Context, w io.Writer, b *analysis.Bundle) error {
	if err := ctx.Err(); err != nil {
		return renderErr(err, NameJSON)
	}
	doc := document{
		Bundle:   b,
		Rows:     b.Log.Len(),
		Preview:  Events(b.Log.Head(j.opts.PreviewRows)),
		Warnings: Warnings(b),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return renderErr(enc.Encode(doc), NameJSON)
}
