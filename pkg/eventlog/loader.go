package eventlog

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/logflow/pmdash/internal/model"
	"github.com/logflow/pmdash/internal/timeparse"
)

// Result is a validated event log plus load diagnostics.
type Result struct {
	Log      *model.Log
	Warnings []Warning

	// Columns is the header as read, after trimming.
	Columns []string

	Format    Format
	Delimiter rune
	DateOrder timeparse.Order
}

// Load reads a tabular event log and validates it.
//
// On failure it returns a *MissingColumnsError, *TimestampParseError or
// *LoadError and no log. Negative durations do not fail the load; they
// are reported as a *NegativeDurationWarning in Result.Warnings.
func Load(ctx context.Context, r io.Reader, opts Options) (res *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, loadErrorf("decoder panic: %v", p)
		}
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &LoadError{Err: err}
	}

	format := opts.Format
	if format == FormatUnknown {
		format = DetectFormat("", data[:min(len(data), 8)])
	}

	var t *table
	var delim rune
	switch format {
	case FormatXLSX:
		t, err = decodeXLSX(data, opts.Sheet)
	default:
		format = FormatCSV
		t, delim, err = decodeCSV(ctx, data, opts.Delimiter)
	}
	if err != nil {
		return nil, err
	}

	res, err = build(ctx, t, opts)
	if err != nil {
		return nil, err
	}
	res.Format = format
	res.Delimiter = delim
	return res, nil
}

// build validates the table and derives the events. All rows parse or
// the whole load fails.
func build(ctx context.Context, t *table, opts Options) (*Result, error) {
	cols := opts.Columns.withDefaults()
	header := normalizeHeader(t.header)

	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	var missing []string
	for _, name := range cols.names() {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{
			Missing:   missing,
			Required:  cols.names(),
			Available: header,
		}
	}

	caseIdx := index[cols.CaseID]
	actIdx := index[cols.Activity]
	startIdx := index[cols.StartTime]
	endIdx := index[cols.EndTime]

	order := resolveOrder(opts.DateOrder, t.rows, startIdx, endIdx)
	parser := timeparse.NewParser(opts.TimestampLayout, order)

	events := make([]model.Event, 0, len(t.rows))
	var negative *NegativeDurationWarning

	for i, row := range t.rows {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, &LoadError{Err: err}
			}
		}
		rowNum := i + 1

		start, err := parser.Parse(row[startIdx])
		if err != nil {
			return nil, &TimestampParseError{Column: cols.StartTime, Row: rowNum, Value: row[startIdx], Err: err}
		}
		end, err := parser.Parse(row[endIdx])
		if err != nil {
			return nil, &TimestampParseError{Column: cols.EndTime, Row: rowNum, Value: row[endIdx], Err: err}
		}

		e := model.NewEvent(row[caseIdx], row[actIdx], start, end, rowNum)
		if e.DurationMinutes < 0 {
			if negative == nil {
				negative = &NegativeDurationWarning{FirstRow: rowNum}
			}
			negative.Count++
		}
		events = append(events, e)
	}

	res := &Result{
		Log:       model.NewLog(events),
		Columns:   header,
		DateOrder: order,
	}
	if negative != nil {
		res.Warnings = append(res.Warnings, negative)
	}
	return res, nil
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = string(bytes.TrimPrefix([]byte(h), utf8BOM))
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func resolveOrder(setting string, rows [][]string, startIdx, endIdx int) timeparse.Order {
	switch strings.ToLower(setting) {
	case "dmy":
		return timeparse.OrderDMY
	case "mdy":
		return timeparse.OrderMDY
	}
	var d timeparse.OrderDetector
	for _, row := range rows {
		d.Add(strings.TrimSpace(row[startIdx]))
		d.Add(strings.TrimSpace(row[endIdx]))
	}
	return d.Order()
}
