package eventlog

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/pmdash/internal/timeparse"
	lferrors "github.com/logflow/pmdash/pkg/errors"
)

const twoCases = "Case ID,Activity Name,Start Time,End Time\n" +
	"A,X,2024-01-01 00:00:00,2024-01-01 00:10:00\n" +
	"A,Y,2024-01-01 00:10:00,2024-01-01 00:20:00\n" +
	"B,X,2024-01-01 00:00:00,2024-01-01 00:05:00\n"

func load(t *testing.T, input string) (*Result, error) {
	t.Helper()
	return Load(context.Background(), strings.NewReader(input), DefaultOptions())
}

func TestLoad_CSV(t *testing.T) {
	res, err := load(t, twoCases)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.Format != FormatCSV {
		t.Errorf("Expected csv, got %s", res.Format)
	}
	if res.Delimiter != ',' {
		t.Errorf("Expected ',' delimiter, got %q", res.Delimiter)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", res.Warnings)
	}
	if res.Log.Len() != 3 {
		t.Fatalf("Expected 3 events, got %d", res.Log.Len())
	}

	e := res.Log.At(1)
	if e.CaseID != "A" || e.Activity != "Y" || e.Row != 2 {
		t.Errorf("Unexpected event: %+v", e)
	}
	if e.DurationMinutes != 10 {
		t.Errorf("Expected 10 minutes, got %v", e.DurationMinutes)
	}
	want := time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC)
	if !e.Start.Equal(want) {
		t.Errorf("Expected start %v, got %v", want, e.Start)
	}
}

func TestLoad_MissingColumn(t *testing.T) {
	input := "Case ID,Activity Name,Start Time\nA,X,2024-01-01 00:00:00\n"
	res, err := load(t, input)
	if res != nil {
		t.Error("Expected no result on failure")
	}

	var mce *MissingColumnsError
	if !errors.As(err, &mce) {
		t.Fatalf("Expected MissingColumnsError, got %v", err)
	}
	if len(mce.Missing) != 1 || mce.Missing[0] != ColEndTime {
		t.Errorf("Expected missing [End Time], got %v", mce.Missing)
	}
	if !strings.Contains(err.Error(), "End Time") {
		t.Errorf("Error should name End Time: %v", err)
	}
	if lferrors.GetCode(err) != lferrors.CodeMissingColumn {
		t.Errorf("Expected %s, got %s", lferrors.CodeMissingColumn, lferrors.GetCode(err))
	}
}

func TestLoad_MissingColumnsInRequiredOrder(t *testing.T) {
	_, err := load(t, "End Time,Other\n2024-01-01,x\n")
	var mce *MissingColumnsError
	if !errors.As(err, &mce) {
		t.Fatalf("Expected MissingColumnsError, got %v", err)
	}
	want := []string{ColCaseID, ColActivity, ColStartTime}
	if strings.Join(mce.Missing, "|") != strings.Join(want, "|") {
		t.Errorf("Expected %v, got %v", want, mce.Missing)
	}
}

func TestLoad_NegativeDuration(t *testing.T) {
	input := "Case ID,Activity Name,Start Time,End Time\n" +
		"A,X,2024-01-01 10:00:00,2024-01-01 09:30:00\n"
	res, err := load(t, input)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %d", len(res.Warnings))
	}

	var w *NegativeDurationWarning
	if !errors.As(res.Warnings[0], &w) {
		t.Fatalf("Expected NegativeDurationWarning, got %T", res.Warnings[0])
	}
	if w.Count != 1 || w.FirstRow != 1 {
		t.Errorf("Unexpected warning: %+v", w)
	}
	if !lferrors.IsWarning(w) {
		t.Error("Expected a warning code")
	}
	if d := res.Log.At(0).DurationMinutes; d != -30 {
		t.Errorf("Expected -30 minutes, got %v", d)
	}
}

func TestLoad_BadTimestamp(t *testing.T) {
	input := "Case ID,Activity Name,Start Time,End Time\n" +
		"A,X,2024-01-01 00:00:00,2024-01-01 00:10:00\n" +
		"A,Y,yesterday,2024-01-01 00:20:00\n"
	_, err := load(t, input)

	var tpe *TimestampParseError
	if !errors.As(err, &tpe) {
		t.Fatalf("Expected TimestampParseError, got %v", err)
	}
	if tpe.Column != ColStartTime || tpe.Row != 2 || tpe.Value != "yesterday" {
		t.Errorf("Unexpected error fields: %+v", tpe)
	}
	var perr *timeparse.Error
	if !errors.As(err, &perr) {
		t.Error("Expected the parser error to be wrapped")
	}
}

func TestLoad_EmptyTimestamp(t *testing.T) {
	input := "Case ID,Activity Name,Start Time,End Time\nA,X,2024-01-01 00:00:00,\n"
	_, err := load(t, input)
	var tpe *TimestampParseError
	if !errors.As(err, &tpe) {
		t.Fatalf("Expected TimestampParseError, got %v", err)
	}
	if tpe.Column != ColEndTime {
		t.Errorf("Expected End Time, got %q", tpe.Column)
	}
}

func TestLoad_LoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"ragged", "Case ID,Activity Name,Start Time,End Time\nA,X,2024-01-01\n"},
		{"unterminated quote", "Case ID,Activity Name,Start Time,End Time\n\"A,X,2024-01-01,2024-01-02\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.input)
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("Expected LoadError, got %v", err)
			}
			if lferrors.GetCode(err) != lferrors.CodeLoadFailed {
				t.Errorf("Expected %s, got %s", lferrors.CodeLoadFailed, lferrors.GetCode(err))
			}
		})
	}
}

func TestLoad_BareQuotes(t *testing.T) {
	input := "Case ID,Activity Name,Start Time,End Time\n" +
		"A,Say \"hi\",2024-01-01 00:00:00,2024-01-01 00:10:00\n"
	res, err := load(t, input)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := res.Log.At(0).Activity; got != `Say "hi"` {
		t.Errorf("Activity = %q", got)
	}
}

func TestLoad_LooseTimestamps(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		minutes    float64
	}{
		{"single digit hour", "2024-01-01 9:00", "2024-01-01 9:30", 30},
		{"unpadded date", "2024-1-5 10:00", "2024-1-5 10:45", 45},
		{"month name", "Jan 15 2024 10:00", "Jan 15 2024 11:00", 60},
		// Years, not Excel serials 2024 and 2025.
		{"year only", "2024", "2025", 366 * 24 * 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := "Case ID,Activity Name,Start Time,End Time\nA,X," + tt.start + "," + tt.end + "\n"
			res, err := load(t, input)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if d := res.Log.At(0).DurationMinutes; d != tt.minutes {
				t.Errorf("DurationMinutes = %v, want %v", d, tt.minutes)
			}
		})
	}
}

func TestLoad_SmallNumberTimestamp(t *testing.T) {
	input := "Case ID,Activity Name,Start Time,End Time\nA,X,12,13\n"
	_, err := load(t, input)
	var tpe *TimestampParseError
	if !errors.As(err, &tpe) {
		t.Fatalf("Expected TimestampParseError, got %v", err)
	}
	if tpe.Row != 1 || tpe.Value != "12" {
		t.Errorf("Unexpected error fields: %+v", tpe)
	}
}

func TestLoad_HeaderOnly(t *testing.T) {
	res, err := load(t, "Case ID,Activity Name,Start Time,End Time\n")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.Log.Len() != 0 {
		t.Errorf("Expected empty log, got %d events", res.Log.Len())
	}
}

func TestLoad_Delimiters(t *testing.T) {
	tests := []struct {
		name  string
		delim string
		want  rune
	}{
		{"semicolon", ";", ';'},
		{"tab", "\t", '\t'},
		{"pipe", "|", '|'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := strings.ReplaceAll(twoCases, ",", tt.delim)
			res, err := load(t, input)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if res.Delimiter != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, res.Delimiter)
			}
			if res.Log.Len() != 3 {
				t.Errorf("Expected 3 events, got %d", res.Log.Len())
			}
		})
	}
}

func TestLoad_BOMAndExtraColumns(t *testing.T) {
	input := "\xEF\xBB\xBF Case ID ,Resource,Activity Name,Start Time,End Time\n" +
		"A,bob,X,2024-01-01 00:00:00,2024-01-01 00:10:00\n"
	res, err := load(t, input)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.Columns[0] != ColCaseID {
		t.Errorf("Expected trimmed header, got %q", res.Columns[0])
	}
	if e := res.Log.At(0); e.CaseID != "A" || e.Activity != "X" {
		t.Errorf("Unexpected event: %+v", e)
	}
}

func TestLoad_CustomColumns(t *testing.T) {
	input := "case,task,from,to\nA,X,2024-01-01 00:00:00,2024-01-01 00:10:00\n"
	opts := DefaultOptions()
	opts.Columns = Columns{CaseID: "case", Activity: "task", StartTime: "from", EndTime: "to"}

	res, err := Load(context.Background(), strings.NewReader(input), opts)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.Log.Len() != 1 {
		t.Errorf("Expected 1 event, got %d", res.Log.Len())
	}
}

func TestLoad_DateOrder(t *testing.T) {
	input := "Case ID,Activity Name,Start Time,End Time\n" +
		"A,X,04/03/2024 10:00,25/03/2024 10:00\n"
	res, err := load(t, input)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.DateOrder != timeparse.OrderDMY {
		t.Errorf("Expected dmy, got %s", res.DateOrder)
	}
	if m := res.Log.At(0).Start.Month(); m != time.March {
		t.Errorf("Expected March, got %s", m)
	}

	opts := DefaultOptions()
	opts.DateOrder = "mdy"
	res, err = Load(context.Background(), strings.NewReader(strings.ReplaceAll(input, "25/03", "03/25")), opts)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m := res.Log.At(0).Start.Month(); m != time.April {
		t.Errorf("Expected April, got %s", m)
	}
}

func TestLoad_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, strings.NewReader(twoCases), DefaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestLoad_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Case ID", "Activity Name", "Start Time", "End Time"},
		{"A", "X", "2024-01-01 00:00:00", "2024-01-01 00:10:00"},
		{"A", "Y", "2024-01-01 00:10:00", "2024-01-01 00:20:00"},
		{"B", "X", 45292.0, 45292.0 + 5.0/1440},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow failed: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer failed: %v", err)
	}

	res, err := Load(context.Background(), bytes.NewReader(buf.Bytes()), DefaultOptions())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.Format != FormatXLSX {
		t.Errorf("Expected xlsx, got %s", res.Format)
	}
	if res.Log.Len() != 3 {
		t.Fatalf("Expected 3 events, got %d", res.Log.Len())
	}

	e := res.Log.At(2)
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !e.Start.Equal(want) {
		t.Errorf("Expected serial start %v, got %v", want, e.Start)
	}
	if d := e.DurationMinutes; d < 4.99 || d > 5.01 {
		t.Errorf("Expected ~5 minutes, got %v", d)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want Format
	}{
		{"log.csv", nil, FormatCSV},
		{"log.xlsx", nil, FormatXLSX},
		{"upload", []byte("PK\x03\x04rest"), FormatXLSX},
		{"log.tsv", []byte("a\tb"), FormatCSV},
		{"", []byte("Case ID,"), FormatCSV},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.name, tt.head); got != tt.want {
			t.Errorf("DetectFormat(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestDetectDelimiter_Quoted(t *testing.T) {
	sample := []byte("a;b;c\n\"x;y\";2;3\n4;5;6\n")
	if got := detectDelimiter(sample); got != ';' {
		t.Errorf("Expected ';', got %q", got)
	}
}
