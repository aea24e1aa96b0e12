// Package eventlog loads and validates tabular event logs.
package eventlog

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Required column names.
const (
	ColCaseID    = "Case ID"
	ColActivity  = "Activity Name"
	ColStartTime = "Start Time"
	ColEndTime   = "End Time"
)

// Format represents a supported input format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatXLSX
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format string.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "csv", "tsv", "txt":
		return FormatCSV
	case "xlsx", "xlsm", "excel":
		return FormatXLSX
	default:
		return FormatUnknown
	}
}

var zipMagic = []byte("PK\x03\x04")

// DetectFormat picks a format from the file name and leading bytes.
// Anything that is not a workbook is read as delimited text.
func DetectFormat(name string, head []byte) Format {
	if bytes.HasPrefix(head, zipMagic) {
		return FormatXLSX
	}
	if f := ParseFormat(strings.TrimPrefix(filepath.Ext(name), ".")); f != FormatUnknown {
		return f
	}
	return FormatCSV
}

// Columns maps the logical fields to header names.
type Columns struct {
	CaseID    string `yaml:"case_id"`
	Activity  string `yaml:"activity"`
	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time"`
}

// DefaultColumns returns the standard header names.
func DefaultColumns() Columns {
	return Columns{
		CaseID:    ColCaseID,
		Activity:  ColActivity,
		StartTime: ColStartTime,
		EndTime:   ColEndTime,
	}
}

func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	if c.CaseID != "" {
		d.CaseID = c.CaseID
	}
	if c.Activity != "" {
		d.Activity = c.Activity
	}
	if c.StartTime != "" {
		d.StartTime = c.StartTime
	}
	if c.EndTime != "" {
		d.EndTime = c.EndTime
	}
	return d
}

func (c Columns) names() []string {
	return []string{c.CaseID, c.Activity, c.StartTime, c.EndTime}
}

// Options configures Load.
type Options struct {
	// Columns overrides the required header names.
	Columns Columns

	// Format of the input. FormatUnknown sniffs the content.
	Format Format

	// Delimiter for delimited text. Zero auto-detects.
	Delimiter rune

	// TimestampLayout is a Go time layout tried before the built-in ones.
	TimestampLayout string

	// DateOrder resolves 03/04/2024: "mdy", "dmy" or "auto" (default).
	DateOrder string

	// Sheet selects the workbook sheet. Empty uses the first sheet.
	Sheet string
}

// DefaultOptions returns Options with auto-detection enabled.
func DefaultOptions() Options {
	return Options{
		Columns:   DefaultColumns(),
		DateOrder: "auto",
	}
}
