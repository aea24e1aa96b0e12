package eventlog

import (
	"fmt"
	"strings"

	lferrors "github.com/logflow/pmdash/pkg/errors"
)

// MissingColumnsError is returned when required columns are absent.
type MissingColumnsError struct {
	// Missing lists the absent columns in required order.
	Missing []string
	// Required lists every expected column.
	Required []string
	// Available lists the header as read.
	Available []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required column(s): %s (required: %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Required, ", "))
}

// Code implements errors.Coder.
func (e *MissingColumnsError) Code() lferrors.Code {
	return lferrors.CodeMissingColumn
}

// TimestampParseError is returned when a Start Time or End Time value
// cannot be parsed. Err carries the parser's message.
type TimestampParseError struct {
	Column string
	Row    int
	Value  string
	Err    error
}

func (e *TimestampParseError) Error() string {
	return fmt.Sprintf("column %q, row %d: %v", e.Column, e.Row, e.Err)
}

func (e *TimestampParseError) Unwrap() error {
	return e.Err
}

// Code implements errors.Coder.
func (e *TimestampParseError) Code() lferrors.Code {
	return lferrors.CodeInvalidTimestamp
}

// LoadError wraps any other failure to read the tabular input.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return "load event log: " + e.Err.Error()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Code implements errors.Coder.
func (e *LoadError) Code() lferrors.Code {
	return lferrors.CodeLoadFailed
}

// Warning is a non-fatal data quality finding.
type Warning interface {
	error
	lferrors.Coder
}

// NegativeDurationWarning reports events whose End Time precedes their
// Start Time. The log is still valid.
type NegativeDurationWarning struct {
	Count    int
	FirstRow int
}

func (w *NegativeDurationWarning) Error() string {
	return fmt.Sprintf("%d event(s) have a negative duration (first at row %d); check the %q and %q values",
		w.Count, w.FirstRow, ColStartTime, ColEndTime)
}

// Code implements errors.Coder.
func (w *NegativeDurationWarning) Code() lferrors.Code {
	return lferrors.CodeNegativeDuration
}

func loadErrorf(format string, args ...interface{}) *LoadError {
	return &LoadError{Err: fmt.Errorf(format, args...)}
}
