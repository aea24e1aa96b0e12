// Package timeparse parses timestamps of unknown layout.
//
// Values without a zone are interpreted as UTC.
package timeparse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Order is the field order of numeric dates such as 03/04/2024.
type Order uint8

const (
	// OrderMDY reads 03/04/2024 as March 4th.
	OrderMDY Order = iota
	// OrderDMY reads 03/04/2024 as April 3rd.
	OrderDMY
)

// String returns the order name.
func (o Order) String() string {
	if o == OrderDMY {
		return "DMY"
	}
	return "MDY"
}

// Layouts tried when dateparse gives up.
var fallbackLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006 15:04",
	"January 2, 2006 15:04",
	"Jan 2 2006 15:04:05",
	"Jan 2 2006 15:04",
	"Jan 2 2006",
	"January 2 2006 15:04:05",
	"January 2 2006 15:04",
	"January 2 2006",
	"20060102",
	"2006",
}

// Numeric layouts; {M} and {D} are expanded per Order.
var numericLayouts = []string{
	"{M}/{D}/2006 15:04:05.999999999",
	"{M}/{D}/2006 15:04:05",
	"{M}/{D}/2006 15:04",
	"{M}/{D}/2006 3:04:05 PM",
	"{M}/{D}/2006 3:04 PM",
	"{M}/{D}/2006",
	"{M}-{D}-2006 15:04:05",
	"{M}-{D}-2006 15:04",
	"{M}-{D}-2006",
	"{M}.{D}.2006 15:04:05",
	"{M}.{D}.2006 15:04",
	"{M}.{D}.2006",
}

var (
	mdyLayouts = expand(numericLayouts, OrderMDY)
	dmyLayouts = expand(numericLayouts, OrderDMY)
)

func expand(layouts []string, o Order) []string {
	m, d := "1", "2"
	if o == OrderDMY {
		m, d = "2", "1"
	}
	out := make([]string, len(layouts))
	for i, l := range layouts {
		l = strings.ReplaceAll(l, "{M}", "\x00")
		l = strings.ReplaceAll(l, "{D}", d)
		out[i] = strings.ReplaceAll(l, "\x00", m)
	}
	return out
}

// Excel serial dates count days since 1899-12-30.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// Serials below minExcelSerial (1927-05-18) are not read as dates, so
// short integers such as years stay years. maxExcelSerial is 9999-12-31.
const (
	minExcelSerial = 10000
	maxExcelSerial = 2958465
)

var errNoLayout = errors.New("no known layout matches")

// Error reports a value no known layout accepts.
type Error struct {
	Value string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cannot parse %q as a timestamp", e.Value)
	}
	return fmt.Sprintf("cannot parse %q as a timestamp: %v", e.Value, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Parser parses timestamps, trying a preferred layout first.
type Parser struct {
	layout string
	order  Order
}

// NewParser creates a parser. layout may be empty.
func NewParser(layout string, order Order) *Parser {
	return &Parser{layout: layout, order: order}
}

// Parse parses s with the month-first default order.
func Parse(s string) (time.Time, error) {
	return NewParser("", OrderMDY).Parse(s)
}

// Parse parses a single timestamp value.
func (p *Parser) Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &Error{Value: s, Err: fmt.Errorf("empty value")}
	}

	cause := errNoLayout
	if p.layout != "" {
		t, err := time.ParseInLocation(p.layout, s, time.UTC)
		if err == nil {
			return t, nil
		}
		cause = err
	}

	// Fast path: ISO 8601 (most common)
	if len(s) >= 10 && s[4] == '-' && s[7] == '-' {
		if t, ok := parseISO8601(s); ok {
			return t, nil
		}
	}

	if isNumeric(s) {
		if t, ok := parseNumeric(s); ok {
			return t, nil
		}
		// Only plain years (2024) and compact dates (20240304) are left
		// for dateparse; other numbers are not timestamps.
		if (len(s) != 4 && len(s) != 8 && len(s) != 14) || strings.ContainsAny(s, ".-") {
			return time.Time{}, &Error{Value: s, Err: cause}
		}
	}

	// Day and month positions follow the configured order. dateparse
	// always reads dotted dates month first.
	if numericDate(s) {
		layouts := mdyLayouts
		if p.order == OrderDMY {
			layouts = dmyLayouts
		}
		for _, layout := range layouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t, nil
			}
		}
	}

	if t, err := dateparse.ParseIn(s, time.UTC, dateparse.PreferMonthFirst(p.order == OrderMDY)); err == nil {
		return t, nil
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, &Error{Value: s, Err: cause}
}

// numericDate reports whether s starts with a d/m or m/d numeric date
// such as 3/4/2024 or 25.12.2024.
func numericDate(s string) bool {
	parts := splitDateParts(s)
	if len(parts) < 3 || len(parts[0]) > 2 || len(parts[1]) > 2 {
		return false
	}
	_, ok1 := digits(parts[0])
	_, ok2 := digits(parts[1])
	return ok1 && ok2
}

// parseISO8601 parses YYYY-MM-DD[(T| )hh:mm[:ss[.frac]]][Z|±hh[:]mm]
// with direct byte arithmetic. ok is false for anything else.
func parseISO8601(s string) (time.Time, bool) {
	year, ok1 := digits(s[0:4])
	month, ok2 := digits(s[5:7])
	day, ok3 := digits(s[8:10])
	if !ok1 || !ok2 || !ok3 || month < 1 || month > 12 || day < 1 || day > daysIn(month, year) {
		return time.Time{}, false
	}

	var hour, minute, second, nsec int
	loc := time.UTC
	rest := s[10:]

	if rest != "" {
		if rest[0] != 'T' && rest[0] != ' ' {
			return time.Time{}, false
		}
		rest = rest[1:]
		if len(rest) < 5 || rest[2] != ':' {
			return time.Time{}, false
		}
		var ok bool
		if hour, ok = digits(rest[0:2]); !ok || hour > 23 {
			return time.Time{}, false
		}
		if minute, ok = digits(rest[3:5]); !ok || minute > 59 {
			return time.Time{}, false
		}
		rest = rest[5:]

		if len(rest) >= 3 && rest[0] == ':' {
			if second, ok = digits(rest[1:3]); !ok || second > 59 {
				return time.Time{}, false
			}
			rest = rest[3:]
		}

		if len(rest) > 1 && (rest[0] == '.' || rest[0] == ',') {
			end := 1
			for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
				end++
			}
			if end == 1 {
				return time.Time{}, false
			}
			nsec = parseFraction(rest[1:end])
			rest = rest[end:]
		}

		rest = strings.TrimPrefix(rest, " ")
		switch {
		case rest == "":
		case rest == "Z" || rest == "UTC":
		case rest[0] == '+' || rest[0] == '-':
			offset, ok := parseOffset(rest[1:])
			if !ok {
				return time.Time{}, false
			}
			if rest[0] == '-' {
				offset = -offset
			}
			loc = time.FixedZone("", offset)
		default:
			return time.Time{}, false
		}
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, nsec, loc), true
}

// parseOffset parses hh, hhmm or hh:mm into seconds.
func parseOffset(s string) (int, bool) {
	var h, m int
	var ok bool
	switch len(s) {
	case 2:
		h, ok = digits(s)
	case 4:
		if h, ok = digits(s[0:2]); ok {
			m, ok = digits(s[2:4])
		}
	case 5:
		if s[2] != ':' {
			return 0, false
		}
		if h, ok = digits(s[0:2]); ok {
			m, ok = digits(s[3:5])
		}
	}
	if !ok || h > 23 || m > 59 {
		return 0, false
	}
	return h*3600 + m*60, true
}

// parseNumeric handles Unix epochs (10 or 13 digit integers) and Excel
// serial dates.
func parseNumeric(s string) (time.Time, bool) {
	if !strings.ContainsRune(s, '.') && s[0] != '-' {
		switch len(s) {
		case 10:
			sec, err := strconv.ParseInt(s, 10, 64)
			if err == nil {
				return time.Unix(sec, 0).UTC(), true
			}
		case 13:
			ms, err := strconv.ParseInt(s, 10, 64)
			if err == nil {
				return time.UnixMilli(ms).UTC(), true
			}
		}
	}

	val, err := strconv.ParseFloat(s, 64)
	if err != nil || val < minExcelSerial || val > maxExcelSerial {
		return time.Time{}, false
	}
	days := int(val)
	t := excelEpoch.AddDate(0, 0, days)
	if frac := val - float64(days); frac > 0 {
		t = t.Add(time.Duration(frac * 24 * float64(time.Hour)).Round(time.Millisecond))
	}
	return t, true
}

func digits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// parseFraction parses fractional seconds to nanoseconds.
func parseFraction(s string) int {
	result := 0
	multiplier := 100000000 // 10^8
	for i := 0; i < len(s) && i < 9; i++ {
		result += int(s[i]-'0') * multiplier
		multiplier /= 10
	}
	return result
}

func daysIn(month, year int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// isNumeric checks if s contains only digits, at most one dot and an
// optional leading minus.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	dots := 0
	sawDigit := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			sawDigit = true
		case c == '.' && dots == 0:
			dots++
		case c == '-' && i == 0:
		default:
			return false
		}
	}
	return sawDigit
}
