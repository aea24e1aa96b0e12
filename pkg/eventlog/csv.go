package eventlog

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
)

// sampleSize bounds the bytes inspected for delimiter detection.
const sampleSize = 64 * 1024

var delimiterCandidates = []rune{',', ';', '\t', '|'}

// table is the raw header plus string cells of a decoded input.
type table struct {
	header []string
	rows   [][]string
}

// decodeCSV reads delimited text. Every record must have as many
// fields as the header.
func decodeCSV(ctx context.Context, data []byte, delim rune) (*table, rune, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if delim == 0 {
		sample := data
		if len(sample) > sampleSize {
			sample = sample[:sampleSize]
			if i := bytes.LastIndexByte(sample, '\n'); i > 0 {
				sample = sample[:i+1]
			}
		}
		delim = detectDelimiter(sample)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = 0 // header sets the width
	r.ReuseRecord = false
	r.LazyQuotes = true // Say "hi" in an unquoted field stays as is

	header, err := r.Read()
	if err == io.EOF {
		return nil, delim, loadErrorf("input is empty: no header row")
	}
	if err != nil {
		return nil, delim, &LoadError{Err: err}
	}

	t := &table{header: header}
	for n := 0; ; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, delim, &LoadError{Err: err}
			}
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) && errors.Is(perr.Err, csv.ErrFieldCount) {
				return nil, delim, loadErrorf("line %d has %d fields, header has %d: %w",
					perr.Line, len(rec), len(header), err)
			}
			return nil, delim, &LoadError{Err: err}
		}
		t.rows = append(t.rows, rec)
	}
	return t, delim, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// detectDelimiter picks the candidate whose per-line count is most
// consistent. Ties go to the earlier candidate.
func detectDelimiter(sample []byte) rune {
	best := delimiterCandidates[0]
	bestScore := math.MaxFloat64

	for _, delim := range delimiterCandidates {
		counts := countDelimiterPerLine(sample, byte(delim))
		if len(counts) < 2 {
			return mostFrequentOnFirstLine(sample)
		}

		avg := mean(counts)
		if avg < 1 {
			continue
		}

		score := variance(counts, avg) / avg
		if score < bestScore {
			bestScore = score
			best = delim
		}
	}
	return best
}

// countDelimiterPerLine counts unquoted delimiters on each line. A final
// line without a newline is counted too.
func countDelimiterPerLine(sample []byte, delim byte) []int {
	var counts []int
	inQuote := false
	count := 0
	pending := false

	for _, b := range sample {
		if b == '"' {
			inQuote = !inQuote
			pending = true
			continue
		}
		if inQuote {
			continue
		}
		switch b {
		case delim:
			count++
			pending = true
		case '\n':
			counts = append(counts, count)
			count = 0
			pending = false
		case '\r':
		default:
			pending = true
		}
	}
	if pending {
		counts = append(counts, count)
	}
	return counts
}

func mostFrequentOnFirstLine(sample []byte) rune {
	line := sample
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		line = sample[:i]
	}
	best, bestCount := delimiterCandidates[0], 0
	for _, delim := range delimiterCandidates {
		if c := bytes.Count(line, []byte{byte(delim)}); c > bestCount {
			best, bestCount = delim, c
		}
	}
	return best
}

func mean(values []int) float64 {
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func variance(values []int, avg float64) float64 {
	var sum float64
	for _, v := range values {
		d := float64(v) - avg
		sum += d * d
	}
	return sum / float64(len(values))
}
