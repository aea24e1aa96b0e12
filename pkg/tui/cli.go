// Package tui prints CLI status output: headers, load reports, errors
// and read progress.
package tui

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/pmdash/pkg/analysis"
	lferrors "github.com/logflow/pmdash/pkg/errors"
	"github.com/logflow/pmdash/pkg/eventlog"
)

// Version is printed in the header.
var Version = "0.1.0"

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
	warning = lipgloss.Color("#FFAA00")
)

// Printer writes styled status lines to w.
type Printer struct {
	w io.Writer

	title   lipgloss.Style
	accent  lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	code    lipgloss.Style
}

// NewPrinter creates a Printer. Styles degrade to plain text when w is
// not a terminal.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		title:   r.NewStyle().Bold(true).Foreground(white),
		accent:  r.NewStyle().Foreground(accent).Bold(true),
		muted:   r.NewStyle().Foreground(muted),
		success: r.NewStyle().Foreground(success).Bold(true),
		warning: r.NewStyle().Foreground(warning).Bold(true),
		code:    r.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1),
	}
}

// Header prints the program banner.
func (p *Printer) Header() {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.title.Render("  PMDASH")+p.muted.Render(" v"+Version))
	fmt.Fprintln(p.w, p.muted.Render("  Process mining dashboard for event logs"))
	fmt.Fprintln(p.w)
}

// Report summarizes a finished load.
type Report struct {
	Source    string
	InputSize int64
	Duration  time.Duration
}

// LoadReport prints what was loaded and any data quality warnings.
func (p *Printer) LoadReport(b *analysis.Bundle, r Report) {
	fmt.Fprintln(p.w, p.success.Render("  ✓ DATA PROCESSED"))
	fmt.Fprintln(p.w)
	fmt.Fprintf(p.w, "  %s %s\n", p.muted.Render("Source:"), p.code.Render(r.Source))
	fmt.Fprintf(p.w, "  %s %s %s\n", p.muted.Render("Events:"),
		p.title.Render(formatNumber(int64(b.Summary.Events))),
		p.muted.Render(fmt.Sprintf("(%d cases, %d activities)", b.Summary.Cases, b.Summary.Activities)))
	if r.InputSize > 0 {
		fmt.Fprintf(p.w, "  %s %s\n", p.muted.Render("Size:"), formatBytes(r.InputSize))
	}
	if r.Duration > 0 {
		throughput := float64(b.Summary.Events) / r.Duration.Seconds()
		fmt.Fprintf(p.w, "  %s %s %s\n",
			p.muted.Render("Time:"),
			p.title.Render(formatDuration(r.Duration)),
			p.muted.Render(fmt.Sprintf("(%s events/sec, %s engine)", formatNumber(int64(throughput)), b.Engine)))
	}
	for _, w := range b.Warnings {
		fmt.Fprintf(p.w, "  %s %s\n", p.warning.Render("! "+string(w.Code())), w.Error())
	}
	fmt.Fprintln(p.w)
}

// Error prints a failure with its code and a hint for the common cases.
func (p *Printer) Error(err error) {
	code := lferrors.GetCode(err)
	fmt.Fprintf(p.w, "  %s %s\n", p.accent.Render("✗ ["+string(code)+"]"), err.Error())

	var missing *eventlog.MissingColumnsError
	var ts *eventlog.TimestampParseError
	switch {
	case errors.As(err, &missing):
		fmt.Fprintf(p.w, "  %s %s\n", p.muted.Render("Found columns:"), strings.Join(missing.Available, ", "))
		fmt.Fprintln(p.w, p.muted.Render("  Rename the columns or map them with --case-col, --activity-col, --start-col, --end-col."))
	case errors.As(err, &ts):
		fmt.Fprintln(p.w, p.muted.Render("  Check the timestamp format, or pass --timestamp-layout."))
	default:
		fmt.Fprintln(p.w, p.muted.Render("  Could not process the data. Check the file and try again."))
	}
}

// Status prints a one-line muted message.
func (p *Printer) Status(format string, args ...interface{}) {
	fmt.Fprintln(p.w, p.muted.Render("  "+fmt.Sprintf(format, args...)))
}

// ShowProgress creates a byte progress bar on w. A negative total shows
// a spinner.
func ShowProgress(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// ProgressReader reports reads from r on a progress bar. Close finishes
// the bar.
type ProgressReader struct {
	progressbar.Reader
	bar *progressbar.ProgressBar
}

// NewProgressReader wraps r. total is the expected size or -1.
func NewProgressReader(r io.Reader, w io.Writer, total int64, description string) *ProgressReader {
	bar := ShowProgress(w, total, description)
	return &ProgressReader{Reader: progressbar.NewReader(r, bar), bar: bar}
}

// Close finishes the bar. The wrapped reader is not closed.
func (r *ProgressReader) Close() error {
	return r.bar.Finish()
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
