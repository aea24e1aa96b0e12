package render

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/logflow/pmdash/pkg/aggregate"
	"github.com/logflow/pmdash/pkg/analysis"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

const (
	barWidth   = 40
	timeLayout = "2006-01-02 15:04:05"
)

// Terminal writes the dashboard as styled text.
type Terminal struct {
	opts Options
}

// NewTerminal creates a terminal renderer.
func NewTerminal(opts Options) *Terminal {
	return &Terminal{opts: opts.withDefaults()}
}

// Name implements Renderer.
func (*Terminal) Name() string { return NameTerminal }

// ContentType implements Renderer.
func (*Terminal) ContentType() string { return "text/plain; charset=utf-8" }

type styles struct {
	title, section, muted, ok, warn, bar, border lipgloss.Style
}

func newStyles(w io.Writer) styles {
	re := lipgloss.NewRenderer(w)
	return styles{
		title:   re.NewStyle().Bold(true).Foreground(white),
		section: re.NewStyle().Bold(true).Foreground(accent),
		muted:   re.NewStyle().Foreground(muted),
		ok:      re.NewStyle().Foreground(success).Bold(true),
		warn:    re.NewStyle().Foreground(accent),
		bar:     re.NewStyle().Foreground(success),
		border:  re.NewStyle().Foreground(muted),
	}
}

// Render implements Renderer.
func (t *Terminal) Render(ctx context.Context, w io.Writer, b *analysis.Bundle) error {
	if err := ctx.Err(); err != nil {
		return renderErr(err, NameTerminal)
	}
	st := newStyles(w)
	var sb strings.Builder

	fmt.Fprintf(&sb, "\n%s %s\n", st.title.Render("PMDASH"), st.muted.Render(b.Source))
	fmt.Fprintf(&sb, "%s\n", st.muted.Render(fmt.Sprintf("%d events, %d cases, %d activities",
		b.Summary.Events, b.Summary.Cases, b.Summary.Activities)))

	for _, warn := range b.Warnings {
		fmt.Fprintf(&sb, "%s %s\n", st.warn.Render("! "+string(warn.Code())), warn.Error())
	}

	t.preview(&sb, st, b)
	t.durations(&sb, st, b)
	t.activities(&sb, st, b)
	average(&sb, st, b.Average)
	t.transitions(&sb, st, b)
	t.chart(&sb, st, b)

	_, err := io.WriteString(w, sb.String())
	return renderErr(err, NameTerminal)
}

func (t *Terminal) preview(sb *strings.Builder, st styles, b *analysis.Bundle) {
	events := b.Log.Head(t.opts.PreviewRows)
	section(sb, st, fmt.Sprintf("Raw data (first %d of %d rows)", len(events), b.Log.Len()))
	rows := make([][]string, len(events))
	for i, e := range events {
		rows[i] = []string{
			e.CaseID, e.Activity,
			e.Start.Format(timeLayout), e.End.Format(timeLayout),
			formatMinutes(e.DurationMinutes),
		}
	}
	writeTable(sb, st, []string{"Case ID", "Activity Name", "Start Time", "End Time", "Duration (min)"}, rows)
}

func (t *Terminal) durations(sb *strings.Builder, st styles, b *analysis.Bundle) {
	section(sb, st, "Case durations (minutes)")
	ids := make([]string, 0, len(b.CaseDurations))
	for id := range b.CaseDurations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([][]string, len(ids))
	for i, id := range ids {
		rows[i] = []string{id, formatMinutes(b.CaseDurations[id])}
	}
	writeTable(sb, st, []string{"Case ID", "Duration"}, rows)
}

func (t *Terminal) activities(sb *strings.Builder, st styles, b *analysis.Bundle) {
	section(sb, st, "Activity frequencies")
	rows := make([][]string, len(b.Activities))
	for i, a := range b.Activities {
		rows[i] = []string{a.Activity, strconv.FormatInt(a.Count, 10), fmt.Sprintf("%.1f%%", a.Percent)}
	}
	writeTable(sb, st, []string{"Activity", "Frequency", "Share"}, rows)
}

func average(sb *strings.Builder, st styles, avg aggregate.Average) {
	section(sb, st, "Average completion time")
	if !avg.Valid {
		fmt.Fprintf(sb, "%s\n", st.muted.Render("Average completion time could not be computed (no cases)."))
		return
	}
	fmt.Fprintf(sb, "%s minutes\n", st.ok.Render(formatMinutes(avg.Value)))
}

func (t *Terminal) transitions(sb *strings.Builder, st styles, b *analysis.Bundle) {
	top := aggregate.TopTransitions(b.Transitions, t.opts.GraphEdges)
	section(sb, st, fmt.Sprintf("Top transitions (%d of %d)", len(top), len(b.Transitions)))
	rows := make([][]string, len(top))
	for i, tr := range top {
		rows[i] = []string{tr.From, tr.To, strconv.FormatInt(tr.Count, 10)}
	}
	writeTable(sb, st, []string{"From", "To", "Count"}, rows)
}

func (t *Terminal) chart(sb *strings.Builder, st styles, b *analysis.Bundle) {
	top := aggregate.TopActivities(b.Activities, t.opts.TopActivities)
	section(sb, st, fmt.Sprintf("Top %d activities", len(top)))
	if len(top) == 0 {
		fmt.Fprintf(sb, "%s\n", st.muted.Render("(none)"))
		return
	}

	labelWidth := 0
	for _, a := range top {
		labelWidth = max(labelWidth, lipgloss.Width(a.Activity))
	}
	maxCount := top[0].Count
	for _, a := range top {
		n := int(math.Ceil(float64(a.Count) / float64(maxCount) * barWidth))
		pad := strings.Repeat(" ", labelWidth-lipgloss.Width(a.Activity))
		fmt.Fprintf(sb, "  %s%s %s %d\n", a.Activity, pad, st.bar.Render(strings.Repeat("█", n)), a.Count)
	}
}

func section(sb *strings.Builder, st styles, title string) {
	fmt.Fprintf(sb, "\n%s\n", st.section.Render("▸ "+strings.ToUpper(title)))
}

func writeTable(sb *strings.Builder, st styles, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintf(sb, "%s\n", st.muted.Render("(none)"))
		return
	}
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return st.title.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...)
	sb.WriteString(tbl.String())
	sb.WriteString("\n")
}

func formatMinutes(m float64) string {
	return strconv.FormatFloat(m, 'f', 2, 64)
}
