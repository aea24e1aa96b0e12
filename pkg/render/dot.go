package render

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/logflow/pmdash/pkg/aggregate"
	"github.com/logflow/pmdash/pkg/analysis"
)

// DOT writes the process flow as a Graphviz digraph.
type DOT struct {
	opts Options
}

// NewDOT creates a flow diagram renderer.
func NewDOT(opts Options) *DOT {
	return &DOT{opts: opts.withDefaults()}
}

// Name implements Renderer.
func (*DOT) Name() string { return NameDOT }

// ContentType implements Renderer.
func (*DOT) ContentType() string { return "text/vnd.graphviz" }

// Render implements Renderer.
func (d *DOT) Render(ctx context.Context, w io.Writer, b *analysis.Bundle) error {
	if err := ctx.Err(); err != nil {
		return renderErr(err, NameDOT)
	}
	edges := aggregate.TopTransitions(b.Transitions, d.opts.FlowEdges)

	var sb strings.Builder
	sb.WriteString("digraph process {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=\"#f5f5f5\", fontname=\"Helvetica\"];\n")
	sb.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n")

	for _, n := range edgeNodes(edges) {
		fmt.Fprintf(&sb, "  %s;\n", dotQuote(n))
	}

	lo, hi := countRange(edges)
	for _, e := range edges {
		fmt.Fprintf(&sb, "  %s -> %s [label=\"%d\", penwidth=%.2f];\n",
			dotQuote(e.From), dotQuote(e.To), e.Count, penWidth(e.Count, lo, hi))
	}
	sb.WriteString("}\n")

	_, err := io.WriteString(w, sb.String())
	return renderErr(err, NameDOT)
}

// penWidth scales a count into [1, 5]. Equal counts draw at 1.
func penWidth(c, lo, hi int64) float64 {
	if hi <= lo {
		return 1.0
	}
	return 1 + 4*float64(c-lo)/float64(hi-lo)
}

func countRange(edges []aggregate.Transition) (lo, hi int64) {
	for i, e := range edges {
		if i == 0 || e.Count < lo {
			lo = e.Count
		}
		if i == 0 || e.Count > hi {
			hi = e.Count
		}
	}
	return lo, hi
}

// edgeNodes returns the endpoints of edges in first-seen order.
func edgeNodes(edges []aggregate.Transition) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range edges {
		for _, n := range [2]string{e.From, e.To} {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func dotQuote(s string) string {
	return `"` + dotEscaper.Replace(s) + `"`
}
