// Package render turns an analysis bundle into terminal text, graph
// descriptions, JSON or Parquet.
package render

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/logflow/pmdash/pkg/analysis"
	lferrors "github.com/logflow/pmdash/pkg/errors"
)

// Renderer names.
const (
	NameTerminal = "terminal"
	NameDOT      = "dot"
	NameGraph    = "graph"
	NameJSON     = "json"
	NameParquet  = "parquet"
)

// Renderer writes one presentation of a bundle.
type Renderer interface {
	Name() string
	ContentType() string
	Render(ctx context.Context, w io.Writer, b *analysis.Bundle) error
}

// Options bounds what renderers show.
type Options struct {
	// TopActivities bars in the terminal chart.
	TopActivities int `yaml:"top_activities"`
	// GraphEdges in the force graph and the terminal transition table.
	GraphEdges int `yaml:"graph_edges"`
	// FlowEdges in the DOT flow diagram.
	FlowEdges int `yaml:"flow_edges"`
	// PreviewRows of raw data in terminal and JSON output.
	PreviewRows int `yaml:"preview_rows"`
	// Compression codec for Parquet: snappy, gzip, zstd, lz4 or none.
	Compression string `yaml:"compression"`
}

// DefaultOptions matches the dashboard defaults.
func DefaultOptions() Options {
	return Options{
		TopActivities: 15,
		GraphEdges:    20,
		FlowEdges:     30,
		PreviewRows:   20,
		Compression:   "snappy",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TopActivities > 0 {
		d.TopActivities = o.TopActivities
	}
	if o.GraphEdges > 0 {
		d.GraphEdges = o.GraphEdges
	}
	if o.FlowEdges > 0 {
		d.FlowEdges = o.FlowEdges
	}
	if o.PreviewRows > 0 {
		d.PreviewRows = o.PreviewRows
	}
	if o.Compression != "" {
		d.Compression = o.Compression
	}
	return d
}

var aliases = map[string]string{
	"text":       NameTerminal,
	"flow":       NameDOT,
	"graphviz":   NameDOT,
	"forcegraph": NameGraph,
	"d3":         NameGraph,
	"pq":         NameParquet,
}

// ByName returns the renderer registered under name or an alias.
func ByName(name string, opts Options) (Renderer, error) {
	opts = opts.withDefaults()
	name = strings.ToLower(name)
	if a, ok := aliases[name]; ok {
		name = a
	}
	switch name {
	case NameTerminal, "":
		return NewTerminal(opts), nil
	case NameDOT:
		return NewDOT(opts), nil
	case NameGraph:
		return NewForceGraph(opts), nil
	case NameJSON:
		return NewJSON(opts), nil
	case NameParquet:
		return NewParquet(opts)
	default:
		return nil, lferrors.New(lferrors.CodeInvalidFormat,
			fmt.Sprintf("unknown renderer %q (available: %s)", name, strings.Join(Names(), ", ")))
	}
}

// Names lists the renderers.
func Names() []string {
	names := []string{NameTerminal, NameDOT, NameGraph, NameJSON, NameParquet}
	sort.Strings(names)
	return names
}

func renderErr(err error, name string) error {
	if err == nil {
		return nil
	}
	return lferrors.Wrapf(err, lferrors.CodeRenderFailed, "render %s", name)
}
