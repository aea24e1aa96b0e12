package render

import (
	"context"
	"encoding/json"
	"io"

	"github.com/logflow/pmdash/pkg/aggregate"
	"github.com/logflow/pmdash/pkg/analysis"
)

// ForceGraph writes nodes and links for a d3-force layout.
type ForceGraph struct {
	opts Options
}

// NewForceGraph creates a force graph renderer.
func NewForceGraph(opts Options) *ForceGraph {
	return &ForceGraph{opts: opts.withDefaults()}
}

// GraphNode is one activity.
type GraphNode struct {
	ID     string `json:"id"`
	Degree int    `json:"degree"`
	Size   int    `json:"size"`
}

// GraphLink is one transition.
type GraphLink struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Value  int64   `json:"value"`
	Width  float64 `json:"width"`
}

// Graph is the force layout document.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Links []GraphLink `json:"links"`
}

// Name implements Renderer.
func (*ForceGraph) Name() string { return NameGraph }

// ContentType implements Renderer.
func (*ForceGraph) ContentType() string { return "application/json" }

// Build computes the graph from the top transitions. Node size grows
// with degree and link width with count relative to the busiest link.
func (g *ForceGraph) Build(b *analysis.Bundle) Graph {
	edges := aggregate.TopTransitions(b.Transitions, g.opts.GraphEdges)

	degree := make(map[string]int)
	for _, e := range edges {
		degree[e.From]++
		degree[e.To]++
	}
	_, hi := countRange(edges)

	out := Graph{
		Nodes: make([]GraphNode, 0, len(degree)),
		Links: make([]GraphLink, 0, len(edges)),
	}
	for _, n := range edgeNodes(edges) {
		out.Nodes = append(out.Nodes, GraphNode{ID: n, Degree: degree[n], Size: degree[n]*300 + 1000})
	}
	for _, e := range edges {
		out.Links = append(out.Links, GraphLink{
			Source: e.From,
			Target: e.To,
			Value:  e.Count,
			Width:  float64(e.Count)/float64(hi)*4 + 1,
		})
	}
	return out
}

// Render implements Renderer.
func (g *ForceGraph) Render(ctx context.Context, w io.Writer, b *analysis.Bundle) error {
	if err := ctx.Err(); err != nil {
		return renderErr(err, NameGraph)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return renderErr(enc.Encode(g.Build(b)), NameGraph)
}
