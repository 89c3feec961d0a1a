package kgx

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/brunobiangulo/txt2kgx/graph"
)

// ListSeparator joins multi-valued fields inside a single cell.
const ListSeparator = "|"

// NodeColumns is the node file schema.
var NodeColumns = []string{
	"id",
	"name",
	"all_categories",
	"confidence_score",
	"research_direction",
	"impact_score",
	"source_type",
	"maturity_level",
	"evidence_publication",
	"explanation",
}

// EdgeColumns is the edge file schema.
var EdgeColumns = []string{
	"id",
	"subject",
	"object",
	"predicate",
	"confidence_score",
	"provided_by",
	"evidence_publication",
	"primary_knowledge_source",
}

// NodeRow renders n in NodeColumns order. Descriptive columns are filled from
// the node's attributes.
func NodeRow(n graph.Node) []string {
	return row(NodeColumns, map[string]string{
		"id":             n.ID,
		"name":           n.Name,
		"all_categories": n.Category,
	}, n.Attributes)
}

// EdgeRow renders e in EdgeColumns order.
func EdgeRow(e graph.Edge) []string {
	return row(EdgeColumns, map[string]string{
		"id":                       e.ID,
		"subject":                  e.Subject,
		"object":                   e.Object,
		"predicate":                e.Predicate,
		"provided_by":              e.ProvidedBy,
		"primary_knowledge_source": e.KnowledgeSource,
	}, e.Attributes)
}

func row(columns []string, fixed map[string]string, attrs graph.Attributes) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		if v, ok := fixed[c]; ok {
			out[i] = v
			continue
		}
		out[i] = strings.Join(attrs.Get(c), ListSeparator)
	}
	return out
}

// Sink pairs the node and edge writers of one output graph.
type Sink struct {
	Nodes *Writer
	Edges *Writer
}

// NewSink creates writers for the node and edge files.
func NewSink(nodesPath, edgesPath string) *Sink {
	return &Sink{
		Nodes: NewWriter(nodesPath, NodeColumns),
		Edges: NewWriter(edgesPath, EdgeColumns),
	}
}

// Write appends every node, then every edge, of g. Both files are opened
// and the rows encoded before either is written, so an unwritable edge file
// leaves the node file untouched.
func (s *Sink) Write(g *graph.Graph) error {
	nodes := make([][]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, NodeRow(n))
	}
	edges := make([][]string, 0, len(g.Edges))
	for _, e := range g.Edges {
		edges = append(edges, EdgeRow(e))
	}

	parts := []struct {
		what string
		w    *Writer
		rows [][]string
	}{
		{"nodes", s.Nodes, nodes},
		{"edges", s.Edges, edges},
	}
	var staged []*pendingAppend
	for _, part := range parts {
		if len(part.rows) == 0 {
			continue
		}
		p, err := part.w.prepare(part.rows)
		if err != nil {
			for _, st := range staged {
				st.abort()
			}
			return fmt.Errorf("writing %s: %w", part.what, err)
		}
		staged = append(staged, p)
	}

	for i, p := range staged {
		if err := p.commit(); err != nil {
			for _, rest := range staged[i+1:] {
				rest.abort()
			}
			return fmt.Errorf("writing %s: %w", filepath.Base(p.path), err)
		}
	}
	return nil
}
