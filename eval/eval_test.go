package eval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/txt2kgx"
	"github.com/brunobiangulo/txt2kgx/graph"
)

func sampleGraph() *graph.Graph {
	return &graph.Graph{
		Nodes: []graph.Node{
			{ID: "N:1", Name: "Aspirin", Category: "biolink:Drug"},
			{ID: "N:2", Name: "Headache", Category: "biolink:PhenotypicFeature"},
			{ID: "N:3", Name: "Liver", Category: "biolink:AnatomicalEntity"},
		},
		Edges: []graph.Edge{
			{ID: "E:1", Subject: "N:1", Object: "N:2", Predicate: "biolink:treats"},
			{ID: "E:2", Subject: "N:1", Object: "N:3", Predicate: "biolink:affects"},
		},
	}
}

func TestScoreEntities(t *testing.T) {
	g := sampleGraph()
	s := ScoreEntities(g.Nodes, []GoldEntity{
		{Name: "aspirin", Category: "biolink:Drug"},
		{Name: "headache", Category: "biolink:PhenotypicFeature"},
		{Name: "ibuprofen", Category: "biolink:Drug"},
	})

	assert.Equal(t, 2, s.TruePositives)
	assert.Equal(t, 1, s.FalsePositives)
	assert.Equal(t, 1, s.FalseNegatives)
	assert.Equal(t, []string{"ibuprofen [biolink:Drug]"}, s.Missed)
	assert.Equal(t, []string{"liver [biolink:AnatomicalEntity]"}, s.Spurious)
	assert.InDelta(t, 2.0/3, s.Precision(), 1e-9)
	assert.InDelta(t, 2.0/3, s.Recall(), 1e-9)
	assert.InDelta(t, 2.0/3, s.F1(), 1e-9)
}

func TestScoreEntitiesCategoryMatters(t *testing.T) {
	s := ScoreEntities(sampleGraph().Nodes[:1], []GoldEntity{{Name: "Aspirin", Category: "biolink:ChemicalEntity"}})
	assert.Equal(t, 0, s.TruePositives)
	assert.Zero(t, s.F1())
}

func TestScoreEdges(t *testing.T) {
	s := ScoreEdges(sampleGraph(), []GoldEdge{
		{Subject: "Aspirin", Predicate: "biolink:treats", Object: "headache"},
	})
	assert.Equal(t, 1, s.TruePositives)
	assert.Equal(t, 1, s.FalsePositives)
	assert.Equal(t, 0, s.FalseNegatives)
	assert.Equal(t, 1.0, s.Recall())
	assert.Equal(t, 0.5, s.Precision())

	empty := ScoreEdges(nil, nil)
	assert.Zero(t, empty.F1())
}

func TestNormalizeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  Aspirin ", "aspirin"},
		{"TNF\u2011alpha", "tnf-alpha"},
		{"vitamin  D", "vitamin d"},
		{"zero\u200bwidth", "zerowidth"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeName(tt.in), tt.in)
	}
}

func TestLoadDataset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gold.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: sample
cases:
  - document: docs/aspirin.txt
    entities:
      - {name: Aspirin, category: "biolink:Drug"}
    edges:
      - {subject: Aspirin, predicate: "biolink:treats", object: headache}
  - name: inline
    text: Metformin lowers glucose.
`), 0o644))

	ds, err := LoadDataset(path)
	require.NoError(t, err)
	assert.Equal(t, "sample", ds.Name)
	require.Len(t, ds.Cases, 2)
	assert.Equal(t, filepath.Join(dir, "docs", "aspirin.txt"), ds.Cases[0].Document)
	assert.Equal(t, "aspirin.txt", ds.Cases[0].label(0))
	assert.Equal(t, "inline", ds.Cases[1].label(1))
	assert.Len(t, ds.Cases[0].Edges, 1)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"cases": [{"entities": []}]}`), 0o644))
	_, err = LoadDataset(bad)
	assert.Error(t, err)
}

type fakeExtractor struct {
	graphs map[string]*graph.Graph
}

func (f *fakeExtractor) ProcessText(ctx context.Context, name, text string) (*txt2kgx.Report, error) {
	g, ok := f.graphs[name]
	if !ok {
		err := errors.New("generation failed")
		return &txt2kgx.Report{Document: name, Status: txt2kgx.StatusFailed, Err: err}, err
	}
	return &txt2kgx.Report{Document: name, Status: txt2kgx.StatusDone, Graph: g, PromptTokens: 10, CompletionTokens: 5}, nil
}

func (f *fakeExtractor) ProcessFile(ctx context.Context, path string, opts ...txt2kgx.ProcessOption) (*txt2kgx.Report, error) {
	return f.ProcessText(ctx, filepath.Base(path), "")
}

func TestEvaluatorRun(t *testing.T) {
	x := &fakeExtractor{graphs: map[string]*graph.Graph{
		"good":        sampleGraph(),
		"aspirin.txt": sampleGraph(),
	}}
	ds := Dataset{Name: "sample", Cases: []Case{
		{Name: "good", Text: "a", Edges: []GoldEdge{
			{Subject: "Aspirin", Predicate: "biolink:treats", Object: "Headache"},
			{Subject: "Aspirin", Predicate: "biolink:affects", Object: "Liver"},
		}},
		{Document: "/data/aspirin.txt", Edges: []GoldEdge{
			{Subject: "Aspirin", Predicate: "biolink:causes", Object: "Headache"},
		}},
		{Name: "broken", Text: "c"},
	}}

	r, err := NewEvaluator(x).Run(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 3, r.TotalCases)
	assert.Equal(t, 1, r.Passed)
	assert.Equal(t, 2, r.Failed)
	require.Len(t, r.Results, 3)
	assert.True(t, r.Results[0].Passed)
	assert.Equal(t, 1.0, r.Results[0].Edges.F1())
	assert.False(t, r.Results[1].Passed)
	assert.Equal(t, "aspirin.txt", r.Results[1].Name)
	assert.Equal(t, "generation failed", r.Results[2].Error)

	// Micro totals skip the errored case.
	assert.Equal(t, 2, r.Edges.TruePositives)
	assert.Equal(t, 2, r.Edges.FalsePositives)
	assert.Equal(t, 1, r.Edges.FalseNegatives)
	assert.Equal(t, 20, r.TokenUsage.PromptTokens)

	out := FormatReport(r)
	assert.True(t, strings.HasPrefix(out, "=== Extraction Report: sample ==="))
	assert.Contains(t, out, "[PASS] 1. good")
	assert.Contains(t, out, "missed:   aspirin -biolink:causes-> headache")
	assert.Contains(t, out, "Error: generation failed")
}

func TestEvaluatorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := NewEvaluator(&fakeExtractor{}).Run(ctx, Dataset{Cases: []Case{{Text: "x"}}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.Results)
}
