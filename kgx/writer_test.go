package kgx

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/txt2kgx/graph"
)

func readTSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = '\t'
	records, err := r.ReadAll()
	require.NoError(t, err)
	return records
}

func rows(n int, width int) [][]string {
	out := make([][]string, n)
	for i := range out {
		out[i] = make([]string, width)
		out[i][0] = strings.Repeat("x", i+1)
	}
	return out
}

func TestAppendWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.tsv")
	w := NewWriter(path, NodeColumns)

	require.NoError(t, w.Append(rows(3, len(NodeColumns))))
	require.NoError(t, w.Append(rows(5, len(NodeColumns))))

	records := readTSV(t, path)
	require.Len(t, records, 1+3+5)
	assert.Equal(t, NodeColumns, records[0])
	for _, r := range records[1:] {
		assert.NotEqual(t, "id", r[0])
	}
}

func TestAppendAcrossWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edges.tsv")
	for i := 0; i < 4; i++ {
		require.NoError(t, NewWriter(path, EdgeColumns).Append(rows(2, len(EdgeColumns))))
	}
	records := readTSV(t, path)
	assert.Len(t, records, 1+8)
}

func TestAppendToEmptyFileWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.tsv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, NewWriter(path, []string{"a", "b"}).Append([][]string{{"1", "2"}}))
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, readTSV(t, path))
}

func TestAppendNeverRewritesExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.tsv")
	require.NoError(t, os.WriteFile(path, []byte("a\tb\nold\trow\n"), 0o644))

	require.NoError(t, NewWriter(path, []string{"a", "b"}).Append([][]string{{"new", "row"}}))
	assert.Equal(t, [][]string{{"a", "b"}, {"old", "row"}, {"new", "row"}}, readTSV(t, path))
}

func TestAppendNoRowsIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.tsv")
	require.NoError(t, NewWriter(path, NodeColumns).Append(nil))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAppendRejectsMismatchedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.tsv")
	err := NewWriter(path, []string{"a", "b"}).Append([][]string{{"1", "2"}, {"only one"}})
	assert.ErrorIs(t, err, ErrColumnMismatch)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "nothing is written when validation fails")
}

func TestRowsFromGraph(t *testing.T) {
	n := graph.Node{
		ID:       "MYGRAPH:1",
		Name:     "Aspirin",
		Category: "biolink:Drug",
		Attributes: graph.Attributes{
			"confidence_score":     {"0.9"},
			"evidence_publication": {"PMID:1", "PMID:2"},
			"unrelated":            {"dropped"},
		},
	}
	assert.Equal(t,
		[]string{"MYGRAPH:1", "Aspirin", "biolink:Drug", "0.9", "", "", "", "", "PMID:1|PMID:2", ""},
		NodeRow(n))

	e := graph.Edge{
		ID:              "MYGRAPH:3",
		Subject:         "MYGRAPH:1",
		Object:          "MYGRAPH:2",
		Predicate:       "biolink:treats",
		ProvidedBy:      "article.txt",
		KnowledgeSource: "infores:mygraph",
		Attributes:      graph.Attributes{"evidence_publication": {"PMID:9"}},
	}
	assert.Equal(t,
		[]string{"MYGRAPH:3", "MYGRAPH:1", "MYGRAPH:2", "biolink:treats", "", "article.txt", "PMID:9", "infores:mygraph"},
		EdgeRow(e))
}

func TestSinkWrite(t *testing.T) {
	dir := t.TempDir()
	s := NewSink(filepath.Join(dir, "nodes.tsv"), filepath.Join(dir, "edges.tsv"))
	g := &graph.Graph{
		Nodes: []graph.Node{{ID: "MYGRAPH:1", Name: "A", Category: "biolink:Drug"}, {ID: "MYGRAPH:2", Name: "B", Category: "biolink:Disease"}},
		Edges: []graph.Edge{{ID: "MYGRAPH:3", Subject: "MYGRAPH:1", Object: "MYGRAPH:2", Predicate: "biolink:treats"}},
	}
	require.NoError(t, s.Write(g))
	require.NoError(t, s.Write(g))

	assert.Len(t, readTSV(t, s.Nodes.Path()), 1+4)
	assert.Len(t, readTSV(t, s.Edges.Path()), 1+2)
}

func TestSinkWriteChecksBothFilesFirst(t *testing.T) {
	dir := t.TempDir()
	nodesPath := filepath.Join(dir, "nodes.tsv")
	s := NewSink(nodesPath, filepath.Join(dir, "missing", "edges.tsv"))
	g := &graph.Graph{
		Nodes: []graph.Node{{ID: "MYGRAPH:1", Name: "A", Category: "biolink:Drug"}, {ID: "MYGRAPH:2", Name: "B", Category: "biolink:Disease"}},
		Edges: []graph.Edge{{ID: "MYGRAPH:3", Subject: "MYGRAPH:1", Object: "MYGRAPH:2", Predicate: "biolink:treats"}},
	}

	err := s.Write(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing edges")

	info, err := os.Stat(nodesPath)
	if err == nil {
		assert.Zero(t, info.Size(), "nodes were written although the edge file cannot be opened")
	}

	// Once the edge file is reachable the retry writes each row exactly once.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "missing"), 0o755))
	require.NoError(t, s.Write(g))
	assert.Len(t, readTSV(t, nodesPath), 1+2)
	assert.Len(t, readTSV(t, s.Edges.Path()), 1+1)
}
