//go:build cgo

package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewAppliesMigrations(t *testing.T) {
	s := newTestStore(t)
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
	assert.NotNil(t, s.DB())
}

func TestNewCreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "ledger.db")
	s, err := New(dbPath)
	require.NoError(t, err)
	defer s.Close()
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	s, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(dbPath)
	require.NoError(t, err)
	defer s.Close()
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestUpsertDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertDocument(ctx, Document{Path: "/corpus/a.txt", Filename: "a.txt", Format: "txt", ContentHash: "h1"})
	require.NoError(t, err)

	again, err := s.UpsertDocument(ctx, Document{Path: "/corpus/a.txt", Filename: "a.txt", Format: "txt", ContentHash: "h2"})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	doc, err := s.GetDocumentByPath(ctx, "/corpus/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "h2", doc.ContentHash)
	assert.Equal(t, StatusPending, doc.Status)

	_, err = s.GetDocumentByPath(ctx, "/corpus/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	runID, err := s.StartRun(ctx, "nodes.tsv", "edges.tsv")
	require.NoError(t, err)

	ok, err := s.UpsertDocument(ctx, Document{Path: "/c/ok.txt", Filename: "ok.txt", Format: "txt", ContentHash: "h-ok"})
	require.NoError(t, err)
	bad, err := s.UpsertDocument(ctx, Document{Path: "/c/bad.txt", Filename: "bad.txt", Format: "txt", ContentHash: "h-bad"})
	require.NoError(t, err)

	diag := map[string]any{"edges_emitted": 2, "unmapped_predicates": []string{"cures"}}
	_, err = s.RecordOutcome(ctx, Outcome{RunID: runID, DocumentID: ok, Status: StatusDone}, diag, 3, 2)
	require.NoError(t, err)
	_, err = s.RecordOutcome(ctx, Outcome{RunID: runID, DocumentID: bad, Status: StatusFailed, Error: "payload not found"}, nil, 0, 0)
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, runID))

	run, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 0, run.Skipped)
	assert.NotEmpty(t, run.FinishedAt)

	outcomes, err := s.ListOutcomes(ctx, runID)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	var got map[string]any
	require.NoError(t, json.Unmarshal(outcomes[0].Diagnostics, &got))
	assert.EqualValues(t, 2, got["edges_emitted"])
	assert.Equal(t, "payload not found", outcomes[1].Error)
	assert.Nil(t, outcomes[1].Diagnostics)

	doc, err := s.GetDocumentByPath(ctx, "/c/ok.txt")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, doc.Status)
	assert.Equal(t, 3, doc.Nodes)
	assert.Equal(t, 2, doc.Edges)

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	_, err = s.GetRun(ctx, runID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAlreadyProcessed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	done, err := s.AlreadyProcessed(ctx, "/c/a.txt", "h1")
	require.NoError(t, err)
	assert.False(t, done)

	runID, err := s.StartRun(ctx, "n.tsv", "e.tsv")
	require.NoError(t, err)
	id, err := s.UpsertDocument(ctx, Document{Path: "/c/a.txt", Filename: "a.txt", Format: "txt", ContentHash: "h1"})
	require.NoError(t, err)

	done, err = s.AlreadyProcessed(ctx, "/c/a.txt", "h1")
	require.NoError(t, err)
	assert.False(t, done, "pending documents are not processed")

	_, err = s.RecordOutcome(ctx, Outcome{RunID: runID, DocumentID: id, Status: StatusDone}, nil, 1, 0)
	require.NoError(t, err)

	done, err = s.AlreadyProcessed(ctx, "/c/a.txt", "h1")
	require.NoError(t, err)
	assert.True(t, done)

	done, err = s.AlreadyProcessed(ctx, "/c/a.txt", "h2")
	require.NoError(t, err)
	assert.False(t, done, "changed content is reprocessed")

	_, err = s.RecordOutcome(ctx, Outcome{RunID: runID, DocumentID: id, Status: StatusSkipped}, nil, 0, 0)
	require.NoError(t, err)
	doc, err := s.GetDocumentByPath(ctx, "/c/a.txt")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, doc.Status, "a skip leaves the document status alone")
}

func TestHashes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	h, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h)
	assert.Equal(t, h, HashContent([]byte("abc")))
}
