//go:build cgo

package txt2kgx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/txt2kgx/store"
)

func TestProcessAllWithLedger(t *testing.T) {
	cfg := testConfig(t)
	cfg.LedgerPath = filepath.Join(t.TempDir(), "ledger.db")
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "first")
	b := writeFile(t, dir, "b.txt", "second")

	fp := &fakeProvider{responses: []string{testResponse, "no json", testResponse}}
	p := newTestPipeline(t, cfg, fp)
	ctx := context.Background()

	first, err := p.ProcessAll(ctx, []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Succeeded)
	assert.Equal(t, 1, first.Failed)

	run, err := p.Ledger().GetRun(ctx, first.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	assert.NotEmpty(t, run.FinishedAt)

	outcomes, err := p.Ledger().ListOutcomes(ctx, first.RunID)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Contains(t, string(outcomes[0].Diagnostics), `"unmapped_predicates":["frobs"]`)
	assert.Contains(t, outcomes[1].Error, "payload not found")

	// Second run: a is unchanged and skipped, b failed before and is retried.
	second, err := p.ProcessAll(ctx, []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 1, second.Succeeded)
	assert.Len(t, fp.requests, 3)

	doc, err := p.Ledger().GetDocumentByPath(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDone, doc.Status)
	assert.Equal(t, 2, doc.Nodes)
	assert.Equal(t, 1, doc.Edges)

	// Changed content is processed again.
	require.NoError(t, os.WriteFile(a, []byte("first, revised"), 0o644))
	third, err := p.ProcessAll(ctx, []string{a})
	require.NoError(t, err)
	assert.Equal(t, 1, third.Succeeded)
	assert.Len(t, fp.requests, 4)
}

func TestProcessFileForce(t *testing.T) {
	cfg := testConfig(t)
	s, err := store.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer s.Close()

	path := writeFile(t, t.TempDir(), "a.txt", "text")
	fp := &fakeProvider{responses: []string{testResponse}}
	p, err := New(cfg, WithProvider(fp), WithLedger(s))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.ProcessFile(ctx, path)
	require.NoError(t, err)

	rep, err := p.ProcessFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, rep.Status)

	rep, err = p.ProcessFile(ctx, path, WithForce())
	require.NoError(t, err)
	assert.Equal(t, StatusDone, rep.Status)
	assert.Len(t, fp.requests, 2)

	// The caller owns an injected ledger.
	require.NoError(t, p.Close())
	_, err = s.ListDocuments(ctx)
	assert.NoError(t, err)
}
