package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/academykb/internal/store"
)

func TestCheck_Consistent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.write(t, "a.md", words(1200))
	h.write(t, "empty.md", "")
	_, err := h.ix.Rebuild(ctx)
	require.NoError(t, err)

	report, err := h.ix.Check(ctx)

	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 2, report.Chunks)
}

func TestCheck_ReportsDrift(t *testing.T) {
	// Given: three documents, each drifted differently
	ctx := context.Background()
	h := newHarness(t)
	untracked := h.ix.IndexFile(ctx, h.write(t, "untracked.md", words(10)))
	missing := h.ix.IndexFile(ctx, h.write(t, "missing.md", words(10)))
	mismatch := h.ix.IndexFile(ctx, h.write(t, "mismatch.md", words(10)))

	_, err := h.tracker.DeleteDocument(ctx, untracked.DocID)
	require.NoError(t, err)
	_, err = h.vectors.Delete(ctx, store.Filter{"doc_id": missing.DocID})
	require.NoError(t, err)
	doc, _ := h.tracker.GetDocument(ctx, mismatch.DocID)
	doc.ChunkCount = 4
	require.NoError(t, h.tracker.UpsertDocument(ctx, *doc))

	// When: checking
	report, err := h.ix.Check(ctx)

	// Then: each drift is classified
	require.NoError(t, err)
	require.Len(t, report.Inconsistencies, 3)
	byDoc := make(map[string]Inconsistency)
	for _, inc := range report.Inconsistencies {
		byDoc[inc.DocID] = inc
	}
	assert.Equal(t, InconsistencyUntracked, byDoc[untracked.DocID].Type)
	assert.Equal(t, InconsistencyMissingChunks, byDoc[missing.DocID].Type)
	assert.Equal(t, InconsistencyCountMismatch, byDoc[mismatch.DocID].Type)
	assert.Equal(t, 4, byDoc[mismatch.DocID].Tracked)
	assert.Equal(t, 1, byDoc[mismatch.DocID].Actual)
	assert.Equal(t, "count_mismatch", InconsistencyCountMismatch.String())
}

func TestReconcile_RebuildsRowsFromChunks(t *testing.T) {
	// Given: an indexed document whose tracking row was lost
	ctx := context.Background()
	h := newHarness(t)
	res := h.ix.IndexFile(ctx, h.write(t, "doc.md", "---\ntitle: Metering\n---\n"+words(2500)))
	require.True(t, res.OK())
	_, err := h.tracker.DeleteDocument(ctx, res.DocID)
	require.NoError(t, err)

	// When: reconciling
	out, err := h.ix.Reconcile(ctx)

	// Then: the row is rebuilt with exact counts from chunk metadata
	require.NoError(t, err)
	assert.Equal(t, 1, out.Documents)
	assert.Equal(t, 3, out.Chunks)
	assert.Zero(t, out.Approximate)

	doc, err := h.tracker.GetDocument(ctx, res.DocID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Metering", doc.Title)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Equal(t, 2500, doc.Tokens)
	assert.False(t, doc.Approximate)

	report, err := h.ix.Check(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())

	run, _ := h.tracker.LastRun(ctx)
	assert.Equal(t, store.RunModeReconcile, run.Mode)
}

func TestReconcile_EstimatesMissingCounts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	for i, id := range []string{"legacy-0000", "legacy-0001", "legacy-0002"} {
		require.NoError(t, h.vectors.Upsert(ctx, []store.ChunkRecord{{
			ID: id, Text: "t", Embedding: []float32{1, 2, 3},
			Metadata: map[string]any{"doc_id": "legacy", "chunk_index": i},
		}}))
	}

	out, err := h.ix.Reconcile(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, out.Approximate)
	doc, _ := h.tracker.GetDocument(ctx, "legacy")
	require.NotNil(t, doc)
	assert.True(t, doc.Approximate)
	assert.Equal(t, 2800, doc.Tokens)
}
