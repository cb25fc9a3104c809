package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestTracker(t *testing.T) *SQLiteTracker {
	t.Helper()
	tr, err := OpenTracker(filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func sampleDoc(id string) Document {
	return Document{
		DocID:       id,
		Title:       "Exposure triangle",
		Path:        "raw/" + id + ".md",
		Source:      "doc",
		Tags:        []string{"exposure", "basics"},
		Categories:  []string{"fundamentals"},
		URL:         "https://academy.example/exposure",
		LastUpdated: "2025-01-02",
		Chars:       4000,
		Tokens:      1000,
		ChunkCount:  1,
		LastIndexed: time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
	}
}

func TestTracker_UpsertReplacesWholeRow(t *testing.T) {
	// Given: a stored document
	ctx := context.Background()
	tr := openTestTracker(t)
	require.NoError(t, tr.UpsertDocument(ctx, sampleDoc("d1")))

	// When: upserting a row with fewer fields
	require.NoError(t, tr.UpsertDocument(ctx, Document{DocID: "d1", Title: "New", ChunkCount: 3}))

	// Then: every column is replaced, not merged
	got, err := tr.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, 3, got.ChunkCount)
	assert.Empty(t, got.Tags)
	assert.Empty(t, got.URL)
	assert.False(t, got.LastIndexed.IsZero())
}

func TestTracker_RoundTrip(t *testing.T) {
	ctx := context.Background()
	tr := openTestTracker(t)
	doc := sampleDoc("d1")

	require.NoError(t, tr.UpsertDocument(ctx, doc))
	got, err := tr.GetDocument(ctx, "d1")

	require.NoError(t, err)
	assert.Equal(t, doc, *got)
}

func TestTracker_GetMissing(t *testing.T) {
	got, err := openTestTracker(t).GetDocument(context.Background(), "nope")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTracker_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	tr := openTestTracker(t)
	require.NoError(t, tr.UpsertDocument(ctx, sampleDoc("d1")))

	deleted, err := tr.DeleteDocument(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = tr.DeleteDocument(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestTracker_ListDocumentsOrderedByPath(t *testing.T) {
	ctx := context.Background()
	tr := openTestTracker(t)
	require.NoError(t, tr.UpsertDocument(ctx, sampleDoc("zz")))
	require.NoError(t, tr.UpsertDocument(ctx, sampleDoc("aa")))

	docs, err := tr.ListDocuments(ctx)

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "aa", docs[0].DocID)
}

func TestTracker_ReconcileExactAndApproximate(t *testing.T) {
	// Given: a stale row and chunks for two documents, one without exact counts
	ctx := context.Background()
	tr := openTestTracker(t)
	require.NoError(t, tr.UpsertDocument(ctx, sampleDoc("stale")))
	entries := []Entry{
		{ID: "exact-0000", Metadata: map[string]any{
			"doc_id": "exact", "chunk_index": int64(0), "title": "Exact",
			"tags": "light, color", "doc_chars": int64(1234), "doc_tokens": int64(300),
			"indexed_at": "2025-05-01T10:00:00Z",
		}},
		{ID: "approx-0000", Metadata: map[string]any{"doc_id": "approx", "chunk_index": int64(0), "title": "Approx"}},
		{ID: "approx-0001", Metadata: map[string]any{"doc_id": "approx", "chunk_index": int64(1)}},
		{ID: "approx-0002", Metadata: map[string]any{"chunk_index": int64(2)}},
		{ID: "orphan", Metadata: map[string]any{}},
	}

	// When: reconciling with size 1000 and overlap 100
	res, err := tr.Reconcile(ctx, entries, ReconcileOptions{ChunkSize: 1000, Overlap: 100})

	// Then: rows are rebuilt from chunks
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Documents: 2, Chunks: 4, Approximate: 1, Skipped: 1}, res)

	stale, _ := tr.GetDocument(ctx, "stale")
	assert.Nil(t, stale)

	exact, err := tr.GetDocument(ctx, "exact")
	require.NoError(t, err)
	assert.Equal(t, 1234, exact.Chars)
	assert.Equal(t, 300, exact.Tokens)
	assert.False(t, exact.Approximate)
	assert.Equal(t, []string{"light", "color"}, exact.Tags)
	assert.Equal(t, time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC), exact.LastIndexed)

	approx, err := tr.GetDocument(ctx, "approx")
	require.NoError(t, err)
	assert.Equal(t, 3, approx.ChunkCount)
	assert.Equal(t, 2800, approx.Tokens)
	assert.Equal(t, 11200, approx.Chars)
	assert.True(t, approx.Approximate)
	assert.Equal(t, "Approx", approx.Title)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(0, 1000, 100))
	assert.Equal(t, 1000, EstimateTokens(1, 1000, 100))
	assert.Equal(t, 1900, EstimateTokens(2, 1000, 100))
	assert.Equal(t, 0, EstimateTokens(3, 10, 100))
}

func TestTracker_Stats(t *testing.T) {
	ctx := context.Background()
	tr := openTestTracker(t)
	require.NoError(t, tr.UpsertDocument(ctx, sampleDoc("a")))
	require.NoError(t, tr.UpsertDocument(ctx, sampleDoc("b")))

	s, err := tr.Stats(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, s.Documents)
	assert.Equal(t, 2, s.Chunks)
	assert.Equal(t, 2000, s.Tokens)
	assert.Equal(t, 8000, s.Chars)
	assert.Equal(t, time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC), s.LastIndexed)
}

func TestTracker_StatsEmpty(t *testing.T) {
	s, err := openTestTracker(t).Stats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, TrackerStats{}, s)
}

func TestTracker_Runs(t *testing.T) {
	ctx := context.Background()
	tr := openTestTracker(t)

	none, err := tr.LastRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = tr.RecordRun(ctx, IndexRun{Mode: RunModeRebuild, StartedAt: base, FinishedAt: base.Add(time.Minute), Total: 2, Succeeded: 2})
	require.NoError(t, err)
	id, err := tr.RecordRun(ctx, IndexRun{Mode: RunModeIncremental, StartedAt: base.Add(time.Hour), FinishedAt: base.Add(2 * time.Hour), Total: 1, Failed: 1})
	require.NoError(t, err)
	assert.Len(t, id, 36)

	last, err := tr.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, last.RunID)
	assert.Equal(t, RunModeIncremental, last.Mode)
	assert.Equal(t, 1, last.Failed)
}

func TestTracker_Misses(t *testing.T) {
	ctx := context.Background()
	tr := openTestTracker(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, tr.RecordMiss(ctx, QueryMiss{AskedAt: base, Question: "old", BestScore: 0.4, Threshold: 0.78}))
	require.NoError(t, tr.RecordMiss(ctx, QueryMiss{AskedAt: base.Add(time.Hour), Question: "new", BestScore: 0.5, Threshold: 0.78}))

	misses, err := tr.RecentMisses(ctx, 10)
	require.NoError(t, err)
	require.Len(t, misses, 2)
	assert.Equal(t, "new", misses[0].Question)
	assert.InDelta(t, 0.5, misses[0].BestScore, 1e-9)
	assert.NotEmpty(t, misses[0].ID)
}

func TestTracker_InMemoryAndClosed(t *testing.T) {
	tr, err := OpenTracker("")
	require.NoError(t, err)
	require.NoError(t, tr.UpsertDocument(context.Background(), sampleDoc("m")))
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, err = tr.GetDocument(context.Background(), "m")
	assert.Error(t, err)
}
