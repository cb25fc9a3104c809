package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/academykb/internal/config"
	kberrors "github.com/Aman-CERP/academykb/internal/errors"
	"github.com/Aman-CERP/academykb/internal/store"
)

// MockEmbedder returns a fixed vector per question.
type MockEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *MockEmbedder) Dimensions() int   { return 3 }
func (m *MockEmbedder) ModelName() string { return "mock" }
func (m *MockEmbedder) Close() error      { return nil }

type fixture struct {
	svc      *Service
	vectors  *store.Collection
	tracker  *store.SQLiteTracker
	embedder *MockEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	vectors, err := store.OpenCollection(store.CollectionConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	tracker, err := store.OpenTracker("")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = vectors.Close()
		_ = tracker.Close()
	})

	emb := &MockEmbedder{vectors: map[string][]float32{
		"what aperture for portraits?": {1, 0, 0},
		"how do I clean a sensor?":     {0.5, 0.6, 0.4},
	}}
	svc := NewService(emb, vectors, tracker, config.NewConfig().Query, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return &fixture{svc: svc, vectors: vectors, tracker: tracker, embedder: emb}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	require.NoError(t, f.vectors.Upsert(context.Background(), []store.ChunkRecord{
		{
			ID:        "portraits-0000",
			Text:      "Shoot portraits at f/1.8 to f/2.8.\nA wide aperture blurs the background.",
			Embedding: []float32{1, 0, 0},
			Metadata: map[string]any{
				"doc_id": "portraits", "chunk_index": 0, "title": "Portrait Apertures",
				"tags": "aperture, portrait", "categories": "Lighting", "source_url": "/raw/portraits.md",
				"last_updated": "2025-11-02", "relpath": "portraits.md", "filename": "portraits.md", "ext": ".md",
			},
		},
		{
			ID:        "iso-0000",
			Text:      "ISO controls sensor gain.",
			Embedding: []float32{0, 1, 0},
			Metadata:  map[string]any{"doc_id": "iso", "chunk_index": 0, "filename": "iso.txt"},
		},
		{
			ID:        "misc-0000",
			Text:      "Untitled note",
			Embedding: []float32{0, 0, 1},
			Metadata:  map[string]any{"doc_id": "misc", "chunk_index": 0},
		},
	}))
}

func TestService_Query_NotIndexed(t *testing.T) {
	// Given: an empty collection
	f := newFixture(t)

	// When: querying
	resp, err := f.svc.Query(context.Background(), Request{Question: "what aperture for portraits?"})

	// Then: the status says so without an error
	require.NoError(t, err)
	assert.Equal(t, StatusNotIndexed, resp.Status)
	assert.Empty(t, resp.Results)
	assert.Empty(t, resp.Suggestions)
}

func TestService_Query_OK(t *testing.T) {
	// Given: a seeded collection
	f := newFixture(t)
	f.seed(t)

	// When: asking a question that matches a chunk exactly
	resp, err := f.svc.Query(context.Background(), Request{Question: "  what aperture for portraits?  ", TopK: 2})

	// Then: results are ranked with citation metadata
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, "what aperture for portraits?", resp.Question)
	assert.InDelta(t, 1.0, resp.TopScore, 1e-5)
	assert.Equal(t, 0.78, resp.Threshold)
	require.Len(t, resp.Results, 2)

	top := resp.Results[0]
	assert.Equal(t, "portraits-0000", top.ChunkID)
	assert.Equal(t, "Portrait Apertures", top.Title)
	assert.Equal(t, []string{"aperture", "portrait"}, top.Tags)
	assert.Equal(t, []string{"Lighting"}, top.Categories)
	assert.Equal(t, "/raw/portraits.md", top.SourceURL)
	assert.Equal(t, ".md", top.Ext)
}

func TestService_Query_NoMatchSuggestsAndRecordsMiss(t *testing.T) {
	// Given: a seeded collection and a question that scores about 0.68 at best
	f := newFixture(t)
	f.seed(t)

	// When: querying in strict mode
	resp, err := f.svc.Query(context.Background(), Request{Question: "how do I clean a sensor?"})

	// Then: no results, three suggestions, and a recorded miss
	require.NoError(t, err)
	assert.Equal(t, StatusNoMatch, resp.Status)
	assert.Empty(t, resp.Results)
	assert.InDelta(t, 0.684, resp.TopScore, 1e-3)
	require.Len(t, resp.Suggestions, 3)

	assert.Equal(t, "iso.txt", resp.Suggestions[0].Title, "falls back to the file name")
	assert.Equal(t, "Shoot portraits at f/1.8 to f/2.8.", resp.Suggestions[1].Snippet)
	assert.Equal(t, "Untitled", resp.Suggestions[2].Title)

	misses, err := f.tracker.RecentMisses(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, misses, 1)
	assert.Equal(t, "how do I clean a sensor?", misses[0].Question)
	assert.InDelta(t, 0.684, misses[0].BestScore, 1e-3)
	assert.Equal(t, 0.78, misses[0].Threshold)
}

func TestService_Query_NonStrictReturnsResults(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	strict := false

	resp, err := f.svc.Query(context.Background(), Request{Question: "how do I clean a sensor?", Strict: &strict})

	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	assert.False(t, resp.Strict)
	assert.NotEmpty(t, resp.Results)
}

func TestService_Query_Filter(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	resp, err := f.svc.Query(context.Background(), Request{
		Question: "what aperture for portraits?",
		Filter:   store.Filter{"doc_id": "misc"},
		Strict:   new(bool),
	})

	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "misc-0000", resp.Results[0].ChunkID)
}

func TestService_Query_EmptyQuestion(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Query(context.Background(), Request{Question: "   "})

	require.Error(t, err)
	assert.Equal(t, kberrors.ErrCodeQueryEmpty, kberrors.GetCode(err))
}

func TestService_Query_EmbeddingFailure(t *testing.T) {
	// Given: a provider that fails
	f := newFixture(t)
	f.seed(t)
	f.embedder.err = errors.New("connection refused")

	// When: querying
	_, err := f.svc.Query(context.Background(), Request{Question: "anything"})

	// Then: the failure is classified
	require.Error(t, err)
	assert.Equal(t, kberrors.KindEmbeddingFailure, kberrors.GetKind(err))
}

func TestService_Stats(t *testing.T) {
	// Given: a seeded collection and one tracked document
	f := newFixture(t)
	f.seed(t)
	indexed := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, f.tracker.UpsertDocument(context.Background(), store.Document{
		DocID: "portraits", Title: "Portrait Apertures", ChunkCount: 1, LastIndexed: indexed,
	}))

	// When: reading stats
	st, err := f.svc.Stats(context.Background())

	// Then: counts come from both stores
	require.NoError(t, err)
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, 1, st.Documents)
	assert.True(t, indexed.Equal(st.LastIndexed))
	assert.Equal(t, 0.78, st.Threshold)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "first line", snippet("  first line\nsecond", 200))
	assert.Equal(t, "abc", snippet("abcdef", 3))
	assert.Equal(t, "éé", snippet("ééé", 2))
	assert.Equal(t, strings.Repeat("x", 200), snippet(strings.Repeat("x", 500), 200))
	assert.Empty(t, snippet("", 200))
}

func TestSourceOf_TitleFallback(t *testing.T) {
	assert.Equal(t, "Exposure", sourceOf(map[string]any{"title": "Exposure", "filename": "e.md"}).Title)
	assert.Equal(t, "e.md", sourceOf(map[string]any{"filename": "e.md"}).Title)
	assert.Equal(t, "Untitled", sourceOf(nil).Title)
}
