package mcp

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/academykb/internal/async"
	"github.com/Aman-CERP/academykb/internal/chunk"
	"github.com/Aman-CERP/academykb/internal/config"
	"github.com/Aman-CERP/academykb/internal/extract"
	"github.com/Aman-CERP/academykb/internal/index"
	"github.com/Aman-CERP/academykb/internal/query"
	"github.com/Aman-CERP/academykb/internal/store"
)

// MockEmbedder maps texts to axis vectors by keyword so similarities are exact.
type MockEmbedder struct{}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "aperture"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(t, "iso"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i], _ = m.Embed(ctx, text)
	}
	return out, nil
}

func (m *MockEmbedder) Dimensions() int   { return 3 }
func (m *MockEmbedder) ModelName() string { return "mock" }
func (m *MockEmbedder) Close() error      { return nil }

type harness struct {
	srv       *Server
	cfg       *config.Config
	root      string
	ix        *index.Indexer
	tracker   *store.SQLiteTracker
	reindexer *async.Reindexer
}

type harnessOption func(*harness, *Dependencies)

func withRebuild(fn async.RebuildFunc) harnessOption {
	return func(h *harness, d *Dependencies) {
		d.Reindexer.Rebuild = fn
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.NewConfig()
	cfg.Paths.RawRoot = filepath.Join(dir, "raw")
	cfg.Paths.CollectionDir = filepath.Join(dir, "academy_kb")
	cfg.Paths.DatabasePath = filepath.Join(dir, "academykb.db")
	require.NoError(t, os.MkdirAll(cfg.Paths.RawRoot, 0755))

	vectors, err := store.OpenCollection(store.CollectionConfig{Dir: cfg.Paths.CollectionDir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	tracker, err := store.OpenTracker(cfg.Paths.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracker.Close() })

	chunker, err := chunk.New(chunk.WithChunkSize(50), chunk.WithOverlap(5), chunk.WithTokenizer(chunk.NewWordTokenizer()))
	require.NoError(t, err)

	embedder := &MockEmbedder{}
	extractor := extract.New()
	ix, err := index.New(index.Dependencies{
		Extractor: extractor,
		Chunker:   chunker,
		Embedder:  embedder,
		Vectors:   vectors,
		Tracker:   tracker,
		Config:    cfg,
		Logger:    logger,
	})
	require.NoError(t, err)

	reindexer := async.NewReindexer(cfg.Paths.CollectionDir, ix.Rebuild, logger)
	deps := Dependencies{
		Query:     query.NewService(embedder, vectors, tracker, cfg.Query, logger),
		Indexer:   ix,
		Reindexer: reindexer,
		Config:    cfg,
		Tracker:   tracker,
		Extractor: extractor,
		Embedder:  embedder,
		Logger:    logger,
	}
	h := &harness{cfg: cfg, root: cfg.Paths.RawRoot, ix: ix, tracker: tracker, reindexer: reindexer}
	for _, opt := range opts {
		opt(h, &deps)
	}

	h.srv, err = NewServer(deps)
	require.NoError(t, err)
	return h
}

// write creates a file under the raw root and returns its path.
func (h *harness) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(h.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// seed indexes an aperture lesson and an ISO lesson.
func (h *harness) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for rel, body := range map[string]string{
		"exposure/aperture.md": "---\ntitle: Aperture Basics\nsource: lesson\ntags: [exposure, aperture]\n---\nAperture controls depth of field.\nWide apertures blur the background.",
		"exposure/iso.md":      "---\ntitle: ISO Explained\nsource: lesson\n---\nISO sets sensor sensitivity.\nHigh ISO adds noise.",
	} {
		res := h.ix.IndexFile(ctx, h.write(t, rel, body))
		require.True(t, res.OK(), res.Error)
	}
}
