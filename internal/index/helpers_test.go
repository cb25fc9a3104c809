package index

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/academykb/internal/chunk"
	"github.com/Aman-CERP/academykb/internal/config"
	"github.com/Aman-CERP/academykb/internal/embed"
	kberrors "github.com/Aman-CERP/academykb/internal/errors"
	"github.com/Aman-CERP/academykb/internal/extract"
	"github.com/Aman-CERP/academykb/internal/store"
	"github.com/Aman-CERP/academykb/internal/ui"
)

// MockEmbedder returns scripted errors first, then deterministic vectors.
type MockEmbedder struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (m *MockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{1, float32(len(t)%7) + 1, float32(i) + 1}
	}
	return out, nil
}

func (m *MockEmbedder) Dimensions() int   { return 3 }
func (m *MockEmbedder) ModelName() string { return "mock" }
func (m *MockEmbedder) Close() error      { return nil }

func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockVectorStore wraps a real store and fails writes on demand.
type MockVectorStore struct {
	store.VectorStore
	upsertErr error
}

func (m *MockVectorStore) Upsert(ctx context.Context, records []store.ChunkRecord) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	return m.VectorStore.Upsert(ctx, records)
}

// recordingRenderer captures progress calls.
type recordingRenderer struct {
	mu       sync.Mutex
	events   []ui.ProgressEvent
	errors   []ui.ErrorEvent
	complete *ui.CompletionStats
}

func (r *recordingRenderer) Start(context.Context) error { return nil }
func (r *recordingRenderer) Stop() error                 { return nil }

func (r *recordingRenderer) UpdateProgress(ev ui.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingRenderer) AddError(ev ui.ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, ev)
}

func (r *recordingRenderer) Complete(stats ui.CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete = &stats
}

type harness struct {
	ix       *Indexer
	root     string
	cfg      *config.Config
	vectors  *store.Collection
	tracker  *store.SQLiteTracker
	progress *recordingRenderer
}

type harnessOption func(*harness, *Dependencies)

func withEmbedder(e embed.Embedder) harnessOption {
	return func(_ *harness, d *Dependencies) { d.Embedder = e }
}

func withVectors(wrap func(store.VectorStore) store.VectorStore) harnessOption {
	return func(_ *harness, d *Dependencies) { d.Vectors = wrap(d.Vectors) }
}

func withConfig(fn func(*config.Config)) harnessOption {
	return func(h *harness, _ *Dependencies) { fn(h.cfg) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	dir := t.TempDir()

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

	chunker, err := chunk.New(
		chunk.WithChunkSize(cfg.Index.ChunkSize),
		chunk.WithOverlap(cfg.Index.ChunkOverlap),
		chunk.WithTokenizer(chunk.NewWordTokenizer()))
	require.NoError(t, err)

	h := &harness{root: cfg.Paths.RawRoot, cfg: cfg, vectors: vectors, tracker: tracker, progress: &recordingRenderer{}}
	deps := Dependencies{
		Extractor: extract.New(),
		Chunker:   chunker,
		Embedder:  &MockEmbedder{},
		Vectors:   vectors,
		Tracker:   tracker,
		Config:    cfg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Progress:  h.progress,
	}
	for _, opt := range opts {
		opt(h, &deps)
	}

	h.ix, err = New(deps)
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

func (h *harness) chunkCount(t *testing.T, docID string) int {
	t.Helper()
	n, err := h.vectors.Count(context.Background(), store.Filter{"doc_id": docID})
	require.NoError(t, err)
	return n
}

// words returns n distinct whitespace-separated words.
func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func rateLimited() error {
	return kberrors.New(kberrors.ErrCodeEmbedRateLimited, "rate limited", nil)
}
