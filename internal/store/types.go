// Package store persists chunk vectors (Collection) and per-document
// tracking rows (SQLiteTracker).
package store

import (
	"context"
	"fmt"
	"time"

	kberrors "github.com/Aman-CERP/academykb/internal/errors"
)

// ChunkRecord is one stored chunk: its text, embedding and flattened metadata.
type ChunkRecord struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]any
}

// Entry is a chunk id with its metadata, without text or embedding.
type Entry struct {
	ID       string
	Metadata map[string]any
}

// QueryResult is one ranked match. Score is cosine similarity clamped to [0,1].
type QueryResult struct {
	ID       string
	Text     string
	Metadata map[string]any
	Score    float32
}

// Filter selects chunks whose metadata equals every key/value pair.
// An empty filter matches everything.
type Filter map[string]any

// Matches reports whether meta satisfies every pair in f.
func (f Filter) Matches(meta map[string]any) bool {
	for k, want := range f {
		got, ok := meta[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares scalar metadata values, treating all numeric kinds alike.
func valuesEqual(a, b any) bool {
	fa, aNum := asFloat(a)
	fb, bNum := asFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// VectorStore is the chunk collection contract used by the indexer and query path.
type VectorStore interface {
	// Upsert writes records keyed by id, replacing existing ones.
	Upsert(ctx context.Context, records []ChunkRecord) error

	// Query returns up to topK chunks nearest to embedding that match filter.
	Query(ctx context.Context, embedding []float32, topK int, filter Filter) ([]QueryResult, error)

	// Delete removes every chunk matching filter and returns how many were removed.
	Delete(ctx context.Context, filter Filter) (int, error)

	// GetAll returns every chunk id with its metadata.
	GetAll(ctx context.Context) ([]Entry, error)

	// Count returns the number of chunks matching filter.
	Count(ctx context.Context, filter Filter) (int, error)

	// Reset removes every chunk.
	Reset(ctx context.Context) error

	Close() error
}

// NewRecords zips parallel slices into records. Mismatched lengths are a
// StoreWriteFailure.
func NewRecords(ids, texts []string, embeddings [][]float32, metas []map[string]any) ([]ChunkRecord, error) {
	n := len(ids)
	if len(texts) != n || len(embeddings) != n || len(metas) != n {
		return nil, kberrors.StoreWriteFailure(fmt.Sprintf(
			"parallel length mismatch: %d ids, %d texts, %d embeddings, %d metadatas",
			n, len(texts), len(embeddings), len(metas)), nil)
	}
	out := make([]ChunkRecord, n)
	for i := range ids {
		out[i] = ChunkRecord{ID: ids[i], Text: texts[i], Embedding: embeddings[i], Metadata: metas[i]}
	}
	return out, nil
}

// Document is the tracking row for one source document.
type Document struct {
	DocID       string
	Title       string
	Path        string
	Source      string
	Tags        []string
	Categories  []string
	URL         string
	VideoURL    string
	LastUpdated string
	Chars       int
	Tokens      int
	ChunkCount  int
	LastIndexed time.Time
	// Approximate is set when Chars and Tokens were estimated by reconciliation.
	Approximate bool
}

// ReconcileOptions carries the chunking parameters used to estimate sizes
// for documents whose chunks lack exact counts.
type ReconcileOptions struct {
	ChunkSize int
	Overlap   int
}

// ReconcileResult summarizes a tracking rebuild.
type ReconcileResult struct {
	Documents   int
	Chunks      int
	Approximate int
	// Skipped counts chunks whose document could not be identified.
	Skipped int
}

// TrackerStats aggregates the documents table.
type TrackerStats struct {
	Documents   int
	Chunks      int
	Tokens      int
	Chars       int
	LastIndexed time.Time
}

// Run modes.
const (
	RunModeRebuild     = "rebuild"
	RunModeIncremental = "incremental"
	RunModeReconcile   = "reconcile"
)

// IndexRun records one indexing pass.
type IndexRun struct {
	RunID      string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Succeeded  int
	Failed     int
	Chunks     int
}

// QueryMiss records a question no chunk answered above the threshold.
type QueryMiss struct {
	ID        string
	AskedAt   time.Time
	Question  string
	BestScore float64
	Threshold float64
}

// Tracker is the document tracking contract.
type Tracker interface {
	UpsertDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, docID string) (*Document, error)
	ListDocuments(ctx context.Context) ([]Document, error)
	DeleteDocument(ctx context.Context, docID string) (bool, error)
	Reconcile(ctx context.Context, entries []Entry, opts ReconcileOptions) (ReconcileResult, error)
	Stats(ctx context.Context) (TrackerStats, error)

	RecordRun(ctx context.Context, run IndexRun) (string, error)
	LastRun(ctx context.Context) (*IndexRun, error)
	RecordMiss(ctx context.Context, miss QueryMiss) error
	RecentMisses(ctx context.Context, limit int) ([]QueryMiss, error)

	Close() error
}

// ErrDimensionMismatch creates the error for an embedding of the wrong length.
func ErrDimensionMismatch(expected, got int) *kberrors.KBError {
	return kberrors.New(kberrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithSuggestion("the embedding model changed; run 'academykb index --clear'")
}
