// Package index drives files through extraction, chunking, embedding and
// both stores. It owns the full rebuild, single-file indexing, deletion and
// the consistency tools that repair drift between the two stores.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/academykb/internal/chunk"
	"github.com/Aman-CERP/academykb/internal/config"
	"github.com/Aman-CERP/academykb/internal/docid"
	"github.com/Aman-CERP/academykb/internal/embed"
	kberrors "github.com/Aman-CERP/academykb/internal/errors"
	"github.com/Aman-CERP/academykb/internal/extract"
	"github.com/Aman-CERP/academykb/internal/metadata"
	"github.com/Aman-CERP/academykb/internal/store"
	"github.com/Aman-CERP/academykb/internal/ui"
)

// Stage is a state in the per-file pipeline.
type Stage string

const (
	StageDiscovered      Stage = "discovered"
	StageExtracted       Stage = "extracted"
	StageChunked         Stage = "chunked"
	StageEmbedded        Stage = "embedded"
	StageVectorWritten   Stage = "vector-written"
	StageTrackingWritten Stage = "tracking-written"
	StageDone            Stage = "done"
)

// Status is the outcome of indexing one file.
type Status string

const (
	StatusIndexed Status = "indexed"
	StatusError   Status = "error"
)

// FileResult reports what happened to one file. It is a value, not an
// error, so callers can map it straight to a response.
type FileResult struct {
	Status Status `json:"status"`
	Path   string `json:"path"`
	DocID  string `json:"doc_id"`
	Title  string `json:"title,omitempty"`
	Chunks int    `json:"chunks"`
	Tokens int    `json:"tokens"`
	Chars  int    `json:"chars"`

	// Stage is the last state the file reached. On failure it is the state
	// the file was in when the next transition failed.
	Stage Stage         `json:"stage"`
	Kind  kberrors.Kind `json:"kind,omitempty"`
	Error string        `json:"error,omitempty"`

	Duration time.Duration `json:"duration"`
}

// OK reports whether the file was indexed.
func (r FileResult) OK() bool { return r.Status == StatusIndexed }

// Extractor turns a file into front matter and body text.
type Extractor interface {
	Extract(path string) (extract.Result, error)
}

// Splitter cuts text into token windows.
type Splitter interface {
	Split(text string) []chunk.Chunk
	Size() int
	Overlap() int
}

// Dependencies contains the injected collaborators for an Indexer.
type Dependencies struct {
	Extractor Extractor
	Chunker   Splitter
	Embedder  embed.Embedder
	Vectors   store.VectorStore
	Tracker   store.Tracker
	Config    *config.Config

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Progress receives rebuild progress. Optional.
	Progress ui.Renderer
}

// Indexer runs the ingestion pipeline. Runs are sequential; callers that
// need mutual exclusion across runs use the async package. Writes for a
// single document are serialized, so a file indexed by the watcher while a
// rebuild runs never interleaves with the rebuild's own writes.
type Indexer struct {
	mu sync.Mutex

	extractor Extractor
	chunker   Splitter
	embedder  embed.Embedder
	vectors   store.VectorStore
	tracker   store.Tracker
	cfg       *config.Config
	log       *slog.Logger
	progress  ui.Renderer
	now       func() time.Time
	maxChunks int
}

// New creates an Indexer. Every collaborator except Logger and Progress is required.
func New(deps Dependencies) (*Indexer, error) {
	if deps.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if deps.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Vectors == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		vectors:   deps.Vectors,
		tracker:   deps.Tracker,
		cfg:       deps.Config,
		log:       logger,
		progress:  deps.Progress,
		now:       time.Now,
		maxChunks: docid.MaxChunks,
	}, nil
}

// IndexFile runs one file through the pipeline. It never returns an error:
// failures come back as a FileResult with Status "error". Writes committed
// before a failure are not rolled back; Reconcile repairs the tracking side.
func (ix *Indexer) IndexFile(ctx context.Context, path string) FileResult {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.indexFile(ctx, path)
}

func (ix *Indexer) indexFile(ctx context.Context, path string) FileResult {
	start := ix.now()
	res := FileResult{Path: path, DocID: docid.DocID(path), Stage: StageDiscovered}

	fail := func(err error) FileResult {
		res.Status = StatusError
		res.Kind = kberrors.GetKind(err)
		res.Error = err.Error()
		res.Duration = time.Since(start)
		ix.log.Warn("index_file_failed",
			slog.String("path", path),
			slog.String("doc_id", res.DocID),
			slog.String("stage", string(res.Stage)),
			slog.String("kind", string(res.Kind)),
			slog.String("error", res.Error))
		return res
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail(kberrors.IOFailure(path, err))
	}
	if info.IsDir() {
		return fail(kberrors.IOFailure(path, fmt.Errorf("is a directory")))
	}

	extracted, err := ix.extractor.Extract(path)
	if err != nil {
		return fail(err)
	}
	meta := metadata.FromFrontMatter(extracted.Meta, metadata.FileInfo{
		Path:    path,
		Root:    ix.cfg.Paths.RawRoot,
		ModTime: info.ModTime(),
	})
	res.Title = meta.Title
	res.Stage = StageExtracted

	chunks := ix.chunker.Split(extracted.Body)
	if len(chunks) > ix.maxChunks {
		return fail(kberrors.ValidationError(
			fmt.Sprintf("document splits into %d chunks, the limit is %d", len(chunks), ix.maxChunks), nil).
			WithSuggestion("split the file or raise index.chunk_size"))
	}
	res.Chunks = len(chunks)
	res.Chars = utf8.RuneCountInString(extracted.Body)
	if n := len(chunks); n > 0 {
		res.Tokens = chunks[n-1].End
	}
	res.Stage = StageChunked

	var embeddings [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		embeddings, err = ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if _, ok := kberrors.As(err); !ok {
				err = kberrors.EmbeddingFailure("embed "+path, err)
			}
			return fail(err)
		}
		if len(embeddings) != len(chunks) {
			return fail(kberrors.New(kberrors.ErrCodeEmbedResultMalformed,
				fmt.Sprintf("expected %d embeddings, got %d", len(chunks), len(embeddings)), nil))
		}
	}
	res.Stage = StageEmbedded

	indexedAt := ix.now().UTC()
	records := chunkRecords(res, meta, chunks, embeddings, indexedAt)

	// Drop the previous chunk set so a shorter document leaves no stale ids.
	if _, err := ix.vectors.Delete(ctx, store.Filter{metadata.KeyDocID: res.DocID}); err != nil {
		return fail(storeWriteError("delete previous chunks", err))
	}
	if err := ix.vectors.Upsert(ctx, records); err != nil {
		return fail(storeWriteError("upsert chunks", err))
	}
	res.Stage = StageVectorWritten

	doc := store.Document{
		DocID:       res.DocID,
		Title:       meta.Title,
		Path:        meta.Path,
		Source:      meta.Source,
		Tags:        meta.Tags,
		Categories:  meta.Categories,
		URL:         meta.URL,
		VideoURL:    meta.VideoURL,
		LastUpdated: meta.LastUpdated,
		Chars:       res.Chars,
		Tokens:      res.Tokens,
		ChunkCount:  res.Chunks,
		LastIndexed: indexedAt,
	}
	if err := ix.tracker.UpsertDocument(ctx, doc); err != nil {
		return fail(storeWriteError("upsert document row", err))
	}
	res.Stage = StageTrackingWritten

	res.Stage = StageDone
	res.Status = StatusIndexed
	res.Duration = time.Since(start)
	ix.log.Info("index_file_complete",
		slog.String("path", path),
		slog.String("doc_id", res.DocID),
		slog.Int("chunks", res.Chunks),
		slog.Int("tokens", res.Tokens),
		slog.Int64("duration_ms", res.Duration.Milliseconds()))
	return res
}

// chunkRecords copies the document metadata onto every chunk and adds the
// chunk-level keys.
func chunkRecords(res FileResult, meta metadata.DocMeta, chunks []chunk.Chunk, embeddings [][]float32, indexedAt time.Time) []store.ChunkRecord {
	base := meta.Flatten()
	base[metadata.KeyDocID] = res.DocID
	base[metadata.KeyChunkCount] = len(chunks)
	base[metadata.KeyDocChars] = res.Chars
	base[metadata.KeyDocTokens] = res.Tokens
	base[metadata.KeyIndexedAt] = indexedAt.Format(time.RFC3339)

	records := make([]store.ChunkRecord, len(chunks))
	for i, c := range chunks {
		m := make(map[string]any, len(base)+1)
		for k, v := range base {
			m[k] = v
		}
		m[metadata.KeyChunkIndex] = c.Index
		records[i] = store.ChunkRecord{
			ID:        docid.ChunkID(res.DocID, c.Index),
			Text:      c.Text,
			Embedding: embeddings[i],
			Metadata:  m,
		}
	}
	return records
}

// storeWriteError keeps store errors that already carry a code and wraps the rest.
func storeWriteError(msg string, err error) error {
	if kberrors.GetKind(err) == kberrors.KindStoreWriteFailure {
		return err
	}
	return kberrors.StoreWriteFailure(msg, err)
}

// DeleteResult reports what DeleteDocument removed.
type DeleteResult struct {
	DocID   string `json:"doc_id"`
	Chunks  int    `json:"chunks"`
	Tracked bool   `json:"tracked"`
}

// DeleteDocument removes every chunk of docID and its tracking row.
func (ix *Indexer) DeleteDocument(ctx context.Context, docID string) (DeleteResult, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.deleteDocument(ctx, docID)
}

func (ix *Indexer) deleteDocument(ctx context.Context, docID string) (DeleteResult, error) {
	res := DeleteResult{DocID: docID}
	if docID == "" {
		return res, kberrors.ValidationError("document id is required", nil)
	}

	n, err := ix.vectors.Delete(ctx, store.Filter{metadata.KeyDocID: docID})
	if err != nil {
		return res, storeWriteError("delete chunks of "+docID, err)
	}
	res.Chunks = n

	tracked, err := ix.tracker.DeleteDocument(ctx, docID)
	if err != nil {
		return res, storeWriteError("delete document row "+docID, err)
	}
	res.Tracked = tracked

	ix.log.Info("document_deleted",
		slog.String("doc_id", docID),
		slog.Int("chunks", n),
		slog.Bool("tracked", tracked))
	return res, nil
}

// DeletePath deletes the document derived from path.
func (ix *Indexer) DeletePath(ctx context.Context, path string) (DeleteResult, error) {
	return ix.DeleteDocument(ctx, docid.DocID(path))
}

// Config returns the configuration the indexer was built with.
func (ix *Indexer) Config() *config.Config { return ix.cfg }
