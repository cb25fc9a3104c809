package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	kberrors "github.com/Aman-CERP/academykb/internal/errors"
)

// Collection file names inside the collection directory.
const (
	ChunksFile  = "chunks.db"
	VectorsFile = "vectors.hnsw"
)

var (
	chunksBucket = []byte("chunks")
	metaBucket   = []byte("meta")
	dimsKey      = []byte("dimensions")
	genKey       = []byte("generation")
)

// CollectionConfig configures a Collection.
type CollectionConfig struct {
	// Dir is the collection directory.
	Dir string
	// Dimensions fixes the embedding length. Zero adopts the length of the
	// first upsert.
	Dimensions int
	// M and EfSearch tune the HNSW graph; zero uses defaults.
	M        int
	EfSearch int
	// CompactRatio and CompactMinOrphans decide when replaced and deleted
	// nodes are dropped by rebuilding the graph: both the orphan share of
	// the graph and the orphan count must be reached. Zero uses defaults.
	CompactRatio      float64
	CompactMinOrphans int
	// LockTimeout bounds the wait for another process's write. Zero uses
	// DefaultLockTimeout.
	LockTimeout time.Duration
}

// Collection defaults.
const (
	DefaultCompactRatio      = 0.2
	DefaultCompactMinOrphans = 32
	DefaultLockTimeout       = 5 * time.Second
)

// Collection is the persistent chunk store. Records live in a bbolt file,
// which is the source of truth; the HNSW graph is a derived index that is
// saved on Close and rebuilt from the records when missing or stale.
//
// The bbolt file is opened for each operation and closed again, so several
// processes (serve, the CLI, the watcher) can share one collection. Every
// write advances a generation counter stored with the records; a handle
// whose graph reflects an older generation rebuilds it before use.
type Collection struct {
	mu      sync.Mutex
	dir     string
	path    string
	timeout time.Duration
	index   *hnswIndex
	dims    int
	cfgDims int
	gen     uint64
	dirty   bool
	closed  bool

	compactRatio      float64
	compactMinOrphans int
}

// Verify interface implementation at compile time
var _ VectorStore = (*Collection)(nil)

type storedChunk struct {
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding"`
}

// OpenCollection opens or creates the collection in cfg.Dir.
func OpenCollection(cfg CollectionConfig) (*Collection, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("collection directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, kberrors.StoreWriteFailure("create collection directory", err)
	}

	c := &Collection{
		dir:               cfg.Dir,
		path:              filepath.Join(cfg.Dir, ChunksFile),
		timeout:           cfg.LockTimeout,
		cfgDims:           cfg.Dimensions,
		compactRatio:      cfg.CompactRatio,
		compactMinOrphans: cfg.CompactMinOrphans,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultLockTimeout
	}
	if c.compactRatio <= 0 {
		c.compactRatio = DefaultCompactRatio
	}
	if c.compactMinOrphans <= 0 {
		c.compactMinOrphans = DefaultCompactMinOrphans
	}

	var (
		stored  int
		records int
		dbGen   uint64
	)
	err := c.withDB(false, func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			chunks, err := tx.CreateBucketIfNotExists(chunksBucket)
			if err != nil {
				return err
			}
			if _, err := tx.CreateBucketIfNotExists(metaBucket); err != nil {
				return err
			}
			stored = storedDims(tx)
			records = chunks.Stats().KeyN
			dbGen = readGen(tx)
			return nil
		})
	})
	if err != nil {
		return nil, kberrors.StoreWriteFailure("initialize chunk database", err)
	}

	c.dims = stored
	if c.dims == 0 {
		c.dims = cfg.Dimensions
	} else if cfg.Dimensions != 0 && cfg.Dimensions != c.dims {
		slog.Warn("collection_dimension_changed",
			slog.Int("stored", c.dims),
			slog.Int("configured", cfg.Dimensions))
	}

	c.index = newHNSWIndex(c.dims, cfg.M, cfg.EfSearch)
	if err := c.loadIndex(records, dbGen); err != nil {
		return nil, err
	}
	return c, nil
}

// withDB opens the chunk database for one operation. A read-write handle
// holds bbolt's exclusive file lock until it is closed.
func (c *Collection) withDB(readOnly bool, fn func(db *bbolt.DB) error) error {
	if c.closed {
		return kberrors.New(kberrors.ErrCodeStoreRead, "collection is closed", nil)
	}
	db, err := bbolt.Open(c.path, 0600, &bbolt.Options{Timeout: c.timeout, ReadOnly: readOnly})
	if err != nil {
		code := kberrors.ErrCodeStoreWrite
		if readOnly {
			code = kberrors.ErrCodeStoreRead
		}
		return kberrors.New(code, "open chunk database", err).
			WithSuggestion("another academykb process is writing to the collection; retry shortly")
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			slog.Warn("chunk_database_close_failed", slog.String("error", cerr.Error()))
		}
	}()
	return fn(db)
}

// view runs fn in a read transaction after bringing the graph up to date
// with the records it sees.
func (c *Collection) view(fn func(tx *bbolt.Tx) error) error {
	return c.withDB(true, func(db *bbolt.DB) error {
		return db.View(func(tx *bbolt.Tx) error {
			if readGen(tx) != c.gen {
				if err := c.reloadTx(tx); err != nil {
					return err
				}
			}
			return fn(tx)
		})
	})
}

// update runs fn in a write transaction and advances the generation. When
// another process wrote since this handle last synced, the graph is rebuilt
// from the committed records and reloaded is true: callers must then not
// apply their change to the graph again.
func (c *Collection) update(fn func(tx *bbolt.Tx) error) (reloaded bool, err error) {
	var next uint64
	err = c.withDB(false, func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			gen := readGen(tx)
			if err := fn(tx); err != nil {
				return err
			}
			next = gen + 1
			reloaded = gen != c.gen
			return tx.Bucket(metaBucket).Put(genKey, []byte(strconv.FormatUint(next, 10)))
		})
	})
	if err != nil {
		return false, err
	}
	if reloaded {
		return true, c.rebuildIndex()
	}
	c.gen = next
	return false, nil
}

func readGen(tx *bbolt.Tx) uint64 {
	v := tx.Bucket(metaBucket).Get(genKey)
	if v == nil {
		return 0
	}
	n, _ := strconv.ParseUint(string(v), 10, 64)
	return n
}

func storedDims(tx *bbolt.Tx) int {
	v := tx.Bucket(metaBucket).Get(dimsKey)
	if v == nil {
		return 0
	}
	n, _ := strconv.Atoi(string(v))
	return n
}

// loadIndex imports the saved graph, or rebuilds it when the file is
// missing, unreadable or out of step with the records.
func (c *Collection) loadIndex(records int, dbGen uint64) error {
	path := filepath.Join(c.dir, VectorsFile)
	if _, statErr := os.Stat(path); statErr == nil {
		savedGen, loadErr := c.index.load(path)
		if loadErr == nil && savedGen == dbGen && c.index.count() == records {
			c.gen = dbGen
			return c.compactIfNeeded()
		}
		reason := "generation mismatch"
		switch {
		case loadErr != nil:
			reason = loadErr.Error()
		case c.index.count() != records:
			reason = "count mismatch"
		}
		slog.Warn("vector_index_stale", slog.String("path", path), slog.String("reason", reason))
	}
	return c.rebuildIndex()
}

// rebuildIndex replaces the graph with one built from the stored records.
func (c *Collection) rebuildIndex() error {
	err := c.withDB(true, func(db *bbolt.DB) error {
		return db.View(c.reloadTx)
	})
	if err != nil {
		return kberrors.New(kberrors.ErrCodeStoreRead, "rebuild vector index", err)
	}
	return nil
}

func (c *Collection) reloadTx(tx *bbolt.Tx) error {
	dims := storedDims(tx)
	if dims == 0 {
		dims = c.cfgDims
	}
	var ids []string
	var vecs [][]float32
	err := scanTx(tx, func(id string, rec storedChunk) error {
		if len(rec.Embedding) == 0 {
			return nil
		}
		ids = append(ids, id)
		vecs = append(vecs, rec.Embedding)
		return nil
	})
	if err != nil {
		return err
	}
	c.dims = dims
	c.index.reset(dims)
	c.index.add(ids, vecs)
	c.gen = readGen(tx)
	c.dirty = len(ids) > 0
	slog.Info("vector_index_rebuilt", slog.Int("chunks", len(ids)), slog.Uint64("generation", c.gen))
	return nil
}

// compactIfNeeded rebuilds the graph from the records once orphan nodes
// reach the configured share. A graph with no live ids is always rebuilt.
func (c *Collection) compactIfNeeded() error {
	st := c.index.stats()
	if st.Orphans <= 0 {
		return nil
	}
	if st.Live > 0 {
		ratio := float64(st.Orphans) / float64(st.Nodes)
		if st.Orphans < c.compactMinOrphans || ratio < c.compactRatio {
			return nil
		}
	}
	slog.Info("vector_index_compacting",
		slog.Int("orphans", st.Orphans),
		slog.Int("nodes", st.Nodes))
	return c.rebuildIndex()
}

// scanTx visits every record in key order.
func scanTx(tx *bbolt.Tx, fn func(id string, rec storedChunk) error) error {
	return tx.Bucket(chunksBucket).ForEach(func(k, v []byte) error {
		rec, err := decodeChunk(v)
		if err != nil {
			return fmt.Errorf("decode chunk %s: %w", k, err)
		}
		return fn(string(k), rec)
	})
}

// readError keeps coded errors and wraps the rest as store reads.
func readError(msg string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := kberrors.As(err); ok {
		return err
	}
	return kberrors.New(kberrors.ErrCodeStoreRead, msg, err)
}

// writeError keeps coded errors and wraps the rest as store writes.
func writeError(msg string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := kberrors.As(err); ok {
		return err
	}
	return kberrors.StoreWriteFailure(msg, err)
}

func decodeChunk(data []byte) (storedChunk, error) {
	var rec storedChunk
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return rec, err
	}
	for k, v := range rec.Metadata {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				rec.Metadata[k] = i
			} else if f, err := n.Float64(); err == nil {
				rec.Metadata[k] = f
			}
		}
	}
	return rec, nil
}

// Dimensions returns the embedding length, or zero before the first write.
func (c *Collection) Dimensions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dims
}

// Upsert writes records in one transaction. Existing ids are overwritten.
func (c *Collection) Upsert(_ context.Context, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r.ID == "" {
			return kberrors.StoreWriteFailure("chunk id is empty", nil)
		}
		if len(r.Embedding) == 0 {
			return kberrors.StoreWriteFailure("chunk "+r.ID+" has no embedding", nil)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var dims int
	reloaded, err := c.update(func(tx *bbolt.Tx) error {
		stored := storedDims(tx)
		dims = stored
		if dims == 0 {
			dims = c.cfgDims
		}
		if dims == 0 {
			dims = len(records[0].Embedding)
		}
		for _, r := range records {
			if len(r.Embedding) != dims {
				return ErrDimensionMismatch(dims, len(r.Embedding)).WithDetail("chunk_id", r.ID)
			}
		}

		b := tx.Bucket(chunksBucket)
		for _, r := range records {
			data, err := json.Marshal(storedChunk{Text: r.Text, Metadata: r.Metadata, Embedding: r.Embedding})
			if err != nil {
				return fmt.Errorf("encode chunk %s: %w", r.ID, err)
			}
			if err := b.Put([]byte(r.ID), data); err != nil {
				return err
			}
		}
		if stored == 0 {
			return tx.Bucket(metaBucket).Put(dimsKey, []byte(strconv.Itoa(dims)))
		}
		return nil
	})
	if err != nil {
		return writeError("write chunks", err)
	}

	c.dims = dims
	if !reloaded {
		ids := make([]string, len(records))
		vecs := make([][]float32, len(records))
		for i, r := range records {
			ids[i] = r.ID
			vecs[i] = r.Embedding
		}
		c.index.add(ids, vecs)
		c.dirty = true
	}
	return c.compactIfNeeded()
}

// Query ranks chunks by cosine similarity. Unfiltered queries use the HNSW
// graph; filtered queries, and graph results that come up short, fall back
// to an exact scan.
func (c *Collection) Query(ctx context.Context, embedding []float32, topK int, filter Filter) ([]QueryResult, error) {
	if topK <= 0 {
		return []QueryResult{}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out := []QueryResult{}
	err := c.view(func(tx *bbolt.Tx) error {
		total := c.index.count()
		if total == 0 {
			return nil
		}
		if c.dims != 0 && len(embedding) != c.dims {
			return ErrDimensionMismatch(c.dims, len(embedding))
		}

		var err error
		if len(filter) == 0 {
			hits := c.index.search(embedding, topK)
			if len(hits) >= min(topK, total) {
				out, err = resolveTx(tx, hits)
				return err
			}
		}
		out, err = exactQueryTx(ctx, tx, embedding, topK, filter)
		return err
	})
	if err != nil {
		return nil, readError("query chunks", err)
	}
	return out, nil
}

func resolveTx(tx *bbolt.Tx, hits []scored) ([]QueryResult, error) {
	out := make([]QueryResult, 0, len(hits))
	b := tx.Bucket(chunksBucket)
	for _, h := range hits {
		v := b.Get([]byte(h.ID))
		if v == nil {
			continue
		}
		rec, err := decodeChunk(v)
		if err != nil {
			return nil, fmt.Errorf("decode chunk %s: %w", h.ID, err)
		}
		out = append(out, QueryResult{ID: h.ID, Text: rec.Text, Metadata: rec.Metadata, Score: h.Score})
	}
	return out, nil
}

func exactQueryTx(ctx context.Context, tx *bbolt.Tx, embedding []float32, topK int, filter Filter) ([]QueryResult, error) {
	out := []QueryResult{}
	err := scanTx(tx, func(id string, rec storedChunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !filter.Matches(rec.Metadata) {
			return nil
		}
		out = append(out, QueryResult{ID: id, Text: rec.Text, Metadata: rec.Metadata, Score: cosine(embedding, rec.Embedding)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Delete removes every chunk matching filter. An empty filter is rejected;
// use Reset to clear the collection.
func (c *Collection) Delete(_ context.Context, filter Filter) (int, error) {
	if len(filter) == 0 {
		return 0, kberrors.ValidationError("delete requires a non-empty filter", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []string
	reloaded, err := c.update(func(tx *bbolt.Tx) error {
		ids = nil
		b := tx.Bucket(chunksBucket)
		err := b.ForEach(func(k, v []byte) error {
			rec, err := decodeChunk(v)
			if err != nil {
				return fmt.Errorf("decode chunk %s: %w", k, err)
			}
			if filter.Matches(rec.Metadata) {
				ids = append(ids, string(k))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, writeError("delete chunks", err)
	}

	if len(ids) > 0 && !reloaded {
		c.index.remove(ids)
		c.dirty = true
	}
	if err := c.compactIfNeeded(); err != nil {
		return len(ids), err
	}
	return len(ids), nil
}

// GetAll returns every chunk id with its metadata, sorted by id.
func (c *Collection) GetAll(_ context.Context) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := []Entry{}
	err := c.view(func(tx *bbolt.Tx) error {
		return scanTx(tx, func(id string, rec storedChunk) error {
			out = append(out, Entry{ID: id, Metadata: rec.Metadata})
			return nil
		})
	})
	if err != nil {
		return nil, readError("scan chunks", err)
	}
	return out, nil
}

// Get returns one record, or nil when absent.
func (c *Collection) Get(_ context.Context, id string) (*ChunkRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out *ChunkRecord
	err := c.view(func(tx *bbolt.Tx) error {
		v := tx.Bucket(chunksBucket).Get([]byte(id))
		if v == nil {
			return nil
		}
		rec, err := decodeChunk(v)
		if err != nil {
			return err
		}
		out = &ChunkRecord{ID: id, Text: rec.Text, Embedding: rec.Embedding, Metadata: rec.Metadata}
		return nil
	})
	if err != nil {
		return nil, readError("read chunk "+id, err)
	}
	return out, nil
}

// Count returns the number of chunks matching filter.
func (c *Collection) Count(_ context.Context, filter Filter) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	err := c.view(func(tx *bbolt.Tx) error {
		if len(filter) == 0 {
			n = tx.Bucket(chunksBucket).Stats().KeyN
			return nil
		}
		return scanTx(tx, func(_ string, rec storedChunk) error {
			if filter.Matches(rec.Metadata) {
				n++
			}
			return nil
		})
	})
	if err != nil {
		return 0, readError("count chunks", err)
	}
	return n, nil
}

// Reset removes every chunk and forgets the embedding dimension.
func (c *Collection) Reset(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(chunksBucket); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		if _, err := tx.CreateBucket(chunksBucket); err != nil {
			return err
		}
		return tx.Bucket(metaBucket).Delete(dimsKey)
	})
	if err != nil {
		return writeError("reset collection", err)
	}

	c.dims = c.cfgDims
	c.index.reset(c.dims)
	path := filepath.Join(c.dir, VectorsFile)
	_ = os.Remove(path)
	_ = os.Remove(path + ".meta")
	c.dirty = false
	slog.Info("collection_reset", slog.String("dir", c.dir))
	return nil
}

// Save writes the HNSW graph if it changed since the last save.
func (c *Collection) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *Collection) saveLocked() error {
	if !c.dirty {
		return nil
	}
	if err := c.index.save(filepath.Join(c.dir, VectorsFile), c.gen); err != nil {
		return kberrors.StoreWriteFailure("save vector index", err)
	}
	c.dirty = false
	return nil
}

// Close saves the graph. The collection cannot be used afterwards.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	err := c.saveLocked()
	c.closed = true
	return err
}
