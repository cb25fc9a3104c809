package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// hnswIndex is the in-memory cosine graph over chunk embeddings.
// Chunk ids map to uint64 graph keys; replaced and deleted ids are dropped
// from the mapping only, leaving an orphan node in the graph until the
// owning Collection compacts it.
type hnswIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int
	m     int
	ef    int

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// hnswMetadata stores ID mappings for persistence. Gen is the collection
// write generation the graph was saved at.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Dims    int
	Gen     uint64
}

type scored struct {
	ID    string
	Score float32
}

func newHNSWIndex(dims, m, ef int) *hnswIndex {
	if m == 0 {
		m = 16
	}
	if ef == 0 {
		ef = 64
	}
	idx := &hnswIndex{dims: dims, m: m, ef: ef}
	idx.resetLocked()
	return idx
}

func (x *hnswIndex) resetLocked() {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = x.m
	g.EfSearch = x.ef
	g.Ml = 0.25
	x.graph = g
	x.idMap = make(map[string]uint64)
	x.keyMap = make(map[uint64]string)
	x.nextKey = 0
}

func (x *hnswIndex) reset(dims int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.dims = dims
	x.resetLocked()
}

// add inserts or replaces vectors. Callers validate dimensions first.
func (x *hnswIndex) add(ids []string, vectors [][]float32) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for i, id := range ids {
		if old, ok := x.idMap[id]; ok {
			delete(x.keyMap, old)
		}
		key := x.nextKey
		x.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		x.graph.Add(hnsw.MakeNode(key, vec))
		x.idMap[id] = key
		x.keyMap[key] = id
	}
	if x.dims == 0 && len(vectors) > 0 {
		x.dims = len(vectors[0])
	}
}

func (x *hnswIndex) remove(ids []string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		if key, ok := x.idMap[id]; ok {
			delete(x.keyMap, key)
			delete(x.idMap, id)
		}
	}
}

// search returns up to k live ids nearest to query, best first.
func (x *hnswIndex) search(query []float32, k int) []scored {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph.Len() == 0 || len(x.idMap) == 0 || k <= 0 {
		return []scored{}
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeVectorInPlace(q)

	// Orphan nodes can occupy result slots, so ask for more.
	want := k + (x.graph.Len() - len(x.idMap))
	nodes := x.graph.Search(q, want)

	out := make([]scored, 0, k)
	for _, node := range nodes {
		id, ok := x.keyMap[node.Key]
		if !ok {
			continue
		}
		out = append(out, scored{ID: id, Score: distanceToScore(x.graph.Distance(q, node.Value))})
		if len(out) == k {
			break
		}
	}
	return out
}

// graphStats describes the graph including lazily deleted nodes.
type graphStats struct {
	Live    int // ids with a node
	Nodes   int // graph nodes, orphans included
	Orphans int
}

func (x *hnswIndex) stats() graphStats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	nodes := x.graph.Len()
	return graphStats{Live: len(x.idMap), Nodes: nodes, Orphans: nodes - len(x.idMap)}
}

func (x *hnswIndex) count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.idMap)
}

// save persists the graph and its id mapping via temp file + rename.
func (x *hnswIndex) save(path string, gen uint64) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	err := writeAtomic(path, func(w io.Writer) error {
		return x.graph.Export(w)
	})
	if err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}

	meta := hnswMetadata{IDMap: x.idMap, NextKey: x.nextKey, Dims: x.dims, Gen: gen}
	err = writeAtomic(path+".meta", func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(meta)
	})
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return nil
}

// writeAtomic writes through a uniquely named temp file in the target
// directory and renames it over path.
func writeAtomic(path string, write func(w io.Writer) error) error {
	file, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := file.Name()
	if err := write(file); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("hnsw_temp_close_failed", slog.String("error", closeErr.Error()))
		}
		_ = os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// load replaces the index with the persisted graph at path and returns the
// generation it was saved at.
func (x *hnswIndex) load(path string) (uint64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	mf, err := os.Open(path + ".meta")
	if err != nil {
		return 0, fmt.Errorf("open metadata file: %w", err)
	}
	var meta hnswMetadata
	err = gob.NewDecoder(mf).Decode(&meta)
	_ = mf.Close()
	if err != nil {
		return 0, fmt.Errorf("decode hnsw metadata: %w", err)
	}

	gf, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = gf.Close() }()

	x.resetLocked()
	// Import needs an io.ByteReader.
	if err := x.graph.Import(bufio.NewReader(gf)); err != nil {
		x.resetLocked()
		return 0, fmt.Errorf("failed to import graph: %w", err)
	}

	x.idMap = meta.IDMap
	if x.idMap == nil {
		x.idMap = make(map[string]uint64)
	}
	x.nextKey = meta.NextKey
	x.dims = meta.Dims
	for id, key := range x.idMap {
		x.keyMap[key] = id
	}
	return meta.Gen, nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore converts cosine distance (1 - cos) to a similarity in [0,1].
func distanceToScore(distance float32) float32 {
	s := 1 - distance
	if s != s || s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// cosine computes the similarity of two vectors, clamped to [0,1].
func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, ma, mb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		ma += float64(a[i]) * float64(a[i])
		mb += float64(b[i]) * float64(b[i])
	}
	if ma == 0 || mb == 0 {
		return 0
	}
	return distanceToScore(float32(1 - dot/(math.Sqrt(ma)*math.Sqrt(mb))))
}
