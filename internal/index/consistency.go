package index

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Aman-CERP/academykb/internal/docid"
	"github.com/Aman-CERP/academykb/internal/metadata"
	"github.com/Aman-CERP/academykb/internal/store"
)

// InconsistencyType categorizes drift between the two stores.
type InconsistencyType int

const (
	// InconsistencyMissingChunks is a tracked document with no chunks.
	InconsistencyMissingChunks InconsistencyType = iota
	// InconsistencyUntracked is a chunked document with no tracking row.
	InconsistencyUntracked
	// InconsistencyCountMismatch is a row whose chunk_count disagrees with the collection.
	InconsistencyCountMismatch
)

// String returns the snake_case name used in logs and JSON.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyMissingChunks:
		return "missing_chunks"
	case InconsistencyUntracked:
		return "untracked"
	case InconsistencyCountMismatch:
		return "count_mismatch"
	default:
		return "unknown"
	}
}

// MarshalText renders the type by name.
func (t InconsistencyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Inconsistency is one drifted document.
type Inconsistency struct {
	Type    InconsistencyType `json:"type"`
	DocID   string            `json:"doc_id"`
	Tracked int               `json:"tracked_chunks"`
	Actual  int               `json:"actual_chunks"`
}

// ConsistencyReport contains the outcome of a consistency check.
type ConsistencyReport struct {
	Documents       int             `json:"documents"`
	Chunks          int             `json:"chunks"`
	Inconsistencies []Inconsistency `json:"inconsistencies,omitempty"`
	Duration        time.Duration   `json:"duration"`
}

// Consistent reports whether no drift was found.
func (r *ConsistencyReport) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// Check compares tracking rows with the chunks in the collection without
// changing either store.
func (ix *Indexer) Check(ctx context.Context) (*ConsistencyReport, error) {
	start := time.Now()

	docs, err := ix.tracker.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := ix.vectors.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	actual := chunkCounts(entries)
	tracked := make(map[string]int, len(docs))
	for _, d := range docs {
		tracked[d.DocID] = d.ChunkCount
	}

	report := &ConsistencyReport{Documents: len(docs), Chunks: len(entries)}
	for _, d := range docs {
		n, ok := actual[d.DocID]
		switch {
		case !ok && d.ChunkCount > 0:
			report.Inconsistencies = append(report.Inconsistencies, Inconsistency{
				Type: InconsistencyMissingChunks, DocID: d.DocID, Tracked: d.ChunkCount,
			})
		case ok && n != d.ChunkCount:
			report.Inconsistencies = append(report.Inconsistencies, Inconsistency{
				Type: InconsistencyCountMismatch, DocID: d.DocID, Tracked: d.ChunkCount, Actual: n,
			})
		}
	}
	for id, n := range actual {
		if _, ok := tracked[id]; !ok {
			report.Inconsistencies = append(report.Inconsistencies, Inconsistency{
				Type: InconsistencyUntracked, DocID: id, Actual: n,
			})
		}
	}
	sort.Slice(report.Inconsistencies, func(i, j int) bool {
		a, b := report.Inconsistencies[i], report.Inconsistencies[j]
		if a.DocID != b.DocID {
			return a.DocID < b.DocID
		}
		return a.Type < b.Type
	})
	report.Duration = time.Since(start)

	if !report.Consistent() {
		ix.log.Warn("consistency_check_drift",
			slog.Int("documents", report.Documents),
			slog.Int("chunks", report.Chunks),
			slog.Int("inconsistencies", len(report.Inconsistencies)))
	}
	return report, nil
}

// Reconcile rebuilds the tracking table from the collection. Documents whose
// chunks lack exact counts are estimated from the chunker's window size and
// marked approximate.
func (ix *Indexer) Reconcile(ctx context.Context) (store.ReconcileResult, error) {
	start := ix.now()
	entries, err := ix.vectors.GetAll(ctx)
	if err != nil {
		return store.ReconcileResult{}, err
	}

	res, err := ix.tracker.Reconcile(ctx, entries, store.ReconcileOptions{
		ChunkSize: ix.chunker.Size(),
		Overlap:   ix.chunker.Overlap(),
	})
	if err != nil {
		return store.ReconcileResult{}, err
	}

	ix.recordRun(ctx, store.IndexRun{
		Mode:       store.RunModeReconcile,
		StartedAt:  start,
		FinishedAt: ix.now(),
		Total:      res.Documents,
		Succeeded:  res.Documents,
		Chunks:     res.Chunks,
	})
	ix.log.Info("reconcile_complete",
		slog.Int("documents", res.Documents),
		slog.Int("chunks", res.Chunks),
		slog.Int("approximate", res.Approximate),
		slog.Int("skipped", res.Skipped))
	return res, nil
}

func chunkCounts(entries []store.Entry) map[string]int {
	out := make(map[string]int)
	for _, e := range entries {
		id := metadata.String(e.Metadata, metadata.KeyDocID)
		if id == "" {
			id, _, _ = docid.ParseChunkID(e.ID)
		}
		if id != "" {
			out[id]++
		}
	}
	return out
}
