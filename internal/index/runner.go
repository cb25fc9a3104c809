package index

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/academykb/internal/docid"
	kberrors "github.com/Aman-CERP/academykb/internal/errors"
	"github.com/Aman-CERP/academykb/internal/extract"
	"github.com/Aman-CERP/academykb/internal/metadata"
	"github.com/Aman-CERP/academykb/internal/store"
	"github.com/Aman-CERP/academykb/internal/ui"
)

// FileFailure records one file that did not make it through a rebuild.
type FileFailure struct {
	Path    string        `json:"path"`
	Stage   Stage         `json:"stage"`
	Kind    kberrors.Kind `json:"kind"`
	Message string        `json:"message"`
}

// RebuildResult contains the outcome of a full rebuild.
type RebuildResult struct {
	RunID     string        `json:"run_id"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Chunks    int           `json:"chunks"`
	Pruned    int           `json:"pruned"`
	Cleared   bool          `json:"cleared"`
	Failures  []FileFailure `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Enumerate returns every supported file under root in sorted order.
// Directories and files whose name starts with "." are skipped, as are
// directories named in ignore.
func Enumerate(root string, ignore []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, kberrors.IOFailure(root, err)
	}
	if !info.IsDir() {
		return nil, kberrors.IOFailure(root, fs.ErrInvalid).WithSuggestion("paths.raw_root must be a directory")
	}

	skip := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		skip[name] = true
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			slog.Warn("enumerate_skip", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") || skip[name] {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
			return nil
		}
		if extract.Supported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, kberrors.IOFailure(root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Rebuild indexes every file under the raw root, one at a time. Per-file
// failures are collected in the result; only setup failures return an error.
func (ix *Indexer) Rebuild(ctx context.Context) (RebuildResult, error) {
	start := ix.now()
	var res RebuildResult

	root := ix.cfg.Paths.RawRoot
	ix.log.Info("index_scan_started", slog.String("path", root))
	ix.report(ui.ProgressEvent{Stage: ui.StageScanning, Message: root})

	files, err := Enumerate(root, ix.cfg.Index.IgnoreDirs)
	if err != nil {
		return res, err
	}
	res.Total = len(files)
	ix.log.Info("index_scan_complete", slog.Int("files", len(files)))

	if ix.cfg.Index.ClearBeforeRebuild {
		ix.mu.Lock()
		err := ix.vectors.Reset(ctx)
		ix.mu.Unlock()
		if err != nil {
			return res, storeWriteError("clear collection", err)
		}
		res.Cleared = true
		ix.log.Info("index_collection_cleared")
	}

	seen := make(map[string]bool, len(files))
	for i, path := range files {
		seen[docid.DocID(path)] = true
		ix.report(ui.ProgressEvent{Stage: ui.StageIndexing, Current: i, Total: len(files), CurrentFile: path})

		fr := ix.IndexFile(ctx, path)
		if fr.OK() {
			res.Succeeded++
			res.Chunks += fr.Chunks
			continue
		}
		res.Failed++
		res.Failures = append(res.Failures, FileFailure{
			Path:    path,
			Stage:   fr.Stage,
			Kind:    fr.Kind,
			Message: fr.Error,
		})
		if ix.progress != nil {
			ix.progress.AddError(ui.ErrorEvent{File: path, Err: fmt.Errorf("%s: %s", fr.Kind, fr.Error)})
		}
	}
	ix.report(ui.ProgressEvent{Stage: ui.StageIndexing, Current: len(files), Total: len(files)})

	if ix.cfg.Index.PruneOrphans {
		ix.report(ui.ProgressEvent{Stage: ui.StagePruning})
		res.Pruned = ix.pruneOrphans(ctx, seen, start)
	}

	res.Duration = time.Since(start)
	res.RunID = ix.recordRun(ctx, store.IndexRun{
		Mode:       store.RunModeRebuild,
		StartedAt:  start,
		FinishedAt: ix.now(),
		Total:      res.Total,
		Succeeded:  res.Succeeded,
		Failed:     res.Failed,
		Chunks:     res.Chunks,
	})

	if ix.progress != nil {
		ix.progress.Complete(ui.CompletionStats{
			Files:     res.Total,
			Succeeded: res.Succeeded,
			Failed:    res.Failed,
			Chunks:    res.Chunks,
			Pruned:    res.Pruned,
			Duration:  res.Duration,
			Embedder: ui.EmbedderInfo{
				Model:      ix.embedder.ModelName(),
				Dimensions: ix.embedder.Dimensions(),
			},
		})
	}

	ix.log.Info("index_complete",
		slog.String("run_id", res.RunID),
		slog.Int("total", res.Total),
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed),
		slog.Int("chunks", res.Chunks),
		slog.Int("pruned", res.Pruned),
		slog.Bool("cleared", res.Cleared),
		slog.Int64("duration_ms", res.Duration.Milliseconds()),
		slog.String("embedder_model", ix.embedder.ModelName()),
		slog.String("path", root))
	return res, nil
}

// pruneOrphans deletes documents known to either store whose source file
// was not enumerated. Documents indexed after since were written by another
// caller during the run and are kept. Failures are logged and skipped.
func (ix *Indexer) pruneOrphans(ctx context.Context, seen map[string]bool, since time.Time) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	orphans := make(map[string]bool)
	tracked := make(map[string]bool)

	docs, err := ix.tracker.ListDocuments(ctx)
	if err != nil {
		ix.log.Warn("prune_list_documents_failed", slog.String("error", err.Error()))
	}
	for _, d := range docs {
		tracked[d.DocID] = true
		if !seen[d.DocID] && d.LastIndexed.Before(since) {
			orphans[d.DocID] = true
		}
	}

	// Chunk timestamps have second precision.
	cutoff := since.UTC().Truncate(time.Second)
	entries, err := ix.vectors.GetAll(ctx)
	if err != nil {
		ix.log.Warn("prune_list_chunks_failed", slog.String("error", err.Error()))
	}
	for _, e := range entries {
		id := metadata.String(e.Metadata, metadata.KeyDocID)
		if id == "" {
			id, _, _ = docid.ParseChunkID(e.ID)
		}
		if id == "" || seen[id] || tracked[id] {
			continue
		}
		if at, err := time.Parse(time.RFC3339, metadata.String(e.Metadata, metadata.KeyIndexedAt)); err == nil && !at.Before(cutoff) {
			continue
		}
		orphans[id] = true
	}

	ids := make([]string, 0, len(orphans))
	for id := range orphans {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pruned := 0
	for _, id := range ids {
		if _, err := ix.deleteDocument(ctx, id); err != nil {
			ix.log.Warn("prune_document_failed", slog.String("doc_id", id), slog.String("error", err.Error()))
			continue
		}
		pruned++
	}
	if pruned > 0 {
		ix.log.Info("index_orphans_pruned", slog.Int("documents", pruned))
	}
	return pruned
}

func (ix *Indexer) recordRun(ctx context.Context, run store.IndexRun) string {
	id, err := ix.tracker.RecordRun(ctx, run)
	if err != nil {
		ix.log.Warn("record_run_failed", slog.String("mode", string(run.Mode)), slog.String("error", err.Error()))
		return ""
	}
	return id
}

func (ix *Indexer) report(ev ui.ProgressEvent) {
	if ix.progress != nil {
		ix.progress.UpdateProgress(ev)
	}
}
