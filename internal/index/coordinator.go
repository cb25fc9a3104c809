package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Aman-CERP/academykb/internal/docid"
	"github.com/Aman-CERP/academykb/internal/extract"
	"github.com/Aman-CERP/academykb/internal/store"
	"github.com/Aman-CERP/academykb/internal/watcher"
)

// DefaultMaxFileSize is the default maximum file size to index (100MB).
// Larger files are skipped to bound memory during extraction.
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// CoordinatorConfig contains configuration for the Coordinator.
type CoordinatorConfig struct {
	// Indexer runs the per-file pipeline (required).
	Indexer *Indexer

	// RootPath is the raw content root that event paths are relative to.
	RootPath string

	// IgnoreDirs are directory names skipped anywhere under the root.
	IgnoreDirs []string

	// MaxFileSize defaults to DefaultMaxFileSize when zero.
	MaxFileSize int64
}

// Coordinator turns file events into incremental index updates.
type Coordinator struct {
	config CoordinatorConfig
	ignore map[string]bool
	mu     sync.Mutex
}

// EventSummary counts what one batch of events did.
type EventSummary struct {
	Indexed int
	Deleted int
	Failed  int
	Skipped int
}

// NewCoordinator creates a new index coordinator.
func NewCoordinator(config CoordinatorConfig) *Coordinator {
	ignore := make(map[string]bool, len(config.IgnoreDirs))
	for _, name := range config.IgnoreDirs {
		ignore[name] = true
	}
	return &Coordinator{config: config, ignore: ignore}
}

func (c *Coordinator) maxFileSize() int64 {
	if c.config.MaxFileSize > 0 {
		return c.config.MaxFileSize
	}
	return DefaultMaxFileSize
}

// HandleEvents processes a batch of file events. A failing event is logged
// and does not stop the rest of the batch.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) EventSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.config.Indexer.now()
	var sum EventSummary
	for _, event := range events {
		c.handleEvent(ctx, event, &sum)
	}

	if sum.Indexed+sum.Deleted+sum.Failed > 0 {
		c.config.Indexer.recordRun(ctx, store.IndexRun{
			Mode:       store.RunModeIncremental,
			StartedAt:  start,
			FinishedAt: c.config.Indexer.now(),
			Total:      sum.Indexed + sum.Deleted + sum.Failed,
			Succeeded:  sum.Indexed + sum.Deleted,
			Failed:     sum.Failed,
		})
	}
	return sum
}

func (c *Coordinator) handleEvent(ctx context.Context, event watcher.FileEvent, sum *EventSummary) {
	slog.Debug("processing file event",
		slog.String("path", event.Path),
		slog.String("operation", event.Operation.String()),
		slog.Bool("is_dir", event.IsDir))

	if event.IsDir {
		sum.Skipped++
		return
	}

	switch event.Operation {
	case watcher.OpCreate, watcher.OpModify:
		c.indexFile(ctx, event.Path, sum)
	case watcher.OpDelete:
		c.removeFile(ctx, event.Path, sum)
	case watcher.OpRename:
		if event.OldPath != "" {
			c.removeFile(ctx, event.OldPath, sum)
		}
		c.indexFile(ctx, event.Path, sum)
	default:
		sum.Skipped++
	}
}

// Relevant reports whether a root-relative path would be enumerated by a rebuild.
func (c *Coordinator) Relevant(relPath string) bool {
	parts := strings.Split(filepath.ToSlash(relPath), "/")
	for i, p := range parts {
		if p == "" || p == "." {
			continue
		}
		if strings.HasPrefix(p, ".") {
			return false
		}
		if i < len(parts)-1 && c.ignore[p] {
			return false
		}
	}
	return extract.Supported(relPath)
}

func (c *Coordinator) indexFile(ctx context.Context, relPath string, sum *EventSummary) {
	if !c.Relevant(relPath) {
		sum.Skipped++
		return
	}
	absPath := filepath.Join(c.config.RootPath, relPath)

	// Lstat so symlinks are not followed.
	info, err := os.Lstat(absPath)
	if err != nil {
		// Removed again before the debounce window closed.
		slog.Debug("skipping vanished file", slog.String("path", relPath))
		sum.Skipped++
		return
	}
	if info.Mode()&os.ModeSymlink != 0 {
		slog.Debug("skipping symlink", slog.String("path", relPath))
		sum.Skipped++
		return
	}
	if maxSize := c.maxFileSize(); info.Size() > maxSize {
		slog.Warn("skipping oversized file",
			slog.String("path", relPath),
			slog.Int64("size", info.Size()),
			slog.Int64("max", maxSize))
		sum.Skipped++
		return
	}

	if res := c.config.Indexer.IndexFile(ctx, absPath); res.OK() {
		sum.Indexed++
	} else {
		sum.Failed++
	}
}

func (c *Coordinator) removeFile(ctx context.Context, relPath string, sum *EventSummary) {
	if !c.Relevant(relPath) {
		sum.Skipped++
		return
	}
	absPath := filepath.Join(c.config.RootPath, relPath)
	if _, err := c.config.Indexer.DeletePath(ctx, absPath); err != nil {
		slog.Warn("failed to remove deleted file from index",
			slog.String("path", relPath),
			slog.String("error", err.Error()))
		sum.Failed++
		return
	}
	sum.Deleted++
}

// ChangeType classifies a file difference found at startup.
type ChangeType int

const (
	ChangeTypeAdded ChangeType = iota
	ChangeTypeModified
	ChangeTypeDeleted
)

// FileChange is one difference between the raw root and the tracking table.
type FileChange struct {
	Path  string
	DocID string
	Type  ChangeType
}

// CatchUp indexes files added or modified since they were last indexed and
// deletes documents whose files are gone. It runs before watching starts so
// changes made while nothing was watching are not missed.
func (c *Coordinator) CatchUp(ctx context.Context) (EventSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ix := c.config.Indexer
	docs, err := ix.tracker.ListDocuments(ctx)
	if err != nil {
		return EventSummary{}, err
	}
	files, err := Enumerate(c.config.RootPath, c.config.IgnoreDirs)
	if err != nil {
		return EventSummary{}, err
	}

	changes := detectFileChanges(docs, files)
	var sum EventSummary
	if len(changes) == 0 {
		slog.Debug("no file changes detected since last index")
		return sum, nil
	}

	start := ix.now()
	for i, change := range changes {
		select {
		case <-ctx.Done():
			slog.Debug("catch-up interrupted",
				slog.Int("processed", i),
				slog.Int("remaining", len(changes)-i))
			return sum, ctx.Err()
		default:
		}

		if change.Type == ChangeTypeDeleted {
			if _, err := ix.DeleteDocument(ctx, change.DocID); err != nil {
				sum.Failed++
				continue
			}
			sum.Deleted++
			continue
		}
		if res := ix.IndexFile(ctx, change.Path); res.OK() {
			sum.Indexed++
		} else {
			sum.Failed++
		}
	}

	ix.recordRun(ctx, store.IndexRun{
		Mode:       store.RunModeIncremental,
		StartedAt:  start,
		FinishedAt: ix.now(),
		Total:      len(changes),
		Succeeded:  sum.Indexed + sum.Deleted,
		Failed:     sum.Failed,
	})
	slog.Info("catch_up_complete",
		slog.Int("changes", len(changes)),
		slog.Int("indexed", sum.Indexed),
		slog.Int("deleted", sum.Deleted),
		slog.Int("failed", sum.Failed))
	return sum, nil
}

// detectFileChanges compares tracked documents with the files on disk.
// A file is modified when its mtime is newer than the row's last_indexed.
func detectFileChanges(docs []store.Document, files []string) []FileChange {
	tracked := make(map[string]store.Document, len(docs))
	for _, d := range docs {
		tracked[d.DocID] = d
	}

	var changes []FileChange
	current := make(map[string]bool, len(files))
	for _, path := range files {
		id := docid.DocID(path)
		current[id] = true
		d, ok := tracked[id]
		if !ok {
			changes = append(changes, FileChange{Path: path, DocID: id, Type: ChangeTypeAdded})
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(d.LastIndexed) {
			changes = append(changes, FileChange{Path: path, DocID: id, Type: ChangeTypeModified})
		}
	}
	for id, d := range tracked {
		if !current[id] {
			changes = append(changes, FileChange{Path: d.Path, DocID: id, Type: ChangeTypeDeleted})
		}
	}

	// Deletions first, then modifications, then additions.
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Type != changes[j].Type {
			return changes[i].Type > changes[j].Type
		}
		return changes[i].Path < changes[j].Path
	})
	return changes
}
