package index

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/academykb/internal/docid"
	"github.com/Aman-CERP/academykb/internal/watcher"
)

func newTestCoordinator(h *harness) *Coordinator {
	return NewCoordinator(CoordinatorConfig{
		Indexer:    h.ix,
		RootPath:   h.root,
		IgnoreDirs: h.cfg.Index.IgnoreDirs,
	})
}

func TestCoordinator_Relevant(t *testing.T) {
	h := newHarness(t)
	c := newTestCoordinator(h)

	assert.True(t, c.Relevant("blog/post.md"))
	assert.True(t, c.Relevant("notes.TXT"))
	assert.False(t, c.Relevant(".hidden/post.md"))
	assert.False(t, c.Relevant("blog/.draft.md"))
	assert.False(t, c.Relevant("_assets/post.md"))
	assert.False(t, c.Relevant("photo.jpg"))
}

func TestCoordinator_HandleEvents(t *testing.T) {
	// Given: a new file and an indexed file that was removed
	ctx := context.Background()
	h := newHarness(t)
	c := newTestCoordinator(h)
	added := h.write(t, "blog/new.md", words(10))
	removed := h.write(t, "old.md", words(10))
	require.True(t, h.ix.IndexFile(ctx, removed).OK())
	require.NoError(t, os.Remove(removed))

	// When: the watcher reports both plus noise
	sum := c.HandleEvents(ctx, []watcher.FileEvent{
		{Path: "blog/new.md", Operation: watcher.OpCreate},
		{Path: "old.md", Operation: watcher.OpDelete},
		{Path: "blog", Operation: watcher.OpCreate, IsDir: true},
		{Path: ".cache/x.md", Operation: watcher.OpModify},
	})

	// Then: the stores follow the filesystem
	assert.Equal(t, EventSummary{Indexed: 1, Deleted: 1, Skipped: 2}, sum)
	assert.Equal(t, 1, h.chunkCount(t, docid.DocID(added)))
	assert.Zero(t, h.chunkCount(t, docid.DocID(removed)))
}

func TestCoordinator_Rename(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := newTestCoordinator(h)
	oldPath := h.write(t, "a.md", words(10))
	require.True(t, h.ix.IndexFile(ctx, oldPath).OK())
	require.NoError(t, os.Rename(oldPath, h.root+"/b.md"))

	sum := c.HandleEvents(ctx, []watcher.FileEvent{{Path: "b.md", OldPath: "a.md", Operation: watcher.OpRename}})

	assert.Equal(t, 1, sum.Indexed)
	assert.Equal(t, 1, sum.Deleted)
	assert.Zero(t, h.chunkCount(t, docid.DocID(oldPath)))
}

func TestCoordinator_SkipsOversizedFiles(t *testing.T) {
	h := newHarness(t)
	c := NewCoordinator(CoordinatorConfig{Indexer: h.ix, RootPath: h.root, MaxFileSize: 10})
	h.write(t, "big.md", words(100))

	sum := c.HandleEvents(context.Background(), []watcher.FileEvent{{Path: "big.md", Operation: watcher.OpModify}})

	assert.Equal(t, 1, sum.Skipped)
	assert.Zero(t, sum.Indexed)
}

func TestCoordinator_CatchUp(t *testing.T) {
	// Given: one unchanged, one modified, one deleted and one new file
	ctx := context.Background()
	h := newHarness(t)
	c := newTestCoordinator(h)
	unchanged := h.write(t, "same.md", words(10))
	modified := h.write(t, "edit.md", words(10))
	deleted := h.write(t, "gone.md", words(10))
	_, err := h.ix.Rebuild(ctx)
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	h.write(t, "edit.md", words(20))
	require.NoError(t, os.Chtimes(modified, future, future))
	require.NoError(t, os.Remove(deleted))
	added := h.write(t, "new.md", words(10))
	require.NoError(t, os.Chtimes(unchanged, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)))

	// When: catching up
	sum, err := c.CatchUp(ctx)

	// Then: only the differences are applied
	require.NoError(t, err)
	assert.Equal(t, EventSummary{Indexed: 2, Deleted: 1}, sum)
	assert.Equal(t, 1, h.chunkCount(t, docid.DocID(added)))
	assert.Zero(t, h.chunkCount(t, docid.DocID(deleted)))
	doc, _ := h.tracker.GetDocument(ctx, docid.DocID(modified))
	assert.Equal(t, 20, doc.Tokens)
}
