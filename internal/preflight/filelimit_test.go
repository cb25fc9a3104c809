package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountWatchTree_FollowsWatcherSkipRules(t *testing.T) {
	// Given: a raw root with hidden and ignored directories
	root := t.TempDir()
	for _, dir := range []string{"exposure", "exposure/night", "qa", ".git/objects", "drafts"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0755))
	}
	for _, file := range []string{"exposure/iso.md", "exposure/night/stars.md", "qa/faq.csv", ".git/HEAD", "drafts/wip.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, file), []byte("x"), 0644))
	}

	// When: counting what the watcher would register
	tree, err := countWatchTree(root, []string{"drafts"})

	// Then: hidden and ignored subtrees are left out
	require.NoError(t, err)
	assert.Equal(t, watchTree{Dirs: 4, Files: 3}, tree)
}

func TestRequiredDescriptors_ScalesOnKqueue(t *testing.T) {
	tree := watchTree{Dirs: 300, Files: 2000}

	assert.Equal(t, uint64(MinFileDescriptors+2300), requiredDescriptors("darwin", tree))
	assert.Equal(t, uint64(MinFileDescriptors), requiredDescriptors("linux", tree))
}

func TestEvaluateDescriptors(t *testing.T) {
	large := watchTree{Dirs: 5000, Files: 20000}

	tests := []struct {
		name     string
		current  uint64
		goos     string
		tree     watchTree
		watches  int
		want     CheckStatus
		contains string
	}{
		{"small tree passes", 2048, "darwin", watchTree{Dirs: 3, Files: 10}, 0, StatusPass, "minimum: 1037"},
		{"kqueue tree exceeds limit", 10240, "darwin", large, 0, StatusFail, "ulimit -n 26024"},
		{"low limit fails anywhere", 256, "linux", watchTree{Dirs: 1}, 8192, StatusFail, "ulimit -n 10240"},
		{"inotify watches exhausted", 4096, "linux", large, 1000, StatusWarn, "--poll"},
		{"unknown inotify limit passes", 4096, "linux", large, 0, StatusPass, "5000 watched directories"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: evaluating the limit for the tree
			got := evaluateDescriptors(CheckResult{Name: "file_descriptors", Required: true}, tt.current, tt.goos, tt.tree, tt.watches)

			// Then: the status and hint match
			assert.Equal(t, tt.want, got.Status)
			assert.Contains(t, got.Message+" "+got.Details, tt.contains)
		})
	}
}

func TestCheckFileDescriptors_MissingRootStillChecksLimit(t *testing.T) {
	// Given: a raw root that does not exist
	root := filepath.Join(t.TempDir(), "missing")

	// When: checking descriptors
	result := New().CheckFileDescriptors(root, nil)

	// Then: the check still reports the process limit
	assert.Equal(t, "file_descriptors", result.Name)
	assert.Contains(t, result.Message, "0 watched directories")
}
