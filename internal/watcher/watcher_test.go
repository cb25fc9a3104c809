package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "RENAME", OpRename.String())
	assert.Equal(t, "UNKNOWN", Operation(99).String())
}

func TestOptions_WithDefaults(t *testing.T) {
	// Given: options with only ignore dirs set
	opts := Options{IgnoreDirs: []string{"_assets"}}

	// When: defaults are applied
	got := opts.WithDefaults()

	// Then: zero values are filled and set values kept
	assert.Equal(t, 500*time.Millisecond, got.DebounceWindow)
	assert.Equal(t, 5*time.Second, got.PollInterval)
	assert.Equal(t, 100, got.EventBufferSize)
	assert.Equal(t, []string{"_assets"}, got.IgnoreDirs)
}

func TestOptions_WithDefaultsKeepsExplicit(t *testing.T) {
	got := Options{DebounceWindow: time.Second, PollInterval: time.Minute, EventBufferSize: 5}.WithDefaults()

	assert.Equal(t, time.Second, got.DebounceWindow)
	assert.Equal(t, time.Minute, got.PollInterval)
	assert.Equal(t, 5, got.EventBufferSize)
}

func TestPathFilter_Skip(t *testing.T) {
	f := newPathFilter([]string{"_assets"})

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"lighting/softboxes.md", false, false},
		{"faq.csv", false, false},
		{".", true, true},
		{"", false, true},
		{".git", true, true},
		{".git/HEAD", false, true},
		{"lighting/.draft.md", false, true},
		{"_assets", true, true},
		{"_assets/cover.md", false, true},
		{"lighting/_assets/x.md", false, true},
		{"_assets", false, false},
		{"_assets_old/x.md", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, f.skip(tt.path, tt.isDir))
		})
	}
}
