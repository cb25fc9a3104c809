package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStage_StringAndIcon(t *testing.T) {
	tests := []struct {
		stage Stage
		name  string
		icon  string
	}{
		{StageScanning, "Scanning", "SCAN"},
		{StageIndexing, "Indexing", "INDEX"},
		{StagePruning, "Pruning", "PRUNE"},
		{StageComplete, "Complete", "DONE"},
		{Stage(42), "Unknown", "???"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.stage.String())
			assert.Equal(t, tt.icon, tt.stage.Icon())
		})
	}
}

func TestStage_OrderFollowsRebuild(t *testing.T) {
	assert.Less(t, StageScanning, StageIndexing)
	assert.Less(t, StageIndexing, StagePruning)
	assert.Less(t, StagePruning, StageComplete)
}

func TestNewConfig_AppliesOptions(t *testing.T) {
	// Given: a buffer and options
	buf := &bytes.Buffer{}

	// When: building the config
	cfg := NewConfig(buf, WithForcePlain(true), WithNoColor(true), WithRootDir("/kb/raw"))

	// Then: every option is applied
	assert.Same(t, buf, cfg.Output)
	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "/kb/raw", cfg.RootDir)
}

func TestNewRenderer_NonTTYIsPlain(t *testing.T) {
	// Given: output that is not a terminal
	r := NewRenderer(NewConfig(&bytes.Buffer{}))

	// Then: the plain renderer is used
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestIsTTY_NonFile(t *testing.T) {
	assert.False(t, IsTTY(nil))
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestDetectCI(t *testing.T) {
	t.Setenv("GITHUB_ACTIONS", "true")
	assert.True(t, DetectCI())
}
