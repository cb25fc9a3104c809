package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress_OutputFormat(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: reporting the first file of three
	r.UpdateProgress(ProgressEvent{
		Stage:       StageIndexing,
		Current:     0,
		Total:       3,
		CurrentFile: "raw/lighting/softboxes.md",
	})

	// Then: the line is tagged and counted from one
	assert.Equal(t, "[INDEX] 1/3 - raw/lighting/softboxes.md\n", buf.String())
}

func TestPlainRenderer_UpdateProgress_MessageWithoutTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{Stage: StageScanning, Message: "/kb/raw"})

	assert.Equal(t, "[SCAN] /kb/raw\n", buf.String())
}

func TestPlainRenderer_UpdateProgress_SilentWithoutText(t *testing.T) {
	// Given: an event with neither message nor file
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: rendering it
	r.UpdateProgress(ProgressEvent{Stage: StagePruning})

	// Then: nothing is printed
	assert.Empty(t, buf.String())
}

func TestPlainRenderer_UpdateProgress_NoANSICodes(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	for _, stage := range []Stage{StageScanning, StageIndexing, StagePruning, StageComplete} {
		r.UpdateProgress(ProgressEvent{Stage: stage, Current: 1, Total: 2, Message: "working"})
	}

	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestPlainRenderer_AddError(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: adding a failure and a warning
	r.AddError(ErrorEvent{File: "raw/broken.pdf", Err: errors.New("unsupported_format: bad header")})
	r.AddError(ErrorEvent{Err: errors.New("slow embedder"), IsWarn: true})

	// Then: both are printed with their prefix
	assert.Equal(t, "ERROR: raw/broken.pdf: unsupported_format: bad header\nWARN: slow embedder\n", buf.String())
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	require.NoError(t, r.Start(context.Background()))

	// When: completing with failures and pruned documents
	r.Complete(CompletionStats{
		Files:     10,
		Succeeded: 9,
		Failed:    1,
		Chunks:    42,
		Pruned:    2,
		Duration:  1234 * time.Millisecond,
		Embedder:  EmbedderInfo{Model: "text-embedding-3-small", Dimensions: 1536},
	})
	require.NoError(t, r.Stop())

	// Then: the summary lists every total
	assert.Equal(t,
		"Complete: 9/10 files, 42 chunks in 1.2s (1 failed), 2 pruned\n"+
			"Embeddings: text-embedding-3-small (1536 dims)\n",
		buf.String())
}

func TestPlainRenderer_CompleteMinimal(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Complete(CompletionStats{Files: 0, Duration: 0})

	assert.Equal(t, "Complete: 0/0 files, 0 chunks in 0s\n", buf.String())
}
