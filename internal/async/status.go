// Package async runs full rebuilds in the background behind a single-run guard.
package async

import (
	"context"
	"sync"
	"time"

	"github.com/Aman-CERP/academykb/internal/index"
	"github.com/Aman-CERP/academykb/internal/ui"
)

// Status is the state of the background rebuild.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusIndexing Status = "indexing"
	StatusReady    Status = "ready"
	StatusError    Status = "error"
)

// ProgressSnapshot is an immutable copy of rebuild progress.
type ProgressSnapshot struct {
	Status         Status               `json:"status"`
	Stage          string               `json:"stage,omitempty"`
	FilesTotal     int                  `json:"files_total"`
	FilesProcessed int                  `json:"files_processed"`
	FilesFailed    int                  `json:"files_failed"`
	ProgressPct    float64              `json:"progress_pct"`
	StartedAt      time.Time            `json:"started_at,omitempty"`
	ElapsedSeconds int                  `json:"elapsed_seconds"`
	ErrorMessage   string               `json:"error_message,omitempty"`
	LastResult     *index.RebuildResult `json:"last_result,omitempty"`
}

// Progress tracks a rebuild. It implements ui.Renderer so the indexer can
// report into it directly.
type Progress struct {
	mu sync.RWMutex

	status         Status
	stage          ui.Stage
	filesTotal     int
	filesProcessed int
	filesFailed    int
	startedAt      time.Time
	finishedAt     time.Time
	errorMessage   string
	lastResult     *index.RebuildResult
}

// NewProgress returns an idle tracker.
func NewProgress() *Progress {
	return &Progress{status: StatusIdle}
}

// begin resets the tracker for a new run.
func (p *Progress) begin(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusIndexing
	p.stage = ui.StageScanning
	p.filesTotal, p.filesProcessed, p.filesFailed = 0, 0, 0
	p.startedAt = now
	p.finishedAt = time.Time{}
	p.errorMessage = ""
}

// finish records the outcome of a run.
func (p *Progress) finish(res index.RebuildResult, err error, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.finishedAt = now
	if err != nil {
		p.status = StatusError
		p.errorMessage = err.Error()
		return
	}
	p.status = StatusReady
	p.stage = ui.StageComplete
	p.lastResult = &res
}

// Start implements ui.Renderer.
func (p *Progress) Start(context.Context) error { return nil }

// UpdateProgress implements ui.Renderer.
func (p *Progress) UpdateProgress(event ui.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = event.Stage
	if event.Stage == ui.StageIndexing {
		p.filesTotal = event.Total
		p.filesProcessed = event.Current
	}
}

// AddError implements ui.Renderer.
func (p *Progress) AddError(event ui.ErrorEvent) {
	if event.IsWarn {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filesFailed++
}

// Complete implements ui.Renderer.
func (p *Progress) Complete(ui.CompletionStats) {}

// Stop implements ui.Renderer.
func (p *Progress) Stop() error { return nil }

// IsIndexing reports whether a rebuild is in flight.
func (p *Progress) IsIndexing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status == StatusIndexing
}

// Snapshot returns the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := ProgressSnapshot{
		Status:         p.status,
		FilesTotal:     p.filesTotal,
		FilesProcessed: p.filesProcessed,
		FilesFailed:    p.filesFailed,
		StartedAt:      p.startedAt,
		ErrorMessage:   p.errorMessage,
		LastResult:     p.lastResult,
	}
	if p.status != StatusIdle {
		snap.Stage = p.stage.String()
	}
	if p.filesTotal > 0 {
		snap.ProgressPct = float64(p.filesProcessed) / float64(p.filesTotal) * 100.0
	}
	if !p.startedAt.IsZero() {
		end := p.finishedAt
		if end.IsZero() {
			end = time.Now()
		}
		snap.ElapsedSeconds = int(end.Sub(p.startedAt).Seconds())
	}
	return snap
}

var _ ui.Renderer = (*Progress)(nil)
