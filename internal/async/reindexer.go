package async

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/semaphore"

	kberrors "github.com/Aman-CERP/academykb/internal/errors"
	"github.com/Aman-CERP/academykb/internal/index"
)

// LockFile is the name of the cross-process lock inside the lock directory.
const LockFile = ".reindex.lock"

// StartStatus is the answer to a rebuild trigger.
type StartStatus string

const (
	StartStarted        StartStatus = "started"
	StartAlreadyRunning StartStatus = "already_running"
)

// ErrReindexRunning is returned by RunSync when another rebuild holds the guard.
var ErrReindexRunning = kberrors.New(kberrors.ErrCodeReindexRunning, "a rebuild is already running", nil)

// RebuildFunc performs one full rebuild.
type RebuildFunc func(ctx context.Context) (index.RebuildResult, error)

// Reindexer admits at most one rebuild at a time: in-process through a
// one-slot semaphore, across processes through a file lock.
type Reindexer struct {
	// Rebuild is the work to run. It can be injected for testing.
	Rebuild RebuildFunc

	sem      *semaphore.Weighted
	lock     *flock.Flock
	lockDir  string
	progress *Progress
	log      *slog.Logger
	wg       sync.WaitGroup
}

// NewReindexer creates a guard whose lock file lives in lockDir. A nil
// logger follows slog.Default at the time of each event.
func NewReindexer(lockDir string, rebuild RebuildFunc, logger *slog.Logger) *Reindexer {
	return &Reindexer{
		Rebuild:  rebuild,
		sem:      semaphore.NewWeighted(1),
		lock:     flock.New(filepath.Join(lockDir, LockFile)),
		lockDir:  lockDir,
		progress: NewProgress(),
		log:      logger,
	}
}

func (r *Reindexer) logger() *slog.Logger {
	if r.log == nil {
		return slog.Default()
	}
	return r.log
}

// Progress returns the tracker that rebuilds report into.
func (r *Reindexer) Progress() *Progress {
	return r.progress
}

// Start launches a rebuild in the background and returns immediately.
// A rebuild already in flight, here or in another process, yields
// StartAlreadyRunning. The run is detached from ctx cancellation.
func (r *Reindexer) Start(ctx context.Context) (StartStatus, error) {
	ok, err := r.acquire()
	if err != nil {
		return "", err
	}
	if !ok {
		r.logger().Info("reindex_rejected", slog.String("reason", string(StartAlreadyRunning)))
		return StartAlreadyRunning, nil
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release()
		_, _ = r.run(context.WithoutCancel(ctx))
	}()
	return StartStarted, nil
}

// RunSync runs a rebuild on the calling goroutine.
func (r *Reindexer) RunSync(ctx context.Context) (index.RebuildResult, error) {
	release, err := r.Hold()
	if err != nil {
		return index.RebuildResult{}, err
	}
	defer release()
	return r.RunHeld(ctx)
}

// Hold takes the guard without running anything, so a caller can claim it
// before opening the stores. It returns ErrReindexRunning when a rebuild
// holds the guard. The returned release must be called exactly once.
func (r *Reindexer) Hold() (release func(), err error) {
	ok, err := r.acquire()
	if err != nil {
		return nil, err
	}
	if !ok {
		r.logger().Info("reindex_rejected", slog.String("reason", string(StartAlreadyRunning)))
		return nil, ErrReindexRunning
	}
	var once sync.Once
	return func() { once.Do(r.release) }, nil
}

// RunHeld runs a rebuild on the calling goroutine. The caller must hold the
// guard through Hold.
func (r *Reindexer) RunHeld(ctx context.Context) (index.RebuildResult, error) {
	return r.run(ctx)
}

// Wait blocks until every background rebuild started by Start has finished.
func (r *Reindexer) Wait() {
	r.wg.Wait()
}

func (r *Reindexer) run(ctx context.Context) (index.RebuildResult, error) {
	start := time.Now()
	r.progress.begin(start)
	r.logger().Info("reindex_started")

	var (
		res index.RebuildResult
		err error
	)
	if r.Rebuild == nil {
		err = fmt.Errorf("no rebuild function configured")
	} else {
		res, err = r.runGuarded(ctx)
	}
	r.progress.finish(res, err, time.Now())

	if err != nil {
		r.logger().Error("reindex_failed", slog.String("error", err.Error()))
		return res, err
	}
	r.logger().Info("reindex_finished",
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return res, nil
}

// runGuarded turns a panic in the rebuild into an error so the guard is released.
func (r *Reindexer) runGuarded(ctx context.Context) (res index.RebuildResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = kberrors.New(kberrors.ErrCodeInternal, fmt.Sprintf("rebuild panicked: %v", p), nil)
		}
	}()
	return r.Rebuild(ctx)
}

// acquire takes the semaphore slot and then the file lock.
func (r *Reindexer) acquire() (bool, error) {
	if !r.sem.TryAcquire(1) {
		return false, nil
	}
	if err := os.MkdirAll(r.lockDir, 0o755); err != nil {
		r.sem.Release(1)
		return false, kberrors.IOFailure(r.lockDir, err)
	}
	locked, err := r.lock.TryLock()
	if err != nil {
		r.sem.Release(1)
		return false, kberrors.IOFailure(r.lock.Path(), err)
	}
	if !locked {
		r.sem.Release(1)
		return false, nil
	}
	return true, nil
}

func (r *Reindexer) release() {
	if err := r.lock.Unlock(); err != nil {
		r.logger().Warn("reindex_unlock_failed", slog.String("error", err.Error()))
	}
	r.sem.Release(1)
}
