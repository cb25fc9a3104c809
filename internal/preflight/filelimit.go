package preflight

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// MinFileDescriptors covers the stores, the log file and provider
// connections before any watcher descriptors are counted.
const MinFileDescriptors = 1024

// inotifyWatchesPath holds the per-user inotify watch limit on Linux.
var inotifyWatchesPath = "/proc/sys/fs/inotify/max_user_watches"

// watchTree is what the watcher would register under the raw root.
type watchTree struct {
	Dirs  int
	Files int
}

// countWatchTree walks root with the watcher's skip rules: hidden
// directories and those named in ignoreDirs are not descended into.
func countWatchTree(root string, ignoreDirs []string) (watchTree, error) {
	skip := make(map[string]bool, len(ignoreDirs))
	for _, name := range ignoreDirs {
		skip[name] = true
	}

	var tree watchTree
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			tree.Files++
			return nil
		}
		if path != root && (strings.HasPrefix(d.Name(), ".") || skip[d.Name()]) {
			return fs.SkipDir
		}
		tree.Dirs++
		return nil
	})
	return tree, err
}

// requiredDescriptors is the descriptor floor for watching tree on goos.
// kqueue opens one descriptor per watched directory and per file inside it.
// inotify needs one descriptor in total, so only the floor applies.
func requiredDescriptors(goos string, tree watchTree) uint64 {
	switch goos {
	case "darwin", "freebsd", "openbsd", "netbsd", "dragonfly":
		return MinFileDescriptors + uint64(tree.Dirs+tree.Files)
	default:
		return MinFileDescriptors
	}
}

// readInotifyWatches returns the inotify watch limit, or 0 when unknown.
func readInotifyWatches() int {
	data, err := os.ReadFile(inotifyWatchesPath)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return n
}

// CheckFileDescriptors checks that the process can open enough files to run
// the stores and watch every directory under root.
func (c *Checker) CheckFileDescriptors(root string, ignoreDirs []string) CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	// An unreadable root is reported by the raw_root check.
	tree, _ := countWatchTree(root, ignoreDirs)
	return evaluateDescriptors(result, rLimit.Cur, runtime.GOOS, tree, readInotifyWatches())
}

func evaluateDescriptors(result CheckResult, current uint64, goos string, tree watchTree, inotifyWatches int) CheckResult {
	required := requiredDescriptors(goos, tree)
	result.Message = fmt.Sprintf("%d (minimum: %d for %d watched directories)", current, required, tree.Dirs)

	if current < required {
		result.Status = StatusFail
		result.Details = fmt.Sprintf("Run 'ulimit -n %d' to increase the limit", max(required, 10240))
		return result
	}

	if goos == "linux" && inotifyWatches > 0 && tree.Dirs > inotifyWatches {
		result.Status = StatusWarn
		result.Details = fmt.Sprintf("fs.inotify.max_user_watches is %d; raise it or run watch with --poll", inotifyWatches)
		return result
	}

	result.Status = StatusPass
	return result
}
