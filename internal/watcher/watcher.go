package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file moved from OldPath to Path.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system event.
type FileEvent struct {
	// Path is relative to the watched root.
	Path string

	// OldPath is the previous path for rename events.
	OldPath string

	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is how long a path must stay quiet before its event is emitted.
	// Default: 500ms
	DebounceWindow time.Duration

	// PollInterval is the scan interval in polling mode.
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the number of batches buffered before new ones are dropped.
	// Default: 100
	EventBufferSize int

	// IgnoreDirs are directory names skipped anywhere under the root.
	IgnoreDirs []string

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 100,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// pathFilter decides which root-relative paths are watched.
type pathFilter struct {
	ignore map[string]bool
}

func newPathFilter(dirs []string) pathFilter {
	f := pathFilter{ignore: make(map[string]bool, len(dirs))}
	for _, d := range dirs {
		f.ignore[d] = true
	}
	return f
}

// skip reports whether relPath is hidden or lies in an ignored directory.
// The last component is only checked against the ignore list when it is a directory.
func (f pathFilter) skip(relPath string, isDir bool) bool {
	if relPath == "" || relPath == "." {
		return true
	}
	parts := strings.Split(filepath.ToSlash(relPath), "/")
	for i, p := range parts {
		if strings.HasPrefix(p, ".") {
			return true
		}
		if (i < len(parts)-1 || isDir) && f.ignore[p] {
			return true
		}
	}
	return false
}
