package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LogFileName is the file name used inside the log directory.
const LogFileName = "academykb.log"

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Dir is the log directory. Empty disables file logging.
	Dir       string
	MaxSizeMB int
	MaxFiles  int
	// WriteToStderr tees log records to stderr.
	WriteToStderr bool
}

// Path returns the active log file path, or "" when file logging is disabled.
func (c Config) Path() string {
	if c.Dir == "" {
		return ""
	}
	return filepath.Join(c.Dir, LogFileName)
}

// Setup builds a JSON logger and returns a cleanup function that flushes and
// closes the log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var (
		writers []io.Writer
		rw      *RotatingWriter
	)

	if path := cfg.Path(); path != "" {
		var err error
		rw, err = NewRotatingWriter(path, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, rw)
	}
	if cfg.WriteToStderr {
		writers = append(writers, os.Stderr)
	}

	var output io.Writer
	switch len(writers) {
	case 0:
		output = io.Discard
	case 1:
		output = writers[0]
	default:
		output = io.MultiWriter(writers...)
	}

	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}))

	cleanup := func() {
		if rw != nil {
			_ = rw.Sync()
			_ = rw.Close()
		}
	}
	return logger, cleanup, nil
}

// SetupDefault configures logging and installs the logger as slog.Default.
func SetupDefault(cfg Config) (func(), error) {
	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// SetupServeMode configures file-only logging for the MCP stdio server.
func SetupServeMode(cfg Config) (func(), error) {
	cfg.WriteToStderr = false
	cleanup, err := SetupDefault(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("serve_logging_initialized",
		slog.String("log_file", cfg.Path()),
		slog.String("level", cfg.Level))
	return cleanup, nil
}

// ParseLevel converts a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
