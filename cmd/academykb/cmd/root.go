// Package cmd provides the CLI commands for academykb.
package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/academykb/internal/config"
	"github.com/Aman-CERP/academykb/internal/logging"
	"github.com/Aman-CERP/academykb/pkg/version"
)

// Global flags
var (
	projectDir     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the academykb CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "academykb",
		Short: "Photography academy knowledge base indexer",
		Long: `academykb turns a tree of lessons, transcripts and Q&A sheets into a
searchable vector collection.

It extracts text from Markdown, plain text, HTML, PDF, DOCX and CSV files,
splits it into overlapping token windows, embeds each window and keeps a
SQLite table describing every indexed document.

Run 'academykb index' to build the collection, then 'academykb query' or
'academykb serve' to answer questions from it.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("academykb version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&projectDir, "dir", ".", "Project directory containing academykb.yaml and data/")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr")

	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newReconcileCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		_, _ = fmt.Fprint(root.ErrOrStderr(), formatError(err))
	}
	return err
}

// loadConfig loads configuration for the --dir project.
func loadConfig() (*config.Config, error) {
	dir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Logging.Level = "debug"
		cfg.Logging.ToStderr = true
	}
	return cfg, nil
}

// startLogging installs the file logger. Serve mode never writes to stderr
// so the stdio transport stays clean.
func startLogging(cfg *config.Config, serve bool) error {
	lc := logging.Config{
		Level:         cfg.Logging.Level,
		Dir:           cfg.Paths.LogDir,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: cfg.Logging.ToStderr,
	}

	var (
		cleanup func()
		err     error
	)
	if serve {
		cleanup, err = logging.SetupServeMode(lc)
	} else {
		cleanup, err = logging.SetupDefault(lc)
	}
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.Debug("logging_started", slog.String("log_file", lc.Path()), slog.String("version", version.Version))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}
