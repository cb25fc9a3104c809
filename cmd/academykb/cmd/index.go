package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/academykb/internal/async"
	"github.com/Aman-CERP/academykb/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		noTUI      bool
		clear      bool
		skipChecks bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the collection from the raw content root",
		Long: `Index every supported file under paths.raw_root.

Directories starting with "." and those listed in index.ignore_dirs are
skipped. A file that fails to extract, embed or store is reported and the
rebuild continues with the next one.

By default existing chunks are replaced document by document and documents
whose files disappeared are pruned. Use --clear to empty the collection
before rebuilding.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, noTUI, clear, skipChecks)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&clear, "clear", false, "Clear the collection before rebuilding")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Skip the system checks run before the first rebuild")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, noTUI, clear, skipChecks bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !skipChecks {
		if err := runPreflight(cmd, cfg); err != nil {
			return err
		}
	}

	// Claim the rebuild guard before opening the stores so a second
	// index run fails fast instead of waiting on the store files.
	guard := async.NewReindexer(cfg.Paths.CollectionDir, nil, nil)
	release, err := guard.Hold()
	if err != nil {
		return err
	}
	defer release()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithRootDir(cfg.Paths.RawRoot)))

	a, err := openApp(appOptions{progress: renderer})
	if err != nil {
		return err
	}
	defer a.Close()
	if clear {
		a.cfg.Index.ClearBeforeRebuild = true
	}

	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start progress display: %w", err)
	}

	guard.Rebuild = a.indexer.Rebuild
	_, err = guard.RunHeld(ctx)
	if stopErr := renderer.Stop(); stopErr != nil {
		slog.Debug("renderer_stop_failed", slog.String("error", stopErr.Error()))
	}
	return err
}
