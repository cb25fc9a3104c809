package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/academykb/internal/index"
	"github.com/Aman-CERP/academykb/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var polling bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the collection in sync with the raw content root",
		Long: `Watch paths.raw_root and index files as they change.

On start, files added, modified or removed while nothing was watching are
caught up. Afterwards each change is indexed incrementally once the file
has been quiet for index.watch_debounce. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl-C to stop)\n", a.cfg.Paths.RawRoot)
			err = a.watch(ctx, polling, func(sum index.EventSummary) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d, deleted %d, failed %d\n",
					sum.Indexed, sum.Deleted, sum.Failed)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&polling, "poll", false, "Use polling instead of file system notifications")

	return cmd
}

// watch catches up with changes made while nothing was watching, then
// indexes change batches until ctx is done. report, if set, is called
// after every batch that did something.
func (a *app) watch(ctx context.Context, forcePolling bool, report func(index.EventSummary)) error {
	coord := index.NewCoordinator(index.CoordinatorConfig{
		Indexer:    a.indexer,
		RootPath:   a.cfg.Paths.RawRoot,
		IgnoreDirs: a.cfg.Index.IgnoreDirs,
	})

	sum, err := coord.CatchUp(ctx)
	if err != nil {
		return fmt.Errorf("catch up: %w", err)
	}
	if report != nil && sum.Indexed+sum.Deleted+sum.Failed > 0 {
		report(sum)
	}

	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: a.cfg.Index.WatchDebounce,
		IgnoreDirs:     a.cfg.Index.IgnoreDirs,
		ForcePolling:   forcePolling,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	startErr := make(chan error, 1)
	go func() { startErr <- w.Start(ctx, a.cfg.Paths.RawRoot) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-startErr:
			if err != nil {
				return fmt.Errorf("watch %s: %w", a.cfg.Paths.RawRoot, err)
			}
			return ctx.Err()
		case err := <-w.Errors():
			if err != nil {
				a.log.Warn("watcher_error", slog.String("error", err.Error()))
			}
		case events := <-w.Events():
			sum := coord.HandleEvents(ctx, events)
			if report != nil && sum.Indexed+sum.Deleted+sum.Failed > 0 {
				report(sum)
			}
		}
	}
}
