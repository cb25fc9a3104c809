package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/academykb/internal/index"
	"github.com/Aman-CERP/academykb/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the knowledge base to MCP clients",
		Long: `Start an MCP server on stdio exposing query_knowledge_base, reindex,
index_file, delete_document and index_status, plus every indexed document
as a kb://documents/ resource.

Logs go to the log file only; stdout carries the protocol. With --watch the
raw content root is kept in sync while the server runs.`,
		Example: `  # Claude Desktop / any MCP client
  academykb serve --dir /srv/academy

  # Keep the collection fresh while serving
  academykb serve --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, transport, watch)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport to serve on (stdio)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Index file changes under the raw content root while serving")

	return cmd
}

func runServe(ctx context.Context, transport string, watch bool) error {
	a, err := openApp(appOptions{serve: true})
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := mcp.NewServer(mcp.Dependencies{
		Query:     a.query,
		Indexer:   a.indexer,
		Reindexer: a.reindexer(),
		Config:    a.cfg,
		Tracker:   a.tracker,
		Extractor: a.extractor,
		Embedder:  a.embedder,
		Logger:    a.log,
	})
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	if err := srv.RegisterResources(ctx); err != nil {
		a.log.Warn("resource_registration_failed", slog.String("error", err.Error()))
	}

	if watch {
		watchCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		defer func() {
			cancel()
			<-done
		}()
		go func() {
			defer close(done)
			err := a.watch(watchCtx, false, func(sum index.EventSummary) {
				a.log.Info("watch_batch",
					slog.Int("indexed", sum.Indexed),
					slog.Int("deleted", sum.Deleted),
					slog.Int("failed", sum.Failed))
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("watch_stopped", slog.String("error", err.Error()))
			}
		}()
	}

	a.log.Info("serve_started", slog.String("transport", transport), slog.Bool("watch", watch))
	err = srv.Serve(ctx, transport)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
