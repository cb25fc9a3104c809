package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Aman-CERP/academykb/internal/async"
	"github.com/Aman-CERP/academykb/internal/chunk"
	"github.com/Aman-CERP/academykb/internal/config"
	"github.com/Aman-CERP/academykb/internal/embed"
	kberrors "github.com/Aman-CERP/academykb/internal/errors"
	"github.com/Aman-CERP/academykb/internal/extract"
	"github.com/Aman-CERP/academykb/internal/index"
	"github.com/Aman-CERP/academykb/internal/query"
	"github.com/Aman-CERP/academykb/internal/store"
	"github.com/Aman-CERP/academykb/internal/ui"
)

// app wires the pipeline for one command invocation.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	extractor *extract.Extractor
	embedder  embed.Embedder
	vectors   *store.Collection
	tracker   *store.SQLiteTracker
	indexer   *index.Indexer
	query     *query.Service
}

type appOptions struct {
	serve    bool
	progress ui.Renderer
	// offline tolerates a misconfigured embedding provider for commands
	// that never embed.
	offline bool
}

// openApp loads configuration, starts logging and opens both stores.
func openApp(opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := startLogging(cfg, opts.serve); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: slog.Default(), extractor: extract.New()}
	if err := a.open(opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(opts appOptions) error {
	cfg := a.cfg
	if err := os.MkdirAll(cfg.Paths.CollectionDir, 0o755); err != nil {
		return kberrors.IOFailure(cfg.Paths.CollectionDir, err)
	}

	bc, err := embed.NewFromConfig(cfg.Embeddings, a.log)
	switch {
	case err == nil:
		a.embedder = bc
	case opts.offline:
		a.log.Debug("embedder_unavailable", slog.String("error", err.Error()))
		a.embedder = &unavailableEmbedder{model: cfg.Embeddings.Model, dims: cfg.Embeddings.Dimensions, err: err}
	default:
		return err
	}

	a.vectors, err = store.OpenCollection(store.CollectionConfig{Dir: cfg.Paths.CollectionDir})
	if err != nil {
		return err
	}
	a.tracker, err = store.OpenTracker(cfg.Paths.DatabasePath)
	if err != nil {
		return err
	}

	tok, err := chunk.NewTiktokenTokenizer(cfg.Index.Encoding)
	if err != nil {
		return kberrors.ConfigError("load tokenizer "+cfg.Index.Encoding, err)
	}
	chunker, err := chunk.New(
		chunk.WithChunkSize(cfg.Index.ChunkSize),
		chunk.WithOverlap(cfg.Index.ChunkOverlap),
		chunk.WithTokenizer(tok))
	if err != nil {
		return kberrors.ConfigError("invalid chunking parameters", err)
	}

	a.indexer, err = index.New(index.Dependencies{
		Extractor: a.extractor,
		Chunker:   chunker,
		Embedder:  a.embedder,
		Vectors:   a.vectors,
		Tracker:   a.tracker,
		Config:    cfg,
		Logger:    a.log,
		Progress:  opts.progress,
	})
	if err != nil {
		return err
	}

	queryEmbedder := embed.NewQueryEmbedder(a.embedder, cfg.Embeddings)
	a.query = query.NewService(queryEmbedder, a.vectors, a.tracker, cfg.Query, a.log)
	return nil
}

// unavailableEmbedder stands in for a provider that could not be built.
// It reports the configured model and fails every embedding call.
type unavailableEmbedder struct {
	model string
	dims  int
	err   error
}

func (u *unavailableEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, u.err }
func (u *unavailableEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, u.err
}
func (u *unavailableEmbedder) Dimensions() int   { return u.dims }
func (u *unavailableEmbedder) ModelName() string { return u.model }
func (u *unavailableEmbedder) Close() error      { return nil }

// reindexer guards rebuilds with the lock file in the collection directory.
func (a *app) reindexer() *async.Reindexer {
	return async.NewReindexer(a.cfg.Paths.CollectionDir, a.indexer.Rebuild, a.log)
}

// Close releases the stores and stops logging.
func (a *app) Close() {
	var errs []error
	if a.vectors != nil {
		errs = append(errs, a.vectors.Close())
	}
	if a.tracker != nil {
		errs = append(errs, a.tracker.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("close_failed", slog.String("error", err.Error()))
	}
	_ = stopLogging(nil, nil)
}

// formatError renders errors for the terminal, keeping hints and codes of
// structured errors.
func formatError(err error) string {
	if _, ok := kberrors.As(err); ok {
		return kberrors.FormatForCLI(err)
	}
	return fmt.Sprintf("Error: %v\n", err)
}
