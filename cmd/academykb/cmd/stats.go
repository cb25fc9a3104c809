package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/academykb/internal/ui"
)

// statusMisses is how many recent misses stats lists.
const statusMisses = 5

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "stats",
		Aliases: []string{"status"},
		Short:   "Show knowledge base statistics",
		Long: `Display information about the knowledge base:
  - Number of documents, chunks and tokens
  - Last indexing time and the outcome of the last run
  - Storage sizes of the collection and the tracking database
  - Embedding model and similarity threshold
  - Recent questions that found no answer`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStats(cmd *cobra.Command, jsonOutput bool) error {
	a, err := openApp(appOptions{offline: true})
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := a.collectStatus(cmd.Context())
	if err != nil {
		return err
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

func (a *app) collectStatus(ctx context.Context) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		RawRoot:       a.cfg.Paths.RawRoot,
		EmbedderModel: a.embedder.ModelName(),
		Dimensions:    a.embedder.Dimensions(),
	}

	qs, err := a.query.Stats(ctx)
	if err != nil {
		return info, err
	}
	info.Chunks = qs.Count
	info.Documents = qs.Documents
	info.LastIndexed = qs.LastIndexed
	info.Threshold = qs.Threshold

	ts, err := a.tracker.Stats(ctx)
	if err != nil {
		return info, err
	}
	info.Tokens = ts.Tokens

	run, err := a.tracker.LastRun(ctx)
	if err != nil {
		return info, err
	}
	if run != nil {
		info.LastRunMode = run.Mode
		info.LastRunAt = run.FinishedAt
		info.LastRunFailed = run.Failed
	}

	misses, err := a.tracker.RecentMisses(ctx, statusMisses)
	if err != nil {
		return info, err
	}
	for _, m := range misses {
		info.RecentMisses = append(info.RecentMisses, m.Question)
	}

	info.CollectionSize = getDirSize(a.cfg.Paths.CollectionDir)
	info.DatabaseSize = getFileSize(a.cfg.Paths.DatabasePath)
	return info, nil
}

// getFileSize returns the size of a file in bytes.
func getFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// getDirSize returns the total size of all files in a directory.
func getDirSize(path string) int64 {
	var size int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
