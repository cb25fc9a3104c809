package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/academykb/internal/index"
)

func newAddCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "add <file>...",
		Short: "Index or re-index individual files",
		Long: `Run files through extraction, chunking, embedding and both stores.

A file that was indexed before has its previous chunks replaced. Each file
reports its own result; one failing file does not stop the others.`,
		Example: `  academykb add data/raw/lighting/softboxes.md
  academykb add --json data/raw/qa/*.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, args, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runAdd(cmd *cobra.Command, paths []string, jsonOutput bool) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	results := make([]index.FileResult, 0, len(paths))
	failed := 0
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		res := a.indexer.IndexFile(cmd.Context(), abs)
		if !res.OK() {
			failed++
		}
		results = append(results, res)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.OK() {
				_, _ = fmt.Fprintf(out, "indexed %s (%s): %d chunks, %d tokens\n", r.Path, r.DocID, r.Chunks, r.Tokens)
				continue
			}
			_, _ = fmt.Fprintf(out, "failed  %s at %s [%s]: %s\n", r.Path, r.Stage, r.Kind, r.Error)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}
