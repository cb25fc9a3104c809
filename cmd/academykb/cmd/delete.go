package cmd

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/academykb/internal/index"
)

// docIDPattern matches the 16 hex character document ids.
var docIDPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <doc_id|path>",
		Short: "Remove a document and its chunks",
		Long: `Delete every chunk of a document from the collection and remove its
tracking row. The argument is a 16 character document id or the path of
the source file; the file itself is not touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, args[0])
		},
	}
	return cmd
}

func runDelete(cmd *cobra.Command, target string) error {
	a, err := openApp(appOptions{offline: true})
	if err != nil {
		return err
	}
	defer a.Close()

	var res index.DeleteResult
	if docIDPattern.MatchString(target) {
		res, err = a.indexer.DeleteDocument(cmd.Context(), target)
	} else {
		abs, absErr := filepath.Abs(target)
		if absErr != nil {
			return fmt.Errorf("failed to resolve %s: %w", target, absErr)
		}
		res, err = a.indexer.DeletePath(cmd.Context(), abs)
	}
	if err != nil {
		return err
	}

	if res.Chunks == 0 && !res.Tracked {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Nothing indexed for %s (%s)\n", target, res.DocID)
		return nil
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s: %d chunks, tracking row removed: %t\n",
		res.DocID, res.Chunks, res.Tracked)
	return nil
}
