package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	var (
		check      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild the documents table from the collection",
		Long: `Rebuild the tracking table from the chunks stored in the collection.

Documents whose chunks carry exact character and token counts keep them;
the others are estimated from the chunk window size and marked approximate.
Use --check to report drift between the two stores without changing them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if check {
				return runCheck(cmd, jsonOutput)
			}
			return runReconcile(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Report inconsistencies without repairing them")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runCheck(cmd *cobra.Command, jsonOutput bool) error {
	a, err := openApp(appOptions{offline: true})
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.indexer.Check(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	_, _ = fmt.Fprintf(out, "Checked %d documents, %d chunks\n", report.Documents, report.Chunks)
	if report.Consistent() {
		_, _ = fmt.Fprintln(out, "Stores are consistent.")
		return nil
	}
	for _, inc := range report.Inconsistencies {
		_, _ = fmt.Fprintf(out, "  %-15s %s tracked=%d actual=%d\n", inc.Type, inc.DocID, inc.Tracked, inc.Actual)
	}
	_, _ = fmt.Fprintln(out, "Run 'academykb reconcile' to repair the documents table.")
	return nil
}

func runReconcile(cmd *cobra.Command, jsonOutput bool) error {
	a, err := openApp(appOptions{offline: true})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.indexer.Reconcile(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Reconciled: %s\n", res)
	return nil
}
