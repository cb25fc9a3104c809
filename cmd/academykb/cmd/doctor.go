package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/academykb/internal/config"
	"github.com/Aman-CERP/academykb/internal/preflight"
)

// errChecksFailed is returned when a required preflight check fails.
var errChecksFailed = errors.New("system check failed, run 'academykb doctor' for details")

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the knowledge base can be built",
		Long: `Run diagnostics before indexing.

Checks:
  - The raw content root exists and holds supported files
  - Disk space where the collection is written (100MB minimum)
  - Write permissions in the collection directory
  - File descriptor limits (1024 minimum)
  - The embedding provider is configured (OPENAI_API_KEY for openai)
  - The tokenizer encoding loads offline

'academykb index' runs the same checks once per embedding setup.`,
		Example: `  academykb doctor
  academykb doctor --verbose
  academykb doctor --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(cmd.Context(), cfg)

	if jsonOutput {
		if err := outputJSON(cmd, checker, results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
		if age := preflight.MarkerAge(cfg.Paths.CollectionDir); age > 0 {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nLast successful check: %s ago\n", age.Round(time.Second))
		}
	}

	if checker.HasCriticalFailures(results) {
		return errChecksFailed
	}
	return preflight.MarkPassed(cfg.Paths.CollectionDir, preflight.Fingerprint(cfg))
}

// runPreflight runs the checks before a rebuild unless they already passed
// for the current embedding setup. Failures are printed in full.
func runPreflight(cmd *cobra.Command, cfg *config.Config) error {
	fp := preflight.Fingerprint(cfg)
	if !preflight.NeedsCheck(cfg.Paths.CollectionDir, fp) {
		return nil
	}

	checker := preflight.New(preflight.WithOutput(cmd.OutOrStdout()))
	results := checker.RunAll(cmd.Context(), cfg)
	for _, r := range results {
		slog.Debug("preflight_check",
			slog.String("name", r.Name),
			slog.String("status", r.Status.String()),
			slog.String("message", r.Message))
	}
	if checker.HasCriticalFailures(results) {
		checker.PrintResults(results)
		return errChecksFailed
	}
	return preflight.MarkPassed(cfg.Paths.CollectionDir, fp)
}

// JSONOutput is the structure for JSON output.
type JSONOutput struct {
	Status   string            `json:"status"`
	Checks   []JSONCheckResult `json:"checks"`
	Warnings []string          `json:"warnings,omitempty"`
	Errors   []string          `json:"errors,omitempty"`
}

// JSONCheckResult is a single check result for JSON output.
type JSONCheckResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func outputJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	out := JSONOutput{Status: checker.SummaryStatus(results)}
	for _, r := range results {
		out.Checks = append(out.Checks, JSONCheckResult{
			Name:     r.Name,
			Status:   r.Status.String(),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		})
		switch {
		case r.IsCritical():
			out.Errors = append(out.Errors, r.Name+": "+r.Message)
		case r.Status != preflight.StatusPass:
			out.Warnings = append(out.Warnings, r.Name+": "+r.Message)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
