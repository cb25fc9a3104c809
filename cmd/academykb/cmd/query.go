package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/academykb/internal/metadata"
	"github.com/Aman-CERP/academykb/internal/output"
	"github.com/Aman-CERP/academykb/internal/query"
	"github.com/Aman-CERP/academykb/internal/store"
)

// snippetWidth wraps answer text in the terminal.
const snippetWidth = 88

type queryOptions struct {
	topK       int
	strict     bool
	lenient    bool
	source     string
	jsonOutput bool
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask the knowledge base a question",
		Long: `Embed a question and return the closest chunks with their sources.

In strict mode (the default) chunks scoring below
query.similarity_threshold are not returned as answers; the nearest
documents are listed as suggestions instead and the question is recorded
as a miss for curation.`,
		Example: `  academykb query "how do I get a blurry background?"
  academykb query --top-k 3 --source qa "best lens for portraits"
  academykb query --lenient --json "what is ISO"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of chunks to return (default from config)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Force strict threshold filtering")
	cmd.Flags().BoolVar(&opts.lenient, "lenient", false, "Return the closest chunks even below the threshold")
	cmd.Flags().StringVar(&opts.source, "source", "", "Only search chunks with this source (e.g. lesson, qa)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the response as JSON")
	cmd.MarkFlagsMutuallyExclusive("strict", "lenient")

	return cmd
}

func runQuery(cmd *cobra.Command, question string, opts queryOptions) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	req := query.Request{Question: question, TopK: opts.topK}
	switch {
	case opts.strict:
		req.Strict = &opts.strict
	case opts.lenient:
		strict := false
		req.Strict = &strict
	}
	if opts.source != "" {
		req.Filter = store.Filter{metadata.KeySource: opts.source}
	}

	resp, err := a.query.Query(cmd.Context(), req)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	renderResponse(output.New(cmd.OutOrStdout()), resp)
	return nil
}

func renderResponse(w *output.Writer, resp *query.Response) {
	switch resp.Status {
	case query.StatusNotIndexed:
		w.Warning("The knowledge base is empty. Run 'academykb index' first.")
		return
	case query.StatusNoMatch:
		w.Warningf("No lesson answers this closely enough (best %.2f, threshold %.2f).",
			resp.TopScore, resp.Threshold)
		if len(resp.Suggestions) == 0 {
			return
		}
		w.Newline()
		w.Status("📚", "Closest documents:")
		for i, s := range resp.Suggestions {
			w.Citation(i+1, s.Title, location(s.Source), s.Score)
			w.Block(s.Snippet, snippetWidth)
		}
		return
	}

	for i, r := range resp.Results {
		if i > 0 {
			w.Newline()
		}
		w.Citation(i+1, r.Title, location(r.Source), r.Score)
		w.Block(r.Text, snippetWidth)
	}
}

// location picks the most useful pointer back to a source.
func location(s query.Source) string {
	switch {
	case s.VideoURL != "":
		return s.VideoURL
	case s.SourceURL != "":
		return s.SourceURL
	case s.URL != "":
		return s.URL
	default:
		return s.RelPath
	}
}
