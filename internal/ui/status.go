package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes the state of the knowledge base.
type StatusInfo struct {
	RawRoot     string    `json:"raw_root"`
	Documents   int       `json:"documents"`
	Chunks      int       `json:"chunks"`
	Tokens      int       `json:"tokens"`
	LastIndexed time.Time `json:"last_indexed,omitempty"`

	LastRunMode   string    `json:"last_run_mode,omitempty"`
	LastRunAt     time.Time `json:"last_run_at,omitempty"`
	LastRunFailed int       `json:"last_run_failed"`

	// Sizes in bytes.
	CollectionSize int64 `json:"collection_size"`
	DatabaseSize   int64 `json:"database_size"`

	EmbedderModel string  `json:"embedder_model"`
	Dimensions    int     `json:"dimensions"`
	Threshold     float64 `json:"similarity_threshold"`

	// RecentMisses are the latest questions that scored below Threshold.
	RecentMisses []string `json:"recent_misses,omitempty"`
}

// StatusRenderer displays knowledge-base status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor), now: time.Now}
}

// Render writes status info as aligned text.
func (r *StatusRenderer) Render(info StatusInfo) error {
	w := &errWriter{w: r.out}

	w.printf("%s\n\n", r.styles.Header.Render("Knowledge base: "+info.RawRoot))
	w.printf("  Documents:    %d\n", info.Documents)
	w.printf("  Chunks:       %d\n", info.Chunks)
	w.printf("  Tokens:       %d\n", info.Tokens)
	if info.LastIndexed.IsZero() {
		w.printf("  Last indexed: %s\n", r.styles.Warning.Render("never"))
	} else {
		w.printf("  Last indexed: %s\n", r.relative(info.LastIndexed))
	}
	if info.LastRunMode != "" {
		run := fmt.Sprintf("%s, %s", info.LastRunMode, r.relative(info.LastRunAt))
		if info.LastRunFailed > 0 {
			run += r.styles.Error.Render(fmt.Sprintf(", %d failed", info.LastRunFailed))
		}
		w.printf("  Last run:     %s\n", run)
	}
	w.printf("\n  Storage:\n")
	w.printf("    Collection: %s\n", FormatBytes(info.CollectionSize))
	w.printf("    Database:   %s\n", FormatBytes(info.DatabaseSize))
	w.printf("\n  Embeddings:   %s (%d dims)\n", info.EmbedderModel, info.Dimensions)
	w.printf("  Threshold:    %.2f\n", info.Threshold)

	if len(info.RecentMisses) > 0 {
		w.printf("\n  Recent misses:\n")
		for _, q := range info.RecentMisses {
			w.printf("    %s\n", r.styles.Dim.Render(q))
		}
	}
	return w.err
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) relative(t time.Time) string {
	diff := r.now().Sub(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
