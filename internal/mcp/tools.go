package mcp

import (
	"time"

	"github.com/Aman-CERP/academykb/internal/async"
	"github.com/Aman-CERP/academykb/internal/index"
	"github.com/Aman-CERP/academykb/internal/query"
	"github.com/Aman-CERP/academykb/internal/store"
)

// Tool names.
const (
	ToolQuery          = "query_knowledge_base"
	ToolReindex        = "reindex"
	ToolIndexFile      = "index_file"
	ToolDeleteDocument = "delete_document"
	ToolIndexStatus    = "index_status"
)

// QueryInput defines the input schema for the query_knowledge_base tool.
type QueryInput struct {
	Question string `json:"question" jsonschema:"the photography question to answer"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"maximum number of chunks to return, default 5"`
	Strict   *bool  `json:"strict,omitempty" jsonschema:"when true, answers scoring below the similarity threshold are withheld"`
	Source   string `json:"source,omitempty" jsonschema:"only search documents with this source, e.g. lesson or qa"`
}

// QueryOutput defines the output schema for the query_knowledge_base tool.
type QueryOutput struct {
	Status      string             `json:"status" jsonschema:"ok, no_match or not_indexed"`
	Question    string             `json:"question"`
	Strict      bool               `json:"strict"`
	TopScore    float64            `json:"top_score" jsonschema:"similarity of the best chunk between 0 and 1"`
	Threshold   float64            `json:"threshold" jsonschema:"similarity threshold applied in strict mode"`
	Results     []ResultOutput     `json:"results,omitempty" jsonschema:"chunks that answer the question"`
	Suggestions []SuggestionOutput `json:"suggestions,omitempty" jsonschema:"nearby documents offered when nothing met the threshold"`
}

// SourceOutput is the citation metadata of a chunk.
type SourceOutput struct {
	DocID       string   `json:"doc_id"`
	Title       string   `json:"title"`
	SourceURL   string   `json:"source_url,omitempty"`
	URL         string   `json:"url,omitempty"`
	VideoURL    string   `json:"video_url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	LastUpdated string   `json:"last_updated,omitempty"`
	RelPath     string   `json:"relpath,omitempty"`
}

// ResultOutput is one answering chunk.
type ResultOutput struct {
	Source     SourceOutput `json:"source"`
	ChunkID    string       `json:"chunk_id"`
	ChunkIndex int          `json:"chunk_index"`
	Text       string       `json:"text"`
	Score      float64      `json:"score"`
}

// SuggestionOutput is one nearby document.
type SuggestionOutput struct {
	Source  SourceOutput `json:"source"`
	Snippet string       `json:"snippet"`
	Score   float64      `json:"score"`
}

// ReindexInput defines the input schema for the reindex tool (no parameters).
type ReindexInput struct{}

// ReindexOutput defines the output schema for the reindex tool.
type ReindexOutput struct {
	Status  string `json:"status" jsonschema:"started or already_running"`
	Message string `json:"message"`
}

// IndexFileInput defines the input schema for the index_file tool.
type IndexFileInput struct {
	Path string `json:"path" jsonschema:"file path relative to the raw content root"`
}

// IndexFileOutput defines the output schema for the index_file tool.
type IndexFileOutput struct {
	Status     string `json:"status" jsonschema:"indexed or error"`
	Path       string `json:"path"`
	DocID      string `json:"doc_id"`
	Title      string `json:"title,omitempty"`
	Chunks     int    `json:"chunks"`
	Tokens     int    `json:"tokens"`
	Chars      int    `json:"chars"`
	Stage      string `json:"stage" jsonschema:"last pipeline stage the file reached"`
	Kind       string `json:"kind,omitempty" jsonschema:"UnsupportedFormat, IOFailure, EmbeddingFailure or StoreWriteFailure"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// DeleteDocumentInput defines the input schema for the delete_document tool.
type DeleteDocumentInput struct {
	DocID string `json:"doc_id,omitempty" jsonschema:"document id to delete"`
	Path  string `json:"path,omitempty" jsonschema:"file path relative to the raw content root, used when doc_id is empty"`
}

// DeleteDocumentOutput defines the output schema for the delete_document tool.
type DeleteDocumentOutput struct {
	DocID   string `json:"doc_id"`
	Chunks  int    `json:"chunks" jsonschema:"number of chunks removed from the collection"`
	Tracked bool   `json:"tracked" jsonschema:"whether a tracking row was removed"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Collection   CollectionInfo `json:"collection"`
	Embeddings   EmbeddingInfo  `json:"embeddings"`
	Reindex      ReindexInfo    `json:"reindex"`
	LastRun      *RunInfo       `json:"last_run,omitempty"`
	RecentMisses []MissInfo     `json:"recent_misses,omitempty"`
}

// CollectionInfo summarizes what is indexed.
type CollectionInfo struct {
	Chunks      int     `json:"chunks"`
	Documents   int     `json:"documents"`
	LastIndexed string  `json:"last_indexed,omitempty"`
	Threshold   float64 `json:"similarity_threshold"`
}

// EmbeddingInfo describes the active embedder.
type EmbeddingInfo struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// ReindexInfo is the background rebuild progress.
type ReindexInfo struct {
	Status         string  `json:"status" jsonschema:"idle, indexing, ready or error"`
	Stage          string  `json:"stage,omitempty"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	FilesFailed    int     `json:"files_failed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// RunInfo is the most recent recorded index run.
type RunInfo struct {
	RunID      string `json:"run_id"`
	Mode       string `json:"mode"`
	FinishedAt string `json:"finished_at"`
	Total      int    `json:"total"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Chunks     int    `json:"chunks"`
}

// MissInfo is a question that scored below the threshold.
type MissInfo struct {
	Question  string  `json:"question"`
	BestScore float64 `json:"best_score"`
	AskedAt   string  `json:"asked_at"`
}

func toSourceOutput(src query.Source) SourceOutput {
	return SourceOutput{
		DocID:       src.DocID,
		Title:       src.Title,
		SourceURL:   src.SourceURL,
		URL:         src.URL,
		VideoURL:    src.VideoURL,
		Tags:        src.Tags,
		Categories:  src.Categories,
		LastUpdated: src.LastUpdated,
		RelPath:     src.RelPath,
	}
}

// ToQueryOutput converts a query response to the tool output.
func ToQueryOutput(resp *query.Response) *QueryOutput {
	out := &QueryOutput{
		Status:    string(resp.Status),
		Question:  resp.Question,
		Strict:    resp.Strict,
		TopScore:  float64(resp.TopScore),
		Threshold: resp.Threshold,
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, ResultOutput{
			Source:     toSourceOutput(r.Source),
			ChunkID:    r.ChunkID,
			ChunkIndex: r.ChunkIndex,
			Text:       r.Text,
			Score:      float64(r.Score),
		})
	}
	for _, sg := range resp.Suggestions {
		out.Suggestions = append(out.Suggestions, SuggestionOutput{
			Source:  toSourceOutput(sg.Source),
			Snippet: sg.Snippet,
			Score:   float64(sg.Score),
		})
	}
	return out
}

// ToIndexFileOutput converts a per-file result to the tool output.
func ToIndexFileOutput(res index.FileResult) *IndexFileOutput {
	return &IndexFileOutput{
		Status:     string(res.Status),
		Path:       res.Path,
		DocID:      res.DocID,
		Title:      res.Title,
		Chunks:     res.Chunks,
		Tokens:     res.Tokens,
		Chars:      res.Chars,
		Stage:      string(res.Stage),
		Kind:       string(res.Kind),
		Error:      res.Error,
		DurationMs: res.Duration.Milliseconds(),
	}
}

func toReindexInfo(snap async.ProgressSnapshot) ReindexInfo {
	return ReindexInfo{
		Status:         string(snap.Status),
		Stage:          snap.Stage,
		FilesTotal:     snap.FilesTotal,
		FilesProcessed: snap.FilesProcessed,
		FilesFailed:    snap.FilesFailed,
		ProgressPct:    snap.ProgressPct,
		ElapsedSeconds: snap.ElapsedSeconds,
		ErrorMessage:   snap.ErrorMessage,
	}
}

func toRunInfo(run *store.IndexRun) *RunInfo {
	if run == nil {
		return nil
	}
	return &RunInfo{
		RunID:      run.RunID,
		Mode:       run.Mode,
		FinishedAt: formatTime(run.FinishedAt),
		Total:      run.Total,
		Succeeded:  run.Succeeded,
		Failed:     run.Failed,
		Chunks:     run.Chunks,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
