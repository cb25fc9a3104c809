// Package query answers questions from the collection with a strict
// similarity threshold. Below the threshold nothing is returned as an
// answer; the nearest documents come back as suggestions and the miss is
// recorded for curation.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/academykb/internal/config"
	"github.com/Aman-CERP/academykb/internal/embed"
	kberrors "github.com/Aman-CERP/academykb/internal/errors"
	"github.com/Aman-CERP/academykb/internal/metadata"
	"github.com/Aman-CERP/academykb/internal/store"
)

// Status is the outcome of a query.
type Status string

const (
	// StatusOK means at least one chunk met the threshold, or strict mode is off.
	StatusOK Status = "ok"
	// StatusNoMatch means the best chunk scored below the threshold.
	StatusNoMatch Status = "no_match"
	// StatusNotIndexed means the collection is empty or missing.
	StatusNotIndexed Status = "not_indexed"
)

// Request is one question.
type Request struct {
	Question string `json:"question"`
	// TopK defaults to the configured value when zero.
	TopK int `json:"top_k,omitempty"`
	// Strict overrides the configured strict mode when set.
	Strict *bool `json:"strict,omitempty"`
	// Filter restricts the search to chunks with matching metadata.
	Filter store.Filter `json:"filter,omitempty"`
}

// Source is the citation metadata of a chunk.
type Source struct {
	DocID       string   `json:"doc_id"`
	Title       string   `json:"title"`
	SourceURL   string   `json:"source_url,omitempty"`
	URL         string   `json:"url,omitempty"`
	VideoURL    string   `json:"video_url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	LastUpdated string   `json:"last_updated,omitempty"`
	RelPath     string   `json:"relpath,omitempty"`
	Filename    string   `json:"filename,omitempty"`
	Ext         string   `json:"ext,omitempty"`
}

// Result is a chunk that answered the question.
type Result struct {
	Source
	ChunkID    string  `json:"chunk_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

// Suggestion is a nearby document offered when nothing met the threshold.
type Suggestion struct {
	Source
	Snippet string  `json:"snippet"`
	Score   float32 `json:"score"`
}

// Response is the answer to a Request.
type Response struct {
	Status      Status       `json:"status"`
	Question    string       `json:"question"`
	Strict      bool         `json:"strict"`
	TopScore    float32      `json:"top_score"`
	Threshold   float64      `json:"threshold"`
	Results     []Result     `json:"results,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// Stats describes the collection for status endpoints.
type Stats struct {
	Count       int       `json:"count"`
	Documents   int       `json:"documents"`
	LastIndexed time.Time `json:"last_indexed,omitempty"`
	Threshold   float64   `json:"similarity_threshold"`
}

// Service runs queries against the collection.
type Service struct {
	embedder embed.Embedder
	vectors  store.VectorStore
	tracker  store.Tracker
	cfg      config.QueryConfig
	log      *slog.Logger
	now      func() time.Time
}

// NewService creates a query service. tracker may be nil, in which case
// misses are only logged.
func NewService(embedder embed.Embedder, vectors store.VectorStore, tracker store.Tracker, cfg config.QueryConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder: embedder,
		vectors:  vectors,
		tracker:  tracker,
		cfg:      cfg,
		log:      logger,
		now:      time.Now,
	}
}

// Query embeds the question and ranks chunks by similarity.
func (s *Service) Query(ctx context.Context, req Request) (*Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, kberrors.New(kberrors.ErrCodeQueryEmpty, "question is empty", nil)
	}

	strict := s.cfg.Strict
	if req.Strict != nil {
		strict = *req.Strict
	}
	resp := &Response{Question: question, Strict: strict, Threshold: s.cfg.SimilarityThreshold}

	count, err := s.vectors.Count(ctx, nil)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		resp.Status = StatusNotIndexed
		return resp, nil
	}

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		if _, ok := kberrors.As(err); !ok {
			err = kberrors.EmbeddingFailure("embed question", err)
		}
		return nil, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	hits, err := s.vectors.Query(ctx, vec, topK, req.Filter)
	if err != nil {
		return nil, err
	}
	if len(hits) > 0 {
		resp.TopScore = hits[0].Score
	}

	if strict && float64(resp.TopScore) < s.cfg.SimilarityThreshold {
		resp.Status = StatusNoMatch
		resp.Suggestions = s.suggestions(hits)
		s.recordMiss(ctx, resp)
		return resp, nil
	}

	resp.Status = StatusOK
	resp.Results = make([]Result, len(hits))
	for i, h := range hits {
		idx, _ := metadata.Int(h.Metadata, metadata.KeyChunkIndex)
		resp.Results[i] = Result{
			Source:     sourceOf(h.Metadata),
			ChunkID:    h.ID,
			ChunkIndex: idx,
			Text:       h.Text,
			Score:      h.Score,
		}
	}
	s.log.Debug("query_answered",
		slog.Int("results", len(hits)),
		slog.Float64("top_score", float64(resp.TopScore)))
	return resp, nil
}

func (s *Service) suggestions(hits []store.QueryResult) []Suggestion {
	n := min(s.cfg.SuggestionCount, len(hits))
	out := make([]Suggestion, 0, n)
	for _, h := range hits[:n] {
		out = append(out, Suggestion{
			Source:  sourceOf(h.Metadata),
			Snippet: snippet(h.Text, s.cfg.SnippetChars),
			Score:   h.Score,
		})
	}
	return out
}

func (s *Service) recordMiss(ctx context.Context, resp *Response) {
	titles := make([]string, len(resp.Suggestions))
	for i, sg := range resp.Suggestions {
		titles[i] = sg.Title
	}
	s.log.Info("query_miss",
		slog.String("question", resp.Question),
		slog.Float64("top_score", float64(resp.TopScore)),
		slog.Float64("threshold", resp.Threshold),
		slog.Any("suggestions", titles))

	if s.tracker == nil {
		return
	}
	err := s.tracker.RecordMiss(ctx, store.QueryMiss{
		AskedAt:   s.now().UTC(),
		Question:  resp.Question,
		BestScore: float64(resp.TopScore),
		Threshold: resp.Threshold,
	})
	if err != nil {
		s.log.Warn("record_miss_failed", slog.String("error", err.Error()))
	}
}

// Stats reports the chunk count, the tracked documents and when the
// collection was last written.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	count, err := s.vectors.Count(ctx, nil)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Count: count, Threshold: s.cfg.SimilarityThreshold}
	if s.tracker != nil {
		ts, err := s.tracker.Stats(ctx)
		if err != nil {
			return Stats{}, fmt.Errorf("tracker stats: %w", err)
		}
		st.Documents = ts.Documents
		st.LastIndexed = ts.LastIndexed
	}
	return st, nil
}

// sourceOf reads citation fields from flattened chunk metadata. The title
// falls back to the file name and then to "Untitled".
func sourceOf(m map[string]any) Source {
	src := Source{
		DocID:       metadata.String(m, metadata.KeyDocID),
		Title:       metadata.String(m, metadata.KeyTitle),
		SourceURL:   metadata.String(m, metadata.KeySourceURL),
		URL:         metadata.String(m, metadata.KeyURL),
		VideoURL:    metadata.String(m, metadata.KeyVideoURL),
		Tags:        metadata.SplitList(m[metadata.KeyTags]),
		Categories:  metadata.SplitList(m[metadata.KeyCategories]),
		LastUpdated: metadata.String(m, metadata.KeyLastUpdated),
		RelPath:     metadata.String(m, metadata.KeyRelPath),
		Filename:    metadata.String(m, metadata.KeyFilename),
		Ext:         metadata.String(m, metadata.KeyExt),
	}
	if src.Title == "" {
		src.Title = src.Filename
	}
	if src.Title == "" {
		src.Title = "Untitled"
	}
	return src
}

// snippet returns the first line of text, cut to at most limit runes.
func snippet(text string, limit int) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	if limit > 0 && utf8.RuneCountInString(text) > limit {
		text = string([]rune(text)[:limit])
	}
	return text
}
