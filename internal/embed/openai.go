package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	kberrors "github.com/Aman-CERP/academykb/internal/errors"
)

// OpenAI defaults.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "text-embedding-3-small"
)

// Model dimensions for OpenAI embedding models.
var openAIModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures the OpenAI embeddings client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// OpenAIEmbedder calls the OpenAI-compatible /embeddings endpoint.
// It makes exactly one request per call; retries and pacing belong to BatchClient.
type OpenAIEmbedder struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

// Verify interface implementation at compile time
var _ Embedder = (*OpenAIEmbedder)(nil)

type openAIRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIEmbedder creates an OpenAI embedder. The API key is required.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, kberrors.New(kberrors.ErrCodeConfigMissing, "openai API key is not set", nil).
			WithSuggestion("export OPENAI_API_KEY or set embeddings.provider: static")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	dims := cfg.Dimensions
	if dims == 0 {
		var ok bool
		if dims, ok = openAIModelDimensions[cfg.Model]; !ok {
			dims = 1536
		}
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &OpenAIEmbedder{
		client:     client,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: dims,
	}, nil
}

// Embed generates a vector for one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends texts in one request and returns vectors ordered by input index.
// Rate limiting, server errors and network errors are retryable; other client
// errors are not.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	reqBody := openAIRequest{Model: e.model, Input: texts}
	if strings.HasPrefix(e.model, "text-embedding-3") {
		reqBody.Dimensions = e.dimensions
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed, "marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed, "create embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, kberrors.New(kberrors.ErrCodeEmbedUnavailable, "embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeEmbedUnavailable, "read embedding response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, kberrors.New(kberrors.ErrCodeEmbedResultMalformed, "decode embedding response", err)
	}
	if parsed.Error != nil {
		return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed, "openai error: "+parsed.Error.Message, nil)
	}
	return orderByIndex(parsed, len(texts))
}

func statusError(status int, body []byte) error {
	msg := fmt.Sprintf("openai returned status %d", status)
	if detail := apiErrorMessage(body); detail != "" {
		msg += ": " + detail
	}
	switch {
	case status == http.StatusTooManyRequests:
		return kberrors.New(kberrors.ErrCodeEmbedRateLimited, msg, nil)
	case status >= 500:
		return kberrors.New(kberrors.ErrCodeEmbedUnavailable, msg, nil)
	default:
		return kberrors.New(kberrors.ErrCodeEmbeddingFailed, msg, nil).WithDetail("status", fmt.Sprint(status))
	}
}

func apiErrorMessage(body []byte) string {
	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		return parsed.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func orderByIndex(parsed openAIResponse, n int) ([][]float32, error) {
	if len(parsed.Data) != n {
		return nil, kberrors.New(kberrors.ErrCodeEmbedResultMalformed,
			fmt.Sprintf("expected %d embeddings, got %d", n, len(parsed.Data)), nil)
	}
	out := make([][]float32, n)
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= n || out[d.Index] != nil {
			return nil, kberrors.New(kberrors.ErrCodeEmbedResultMalformed,
				fmt.Sprintf("embedding index %d out of range or repeated", d.Index), nil)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// Dimensions returns the embedding vector size.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns the name of the embedding model being used.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Close releases idle connections.
func (e *OpenAIEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
