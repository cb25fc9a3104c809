package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/academykb/internal/errors"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIEmbedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Dimensions: 3})
	require.NoError(t, err)
	return e
}

func TestOpenAIEmbedder_EmbedBatch_OrdersByIndex(t *testing.T) {
	// Given: a server that answers out of order
	var got openAIRequest
	e := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0,1,0]},
			{"index":0,"embedding":[1,0,0]}]}`))
	})

	// When: embedding two texts
	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})

	// Then: vectors line up with inputs and the request carries the model
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, vecs)
	assert.Equal(t, DefaultOpenAIModel, got.Model)
	assert.Equal(t, []string{"first", "second"}, got.Input)
	assert.Equal(t, 3, got.Dimensions)
}

func TestOpenAIEmbedder_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      string
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, kberrors.ErrCodeEmbedRateLimited, true},
		{"server error", http.StatusBadGateway, kberrors.ErrCodeEmbedUnavailable, true},
		{"bad request", http.StatusBadRequest, kberrors.ErrCodeEmbeddingFailed, false},
		{"unauthorized", http.StatusUnauthorized, kberrors.ErrCodeEmbeddingFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"x"}}`))
			})

			_, err := e.EmbedBatch(context.Background(), []string{"x"})

			require.Error(t, err)
			assert.Equal(t, tt.code, kberrors.GetCode(err))
			assert.Equal(t, tt.retryable, kberrors.IsRetryable(err))
			assert.Contains(t, err.Error(), "nope")
			assert.Equal(t, kberrors.KindEmbeddingFailure, kberrors.GetKind(err))
		})
	}
}

func TestOpenAIEmbedder_NetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: url})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")

	assert.Equal(t, kberrors.ErrCodeEmbedUnavailable, kberrors.GetCode(err))
	assert.True(t, kberrors.IsRetryable(err))
}

func TestOpenAIEmbedder_MalformedResults(t *testing.T) {
	tests := map[string]string{
		"count mismatch": `{"data":[{"index":0,"embedding":[1]}]}`,
		"repeated index": `{"data":[{"index":0,"embedding":[1]},{"index":0,"embedding":[2]}]}`,
		"bad json":       `{"data":`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			e := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			})

			_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})

			assert.Equal(t, kberrors.ErrCodeEmbedResultMalformed, kberrors.GetCode(err))
			assert.False(t, kberrors.IsRetryable(err))
		})
	}
}

func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})

	require.Error(t, err)
	assert.Equal(t, kberrors.ErrCodeConfigMissing, kberrors.GetCode(err))
}

func TestNewOpenAIEmbedder_Defaults(t *testing.T) {
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", Model: "text-embedding-3-large"})

	require.NoError(t, err)
	assert.Equal(t, 3072, e.Dimensions())
	assert.Equal(t, "text-embedding-3-large", e.ModelName())
	assert.NoError(t, e.Close())
}
