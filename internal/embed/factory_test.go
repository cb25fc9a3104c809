package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/academykb/internal/config"
	kberrors "github.com/Aman-CERP/academykb/internal/errors"
)

func TestNewFromConfig_Static(t *testing.T) {
	cfg := config.NewConfig().Embeddings
	cfg.Provider = "static"
	cfg.Dimensions = 32
	cfg.BatchDelay = 0

	e, err := NewFromConfig(cfg, nil)

	require.NoError(t, err)
	assert.Equal(t, 32, e.Dimensions())
	assert.Equal(t, "static-32", e.ModelName())
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}

func TestNewFromConfig_OpenAIWithoutKey(t *testing.T) {
	cfg := config.NewConfig().Embeddings
	cfg.APIKey = ""

	_, err := NewFromConfig(cfg, nil)

	assert.Equal(t, kberrors.ErrCodeConfigMissing, kberrors.GetCode(err))
}

func TestNewFromConfig_UnknownProvider(t *testing.T) {
	cfg := config.NewConfig().Embeddings
	cfg.Provider = "ollama"

	_, err := NewFromConfig(cfg, nil)

	assert.ErrorContains(t, err, "unknown embeddings provider")
}

func TestNewQueryEmbedder(t *testing.T) {
	cfg := config.NewConfig().Embeddings
	inner := newMockEmbedder(3)

	q := NewQueryEmbedder(inner, cfg)

	assert.Same(t, inner, q.Inner())
}
