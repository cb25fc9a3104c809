package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder(0)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Aperture controls depth of field")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Aperture controls depth of field")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
	assert.InDelta(t, 1.0, vectorMagnitude(a), 1e-5)
}

func TestStaticEmbedder_SimilarTextScoresHigher(t *testing.T) {
	// Given: a query and two candidate passages
	e := NewStaticEmbedder(128)
	ctx := context.Background()
	query, _ := e.Embed(ctx, "shutter speed motion blur")
	near, _ := e.Embed(ctx, "a slow shutter speed creates motion blur")
	far, _ := e.Embed(ctx, "white balance and colour temperature")

	// Then: the related passage is closer
	assert.Greater(t, cosineSimilarity(query, near), cosineSimilarity(query, far))
}

func TestStaticEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder(8)

	vec, err := e.Embed(context.Background(), "  ")

	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), vec)
}

func TestStaticEmbedder_ClosedRejects(t *testing.T) {
	e := NewStaticEmbedder(8)
	require.NoError(t, e.Close())

	_, err := e.EmbedBatch(context.Background(), []string{"x"})

	assert.Error(t, err)
}

func TestTrigrams(t *testing.T) {
	assert.Equal(t, []string{"iso", "so1", "o10", "100"}, trigrams("ISO 100"))
	assert.Empty(t, trigrams("f/"))
}
