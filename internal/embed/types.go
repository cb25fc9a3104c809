// Package embed turns chunk text into vectors through a remote or local provider.
package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants
const (
	// MaxBatchSize caps the inputs sent in one provider request.
	MaxBatchSize = 2048

	// DefaultBatchSize is the default batch size for embedding requests
	DefaultBatchSize = 64

	// DefaultTimeout is the default timeout for one embedding request
	DefaultTimeout = 60 * time.Second

	// DefaultBatchDelay is the fixed pause between consecutive batches
	DefaultBatchDelay = 200 * time.Millisecond
)

// Static embedder constants
const (
	// StaticDimensions is the default embedding dimension for static embedder
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one per input, in order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Close releases resources
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
