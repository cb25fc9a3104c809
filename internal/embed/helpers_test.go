package embed

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// vectorMagnitude computes the magnitude of a vector
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity computes cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

// MockEmbedder returns scripted errors first, then vectors whose first
// component encodes the input's position in the call.
type MockEmbedder struct {
	mu       sync.Mutex
	errs     []error
	dims     int
	calls    int
	batches  [][]string
	embedded int
}

func newMockEmbedder(dims int, errs ...error) *MockEmbedder {
	return &MockEmbedder{dims: dims, errs: errs}
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *MockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.batches = append(m.batches, append([]string(nil), texts...))
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, m.dims)
		vec[0] = float32(m.embedded + i)
		out[i] = vec
	}
	m.embedded += len(texts)
	return out, nil
}

func (m *MockEmbedder) Dimensions() int   { return m.dims }
func (m *MockEmbedder) ModelName() string { return fmt.Sprintf("mock-%d", m.dims) }
func (m *MockEmbedder) Close() error      { return nil }

func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
