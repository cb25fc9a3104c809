package metadata

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_ScalarRules(t *testing.T) {
	// Given: front matter with every kind of value
	in := map[string]any{
		"title":    "Exposure triangle",
		"draft":    false,
		"rating":   4,
		"score":    float32(0.5),
		"missing":  nil,
		"tags":     []any{"iso", "aperture", 3},
		"aliases":  []string{"a", "b"},
		"author":   map[string]any{"name": "R", "links": []any{"x"}},
		"when":     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		"updated":  time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC),
		"nested":   map[any]any{"k": 1},
		"rawbytes": []byte("hi"),
	}

	// When: normalizing
	out := Normalize(in)

	// Then: each value follows the coercion rule
	assert.Equal(t, "Exposure triangle", out["title"])
	assert.Equal(t, false, out["draft"])
	assert.Equal(t, int64(4), out["rating"])
	assert.Equal(t, float64(0.5), out["score"])
	assert.Nil(t, out["missing"])
	assert.Contains(t, out, "missing")
	assert.Equal(t, "iso, aperture, 3", out["tags"])
	assert.Equal(t, "a, b", out["aliases"])
	assert.Equal(t, `{"links":["x"],"name":"R"}`, out["author"])
	assert.Equal(t, "2024-05-01", out["when"])
	assert.Equal(t, "2024-05-01T13:04:05Z", out["updated"])
	assert.Equal(t, `{"k":1}`, out["nested"])
	assert.Equal(t, "hi", out["rawbytes"])
}

func TestNormalize_UnsignedBeyondInt64(t *testing.T) {
	out := Normalize(map[string]any{
		"small": uint64(42),
		"max":   uint64(math.MaxInt64),
		"huge":  uint64(math.MaxUint64),
		"word":  uint(7),
	})

	assert.Equal(t, int64(42), out["small"])
	assert.Equal(t, int64(math.MaxInt64), out["max"])
	assert.Equal(t, "18446744073709551615", out["huge"])
	assert.Equal(t, int64(7), out["word"])
	assert.Equal(t, out, Normalize(out))
}

func TestNormalize_Idempotent(t *testing.T) {
	in := map[string]any{
		"tags":   []any{"light", "composition"},
		"n":      7,
		"nested": map[string]any{"a": []int{1, 2}},
		"nil":    nil,
		"f":      1.25,
	}

	once := Normalize(in)
	twice := Normalize(once)

	assert.Equal(t, once, twice)
}

func TestNormalize_NilMapIsEmpty(t *testing.T) {
	assert.Equal(t, map[string]any{}, Normalize(nil))
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"sequence", []any{"a", " b ", ""}, []string{"a", "b"}},
		{"comma string", "street, portrait ,", []string{"street", "portrait"}},
		{"single", "macro", []string{"macro"}},
		{"empty", "", nil},
		{"nil", nil, nil},
		{"typed slice", []string{"x"}, []string{"x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitList(tt.in))
		})
	}
}
