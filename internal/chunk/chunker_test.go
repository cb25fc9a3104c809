package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "w" + string(rune('a'+i%26)) + strings.Repeat("x", i/26%3)
	}
	return strings.Join(parts, " ")
}

func newWordChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := New(WithChunkSize(size), WithOverlap(overlap), WithTokenizer(NewWordTokenizer()))
	require.NoError(t, err)
	return c
}

func spans(chunks []Chunk) [][2]int {
	out := make([][2]int, len(chunks))
	for i, c := range chunks {
		out[i] = [2]int{c.Start, c.End}
	}
	return out
}

func TestSplit_OverlappingWindows(t *testing.T) {
	// Given: 2500 tokens, size 1000, overlap 100
	c := newWordChunker(t, 1000, 100)

	// When: splitting
	chunks := c.Split(words(2500))

	// Then: three windows step by size-overlap
	require.Len(t, chunks, 3)
	assert.Equal(t, [][2]int{{0, 1000}, {900, 1900}, {1800, 2500}}, spans(chunks))
	assert.Equal(t, []int{1000, 1000, 700}, []int{chunks[0].Tokens, chunks[1].Tokens, chunks[2].Tokens})
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
	}
}

func TestSplit_EmptyText(t *testing.T) {
	c := newWordChunker(t, 10, 2)

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t"))
	assert.NotNil(t, c.Split(""))
}

func TestSplit_ShorterThanWindow(t *testing.T) {
	c := newWordChunker(t, 10, 2)

	chunks := c.Split("aperture shutter iso")

	require.Len(t, chunks, 1)
	assert.Equal(t, "aperture shutter iso", chunks[0].Text)
	assert.Equal(t, [2]int{0, 3}, [2]int{chunks[0].Start, chunks[0].End})
}

func TestSplit_ExactMultipleHasNoTrailingSliver(t *testing.T) {
	c := newWordChunker(t, 5, 0)

	chunks := c.Split(words(10))

	assert.Equal(t, [][2]int{{0, 5}, {5, 10}}, spans(chunks))
}

func TestSplit_OverlapNotSmallerThanSizeStillAdvances(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		total   int
		want    [][2]int
	}{
		{"equal", 3, 3, 7, [][2]int{{0, 3}, {3, 6}, {6, 7}}},
		{"larger", 3, 10, 5, [][2]int{{0, 3}, {3, 5}}},
		{"one less", 3, 2, 5, [][2]int{{0, 3}, {1, 4}, {2, 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newWordChunker(t, tt.size, tt.overlap)
			assert.Equal(t, tt.want, spans(c.Split(words(tt.total))))
		})
	}
}

func TestSplit_WindowTextDecodesTokens(t *testing.T) {
	c := newWordChunker(t, 2, 1)

	chunks := c.Split("one two three")

	require.Len(t, chunks, 2)
	assert.Equal(t, "one two", chunks[0].Text)
	assert.Equal(t, "two three", chunks[1].Text)
}

func TestNew_RejectsInvalidSizes(t *testing.T) {
	_, err := New(WithChunkSize(0), WithTokenizer(NewWordTokenizer()))
	assert.Error(t, err)

	_, err = New(WithOverlap(-1), WithTokenizer(NewWordTokenizer()))
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(WithTokenizer(NewWordTokenizer()))

	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, c.Size())
	assert.Equal(t, DefaultOverlap, c.Overlap())
	assert.Equal(t, "words", c.Tokenizer().Name())
}

func TestTiktokenTokenizer_RoundTrip(t *testing.T) {
	// Given: the offline cl100k_base encoding
	tok, err := NewTiktokenTokenizer("")
	require.NoError(t, err)
	text := "Aperture controls depth of field."

	// When: encoding and decoding
	ids := tok.Encode(text)

	// Then: the text survives and is shorter in tokens than characters
	assert.Equal(t, DefaultEncoding, tok.Name())
	assert.NotEmpty(t, ids)
	assert.Less(t, len(ids), len(text))
	assert.Equal(t, text, tok.Decode(ids))
}

func TestTiktokenTokenizer_UnknownEncoding(t *testing.T) {
	_, err := NewTiktokenTokenizer("no_such_encoding")
	assert.Error(t, err)
}

func TestCountTokens(t *testing.T) {
	c := newWordChunker(t, 10, 0)

	assert.Equal(t, 4, c.CountTokens("f stop  shutter speed"))
	assert.Equal(t, 0, c.CountTokens(""))
}

// byteTokenizer encodes every byte as one token, so multibyte characters
// span several tokens.
type byteTokenizer struct{}

func (byteTokenizer) Encode(text string) []int {
	out := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		out[i] = int(text[i])
	}
	return out
}

func (byteTokenizer) Decode(tokens []int) string {
	b := make([]byte, len(tokens))
	for i, t := range tokens {
		b[i] = byte(t)
	}
	return string(b)
}

func (byteTokenizer) Name() string { return "bytes" }

func TestSplit_WindowsEndOnCharacterBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    [][2]int
	}{
		{"end pulled back", "aéé", 2, 0, [][2]int{{0, 1}, {1, 3}, {3, 5}}},
		{"overlap start pushed forward", "éééé", 4, 1, [][2]int{{0, 4}, {4, 8}}},
		{"character wider than window", "éé", 1, 0, [][2]int{{0, 2}, {2, 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(WithChunkSize(tt.size), WithOverlap(tt.overlap), WithTokenizer(byteTokenizer{}))
			require.NoError(t, err)

			chunks := c.Split(tt.text)

			assert.Equal(t, tt.want, spans(chunks))
			for _, ch := range chunks {
				assert.True(t, utf8.ValidString(ch.Text), "chunk %d: %q", ch.Index, ch.Text)
			}
		})
	}
}

func TestSplit_TiktokenNonASCIIRoundTrip(t *testing.T) {
	// Given: accented, CJK and emoji text under cl100k_base with small windows
	tok, err := NewTiktokenTokenizer("")
	require.NoError(t, err)
	c, err := New(WithChunkSize(7), WithOverlap(2), WithTokenizer(tok))
	require.NoError(t, err)
	text := strings.Repeat("Café crème señal 写真の露出 📷 bokeh ", 20)
	tokens := tok.Encode(text)

	// When: splitting
	chunks := c.Split(text)

	// Then: every chunk is valid UTF-8 and decodes its own token span
	require.NotEmpty(t, chunks)
	var rebuilt strings.Builder
	prevEnd := 0
	for i, ch := range chunks {
		assert.True(t, utf8.ValidString(ch.Text), "chunk %d: %q", i, ch.Text)
		assert.Equal(t, tok.Decode(tokens[ch.Start:ch.End]), ch.Text)
		assert.LessOrEqual(t, ch.Tokens, 7)
		if i > 0 {
			assert.Greater(t, ch.Start, chunks[i-1].Start)
		}
		rebuilt.WriteString(tok.Decode(tokens[prevEnd:ch.End]))
		prevEnd = ch.End
	}

	// And: the non-overlapping parts reassemble the original text
	assert.Equal(t, len(tokens), chunks[len(chunks)-1].End)
	assert.Equal(t, text, rebuilt.String())
}
