// Package chunk splits document text into overlapping token windows.
package chunk

import (
	"fmt"
	"unicode/utf8"
)

// Chunk size defaults, in tokens.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 100
)

// Chunk is one token window of a document.
type Chunk struct {
	Index  int
	Text   string
	Start  int // first token, inclusive
	End    int // last token, exclusive
	Tokens int
}

// Chunker produces fixed-size token windows with overlap.
type Chunker struct {
	size      int
	overlap   int
	tokenizer Tokenizer
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the window size in tokens.
func WithChunkSize(n int) Option {
	return func(c *Chunker) { c.size = n }
}

// WithOverlap sets the number of tokens shared by consecutive windows.
func WithOverlap(n int) Option {
	return func(c *Chunker) { c.overlap = n }
}

// WithTokenizer sets the tokenizer.
func WithTokenizer(t Tokenizer) Option {
	return func(c *Chunker) { c.tokenizer = t }
}

// New creates a Chunker. Without WithTokenizer it loads cl100k_base.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", c.size)
	}
	if c.overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", c.overlap)
	}
	if c.tokenizer == nil {
		tok, err := NewTiktokenTokenizer(DefaultEncoding)
		if err != nil {
			return nil, err
		}
		c.tokenizer = tok
	}
	return c, nil
}

// Size returns the window size in tokens.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the overlap in tokens.
func (c *Chunker) Overlap() int { return c.overlap }

// Tokenizer returns the tokenizer in use.
func (c *Chunker) Tokenizer() Tokenizer { return c.tokenizer }

// CountTokens returns the token count of text.
func (c *Chunker) CountTokens(text string) int {
	return len(c.tokenizer.Encode(text))
}

// Split tokenizes text once and decodes each window back to text.
// Windows are [start, min(start+size, total)); the next window starts at
// max(0, end-overlap), or at end when that would not move forward.
// Window edges are moved to the nearest token that starts a character, so
// a multibyte character is never split between windows. A character that
// alone spans more tokens than the window is kept whole.
func (c *Chunker) Split(text string) []Chunk {
	tokens := c.tokenizer.Encode(text)
	return c.window(tokens)
}

func (c *Chunker) window(tokens []int) []Chunk {
	total := len(tokens)
	if total == 0 {
		return []Chunk{}
	}

	cut := c.boundaries(tokens)
	chunks := make([]Chunk, 0, total/c.size+1)
	start := 0
	for {
		end := alignEnd(cut, start, min(start+c.size, total))
		chunks = append(chunks, Chunk{
			Index:  len(chunks),
			Text:   c.tokenizer.Decode(tokens[start:end]),
			Start:  start,
			End:    end,
			Tokens: end - start,
		})
		if end == total {
			return chunks
		}
		next := max(0, end-c.overlap)
		for next < end && !cut[next] {
			next++
		}
		if next <= start {
			next = end
		}
		start = next
	}
}

// boundaries reports, for every token offset, whether a window may start or
// end there: the token at that offset must begin with a character start byte.
func (c *Chunker) boundaries(tokens []int) []bool {
	cut := make([]bool, len(tokens)+1)
	cut[0], cut[len(tokens)] = true, true
	for i := 1; i < len(tokens); i++ {
		b := c.tokenizer.Decode(tokens[i : i+1])
		cut[i] = b == "" || utf8.RuneStart(b[0])
	}
	return cut
}

// alignEnd pulls end back to a boundary after start, or pushes it forward
// when there is none.
func alignEnd(cut []bool, start, end int) int {
	for e := end; e > start; e-- {
		if cut[e] {
			return e
		}
	}
	for e := end + 1; e < len(cut); e++ {
		if cut[e] {
			return e
		}
	}
	return len(cut) - 1
}
