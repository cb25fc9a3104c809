package chunk

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is the BPE encoding used by the OpenAI embedding models.
const DefaultEncoding = "cl100k_base"

// Tokenizer converts between text and token ids.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
	Name() string
}

var loaderOnce sync.Once

// TiktokenTokenizer wraps a tiktoken encoding. The BPE ranks are loaded from
// the embedded offline loader, so no network access is needed.
type TiktokenTokenizer struct {
	name string
	enc  *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the named encoding.
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &TiktokenTokenizer{name: encoding, enc: enc}, nil
}

// Encode implements Tokenizer. Special-token text is encoded as ordinary text.
func (t *TiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode implements Tokenizer.
func (t *TiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// Name implements Tokenizer.
func (t *TiktokenTokenizer) Name() string {
	return t.name
}

// WordTokenizer treats every whitespace-separated word as one token and
// decodes by joining with single spaces. It is lossy for whitespace but
// needs no model data.
type WordTokenizer struct {
	mu    sync.Mutex
	ids   map[string]int
	words []string
}

// NewWordTokenizer creates an empty WordTokenizer.
func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{ids: make(map[string]int)}
}

// Encode implements Tokenizer.
func (w *WordTokenizer) Encode(text string) []int {
	w.mu.Lock()
	defer w.mu.Unlock()

	fields := strings.Fields(text)
	out := make([]int, len(fields))
	for i, f := range fields {
		id, ok := w.ids[f]
		if !ok {
			id = len(w.words)
			w.ids[f] = id
			w.words = append(w.words, f)
		}
		out[i] = id
	}
	return out
}

// Decode implements Tokenizer.
func (w *WordTokenizer) Decode(tokens []int) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	parts := make([]string, 0, len(tokens))
	for _, id := range tokens {
		if id >= 0 && id < len(w.words) {
			parts = append(parts, w.words[id])
		}
	}
	return strings.Join(parts, " ")
}

// Name implements Tokenizer.
func (w *WordTokenizer) Name() string {
	return "words"
}
