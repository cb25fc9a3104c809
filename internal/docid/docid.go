// Package docid derives stable document and chunk identifiers from file paths.
package docid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// IndexWidth is the zero-padded width of the chunk index in a chunk id.
// Ids sort in chunk order up to MaxChunks chunks per document.
const IndexWidth = 6

// MaxChunks is the number of chunk indexes that fit in IndexWidth digits.
const MaxChunks = 1_000_000

// Normalize cleans a path and converts it to forward slashes so the same
// file yields the same id regardless of how the path was spelled.
func Normalize(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

// DocID returns the first 16 hex characters of SHA-256 over the normalized path.
func DocID(path string) string {
	sum := sha256.Sum256([]byte(Normalize(path)))
	return hex.EncodeToString(sum[:])[:16]
}

// ChunkID combines a document id and chunk index so ids sort in chunk order.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s-%0*d", docID, IndexWidth, index)
}

// ParseChunkID splits a chunk id into its document id and index.
func ParseChunkID(id string) (docID string, index int, ok bool) {
	i := strings.LastIndexByte(id, '-')
	if i <= 0 || i == len(id)-1 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return id[:i], n, true
}
