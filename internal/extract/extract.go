// Package extract converts raw files into front-matter metadata and body text.
//
// Dispatch is a closed strategy table: each supported extension maps to a
// Format, and each Format to one Reader. Unknown extensions fail with an
// UnsupportedFormat error instead of a lookup miss.
package extract

import (
	"path/filepath"
	"sort"
	"strings"

	kberrors "github.com/Aman-CERP/academykb/internal/errors"
)

// Format tags a supported file format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatCSV      Format = "csv"
)

// extensions maps lower-cased file extensions to formats.
var extensions = map[string]Format{
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".txt":      FormatText,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
	".csv":      FormatCSV,
}

// Result is the output of extracting one file.
type Result struct {
	Format Format
	// Meta is the raw front matter; nil when the format carries none.
	Meta map[string]any
	Body string
}

// Reader extracts one format.
type Reader interface {
	Read(path string) (meta map[string]any, body string, err error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(path string) (map[string]any, string, error)

// Read implements Reader.
func (f ReaderFunc) Read(path string) (map[string]any, string, error) {
	return f(path)
}

// Extractor dispatches files to format readers.
type Extractor struct {
	readers map[Format]Reader
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithReader replaces the reader for a format.
func WithReader(f Format, r Reader) Option {
	return func(e *Extractor) {
		e.readers[f] = r
	}
}

// New creates an Extractor with the default readers.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		readers: map[Format]Reader{
			FormatMarkdown: ReaderFunc(readFrontMatterText),
			FormatText:     ReaderFunc(readFrontMatterText),
			FormatHTML:     ReaderFunc(readHTML),
			FormatPDF:      ReaderFunc(readPDF),
			FormatDOCX:     ReaderFunc(readDOCX),
			FormatCSV:      ReaderFunc(readCSV),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FormatOf resolves the format for a path.
func FormatOf(path string) (Format, bool) {
	f, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// Supported reports whether path has a registered extension.
func Supported(path string) bool {
	_, ok := FormatOf(path)
	return ok
}

// Extensions returns the registered extensions in sorted order.
func Extensions() []string {
	out := make([]string, 0, len(extensions))
	for ext := range extensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Extract reads path with the reader registered for its extension.
// Reader failures are reported as IOFailure.
func (e *Extractor) Extract(path string) (Result, error) {
	ext := strings.ToLower(filepath.Ext(path))
	format, ok := extensions[ext]
	if !ok {
		return Result{}, kberrors.UnsupportedFormat(path, ext)
	}
	r, ok := e.readers[format]
	if !ok {
		return Result{}, kberrors.UnsupportedFormat(path, ext)
	}

	meta, body, err := r.Read(path)
	if err != nil {
		if _, isKB := kberrors.As(err); isKB {
			return Result{}, err
		}
		return Result{}, kberrors.IOFailure(path, err)
	}
	return Result{Format: format, Meta: meta, Body: body}, nil
}
