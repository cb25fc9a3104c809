package metadata

import (
	"path"
	"path/filepath"
	"strings"
	"time"
)

// DefaultSource tags documents whose front matter names no source.
const DefaultSource = "doc"

// Chunk-level metadata keys added on top of document metadata.
const (
	KeyDocID       = "doc_id"
	KeyChunkIndex  = "chunk_index"
	KeyChunkCount  = "chunk_count"
	KeyDocChars    = "doc_chars"
	KeyDocTokens   = "doc_tokens"
	KeyIndexedAt   = "indexed_at"
	KeyTitle       = "title"
	KeyPath        = "path"
	KeySource      = "source"
	KeyTags        = "tags"
	KeyCategories  = "categories"
	KeyURL         = "url"
	KeyVideoURL    = "video_url"
	KeyLastUpdated = "last_updated"
	KeySessionID   = "session_id"
	KeySourceURL   = "source_url"
	KeyFilename    = "filename"
	KeyExt         = "ext"
	KeyRelPath     = "relpath"
)

// recognized front-matter keys consumed into typed fields.
var recognized = map[string]bool{
	KeyTitle: true, KeyTags: true, KeyCategories: true, "category": true,
	KeyURL: true, KeyVideoURL: true, KeyLastUpdated: true, KeySource: true,
	KeySessionID: true, KeySourceURL: true,
}

// DocMeta holds the known document attributes plus unrecognized front matter.
type DocMeta struct {
	Title       string
	Source      string
	Tags        []string
	Categories  []string
	URL         string
	VideoURL    string
	LastUpdated string
	SessionID   string
	SourceURL   string

	Path     string
	Filename string
	Ext      string
	RelPath  string

	// Extra carries front-matter keys with no typed field, already normalized.
	Extra map[string]any
}

// FileInfo describes the source file a DocMeta is derived for.
type FileInfo struct {
	// Path is the file path as enumerated.
	Path string
	// Root is the content root used to compute the relative path.
	Root    string
	ModTime time.Time
}

// FromFrontMatter builds a DocMeta from front matter and applies defaults:
// title from the file name, last_updated from the modification time and
// source_url from the path relative to the content root.
func FromFrontMatter(fm map[string]any, fi FileInfo) DocMeta {
	name := filepath.Base(fi.Path)
	ext := strings.ToLower(filepath.Ext(name))
	rel := relPath(fi.Root, fi.Path)

	m := DocMeta{
		Title:       stringField(fm, KeyTitle),
		Source:      stringField(fm, KeySource),
		Tags:        SplitList(fm[KeyTags]),
		Categories:  SplitList(fm[KeyCategories]),
		URL:         stringField(fm, KeyURL),
		VideoURL:    stringField(fm, KeyVideoURL),
		LastUpdated: stringField(fm, KeyLastUpdated),
		SessionID:   stringField(fm, KeySessionID),
		SourceURL:   stringField(fm, KeySourceURL),
		Path:        filepath.ToSlash(fi.Path),
		Filename:    name,
		Ext:         ext,
		RelPath:     rel,
	}
	if cat := stringField(fm, "category"); cat != "" && !contains(m.Categories, cat) {
		m.Categories = append(m.Categories, cat)
	}

	if m.Title == "" {
		m.Title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if m.Source == "" {
		m.Source = DefaultSource
	}
	if m.LastUpdated == "" && !fi.ModTime.IsZero() {
		m.LastUpdated = fi.ModTime.Format("2006-01-02")
	}
	if m.SourceURL == "" {
		m.SourceURL = path.Join("/raw", rel)
	}

	for k, v := range fm {
		if recognized[k] {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = NormalizeValue(v)
	}
	return m
}

// Flatten returns the scalar-safe mapping copied onto every chunk.
// Typed fields win over Extra keys with the same name.
func (m DocMeta) Flatten() map[string]any {
	out := make(map[string]any, len(m.Extra)+14)
	for k, v := range m.Extra {
		out[k] = NormalizeValue(v)
	}

	out[KeyTitle] = m.Title
	out[KeySource] = m.Source
	out[KeyTags] = strings.Join(m.Tags, ListSeparator)
	out[KeyCategories] = strings.Join(m.Categories, ListSeparator)
	out[KeyURL] = m.URL
	out[KeyVideoURL] = m.VideoURL
	out[KeyLastUpdated] = m.LastUpdated
	out[KeySourceURL] = m.SourceURL
	out[KeyPath] = m.Path
	out[KeyFilename] = m.Filename
	out[KeyExt] = m.Ext
	out[KeyRelPath] = m.RelPath
	if m.SessionID != "" {
		out[KeySessionID] = m.SessionID
	}
	return out
}

// String reads a string-valued key from flattened metadata.
func String(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Int reads an integer-valued key from flattened metadata, accepting the
// float64 form produced by JSON decoding.
func Int(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func stringField(fm map[string]any, key string) string {
	v, ok := fm[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(scalarString(v))
}

func relPath(root, p string) string {
	if root == "" {
		return filepath.ToSlash(filepath.Base(p))
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(filepath.Base(p))
	}
	return filepath.ToSlash(rel)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
