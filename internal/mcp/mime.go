package mcp

import (
	"path/filepath"
	"strings"
)

// sourceTypes maps supported source extensions to their MIME types.
var sourceTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".html":     "text/html",
	".htm":      "text/html",
	".pdf":      "application/pdf",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".csv":      "text/csv",
}

// MimeTypeForPath returns the MIME type of the source file at path.
// Returns "application/octet-stream" for unknown extensions.
func MimeTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := sourceTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// ContentMimeType returns the MIME type of the text served for a source
// file. Extraction turns markdown and HTML into markdown; everything else
// becomes plain text.
func ContentMimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".html", ".htm":
		return "text/markdown"
	default:
		return "text/plain"
	}
}
