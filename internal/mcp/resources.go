package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ResourceScheme prefixes document resource URIs.
const ResourceScheme = "kb://documents/"

// MaxResourceSize is the maximum source file size served as a resource (10MB).
const MaxResourceSize = 10 * 1024 * 1024

// ResourceInfo contains information about a resource.
type ResourceInfo struct {
	URI      string
	Name     string
	MIMEType string
}

// ResourceContent contains the content of a resource.
type ResourceContent struct {
	URI      string
	Content  string
	MIMEType string
}

// DocumentURI returns the resource URI of a document.
func DocumentURI(docID string) string {
	return ResourceScheme + docID
}

// RegisterResources registers every tracked document as an MCP resource.
// Call it after the server is created and before serving.
func (s *Server) RegisterResources(ctx context.Context) error {
	if s.tracker == nil || s.extractor == nil {
		return fmt.Errorf("tracker and extractor must be set before registering resources")
	}

	docs, err := s.tracker.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	for _, d := range docs {
		s.registerDocument(d.DocID, d.Path)
	}

	s.logger.Info("registered resources", slog.Int("count", len(docs)))
	return nil
}

// registerDocument adds or replaces the resource for one document.
func (s *Server) registerDocument(docID, path string) {
	if s.extractor == nil || docID == "" {
		return
	}
	s.mu.Lock()
	s.resources[docID] = path
	s.mu.Unlock()

	info, _ := os.Stat(path)
	desc := filepath.Base(path)
	if info != nil {
		desc = fmt.Sprintf("%s (%s)", s.relativePath(path), humanSize(info.Size()))
	}
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        filepath.Base(path),
			URI:         DocumentURI(docID),
			Description: desc,
			MIMEType:    ContentMimeType(path),
		},
		s.makeDocumentHandler(docID),
	)
}

// unregisterDocument removes the resource for a deleted document.
func (s *Server) unregisterDocument(docID string) {
	s.mu.Lock()
	_, ok := s.resources[docID]
	delete(s.resources, docID)
	s.mu.Unlock()
	if ok {
		s.mcp.RemoveResources(DocumentURI(docID))
	}
}

func (s *Server) makeDocumentHandler(docID string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		content, err := s.ReadResource(ctx, DocumentURI(docID))
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      content.URI,
					MIMEType: content.MIMEType,
					Text:     content.Content,
				},
			},
		}, nil
	}
}

// ListResources returns the registered document resources sorted by URI.
func (s *Server) ListResources() []ResourceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ResourceInfo, 0, len(s.resources))
	for id, path := range s.resources {
		out = append(out, ResourceInfo{
			URI:      DocumentURI(id),
			Name:     filepath.Base(path),
			MIMEType: ContentMimeType(path),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// ReadResource extracts the current text of a registered document.
func (s *Server) ReadResource(_ context.Context, uri string) (*ResourceContent, error) {
	if !strings.HasPrefix(uri, ResourceScheme) {
		return nil, NewResourceNotFoundError(uri)
	}
	docID := strings.TrimPrefix(uri, ResourceScheme)

	s.mu.RLock()
	path, ok := s.resources[docID]
	s.mu.RUnlock()
	if !ok {
		return nil, NewResourceNotFoundError(uri)
	}
	if !isValidPath(s.relativePath(path)) {
		return nil, NewInvalidParamsError(fmt.Sprintf("document outside raw root: %s", path))
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{
				Code:    ErrCodeFileNotFound,
				Message: fmt.Sprintf("file not found: %s", s.relativePath(path)),
			}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), MaxResourceSize),
		}
	}

	res, err := s.extractor.Extract(path)
	if err != nil {
		return nil, MapError(err)
	}
	return &ResourceContent{
		URI:      uri,
		Content:  res.Body,
		MIMEType: ContentMimeType(path),
	}, nil
}

// relativePath returns path relative to the raw root, or path unchanged
// when it cannot be expressed that way.
func (s *Server) relativePath(path string) string {
	rel, err := filepath.Rel(s.config.Paths.RawRoot, path)
	if err != nil {
		return path
	}
	return rel
}

// isValidPath reports whether path is a safe root-relative path.
// Absolute paths and traversal are rejected.
func isValidPath(path string) bool {
	if path == "" {
		return false
	}
	if filepath.IsAbs(path) {
		return false
	}
	// Windows drive letters
	if len(path) >= 2 && path[1] == ':' {
		return false
	}

	cleaned := filepath.Clean(path)
	if cleaned == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(cleaned), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// humanSize formats bytes as a human-readable string.
func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
