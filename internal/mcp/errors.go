// Package mcp exposes the knowledge base to MCP clients over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"

	kberrors "github.com/Aman-CERP/academykb/internal/errors"
)

// Custom MCP error codes for academykb.
const (
	// ErrCodeNotIndexed indicates the collection has not been built.
	ErrCodeNotIndexed = -32001

	// ErrCodeEmbeddingFailed indicates the embedding provider failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a file no longer exists on disk.
	ErrCodeFileNotFound = -32004

	// ErrCodeFileTooLarge indicates a file is too large to serve.
	ErrCodeFileTooLarge = -32005

	// ErrCodeReindexRunning indicates a rebuild already holds the guard.
	ErrCodeReindexRunning = -32006

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	if ke, ok := kberrors.As(err); ok {
		return mapKBError(ke)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{Code: ErrCodeInvalidParams, Message: "Invalid parameters."}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Resource not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

// mapKBError converts a KBError to an MCPError by category.
func mapKBError(ke *kberrors.KBError) *MCPError {
	message := ke.Message
	if ke.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ke.Message, ke.Suggestion)
	}

	if ke.Code == kberrors.ErrCodeReindexRunning {
		return &MCPError{Code: ErrCodeReindexRunning, Message: message}
	}

	switch ke.Category {
	case kberrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case kberrors.CategoryEmbedding:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case kberrors.CategoryIO:
		if ke.Code == kberrors.ErrCodeUnsupportedFormat {
			return &MCPError{Code: ErrCodeInvalidParams, Message: message}
		}
		return &MCPError{Code: ErrCodeFileNotFound, Message: message}
	default: // config, store and unknown
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
