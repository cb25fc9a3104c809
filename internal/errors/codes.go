// Package errors provides structured error handling for academykb.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: File and format errors
//   - 3XX: Embedding provider errors
//   - 4XX: Validation errors
//   - 5XX: Store and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryEmbedding  Category = "EMBEDDING"
	CategoryValidation Category = "VALIDATION"
	CategoryStore      Category = "STORE"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal aborts the whole operation.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails the current file but the run continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates a transient or degraded condition.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigMissing = "ERR_102_CONFIG_MISSING"

	// File and format errors (200-299)
	ErrCodeUnsupportedFormat = "ERR_201_UNSUPPORTED_FORMAT"
	ErrCodeIOFailure         = "ERR_202_IO_FAILURE"

	// Embedding errors (300-399)
	ErrCodeEmbeddingFailed      = "ERR_301_EMBEDDING_FAILED"
	ErrCodeEmbedRateLimited     = "ERR_302_EMBED_RATE_LIMITED"
	ErrCodeEmbedUnavailable     = "ERR_303_EMBED_UNAVAILABLE"
	ErrCodeEmbedCircuitOpen     = "ERR_304_EMBED_CIRCUIT_OPEN"
	ErrCodeEmbedResultMalformed = "ERR_305_EMBED_RESULT_MALFORMED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"

	// Store and internal errors (500-599)
	ErrCodeStoreWrite     = "ERR_501_STORE_WRITE"
	ErrCodeStoreRead      = "ERR_502_STORE_READ"
	ErrCodeReindexRunning = "ERR_503_REINDEX_RUNNING"
	ErrCodeInternal       = "ERR_504_INTERNAL"
)

// Kind is the per-file failure taxonomy reported by the indexer.
type Kind string

const (
	KindUnsupportedFormat Kind = "UnsupportedFormat"
	KindIOFailure         Kind = "IOFailure"
	KindEmbeddingFailure  Kind = "EmbeddingFailure"
	KindStoreWriteFailure Kind = "StoreWriteFailure"
	KindInternal          Kind = "Internal"
)

func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryStore
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryValidation
	default:
		return CategoryStore
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeConfigMissing:
		return SeverityFatal
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode reports whether a code is a transient provider condition.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedRateLimited, ErrCodeEmbedUnavailable:
		return true
	default:
		return false
	}
}

// kindFromCode maps an error code onto the failure taxonomy.
func kindFromCode(code string) Kind {
	switch code {
	case ErrCodeUnsupportedFormat:
		return KindUnsupportedFormat
	case ErrCodeIOFailure:
		return KindIOFailure
	case ErrCodeEmbeddingFailed, ErrCodeEmbedRateLimited, ErrCodeEmbedUnavailable,
		ErrCodeEmbedCircuitOpen, ErrCodeEmbedResultMalformed:
		return KindEmbeddingFailure
	case ErrCodeStoreWrite, ErrCodeDimensionMismatch:
		return KindStoreWriteFailure
	default:
		return KindInternal
	}
}
