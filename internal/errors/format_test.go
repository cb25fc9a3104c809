package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_IncludesHintAndCode(t *testing.T) {
	// Given: an error with a suggestion
	err := New(ErrCodeReindexRunning, "a rebuild is already running", nil).
		WithSuggestion("wait for the current rebuild to finish")

	// When: formatting for the CLI
	out := FormatForCLI(err)

	// Then: message, hint and code are present
	assert.Contains(t, out, "Error: a rebuild is already running")
	assert.Contains(t, out, "Hint: wait for the current rebuild to finish")
	assert.Contains(t, out, "Code: ERR_503_REINDEX_RUNNING")
}

func TestFormatForCLI_WrapsPlainErrors(t *testing.T) {
	out := FormatForCLI(errors.New("boom"))

	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, ErrCodeInternal)
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON_IncludesKind(t *testing.T) {
	// Given: an IO failure with a cause
	err := IOFailure("raw/a.pdf", errors.New("unexpected EOF"))

	// When: formatting as JSON
	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Then: taxonomy fields are present
	assert.Equal(t, ErrCodeIOFailure, decoded["code"])
	assert.Equal(t, "IOFailure", decoded["kind"])
	assert.Equal(t, "unexpected EOF", decoded["cause"])
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(UnsupportedFormat("x.rtf", ".rtf"))

	assert.Contains(t, attrs, "error_code")
	assert.Contains(t, attrs, ErrCodeUnsupportedFormat)
	assert.Contains(t, attrs, "detail_path")
	assert.Nil(t, LogAttrs(nil))
	assert.Equal(t, []any{"error", "plain"}, LogAttrs(errors.New("plain")))
}
