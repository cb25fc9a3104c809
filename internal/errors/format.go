package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ke, ok := As(err)
	if !ok {
		ke = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", ke.Message))
	if ke.Cause != nil && ke.Cause.Error() != ke.Message {
		sb.WriteString(fmt.Sprintf("  Cause: %v\n", ke.Cause))
	}
	if ke.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ke.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", ke.Code))

	return sb.String()
}

type jsonError struct {
	Code       string            `json:"code"`
	Kind       string            `json:"kind"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	ke, ok := As(err)
	if !ok {
		ke = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       ke.Code,
		Kind:       string(kindFromCode(ke.Code)),
		Message:    ke.Message,
		Category:   string(ke.Category),
		Details:    ke.Details,
		Suggestion: ke.Suggestion,
		Retryable:  ke.Retryable,
	}
	if ke.Cause != nil {
		je.Cause = ke.Cause.Error()
	}

	return json.Marshal(je)
}

// LogAttrs flattens an error into key-value pairs for slog.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}
	ke, ok := As(err)
	if !ok {
		return []any{"error", err.Error()}
	}
	attrs := []any{
		"error", ke.Error(),
		"error_code", ke.Code,
		"kind", string(kindFromCode(ke.Code)),
	}
	for k, v := range ke.Details {
		attrs = append(attrs, "detail_"+k, v)
	}
	return attrs
}
