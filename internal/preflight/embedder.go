package preflight

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/academykb/internal/chunk"
	"github.com/Aman-CERP/academykb/internal/config"
	"github.com/Aman-CERP/academykb/internal/embed"
)

// CheckEmbeddings checks that the configured provider can be built.
// A missing OpenAI key fails; the static provider passes with a warning
// because its vectors carry no meaning.
func (c *Checker) CheckEmbeddings(cfg config.EmbeddingsConfig) CheckResult {
	result := CheckResult{
		Name:     "embeddings",
		Required: true,
	}

	switch embed.ProviderType(strings.ToLower(cfg.Provider)) {
	case embed.ProviderOpenAI, "":
		if cfg.APIKey == "" {
			result.Status = StatusFail
			result.Message = "OPENAI_API_KEY is not set"
			result.Details = "Export OPENAI_API_KEY or set embeddings.provider: static for offline testing"
			return result
		}
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%s (%d dims)", cfg.Model, cfg.Dimensions)
		result.Details = cfg.BaseURL
	case embed.ProviderStatic:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("static embeddings (%d dims), answers are keyword based", cfg.Dimensions)
	default:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("unknown provider %q", cfg.Provider)
	}
	return result
}

// CheckTokenizer checks that the chunking encoding loads offline.
func (c *Checker) CheckTokenizer(encoding string) CheckResult {
	result := CheckResult{
		Name:     "tokenizer",
		Required: true,
	}

	tok, err := chunk.NewTiktokenTokenizer(encoding)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot load %s: %v", encoding, err)
		return result
	}

	result.Status = StatusPass
	result.Message = encoding
	result.Details = fmt.Sprintf("%q is %d tokens", "depth of field", len(tok.Encode("depth of field")))
	return result
}
