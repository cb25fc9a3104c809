package embed

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/academykb/internal/config"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOpenAI calls the OpenAI-compatible embeddings endpoint.
	ProviderOpenAI ProviderType = "openai"

	// ProviderStatic uses hash-based embeddings (offline, deterministic).
	ProviderStatic ProviderType = "static"
)

// NewFromConfig builds the indexing embedder: the configured provider wrapped
// in a BatchClient.
func NewFromConfig(cfg config.EmbeddingsConfig, logger *slog.Logger) (*BatchClient, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	bc := DefaultBatchConfig()
	bc.BatchSize = cfg.BatchSize
	bc.MaxRetries = cfg.MaxRetries
	if cfg.RetryBaseDelay > 0 {
		bc.BaseDelay = cfg.RetryBaseDelay
	}
	if cfg.MaxRetryDelay > 0 {
		bc.MaxDelay = cfg.MaxRetryDelay
	}
	bc.BatchDelay = cfg.BatchDelay
	bc.BreakerFailures = cfg.BreakerFailures

	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("embedder_created",
		slog.String("provider", cfg.Provider),
		slog.String("model", provider.ModelName()),
		slog.Int("dimensions", provider.Dimensions()),
		slog.Int("batch_size", bc.BatchSize))

	return NewBatchClient(provider, bc, logger), nil
}

// NewQueryEmbedder wraps an indexing embedder with the query cache.
func NewQueryEmbedder(inner Embedder, cfg config.EmbeddingsConfig) *CachedEmbedder {
	return NewCachedEmbedder(inner, cfg.CacheSize)
}

func newProvider(cfg config.EmbeddingsConfig) (Embedder, error) {
	switch ProviderType(strings.ToLower(cfg.Provider)) {
	case ProviderOpenAI, "":
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	case ProviderStatic:
		return NewStaticEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}
}
