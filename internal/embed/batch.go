package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	kberrors "github.com/Aman-CERP/academykb/internal/errors"
)

// BatchConfig configures BatchClient.
type BatchConfig struct {
	// BatchSize is the number of texts per provider request.
	BatchSize int
	// MaxRetries is the number of retries per batch after the first attempt.
	MaxRetries int
	// BaseDelay is the first backoff wait; it doubles per retry up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// BatchDelay is the minimum spacing between consecutive batch requests.
	BatchDelay time.Duration
	// BreakerFailures is the number of consecutive batches that exhaust their
	// retries on transient errors before the circuit opens. Zero disables the
	// breaker.
	BreakerFailures int
	BreakerReset    time.Duration
}

// DefaultBatchConfig returns the defaults used when config values are zero.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:       DefaultBatchSize,
		MaxRetries:      5,
		BaseDelay:       time.Second,
		MaxDelay:        30 * time.Second,
		BatchDelay:      DefaultBatchDelay,
		BreakerFailures: 3,
		BreakerReset:    30 * time.Second,
	}
}

// BatchClient is the embedding adapter used by the indexer. It splits input
// into batches, retries transient failures with exponential backoff, and
// spaces batches with a rate limiter.
type BatchClient struct {
	inner   Embedder
	cfg     BatchConfig
	limiter *rate.Limiter
	breaker *kberrors.CircuitBreaker
	logger  *slog.Logger
}

// Verify interface implementation at compile time
var _ Embedder = (*BatchClient)(nil)

// NewBatchClient wraps inner with batching, retry and pacing.
func NewBatchClient(inner Embedder, cfg BatchConfig, logger *slog.Logger) *BatchClient {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.BatchDelay > 0 {
		limit = rate.Every(cfg.BatchDelay)
	}

	c := &BatchClient{
		inner:   inner,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
	if cfg.BreakerFailures > 0 {
		opts := []kberrors.CircuitBreakerOption{
			kberrors.WithMaxFailures(cfg.BreakerFailures),
			// Only transient failures that outlived the retries say anything
			// about the provider; a rejected input belongs to its file.
			kberrors.WithFailureFilter(kberrors.IsRetryable),
		}
		if cfg.BreakerReset > 0 {
			opts = append(opts, kberrors.WithResetTimeout(cfg.BreakerReset))
		}
		c.breaker = kberrors.NewCircuitBreaker("embeddings", opts...)
	}
	return c
}

// Embed embeds a single text through the batch path.
func (c *BatchClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns exactly one vector per input, in input order.
// Any batch that still fails after retries fails the whole call with an
// EmbeddingFailure error.
func (c *BatchClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	batches := (len(texts) + c.cfg.BatchSize - 1) / c.cfg.BatchSize
	for b := 0; b < batches; b++ {
		start := b * c.cfg.BatchSize
		end := min(start+c.cfg.BatchSize, len(texts))

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vecs, err := c.embedWithRetry(ctx, texts[start:end], b)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("embed_batch_failed",
				slog.Int("batch", b+1),
				slog.Int("batches", batches),
				slog.String("error", err.Error()))
			return nil, kberrors.EmbeddingFailure(
				fmt.Sprintf("embedding batch %d/%d failed", b+1, batches), err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *BatchClient) embedWithRetry(ctx context.Context, batch []string, idx int) ([][]float32, error) {
	retryCfg := kberrors.RetryConfig{
		MaxRetries:   c.cfg.MaxRetries,
		InitialDelay: c.cfg.BaseDelay,
		MaxDelay:     c.cfg.MaxDelay,
		Multiplier:   2.0,
		ShouldRetry:  kberrors.IsRetryable,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.logger.Info("embed_batch_retry",
				slog.Int("batch", idx+1),
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.String("code", kberrors.GetCode(err)))
		},
	}

	var vecs [][]float32
	call := func() error {
		var err error
		vecs, err = kberrors.RetryWithResult(ctx, retryCfg, func() ([][]float32, error) {
			return c.inner.EmbedBatch(ctx, batch)
		})
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, kberrors.New(kberrors.ErrCodeEmbedResultMalformed,
			fmt.Sprintf("provider returned %d vectors for %d inputs", len(vecs), len(batch)), nil)
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension of the wrapped provider.
func (c *BatchClient) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName returns the model identifier of the wrapped provider.
func (c *BatchClient) ModelName() string {
	return c.inner.ModelName()
}

// Close closes the wrapped provider.
func (c *BatchClient) Close() error {
	return c.inner.Close()
}

// Inner returns the wrapped provider.
func (c *BatchClient) Inner() Embedder {
	return c.inner
}
