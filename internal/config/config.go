// Package config loads academykb configuration from defaults, YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfigFile is the per-project configuration file name.
const ProjectConfigFile = "academykb.yaml"

// Config represents the complete academykb configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Query      QueryConfig      `yaml:"query" json:"query"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// PathsConfig configures the on-disk layout.
type PathsConfig struct {
	// RawRoot is the content tree that full rebuilds enumerate.
	RawRoot string `yaml:"raw_root" json:"raw_root"`
	// CollectionDir holds the vector collection (chunk records and HNSW graph).
	CollectionDir string `yaml:"collection_dir" json:"collection_dir"`
	// DatabasePath is the SQLite file holding the documents table.
	DatabasePath string `yaml:"database_path" json:"database_path"`
	LogDir       string `yaml:"log_dir" json:"log_dir"`
}

// IndexConfig configures enumeration and chunking.
type IndexConfig struct {
	IgnoreDirs   []string `yaml:"ignore_dirs" json:"ignore_dirs"`
	ChunkSize    int      `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap" json:"chunk_overlap"`
	// Encoding is the tiktoken encoding shared with the embedding model.
	Encoding string `yaml:"encoding" json:"encoding"`

	// ClearBeforeRebuild resets the vector collection before a full rebuild.
	ClearBeforeRebuild bool `yaml:"clear_before_rebuild" json:"clear_before_rebuild"`
	// PruneOrphans removes documents whose source file disappeared after a rebuild.
	PruneOrphans bool `yaml:"prune_orphans" json:"prune_orphans"`

	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`
}

// EmbeddingsConfig configures the embedding provider and batching policy.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	BaseURL    string `yaml:"base_url" json:"base_url"`
	APIKey     string `yaml:"-" json:"-"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`

	BatchSize      int           `yaml:"batch_size" json:"batch_size"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" json:"retry_base_delay"`
	MaxRetryDelay  time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	// BatchDelay is the fixed pause between consecutive batches.
	BatchDelay time.Duration `yaml:"batch_delay" json:"batch_delay"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`

	// BreakerFailures is the number of consecutive failed batches that opens the circuit.
	BreakerFailures int `yaml:"breaker_failures" json:"breaker_failures"`
	// CacheSize bounds the query embedding cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// QueryConfig configures retrieval.
type QueryConfig struct {
	TopK                int     `yaml:"top_k" json:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`
	Strict              bool    `yaml:"strict" json:"strict"`
	SuggestionCount     int     `yaml:"suggestion_count" json:"suggestion_count"`
	SnippetChars        int     `yaml:"snippet_chars" json:"snippet_chars"`
}

// LoggingConfig configures the log file.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	ToStderr  bool   `yaml:"to_stderr" json:"to_stderr"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			RawRoot:       filepath.Join("data", "raw"),
			CollectionDir: filepath.Join("data", "academy_kb"),
			DatabasePath:  filepath.Join("data", "academykb.db"),
			LogDir:        filepath.Join("data", "logs"),
		},
		Index: IndexConfig{
			IgnoreDirs:    []string{"_assets"},
			ChunkSize:     1000,
			ChunkOverlap:  100,
			Encoding:      "cl100k_base",
			PruneOrphans:  true,
			WatchDebounce: 500 * time.Millisecond,
		},
		Embeddings: EmbeddingsConfig{
			Provider:        "openai",
			Model:           "text-embedding-3-small",
			BaseURL:         "https://api.openai.com/v1",
			Dimensions:      1536,
			BatchSize:       64,
			MaxRetries:      5,
			RetryBaseDelay:  time.Second,
			MaxRetryDelay:   30 * time.Second,
			BatchDelay:      200 * time.Millisecond,
			Timeout:         60 * time.Second,
			BreakerFailures: 3,
			CacheSize:       512,
		},
		Query: QueryConfig{
			TopK:                5,
			SimilarityThreshold: 0.78,
			Strict:              true,
			SuggestionCount:     3,
			SnippetChars:        200,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the user-level configuration file path:
// $XDG_CONFIG_HOME/academykb/config.yaml or ~/.config/academykb/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "academykb", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "academykb", "config.yaml")
	}
	return filepath.Join(home, ".config", "academykb", "config.yaml")
}

// Load loads configuration for the project rooted at dir.
// Precedence, lowest first:
//  1. Defaults
//  2. User config (GetUserConfigPath)
//  3. Project config (academykb.yaml in dir)
//  4. Environment variables (ACADEMYKB_*, OPENAI_API_KEY, OPENAI_BASE_URL)
//
// Relative paths are resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(GetUserConfigPath()); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	if err := cfg.loadYAML(filepath.Join(dir, ProjectConfigFile)); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()
	cfg.ResolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path over the current values. A missing file is not an error.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ACADEMYKB_RAW_ROOT"); v != "" {
		c.Paths.RawRoot = v
	}
	if v := os.Getenv("ACADEMYKB_COLLECTION_DIR"); v != "" {
		c.Paths.CollectionDir = v
	}
	if v := os.Getenv("ACADEMYKB_DATABASE_PATH"); v != "" {
		c.Paths.DatabasePath = v
	}
	if v := os.Getenv("ACADEMYKB_LOG_DIR"); v != "" {
		c.Paths.LogDir = v
	}
	if v := os.Getenv("ACADEMYKB_CLEAR_BEFORE_REBUILD"); v != "" {
		c.Index.ClearBeforeRebuild = parseBool(v)
	}

	if v := os.Getenv("ACADEMYKB_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("ACADEMYKB_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Embeddings.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("ACADEMYKB_EMBED_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.BatchSize = n
		}
	}
	if v := os.Getenv("ACADEMYKB_EMBED_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Embeddings.MaxRetries = n
		}
	}
	if v := os.Getenv("ACADEMYKB_EMBED_BATCH_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			c.Embeddings.BatchDelay = d
		}
	}

	if v := os.Getenv("ACADEMYKB_SIM_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 && f <= 1 {
			c.Query.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("ACADEMYKB_STRICT"); v != "" {
		c.Query.Strict = parseBool(v)
	}
	if v := os.Getenv("ACADEMYKB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

// ResolvePaths makes relative paths absolute against dir.
func (c *Config) ResolvePaths(dir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Paths.RawRoot = resolve(c.Paths.RawRoot)
	c.Paths.CollectionDir = resolve(c.Paths.CollectionDir)
	c.Paths.DatabasePath = resolve(c.Paths.DatabasePath)
	c.Paths.LogDir = resolve(c.Paths.LogDir)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Paths.RawRoot == "" {
		return fmt.Errorf("paths.raw_root is required")
	}
	if c.Paths.CollectionDir == "" {
		return fmt.Errorf("paths.collection_dir is required")
	}
	if c.Paths.DatabasePath == "" {
		return fmt.Errorf("paths.database_path is required")
	}

	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize)
	}
	if c.Index.ChunkOverlap < 0 {
		return fmt.Errorf("index.chunk_overlap must be non-negative, got %d", c.Index.ChunkOverlap)
	}

	validProviders := map[string]bool{"openai": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'openai' or 'static', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.MaxRetries < 0 {
		return fmt.Errorf("embeddings.max_retries must be non-negative, got %d", c.Embeddings.MaxRetries)
	}
	if c.Embeddings.BatchDelay < 0 {
		return fmt.Errorf("embeddings.batch_delay must be non-negative, got %s", c.Embeddings.BatchDelay)
	}

	if c.Query.TopK <= 0 {
		return fmt.Errorf("query.top_k must be positive, got %d", c.Query.TopK)
	}
	if c.Query.SimilarityThreshold < 0 || c.Query.SimilarityThreshold > 1 {
		return fmt.Errorf("query.similarity_threshold must be between 0 and 1, got %f", c.Query.SimilarityThreshold)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
