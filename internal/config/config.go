// Package config provides configuration loading and structs for the WTM server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Catalog backends.
const (
	CatalogBackendMemory   = "memory"
	CatalogBackendPgvector = "pgvector"
)

// Embedding providers.
const (
	EmbeddingProviderONNX   = "onnx"
	EmbeddingProviderOllama = "ollama"
	EmbeddingProviderMock   = "mock"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Matching  MatchingConfig  `yaml:"matching"`
	OCR       OCRConfig       `yaml:"ocr"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	MaxUploadMB           int    `yaml:"max_upload_mb"`
}

// RequestTimeout returns the per-request deadline.
func (s *ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// StorageConfig holds paths for the database and on-disk indices.
// Empty IndexSnapshotPath or NameIndexPath keeps that index in memory only.
type StorageConfig struct {
	DatabasePath      string `yaml:"database_path"`
	IndexSnapshotPath string `yaml:"index_snapshot_path"`
	NameIndexPath     string `yaml:"name_index_path"`
}

// CatalogConfig selects where nearest-neighbor search runs.
//
// With the pgvector backend PgTable is searched directly. When PgMirror is set
// the table is instead kept in sync with the embedded foods of the local store.
type CatalogConfig struct {
	Backend                string `yaml:"backend"`
	PostgresDSN            string `yaml:"postgres_dsn"`
	PgTable                string `yaml:"pg_table"`
	PgMirror               bool   `yaml:"pg_mirror"`
	RefreshIntervalSeconds int    `yaml:"refresh_interval_seconds"`
	EmbedIngredients       bool   `yaml:"embed_ingredients"`
}

// RefreshInterval returns how often the in-memory catalog reloads; zero disables the loop.
func (c *CatalogConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	ModelID    string `yaml:"model_id"`
	ModelPath  string `yaml:"model_path"`
	VocabPath  string `yaml:"vocab_path"`
	OutputName string `yaml:"output_name"`
	Pooling    string `yaml:"pooling"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	OllamaURL  string `yaml:"ollama_url"`
}

// MatchingConfig holds defaults for the match pipeline.
type MatchingConfig struct {
	TopK      int      `yaml:"top_k"`
	MaxTopK   int      `yaml:"max_top_k"`
	Threshold *float64 `yaml:"threshold"`
	Workers   int      `yaml:"workers"`
}

// ThresholdOrDefault returns the configured threshold; defaults to DefaultThreshold when unset.
func (m *MatchingConfig) ThresholdOrDefault() float64 {
	if m.Threshold != nil {
		return *m.Threshold
	}
	return DefaultThreshold
}

// OCRConfig holds settings for the text extraction collaborator.
type OCRConfig struct {
	Placeholder bool `yaml:"placeholder"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexSnapshotPath = expandPath(cfg.Storage.IndexSnapshotPath, configDir)
	cfg.Storage.NameIndexPath = expandPath(cfg.Storage.NameIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)

	return &cfg, nil
}

// Validate rejects settings that ApplyDefaults cannot repair.
func Validate(cfg *Config) error {
	switch cfg.Catalog.Backend {
	case CatalogBackendMemory:
	case CatalogBackendPgvector:
		if cfg.Catalog.PostgresDSN == "" {
			return fmt.Errorf("catalog.postgres_dsn is required for the pgvector backend")
		}
	default:
		return fmt.Errorf("unknown catalog backend: %s (supported: memory, pgvector)", cfg.Catalog.Backend)
	}
	switch cfg.Embedding.Provider {
	case EmbeddingProviderONNX, EmbeddingProviderOllama, EmbeddingProviderMock:
	default:
		return fmt.Errorf("unknown embedding provider: %s (supported: onnx, ollama, mock)", cfg.Embedding.Provider)
	}
	if t := cfg.Matching.ThresholdOrDefault(); t < -1 || t > 1 {
		return fmt.Errorf("matching.threshold must be within [-1, 1], got %v", t)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
