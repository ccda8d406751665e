package config

// Matching defaults, taken from the sentence model the catalog was built with.
const (
	DefaultModelID    = "jhgan/ko-sroberta-multitask"
	DefaultDimensions = 768
	DefaultTopK       = 3
	DefaultThreshold  = 0.7
	DefaultWorkers    = 4
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = 30
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 10
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/wtm/data/db/wtm.db"
	}
	if cfg.Catalog.Backend == "" {
		cfg.Catalog.Backend = CatalogBackendMemory
	}
	if cfg.Catalog.PgTable == "" {
		cfg.Catalog.PgTable = "foods"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = EmbeddingProviderONNX
	}
	if cfg.Embedding.ModelID == "" {
		cfg.Embedding.ModelID = DefaultModelID
	}
	if cfg.Embedding.ModelPath == "" && cfg.Embedding.Provider == EmbeddingProviderONNX {
		cfg.Embedding.ModelPath = "/usr/local/var/wtm/data/models/ko-sroberta-multitask.onnx"
	}
	if cfg.Embedding.OutputName == "" {
		cfg.Embedding.OutputName = "output"
	}
	if cfg.Embedding.Pooling == "" {
		cfg.Embedding.Pooling = "none"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = DefaultDimensions
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 128
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.OllamaURL == "" {
		cfg.Embedding.OllamaURL = "http://localhost:11434"
	}
	if cfg.Matching.TopK == 0 {
		cfg.Matching.TopK = DefaultTopK
	}
	if cfg.Matching.MaxTopK == 0 {
		cfg.Matching.MaxTopK = 50
	}
	// Threshold stays nil when unset so an explicit 0 is distinguishable; see ThresholdOrDefault.
	if cfg.Matching.Workers == 0 {
		cfg.Matching.Workers = DefaultWorkers
	}
}
