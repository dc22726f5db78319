package config

import (
	"path/filepath"
	"time"
)

// ProviderPreset describes the default models for a provider.
type ProviderPreset struct {
	Model             string
	EmbeddingProvider ProviderType
	EmbeddingModel    string
}

// providerPresets maps each provider to its default chat and embedding models.
// Providers without a native embedding API fall back to OpenAI embeddings.
var providerPresets = map[ProviderType]ProviderPreset{
	ProviderAnthropic: {Model: "claude-sonnet-4-5-20250929", EmbeddingProvider: ProviderOpenAI, EmbeddingModel: "text-embedding-3-small"},
	ProviderOpenAI:    {Model: "gpt-4o-mini", EmbeddingProvider: ProviderOpenAI, EmbeddingModel: "text-embedding-3-small"},
	ProviderGoogle:    {Model: "gemini-2.0-flash", EmbeddingProvider: ProviderGoogle, EmbeddingModel: "gemini-embedding-001"},
	ProviderOllama:    {Model: "llama3", EmbeddingProvider: ProviderOllama, EmbeddingModel: "nomic-embed-text"},
}

const (
	// DefaultNamespace prefixes every vector collection name.
	DefaultNamespace = "member_enhanced"
	// DefaultCacheTTL is how long a recommendation stays cached (2 days).
	DefaultCacheTTL = 172800 * time.Second
	// DefaultStaleAfter is how long a refreshed record stays fresh.
	DefaultStaleAfter = 24 * time.Hour
	// DefaultDelay is the pause between enhanced records.
	DefaultDelay = 30 * time.Second
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	preset := providerPresets[ProviderGoogle]
	return &Config{
		Provider:          ProviderGoogle,
		Model:             preset.Model,
		EmbeddingProvider: preset.EmbeddingProvider,
		EmbeddingModel:    preset.EmbeddingModel,
		DataDir:           ".memberrec",
		Store: StoreConfig{
			Driver: DriverSQLite,
		},
		Vector: VectorConfig{
			Namespace: DefaultNamespace,
			TopK:      5,
			Persist:   true,
		},
		Cache: CacheConfig{
			Backend:   CacheSQLite,
			TTL:       DefaultCacheTTL,
			RedisAddr: "localhost:6379",
		},
		Pipeline: PipelineConfig{
			TTL:           DefaultStaleAfter,
			Delay:         DefaultDelay,
			CompanySearch: true,
			ProfileSearch: true,
			RPM:           30,
			PromptVersion: "1.0.0",
		},
		Search: SearchConfig{
			Endpoint:   "https://api.duckduckgo.com/",
			MaxResults: 5,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Schedule: ScheduleConfig{
			Interval: time.Hour,
			Version:  "v1",
			Enhance:  false,
		},
	}
}

// GetPreset returns the preset for the given provider, or the Google
// preset if the provider is unknown.
func GetPreset(provider ProviderType) ProviderPreset {
	if p, ok := providerPresets[provider]; ok {
		return p
	}
	return providerPresets[ProviderGoogle]
}

// DatabasePath returns the sqlite file used for members, cache entries
// and run history.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "memberrec.db")
}

// VectorDir returns the directory the vector index is persisted to.
func (c *Config) VectorDir() string {
	return filepath.Join(c.DataDir, "vectordb")
}
