package config

import "time"

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderGoogle    ProviderType = "google"
	ProviderOllama    ProviderType = "ollama"
)

// StoreDriver selects the relational backend for member records.
type StoreDriver string

const (
	DriverSQLite   StoreDriver = "sqlite"
	DriverPostgres StoreDriver = "postgres"
)

// CacheBackend selects where memoized recommendation results live.
type CacheBackend string

const (
	CacheMemory CacheBackend = "memory"
	CacheSQLite CacheBackend = "sqlite"
	CacheRedis  CacheBackend = "redis"
)

// Config is the top-level memberrec configuration, corresponding to .memberrec.yml.
type Config struct {
	Provider          ProviderType   `yaml:"provider" koanf:"provider"`
	Model             string         `yaml:"model" koanf:"model"`
	EmbeddingProvider ProviderType   `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string         `yaml:"embedding_model" koanf:"embedding_model"`
	DataDir           string         `yaml:"data_dir" koanf:"data_dir"`
	Store             StoreConfig    `yaml:"store" koanf:"store"`
	Vector            VectorConfig   `yaml:"vector" koanf:"vector"`
	Cache             CacheConfig    `yaml:"cache" koanf:"cache"`
	Pipeline          PipelineConfig `yaml:"pipeline" koanf:"pipeline"`
	Search            SearchConfig   `yaml:"search" koanf:"search"`
	Server            ServerConfig   `yaml:"server" koanf:"server"`
	Schedule          ScheduleConfig `yaml:"schedule" koanf:"schedule"`
}

// StoreConfig holds member record store settings. DSN is only used by
// the postgres driver; the sqlite driver keeps its file under DataDir.
type StoreConfig struct {
	Driver StoreDriver `yaml:"driver" koanf:"driver"`
	DSN    string      `yaml:"dsn" koanf:"dsn"`
}

// VectorConfig controls the per-version vector collections.
type VectorConfig struct {
	Namespace string `yaml:"namespace" koanf:"namespace"`
	TopK      int    `yaml:"top_k" koanf:"top_k"`
	Persist   bool   `yaml:"persist" koanf:"persist"`
}

// CacheConfig controls the recommendation cache.
type CacheConfig struct {
	Backend   CacheBackend  `yaml:"backend" koanf:"backend"`
	TTL       time.Duration `yaml:"ttl" koanf:"ttl"`
	RedisAddr string        `yaml:"redis_addr" koanf:"redis_addr"`
	RedisDB   int           `yaml:"redis_db" koanf:"redis_db"`
}

// PipelineConfig controls the freshness pipeline.
type PipelineConfig struct {
	TTL           time.Duration `yaml:"ttl" koanf:"ttl"`
	Delay         time.Duration `yaml:"delay" koanf:"delay"`
	CompanySearch bool          `yaml:"company_search" koanf:"company_search"`
	ProfileSearch bool          `yaml:"profile_search" koanf:"profile_search"`
	RPM           int           `yaml:"rpm" koanf:"rpm"`
	PromptVersion string        `yaml:"prompt_version" koanf:"prompt_version"`
}

// SearchConfig configures the web search collaborator used during enhancement.
type SearchConfig struct {
	Endpoint   string `yaml:"endpoint" koanf:"endpoint"`
	MaxResults int    `yaml:"max_results" koanf:"max_results"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port     int  `yaml:"port" koanf:"port"`
	AllowAll bool `yaml:"allow_all" koanf:"allow_all"`
}

// ScheduleConfig controls the periodic refresh loop.
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval" koanf:"interval"`
	Version  string        `yaml:"version" koanf:"version"`
	Enhance  bool          `yaml:"enhance" koanf:"enhance"`
}
