package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ziadkadry99/memberrec/internal/cache"
	"github.com/ziadkadry99/memberrec/internal/config"
	"github.com/ziadkadry99/memberrec/internal/db"
	"github.com/ziadkadry99/memberrec/internal/embeddings"
	"github.com/ziadkadry99/memberrec/internal/enhance"
	"github.com/ziadkadry99/memberrec/internal/freshness"
	"github.com/ziadkadry99/memberrec/internal/llm"
	"github.com/ziadkadry99/memberrec/internal/members"
	"github.com/ziadkadry99/memberrec/internal/rerank"
	"github.com/ziadkadry99/memberrec/internal/search"
	"github.com/ziadkadry99/memberrec/internal/vectordb"
)

// app holds the handles shared by commands. The sqlite database always
// exists because it also keeps cache entries and run history, even when
// members live in postgres.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *db.DB
	store  members.Store
	index  *vectordb.Index
	cache  cache.Cache
	hub    *freshness.Hub
	runs   *freshness.RunStore

	provider llm.Provider
}

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `memberrec init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// openApp loads the config and opens the store, the vector index and the
// cache. The LLM provider is created on first use.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, hub: freshness.NewHub()}

	a.db, err = db.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	a.runs = freshness.NewRunStore(a.db)

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openIndex(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openCache(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case config.DriverPostgres:
		store, err := members.NewPostgresStore(ctx, a.cfg.Store.DSN, a.logger)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		a.store = store
	default:
		a.store = members.NewSQLiteStore(a.db, a.logger)
	}
	return nil
}

func (a *app) openIndex() error {
	provider := a.cfg.EmbeddingProvider
	if provider == "" {
		provider = config.GetPreset(a.cfg.Provider).EmbeddingProvider
	}
	embedder, err := embeddings.New(string(provider), a.cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	if !a.cfg.Vector.Persist {
		a.index = vectordb.NewIndex(embedder, a.cfg.Vector.Namespace, a.logger)
		return nil
	}
	a.index, err = vectordb.OpenIndex(a.cfg.VectorDir(), embedder, a.cfg.Vector.Namespace, a.logger)
	return err
}

func (a *app) openCache(ctx context.Context) error {
	switch a.cfg.Cache.Backend {
	case config.CacheRedis:
		c, err := cache.NewRedisCache(ctx, a.cfg.Cache.RedisAddr, a.cfg.Cache.RedisDB)
		if err != nil {
			return err
		}
		a.cache = c
	case config.CacheMemory:
		c, err := cache.NewMemoryCache(0)
		if err != nil {
			return err
		}
		a.cache = c
	default:
		a.cache = cache.NewSQLiteCache(a.db)
	}
	return nil
}

// llmProvider creates the configured provider, rate limited when
// pipeline.rpm is set.
func (a *app) llmProvider() (llm.Provider, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	p, err := llm.NewProvider(string(a.cfg.Provider), a.cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	if a.cfg.Pipeline.RPM > 0 {
		p = llm.NewRateLimitedProvider(p, a.cfg.Pipeline.RPM)
	}
	a.provider = p
	return p, nil
}

func (a *app) agent() (*enhance.Agent, error) {
	provider, err := a.llmProvider()
	if err != nil {
		return nil, err
	}
	var searcher search.Searcher
	if a.cfg.Pipeline.CompanySearch || a.cfg.Pipeline.ProfileSearch {
		searcher = search.NewDuckDuckGo(a.cfg.Search.Endpoint)
	}
	return enhance.NewAgent(provider, searcher, enhance.Config{
		Model:         a.cfg.Model,
		PromptVersion: a.cfg.Pipeline.PromptVersion,
		MaxResults:    a.cfg.Search.MaxResults,
	}, a.logger), nil
}

// pipeline builds the freshness pipeline. The LLM is only required when
// withAgent is set.
func (a *app) pipeline(withAgent bool) (*freshness.Pipeline, error) {
	deps := freshness.Deps{
		Store:   a.store,
		Index:   a.index,
		History: a.runs,
		Hub:     a.hub,
		Logger:  a.logger,
	}
	if withAgent {
		agent, err := a.agent()
		if err != nil {
			return nil, err
		}
		deps.Agent = agent
	}
	cfg := freshness.Config{
		TTL:           a.cfg.Pipeline.TTL,
		Delay:         a.cfg.Pipeline.Delay,
		CompanySearch: a.cfg.Pipeline.CompanySearch,
		ProfileSearch: a.cfg.Pipeline.ProfileSearch,
	}
	return freshness.NewPipeline(deps, cfg), nil
}

func (a *app) reranker() (*rerank.Reranker, error) {
	provider, err := a.llmProvider()
	if err != nil {
		return nil, err
	}
	return rerank.New(provider, a.index, a.store, a.cache, rerank.Config{
		Model:         a.cfg.Model,
		PromptVersion: a.cfg.Pipeline.PromptVersion,
		TopK:          a.cfg.Vector.TopK,
		CacheTTL:      a.cfg.Cache.TTL,
	}, a.logger), nil
}

func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
