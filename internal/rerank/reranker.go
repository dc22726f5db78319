// Package rerank recommends, for a member, the most relevant other member
// among its nearest neighbours in the vector index, using an LLM as judge.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/memberrec/internal/cache"
	"github.com/ziadkadry99/memberrec/internal/llm"
	"github.com/ziadkadry99/memberrec/internal/members"
	"github.com/ziadkadry99/memberrec/internal/vectordb"
)

// Searcher finds neighbours in a version's collection.
type Searcher interface {
	Search(ctx context.Context, text, version string, topK int) ([]vectordb.SearchResult, error)
}

// MemberStore loads members to recommend for.
type MemberStore interface {
	GetByID(ctx context.Context, memberNo int64) (*members.Member, error)
	List(ctx context.Context, filter members.ListFilter) ([]members.Member, error)
}

// Config tunes the reranker.
type Config struct {
	Model         string
	PromptVersion string
	TopK          int
	CacheTTL      time.Duration
	MaxTokens     int
}

// Reranker picks one recommendation per member.
type Reranker struct {
	provider llm.Provider
	index    Searcher
	store    MemberStore
	cache    cache.Cache
	cfg      Config
	logger   *zap.Logger
}

// New creates a Reranker. c may be nil to disable caching; store is only
// needed for RecommendByID and RecommendRange.
func New(provider llm.Provider, index Searcher, store MemberStore, c cache.Cache, cfg Config, logger *zap.Logger) *Reranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	return &Reranker{provider: provider, index: index, store: store, cache: c, cfg: cfg, logger: logger}
}

// Recommend returns the best match for m among its neighbours in version.
// It returns nil, nil when there is nothing to compare against.
// Recommend returns the (member, matched member, reason, version) result
// for m, or nil when version has no candidates for it.
func (r *Reranker) Recommend(ctx context.Context, m members.Member, version string) (*Pair, error) {
	key, err := cache.MemberVersionKey("recommend", m, version, nil)
	if err != nil {
		return nil, err
	}
	rec, err := cache.GetOrCompute(ctx, r.cache, r.logger, key, r.cfg.CacheTTL,
		func(ctx context.Context) (*Pair, error) {
			return r.rerank(ctx, m, version)
		})
	if errors.Is(err, errNoCandidates) {
		r.logger.Info("no similar members found",
			zap.Int64("member_no", m.MemberNo), zap.String("version", version))
		return nil, nil
	}
	return rec, err
}

// Candidates returns the neighbours that would be offered to the LLM for m.
func (r *Reranker) Candidates(ctx context.Context, m members.Member, version string) ([]Candidate, error) {
	if !m.Enabled(version) {
		return nil, nil
	}
	hits, err := r.index.Search(ctx, members.QueryText(m), version, r.cfg.TopK)
	if errors.Is(err, vectordb.ErrCollectionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("searching neighbours of member %d: %w", m.MemberNo, err)
	}
	return candidatesFor(m, hits), nil
}

func (r *Reranker) rerank(ctx context.Context, m members.Member, version string) (*Pair, error) {
	candidates, err := r.Candidates(ctx, m, version)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errNoCandidates
	}

	prompt, err := BuildPrompt(m, candidates, r.cfg.PromptVersion)
	if err != nil {
		return nil, err
	}
	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Model:       r.cfg.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("reranking member %d: %w", m.MemberNo, err)
	}

	id, reason, err := parseAnswer(resp.Content)
	if err != nil {
		return nil, err
	}
	offered := false
	for _, c := range candidates {
		if c.MemberNo == id {
			offered = true
			break
		}
	}
	if !offered {
		return nil, &ParseError{Raw: resp.Content, Reason: fmt.Sprintf("member_no %d was not a candidate", id)}
	}

	r.logger.Debug("recommendation",
		zap.Int64("member_no", m.MemberNo),
		zap.Int64("matched_member_no", id),
		zap.Int("candidates", len(candidates)),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens),
	)
	return &Pair{MemberNo: m.MemberNo, MatchedMemberNo: id, Reason: reason, Version: version}, nil
}

// RecommendByID loads memberNo from the store and recommends for it.
func (r *Reranker) RecommendByID(ctx context.Context, memberNo int64, version string) (*Pair, error) {
	m, err := r.store.GetByID(ctx, memberNo)
	if err != nil {
		return nil, fmt.Errorf("loading member %d: %w", memberNo, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %d", ErrMemberNotFound, memberNo)
	}
	return r.Recommend(ctx, *m, version)
}
