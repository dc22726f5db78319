// Package enhance enriches a member record with web search results and
// summarizes it with an LLM.
package enhance

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ziadkadry99/memberrec/internal/llm"
	"github.com/ziadkadry99/memberrec/internal/members"
	"github.com/ziadkadry99/memberrec/internal/prompts"
	"github.com/ziadkadry99/memberrec/internal/search"
)

const (
	memberHeader  = "## Member information\n"
	companyHeader = "## Company url searched from the web:\n"
	profileHeader = "## Linkedin url searched from the web:\n"
)

// Options selects which web searches run before summarizing.
type Options struct {
	CompanySearch bool
	ProfileSearch bool
}

// Config tunes the agent.
type Config struct {
	Model         string
	PromptVersion string
	MaxResults    int
	MaxTokens     int
}

// Result is the outcome of enhancing one member.
type Result struct {
	Summary string
	Prompt  string
	Usage   llm.Usage
}

// state is shared by the stages of one Enhance call.
type state struct {
	member  members.Member
	opts    Options
	company string
	profile string
	prompt  string
	summary string
	usage   llm.Usage
}

type stage struct {
	name string
	run  func(ctx context.Context, st *state) error
}

// Agent runs company search, profile search and summarize, in that order.
type Agent struct {
	provider llm.Provider
	searcher search.Searcher
	cfg      Config
	logger   *zap.Logger
	stages   []stage
}

// NewAgent creates an Agent. searcher may be nil, in which case both
// searches produce nothing.
func NewAgent(provider llm.Provider, searcher search.Searcher, cfg Config, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PromptVersion == "" {
		cfg.PromptVersion = prompts.DefaultVersion
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	a := &Agent{provider: provider, searcher: searcher, cfg: cfg, logger: logger}
	a.stages = []stage{
		{name: "company_search", run: a.companySearch},
		{name: "profile_search", run: a.profileSearch},
		{name: "summarize", run: a.summarize},
	}
	return a
}

// Enhance produces a summary for m.
func (a *Agent) Enhance(ctx context.Context, m members.Member, opts Options) (*Result, error) {
	st := &state{member: m, opts: opts}
	for _, s := range a.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.run(ctx, st); err != nil {
			return nil, fmt.Errorf("member %d: %s: %w", m.MemberNo, s.name, err)
		}
	}
	return &Result{Summary: st.summary, Prompt: st.prompt, Usage: st.usage}, nil
}

func (a *Agent) companySearch(ctx context.Context, st *state) error {
	if !st.opts.CompanySearch {
		return nil
	}
	query := fmt.Sprintf("Search for company information for company %s with URL %s.",
		st.member.Company, st.member.CompanyURL)
	st.company = a.webSearch(ctx, "company_search", query, st.member.MemberNo)
	return nil
}

func (a *Agent) profileSearch(ctx context.Context, st *state) error {
	if !st.opts.ProfileSearch {
		return nil
	}
	query := fmt.Sprintf("Search for linkedin profile for %s with link %s",
		st.member.Name, st.member.LinkedinURL)
	st.profile = a.webSearch(ctx, "profile_search", query, st.member.MemberNo)
	return nil
}

// webSearch never fails; errors leave the section empty.
func (a *Agent) webSearch(ctx context.Context, stageName, query string, memberNo int64) string {
	if a.searcher == nil {
		return ""
	}
	results, err := a.searcher.Search(ctx, query, a.cfg.MaxResults)
	if err != nil {
		a.logger.Warn("web search failed",
			zap.String("stage", stageName),
			zap.Int64("member_no", memberNo),
			zap.Error(err),
		)
		return ""
	}
	return search.Format(results)
}

func (a *Agent) summarize(ctx context.Context, st *state) error {
	prompt, err := buildPrompt(st, a.cfg.PromptVersion)
	if err != nil {
		return err
	}
	st.prompt = prompt

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		Model:       a.cfg.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: 0,
	})
	if err != nil {
		return err
	}
	st.usage.Add(resp)
	st.summary = strings.TrimSpace(resp.Content)
	if st.summary == "" {
		return fmt.Errorf("empty summary from %s", a.provider.Name())
	}
	return nil
}

func buildPrompt(st *state, version string) (string, error) {
	data := prompts.EnhanceData{
		MemberInfo: memberHeader + strings.Join(members.InfoLines(st.member), "\t\n"),
	}
	if st.opts.CompanySearch && st.company != "" {
		data.CompanyExpand = companyHeader + st.company + "\n"
	}
	if st.opts.ProfileSearch && st.profile != "" {
		data.LinkedinExpand = profileHeader + st.profile + "\n"
	}
	return prompts.Render(prompts.DataEnhance, version, data)
}
