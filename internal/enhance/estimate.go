package enhance

import (
	"github.com/ziadkadry99/memberrec/internal/llm"
	"github.com/ziadkadry99/memberrec/internal/members"
)

const (
	// tokensPerSearchResult approximates one formatted web search hit.
	tokensPerSearchResult = 60
	// summaryTokens approximates a generated summary.
	summaryTokens = 250
)

// Estimate returns approximate token usage for enhancing m without calling
// the search engine or the LLM.
func (a *Agent) Estimate(m members.Member, opts Options) (llm.Usage, error) {
	prompt, err := buildPrompt(&state{member: m, opts: opts}, a.cfg.PromptVersion)
	if err != nil {
		return llm.Usage{}, err
	}
	in := llm.EstimateTokens(prompt)
	if a.searcher != nil {
		if opts.CompanySearch {
			in += a.cfg.MaxResults * tokensPerSearchResult
		}
		if opts.ProfileSearch {
			in += a.cfg.MaxResults * tokensPerSearchResult
		}
	}
	out := summaryTokens
	if a.cfg.MaxTokens < out {
		out = a.cfg.MaxTokens
	}
	return llm.Usage{InputTokens: in, OutputTokens: out}, nil
}
