package enhance

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ziadkadry99/memberrec/internal/llm"
	"github.com/ziadkadry99/memberrec/internal/members"
	"github.com/ziadkadry99/memberrec/internal/search"
)

type mockProvider struct {
	mu       sync.Mutex
	calls    []llm.CompletionRequest
	response string
	err      error
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return &llm.CompletionResponse{Content: m.response, InputTokens: 100, OutputTokens: 30}, nil
}

type mockSearcher struct {
	queries []string
	results map[string][]search.Result
	err     error
}

func (m *mockSearcher) Search(_ context.Context, query string, maxResults int) ([]search.Result, error) {
	m.queries = append(m.queries, query)
	if m.err != nil {
		return nil, m.err
	}
	for prefix, r := range m.results {
		if strings.HasPrefix(query, prefix) {
			return r, nil
		}
	}
	return nil, nil
}

func robert() members.Member {
	return members.Member{
		MemberNo:    10,
		Name:        "ROBERT CANTRELL",
		Company:     "Strategy Innovators LLC",
		Title:       "Founder",
		CompanyURL:  "https://www.strategyinnovators.com",
		LinkedinURL: "https://www.linkedin.com/in/robert-cantrell-47675/",
		Versions:    map[string]bool{"v1": true, "v2": false},
		Summary:     "old summary",
	}
}

func prompt(t *testing.T, p *mockProvider) string {
	t.Helper()
	if len(p.calls) != 1 {
		t.Fatalf("expected 1 LLM call, got %d", len(p.calls))
	}
	return p.calls[0].Messages[0].Content
}

func TestEnhanceWithBothSearches(t *testing.T) {
	provider := &mockProvider{response: "  Robert founded Strategy Innovators.  "}
	searcher := &mockSearcher{results: map[string][]search.Result{
		"Search for company":  {{Title: "SI", Snippet: "innovation consulting", Link: "https://si"}},
		"Search for linkedin": {{Title: "Robert", Snippet: "founder profile", Link: "https://li"}},
	}}
	agent := NewAgent(provider, searcher, Config{}, nil)

	res, err := agent.Enhance(context.Background(), robert(), Options{CompanySearch: true, ProfileSearch: true})
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if res.Summary != "Robert founded Strategy Innovators." {
		t.Errorf("summary = %q", res.Summary)
	}
	if res.Usage.InputTokens != 100 || res.Usage.OutputTokens != 30 {
		t.Errorf("usage = %+v", res.Usage)
	}

	wantQueries := []string{
		"Search for company information for company Strategy Innovators LLC with URL https://www.strategyinnovators.com.",
		"Search for linkedin profile for ROBERT CANTRELL with link https://www.linkedin.com/in/robert-cantrell-47675/",
	}
	if len(searcher.queries) != 2 || searcher.queries[0] != wantQueries[0] || searcher.queries[1] != wantQueries[1] {
		t.Errorf("queries = %q", searcher.queries)
	}

	p := prompt(t, provider)
	for _, want := range []string{
		"## Member information\nmember_no: 10\t\nname: ROBERT CANTRELL",
		"## Company url searched from the web:\n[snippet: innovation consulting",
		"## Linkedin url searched from the web:\n[snippet: founder profile",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
	for _, unwanted := range []string{"old summary", "versions"} {
		if strings.Contains(p, unwanted) {
			t.Errorf("prompt must not contain %q", unwanted)
		}
	}
}

func TestEnhanceSkipsDisabledSearches(t *testing.T) {
	provider := &mockProvider{response: "summary"}
	searcher := &mockSearcher{}
	agent := NewAgent(provider, searcher, Config{}, nil)

	if _, err := agent.Enhance(context.Background(), robert(), Options{}); err != nil {
		t.Fatal(err)
	}
	if len(searcher.queries) != 0 {
		t.Errorf("expected no searches, got %q", searcher.queries)
	}
	p := prompt(t, provider)
	if strings.Contains(p, "searched from the web") {
		t.Errorf("prompt should have no web sections:\n%s", p)
	}
}

func TestEnhanceSearchFailureDegrades(t *testing.T) {
	provider := &mockProvider{response: "summary"}
	searcher := &mockSearcher{err: errors.New("network down")}
	agent := NewAgent(provider, searcher, Config{}, nil)

	res, err := agent.Enhance(context.Background(), robert(), Options{CompanySearch: true, ProfileSearch: true})
	if err != nil {
		t.Fatalf("search failure should not fail enhancement: %v", err)
	}
	if res.Summary != "summary" {
		t.Errorf("summary = %q", res.Summary)
	}
	if strings.Contains(prompt(t, provider), "searched from the web") {
		t.Error("failed searches should leave their sections out")
	}
}

func TestEnhanceLLMFailure(t *testing.T) {
	provider := &mockProvider{err: errors.New("quota exceeded")}
	agent := NewAgent(provider, nil, Config{}, nil)

	_, err := agent.Enhance(context.Background(), robert(), Options{CompanySearch: true})
	if err == nil || !strings.Contains(err.Error(), "summarize") {
		t.Errorf("expected summarize error, got %v", err)
	}
}

func TestEnhanceEmptySummary(t *testing.T) {
	agent := NewAgent(&mockProvider{response: "   "}, nil, Config{}, nil)
	if _, err := agent.Enhance(context.Background(), robert(), Options{}); err == nil {
		t.Error("expected error for empty summary")
	}
}

func TestEnhanceCancelled(t *testing.T) {
	provider := &mockProvider{response: "x"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewAgent(provider, nil, Config{}, nil).Enhance(ctx, robert(), Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(provider.calls) != 0 {
		t.Error("no LLM call expected after cancellation")
	}
}

func TestEstimate(t *testing.T) {
	provider := &mockProvider{}
	searcher := &mockSearcher{}
	agent := NewAgent(provider, searcher, Config{MaxResults: 4, MaxTokens: 100}, nil)

	bare, err := agent.Estimate(robert(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	full, err := agent.Estimate(robert(), Options{CompanySearch: true, ProfileSearch: true})
	if err != nil {
		t.Fatal(err)
	}
	if bare.InputTokens <= 0 || full.InputTokens != bare.InputTokens+2*4*tokensPerSearchResult {
		t.Errorf("bare = %+v, full = %+v", bare, full)
	}
	if full.OutputTokens != 100 {
		t.Errorf("output tokens = %d, want MaxTokens cap", full.OutputTokens)
	}
	if len(provider.calls) != 0 || len(searcher.queries) != 0 {
		t.Error("Estimate must not call external services")
	}
}
