package rerank

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ziadkadry99/memberrec/internal/cache"
	"github.com/ziadkadry99/memberrec/internal/db"
	"github.com/ziadkadry99/memberrec/internal/freshness"
	"github.com/ziadkadry99/memberrec/internal/llm"
	"github.com/ziadkadry99/memberrec/internal/members"
	"github.com/ziadkadry99/memberrec/internal/vectordb"
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
	return &llm.CompletionResponse{Content: m.response}, nil
}

func (m *mockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockProvider) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	return m.calls[len(m.calls)-1].Messages[0].Content
}

type fakeSearcher struct {
	hits     []vectordb.SearchResult
	err      error
	searches int
	lastText string
	lastTopK int
}

func (f *fakeSearcher) Search(_ context.Context, text, version string, topK int) ([]vectordb.SearchResult, error) {
	f.searches++
	f.lastText = text
	f.lastTopK = topK
	return f.hits, f.err
}

type fakeStore struct {
	members map[int64]members.Member
}

func (s *fakeStore) GetByID(_ context.Context, id int64) (*members.Member, error) {
	m, ok := s.members[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *fakeStore) List(_ context.Context, f members.ListFilter) ([]members.Member, error) {
	var out []members.Member
	for id := f.From; id <= f.To; id++ {
		if m, ok := s.members[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func member10() members.Member {
	return members.Member{
		MemberNo: 10,
		Name:     "ROBERT CANTRELL",
		Company:  "Strategy Innovators LLC",
		Title:    "Founder",
		Versions: map[string]bool{"v1": true, "v2": false},
		Summary:  "Innovation strategist",
	}
}

func hits(ids ...int64) []vectordb.SearchResult {
	out := make([]vectordb.SearchResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, vectordb.SearchResult{ID: id, Document: "summary " + strings.Repeat("x", int(id%3))})
	}
	return out
}

func newMemoryCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.NewMemoryCache(0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRecommendExcludesSelf(t *testing.T) {
	provider := &mockProvider{response: `{"member_no": 11, "reason": "both work on innovation"}`}
	searcher := &fakeSearcher{hits: hits(10, 11, 12)}
	r := New(provider, searcher, nil, nil, Config{}, nil)

	rec, err := r.Recommend(context.Background(), member10(), "v1")
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if rec == nil || rec.MemberNo != 10 || rec.MatchedMemberNo != 11 || rec.Reason != "both work on innovation" || rec.Version != "v1" {
		t.Errorf("rec = %+v", rec)
	}
	if searcher.lastText != "Innovation strategist" || searcher.lastTopK != 5 {
		t.Errorf("search = %q/%d", searcher.lastText, searcher.lastTopK)
	}

	prompt := provider.lastPrompt()
	for _, want := range []string{
		"## Member information\nmember_no: 10\t\nname: ROBERT CANTRELL",
		"## Candidate 1: \n\t- `member_no`: 11\n\t- `member_summary`: summary xx\n\n",
		"## Candidate 2: \n\t- `member_no`: 12\n",
		"2 candidate(s)",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "`member_no`: 10") || strings.Contains(prompt, "Candidate 3") {
		t.Errorf("member must not be offered as its own candidate:\n%s", prompt)
	}
	if strings.Contains(prompt, "Innovation strategist") {
		t.Error("summary must not be part of the member information")
	}
	if !provider.calls[0].JSONMode {
		t.Error("expected JSON mode")
	}
}

func TestRecommendCachesResult(t *testing.T) {
	provider := &mockProvider{response: `{"member_no": 11, "reason": "r"}`}
	searcher := &fakeSearcher{hits: hits(11)}
	r := New(provider, searcher, nil, newMemoryCache(t), Config{CacheTTL: time.Minute}, nil)
	ctx := context.Background()

	first, err := r.Recommend(ctx, member10(), "v1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Recommend(ctx, member10(), "v1")
	if err != nil {
		t.Fatal(err)
	}
	if provider.CallCount() != 1 || searcher.searches != 1 {
		t.Errorf("expected one computation, got %d LLM calls and %d searches", provider.CallCount(), searcher.searches)
	}
	if *first != *second {
		t.Errorf("cached %+v differs from %+v", second, first)
	}

	edited := member10()
	edited.Title = "CEO"
	if _, err := r.Recommend(ctx, edited, "v1"); err != nil {
		t.Fatal(err)
	}
	if provider.CallCount() != 2 {
		t.Error("an edited member must miss the cache")
	}
}

func TestRecommendNoCandidates(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache(t)

	t.Run("only itself", func(t *testing.T) {
		provider := &mockProvider{}
		searcher := &fakeSearcher{hits: hits(10)}
		r := New(provider, searcher, nil, c, Config{}, nil)

		for i := 0; i < 2; i++ {
			rec, err := r.Recommend(ctx, member10(), "v1")
			if rec != nil || err != nil {
				t.Fatalf("expected nil, nil; got %+v, %v", rec, err)
			}
		}
		if provider.CallCount() != 0 {
			t.Error("no LLM call expected")
		}
		if searcher.searches != 2 {
			t.Errorf("an empty result must not be cached, searches = %d", searcher.searches)
		}
	})

	t.Run("not flagged for version", func(t *testing.T) {
		searcher := &fakeSearcher{hits: hits(11)}
		r := New(&mockProvider{}, searcher, nil, nil, Config{}, nil)
		rec, err := r.Recommend(ctx, member10(), "v2")
		if rec != nil || err != nil || searcher.searches != 0 {
			t.Errorf("got %+v, %v after %d searches", rec, err, searcher.searches)
		}
	})

	t.Run("collection missing", func(t *testing.T) {
		searcher := &fakeSearcher{err: vectordb.ErrCollectionNotFound}
		r := New(&mockProvider{}, searcher, nil, nil, Config{}, nil)
		rec, err := r.Recommend(ctx, member10(), "v1")
		if rec != nil || err != nil {
			t.Errorf("got %+v, %v", rec, err)
		}
	})
}

func TestRecommendSearchError(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("index offline")}
	r := New(&mockProvider{}, searcher, nil, nil, Config{}, nil)
	if _, err := r.Recommend(context.Background(), member10(), "v1"); err == nil {
		t.Error("expected search error to propagate")
	}
}

func TestRecommendParseErrors(t *testing.T) {
	ctx := context.Background()
	cases := map[string]string{
		"not json":        "I think member 11 is best.",
		"missing id":      `{"reason": "x"}`,
		"not a candidate": `{"member_no": 99, "reason": "x"}`,
		"self":            `{"member_no": 10, "reason": "x"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			provider := &mockProvider{response: content}
			r := New(provider, &fakeSearcher{hits: hits(10, 11)}, nil, newMemoryCache(t), Config{}, nil)

			_, err := r.Recommend(ctx, member10(), "v1")
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if _, err := r.Recommend(ctx, member10(), "v1"); err == nil {
				t.Error("a parse failure must not be cached")
			}
			if provider.CallCount() != 2 {
				t.Errorf("LLM calls = %d, want 2", provider.CallCount())
			}
		})
	}
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name    string
		content string
		id      int64
		reason  string
	}{
		{"plain", `{"member_no": 11, "reason": "same field"}`, 11, "same field"},
		{"fenced", "```json\n{\"member_no\": 12, \"reason\": \" ok \"}\n```", 12, "ok"},
		{"quoted id", `{"member_no": "13", "reason": "r"}`, 13, "r"},
		{"surrounding text", "Here you go: {\"member_no\": 14, \"reason\": \"r\"} Thanks", 14, "r"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, reason, err := parseAnswer(tt.content)
			if err != nil {
				t.Fatalf("parseAnswer: %v", err)
			}
			if id != tt.id || reason != tt.reason {
				t.Errorf("got %d %q", id, reason)
			}
		})
	}

	invalid := map[string]string{
		"non-numeric id": `{"member_no": "abc", "reason": "r"}`,
		"missing id":     `{"reason": "r"}`,
		"missing reason": `{"member_no": 11}`,
		"empty reason":   `{"member_no": 11, "reason": ""}`,
		"blank reason":   `{"member_no": 11, "reason": "  "}`,
		"null reason":    `{"member_no": 11, "reason": null}`,
		"reason number":  `{"member_no": 11, "reason": 5}`,
		"not json":       "no idea",
	}
	for name, content := range invalid {
		t.Run(name, func(t *testing.T) {
			_, _, err := parseAnswer(content)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("parseAnswer(%q) err = %v, want *ParseError", content, err)
			}
		})
	}
}

func TestRecommendMissingReasonNotCached(t *testing.T) {
	provider := &mockProvider{response: `{"member_no": 11}`}
	c := newMemoryCache(t)
	r := New(provider, &fakeSearcher{hits: hits(11)}, &fakeStore{}, c, Config{}, nil)

	for i := 0; i < 2; i++ {
		var pe *ParseError
		if _, err := r.Recommend(context.Background(), member10(), "v1"); !errors.As(err, &pe) {
			t.Fatalf("call %d: err = %v, want *ParseError", i, err)
		}
	}
	if provider.CallCount() != 2 {
		t.Errorf("LLM calls = %d, want 2 (failures must not be cached)", provider.CallCount())
	}
}

func TestRecommendByID(t *testing.T) {
	store := &fakeStore{members: map[int64]members.Member{10: member10()}}
	provider := &mockProvider{response: `{"member_no": 11, "reason": "r"}`}
	r := New(provider, &fakeSearcher{hits: hits(11)}, store, nil, Config{}, nil)

	rec, err := r.RecommendByID(context.Background(), 10, "v1")
	if err != nil || rec == nil || rec.MemberNo != 10 || rec.MatchedMemberNo != 11 {
		t.Errorf("RecommendByID = %+v, %v", rec, err)
	}
	if _, err := r.RecommendByID(context.Background(), 404, "v1"); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestRecommendRangeAndCSV(t *testing.T) {
	m11 := member10()
	m11.MemberNo = 11
	m12 := member10()
	m12.MemberNo = 12
	m12.Versions = map[string]bool{"v1": false}
	store := &fakeStore{members: map[int64]members.Member{10: member10(), 11: m11, 12: m12}}

	provider := &mockProvider{response: `{"member_no": 13, "reason": "good, fit"}`}
	r := New(provider, &fakeSearcher{hits: hits(10, 11, 13)}, store, nil, Config{}, nil)

	res, err := r.RecommendRange(context.Background(), 10, 12, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Pairs) != 2 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.Pairs[0].MemberNo != 10 || res.Pairs[0].MatchedMemberNo != 13 || res.Pairs[1].MemberNo != 11 {
		t.Errorf("pairs = %+v", res.Pairs)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, res.Pairs); err != nil {
		t.Fatal(err)
	}
	want := "member_no,matched_member_no,reason,version\n10,13,\"good, fit\",v1\n11,13,\"good, fit\",v1\n"
	if buf.String() != want {
		t.Errorf("csv =\n%s\nwant\n%s", buf.String(), want)
	}

	provider.err = errors.New("quota")
	res, err = r.RecommendRange(context.Background(), 10, 11, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Errors) != 2 || len(res.Pairs) != 0 {
		t.Errorf("failures should be collected, got %+v", res)
	}
}

type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 32)
		for j, ch := range text {
			vec[(int(ch)+j)%32]++
		}
		out[i] = vec
	}
	return out, nil
}
func (hashEmbedder) Dimensions() int { return 32 }
func (hashEmbedder) Name() string    { return "hash" }

func TestRefreshThenRecommend(t *testing.T) {
	ctx := context.Background()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	store := members.NewSQLiteStore(database, nil)
	index := vectordb.NewIndex(hashEmbedder{}, "member_enhanced", nil)
	pipeline := freshness.NewPipeline(freshness.Deps{Store: store, Index: index}, freshness.Config{TTL: 24 * time.Hour})

	m10 := members.Member{
		MemberNo:   10,
		Name:       "ROBERT CANTRELL",
		Company:    "Strategy Innovators LLC",
		Title:      "Founder",
		Background: "Teaches innovation sciences",
		Versions:   map[string]bool{"v1": true, "v2": false},
	}
	if err := store.Upsert(ctx, []members.Member{m10}); err != nil {
		t.Fatal(err)
	}
	if _, err := pipeline.Run(ctx, "v1", freshness.RunOptions{}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if index.Count("v1") != 1 {
		t.Fatalf("v1 collection has %d documents", index.Count("v1"))
	}

	m11 := members.Member{
		MemberNo: 11,
		Name:     "JANE DOE",
		Company:  "Acme",
		Title:    "CTO",
		Versions: map[string]bool{"v1": true},
	}
	if err := store.Upsert(ctx, []members.Member{m11}); err != nil {
		t.Fatal(err)
	}
	if _, err := index.InsertMembers(ctx, []members.Member{m11}, "v1"); err != nil {
		t.Fatal(err)
	}

	provider := &mockProvider{response: `{"member_no": 11, "reason": "both lead technology companies"}`}
	r := New(provider, index, store, nil, Config{}, nil)

	rec, err := r.RecommendByID(ctx, 10, "v1")
	if err != nil {
		t.Fatalf("RecommendByID: %v", err)
	}
	if rec == nil || rec.MatchedMemberNo != 11 {
		t.Fatalf("rec = %+v", rec)
	}

	candidates, err := r.Candidates(ctx, m10, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 || candidates[0].MemberNo != 11 {
		t.Errorf("candidates = %+v", candidates)
	}
	prompt := provider.lastPrompt()
	if !strings.Contains(prompt, "`member_no`: 11") || strings.Contains(prompt, "`member_no`: 10") {
		t.Errorf("prompt candidates wrong:\n%s", prompt)
	}
}
