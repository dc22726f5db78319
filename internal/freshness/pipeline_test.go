package freshness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ziadkadry99/memberrec/internal/db"
	"github.com/ziadkadry99/memberrec/internal/enhance"
	"github.com/ziadkadry99/memberrec/internal/llm"
	"github.com/ziadkadry99/memberrec/internal/members"
	"github.com/ziadkadry99/memberrec/internal/vectordb"
)

type fakeStore struct {
	mu       sync.Mutex
	stale    []members.Member
	staleErr error
	upserts  [][]members.Member
}

func (s *fakeStore) GetStale(_ context.Context, version string, ttl time.Duration) ([]members.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]members.Member, len(s.stale))
	for i, m := range s.stale {
		out[i] = m.Clone()
	}
	return out, s.staleErr
}

func (s *fakeStore) UpsertRefreshed(_ context.Context, records []members.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, records)
	return nil
}

type insertCall struct {
	ids     []int64
	version string
}

type fakeIndex struct {
	mu    sync.Mutex
	calls []insertCall
}

func (x *fakeIndex) InsertMembers(_ context.Context, records []members.Member, version string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	call := insertCall{version: version}
	for _, m := range records {
		call.ids = append(call.ids, m.MemberNo)
	}
	x.calls = append(x.calls, call)
	return len(records), nil
}

type fakeAgent struct {
	mu      sync.Mutex
	calls   []int64
	fail    map[int64]bool
	block   chan struct{}
	onCall  func()
	options []enhance.Options
}

func (a *fakeAgent) Enhance(ctx context.Context, m members.Member, opts enhance.Options) (*enhance.Result, error) {
	a.mu.Lock()
	a.calls = append(a.calls, m.MemberNo)
	a.options = append(a.options, opts)
	onCall := a.onCall
	a.mu.Unlock()

	if onCall != nil {
		onCall()
	}
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.fail[m.MemberNo] {
		return nil, fmt.Errorf("llm unavailable for %d", m.MemberNo)
	}
	return &enhance.Result{
		Summary: fmt.Sprintf("summary of %d", m.MemberNo),
		Usage:   llm.Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func staleMembers(ids ...int64) []members.Member {
	out := make([]members.Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, members.Member{
			MemberNo: id,
			Name:     fmt.Sprintf("member %d", id),
			Versions: map[string]bool{"v1": true},
			Summary:  "original",
		})
	}
	return out
}

func newTestPipeline(store Store, index Indexer, agent Enhancer, cfg Config) (*Pipeline, *[]time.Duration) {
	var deps Deps
	deps.Store = store
	deps.Index = index
	if agent != nil {
		deps.Agent = agent
	}
	p := NewPipeline(deps, cfg)
	var slept []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return p, &slept
}

func TestRunUnsupportedVersion(t *testing.T) {
	store := &fakeStore{stale: staleMembers(1)}
	p, _ := newTestPipeline(store, &fakeIndex{}, nil, Config{})

	_, err := p.Run(context.Background(), "v2", RunOptions{})
	var unsupported *UnsupportedVersionError
	if !errors.As(err, &unsupported) || unsupported.Version != "v2" {
		t.Fatalf("expected UnsupportedVersionError, got %v", err)
	}
	if len(store.upserts) != 0 {
		t.Error("no work should happen for an unsupported version")
	}
}

func TestRunWithoutEnhancement(t *testing.T) {
	store := &fakeStore{stale: staleMembers(10, 11)}
	index := &fakeIndex{}
	p, slept := newTestPipeline(store, index, nil, Config{TTL: 24 * time.Hour, Delay: 30 * time.Second})

	res, err := p.Run(context.Background(), "v1", RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusCompleted || res.Stale != 2 || res.Upserted != 2 || res.Vectorized != 2 || res.Enhanced != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.RunID == "" || res.FinishedAt == nil {
		t.Error("run id and finish time should be set")
	}
	if len(*slept) != 0 {
		t.Errorf("no delay expected without enhancement, slept %v", *slept)
	}

	if len(store.upserts) != 1 || len(store.upserts[0]) != 2 {
		t.Fatalf("upserts = %v", store.upserts)
	}
	for _, m := range store.upserts[0] {
		if m.Summary != "original" {
			t.Errorf("summary of %d changed to %q", m.MemberNo, m.Summary)
		}
	}
	if len(index.calls) != 1 || index.calls[0].version != "v1" || len(index.calls[0].ids) != 2 {
		t.Errorf("index calls = %+v", index.calls)
	}
}

func TestRunNothingStale(t *testing.T) {
	store := &fakeStore{}
	index := &fakeIndex{}
	p, _ := newTestPipeline(store, index, nil, Config{})

	res, err := p.Run(context.Background(), "v1", RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stale != 0 || len(store.upserts) != 0 || len(index.calls) != 0 {
		t.Errorf("expected no work, got %+v", res)
	}
}

func TestRunStoreError(t *testing.T) {
	store := &fakeStore{staleErr: errors.New("connection refused")}
	p, _ := newTestPipeline(store, &fakeIndex{}, nil, Config{})

	res, err := p.Run(context.Background(), "v1", RunOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Status != StatusFailed || res.Error == "" {
		t.Errorf("result = %+v", res)
	}
}

func TestRunEnhanceIsolatesFailures(t *testing.T) {
	store := &fakeStore{stale: staleMembers(10, 11, 12)}
	index := &fakeIndex{}
	agent := &fakeAgent{fail: map[int64]bool{11: true}}
	p, slept := newTestPipeline(store, index, agent, Config{Delay: 30 * time.Second, CompanySearch: true})

	var progress []int64
	res, err := p.Run(context.Background(), "v1", RunOptions{
		Enhance: true,
		Progress: func(processed, total int, memberNo int64) {
			if total != 3 {
				t.Errorf("total = %d", total)
			}
			progress = append(progress, memberNo)
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Enhanced != 2 || res.Failed != 1 || res.Upserted != 2 || res.Vectorized != 2 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].MemberNo != 11 {
		t.Errorf("errors = %+v", res.Errors)
	}
	if res.Usage.InputTokens != 20 || res.Usage.OutputTokens != 10 {
		t.Errorf("usage = %+v", res.Usage)
	}
	if len(*slept) != 2 || (*slept)[0] != 30*time.Second {
		t.Errorf("expected a delay between each pair of records, got %v", *slept)
	}
	if len(progress) != 3 || progress[2] != 12 {
		t.Errorf("progress = %v", progress)
	}
	if !agent.options[0].CompanySearch || agent.options[0].ProfileSearch {
		t.Errorf("agent options = %+v", agent.options[0])
	}

	upserted := store.upserts[0]
	if upserted[0].MemberNo != 10 || upserted[0].Summary != "summary of 10" {
		t.Errorf("first upsert = %+v", upserted[0])
	}
	if upserted[1].MemberNo != 12 {
		t.Errorf("failed member must be excluded, got %+v", upserted)
	}
	if ids := index.calls[0].ids; len(ids) != 2 || ids[0] != 10 || ids[1] != 12 {
		t.Errorf("indexed ids = %v", ids)
	}
}

func TestEnhanceRequiresAgent(t *testing.T) {
	p, _ := newTestPipeline(&fakeStore{}, &fakeIndex{}, nil, Config{})
	if _, err := p.Run(context.Background(), "v1", RunOptions{Enhance: true}); err == nil {
		t.Error("expected error without an agent")
	}
}

func TestRunInProgress(t *testing.T) {
	store := &fakeStore{stale: staleMembers(1)}
	started := make(chan struct{})
	agent := &fakeAgent{block: make(chan struct{})}
	agent.onCall = func() { close(started) }
	p, _ := newTestPipeline(store, &fakeIndex{}, agent, Config{})

	h, err := p.Start(context.Background(), "v1", RunOptions{Enhance: true})
	if err != nil {
		t.Fatal(err)
	}
	<-started

	if _, err := p.Start(context.Background(), "v1", RunOptions{}); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	close(agent.block)
	if _, err := h.Wait(); err != nil {
		t.Fatal(err)
	}

	agent.mu.Lock()
	agent.onCall = nil
	agent.mu.Unlock()
	if _, err := p.Run(context.Background(), "v1", RunOptions{Enhance: true}); err != nil {
		t.Errorf("run after the first finished: %v", err)
	}
}

func TestRunCancelledDuringDelay(t *testing.T) {
	store := &fakeStore{stale: staleMembers(1, 2)}
	ctx, cancel := context.WithCancel(context.Background())
	agent := &fakeAgent{onCall: cancel}
	p := NewPipeline(Deps{Store: store, Index: &fakeIndex{}, Agent: agent}, Config{Delay: time.Hour})

	res, err := p.Run(ctx, "v1", RunOptions{Enhance: true})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Status != StatusFailed {
		t.Errorf("status = %s", res.Status)
	}
	if len(store.upserts) != 0 {
		t.Error("nothing should be upserted after cancellation")
	}
}

func TestRunRecordsHistory(t *testing.T) {
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	runs := NewRunStore(database)

	store := &fakeStore{stale: staleMembers(1, 2)}
	agent := &fakeAgent{fail: map[int64]bool{2: true}}
	p := NewPipeline(Deps{Store: store, Index: &fakeIndex{}, Agent: agent, History: runs}, Config{})
	p.sleep = func(context.Context, time.Duration) error { return nil }

	res, err := p.Run(context.Background(), "v1", RunOptions{Enhance: true, RunID: "run-1"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := runs.Get(context.Background(), "run-1")
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got.Status != StatusCompleted || !got.Enhance || got.Stale != 2 || got.Failed != 1 || got.Upserted != 1 {
		t.Errorf("stored run = %+v", got)
	}
	if got.Usage != res.Usage {
		t.Errorf("usage = %+v, want %+v", got.Usage, res.Usage)
	}
	if len(got.Errors) != 1 || got.Errors[0].MemberNo != 2 {
		t.Errorf("errors = %+v", got.Errors)
	}
	if got.FinishedAt == nil {
		t.Error("finished_at not stored")
	}

	if _, err := p.Run(context.Background(), "v9", RunOptions{}); err == nil {
		t.Fatal("expected error")
	}
	list, err := runs.List(context.Background(), RunFilter{Version: "v1"})
	if err != nil || len(list) != 1 {
		t.Errorf("List = %v, %v", list, err)
	}
	if missing, err := runs.Get(context.Background(), "nope"); missing != nil || err != nil {
		t.Errorf("Get missing = %v, %v", missing, err)
	}
}

func TestHubPublishesRunEvents(t *testing.T) {
	hub := NewHub()
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	p := NewPipeline(Deps{Store: &fakeStore{stale: staleMembers(5)}, Index: &fakeIndex{}, Hub: hub}, Config{})
	if _, err := p.Run(context.Background(), "v1", RunOptions{}); err != nil {
		t.Fatal(err)
	}

	var types []string
	for len(types) < 3 {
		select {
		case e := <-events:
			types = append(types, e.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out, got %v", types)
		}
	}
	want := []string{EventStarted, EventProgress, EventCompleted}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("events = %v, want %v", types, want)
			break
		}
	}
}

// hashEmbedder gives identical texts identical vectors.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 16)
		for j, ch := range text {
			vec[(int(ch)+j)%16]++
		}
		out[i] = vec
	}
	return out, nil
}
func (hashEmbedder) Dimensions() int { return 16 }
func (hashEmbedder) Name() string    { return "hash" }

func TestRefreshIndexesFallbackText(t *testing.T) {
	ctx := context.Background()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	store := members.NewSQLiteStore(database, nil)
	m := members.Member{
		MemberNo:   10,
		Name:       "ROBERT CANTRELL",
		Company:    "Strategy Innovators LLC",
		Title:      "Founder",
		Background: "Innovation sciences",
		Versions:   map[string]bool{"v1": true, "v2": false},
	}
	if err := store.Upsert(ctx, []members.Member{m}); err != nil {
		t.Fatal(err)
	}

	index := vectordb.NewIndex(hashEmbedder{}, "member_enhanced", nil)
	p := NewPipeline(Deps{Store: store, Index: index}, Config{TTL: 24 * time.Hour})

	res, err := p.Run(ctx, "v1", RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stale != 1 || res.Vectorized != 1 {
		t.Errorf("result = %+v", res)
	}

	fallback := "Member info: ROBERT CANTRELL Strategy Innovators LLC Founder Innovation sciences"
	hits, err := index.Search(ctx, fallback, "v1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != 10 || hits[0].Document != fallback {
		t.Errorf("hits = %+v", hits)
	}
	if index.Count("v2") != 0 {
		t.Error("v2 should not be populated by a v1 run")
	}

	stored, err := store.GetByID(ctx, 10)
	if err != nil || stored == nil || stored.Summary != "" {
		t.Errorf("stored = %+v, %v", stored, err)
	}
}

func TestRunTwiceWithoutEnhancementIsIdempotent(t *testing.T) {
	ctx := context.Background()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	clock := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	store := members.NewSQLiteStore(database, nil).WithClock(now)

	seed := []members.Member{
		{MemberNo: 10, Name: "ROBERT CANTRELL", Company: "Strategy Innovators LLC", Versions: members.DefaultVersions()},
		{MemberNo: 11, Name: "Ada", Company: "Acme", Summary: "Builds compilers.", Versions: members.DefaultVersions()},
	}
	if err := store.Upsert(ctx, seed); err != nil {
		t.Fatal(err)
	}

	index := vectordb.NewIndex(hashEmbedder{}, "member_enhanced", nil)
	p := NewPipeline(Deps{Store: store, Index: index}, Config{TTL: 24 * time.Hour})
	p.now = now

	summaries := func() map[int64]string {
		t.Helper()
		all, err := store.List(ctx, members.ListFilter{})
		if err != nil {
			t.Fatal(err)
		}
		out := make(map[int64]string, len(all))
		for _, m := range all {
			out[m.MemberNo] = m.Summary
		}
		return out
	}

	clock = clock.Add(time.Minute)
	first, err := p.Run(ctx, "v1", RunOptions{})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Stale != 2 {
		t.Fatalf("first run stale = %d, want 2", first.Stale)
	}
	after := summaries()

	clock = clock.Add(time.Minute)
	second, err := p.Run(ctx, "v1", RunOptions{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Stale != 0 || second.Upserted != 0 {
		t.Errorf("second run = %+v, want nothing stale", second)
	}
	if got := summaries(); fmt.Sprint(got) != fmt.Sprint(after) {
		t.Errorf("summaries changed: %v -> %v", after, got)
	}

	// Once the ttl lapses the records are reprocessed, still without changing summaries.
	clock = clock.Add(25 * time.Hour)
	third, err := p.Run(ctx, "v1", RunOptions{})
	if err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if third.Stale != 2 {
		t.Errorf("third run stale = %d, want 2", third.Stale)
	}
	if got := summaries(); fmt.Sprint(got) != fmt.Sprint(after) {
		t.Errorf("summaries changed after reprocessing: %v -> %v", after, got)
	}
	if after[10] != "" || after[11] != "Builds compilers." {
		t.Errorf("summaries = %v", after)
	}
}
