package vectordb

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ziadkadry99/memberrec/internal/members"
)

// mockEmbedder returns deterministic embeddings based on text content.
// Similar texts produce similar vectors because shared characters
// contribute to the same positions.
type mockEmbedder struct {
	dims  int
	calls int
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims}
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = m.deterministicVector(text)
	}
	return results, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }
func (m *mockEmbedder) Name() string    { return "mock" }

func (m *mockEmbedder) deterministicVector(text string) []float32 {
	vec := make([]float32, m.dims)
	for i, ch := range text {
		idx := (int(ch) + i) % m.dims
		vec[idx] += 1.0
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	return NewIndex(newMockEmbedder(64), "member_enhanced", nil)
}

func TestCollectionName(t *testing.T) {
	idx := newTestIndex(t)
	if got := idx.CollectionName("v1"); got != "member_enhanced_v1" {
		t.Errorf("CollectionName = %q", got)
	}
}

func TestEnsureCollectionIdempotent(t *testing.T) {
	idx := newTestIndex(t)
	a, err := idx.EnsureCollection("v1")
	if err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	b, err := idx.EnsureCollection("v1")
	if err != nil {
		t.Fatalf("EnsureCollection again: %v", err)
	}
	if a != b {
		t.Error("expected the same collection on repeated calls")
	}
	if got := idx.ListCollections(); len(got) != 1 || got[0] != "member_enhanced_v1" {
		t.Errorf("ListCollections = %v", got)
	}
}

func TestSearchMissingCollection(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.Search(context.Background(), "anything", "v9", 5)
	if !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestSearchEmptyCollection(t *testing.T) {
	idx := newTestIndex(t)
	if _, err := idx.EnsureCollection("v1"); err != nil {
		t.Fatal(err)
	}
	got, err := idx.Search(context.Background(), "anything", "v1", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
}

func TestInsertRejectsEmptyText(t *testing.T) {
	idx := newTestIndex(t)
	err := idx.Insert(context.Background(), "v1", 1, "   ")
	if !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestInsertAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	docs := map[int64]string{
		10: "Alice builds distributed databases at Acme",
		11: "Bob sells enterprise software licences",
		12: "Carol researches distributed database replication",
	}
	for id, text := range docs {
		if err := idx.Insert(ctx, "v1", id, text); err != nil {
			t.Fatalf("Insert %d: %v", id, err)
		}
	}
	// Re-inserting replaces rather than duplicates.
	if err := idx.Insert(ctx, "v1", 10, docs[10]); err != nil {
		t.Fatal(err)
	}
	if idx.Count("v1") != 3 {
		t.Errorf("Count = %d, want 3", idx.Count("v1"))
	}

	got, err := idx.Search(ctx, docs[10], "v1", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected topK capped at 3, got %d", len(got))
	}
	if got[0].ID != 10 || got[0].Document != docs[10] {
		t.Errorf("top hit = %+v, want member 10", got[0])
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("results not sorted by score: %v", got)
		}
	}

	got, err = idx.Search(ctx, docs[10], "v1", 1)
	if err != nil || len(got) != 1 {
		t.Errorf("topK 1: %v, %v", got, err)
	}
}

func TestInsertMembersByVersion(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	records := []members.Member{
		{MemberNo: 10, Name: "Alice", Company: "Acme", Versions: map[string]bool{"v1": true, "v2": true}},
		{MemberNo: 11, Name: "Bob", Company: "Globex", Summary: "Bob sells widgets", Versions: map[string]bool{"v1": true}},
		{MemberNo: 12, Name: "Carol", Versions: map[string]bool{"v1": false}},
	}

	n, err := idx.InsertMembers(ctx, records, "")
	if err != nil {
		t.Fatalf("InsertMembers: %v", err)
	}
	if n != 3 {
		t.Errorf("written = %d, want 3", n)
	}
	if idx.Count("v1") != 2 || idx.Count("v2") != 1 {
		t.Errorf("counts v1=%d v2=%d", idx.Count("v1"), idx.Count("v2"))
	}

	got, err := idx.Search(ctx, "Bob sells widgets", "v1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].ID != 11 || got[0].Document != "Bob sells widgets" {
		t.Errorf("top hit = %+v, want member 11 by summary", got[0])
	}

	idx2 := newTestIndex(t)
	n, err = idx2.InsertMembers(ctx, records, "v2")
	if err != nil || n != 1 {
		t.Errorf("scoped insert = %d, %v", n, err)
	}
	if idx2.Count("v1") != 0 {
		t.Error("scoped insert should not touch v1")
	}
}

func TestDeleteCollection(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	if err := idx.Insert(ctx, "v1", 1, "some text"); err != nil {
		t.Fatal(err)
	}
	if err := idx.DeleteCollection("v1"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	if len(idx.ListCollections()) != 0 {
		t.Error("collection still listed after delete")
	}
	if _, err := idx.Search(ctx, "some text", "v1", 5); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound after delete, got %v", err)
	}
}

func openTestIndex(t *testing.T, dir string) *Index {
	t.Helper()
	idx, err := OpenIndex(dir, newMockEmbedder(64), "member_enhanced", nil)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	return idx
}

func searchIDs(t *testing.T, idx *Index, text string) map[int64]bool {
	t.Helper()
	got, err := idx.Search(context.Background(), text, "v1", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	ids := make(map[int64]bool, len(got))
	for _, r := range got {
		ids[r.ID] = true
	}
	return ids
}

func TestOpenIndexReopens(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx := openTestIndex(t, dir)
	if err := idx.Insert(ctx, "v1", 7, "persisted member text"); err != nil {
		t.Fatal(err)
	}

	restored := openTestIndex(t, dir)
	if restored.Count("v1") != 1 {
		t.Fatalf("restored count = %d", restored.Count("v1"))
	}
	if ids := searchIDs(t, restored, "persisted member text"); !ids[7] {
		t.Errorf("restored search = %v", ids)
	}
}

func TestOpenIndexEmptyDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vectordb")
	idx := openTestIndex(t, dir)
	if got := idx.ListCollections(); len(got) != 0 {
		t.Errorf("ListCollections = %v", got)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("index dir not created: %v", err)
	}
	if idx.Dir() != dir {
		t.Errorf("Dir = %q", idx.Dir())
	}
}

func TestSharedDirKeepsEveryWriter(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	seed := openTestIndex(t, dir)
	if err := seed.Insert(ctx, "v1", 10, "member ten"); err != nil {
		t.Fatal(err)
	}

	// Two processes load the same state, then both write.
	a := openTestIndex(t, dir)
	b := openTestIndex(t, dir)
	if err := b.Insert(ctx, "v1", 11, "member eleven"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.InsertMembers(ctx, []members.Member{
		{MemberNo: 12, Title: "member twelve", Versions: map[string]bool{"v1": true}},
	}, "v1"); err != nil {
		t.Fatal(err)
	}

	for name, idx := range map[string]*Index{"a": a, "b": b, "fresh": openTestIndex(t, dir)} {
		if got := idx.Count("v1"); got != 3 {
			t.Errorf("%s: Count = %d, want 3", name, got)
		}
		ids := searchIDs(t, idx, "member")
		for _, want := range []int64{10, 11, 12} {
			if !ids[want] {
				t.Errorf("%s: member %d missing from %v", name, want, ids)
			}
		}
	}
}

func TestReaderSeesLaterWrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	reader := openTestIndex(t, dir)
	if _, err := reader.Search(ctx, "anything", "v1", 5); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound before any write, got %v", err)
	}

	writer := openTestIndex(t, dir)
	if err := writer.Insert(ctx, "v1", 11, "member eleven"); err != nil {
		t.Fatal(err)
	}
	if ids := searchIDs(t, reader, "member eleven"); !ids[11] {
		t.Errorf("reader did not pick up member 11: %v", ids)
	}

	if err := writer.DeleteCollection("v1"); err != nil {
		t.Fatal(err)
	}
	if _, err := reader.Search(ctx, "member eleven", "v1", 5); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound after delete elsewhere, got %v", err)
	}
}

func TestInMemoryIndexHasNoDir(t *testing.T) {
	idx := newTestIndex(t)
	if idx.Dir() != "" {
		t.Errorf("Dir = %q", idx.Dir())
	}
	if err := idx.Refresh(); err != nil {
		t.Errorf("Refresh: %v", err)
	}
}

func TestFormatResults(t *testing.T) {
	out := FormatResults([]SearchResult{{ID: 3, Document: "hello", Score: 0.5}})
	for _, want := range []string{"Found 1 result(s)", "Member: 3", "hello", "0.5000"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if FormatResults(nil) != "No results found." {
		t.Error("unexpected empty output")
	}
}
