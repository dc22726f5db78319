package vectordb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/ziadkadry99/memberrec/internal/embeddings"
	"github.com/ziadkadry99/memberrec/internal/members"
)

// generationFile holds a stamp rewritten after every write to an on-disk
// index. Readers compare it with the stamp they loaded to spot writes made
// by other processes.
const generationFile = "generation"

var (
	// ErrCollectionNotFound is returned when searching a version whose
	// collection was never created.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrEmptyDocument is returned when inserting blank text.
	ErrEmptyDocument = errors.New("document text is empty")
)

// Index stores member documents in one chromem collection per version,
// named <namespace>_<version>.
type Index struct {
	embedFunc chromem.EmbeddingFunc
	namespace string
	logger    *zap.Logger
	dir       string
	writes    atomic.Uint64

	mu          sync.RWMutex
	db          *chromem.DB
	collections map[string]*chromem.Collection
	seen        string
}

// NewIndex creates an empty in-memory index.
func NewIndex(embedder embeddings.Embedder, namespace string, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		db:          chromem.NewDB(),
		embedFunc:   embeddings.ToChromemFunc(embedder),
		namespace:   namespace,
		logger:      logger,
		collections: make(map[string]*chromem.Collection),
	}
}

// OpenIndex opens the on-disk index in dir, creating it if needed. Each
// document is written to its own file as it is inserted, so several
// processes can share dir without overwriting each other's documents.
// Reads pick up writes from other processes through Refresh.
func OpenIndex(dir string, embedder embeddings.Embedder, namespace string, logger *zap.Logger) (*Index, error) {
	x := NewIndex(embedder, namespace, logger)
	x.dir = dir
	if err := x.reopen(); err != nil {
		return nil, err
	}
	return x, nil
}

// Dir returns the directory backing the index, or "" when it lives in memory.
func (x *Index) Dir() string {
	return x.dir
}

// Refresh reloads the index from disk when another writer has touched it
// since the last load. In-memory indexes have nothing to reload.
func (x *Index) Refresh() error {
	if x.dir == "" {
		return nil
	}
	gen := x.readGeneration()
	x.mu.RLock()
	seen := x.seen
	x.mu.RUnlock()
	if gen == seen {
		return nil
	}
	return x.reopen()
}

func (x *Index) reopen() error {
	// Read the stamp first: a write landing during the load changes it
	// again and forces another reload.
	gen := x.readGeneration()
	db, err := chromem.NewPersistentDB(x.dir, true)
	if err != nil {
		return fmt.Errorf("opening vector index %s: %w", x.dir, err)
	}

	prefix := x.namespace + "_"
	cols := make(map[string]*chromem.Collection)
	for name := range db.ListCollections() {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		// Re-acquire the collection so it embeds with our function.
		if col := db.GetCollection(name, x.embedFunc); col != nil {
			cols[name] = col
		}
	}

	x.mu.Lock()
	x.db = db
	x.collections = cols
	x.seen = gen
	x.mu.Unlock()
	x.logger.Debug("vector index loaded",
		zap.String("dir", x.dir), zap.Int("collections", len(cols)))
	return nil
}

// refresh is Refresh for read paths: a failed reload, such as reading a
// document another process is still writing, keeps the current view.
func (x *Index) refresh() {
	if err := x.Refresh(); err != nil {
		x.logger.Warn("vector index reload failed", zap.String("dir", x.dir), zap.Error(err))
	}
}

func (x *Index) readGeneration() string {
	b, err := os.ReadFile(filepath.Join(x.dir, generationFile))
	if err != nil {
		return ""
	}
	return string(b)
}

// touch publishes a new generation stamp. The temp file is renamed into
// place so readers never see a partial stamp.
func (x *Index) touch() error {
	if x.dir == "" {
		return nil
	}
	stamp := fmt.Sprintf("%d-%d-%d", time.Now().UnixNano(), os.Getpid(), x.writes.Add(1))
	tmp, err := os.CreateTemp(x.dir, generationFile+"-*")
	if err != nil {
		return fmt.Errorf("writing index generation: %w", err)
	}
	if _, err := tmp.WriteString(stamp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing index generation: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing index generation: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(x.dir, generationFile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing index generation: %w", err)
	}
	return nil
}

// CollectionName returns the collection used for version.
func (x *Index) CollectionName(version string) string {
	return x.namespace + "_" + version
}

// EnsureCollection returns the collection for version, creating it if needed.
// Calling it repeatedly is safe.
func (x *Index) EnsureCollection(version string) (*chromem.Collection, error) {
	name := x.CollectionName(version)
	if col, ok := x.collection(version); ok {
		return col, nil
	}
	// Another process may have created it.
	x.refresh()

	x.mu.Lock()
	if col, ok := x.collections[name]; ok {
		x.mu.Unlock()
		return col, nil
	}
	col, err := x.db.GetOrCreateCollection(name, map[string]string{"version": version}, x.embedFunc)
	if err != nil {
		x.mu.Unlock()
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}
	x.collections[name] = col
	x.mu.Unlock()

	x.logger.Info("collection ready", zap.String("collection", name))
	return col, x.touch()
}

func (x *Index) collection(version string) (*chromem.Collection, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	col, ok := x.collections[x.CollectionName(version)]
	return col, ok
}

// Insert stores text under id in the version's collection, replacing any
// existing document with the same id.
func (x *Index) Insert(ctx context.Context, version string, id int64, text string) error {
	if err := x.insert(ctx, version, id, text); err != nil {
		return err
	}
	return x.touch()
}

func (x *Index) insert(ctx context.Context, version string, id int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("member %d: %w", id, ErrEmptyDocument)
	}
	col, err := x.EnsureCollection(version)
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:       strconv.FormatInt(id, 10),
		Content:  text,
		Metadata: map[string]string{"member_no": strconv.FormatInt(id, 10)},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("inserting member %d into %s: %w", id, col.Name, err)
	}
	return nil
}

// InsertMembers stores every record in each version it is flagged for.
// A non-empty onlyVersion restricts insertion to that version. It returns
// the number of documents written.
func (x *Index) InsertMembers(ctx context.Context, records []members.Member, onlyVersion string) (int, error) {
	x.refresh()
	written := 0
	var err error
loop:
	for _, m := range records {
		for _, version := range m.EnabledVersions() {
			if onlyVersion != "" && version != onlyVersion {
				continue
			}
			if err = x.insert(ctx, version, m.MemberNo, members.DocumentText(m)); err != nil {
				break loop
			}
			written++
		}
	}
	if written > 0 {
		if terr := x.touch(); terr != nil && err == nil {
			err = terr
		}
	}
	if err != nil {
		return written, err
	}
	x.logger.Info("vectorized members",
		zap.Int("records", len(records)),
		zap.Int("documents", written),
		zap.String("version", onlyVersion),
	)
	return written, nil
}

// Search returns up to topK documents from the version's collection,
// most similar first.
func (x *Index) Search(ctx context.Context, text, version string, topK int) ([]SearchResult, error) {
	x.refresh()
	col, ok := x.collection(version)
	if !ok {
		return nil, fmt.Errorf("%w: %s (nothing has been indexed for version %q yet)",
			ErrCollectionNotFound, x.CollectionName(version), version)
	}
	if topK <= 0 {
		topK = 5
	}

	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := col.Query(ctx, text, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", col.Name, err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			x.logger.Warn("skipping document with non-numeric id",
				zap.String("collection", col.Name), zap.String("id", r.ID))
			continue
		}
		out = append(out, SearchResult{ID: id, Document: r.Content, Score: r.Similarity})
	}
	return out, nil
}

// Count returns the number of documents indexed for version.
func (x *Index) Count(version string) int {
	x.refresh()
	col, ok := x.collection(version)
	if !ok {
		return 0
	}
	return col.Count()
}

// DeleteCollection drops the version's collection. Deleting a missing
// collection is not an error.
func (x *Index) DeleteCollection(version string) error {
	x.refresh()
	name := x.CollectionName(version)
	x.mu.Lock()
	if err := x.db.DeleteCollection(name); err != nil {
		x.mu.Unlock()
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	delete(x.collections, name)
	x.mu.Unlock()
	x.logger.Info("collection deleted", zap.String("collection", name))
	return x.touch()
}

// ListCollections returns the names of all collections, sorted.
func (x *Index) ListCollections() []string {
	x.refresh()
	x.mu.RLock()
	defer x.mu.RUnlock()
	names := make([]string, 0, len(x.collections))
	for name := range x.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
