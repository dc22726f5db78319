package vectordb

import (
	"context"

	"github.com/ziadkadry99/memberrec/internal/members"
)

// SearchResult is one nearest-neighbour hit.
type SearchResult struct {
	ID       int64   `json:"member_no"`
	Document string  `json:"document"`
	Score    float32 `json:"score"`
}

// VectorStore is the subset of Index used by the recommendation and
// refresh paths.
type VectorStore interface {
	// Search returns up to topK documents for version, most similar first.
	Search(ctx context.Context, text, version string, topK int) ([]SearchResult, error)

	// InsertMembers embeds records into their enabled versions.
	InsertMembers(ctx context.Context, records []members.Member, onlyVersion string) (int, error)
}

var _ VectorStore = (*Index)(nil)
