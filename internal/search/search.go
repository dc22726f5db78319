// Package search looks up public web information about members and their
// companies.
package search

import (
	"context"
	"fmt"
	"strings"
)

// Result is a single web hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// Searcher runs a free-text web query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Format renders results one per line as
// [snippet: ..., title: ..., link: ...].
func Format(results []Result) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("[snippet: %s, title: %s, link: %s]", r.Snippet, r.Title, r.Link))
	}
	return strings.Join(lines, ", ")
}
