package vectordb

import (
	"fmt"
	"strings"
)

// FormatResults renders neighbours for the search command and the MCP
// search tool, best match first.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d result(s):\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. Member: %d (similarity: %.4f)\n%s\n", i+1, r.ID, r.Score, strings.TrimSpace(r.Document))
	}
	return b.String()
}
