package embeddings

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// ToChromemFunc adapts e to the per-document embedding hook of the member
// index. chromem asks for one text at a time.
func ToChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := e.Embed(ctx, []string{text})
		switch {
		case err != nil:
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		case len(vecs) != 1 || len(vecs[0]) == 0:
			return nil, fmt.Errorf("%s returned %d embedding(s) for one text", e.Name(), len(vecs))
		}
		return vecs[0], nil
	}
}
