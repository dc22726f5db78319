package embeddings

import (
	"context"
	"net/http"
	"strings"

	"github.com/ziadkadry99/memberrec/internal/llm"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaEmbedder embeds through a local Ollama server's /api/embed endpoint.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

// NewOllamaEmbedder uses http://localhost:11434 when baseURL is empty.
func NewOllamaEmbedder(model string, dimensions int, baseURL string) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{},
	}
}

func (e *OllamaEmbedder) Name() string    { return "ollama/" + e.model }
func (e *OllamaEmbedder) Dimensions() int { return e.dimensions }

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	// /api/embed takes the whole input list in one call.
	return inBatches(ctx, texts, len(texts), func(ctx context.Context, batch []string) ([][]float32, error) {
		req := struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}{Model: e.model, Input: batch}
		var resp struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := llm.PostJSON(ctx, e.client, "ollama embeddings", e.baseURL+"/api/embed", req, &resp); err != nil {
			return nil, err
		}
		return resp.Embeddings, nil
	})
}
