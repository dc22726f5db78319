package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ziadkadry99/memberrec/internal/llm"
)

const googleBatchEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:batchEmbedContents?key=%s"

// batchEmbedContents accepts at most 100 requests.
const googleMaxBatch = 100

// GoogleModel names a Gemini embedding model.
type GoogleModel string

const (
	ModelGeminiEmbedding001 GoogleModel = "gemini-embedding-001"
	ModelEmbedding001       GoogleModel = "embedding-001"
	ModelTextEmbedding004   GoogleModel = "text-embedding-004"
)

// GoogleEmbedder embeds through the Gemini batchEmbedContents endpoint.
type GoogleEmbedder struct {
	apiKey   string
	model    GoogleModel
	endpoint string
	client   *http.Client
}

// NewGoogleEmbedder accepts model names with or without the "models/" prefix.
func NewGoogleEmbedder(apiKey string, model GoogleModel) *GoogleEmbedder {
	return &GoogleEmbedder{
		apiKey:   apiKey,
		model:    GoogleModel(strings.TrimPrefix(string(model), "models/")),
		endpoint: googleBatchEndpoint,
		client:   &http.Client{},
	}
}

func (e *GoogleEmbedder) Name() string { return string(e.model) }

func (e *GoogleEmbedder) Dimensions() int {
	switch e.model {
	case ModelEmbedding001, ModelTextEmbedding004:
		return 768
	}
	return 3072
}

type googlePart struct {
	Text string `json:"text"`
}

type googleEmbedRequest struct {
	Model   string `json:"model"`
	Content struct {
		Parts []googlePart `json:"parts"`
	} `json:"content"`
}

type googleBatchRequest struct {
	Requests []googleEmbedRequest `json:"requests"`
}

type googleBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

func (e *GoogleEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return inBatches(ctx, texts, googleMaxBatch, e.embedBatch)
}

func (e *GoogleEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := googleBatchRequest{Requests: make([]googleEmbedRequest, len(texts))}
	for i, text := range texts {
		req.Requests[i].Model = "models/" + string(e.model)
		req.Requests[i].Content.Parts = []googlePart{{Text: text}}
	}

	var resp googleBatchResponse
	url := fmt.Sprintf(e.endpoint, e.model, e.apiKey)
	if err := llm.PostJSON(ctx, e.client, "gemini embeddings", url, req, &resp); err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini embeddings: empty vector for input %d", i)
		}
		vecs[i] = emb.Values
	}
	return vecs, nil
}
