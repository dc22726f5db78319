package llm

import "context"

// Provider is a chat model. The enhancement agent uses it to write member
// summaries and the reranker uses it to pick a match among candidates.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name identifies the backend in logs and errors.
	Name() string
}
