package llm

import (
	"context"
	"net/http"
	"strings"
)

// OllamaProvider uses a local Ollama server's /api/chat endpoint.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaProvider(baseURL string, model string) *OllamaProvider {
	return &OllamaProvider{baseURL: strings.TrimRight(baseURL, "/"), model: model, client: &http.Client{}}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  struct {
		Temperature float64 `json:"temperature,omitempty"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	chat := ollamaChatRequest{Model: req.Model, Messages: make([]ollamaMessage, 0, len(req.Messages))}
	if chat.Model == "" {
		chat.Model = p.model
	}
	for _, msg := range req.Messages {
		chat.Messages = append(chat.Messages, ollamaMessage{Role: string(msg.Role), Content: msg.Content})
	}
	chat.Options.Temperature = req.Temperature
	chat.Options.NumPredict = req.MaxTokens
	if req.JSONMode {
		chat.Format = "json"
	}

	var resp ollamaChatResponse
	if err := PostJSON(ctx, p.client, "ollama", p.baseURL+"/api/chat", chat, &resp); err != nil {
		return nil, err
	}
	return &CompletionResponse{
		Content:      resp.Message.Content,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
		Model:        resp.Model,
		FinishReason: resp.DoneReason,
	}, nil
}
