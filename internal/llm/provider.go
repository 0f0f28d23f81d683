package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the single method the extractor needs from a chat model. Keeping
// the surface this narrow lets tests substitute a scripted stub and keeps the
// rest of the pipeline ignorant of which OpenAI-compatible service answers.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ModelLister lists the models an endpoint serves. The CLI uses it for a
// best-effort reachability check before a run; nothing else depends on it.
type ModelLister interface {
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// OpenAIProvider is the production Client backed by go-openai.
type OpenAIProvider struct {
	Inner *openai.Client
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return p.Inner.CreateChatCompletion(ctx, request)
}

func (p *OpenAIProvider) ListModels(ctx context.Context) (openai.ModelsList, error) {
	return p.Inner.ListModels(ctx)
}

// New builds an OpenAI-compatible provider for the given endpoint.
func New(baseURL, apiKey string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{Inner: openai.NewClientWithConfig(cfg)}
}
