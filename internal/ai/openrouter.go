package ai

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenRouterEndpoint = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel    = "deepseek/deepseek-chat"
)

// OpenRouterCompleter calls an OpenAI-compatible chat completion endpoint.
type OpenRouterCompleter struct {
	clients []*openai.Client
	model   string
	ring    keyRing
}

// NewOpenRouter builds one client per key. httpClient may be nil.
func NewOpenRouter(apiKeys []string, endpoint, model string, httpClient *http.Client) (*OpenRouterCompleter, error) {
	keys := CleanKeys(apiKeys)
	if len(keys) == 0 {
		return nil, fmt.Errorf("openrouter: %w", ErrNoKeys)
	}
	if endpoint == "" {
		endpoint = DefaultOpenRouterEndpoint
	}
	if model == "" {
		model = DefaultOpenRouterModel
	}

	o := &OpenRouterCompleter{model: model, ring: keyRing{n: len(keys)}}
	for _, key := range keys {
		cfg := openai.DefaultConfig(key)
		cfg.BaseURL = endpoint
		if httpClient != nil {
			cfg.HTTPClient = httpClient
		}
		o.clients = append(o.clients, openai.NewClientWithConfig(cfg))
	}
	return o, nil
}

func (o *OpenRouterCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := o.clients[o.ring.pick()].CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.1,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openrouter request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openrouter returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
