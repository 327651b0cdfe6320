package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiCompleter calls the Gemini API, one client per API key.
type GeminiCompleter struct {
	clients []*genai.Client
	model   string
	ring    keyRing
}

func NewGemini(ctx context.Context, apiKeys []string, model string, opts ...option.ClientOption) (*GeminiCompleter, error) {
	keys := CleanKeys(apiKeys)
	if len(keys) == 0 {
		return nil, fmt.Errorf("gemini: %w", ErrNoKeys)
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	g := &GeminiCompleter{model: model, ring: keyRing{n: len(keys)}}
	for _, key := range keys {
		client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(key)}, opts...)...)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		g.clients = append(g.clients, client)
	}
	return g, nil
}

func (g *GeminiCompleter) Close() {
	for _, c := range g.clients {
		if c != nil {
			c.Close()
		}
	}
}

func (g *GeminiCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	model := g.clients[g.ring.pick()].GenerativeModel(g.model)
	model.SetTemperature(0.1)
	model.SetMaxOutputTokens(int32(maxTokens))

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from Gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("gemini returned no text parts")
	}
	return b.String(), nil
}
