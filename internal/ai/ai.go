// Package ai talks to language-model providers: it renders the scoring and
// rewriting prompts, parses their JSON answers and runs the ordered
// provider fallback chain.
package ai

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrParse marks a response that is not the expected JSON. Retryable.
	ErrParse = errors.New("malformed AI response")
	// ErrInvalidData is the provider saying the input is not a usable news item.
	ErrInvalidData = errors.New("provider flagged invalid data")
	// ErrAllProvidersExhausted means every provider used up its attempts.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
	// ErrBudgetExceeded means a provider's request budget is spent.
	ErrBudgetExceeded = errors.New("request budget exceeded")
	// ErrNoKeys is returned when a provider is configured without API keys.
	ErrNoKeys = errors.New("no API keys configured")
)

type EvalRequest struct {
	Title   string
	Content string
	Link    string
}

// Judgement is a parsed relevance answer.
type Judgement struct {
	IsRelevant bool
	Score      float64
	Raw        string
}

type OptimizeRequest struct {
	Title        string
	RawContent   string
	OriginalLink string
	// MinLength and Expand select the expansion prompt for a body that came
	// back shorter than MinLength runes.
	MinLength int
	Expand    bool
}

// Optimized is a parsed rewrite answer.
type Optimized struct {
	MessageType  string
	Title        string
	Content      string
	OriginalLink string
	Raw          string
}

// Provider is one AI backend able to score and rewrite news.
type Provider interface {
	Name() string
	Evaluate(ctx context.Context, req EvalRequest) (Judgement, error)
	Optimize(ctx context.Context, req OptimizeRequest) (Optimized, error)
}

// Completer sends one prompt and returns the raw text answer.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

const (
	evalMaxTokens     = 1000
	optimizeMaxTokens = 4000
)

// Model adapts a Completer into a Provider using prompt templates.
type Model struct {
	name      string
	completer Completer
	prompts   Prompts
}

func NewModel(name string, c Completer, p Prompts) *Model {
	return &Model{name: name, completer: c, prompts: p.withDefaults()}
}

func (m *Model) Name() string { return m.name }

func (m *Model) Evaluate(ctx context.Context, req EvalRequest) (Judgement, error) {
	raw, err := m.completer.Complete(ctx, m.prompts.evaluation(req), evalMaxTokens)
	if err != nil {
		return Judgement{}, fmt.Errorf("%s evaluate: %w", m.name, err)
	}
	j, err := ParseJudgement(raw)
	j.Raw = raw
	if err != nil {
		return j, fmt.Errorf("%s evaluate: %w", m.name, err)
	}
	return j, nil
}

func (m *Model) Optimize(ctx context.Context, req OptimizeRequest) (Optimized, error) {
	prompt := m.prompts.optimization(req)
	if req.Expand {
		prompt = m.prompts.expansion(req)
	}
	raw, err := m.completer.Complete(ctx, prompt, optimizeMaxTokens)
	if err != nil {
		return Optimized{}, fmt.Errorf("%s optimize: %w", m.name, err)
	}
	o, err := ParseOptimized(raw)
	o.Raw = raw
	if err != nil {
		return o, fmt.Errorf("%s optimize: %w", m.name, err)
	}
	return o, nil
}
