package ai

import (
	"strconv"
	"strings"
)

// Prompts are templates with {title}, {content}, {link}, {raw_content},
// {original_link}, {min_length} and {language} placeholders.
type Prompts struct {
	Evaluation   string
	Optimization string
	Expansion    string
	Language     string
}

const defaultEvaluationPrompt = `You are screening news for a daily industry digest.

Title: {title}
Link: {link}
Content:
{content}

Decide whether this item is relevant news for the digest and rate it from 0 to 10.
Reply with JSON only, no commentary:
{"is_relevant": true or false, "relevance_score": number}`

const defaultOptimizationPrompt = `Rewrite the news below as a clean, self-contained digest entry in {language}.
Remove advertising, navigation text and boilerplate. Keep facts, names and numbers.
The content should be at least {min_length} characters.
If the text is not a real news article (error page, paywall, index page), set "invalid_data" to true.

Original link: {original_link}
Raw content:
{raw_content}

Reply with JSON only:
{"message_type": "text", "title": "...", "content": "...", "original_link": "{original_link}", "invalid_data": false}`

const defaultExpansionPrompt = `The digest entry below is too short. Expand it to at least {min_length} characters in {language}
using only facts present in it or clearly implied by the headline. Do not invent quotes or numbers.

Title: {title}
Original link: {original_link}
Current content:
{raw_content}

Reply with JSON only:
{"message_type": "text", "title": "...", "content": "...", "original_link": "{original_link}", "invalid_data": false}`

func (p Prompts) withDefaults() Prompts {
	if strings.TrimSpace(p.Evaluation) == "" {
		p.Evaluation = defaultEvaluationPrompt
	}
	if strings.TrimSpace(p.Optimization) == "" {
		p.Optimization = defaultOptimizationPrompt
	}
	if strings.TrimSpace(p.Expansion) == "" {
		p.Expansion = defaultExpansionPrompt
	}
	if strings.TrimSpace(p.Language) == "" {
		p.Language = "Simplified Chinese"
	}
	return p
}

func (p Prompts) evaluation(req EvalRequest) string {
	content := req.Content
	if strings.TrimSpace(content) == "" {
		content = req.Title
	}
	return strings.NewReplacer(
		"{title}", req.Title,
		"{content}", content,
		"{link}", req.Link,
		"{language}", p.Language,
	).Replace(p.Evaluation)
}

func (p Prompts) optimization(req OptimizeRequest) string {
	return p.render(p.Optimization, req)
}

func (p Prompts) expansion(req OptimizeRequest) string {
	return p.render(p.Expansion, req)
}

func (p Prompts) render(tmpl string, req OptimizeRequest) string {
	return strings.NewReplacer(
		"{title}", req.Title,
		"{raw_content}", req.RawContent,
		"{content}", req.RawContent,
		"{original_link}", req.OriginalLink,
		"{link}", req.OriginalLink,
		"{min_length}", strconv.Itoa(req.MinLength),
		"{language}", p.Language,
	).Replace(tmpl)
}
