package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// extractJSON strips markdown code fences and returns the outermost
// {...} object in text.
func extractJSON(text string) ([]byte, error) {
	cleaned := strings.TrimSpace(text)
	var lines []string
	for _, line := range strings.Split(cleaned, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		lines = append(lines, line)
	}
	cleaned = strings.TrimSpace(strings.Join(lines, "\n"))

	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrParse)
	}
	obj := cleaned[start : end+1]
	if strings.Count(obj, "{") != strings.Count(obj, "}") {
		return nil, fmt.Errorf("%w: unbalanced braces, response truncated?", ErrParse)
	}
	return []byte(obj), nil
}

type judgementJSON struct {
	IsRelevant     *bool           `json:"is_relevant"`
	RelevanceScore json.RawMessage `json:"relevance_score"`
}

// ParseJudgement decodes {is_relevant, relevance_score}. Missing fields and
// scores outside [0,10] are parse errors.
func ParseJudgement(text string) (Judgement, error) {
	obj, err := extractJSON(text)
	if err != nil {
		return Judgement{}, err
	}
	var j judgementJSON
	if err := json.Unmarshal(obj, &j); err != nil {
		return Judgement{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if j.IsRelevant == nil {
		return Judgement{}, fmt.Errorf("%w: missing is_relevant", ErrParse)
	}
	score, err := parseScore(j.RelevanceScore)
	if err != nil {
		return Judgement{}, err
	}
	return Judgement{IsRelevant: *j.IsRelevant, Score: score}, nil
}

// parseScore accepts a JSON number or a quoted number.
func parseScore(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("%w: missing relevance_score", ErrParse)
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: relevance_score: %v", ErrParse, err)
		}
	} else {
		s = string(raw)
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: relevance_score %q is not a number", ErrParse, s)
	}
	if score < 0 || score > 10 {
		return 0, fmt.Errorf("%w: relevance_score %v out of range", ErrParse, score)
	}
	return score, nil
}

type optimizedJSON struct {
	MessageType  string `json:"message_type"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	OriginalLink string `json:"original_link"`
	InvalidData  bool   `json:"invalid_data"`
}

// ParseOptimized decodes the rewrite answer. invalid_data=true yields
// ErrInvalidData; an empty content is not an error.
func ParseOptimized(text string) (Optimized, error) {
	obj, err := extractJSON(text)
	if err != nil {
		return Optimized{}, err
	}
	var o optimizedJSON
	if err := json.Unmarshal(obj, &o); err != nil {
		return Optimized{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if o.InvalidData {
		return Optimized{}, ErrInvalidData
	}
	return Optimized{
		MessageType:  o.MessageType,
		Title:        strings.TrimSpace(o.Title),
		Content:      strings.TrimSpace(o.Content),
		OriginalLink: strings.TrimSpace(o.OriginalLink),
	}, nil
}
