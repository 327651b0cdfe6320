// Package evaluator scores items through the AI chain, rewrites the relevant
// ones and applies the fallback content policy.
package evaluator

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/dailyinfo/internal/ai"
	"github.com/deusflow/dailyinfo/internal/news"
)

// Chain is the provider fallback chain.
type Chain interface {
	Evaluate(ctx context.Context, req ai.EvalRequest) (ai.Judgement, ai.Trace, error)
	Optimize(ctx context.Context, req ai.OptimizeRequest) (ai.Optimized, ai.Trace, error)
}

type Config struct {
	MinScore           *float64 // nil: 6
	MinContentLength   int // runes
	MaxExpansionRounds int
	Concurrency        int
}

func (c Config) withDefaults() Config {
	if c.MinScore == nil {
		score := 6.0
		c.MinScore = &score
	}
	if c.MinContentLength <= 0 {
		c.MinContentLength = 200
	}
	if c.MaxExpansionRounds < 0 {
		c.MaxExpansionRounds = 0
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	return c
}

// Outcome describes one item's evaluation. It is not persisted.
type Outcome struct {
	Link        string
	Provider    string
	Attempts    int
	Raw         string
	OptimizeRaw string
	Relevant    bool
	Score       float64
	Title       string
	Content     string
	Expansions  int
	Reason      string
}

type Evaluator struct {
	chain Chain
	cfg   Config
	log   *slog.Logger
}

// New builds an Evaluator. A MaxExpansionRounds of zero disables expansion.
func New(chain Chain, cfg Config, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{chain: chain, cfg: cfg.withDefaults(), log: log}
}

// EvaluateBatch evaluates items concurrently and returns the accepted ones
// in input order, plus one outcome per input item.
func (e *Evaluator) EvaluateBatch(ctx context.Context, items []*news.Item) ([]*news.Item, []Outcome) {
	outcomes := make([]Outcome, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, it := range items {
		g.Go(func() error {
			outcomes[i] = e.EvaluateItem(gctx, it)
			return nil
		})
	}
	_ = g.Wait()

	var accepted []*news.Item
	for _, it := range items {
		if it.Status == news.StatusAccepted {
			accepted = append(accepted, it)
		}
	}
	return accepted, outcomes
}

// EvaluateItem scores, optimizes and finalizes a single item, updating its
// status, score and optimized fields.
func (e *Evaluator) EvaluateItem(ctx context.Context, it *news.Item) Outcome {
	out := Outcome{Link: it.Link}
	log := e.log.With("link", it.Link)

	if it.Link == "" {
		it.Discard(news.ReasonMissingLink)
		out.Reason = news.ReasonMissingLink
		return out
	}

	j, trace, err := e.chain.Evaluate(ctx, ai.EvalRequest{
		Title:   it.Title,
		Content: it.EvaluationContent(),
		Link:    it.Link,
	})
	out.Provider, out.Attempts, out.Raw = trace.Provider, trace.Attempts, trace.Raw
	if err != nil {
		reason := news.ReasonEvaluationFailed
		if errors.Is(err, ai.ErrAllProvidersExhausted) {
			reason = news.ReasonExhausted
		}
		log.Warn("evaluation failed", "error", err, "attempts", trace.Attempts)
		return reject(it, &out, reason)
	}

	it.Status = news.StatusEvaluated
	it.Score = j.Score
	out.Relevant, out.Score = j.IsRelevant, j.Score
	log.Debug("scored", "provider", trace.Provider, "score", j.Score, "relevant", j.IsRelevant)

	if !j.IsRelevant {
		return reject(it, &out, news.ReasonNotRelevant)
	}
	if j.Score < *e.cfg.MinScore {
		return reject(it, &out, news.ReasonBelowThreshold)
	}

	raw := it.EvaluationContent()
	if raw == "" {
		it.Discard(news.ReasonEmptyContent)
		out.Reason = news.ReasonEmptyContent
		return out
	}

	if err := e.optimize(ctx, it, raw, &out); errors.Is(err, ai.ErrInvalidData) {
		log.Info("provider flagged item as invalid data, discarding")
		it.Discard(news.ReasonInvalidData)
		out.Reason = news.ReasonInvalidData
		return out
	} else if err != nil {
		log.Warn("optimization failed, using source text", "error", err)
	}

	if it.DeliverableBody() == "" {
		it.Discard(news.ReasonEmptyContent)
		out.Reason = news.ReasonEmptyContent
		return out
	}

	it.Status = news.StatusAccepted
	out.Title, out.Content = it.DeliverableTitle(), it.DeliverableBody()
	return out
}

// optimize rewrites the body and runs bounded expansion rounds while the
// result is shorter than MinContentLength. The longest result is kept.
func (e *Evaluator) optimize(ctx context.Context, it *news.Item, raw string, out *Outcome) error {
	best, trace, err := e.chain.Optimize(ctx, ai.OptimizeRequest{
		Title:        it.Title,
		RawContent:   raw,
		OriginalLink: it.Link,
		MinLength:    e.cfg.MinContentLength,
	})
	out.Attempts += trace.Attempts
	out.OptimizeRaw = trace.Raw
	if err != nil {
		return err
	}

	for round := 1; round <= e.cfg.MaxExpansionRounds; round++ {
		if best.Content == "" || utf8.RuneCountInString(best.Content) >= e.cfg.MinContentLength {
			break
		}
		title := best.Title
		if title == "" {
			title = it.Title
		}
		longer, trace, err := e.chain.Optimize(ctx, ai.OptimizeRequest{
			Title:        title,
			RawContent:   best.Content,
			OriginalLink: it.Link,
			MinLength:    e.cfg.MinContentLength,
			Expand:       true,
		})
		out.Attempts += trace.Attempts
		out.Expansions = round
		if err != nil {
			e.log.Debug("expansion round failed", "link", it.Link, "round", round, "error", err)
			break
		}
		if utf8.RuneCountInString(longer.Content) > utf8.RuneCountInString(best.Content) {
			if longer.Title == "" {
				longer.Title = best.Title
			}
			best = longer
		}
	}

	it.OptimizedTitle = best.Title
	it.OptimizedBody = best.Content
	return nil
}

func reject(it *news.Item, out *Outcome, reason string) Outcome {
	it.Status = news.StatusRejected
	it.Reason = reason
	out.Reason = reason
	return *out
}
