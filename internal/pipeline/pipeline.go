// Package pipeline runs one aggregation cycle from collection to delivery.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/dailyinfo/internal/dedup"
	"github.com/deusflow/dailyinfo/internal/delivery"
	"github.com/deusflow/dailyinfo/internal/evaluator"
	"github.com/deusflow/dailyinfo/internal/history"
	"github.com/deusflow/dailyinfo/internal/metrics"
	"github.com/deusflow/dailyinfo/internal/news"
	"github.com/deusflow/dailyinfo/internal/source"
)

// Enricher fills in short bodies. Nil disables the stage.
type Enricher interface {
	Enrich(ctx context.Context, items []*news.Item) int
}

type Result struct {
	RunID      string
	Collected  int
	Normalized int
	Unique     int
	Evaluated  int
	Accepted   int
	Sent       int
	Failed     int
	Duration   time.Duration
}

type Pipeline struct {
	Sources       []source.Source
	SourceTimeout time.Duration
	Normalizer    news.Normalizer
	Dedup         dedup.Deduplicator
	Store         history.Store
	Enricher      Enricher
	Evaluator     *evaluator.Evaluator
	Gate          *delivery.Gate
	Metrics       *metrics.Metrics
	Log           *slog.Logger
}

// RunOnce executes collect, normalize, dedup, enrich, evaluate and deliver.
// Only an unreadable send-history aborts the run.
func (p *Pipeline) RunOnce(ctx context.Context) (Result, error) {
	started := time.Now()
	res := Result{RunID: uuid.New().String()}

	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("run_id", res.RunID)
	m := p.Metrics
	if m == nil {
		m = metrics.Global
	}

	log.Info("run started", "sources", len(p.Sources))

	records := p.collect(ctx, log)
	res.Collected = len(records)

	items, skipped := p.Normalizer.Normalize(records)
	res.Normalized = len(items)
	log.Info("normalized", "items", len(items), "skipped", skipped)

	unique, dropped, err := p.Dedup.Filter(ctx, items, p.Store)
	if err != nil {
		err = fmt.Errorf("dedup: %w", err)
		m.SetError(err.Error())
		return res, err
	}
	res.Unique = len(unique)
	log.Info("deduplicated", "unique", len(unique), "dropped", len(dropped))

	if p.Enricher != nil && len(unique) > 0 {
		n := p.Enricher.Enrich(ctx, unique)
		log.Info("enriched", "items", n)
	}

	var stats metrics.RunStats
	stats.Collected, stats.Duplicates = res.Collected, len(dropped)

	var accepted []*news.Item
	if len(unique) > 0 {
		var outcomes []evaluator.Outcome
		accepted, outcomes = p.Evaluator.EvaluateBatch(ctx, unique)
		res.Evaluated = len(outcomes)
		for _, o := range outcomes {
			switch o.Reason {
			case "":
			case news.ReasonExhausted, news.ReasonEvaluationFailed:
				stats.Failed++
			default:
				stats.Rejected++
			}
		}
	}
	res.Accepted = len(accepted)
	stats.Accepted = res.Accepted
	log.Info("evaluated", "evaluated", res.Evaluated, "accepted", res.Accepted)

	var deliverErr error
	if len(accepted) > 0 {
		rep, err := p.Gate.Deliver(ctx, accepted)
		res.Sent, res.Failed = len(rep.Sent), len(rep.Failed)
		if err != nil {
			deliverErr = fmt.Errorf("deliver: %w", err)
		}
	} else {
		log.Info("no relevant news to send")
	}
	stats.Sent, stats.SendFailed = res.Sent, res.Failed

	res.Duration = time.Since(started)
	m.RecordRun(res.RunID, stats, res.Duration)
	if deliverErr != nil {
		m.SetError(deliverErr.Error())
	}

	log.Info("run finished",
		"collected", res.Collected,
		"unique", res.Unique,
		"accepted", res.Accepted,
		"sent", res.Sent,
		"failed", res.Failed,
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, deliverErr
}

// collect fetches every source concurrently. A failing source is logged and
// contributes nothing.
func (p *Pipeline) collect(ctx context.Context, log *slog.Logger) []news.RawRecord {
	results := make([][]news.RawRecord, len(p.Sources))

	var g errgroup.Group
	var mu sync.Mutex
	failed := 0
	for i, src := range p.Sources {
		g.Go(func() error {
			sctx := ctx
			if p.SourceTimeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, p.SourceTimeout)
				defer cancel()
			}
			recs, err := src.Fetch(sctx)
			if err != nil {
				level := slog.LevelWarn
				if errors.Is(err, context.Canceled) {
					level = slog.LevelInfo
				}
				log.Log(ctx, level, "source failed, skipping", "source", src.Name(), "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			log.Debug("source fetched", "source", src.Name(), "records", len(recs))
			results[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	var all []news.RawRecord
	for _, r := range results {
		all = append(all, r...)
	}
	log.Info("collected", "records", len(all), "failed_sources", failed)
	return all
}
