package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/deusflow/dailyinfo/internal/ai"
	"github.com/deusflow/dailyinfo/internal/dedup"
	"github.com/deusflow/dailyinfo/internal/delivery"
	"github.com/deusflow/dailyinfo/internal/evaluator"
	"github.com/deusflow/dailyinfo/internal/history"
	"github.com/deusflow/dailyinfo/internal/metrics"
	"github.com/deusflow/dailyinfo/internal/news"
	"github.com/deusflow/dailyinfo/internal/push"
	"github.com/deusflow/dailyinfo/internal/source"
)

type fakeSource struct {
	name    string
	records []news.RawRecord
	err     error
}

func (f fakeSource) Name() string { return f.name }

func (f fakeSource) Fetch(context.Context) ([]news.RawRecord, error) {
	return f.records, f.err
}

// scoreChain rates titles mentioning "solar" highly and rewrites by prefixing
// the title.
type scoreChain struct{}

func (scoreChain) Evaluate(_ context.Context, req ai.EvalRequest) (ai.Judgement, ai.Trace, error) {
	score := 2.0
	if strings.Contains(strings.ToLower(req.Title), "solar") {
		score = 9
	}
	return ai.Judgement{IsRelevant: true, Score: score}, ai.Trace{Provider: "fake", Attempts: 1}, nil
}

func (scoreChain) Optimize(_ context.Context, req ai.OptimizeRequest) (ai.Optimized, ai.Trace, error) {
	return ai.Optimized{
		MessageType:  "text",
		Title:        "opt " + req.Title,
		Content:      "rewritten: " + req.RawContent,
		OriginalLink: req.OriginalLink,
	}, ai.Trace{Provider: "fake", Attempts: 1}, nil
}

type recordingPusher struct {
	mu   sync.Mutex
	msgs []push.Message
}

func (p *recordingPusher) Push(_ context.Context, msg push.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

type enrichCounter struct{ calls int }

func (e *enrichCounter) Enrich(context.Context, []*news.Item) int {
	e.calls++
	return 0
}

type failingStore struct{}

func (failingStore) Window(context.Context, time.Time) ([]history.SendRecord, error) {
	return nil, errors.New("disk gone")
}

func (failingStore) Append(context.Context, history.SendRecord) error { return nil }
func (failingStore) Close() error                                    { return nil }

var minScore = 6.0

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newPipeline(store history.Store, pusher push.Pusher, sources ...source.Source) *Pipeline {
	log := quietLog()
	return &Pipeline{
		Sources:       sources,
		SourceTimeout: time.Second,
		Normalizer:    news.Normalizer{Window: 24 * time.Hour},
		Dedup:         dedup.Deduplicator{Window: 24 * time.Hour},
		Store:         store,
		Evaluator:     evaluator.New(scoreChain{}, evaluator.Config{MinScore: &minScore, MinContentLength: 10}, log),
		Gate:          delivery.NewGate(pusher, store, delivery.Config{MaxSend: 5, Window: 24 * time.Hour}, log),
		Metrics:       metrics.New(),
		Log:           log,
	}
}

func TestRunOnceEndToEnd(t *testing.T) {
	store := history.NewMemory(history.SendRecord{
		Key:    "https://a.example/3",
		Link:   "https://a.example/3",
		SentAt: time.Now().Add(-time.Hour),
	})
	pusher := &recordingPusher{}
	enr := &enrichCounter{}

	p := newPipeline(store, pusher,
		fakeSource{name: "rss", records: []news.RawRecord{
			{Title: "Solar breakthrough", Body: "Panels hit record efficiency.", Link: "https://a.example/1", Source: "rss"},
			{Title: "Solar breakthrough!", Link: "https://a.example/2", Source: "rss"},
			{Title: "Already delivered", Body: "old", Link: "https://a.example/3", Source: "rss"},
			{Title: "Quarterly market report", Body: "Numbers.", Link: "https://a.example/4", Source: "rss"},
			{},
		}},
		fakeSource{name: "newsapi", err: errors.New("503")},
	)
	p.Enricher = enr

	res, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	want := Result{Collected: 5, Normalized: 4, Unique: 2, Evaluated: 2, Accepted: 1, Sent: 1}
	if diff := cmp.Diff(want, res, cmpopts.IgnoreFields(Result{}, "RunID", "Duration")); diff != "" {
		t.Errorf("Result mismatch (-want +got):\n%s", diff)
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
	if enr.calls != 1 {
		t.Errorf("enricher called %d times, want 1", enr.calls)
	}

	wantMsgs := []push.Message{{
		MessageType:  "text",
		Title:        "opt Solar breakthrough",
		Content:      "rewritten: Panels hit record efficiency.",
		OriginalLink: "https://a.example/1",
	}}
	if diff := cmp.Diff(wantMsgs, pusher.msgs); diff != "" {
		t.Errorf("pushed messages (-want +got):\n%s", diff)
	}

	keys := history.Keys(store.All())
	if _, ok := keys["https://a.example/1"]; !ok || len(keys) != 2 {
		t.Errorf("history keys = %v", keys)
	}

	stats := p.Metrics.GetStats()
	if stats["messages_sent"] != int64(1) || stats["duplicates_filtered"] != int64(2) || stats["evaluations_rejected"] != int64(1) {
		t.Errorf("metrics = %v", stats)
	}
}

func TestRunOnceSecondCycleSendsNothing(t *testing.T) {
	store := history.NewMemory()
	pusher := &recordingPusher{}
	src := fakeSource{name: "rss", records: []news.RawRecord{
		{Title: "Solar farm opens", Body: "Big farm.", Link: "https://b.example/1"},
	}}
	p := newPipeline(store, pusher, src)

	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	res, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Unique != 0 || res.Sent != 0 {
		t.Errorf("second run = %+v, want nothing new", res)
	}
	if len(pusher.msgs) != 1 {
		t.Errorf("pushed %d messages over two runs, want 1", len(pusher.msgs))
	}
}

func TestRunOnceHistoryUnavailable(t *testing.T) {
	p := newPipeline(failingStore{}, &recordingPusher{},
		fakeSource{name: "rss", records: []news.RawRecord{{Title: "x", Link: "https://c.example/1"}}})

	if _, err := p.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error when history cannot be read")
	}
	if p.Metrics.Healthy() {
		t.Error("metrics should be unhealthy after a failed run")
	}
}

func TestRunOnceNoSources(t *testing.T) {
	p := newPipeline(history.NewMemory(), &recordingPusher{})
	res, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Collected != 0 || res.Sent != 0 {
		t.Errorf("Result = %+v", res)
	}
}
