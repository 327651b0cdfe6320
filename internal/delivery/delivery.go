// Package delivery ranks accepted items, caps them, pushes them and records
// every confirmed push in the send-history.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/deusflow/dailyinfo/internal/history"
	"github.com/deusflow/dailyinfo/internal/news"
	"github.com/deusflow/dailyinfo/internal/push"
)

type Config struct {
	MaxSend  int           // zero or less: no cap
	Window   time.Duration // history re-check window
	Interval time.Duration // pause between pushes
}

// Report lists what happened to each ranked item.
type Report struct {
	Sent    []*news.Item
	Failed  []*news.Item
	Skipped []*news.Item
}

type Gate struct {
	pusher push.Pusher
	store  history.Store
	cfg    Config
	now    func() time.Time
	log    *slog.Logger
}

func NewGate(p push.Pusher, store history.Store, cfg Config, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{pusher: p, store: store, cfg: cfg, now: time.Now, log: log}
}

// Rank orders items by score, highest first; ties go to the most recently
// published. The input slice is not modified.
func Rank(items []*news.Item) []*news.Item {
	ranked := append([]*news.Item(nil), items...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Published.After(ranked[j].Published)
	})
	return ranked
}

// Message formats an item for the push endpoint.
func Message(it *news.Item) push.Message {
	return push.Message{
		MessageType:  "text",
		Title:        it.DeliverableTitle(),
		Content:      it.DeliverableBody(),
		OriginalLink: it.Link,
	}
}

// Deliver pushes at most MaxSend items. A failed push does not stop the
// others and is not recorded, so the item stays eligible next cycle.
func (g *Gate) Deliver(ctx context.Context, items []*news.Item) (Report, error) {
	var rep Report

	records, err := g.store.Window(ctx, g.now().Add(-g.cfg.Window))
	if err != nil {
		return rep, fmt.Errorf("re-check send history: %w", err)
	}
	known := history.Keys(records)

	var selected []*news.Item
	for _, it := range Rank(items) {
		if g.cfg.MaxSend > 0 && len(selected) >= g.cfg.MaxSend {
			break
		}
		key := it.Key()
		if it.Status != news.StatusAccepted || it.Link == "" || it.DeliverableBody() == "" {
			rep.Skipped = append(rep.Skipped, it)
			continue
		}
		if _, ok := known[key]; ok {
			it.Reason = news.ReasonAlreadySent
			rep.Skipped = append(rep.Skipped, it)
			continue
		}
		known[key] = struct{}{}
		selected = append(selected, it)
	}

	for i, it := range selected {
		if i > 0 && g.cfg.Interval > 0 {
			select {
			case <-ctx.Done():
				rep.Failed = append(rep.Failed, selected[i:]...)
				return rep, ctx.Err()
			case <-time.After(g.cfg.Interval):
			}
		}

		log := g.log.With("link", it.Link, "score", it.Score)
		if err := g.pusher.Push(ctx, Message(it)); err != nil {
			log.Error("push failed", "error", err)
			rep.Failed = append(rep.Failed, it)
			continue
		}

		rec := history.SendRecord{
			Key:    it.Key(),
			Title:  it.DeliverableTitle(),
			Link:   it.Link,
			Source: it.Source,
			SentAt: g.now(),
		}
		if err := g.store.Append(ctx, rec); err != nil {
			log.Error("pushed but could not record send", "error", err)
		}
		log.Info("pushed", "title", rec.Title)
		rep.Sent = append(rep.Sent, it)
	}
	return rep, nil
}
