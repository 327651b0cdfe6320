package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/deusflow/dailyinfo/internal/history"
	"github.com/deusflow/dailyinfo/internal/news"
	"github.com/deusflow/dailyinfo/internal/push"
)

type recordingPusher struct {
	mu     sync.Mutex
	sent   []push.Message
	failOn map[string]bool
	at     []time.Time
	clock  func() time.Time
}

func (p *recordingPusher) Push(_ context.Context, msg push.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[msg.OriginalLink] {
		return errors.New("endpoint down")
	}
	p.sent = append(p.sent, msg)
	if p.clock != nil {
		p.at = append(p.at, p.clock())
	}
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func accepted(n int, score float64) *news.Item {
	return &news.Item{
		Title:         fmt.Sprintf("item %d", n),
		Link:          fmt.Sprintf("https://a.example/%d", n),
		OptimizedBody: "body",
		Score:         score,
		Published:     now.Add(-time.Duration(n) * time.Minute),
		Status:        news.StatusAccepted,
	}
}

func links(msgs []push.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.OriginalLink)
	}
	return out
}

func TestRank(t *testing.T) {
	a := accepted(1, 7)
	b := accepted(2, 9)
	c := accepted(3, 7) // older than a
	got := Rank([]*news.Item{a, c, b})
	want := []*news.Item{b, a, c}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Rank() mismatch (-want +got):\n%s", diff)
	}
}

func TestDeliverCapAndOrder(t *testing.T) {
	store := history.NewMemory()
	p := &recordingPusher{}
	g := NewGate(p, store, Config{MaxSend: 2, Window: 24 * time.Hour}, quiet())
	g.now = func() time.Time { return now }

	rep, err := g.Deliver(context.Background(), []*news.Item{accepted(1, 6), accepted(2, 9), accepted(3, 8)})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"https://a.example/2", "https://a.example/3"}, links(p.sent)); diff != "" {
		t.Errorf("pushed mismatch (-want +got):\n%s", diff)
	}
	if len(rep.Sent) != 2 || len(store.All()) != 2 {
		t.Errorf("sent=%d records=%d, want 2/2", len(rep.Sent), len(store.All()))
	}
	if p.sent[0].MessageType != "text" || p.sent[0].Content != "body" {
		t.Errorf("message = %+v", p.sent[0])
	}
}

func TestDeliverPushFailureNotRecorded(t *testing.T) {
	store := history.NewMemory()
	p := &recordingPusher{failOn: map[string]bool{"https://a.example/1": true}}
	g := NewGate(p, store, Config{MaxSend: 10, Window: 24 * time.Hour}, quiet())

	rep, err := g.Deliver(context.Background(), []*news.Item{accepted(1, 9), accepted(2, 8)})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Failed) != 1 || rep.Failed[0].Link != "https://a.example/1" {
		t.Errorf("failed = %+v", rep.Failed)
	}
	if len(rep.Sent) != 1 {
		t.Errorf("sent = %d, want 1", len(rep.Sent))
	}
	recs := store.All()
	if len(recs) != 1 || recs[0].Key != "https://a.example/2" {
		t.Errorf("records = %+v, want only item 2", recs)
	}
}

func TestDeliverRechecksHistory(t *testing.T) {
	store := history.NewMemory(history.SendRecord{Key: "https://a.example/1", SentAt: now.Add(-time.Hour)})
	p := &recordingPusher{}
	g := NewGate(p, store, Config{MaxSend: 1, Window: 24 * time.Hour}, quiet())
	g.now = func() time.Time { return now }

	rep, err := g.Deliver(context.Background(), []*news.Item{accepted(1, 10), accepted(2, 5)})
	if err != nil {
		t.Fatal(err)
	}
	// the already-sent item does not use up the cap
	if diff := cmp.Diff([]string{"https://a.example/2"}, links(p.sent)); diff != "" {
		t.Errorf("pushed mismatch (-want +got):\n%s", diff)
	}
	if len(rep.Skipped) != 1 || rep.Skipped[0].Reason != news.ReasonAlreadySent {
		t.Errorf("skipped = %+v", rep.Skipped)
	}

	// a second run in the same window re-delivers nothing
	p2 := &recordingPusher{}
	g2 := NewGate(p2, store, Config{MaxSend: 5, Window: 24 * time.Hour}, quiet())
	g2.now = func() time.Time { return now.Add(time.Minute) }
	if _, err := g2.Deliver(context.Background(), []*news.Item{accepted(1, 10), accepted(2, 5)}); err != nil {
		t.Fatal(err)
	}
	if len(p2.sent) != 0 {
		t.Errorf("re-delivered %v", links(p2.sent))
	}
}

func TestDeliverRecordTimestampAfterPush(t *testing.T) {
	clock := now
	tick := func() time.Time { clock = clock.Add(time.Second); return clock }

	store := history.NewMemory()
	p := &recordingPusher{clock: tick}
	g := NewGate(p, store, Config{Window: 24 * time.Hour}, quiet())
	g.now = tick

	if _, err := g.Deliver(context.Background(), []*news.Item{accepted(1, 9)}); err != nil {
		t.Fatal(err)
	}
	recs := store.All()
	if len(recs) != 1 || recs[0].SentAt.Before(p.at[0]) {
		t.Errorf("record %v stamped before push confirmation %v", recs, p.at)
	}
}

func TestDeliverSkipsUndeliverable(t *testing.T) {
	empty := accepted(1, 9)
	empty.OptimizedBody = ""
	rejected := accepted(2, 9)
	rejected.Status = news.StatusRejected

	p := &recordingPusher{}
	g := NewGate(p, history.NewMemory(), Config{Window: time.Hour}, quiet())
	rep, err := g.Deliver(context.Background(), []*news.Item{empty, rejected})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.sent) != 0 || len(rep.Skipped) != 2 {
		t.Errorf("sent=%d skipped=%d, want 0/2", len(p.sent), len(rep.Skipped))
	}
}
