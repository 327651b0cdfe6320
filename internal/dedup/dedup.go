// Package dedup removes near-duplicate items within a batch and items that
// were already delivered inside the time window.
package dedup

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/deusflow/dailyinfo/internal/history"
	"github.com/deusflow/dailyinfo/internal/news"
)

const DefaultThreshold = 0.8

// Deduplicator is a pure filter; it never writes to the history.
type Deduplicator struct {
	Threshold float64
	Window    time.Duration
	Now       func() time.Time
}

// Similarity compares two titles after normalization. The result is in
// [0,1], symmetric, and 1 for titles that normalize to the same string.
func Similarity(a, b string) float64 {
	ra := []rune(news.NormalizeTitle(a))
	rb := []rune(news.NormalizeTitle(b))
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func (d Deduplicator) threshold() float64 {
	if d.Threshold <= 0 || d.Threshold > 1 {
		return DefaultThreshold
	}
	return d.Threshold
}

// duplicates reports whether a and b describe the same story.
func (d Deduplicator) duplicates(a, b *news.Item) bool {
	if ka, kb := a.Key(), b.Key(); ka != "" && ka == kb {
		return true
	}
	if a.Title == "" || b.Title == "" {
		return false
	}
	return Similarity(a.Title, b.Title) >= d.threshold()
}

// Batch keeps one item per group of near-duplicates: the one with the longer
// raw body, or the earliest seen on a tie. Unidentifiable items and losers
// are returned in dropped with their reason set.
func (d Deduplicator) Batch(items []*news.Item) (kept, dropped []*news.Item) {
	for _, it := range items {
		if it.Key() == "" {
			it.Discard(news.ReasonUnidentifiable)
			dropped = append(dropped, it)
			continue
		}

		winner := -1
		for j, k := range kept {
			if d.duplicates(it, k) {
				winner = j
				break
			}
		}
		if winner < 0 {
			kept = append(kept, it)
			continue
		}

		if utf8.RuneCountInString(it.Body) > utf8.RuneCountInString(kept[winner].Body) {
			kept[winner].Discard(news.ReasonDuplicate)
			dropped = append(dropped, kept[winner])
			kept[winner] = it
		} else {
			it.Discard(news.ReasonDuplicate)
			dropped = append(dropped, it)
		}
	}
	return kept, dropped
}

// Historical drops items whose key is among the given send records.
func (d Deduplicator) Historical(items []*news.Item, records []history.SendRecord) (kept, dropped []*news.Item) {
	sent := history.Keys(records)
	for _, it := range items {
		if _, ok := sent[it.Key()]; ok {
			it.Discard(news.ReasonAlreadySent)
			dropped = append(dropped, it)
			continue
		}
		kept = append(kept, it)
	}
	return kept, dropped
}

// Filter runs the intra-batch pass, then the historical pass against the
// records of store younger than the window.
func (d Deduplicator) Filter(ctx context.Context, items []*news.Item, store history.Store) (kept, dropped []*news.Item, err error) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	records, err := store.Window(ctx, now().Add(-d.Window))
	if err != nil {
		return nil, nil, fmt.Errorf("read send history: %w", err)
	}

	kept, dropped = d.Batch(items)
	kept, sent := d.Historical(kept, records)
	return kept, append(dropped, sent...), nil
}
