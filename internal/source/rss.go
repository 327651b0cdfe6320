package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/dailyinfo/internal/news"
	"github.com/deusflow/dailyinfo/internal/retry"
)

const defaultPriority = 5

// Feed is one RSS/Atom feed. In YAML it is either a bare URL or a mapping
// with name, url and priority.
type Feed struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Priority int    `yaml:"priority"`
}

func (f *Feed) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		f.URL = node.Value
		f.Name = node.Value
		f.Priority = defaultPriority
		return nil
	}
	type plain Feed
	p := plain{Priority: defaultPriority}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*f = Feed(p)
	if f.Name == "" {
		f.Name = f.URL
	}
	return nil
}

// FeedsConfig is the YAML structure of a feeds file:
//
//	feeds:
//	  - https://...
//	  - {name: Example, url: https://..., priority: 1}
type FeedsConfig struct {
	Feeds []Feed `yaml:"feeds"`
}

// LoadFeeds reads the feed list from a YAML file.
func LoadFeeds(path string) ([]Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var cfg FeedsConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode feeds file %s: %w", path, err)
	}
	return cfg.Feeds, nil
}

type RSSConfig struct {
	MaxArticlesPerFeed int
	Timeout            time.Duration
	RetryCount         int
	RetryDelay         time.Duration
	UserAgent          string
}

// RSS reads every configured feed, lowest priority number first. A failing
// feed is logged and skipped.
type RSS struct {
	feeds  []Feed
	client Doer
	cfg    RSSConfig
	log    *slog.Logger
}

func NewRSS(feeds []Feed, client Doer, cfg RSSConfig, log *slog.Logger) *RSS {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.MaxArticlesPerFeed <= 0 {
		cfg.MaxArticlesPerFeed = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	sorted := append([]Feed(nil), feeds...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	return &RSS{feeds: sorted, client: client, cfg: cfg, log: log}
}

func (r *RSS) Name() string { return "rss" }

func (r *RSS) Fetch(ctx context.Context) ([]news.RawRecord, error) {
	var all []news.RawRecord
	ok := 0
	for _, feed := range r.feeds {
		var parsed *gofeed.Feed
		_, err := retry.WithRetry(ctx, retry.RetryConfig{
			MaxAttempts: r.cfg.RetryCount,
			Delay:       r.cfg.RetryDelay,
		}, func(int) error {
			var err error
			parsed, err = r.fetchFeed(ctx, feed.URL)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			r.log.Warn("error parsing RSS", "feed", feed.Name, "error", err)
			continue
		}
		ok++

		items := parsed.Items
		if len(items) > r.cfg.MaxArticlesPerFeed {
			items = items[:r.cfg.MaxArticlesPerFeed]
		}
		for _, it := range items {
			all = append(all, recordFromItem(it, feed.Name))
		}
		r.log.Debug("loaded feed", "feed", feed.Name, "items", len(items))
	}

	r.log.Info("processed RSS feeds", "ok", ok, "total", len(r.feeds), "records", len(all))
	if ok == 0 && len(r.feeds) > 0 {
		return nil, fmt.Errorf("all %d feeds failed", len(r.feeds))
	}
	return all, nil
}

func (r *RSS) fetchFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return feed, nil
}

func recordFromItem(it *gofeed.Item, feedName string) news.RawRecord {
	rec := news.RawRecord{
		Title:       it.Title,
		Body:        it.Content,
		Description: it.Description,
		Link:        it.Link,
		Source:      feedName,
	}
	if it.ITunesExt != nil {
		rec.Summary = it.ITunesExt.Summary
	}
	switch {
	case it.PublishedParsed != nil:
		rec.Published = it.PublishedParsed
	case it.UpdatedParsed != nil:
		rec.Published = it.UpdatedParsed
	}
	return rec
}
