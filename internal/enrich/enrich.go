// Package enrich fetches the full text of articles whose feed body is too
// short to evaluate.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"codeberg.org/readeck/go-readability"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/dailyinfo/internal/cache"
	"github.com/deusflow/dailyinfo/internal/news"
)

// Doer is the subset of *http.Client the enricher needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	MinBodyLength int // runes; shorter bodies are fetched
	Timeout       time.Duration
	Concurrency   int
	UserAgent     string
	CacheTTL      time.Duration
}

// Enricher replaces short bodies with extracted article text. Failures leave
// the item untouched.
type Enricher struct {
	client Doer
	cfg    Config
	cache  *cache.Cache[string]
	log    *slog.Logger
}

func New(client Doer, cfg Config, c *cache.Cache[string], log *slog.Logger) *Enricher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.MinBodyLength <= 0 {
		cfg.MinBodyLength = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Enricher{client: client, cfg: cfg, cache: c, log: log}
}

// Enrich expands items in place and returns how many bodies were replaced.
func (e *Enricher) Enrich(ctx context.Context, items []*news.Item) int {
	replaced := make([]bool, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, it := range items {
		if it.Link == "" || utf8.RuneCountInString(it.Body) >= e.cfg.MinBodyLength {
			continue
		}
		g.Go(func() error {
			text, err := e.fetch(gctx, it.Link)
			if err != nil {
				e.log.Debug("full text extraction failed", "link", it.Link, "error", err)
				return nil
			}
			if utf8.RuneCountInString(text) > utf8.RuneCountInString(it.Body) {
				it.Body = text
				replaced[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, r := range replaced {
		if r {
			n++
		}
	}
	if n > 0 {
		e.log.Info("enriched items with full text", "count", n)
	}
	return n
}

func (e *Enricher) fetch(ctx context.Context, link string) (string, error) {
	key := cache.Key(link)
	if e.cache != nil {
		if text, ok := e.cache.Get(key); ok {
			return text, nil
		}
	}

	text, err := ExtractFullArticle(ctx, e.client, link, e.cfg.Timeout, e.cfg.UserAgent)
	if err != nil {
		return "", err
	}
	if e.cache != nil {
		e.cache.Set(key, text, e.cfg.CacheTTL)
	}
	return text, nil
}

// ExtractFullArticle downloads link and returns its cleaned paragraph text.
func ExtractFullArticle(ctx context.Context, client Doer, link string, timeout time.Duration, userAgent string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error loading page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("error reading page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("error parsing HTML: %w", err)
	}

	content := cleanContent(extractParagraphs(doc))
	if content == "" {
		content = readable(data, link)
	}
	if content == "" {
		return "", fmt.Errorf("no article content found")
	}
	return content, nil
}

const maxPageBytes = 5 << 20

// readable runs readability over pages where no selector matched enough
// paragraphs.
func readable(data []byte, link string) string {
	pageURL, err := url.Parse(link)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil || article.Content == "" {
		return ""
	}
	return cleanContent(strings.Split(news.CleanText(article.Content), "\n\n"))
}

var contentSelectors = []string{
	"article p",
	".article-body p",
	".article-content p",
	".post-content p",
	".entry-content p",
	".content p",
	"main p",
	"#content p",
	"p",
}

func extractParagraphs(doc *goquery.Document) []string {
	doc.Find("script, style, nav, footer, aside, form, noscript").Remove()

	var best []string
	for _, selector := range contentSelectors {
		var found []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.Join(strings.Fields(s.Text()), " ")
			if utf8.RuneCountInString(text) > 20 {
				found = append(found, text)
			}
		})
		if len(found) > len(best) {
			best = found
		}
		if len(best) >= 3 {
			break
		}
	}
	return best
}

var junkIndicators = []string{
	"cookie", "gdpr", "privacy policy", "subscribe", "newsletter",
	"sign up", "log in", "read more", "click here", "follow us",
	"share this", "advertisement", "all rights reserved",
}

const maxContentRunes = 4000

// cleanContent drops boilerplate paragraphs and caps the length at a
// paragraph boundary.
func cleanContent(paragraphs []string) string {
	var kept []string
	total := 0
	for _, p := range paragraphs {
		lower := strings.ToLower(p)
		junk := false
		for _, ind := range junkIndicators {
			if strings.Contains(lower, ind) {
				junk = true
				break
			}
		}
		if junk {
			continue
		}
		n := utf8.RuneCountInString(p)
		if total+n > maxContentRunes && len(kept) > 0 {
			break
		}
		kept = append(kept, p)
		total += n + 2
	}
	return strings.Join(kept, "\n\n")
}
