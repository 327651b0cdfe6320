package news

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// RawRecord is what a source fetcher produces. Any field may be empty.
type RawRecord struct {
	Title       string
	Body        string
	Description string
	Summary     string
	Link        string
	Published   *time.Time
	Source      string
}

// Normalizer turns raw records into pending items.
type Normalizer struct {
	// Window drops records published before now-Window. Zero disables the check.
	Window time.Duration
	Now    func() time.Time
}

// Normalize converts records into items. Records with neither title nor link
// and records older than the window are skipped; the count of skipped
// records is returned alongside the items.
func (n Normalizer) Normalize(records []RawRecord) ([]*Item, int) {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	cutoff := time.Time{}
	if n.Window > 0 {
		cutoff = now().Add(-n.Window)
	}

	items := make([]*Item, 0, len(records))
	skipped := 0
	for _, r := range records {
		it := &Item{
			Title:       CleanText(r.Title),
			Body:        CleanText(r.Body),
			Description: CleanText(r.Description),
			Summary:     CleanText(r.Summary),
			Link:        strings.TrimSpace(r.Link),
			Source:      strings.TrimSpace(r.Source),
			Status:      StatusPending,
		}
		if it.Title == "" && it.Link == "" {
			skipped++
			continue
		}
		if r.Published != nil && !r.Published.IsZero() {
			it.Published = *r.Published
		} else {
			it.Published = now()
		}
		if !cutoff.IsZero() && it.Published.Before(cutoff) {
			skipped++
			continue
		}
		items = append(items, it)
	}
	return items, skipped
}

// CleanText strips HTML markup and collapses whitespace, keeping paragraph
// breaks as blank lines.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			doc.Find("script, style").Remove()
			doc.Find("br").ReplaceWithHtml("\n")
			doc.Find("p, div, li").Each(func(_ int, sel *goquery.Selection) {
				sel.AppendHtml("\n\n")
			})
			s = doc.Text()
		}
	}

	var paragraphs []string
	for _, p := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n") {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}
