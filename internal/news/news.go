// Package news holds the news item model shared by every pipeline stage and
// the normalizer that builds items from raw source records.
package news

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Status is the lifecycle state of an Item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusEvaluated Status = "evaluated"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusDiscarded Status = "discarded"
)

// Failure reasons recorded on items that leave the pipeline early.
const (
	ReasonDuplicate        = "duplicate"
	ReasonAlreadySent      = "already_sent"
	ReasonUnidentifiable   = "unidentifiable"
	ReasonNotRelevant      = "not_relevant"
	ReasonBelowThreshold   = "below_threshold"
	ReasonExhausted        = "all_providers_exhausted"
	ReasonInvalidData      = "invalid_data"
	ReasonEmptyContent     = "empty_content"
	ReasonMissingLink      = "missing_link"
	ReasonEvaluationFailed = "evaluation_failed"
)

// Item is a single news item moving through the pipeline.
type Item struct {
	Title       string
	Body        string
	Description string
	Summary     string
	Link        string
	Published   time.Time
	Source      string

	OptimizedTitle string
	OptimizedBody  string
	Score          float64
	Status         Status
	Reason         string
}

// EvaluationContent picks the text sent to the scoring prompt: body, then
// description, then summary.
func (it *Item) EvaluationContent() string {
	for _, s := range []string{it.Body, it.Description, it.Summary} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// FallbackBody returns the first non-empty of body, description and summary.
// It is used when AI optimization produced nothing usable.
func (it *Item) FallbackBody() string {
	return it.EvaluationContent()
}

// DeliverableBody is the optimized body if present, else the fallback body.
func (it *Item) DeliverableBody() string {
	if b := strings.TrimSpace(it.OptimizedBody); b != "" {
		return b
	}
	return it.FallbackBody()
}

// DeliverableTitle is the optimized title if present, else the source title.
func (it *Item) DeliverableTitle() string {
	if t := strings.TrimSpace(it.OptimizedTitle); t != "" {
		return t
	}
	return it.Title
}

// Key is the identity used by the send-history.
func (it *Item) Key() string {
	return KeyFor(it.Link, it.Title)
}

// Discard marks the item as dropped for the given reason.
func (it *Item) Discard(reason string) {
	it.Status = StatusDiscarded
	it.Reason = reason
}

// KeyFor builds an identity key from a link, or from a fingerprint of the
// normalized title when the link is empty. Returns "" when both are empty.
func KeyFor(link, title string) string {
	if l := CanonicalLink(link); l != "" {
		return l
	}
	t := NormalizeTitle(title)
	if t == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(t))
	return "title:" + hex.EncodeToString(sum[:])[:16]
}

// CanonicalLink lowercases scheme and host, drops the fragment and a trailing
// slash. Unparseable links are returned trimmed.
func CanonicalLink(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

var folder = cases.Fold()

// NormalizeTitle case-folds, strips punctuation and collapses whitespace so
// that cosmetic differences between two titles disappear.
func NormalizeTitle(s string) string {
	s = folder.String(norm.NFKC.String(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
