// Package source fetches raw news records from feeds and news APIs.
package source

import (
	"context"
	"net/http"

	"github.com/deusflow/dailyinfo/internal/news"
)

// Source produces raw records for one cycle.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]news.RawRecord, error)
}

// Doer is the subset of *http.Client a source needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}
