package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/dailyinfo/internal/news"
	"github.com/deusflow/dailyinfo/internal/retry"
)

const mediaStackBase = "http://api.mediastack.com"

// MediaStack queries the mediastack /v1/news endpoint.
type MediaStack struct {
	client Doer
	cfg    APIConfig
	now    func() time.Time
	log    *slog.Logger
}

func NewMediaStack(client Doer, cfg APIConfig, log *slog.Logger) *MediaStack {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &MediaStack{client: client, cfg: cfg.withDefaults(mediaStackBase), now: time.Now, log: log}
}

func (m *MediaStack) Name() string { return "mediastack" }

type mediaStackResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Data []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		Source      string `json:"source"`
		PublishedAt string `json:"published_at"`
	} `json:"data"`
}

func (m *MediaStack) Fetch(ctx context.Context) ([]news.RawRecord, error) {
	if m.cfg.APIKey == "" {
		return nil, fmt.Errorf("mediastack: missing api_key")
	}
	now := m.now().UTC()
	q := url.Values{
		"access_key": {m.cfg.APIKey},
		"categories": {m.cfg.Category},
		"date":       {now.Add(-m.cfg.Window).Format("2006-01-02") + "," + now.Format("2006-01-02")},
		"limit":      {strconv.Itoa(m.cfg.Limit)},
		"sort":       {"published_desc"},
	}
	endpoint := m.cfg.BaseURL + "/v1/news?" + q.Encode()

	var body mediaStackResponse
	_, err := retry.WithRetry(ctx, retry.RetryConfig{MaxAttempts: m.cfg.RetryCount, Delay: m.cfg.RetryDelay}, func(int) error {
		return getJSON(ctx, m.client, endpoint, m.cfg.Timeout, nil, &body)
	})
	if err != nil {
		return nil, fmt.Errorf("mediastack: %w", err)
	}
	if body.Error != nil {
		return nil, fmt.Errorf("mediastack error %s: %s", body.Error.Code, body.Error.Message)
	}

	var out []news.RawRecord
	for _, d := range body.Data {
		if strings.TrimSpace(d.Title) == "" {
			continue
		}
		rec := news.RawRecord{
			Title:       d.Title,
			Description: d.Description,
			Link:        d.URL,
			Source:      "mediastack",
		}
		if d.Source != "" {
			rec.Source = "mediastack:" + d.Source
		}
		if t, err := time.Parse(time.RFC3339, d.PublishedAt); err == nil {
			rec.Published = &t
		}
		out = append(out, rec)
	}
	m.log.Info("fetched from MediaStack", "records", len(out))
	return out, nil
}
