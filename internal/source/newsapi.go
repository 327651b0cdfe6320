package source

import (
	"context"
	"encoding/json"
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

// APIConfig configures the JSON news API sources.
type APIConfig struct {
	APIKey     string
	Category   string
	Limit      int
	Window     time.Duration
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
	BaseURL    string
}

func (c APIConfig) withDefaults(baseURL string) APIConfig {
	if c.Category == "" {
		c.Category = "health"
	}
	if c.Limit <= 0 {
		c.Limit = 10
	}
	if c.Window <= 0 {
		c.Window = 24 * time.Hour
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryCount <= 0 {
		c.RetryCount = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

const newsAPIBase = "https://newsapi.org"

// NewsAPI queries newsapi.org's /v2/everything endpoint with the category
// as the search term.
type NewsAPI struct {
	client Doer
	cfg    APIConfig
	now    func() time.Time
	log    *slog.Logger
}

func NewNewsAPI(client Doer, cfg APIConfig, log *slog.Logger) *NewsAPI {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &NewsAPI{client: client, cfg: cfg.withDefaults(newsAPIBase), now: time.Now, log: log}
}

func (n *NewsAPI) Name() string { return "newsapi" }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string     `json:"title"`
		Description string     `json:"description"`
		Content     string     `json:"content"`
		URL         string     `json:"url"`
		PublishedAt *time.Time `json:"publishedAt"`
	} `json:"articles"`
}

func (n *NewsAPI) Fetch(ctx context.Context) ([]news.RawRecord, error) {
	if n.cfg.APIKey == "" {
		return nil, fmt.Errorf("newsapi: missing api_key")
	}
	now := n.now().UTC()
	q := url.Values{
		"q":        {n.cfg.Category},
		"from":     {now.Add(-n.cfg.Window).Format("2006-01-02")},
		"to":       {now.Format("2006-01-02")},
		"pageSize": {strconv.Itoa(n.cfg.Limit)},
		"sortBy":   {"publishedAt"},
		"language": {"en"},
	}
	endpoint := n.cfg.BaseURL + "/v2/everything?" + q.Encode()

	var body newsAPIResponse
	_, err := retry.WithRetry(ctx, retry.RetryConfig{MaxAttempts: n.cfg.RetryCount, Delay: n.cfg.RetryDelay}, func(int) error {
		return getJSON(ctx, n.client, endpoint, n.cfg.Timeout, map[string]string{"X-Api-Key": n.cfg.APIKey}, &body)
	})
	if err != nil {
		return nil, fmt.Errorf("newsapi: %w", err)
	}
	if body.Status != "ok" {
		return nil, fmt.Errorf("newsapi error %s: %s", body.Code, body.Message)
	}

	var out []news.RawRecord
	for _, a := range body.Articles {
		if strings.TrimSpace(a.Title) == "" || strings.Contains(a.Title, "[Removed]") {
			continue
		}
		src := "newsapi"
		if a.Source.Name != "" {
			src = "newsapi:" + a.Source.Name
		}
		out = append(out, news.RawRecord{
			Title:       a.Title,
			Body:        a.Content,
			Description: a.Description,
			Link:        a.URL,
			Published:   a.PublishedAt,
			Source:      src,
		})
	}
	n.log.Info("fetched from NewsAPI", "records", len(out))
	return out, nil
}

// getJSON performs a GET and decodes a JSON body into v. 4xx replies other
// than 429 are not retried.
func getJSON(ctx context.Context, client Doer, endpoint string, timeout time.Duration, headers map[string]string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return retry.Permanent(err)
	}
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
