// Package config loads the YAML configuration and applies environment
// overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/dailyinfo/internal/source"
)

const DefaultPath = "config.yaml"

var (
	ErrNoAIKeys     = errors.New("no API keys for any preferred AI provider")
	ErrNoPushTarget = errors.New("no push target configured")
)

type Config struct {
	DailyRunTime    string `yaml:"daily_run_time"`
	Timezone        string `yaml:"timezone"`
	MaxSendLimit    int    `yaml:"max_send_limit"`
	TimeWindowHours int    `yaml:"time_window_hours"`
	WebhookURL      string `yaml:"webhook_url"`
	LogLevel        string `yaml:"log_level"`

	Push PushConfig `yaml:"push"`

	AIPreference       []string   `yaml:"ai_preference"`
	GeminiAPIKeys      []string   `yaml:"gemini_api_keys"`
	GeminiModel        string     `yaml:"gemini_model"`
	OpenRouterAPIKeys  []string   `yaml:"openrouter_api_keys"`
	OpenRouterEndpoint string     `yaml:"openrouter_endpoint"`
	OpenRouterModel    string     `yaml:"openrouter_model"`
	AISettings         AISettings `yaml:"ai_settings"`

	Dedup             DedupConfig       `yaml:"dedup"`
	ContentExtraction ContentExtraction `yaml:"content_extraction"`

	RSSFeeds     []source.Feed `yaml:"rss_feeds"`
	RSSFeedsFile string        `yaml:"rss_feeds_file"`
	RSSSettings  RSSSettings   `yaml:"rss_settings"`
	NewsSources  NewsSources   `yaml:"news_sources"`

	History    HistoryConfig    `yaml:"history"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type PushConfig struct {
	Type            string `yaml:"type"` // webhook | telegram
	TelegramToken   string `yaml:"telegram_token"`
	TelegramChatID  string `yaml:"telegram_chat_id"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

type AISettings struct {
	MinRelevanceScore     float64        `yaml:"min_relevance_score"`
	RetryCount            int            `yaml:"retry_count"`
	RetryDelaySeconds     int            `yaml:"retry_delay_seconds"`
	Concurrency           int            `yaml:"concurrency"`
	RequestTimeoutSeconds int            `yaml:"request_timeout_seconds"`
	MinContentLength      int            `yaml:"min_content_length"`
	MaxExpansionRounds    *int           `yaml:"max_expansion_rounds"`
	TargetLanguage        string         `yaml:"target_language"`
	Prompts               Prompts        `yaml:"prompts"`
	MaxRequests           map[string]int `yaml:"max_requests"`
}

type Prompts struct {
	EvaluationPrompt   string `yaml:"evaluation_prompt"`
	OptimizationPrompt string `yaml:"optimization_prompt"`
	ExpansionPrompt    string `yaml:"expansion_prompt"`
}

type DedupConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type ContentExtraction struct {
	Enabled         bool `yaml:"enabled"`
	MinBodyLength   int  `yaml:"min_body_length"`
	TimeoutSeconds  int  `yaml:"timeout_seconds"`
	Concurrency     int  `yaml:"concurrency"`
	CacheTTLMinutes int  `yaml:"cache_ttl_minutes"`
}

type RSSSettings struct {
	MaxArticlesPerFeed int    `yaml:"max_articles_per_feed"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	RetryCount         int    `yaml:"retry_count"`
	UserAgent          string `yaml:"user_agent"`
}

type NewsSources struct {
	NewsAPI    APISource `yaml:"newsapi"`
	MediaStack APISource `yaml:"mediastack"`
}

type APISource struct {
	Enabled        bool   `yaml:"enabled"`
	APIKey         string `yaml:"api_key"`
	Category       string `yaml:"category"`
	Limit          int    `yaml:"limit"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	RetryCount     int    `yaml:"retry_count"`
	BaseURL        string `yaml:"base_url"`
}

type HistoryConfig struct {
	Backend        string `yaml:"backend"` // file | sqlite | postgres
	Path           string `yaml:"path"`
	DSN            string `yaml:"dsn"`
	RetentionHours int    `yaml:"retention_hours"`
}

type MonitoringConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Default returns the configuration used when a key is absent.
func Default() *Config {
	rounds := 2
	return &Config{
		DailyRunTime:    "06:00",
		Timezone:        "Asia/Shanghai",
		MaxSendLimit:    10,
		TimeWindowHours: 24,
		LogLevel:        "info",
		Push: PushConfig{
			Type:            "webhook",
			IntervalSeconds: 2,
			TimeoutSeconds:  30,
		},
		AIPreference: []string{"openrouter", "gemini"},
		AISettings: AISettings{
			MinRelevanceScore:     6,
			RetryCount:            2,
			RetryDelaySeconds:     2,
			Concurrency:           3,
			RequestTimeoutSeconds: 60,
			MinContentLength:      200,
			MaxExpansionRounds:    &rounds,
		},
		Dedup: DedupConfig{SimilarityThreshold: 0.8},
		ContentExtraction: ContentExtraction{
			MinBodyLength:   500,
			TimeoutSeconds:  15,
			Concurrency:     4,
			CacheTTLMinutes: 24 * 60,
		},
		RSSSettings: RSSSettings{
			MaxArticlesPerFeed: 10,
			TimeoutSeconds:     30,
			RetryCount:         3,
			UserAgent:          "DailyInfo/1.0 (+https://github.com/deusflow/dailyinfo)",
		},
		History: HistoryConfig{
			Backend:        "file",
			Path:           filepath.Join("logs", "sent_messages.json"),
			RetentionHours: 7 * 24,
		},
		Monitoring: MonitoringConfig{Port: 8080},
	}
}

// Load reads path over the defaults, then applies environment overrides and
// loads the feeds file. A missing file is an error unless path is the
// default path.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(getenv)

	if cfg.RSSFeedsFile != "" {
		feedsPath := cfg.RSSFeedsFile
		if !filepath.IsAbs(feedsPath) {
			feedsPath = filepath.Join(filepath.Dir(path), feedsPath)
		}
		feeds, err := source.LoadFeeds(feedsPath)
		if err != nil {
			return nil, fmt.Errorf("load feeds: %w", err)
		}
		cfg.RSSFeeds = append(cfg.RSSFeeds, feeds...)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("GEMINI_API_KEYS"); v != "" {
		c.GeminiAPIKeys = splitList(v)
	}
	if v := getenv("OPENROUTER_API_KEYS"); v != "" {
		c.OpenRouterAPIKeys = splitList(v)
	}
	if v := getenv("WEBHOOK_URL"); v != "" {
		c.WebhookURL = v
	}
	if v := getenv("TELEGRAM_TOKEN"); v != "" {
		c.Push.TelegramToken = v
	}
	if v := getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Push.TelegramChatID = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.History.DSN = v
	}
	if v := getenv("NEWSAPI_API_KEY"); v != "" {
		c.NewsSources.NewsAPI.APIKey = v
	}
	if v := getenv("MEDIASTACK_API_KEY"); v != "" {
		c.NewsSources.MediaStack.APIKey = v
	}
	if getenv("DEBUG") == "true" {
		c.LogLevel = "debug"
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports the first problem that makes a run impossible.
func (c *Config) Validate() error {
	if _, _, err := ParseClock(c.DailyRunTime); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.MaxSendLimit < 1 {
		return fmt.Errorf("max_send_limit must be at least 1, got %d", c.MaxSendLimit)
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("dedup.similarity_threshold must be in (0,1], got %v", c.Dedup.SimilarityThreshold)
	}
	if s := c.AISettings.MinRelevanceScore; s < 0 || s > 10 {
		return fmt.Errorf("ai_settings.min_relevance_score must be in [0,10], got %v", s)
	}

	if len(c.AIPreference) == 0 {
		return fmt.Errorf("ai_preference is empty")
	}
	hasKeys := false
	for _, p := range c.AIPreference {
		switch p {
		case "gemini":
			hasKeys = hasKeys || len(c.GeminiAPIKeys) > 0
		case "openrouter":
			hasKeys = hasKeys || len(c.OpenRouterAPIKeys) > 0
		default:
			return fmt.Errorf("unknown AI provider %q in ai_preference", p)
		}
	}
	if !hasKeys {
		return ErrNoAIKeys
	}

	switch c.Push.Type {
	case "", "webhook":
		if c.WebhookURL == "" {
			return fmt.Errorf("%w: webhook_url is empty", ErrNoPushTarget)
		}
	case "telegram":
		if c.Push.TelegramToken == "" || c.Push.TelegramChatID == "" {
			return fmt.Errorf("%w: telegram token and chat id are required", ErrNoPushTarget)
		}
	default:
		return fmt.Errorf("unknown push type %q", c.Push.Type)
	}

	switch c.History.Backend {
	case "", "file", "sqlite", "memory":
	case "postgres":
		if c.History.DSN == "" {
			return fmt.Errorf("history backend postgres needs history.dsn or DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	return nil
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid daily_run_time %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

func (c *Config) Window() time.Duration {
	return time.Duration(c.TimeWindowHours) * time.Hour
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) ExpansionRounds() int {
	if c.AISettings.MaxExpansionRounds == nil {
		return 2
	}
	return *c.AISettings.MaxExpansionRounds
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) RequestTimeout() time.Duration { return seconds(c.AISettings.RequestTimeoutSeconds) }
func (c *Config) RetryDelay() time.Duration     { return seconds(c.AISettings.RetryDelaySeconds) }
func (c *Config) PushInterval() time.Duration   { return seconds(c.Push.IntervalSeconds) }
func (c *Config) PushTimeout() time.Duration    { return seconds(c.Push.TimeoutSeconds) }

func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.History.RetentionHours) * time.Hour
}
