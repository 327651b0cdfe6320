package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deusflow/dailyinfo/internal/ai"
	"github.com/deusflow/dailyinfo/internal/cache"
	"github.com/deusflow/dailyinfo/internal/config"
	"github.com/deusflow/dailyinfo/internal/dedup"
	"github.com/deusflow/dailyinfo/internal/delivery"
	"github.com/deusflow/dailyinfo/internal/enrich"
	"github.com/deusflow/dailyinfo/internal/evaluator"
	"github.com/deusflow/dailyinfo/internal/history"
	"github.com/deusflow/dailyinfo/internal/metrics"
	"github.com/deusflow/dailyinfo/internal/news"
	"github.com/deusflow/dailyinfo/internal/pipeline"
	"github.com/deusflow/dailyinfo/internal/push"
	"github.com/deusflow/dailyinfo/internal/ratelimit"
	"github.com/deusflow/dailyinfo/internal/retry"
	"github.com/deusflow/dailyinfo/internal/scheduler"
	"github.com/deusflow/dailyinfo/internal/source"
)

const defaultSQLitePath = "logs/history.db"

type app struct {
	pipeline *pipeline.Pipeline
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp wires every pipeline stage from cfg. On error everything opened so
// far is closed.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	chain, err := a.buildChain(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := openHistory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open send history: %w", err)
	}
	a.closers = append(a.closers, func() { _ = store.Close() })

	pusher, err := buildPusher(cfg, log)
	if err != nil {
		return nil, err
	}

	window := cfg.Window()
	minScore := cfg.AISettings.MinRelevanceScore
	p := &pipeline.Pipeline{
		Sources:       buildSources(cfg, log),
		SourceTimeout: 2 * time.Minute,
		Normalizer:    news.Normalizer{Window: window},
		Dedup:         dedup.Deduplicator{Threshold: cfg.Dedup.SimilarityThreshold, Window: window},
		Store:         store,
		Evaluator: evaluator.New(chain, evaluator.Config{
			MinScore:           &minScore,
			MinContentLength:   cfg.AISettings.MinContentLength,
			MaxExpansionRounds: cfg.ExpansionRounds(),
			Concurrency:        cfg.AISettings.Concurrency,
		}, log),
		Gate: delivery.NewGate(pusher, store, delivery.Config{
			MaxSend:  cfg.MaxSendLimit,
			Window:   window,
			Interval: cfg.PushInterval(),
		}, log),
		Metrics: metrics.Global,
		Log:     log,
	}

	if cfg.ContentExtraction.Enabled {
		c := cache.New[string](10 * time.Minute)
		a.closers = append(a.closers, c.Close)
		p.Enricher = enrich.New(nil, enrich.Config{
			MinBodyLength: cfg.ContentExtraction.MinBodyLength,
			Timeout:       time.Duration(cfg.ContentExtraction.TimeoutSeconds) * time.Second,
			Concurrency:   cfg.ContentExtraction.Concurrency,
			UserAgent:     cfg.RSSSettings.UserAgent,
			CacheTTL:      time.Duration(cfg.ContentExtraction.CacheTTLMinutes) * time.Minute,
		}, c, log)
	}

	a.pipeline = p
	return a, nil
}

// buildChain creates one provider per ai_preference entry that has keys.
func (a *app) buildChain(ctx context.Context, cfg *config.Config, log *slog.Logger) (*ai.Chain, error) {
	prompts := ai.Prompts{
		Evaluation:   cfg.AISettings.Prompts.EvaluationPrompt,
		Optimization: cfg.AISettings.Prompts.OptimizationPrompt,
		Expansion:    cfg.AISettings.Prompts.ExpansionPrompt,
		Language:     cfg.AISettings.TargetLanguage,
	}
	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}

	var providers []ai.Provider
	for _, name := range cfg.AIPreference {
		switch name {
		case "openrouter":
			if len(ai.CleanKeys(cfg.OpenRouterAPIKeys)) == 0 {
				log.Warn("skipping provider without keys", "provider", name)
				continue
			}
			c, err := ai.NewOpenRouter(cfg.OpenRouterAPIKeys, cfg.OpenRouterEndpoint, cfg.OpenRouterModel, httpClient)
			if err != nil {
				return nil, err
			}
			providers = append(providers, ai.NewModel(name, c, prompts))
		case "gemini":
			if len(ai.CleanKeys(cfg.GeminiAPIKeys)) == 0 {
				log.Warn("skipping provider without keys", "provider", name)
				continue
			}
			c, err := ai.NewGemini(ctx, cfg.GeminiAPIKeys, cfg.GeminiModel)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, c.Close)
			providers = append(providers, ai.NewModel(name, c, prompts))
		default:
			return nil, fmt.Errorf("unknown AI provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, config.ErrNoAIKeys
	}

	var limiter *ratelimit.AIRateLimiter
	if len(cfg.AISettings.MaxRequests) > 0 {
		limiter = ratelimit.NewAIRateLimiter(cfg.AISettings.MaxRequests, log)
	}

	chain := ai.NewChain(providers, ai.ChainConfig{
		Attempts: cfg.AISettings.RetryCount,
		Delay:    cfg.RetryDelay(),
		Timeout:  cfg.RequestTimeout(),
	}, limiter, log)
	log.Info("AI providers ready", "order", strings.Join(chain.Providers(), ","))
	return chain, nil
}

func openHistory(ctx context.Context, cfg *config.Config) (history.Store, error) {
	opts := history.Options{
		Backend:   cfg.History.Backend,
		Path:      cfg.History.Path,
		DSN:       cfg.History.DSN,
		Retention: cfg.HistoryRetention(),
	}
	if opts.Backend == "sqlite" {
		if opts.Path == "" || strings.HasSuffix(opts.Path, ".json") {
			opts.Path = defaultSQLitePath
		}
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, err
		}
	}
	return history.Open(ctx, opts)
}

func buildPusher(cfg *config.Config, log *slog.Logger) (push.Pusher, error) {
	client := &http.Client{Timeout: cfg.PushTimeout()}
	switch cfg.Push.Type {
	case "", "webhook":
		return push.NewWebhook(cfg.WebhookURL, client), nil
	case "telegram":
		return push.NewTelegram(cfg.Push.TelegramToken, cfg.Push.TelegramChatID, client, log,
			push.WithRetry(retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true}),
		), nil
	default:
		return nil, fmt.Errorf("unknown push type %q", cfg.Push.Type)
	}
}

func buildSources(cfg *config.Config, log *slog.Logger) []source.Source {
	var sources []source.Source
	if len(cfg.RSSFeeds) > 0 {
		sources = append(sources, source.NewRSS(cfg.RSSFeeds, nil, source.RSSConfig{
			MaxArticlesPerFeed: cfg.RSSSettings.MaxArticlesPerFeed,
			Timeout:            time.Duration(cfg.RSSSettings.TimeoutSeconds) * time.Second,
			RetryCount:         cfg.RSSSettings.RetryCount,
			UserAgent:          cfg.RSSSettings.UserAgent,
		}, log))
	}
	if s := cfg.NewsSources.NewsAPI; s.Enabled {
		sources = append(sources, source.NewNewsAPI(nil, apiConfig(s, cfg.Window()), log))
	}
	if s := cfg.NewsSources.MediaStack; s.Enabled {
		sources = append(sources, source.NewMediaStack(nil, apiConfig(s, cfg.Window()), log))
	}
	if len(sources) == 0 {
		log.Warn("no news sources configured")
	}
	return sources
}

func apiConfig(s config.APISource, window time.Duration) source.APIConfig {
	return source.APIConfig{
		APIKey:     s.APIKey,
		Category:   s.Category,
		Limit:      s.Limit,
		Window:     window,
		Timeout:    time.Duration(s.TimeoutSeconds) * time.Second,
		RetryCount: s.RetryCount,
		BaseURL:    s.BaseURL,
	}
}

func (a *app) scheduler(cfg *config.Config) (*scheduler.Scheduler, error) {
	hour, minute, err := config.ParseClock(cfg.DailyRunTime)
	if err != nil {
		return nil, err
	}
	return scheduler.New(hour, minute, cfg.Location(), func(ctx context.Context) error {
		_, err := a.pipeline.RunOnce(ctx)
		return err
	}, a.pipeline.Log), nil
}

func printStatus(w io.Writer, cfg *config.Config, validateErr error) {
	fmt.Fprintf(w, "daily run:      %s (%s)\n", cfg.DailyRunTime, cfg.Timezone)
	fmt.Fprintf(w, "time window:    %dh\n", cfg.TimeWindowHours)
	fmt.Fprintf(w, "max send:       %d\n", cfg.MaxSendLimit)
	fmt.Fprintf(w, "push:           %s\n", pushTarget(cfg))
	fmt.Fprintf(w, "ai preference:  %s\n", strings.Join(cfg.AIPreference, " -> "))
	fmt.Fprintf(w, "  gemini keys:      %d\n", len(ai.CleanKeys(cfg.GeminiAPIKeys)))
	fmt.Fprintf(w, "  openrouter keys:  %d\n", len(ai.CleanKeys(cfg.OpenRouterAPIKeys)))
	fmt.Fprintf(w, "min score:      %.1f\n", cfg.AISettings.MinRelevanceScore)
	fmt.Fprintf(w, "rss feeds:      %d\n", len(cfg.RSSFeeds))
	fmt.Fprintf(w, "newsapi:        %t\n", cfg.NewsSources.NewsAPI.Enabled)
	fmt.Fprintf(w, "mediastack:     %t\n", cfg.NewsSources.MediaStack.Enabled)
	fmt.Fprintf(w, "enrichment:     %t\n", cfg.ContentExtraction.Enabled)
	fmt.Fprintf(w, "history:        %s\n", cfg.History.Backend)
	if validateErr != nil {
		fmt.Fprintf(w, "config:         INVALID: %v\n", validateErr)
	} else {
		fmt.Fprintf(w, "config:         ok\n")
	}
}

func pushTarget(cfg *config.Config) string {
	if cfg.Push.Type == "telegram" {
		return "telegram chat " + cfg.Push.TelegramChatID
	}
	if cfg.WebhookURL == "" {
		return "webhook (not set)"
	}
	return "webhook"
}
