package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/dailyinfo/internal/retry"
)

const telegramAPI = "https://api.telegram.org"

// Telegram sends messages through the Bot API sendMessage method.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  Doer
	retry   retry.RetryConfig
	log     *slog.Logger
}

type TelegramOption func(*Telegram)

// WithBaseURL points the pusher at a different Bot API host.
func WithBaseURL(u string) TelegramOption {
	return func(t *Telegram) { t.baseURL = strings.TrimRight(u, "/") }
}

// WithRetry overrides the send retry policy.
func WithRetry(cfg retry.RetryConfig) TelegramOption {
	return func(t *Telegram) { t.retry = cfg }
}

func NewTelegram(token, chatID string, client Doer, log *slog.Logger, opts ...TelegramOption) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	t := &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPI,
		client:  client,
		retry:   retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
		log:     log,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// FormatHTML renders msg in Telegram's HTML parse mode.
func FormatHTML(msg Message) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(msg.Title))
	b.WriteString("</b>\n\n")
	b.WriteString(html.EscapeString(msg.Content))
	if msg.OriginalLink != "" {
		fmt.Fprintf(&b, "\n\n<a href=\"%s\">Source</a>", html.EscapeString(msg.OriginalLink))
	}
	return b.String()
}

func (t *Telegram) Push(ctx context.Context, msg Message) error {
	text := FormatHTML(msg)
	attempts, err := retry.WithRetry(ctx, t.retry, func(attempt int) error {
		err := t.sendMessageOnce(ctx, text)
		if err != nil {
			t.log.Warn("telegram send failed", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return err
	}
	t.log.Debug("message sent to telegram", "attempts", attempts)
	return nil
}

func (t *Telegram) sendMessageOnce(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("error make JSON: %w", err))
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("telegram API error: status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}
	return nil
}
