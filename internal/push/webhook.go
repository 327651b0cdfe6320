package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Webhook posts messages as JSON. A 2xx reply is required; when the reply
// body carries a "code" field (Feishu style) it must be 0.
type Webhook struct {
	url    string
	client Doer
}

func NewWebhook(url string, client Doer) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Webhook{url: url, client: client}
}

type webhookReply struct {
	Code *int   `json:"code"`
	Msg  string `json:"msg"`
}

func (w *Webhook) Push(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	reply, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook error: status %d: %s", resp.StatusCode, bytes.TrimSpace(reply))
	}

	var r webhookReply
	if json.Unmarshal(reply, &r) == nil && r.Code != nil && *r.Code != 0 {
		return fmt.Errorf("webhook rejected message: code %d: %s", *r.Code, r.Msg)
	}
	return nil
}
