package push

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/deusflow/dailyinfo/internal/retry"
)

var sample = Message{MessageType: "text", Title: "Solar <breakthrough>", Content: "Body & more", OriginalLink: "https://a.example/1"}

func TestWebhookPush(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		reply   string
		wantErr bool
	}{
		{name: "feishu ok", status: 200, reply: `{"code":0,"msg":"success"}`},
		{name: "feishu rejected", status: 200, reply: `{"code":19001,"msg":"param invalid"}`, wantErr: true},
		{name: "plain 204", status: 204},
		{name: "non json 200", status: 200, reply: "ok"},
		{name: "server error", status: 500, reply: "boom", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			received := make(chan Message, 1)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Content-Type") != "application/json" {
					t.Errorf("content type = %q", r.Header.Get("Content-Type"))
				}
				var m Message
				_ = json.NewDecoder(r.Body).Decode(&m)
				received <- m
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.reply)
			}))
			defer srv.Close()

			err := NewWebhook(srv.URL, srv.Client()).Push(context.Background(), sample)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Push() err = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(sample, <-received); diff != "" {
				t.Errorf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatHTML(t *testing.T) {
	want := "<b>Solar &lt;breakthrough&gt;</b>\n\nBody &amp; more\n\n<a href=\"https://a.example/1\">Source</a>"
	if got := FormatHTML(sample); got != want {
		t.Errorf("FormatHTML() = %q, want %q", got, want)
	}
}

func TestTelegramPush(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["chat_id"] != "42" || payload["parse_mode"] != "HTML" {
			t.Errorf("payload = %v", payload)
		}
		if !strings.Contains(payload["text"].(string), "<b>Solar") {
			t.Errorf("text = %v", payload["text"])
		}
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42", srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithBaseURL(srv.URL), WithRetry(retry.RetryConfig{MaxAttempts: 3, Delay: time.Millisecond}))
	if err := tg.Push(context.Background(), sample); err != nil {
		t.Fatalf("Push() = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls.Load())
	}
}

func TestTelegramClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	tg := NewTelegram("T", "1", srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithBaseURL(srv.URL), WithRetry(retry.RetryConfig{MaxAttempts: 3, Delay: time.Millisecond}))
	if err := tg.Push(context.Background(), sample); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
