package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOpenRouterComplete(t *testing.T) {
	var mu sync.Mutex
	var auths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "echo: " + req.Messages[0].Content},
			}},
		})
	}))
	defer srv.Close()

	c, err := NewOpenRouter([]string{"key-a", " ", "key-b"}, srv.URL, "test-model", srv.Client())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		got, err := c.Complete(context.Background(), "hello", 10)
		if err != nil {
			t.Fatalf("complete #%d: %v", i, err)
		}
		if got != "echo: hello" {
			t.Errorf("complete #%d = %q", i, got)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"Bearer key-a", "Bearer key-b", "Bearer key-a"}
	if diff := cmp.Diff(want, auths); diff != "" {
		t.Errorf("key rotation mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenRouterServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewOpenRouter([]string{"k"}, srv.URL, "", srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Complete(context.Background(), "x", 10); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestNewProvidersRequireKeys(t *testing.T) {
	if _, err := NewOpenRouter(nil, "", "", nil); !errors.Is(err, ErrNoKeys) {
		t.Errorf("openrouter err = %v, want ErrNoKeys", err)
	}
	if _, err := NewGemini(context.Background(), []string{""}, ""); !errors.Is(err, ErrNoKeys) {
		t.Errorf("gemini err = %v, want ErrNoKeys", err)
	}
}
