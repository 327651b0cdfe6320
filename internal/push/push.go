// Package push delivers formatted digest messages to a messaging endpoint.
package push

import (
	"context"
	"net/http"
)

// Message is the outbound shape of one digest entry.
type Message struct {
	MessageType  string `json:"message_type"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	OriginalLink string `json:"original_link"`
}

// Pusher sends one message. A nil error means the endpoint confirmed it.
type Pusher interface {
	Push(ctx context.Context, msg Message) error
}

// Doer is the subset of *http.Client used by the HTTP pushers.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}
