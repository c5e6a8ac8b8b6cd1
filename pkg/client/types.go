package client

import (
	"encoding/json"
	"time"
)

// Config controls how the client connects.
type Config struct {
	ServerURL string // ws:// or wss:// URL of the /ws endpoint
	Username  string // desired display name, appended as a query parameter
	UserAgent string
}

// Event is the decoded envelope of a server frame. Fields beyond Type are
// populated depending on the event.
type Event struct {
	Type      string          `json:"type"`
	Token     string          `json:"token,omitempty"`
	Text      string          `json:"text,omitempty"`
	Username  string          `json:"username,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Interval  int64           `json:"interval,omitempty"`
	Timeout   int64           `json:"timeout,omitempty"`
	Messages  []Message       `json:"messages,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Message is one entry of the history replayed on join.
type Message struct {
	Type      string    `json:"type"`
	Username  string    `json:"username,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// frame is the client-to-server envelope.
type frame struct {
	Type       string   `json:"type"`
	Token      string   `json:"token,omitempty"`
	Content    string   `json:"content,omitempty"`
	MediaTypes []string `json:"mediaTypes,omitempty"`
}
