package client

import (
	"context"
	"testing"

	cidpkg "github.com/nothsaaaa/js-chat-server/internal/cid"
)

func TestBuildDialHeadersIncludesCID(t *testing.T) {
	ctx := cidpkg.WithCID(context.Background(), "unit-test-cid-42")
	h := buildDialHeaders(ctx, "test-agent/1.0")
	if got := h[cidpkg.HeaderName]; len(got) == 0 || got[0] != "unit-test-cid-42" {
		t.Fatalf("expected header %s=%s, got %v", cidpkg.HeaderName, "unit-test-cid-42", got)
	}
	if got := h["User-Agent"]; len(got) == 0 || got[0] != "test-agent/1.0" {
		t.Fatalf("expected User-Agent to be set, got %v", got)
	}
}

func TestNewDefaultsUserAgent(t *testing.T) {
	c := New(Config{ServerURL: "ws://localhost:3000/ws"})
	if c.config.UserAgent == "" {
		t.Fatalf("expected a default user agent")
	}
}
