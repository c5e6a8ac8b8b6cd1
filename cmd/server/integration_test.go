package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/nothsaaaa/js-chat-server/internal/config"
	"github.com/nothsaaaa/js-chat-server/internal/server"
	"github.com/nothsaaaa/js-chat-server/internal/store"
)

func newTestStack(t *testing.T, mutate func(cfg *config.Config)) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "chat.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	bans, err := store.LoadNameList(filepath.Join(dir, "banned.json"))
	if err != nil {
		t.Fatalf("load ban list: %v", err)
	}
	admins, err := store.LoadNameList(filepath.Join(dir, "admins.json"))
	if err != nil {
		t.Fatalf("load admin list: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chat := server.New(cfg, logger, st, bans, admins)
	srv := NewServer(cfg, logger, chat)

	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return ts
}

func dialWS(ctx context.Context, t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws"+ts.URL[4:]+"/ws"+query, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func readEvent(ctx context.Context, t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var event map[string]any
	if err := wsjson.Read(ctx, conn, &event); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return event
}

// TestHandshake verifies the fixed greeting order for a guest connection:
// session token, heartbeat configuration, history, then the join notice.
func TestHandshake(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, ts, "?username=alice")

	tokenEvt := readEvent(ctx, t, conn)
	if tokenEvt["type"] != "session-token" {
		t.Fatalf("expected session-token first, got %v", tokenEvt["type"])
	}
	if token, _ := tokenEvt["token"].(string); token == "" {
		t.Fatalf("expected a non-empty session token")
	}

	hb := readEvent(ctx, t, conn)
	if hb["type"] != "heartbeat-config" {
		t.Fatalf("expected heartbeat-config, got %v", hb["type"])
	}
	if hb["interval"].(float64) != 30000 || hb["timeout"].(float64) != 60000 {
		t.Fatalf("unexpected heartbeat configuration: %v", hb)
	}

	history := readEvent(ctx, t, conn)
	if history["type"] != "history" {
		t.Fatalf("expected history, got %v", history["type"])
	}
	if history["messages"] == nil {
		t.Fatalf("expected history messages to be present, even when empty")
	}

	join := readEvent(ctx, t, conn)
	if join["type"] != "system" || join["text"] != "alice has joined." {
		t.Fatalf("expected join notice, got %v", join)
	}
}

func TestPingPongAndChatRoundTrip(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, ts, "?username=alice")
	tokenEvt := readEvent(ctx, t, conn)
	token := tokenEvt["token"].(string)
	for i := 0; i < 3; i++ {
		readEvent(ctx, t, conn) // heartbeat-config, history, join notice
	}

	if err := wsjson.Write(ctx, conn, map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("ping write failed: %v", err)
	}
	pong := readEvent(ctx, t, conn)
	if pong["type"] != "pong" {
		t.Fatalf("expected pong, got %v", pong["type"])
	}
	if pong["timestamp"].(float64) == 0 {
		t.Fatalf("expected pong to carry a timestamp")
	}

	if err := wsjson.Write(ctx, conn, map[string]any{
		"type": "chat", "token": token, "content": "hello there",
	}); err != nil {
		t.Fatalf("chat write failed: %v", err)
	}
	msg := readEvent(ctx, t, conn)
	if msg["type"] != "chat" || msg["username"] != "alice" || msg["text"] != "hello there" {
		t.Fatalf("unexpected chat echo: %v", msg)
	}
}

func TestConnectionWindowRejection(t *testing.T) {
	ts := newTestStack(t, func(cfg *config.Config) {
		cfg.Limits.MaxConnectionsPerWindow = 1
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := dialWS(ctx, t, ts, "?username=alice")
	if evt := readEvent(ctx, t, first); evt["type"] != "session-token" {
		t.Fatalf("expected the first connection to be admitted, got %v", evt)
	}

	second := dialWS(ctx, t, ts, "?username=bob")
	notice := readEvent(ctx, t, second)
	if notice["type"] != "system" {
		t.Fatalf("expected a system rejection notice, got %v", notice)
	}
	text, _ := notice["text"].(string)
	if !strings.HasPrefix(text, "Too many connections") {
		t.Fatalf("expected a rate limit notice, got %q", text)
	}

	// The transport is closed right after the notice.
	var discard map[string]any
	if err := wsjson.Read(ctx, second, &discard); err == nil {
		t.Fatalf("expected the rejected connection to be closed, read %v", discard)
	}
}

// TestHeartbeatTimeout verifies a silent client is disconnected: the
// supervisor sends the timeout notice and then drops the transport.
func TestHeartbeatTimeout(t *testing.T) {
	ts := newTestStack(t, func(cfg *config.Config) {
		cfg.Heartbeat.Interval = 50 * time.Millisecond
		cfg.Heartbeat.Timeout = 100 * time.Millisecond
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, ts, "?username=alice")

	// Greeting events first, then the timeout notice once the supervisor
	// gives up on us.
	for {
		evt := readEvent(ctx, t, conn)
		if evt["type"] == "system" && evt["text"] == "Disconnected: heartbeat timeout." {
			break
		}
	}

	var discard map[string]any
	if err := wsjson.Read(ctx, conn, &discard); err == nil {
		t.Fatalf("expected the connection to be closed after the timeout notice, read %v", discard)
	}
}

// TestHeartbeatKeepsActiveClient verifies a client that pings on schedule
// outlives several timeout windows.
func TestHeartbeatKeepsActiveClient(t *testing.T) {
	ts := newTestStack(t, func(cfg *config.Config) {
		cfg.Heartbeat.Interval = 50 * time.Millisecond
		cfg.Heartbeat.Timeout = 300 * time.Millisecond
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, ts, "?username=alice")
	tokenEvt := readEvent(ctx, t, conn)
	token := tokenEvt["token"].(string)
	for i := 0; i < 3; i++ {
		readEvent(ctx, t, conn) // heartbeat-config, history, join notice
	}

	for i := 0; i < 8; i++ {
		if err := wsjson.Write(ctx, conn, map[string]any{"type": "ping"}); err != nil {
			t.Fatalf("ping write failed: %v", err)
		}
		if pong := readEvent(ctx, t, conn); pong["type"] != "pong" {
			t.Fatalf("expected pong, got %v", pong["type"])
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Well past the original timeout now; the connection must still carry
	// application traffic.
	if err := wsjson.Write(ctx, conn, map[string]any{
		"type": "chat", "token": token, "content": "still here",
	}); err != nil {
		t.Fatalf("chat write failed: %v", err)
	}
	if msg := readEvent(ctx, t, conn); msg["type"] != "chat" || msg["text"] != "still here" {
		t.Fatalf("unexpected chat echo: %v", msg)
	}
}

func TestServerInfoEndpoint(t *testing.T) {
	ts := newTestStack(t, func(cfg *config.Config) {
		cfg.Server.Name = "test server"
	})

	resp, err := http.Get(ts.URL + "/server-info")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var info struct {
		ServerName          string `json:"serverName"`
		TotalMaxConnections int    `json:"totalMaxConnections"`
		CurrentOnline       int    `json:"currentOnline"`
		VoiceParticipants   int    `json:"voiceParticipants"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if info.ServerName != "test server" {
		t.Fatalf("expected serverName to round-trip, got %q", info.ServerName)
	}
	if info.TotalMaxConnections != 100 || info.CurrentOnline != 0 || info.VoiceParticipants != 0 {
		t.Fatalf("unexpected server info: %+v", info)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestStack(t, nil)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
