// Package client is a minimal Go client for the chat wire protocol, used by
// integration tests and external tooling.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	cidpkg "github.com/nothsaaaa/js-chat-server/internal/cid"
	"github.com/nothsaaaa/js-chat-server/pkg/protocol"
)

// buildDialHeaders constructs the HTTP header map used for websocket.Dial.
// Extracted to allow unit testing of header propagation.
func buildDialHeaders(ctx context.Context, userAgent string) map[string][]string {
	headers := map[string][]string{"User-Agent": {userAgent}}
	cidpkg.AddHeaderFromContext(headers, ctx)
	return headers
}

// EventHandler defines callbacks for handling server events.
type EventHandler interface {
	OnConnected()
	OnDisconnected()
	OnSystem(text string)
	OnChat(username, text string)
	OnTyping(username string)
	OnHistory(messages []Message)
	OnVoiceError(text string)
	OnServerEvent(event Event)
}

// DefaultEventHandler provides a basic logging implementation of
// EventHandler.
type DefaultEventHandler struct{}

func (h *DefaultEventHandler) OnConnected()                 { log.Printf("connected to server") }
func (h *DefaultEventHandler) OnDisconnected()              { log.Printf("disconnected from server") }
func (h *DefaultEventHandler) OnSystem(text string)         { log.Printf("[system] %s", text) }
func (h *DefaultEventHandler) OnChat(username, text string) { log.Printf("<%s> %s", username, text) }
func (h *DefaultEventHandler) OnTyping(username string)     { log.Printf("%s is typing", username) }
func (h *DefaultEventHandler) OnHistory(messages []Message) { log.Printf("history: %d messages", len(messages)) }
func (h *DefaultEventHandler) OnVoiceError(text string)     { log.Printf("voice error: %s", text) }
func (h *DefaultEventHandler) OnServerEvent(event Event)    { log.Printf("event: %s", event.Type) }

// Client is a chat protocol client. It captures the session token from the
// handshake and attaches it to every outbound frame.
type Client struct {
	config    Config
	conn      *websocket.Conn
	handler   EventHandler
	connected bool

	mu    sync.Mutex
	token string
}

func New(config Config) *Client {
	if config.UserAgent == "" {
		config.UserAgent = "js-chat-client/1.0"
	}
	return &Client{config: config, handler: &DefaultEventHandler{}}
}

// SetEventHandler sets a custom event handler.
func (c *Client) SetEventHandler(handler EventHandler) {
	c.handler = handler
}

// Token returns the session token, empty until the handshake frame arrives.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	return c.connected
}

// Connect establishes the websocket connection.
func (c *Client) Connect(ctx context.Context) error {
	url := c.config.ServerURL
	if c.config.Username != "" {
		url += "?username=" + c.config.Username
	}
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: buildDialHeaders(ctx, c.config.UserAgent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	c.conn = conn
	c.connected = true
	c.handler.OnConnected()
	return nil
}

// Disconnect closes the websocket connection.
func (c *Client) Disconnect() error {
	if c.conn != nil {
		c.connected = false
		err := c.conn.Close(websocket.StatusNormalClosure, "client disconnect")
		c.handler.OnDisconnected()
		return err
	}
	return nil
}

// Ping sends a liveness frame. Pings require no session token.
func (c *Client) Ping(ctx context.Context) error {
	return c.send(ctx, frame{Type: protocol.TypePing})
}

// SendChat sends a chat message or in-band command.
func (c *Client) SendChat(ctx context.Context, content string) error {
	token := c.Token()
	if token == "" {
		return fmt.Errorf("no session token yet")
	}
	return c.send(ctx, frame{Type: protocol.TypeChat, Token: token, Content: content})
}

// SendTyping sends a typing notification.
func (c *Client) SendTyping(ctx context.Context) error {
	token := c.Token()
	if token == "" {
		return fmt.Errorf("no session token yet")
	}
	return c.send(ctx, frame{Type: protocol.TypeTyping, Token: token})
}

// JoinVoice requests voice-room membership with the given media kinds.
func (c *Client) JoinVoice(ctx context.Context, mediaTypes []string) error {
	token := c.Token()
	if token == "" {
		return fmt.Errorf("no session token yet")
	}
	return c.send(ctx, frame{Type: protocol.TypeVoiceJoin, Token: token, MediaTypes: mediaTypes})
}

// LeaveVoice leaves the voice room.
func (c *Client) LeaveVoice(ctx context.Context) error {
	token := c.Token()
	if token == "" {
		return fmt.Errorf("no session token yet")
	}
	return c.send(ctx, frame{Type: protocol.TypeVoiceLeave, Token: token})
}

// ReadEvent reads and decodes one server frame, updating the captured token
// when the handshake frame arrives.
func (c *Client) ReadEvent(ctx context.Context) (Event, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		c.connected = false
		return Event{}, fmt.Errorf("read error: %w", err)
	}
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.Type == protocol.TypeSessionToken {
		c.mu.Lock()
		c.token = event.Token
		c.mu.Unlock()
	}
	return event, nil
}

// Listen reads server frames until the context is cancelled or the
// connection drops, dispatching each to the event handler.
func (c *Client) Listen(ctx context.Context) error {
	for {
		event, err := c.ReadEvent(ctx)
		if err != nil {
			return err
		}
		c.handleServerEvent(event)
	}
}

func (c *Client) send(ctx context.Context, f frame) error {
	if !c.connected {
		return fmt.Errorf("client not connected")
	}
	return wsjson.Write(ctx, c.conn, f)
}

func (c *Client) handleServerEvent(event Event) {
	switch event.Type {
	case protocol.TypeSystem:
		c.handler.OnSystem(event.Text)
	case protocol.TypeChat:
		c.handler.OnChat(event.Username, event.Text)
	case protocol.TypeTyping:
		c.handler.OnTyping(event.Username)
	case protocol.TypeHistory:
		c.handler.OnHistory(event.Messages)
	case protocol.TypeVoiceError:
		c.handler.OnVoiceError(event.Error)
	default:
		c.handler.OnServerEvent(event)
	}
}
