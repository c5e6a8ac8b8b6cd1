// Package server implements the chat protocol engine: websocket admission,
// session lifecycle, message dispatch, commands, and broadcast fan-out.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nothsaaaa/js-chat-server/internal/admission"
	"github.com/nothsaaaa/js-chat-server/internal/cid"
	"github.com/nothsaaaa/js-chat-server/internal/config"
	"github.com/nothsaaaa/js-chat-server/internal/state"
	"github.com/nothsaaaa/js-chat-server/internal/store"
	"github.com/nothsaaaa/js-chat-server/internal/throttle"
	"github.com/nothsaaaa/js-chat-server/internal/types"
	"github.com/nothsaaaa/js-chat-server/internal/voice"
)

// ChatServer wires the protocol components together. One instance per
// process; tests construct their own with a fresh registry and limiter.
type ChatServer struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *state.Registry
	admitter *admission.Controller
	logins   *throttle.LoginLimiter
	store    *store.Store
	bans     *store.NameList
	admins   *store.NameList
	relay    *voice.Relay
}

func New(cfg *config.Config, logger *slog.Logger, st *store.Store, bans, admins *store.NameList) *ChatServer {
	cs := &ChatServer{
		cfg:      cfg,
		logger:   logger,
		registry: state.NewRegistry(),
		admitter: admission.NewController(cfg.Limits),
		logins:   throttle.NewLoginLimiter(cfg.Login.AttemptLimit, cfg.Login.BlockDuration),
		store:    st,
		bans:     bans,
		admins:   admins,
	}
	cs.relay = voice.NewRelay(cfg.WebRTC, logger, cs)
	return cs
}

// Registry exposes the live-connection set for read-only consumers such as
// the server-info endpoint.
func (cs *ChatServer) Registry() *state.Registry { return cs.registry }

// Relay exposes the voice relay for read-only consumers.
func (cs *ChatServer) Relay() *voice.Relay { return cs.relay }

// HandleWebSocket upgrades the request and runs the connection to
// completion.
func (cs *ChatServer) HandleWebSocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		cs.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	addr := c.ClientIP()
	logger := cs.logger.With("addr", addr, "cid", cid.FromContext(c.Request.Context()))

	if err := cs.admitter.Admit(addr, cs.registry.Len()); err != nil {
		cs.rejectConnection(c.Request.Context(), conn, err)
		logger.Warn("connection rejected", "reason", err)
		return
	}
	cs.admitter.Connected(addr)
	defer cs.admitter.Disconnected(addr)

	session, err := state.NewSession(addr)
	if err != nil {
		logger.Error("session setup failed", "error", err)
		conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}

	cs.runSession(c.Request.Context(), conn, session, c.Query("username"), logger)
}

// rejectConnection sends the single explanatory notice and closes the
// transport. The registry is never touched for rejected connections.
func (cs *ChatServer) rejectConnection(ctx context.Context, conn *websocket.Conn, reason error) {
	notice := "Connection rejected."
	switch {
	case errors.Is(reason, admission.ErrServerFull):
		notice = "Server is full. Please try again later."
	case errors.Is(reason, admission.ErrRateLimited):
		notice = fmt.Sprintf("Too many connections from this IP. Limit is %d every %d seconds.",
			cs.cfg.Limits.MaxConnectionsPerWindow, int(cs.cfg.Limits.ConnectionWindow.Seconds()))
	case errors.Is(reason, admission.ErrTooManyConcurrent):
		notice = "Too many concurrent connections from this IP."
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if data, err := marshalSystem(notice); err == nil {
		_ = conn.Write(writeCtx, websocket.MessageText, data)
	}
	conn.Close(websocket.StatusPolicyViolation, "rejected")
}

func (cs *ChatServer) runSession(ctx context.Context, conn *websocket.Conn, session *state.Session, desiredName string, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go cs.writePump(ctx, conn, session)

	session.Send(types.SessionTokenEvent{Type: types.EventSessionToken, Token: session.Token})
	session.Send(types.HeartbeatConfigEvent{
		Type:     types.EventHeartbeatConfig,
		Interval: cs.cfg.Heartbeat.Interval.Milliseconds(),
		Timeout:  cs.cfg.Heartbeat.Timeout.Milliseconds(),
	})

	cs.registry.Add(session)
	defer cs.teardown(session, logger)

	if cs.cfg.Auth.Enabled {
		cs.sendSystem(session, "Authentication required. Use /register <username> <password> or /login <username> <password> in message content.")
	} else {
		if !cs.establishGuestName(session, desiredName, logger) {
			return
		}
	}

	go cs.superviseHeartbeat(ctx, session)

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		cs.dispatch(session, data)
		if session.IsClosed() {
			return
		}
	}
}

// establishGuestName claims a client-supplied or generated display name when
// authentication is disabled. Illegal, banned and taken names are fatal to
// the connection.
func (cs *ChatServer) establishGuestName(session *state.Session, desired string, logger *slog.Logger) bool {
	if desired == "" {
		desired = generateGuestName()
	}
	name := types.ClampUsername(desired)

	if !types.ValidUsername(name) {
		cs.closeWithNotice(session, "Illegal username.")
		return false
	}
	if cs.bans.Contains(name) {
		cs.closeWithNotice(session, "You are banned.")
		return false
	}
	if err := cs.registry.ClaimName(session, name); err != nil {
		cs.closeWithNotice(session, "Username taken.")
		return false
	}

	logger.Info("JOIN", "username", name)
	cs.sendHistory(session)
	cs.sendMOTD(session)
	cs.Announce(fmt.Sprintf("%s has joined.", name))
	return true
}

// generateGuestName produces a fallback display name within the name
// grammar.
func generateGuestName() string {
	id := uuid.NewString()
	return "Guest_" + id[:8]
}

// superviseHeartbeat closes the session when no liveness signal has arrived
// within the configured timeout.
func (cs *ChatServer) superviseHeartbeat(ctx context.Context, session *state.Session) {
	ticker := time.NewTicker(cs.cfg.Heartbeat.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Done():
			return
		case now := <-ticker.C:
			if now.Sub(session.LastHeartbeat()) > cs.cfg.Heartbeat.Timeout {
				cs.closeWithNotice(session, "Disconnected: heartbeat timeout.")
				return
			}
		}
	}
}

// writePump drains the session's outbound queue onto the transport. On
// session close it flushes whatever is already queued, then closes the
// transport, which in turn unblocks the read loop.
func (cs *ChatServer) writePump(ctx context.Context, conn *websocket.Conn, session *state.Session) {
	defer conn.Close(websocket.StatusNormalClosure, "")
	for {
		select {
		case data := <-session.Outbound():
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				session.Close()
				return
			}
		case <-session.Done():
			for {
				select {
				case data := <-session.Outbound():
					writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					err := conn.Write(writeCtx, websocket.MessageText, data)
					cancel()
					if err != nil {
						return
					}
				default:
					return
				}
			}
		case <-ctx.Done():
			session.Close()
			return
		}
	}
}

// teardown runs exactly once per connection, on whatever close cause fires
// first: transport error, kick, ban or heartbeat timeout.
func (cs *ChatServer) teardown(session *state.Session, logger *slog.Logger) {
	session.Close()
	cs.relay.HandleDisconnect(session)
	name := session.Username()
	cs.registry.Remove(session)
	if name != "" {
		logger.Info("LEAVE", "username", name)
		cs.Announce(fmt.Sprintf("%s has left.", name))
	}
}

// closeWithNotice queues one explanatory system notice and closes the
// session; the write pump flushes the notice before dropping the transport.
func (cs *ChatServer) closeWithNotice(session *state.Session, text string) {
	cs.sendSystem(session, text)
	session.Close()
}

func (cs *ChatServer) sendSystem(session *state.Session, text string) {
	session.Send(types.SystemMessage(text))
}

func (cs *ChatServer) sendHistory(session *state.Session) {
	messages, err := cs.store.RecentMessages(cs.cfg.History.Limit)
	if err != nil {
		cs.logger.Error("history query failed", "error", err)
		return
	}
	if messages == nil {
		messages = []types.ChatMessage{}
	}
	session.Send(types.HistoryEvent{Type: types.EventHistory, Messages: messages})
}

func (cs *ChatServer) sendMOTD(session *state.Session) {
	if cs.cfg.Server.MOTD != "" {
		cs.sendSystem(session, "MOTD: "+cs.cfg.Server.MOTD)
	}
}
