package server

import (
	"encoding/json"
	"time"

	"github.com/nothsaaaa/js-chat-server/internal/state"
	"github.com/nothsaaaa/js-chat-server/internal/types"
)

func marshalSystem(text string) ([]byte, error) {
	return json.Marshal(types.SystemMessage(text))
}

// eligible reports whether a session may receive broadcasts at all: the
// transport is open and, on authenticating servers, the session has logged
// in.
func (cs *ChatServer) eligible(s *state.Session) bool {
	if s.IsClosed() {
		return false
	}
	if cs.cfg.Auth.Enabled && !s.IsAuthenticated() {
		return false
	}
	return true
}

// Broadcast fans a message out to every eligible session. System messages go
// to all of them; chat messages additionally skip recipients that currently
// block the author, expiring stale block entries on the way.
func (cs *ChatServer) Broadcast(msg types.ChatMessage) {
	now := time.Now()
	for _, s := range cs.registry.Snapshot() {
		if !cs.eligible(s) {
			continue
		}
		if msg.Type != types.EventSystem && msg.Username != "" &&
			s.HasBlocked(msg.Username, now, cs.cfg.Block.Duration) {
			continue
		}
		s.Send(msg)
	}
}

// Announce broadcasts a system message and persists it. Satisfies
// voice.Announcer.
func (cs *ChatServer) Announce(text string) {
	msg := types.SystemMessage(text)
	cs.Broadcast(msg)
	if err := cs.store.SaveMessage(msg); err != nil {
		cs.logger.Error("failed to persist system message", "error", err)
	}
}

// broadcastTyping sends a typing notice to every eligible session except the
// typist. Typing is non-authoritative and never persisted.
func (cs *ChatServer) broadcastTyping(from *state.Session) {
	event := types.TypingEvent{Type: types.EventTyping, Username: from.Username()}
	for _, s := range cs.registry.Snapshot() {
		if s == from || !cs.eligible(s) {
			continue
		}
		s.Send(event)
	}
}
