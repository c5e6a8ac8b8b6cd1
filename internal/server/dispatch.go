package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nothsaaaa/js-chat-server/internal/state"
	"github.com/nothsaaaa/js-chat-server/internal/types"
)

// dispatch validates one inbound frame and routes it. The pipeline
// short-circuits at the first failure; every rejection produces exactly one
// reply and leaves the connection open unless noted otherwise.
func (cs *ChatServer) dispatch(session *state.Session, raw []byte) {
	if !gjson.ValidBytes(raw) || !gjson.GetBytes(raw, "type").Exists() {
		cs.sendSystem(session, "Invalid message format. Messages must be a structured message with a type field.")
		return
	}
	typ := gjson.GetBytes(raw, "type").String()

	// Liveness frames bypass everything, including token checks.
	if typ == types.EventPing {
		now := time.Now()
		session.TouchHeartbeat(now)
		session.Send(types.PongEvent{Type: types.EventPong, Timestamp: now.UnixMilli()})
		return
	}

	token := gjson.GetBytes(raw, "token").String()

	if strings.HasPrefix(typ, types.VoicePrefix) {
		if token != session.Token {
			session.Send(types.VoiceErrorEvent{Type: types.EventVoiceError, Error: "Invalid session token"})
			return
		}
		if cs.relay == nil {
			session.Send(types.VoiceErrorEvent{Type: types.EventVoiceError, Error: "Voice relay not initialized"})
			return
		}
		cs.dispatchVoice(session, typ, raw)
		return
	}

	if token != session.Token {
		cs.sendSystem(session, "Invalid session token.")
		return
	}

	if cs.cfg.Auth.Enabled && !session.IsAuthenticated() {
		cs.handleUnauthenticated(session, typ, raw)
		return
	}

	switch typ {
	case types.EventTyping:
		if session.Username() == "" {
			return
		}
		cs.broadcastTyping(session)
	case types.EventChat:
		cs.handleChat(session, raw)
	default:
		cs.sendSystem(session, fmt.Sprintf("Unsupported message type %q.", typ))
	}
}

func (cs *ChatServer) dispatchVoice(session *state.Session, typ string, raw []byte) {
	var frame types.ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		session.Send(types.VoiceErrorEvent{Type: types.EventVoiceError, Error: "Malformed signaling payload"})
		return
	}

	switch typ {
	case types.EventVoiceJoin:
		cs.relay.HandleJoin(session, frame.MediaTypes)
	case types.EventVoiceLeave:
		cs.relay.HandleLeave(session)
	case types.EventVoiceOffer:
		cs.relay.HandleOffer(session, frame.TargetUsername, frame.Offer)
	case types.EventVoiceAnswer:
		cs.relay.HandleAnswer(session, frame.TargetUsername, frame.Answer)
	case types.EventVoiceCandidate:
		cs.relay.HandleCandidate(session, frame.TargetUsername, frame.Candidate, frame.Buffer)
	case types.EventVoiceMediaChange:
		cs.relay.HandleMediaChange(session, frame.MediaTypes)
	default:
		session.Send(types.VoiceErrorEvent{Type: types.EventVoiceError, Error: fmt.Sprintf("Unsupported signaling type %q", typ)})
	}
}

// handleChat runs the chat gate sequence: rate window, size limits, command
// consumption, then persist-and-broadcast.
func (cs *ChatServer) handleChat(session *state.Session, raw []byte) {
	content := gjson.GetBytes(raw, "content")
	if content.Type != gjson.String {
		cs.sendSystem(session, `Invalid message structure. Must be: { "type": "chat", "content": "..." }`)
		return
	}

	limit := cs.cfg.Limits.MaxMessagesPerSecond
	if !session.AllowMessage(time.Now(), limit) {
		cs.sendSystem(session, fmt.Sprintf("You are sending messages too fast. Limit is %d per second.", limit))
		return
	}

	text := strings.TrimSpace(content.String())
	if len([]rune(text)) > types.MaxChatChars {
		cs.sendSystem(session, fmt.Sprintf("Your message is too long. Max %d characters.", types.MaxChatChars))
		return
	}
	if len(text) > types.MaxChatBytes {
		cs.sendSystem(session, "Your message is too large. Max 5KB.")
		return
	}

	if cs.handleCommand(session, text) {
		return
	}

	msg := types.ChatMessage{
		Type:      types.EventChat,
		Username:  session.Username(),
		Text:      text,
		Timestamp: time.Now(),
	}
	if err := cs.store.SaveMessage(msg); err != nil {
		cs.logger.Error("failed to persist chat message", "error", err)
	}
	cs.Broadcast(msg)
}
