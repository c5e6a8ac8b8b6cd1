package types

import (
	"encoding/json"
	"regexp"
	"time"
)

// Server-to-client event types.
const (
	EventSessionToken      = "session-token"
	EventHeartbeatConfig   = "heartbeat-config"
	EventHistory           = "history"
	EventSystem            = "system"
	EventChat              = "chat"
	EventTyping            = "typing"
	EventPong              = "pong"
	EventVoiceJoined       = "webrtc-joined"
	EventVoicePeerJoined   = "webrtc-peer-joined"
	EventVoicePeerLeft     = "webrtc-peer-left"
	EventVoiceOffer        = "webrtc-offer"
	EventVoiceAnswer       = "webrtc-answer"
	EventVoiceCandidate    = "webrtc-ice-candidate"
	EventVoiceMediaChanged = "webrtc-media-changed"
	EventVoiceError        = "webrtc-error"
)

// Client-to-server event types. Chat, typing and the webrtc family share
// names with their server-side counterparts.
const (
	EventPing             = "ping"
	EventVoiceJoin        = "webrtc-join"
	EventVoiceLeave       = "webrtc-leave"
	EventVoiceMediaChange = "webrtc-media-change"
)

// VoicePrefix marks the voice signaling sub-protocol within the event
// namespace.
const VoicePrefix = "webrtc-"

// Media kinds a voice participant may carry.
const (
	MediaAudio  = "audio"
	MediaVideo  = "video"
	MediaScreen = "screen"
)

// ClientFrame is the envelope for every client-originated message. Fields
// beyond Type and Token are populated depending on the event type.
type ClientFrame struct {
	Type           string          `json:"type"`
	Token          string          `json:"token,omitempty"`
	Content        string          `json:"content,omitempty"`
	TargetUsername string          `json:"targetUsername,omitempty"`
	MediaTypes     []string        `json:"mediaTypes,omitempty"`
	Offer          json.RawMessage `json:"offer,omitempty"`
	Answer         json.RawMessage `json:"answer,omitempty"`
	Candidate      json.RawMessage `json:"candidate,omitempty"`
	Buffer         bool            `json:"buffer,omitempty"`
}

// ChatMessage is the persisted shape of chat and system messages, also used
// on the wire for `chat`, `system` and `history` events.
type ChatMessage struct {
	Type      string    `json:"type"`
	Username  string    `json:"username,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemMessage builds a timestamped system notice.
func SystemMessage(text string) ChatMessage {
	return ChatMessage{Type: EventSystem, Text: text, Timestamp: time.Now()}
}

type SessionTokenEvent struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// HeartbeatConfigEvent tells the client how often to send pings and after
// what silence the server gives up on it. Both values are milliseconds.
type HeartbeatConfigEvent struct {
	Type     string `json:"type"`
	Interval int64  `json:"interval"`
	Timeout  int64  `json:"timeout"`
}

type HistoryEvent struct {
	Type     string        `json:"type"`
	Messages []ChatMessage `json:"messages"`
}

type TypingEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type PongEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// VoiceParticipant is the roster entry sent to voice peers.
type VoiceParticipant struct {
	Username   string   `json:"username"`
	MediaTypes []string `json:"mediaTypes"`
}

// VoiceCallConfig carries the effective call policy to a joining participant.
type VoiceCallConfig struct {
	AllowVideo       bool `json:"allowVideo"`
	AllowScreenShare bool `json:"allowScreenShare"`
	ForceRelay       bool `json:"forceRelay"`
}

type VoiceJoinedEvent struct {
	Type         string             `json:"type"`
	Participants []VoiceParticipant `json:"participants"`
	Config       VoiceCallConfig    `json:"config"`
}

type VoicePeerJoinedEvent struct {
	Type       string   `json:"type"`
	Username   string   `json:"username"`
	MediaTypes []string `json:"mediaTypes"`
}

type VoicePeerLeftEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type VoiceOfferEvent struct {
	Type         string          `json:"type"`
	FromUsername string          `json:"fromUsername"`
	Offer        json.RawMessage `json:"offer"`
}

type VoiceAnswerEvent struct {
	Type         string          `json:"type"`
	FromUsername string          `json:"fromUsername"`
	Answer       json.RawMessage `json:"answer"`
}

type VoiceCandidateEvent struct {
	Type         string          `json:"type"`
	FromUsername string          `json:"fromUsername"`
	Candidate    json.RawMessage `json:"candidate"`
}

type VoiceMediaChangedEvent struct {
	Type       string   `json:"type"`
	Username   string   `json:"username"`
	MediaTypes []string `json:"mediaTypes"`
}

type VoiceErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

// MaxUsernameLen is the clamp applied to client-supplied names before
// validation.
const MaxUsernameLen = 20

// ClampUsername truncates a raw name to the maximum allowed length.
func ClampUsername(name string) string {
	if len(name) > MaxUsernameLen {
		return name[:MaxUsernameLen]
	}
	return name
}

// ValidUsername reports whether a name satisfies the display-name grammar:
// 3-20 characters, letters, digits, underscore or hyphen.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// Chat content limits applied after trimming.
const (
	MaxChatChars = 2000
	MaxChatBytes = 5120
)
