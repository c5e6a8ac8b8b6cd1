// Package protocol holds the wire-protocol event names shared between the
// server and external clients.
package protocol

// Server-to-client event types.
const (
	TypeSessionToken      = "session-token"
	TypeHeartbeatConfig   = "heartbeat-config"
	TypeHistory           = "history"
	TypeSystem            = "system"
	TypeChat              = "chat"
	TypeTyping            = "typing"
	TypePong              = "pong"
	TypeVoiceJoined       = "webrtc-joined"
	TypeVoicePeerJoined   = "webrtc-peer-joined"
	TypeVoicePeerLeft     = "webrtc-peer-left"
	TypeVoiceOffer        = "webrtc-offer"
	TypeVoiceAnswer       = "webrtc-answer"
	TypeVoiceCandidate    = "webrtc-ice-candidate"
	TypeVoiceMediaChanged = "webrtc-media-changed"
	TypeVoiceError        = "webrtc-error"
)

// Client-to-server event types.
const (
	TypePing             = "ping"
	TypeVoiceJoin        = "webrtc-join"
	TypeVoiceLeave       = "webrtc-leave"
	TypeVoiceMediaChange = "webrtc-media-change"
)
