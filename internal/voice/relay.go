// Package voice implements the call-setup signaling relay. It tracks
// voice-room membership and forwards offers, answers and ICE candidates
// between named participants; it never touches media.
package voice

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nothsaaaa/js-chat-server/internal/config"
	"github.com/nothsaaaa/js-chat-server/internal/state"
	"github.com/nothsaaaa/js-chat-server/internal/types"
)

// Announcer broadcasts a system message to the whole chat and persists it.
// Implemented by the chat server.
type Announcer interface {
	Announce(text string)
}

type participant struct {
	session *state.Session
	name    string
	media   map[string]struct{}
}

// Relay is the signaling unit. All shared maps are guarded by one mutex;
// every handler is a synchronous, non-blocking operation (sends go through
// the sessions' buffered queues).
type Relay struct {
	cfg      config.WebRTCConfig
	logger   *slog.Logger
	announce Announcer

	mu           sync.Mutex
	participants map[*state.Session]*participant
	// pending[target][source] holds candidates buffered for target until the
	// matching answer is relayed. Flushed FIFO, at most once.
	pending map[*state.Session]map[*state.Session][]json.RawMessage
}

func NewRelay(cfg config.WebRTCConfig, logger *slog.Logger, announce Announcer) *Relay {
	return &Relay{
		cfg:          cfg,
		logger:       logger,
		announce:     announce,
		participants: make(map[*state.Session]*participant),
		pending:      make(map[*state.Session]map[*state.Session][]json.RawMessage),
	}
}

func (r *Relay) Enabled() bool { return r.cfg.Enabled }

// ParticipantCount returns the current voice-room size.
func (r *Relay) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// InVoice reports whether the session is currently a participant.
func (r *Relay) InVoice(s *state.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.participants[s]
	return ok
}

func sendError(s *state.Session, text string) {
	s.Send(types.VoiceErrorEvent{Type: types.EventVoiceError, Error: text})
}

func (r *Relay) allowedMedia() map[string]struct{} {
	allowed := map[string]struct{}{types.MediaAudio: {}}
	if r.cfg.AllowVideo {
		allowed[types.MediaVideo] = struct{}{}
	}
	if r.cfg.AllowScreenShare {
		allowed[types.MediaScreen] = struct{}{}
	}
	return allowed
}

// HandleJoin admits a session to the voice room. The requested media kinds
// are intersected with the server policy; audio is always allowed.
func (r *Relay) HandleJoin(s *state.Session, mediaTypes []string) {
	if !r.cfg.Enabled {
		sendError(s, "WebRTC is disabled on this server")
		return
	}
	name := s.Username()
	if name == "" {
		sendError(s, "Must be authenticated to join voice chat")
		return
	}

	r.mu.Lock()
	if _, ok := r.participants[s]; ok {
		r.mu.Unlock()
		sendError(s, "Already in voice chat")
		return
	}
	if len(r.participants) >= r.cfg.MaxParticipants {
		r.mu.Unlock()
		sendError(s, fmt.Sprintf("Voice chat is full (%d maximum)", r.cfg.MaxParticipants))
		return
	}

	if len(mediaTypes) == 0 {
		mediaTypes = []string{types.MediaAudio}
	}
	allowed := r.allowedMedia()
	media := make(map[string]struct{})
	for _, kind := range mediaTypes {
		if _, ok := allowed[kind]; ok {
			media[kind] = struct{}{}
		}
	}
	if len(media) == 0 {
		r.mu.Unlock()
		sendError(s, "No valid media types requested")
		return
	}

	r.participants[s] = &participant{session: s, name: name, media: media}
	r.pending[s] = make(map[*state.Session][]json.RawMessage)

	roster := r.rosterLocked()
	peers := r.peersLocked(s)
	r.mu.Unlock()

	s.Send(types.VoiceJoinedEvent{
		Type:         types.EventVoiceJoined,
		Participants: roster,
		Config: types.VoiceCallConfig{
			AllowVideo:       r.cfg.AllowVideo,
			AllowScreenShare: r.cfg.AllowScreenShare,
			ForceRelay:       r.cfg.ForceRelay,
		},
	})
	joined := types.VoicePeerJoinedEvent{
		Type:       types.EventVoicePeerJoined,
		Username:   name,
		MediaTypes: mediaKinds(media),
	}
	for _, peer := range peers {
		peer.Send(joined)
	}

	r.announce.Announce(fmt.Sprintf("%s joined voice chat", name))
	r.logger.Info("voice join", "username", name, "participants", r.ParticipantCount())
}

// HandleLeave removes a participant, drops any ICE buffers keyed by or for
// it, and notifies the remaining peers. No-op for non-participants.
func (r *Relay) HandleLeave(s *state.Session) {
	r.mu.Lock()
	p, ok := r.participants[s]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.participants, s)
	delete(r.pending, s)
	for _, sources := range r.pending {
		delete(sources, s)
	}
	peers := r.peersLocked(s)
	r.mu.Unlock()

	left := types.VoicePeerLeftEvent{Type: types.EventVoicePeerLeft, Username: p.name}
	for _, peer := range peers {
		peer.Send(left)
	}

	r.announce.Announce(fmt.Sprintf("%s left voice chat", p.name))
	r.logger.Info("voice leave", "username", p.name, "participants", r.ParticipantCount())
}

// HandleDisconnect is the implicit leave on transport close, kick or ban.
func (r *Relay) HandleDisconnect(s *state.Session) {
	r.HandleLeave(s)
}

// HandleOffer unicasts an offer to a named participant.
func (r *Relay) HandleOffer(s *state.Session, targetName string, offer json.RawMessage) {
	if targetName == "" || len(offer) == 0 {
		sendError(s, "Invalid offer data")
		return
	}
	target, ok := r.lookupPair(s, targetName)
	if !ok {
		return
	}
	target.Send(types.VoiceOfferEvent{
		Type:         types.EventVoiceOffer,
		FromUsername: s.Username(),
		Offer:        offer,
	})
}

// HandleAnswer unicasts an answer and then flushes any candidates the two
// peers had buffered for each other, in arrival order, exactly once.
func (r *Relay) HandleAnswer(s *state.Session, targetName string, answer json.RawMessage) {
	if targetName == "" || len(answer) == 0 {
		sendError(s, "Invalid answer data")
		return
	}
	target, ok := r.lookupPair(s, targetName)
	if !ok {
		return
	}
	target.Send(types.VoiceAnswerEvent{
		Type:         types.EventVoiceAnswer,
		FromUsername: s.Username(),
		Answer:       answer,
	})
	r.flushPending(s, target)
	r.flushPending(target, s)
}

// HandleCandidate relays an ICE candidate to a named participant, or buffers
// it when the client asks for deferral until the answer exchange. Misses are
// silent; candidate relay is best-effort.
func (r *Relay) HandleCandidate(s *state.Session, targetName string, candidate json.RawMessage, buffer bool) {
	if targetName == "" || len(candidate) == 0 {
		return
	}

	r.mu.Lock()
	if _, ok := r.participants[s]; !ok {
		r.mu.Unlock()
		return
	}
	target, ok := r.byNameLocked(targetName)
	if !ok {
		r.mu.Unlock()
		return
	}

	if buffer {
		sources := r.pending[target]
		sources[s] = append(sources[s], candidate)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	target.Send(types.VoiceCandidateEvent{
		Type:         types.EventVoiceCandidate,
		FromUsername: s.Username(),
		Candidate:    candidate,
	})
}

// HandleMediaChange updates a participant's media set and notifies peers.
// Malformed or out-of-room requests are ignored.
func (r *Relay) HandleMediaChange(s *state.Session, mediaTypes []string) {
	if mediaTypes == nil {
		return
	}

	r.mu.Lock()
	p, ok := r.participants[s]
	if !ok {
		r.mu.Unlock()
		return
	}
	media := make(map[string]struct{}, len(mediaTypes))
	for _, kind := range mediaTypes {
		media[kind] = struct{}{}
	}
	p.media = media
	peers := r.peersLocked(s)
	r.mu.Unlock()

	changed := types.VoiceMediaChangedEvent{
		Type:       types.EventVoiceMediaChanged,
		Username:   p.name,
		MediaTypes: mediaTypes,
	}
	for _, peer := range peers {
		peer.Send(changed)
	}
}

// Roster returns the current participant list.
func (r *Relay) Roster() []types.VoiceParticipant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked()
}

// lookupPair verifies that both the caller and the named target are current
// participants, replying with a scoped error otherwise.
func (r *Relay) lookupPair(s *state.Session, targetName string) (*state.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[s]; !ok {
		sendError(s, "Not in voice chat")
		return nil, false
	}
	target, ok := r.byNameLocked(targetName)
	if !ok {
		sendError(s, "Target user not in voice chat")
		return nil, false
	}
	return target, true
}

// flushPending delivers candidates buffered by source for target.
func (r *Relay) flushPending(source, target *state.Session) {
	r.mu.Lock()
	sources, ok := r.pending[target]
	if !ok {
		r.mu.Unlock()
		return
	}
	buffered := sources[source]
	delete(sources, source)
	r.mu.Unlock()

	if len(buffered) == 0 {
		return
	}
	from := source.Username()
	for _, candidate := range buffered {
		target.Send(types.VoiceCandidateEvent{
			Type:         types.EventVoiceCandidate,
			FromUsername: from,
			Candidate:    candidate,
		})
	}
	r.logger.Debug("flushed buffered candidates", "from", from, "count", len(buffered))
}

func (r *Relay) byNameLocked(name string) (*state.Session, bool) {
	for s, p := range r.participants {
		if p.name == name {
			return s, true
		}
	}
	return nil, false
}

func (r *Relay) peersLocked(exclude *state.Session) []*state.Session {
	peers := make([]*state.Session, 0, len(r.participants))
	for s := range r.participants {
		if s != exclude {
			peers = append(peers, s)
		}
	}
	return peers
}

func (r *Relay) rosterLocked() []types.VoiceParticipant {
	roster := make([]types.VoiceParticipant, 0, len(r.participants))
	for _, p := range r.participants {
		roster = append(roster, types.VoiceParticipant{
			Username:   p.name,
			MediaTypes: mediaKinds(p.media),
		})
	}
	return roster
}

func mediaKinds(media map[string]struct{}) []string {
	kinds := make([]string, 0, len(media))
	for kind := range media {
		kinds = append(kinds, kind)
	}
	return kinds
}
