package state

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// sendBuffer is the per-session outbound queue depth. Writes to a full
// queue are dropped so one slow peer cannot stall fan-out to the rest.
const sendBuffer = 256

// Session is the per-connection identity record. It is constructed fully
// initialized at connect time and torn down exactly once at close.
type Session struct {
	ID         string
	RemoteAddr string
	Token      string

	out    chan []byte
	closed chan struct{}
	once   sync.Once

	mu             sync.Mutex
	username       string
	authenticated  bool
	admin          bool
	lastHeartbeat  time.Time
	lastNickChange time.Time
	msgTimes       []time.Time
	blocked        map[string]time.Time
}

// NewSession creates a session for a freshly admitted connection and issues
// its token. The token never changes for the session's lifetime.
func NewSession(remoteAddr string) (*Session, error) {
	token := make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		return nil, err
	}
	return &Session{
		ID:            ksuid.New().String(),
		RemoteAddr:    remoteAddr,
		Token:         hex.EncodeToString(token),
		out:           make(chan []byte, sendBuffer),
		closed:        make(chan struct{}),
		lastHeartbeat: time.Now(),
		blocked:       make(map[string]time.Time),
	}, nil
}

// Send marshals v and queues it for delivery. The frame is dropped when the
// session is closed or its queue is full; delivery is best-effort by design
// of the fan-out path.
func (s *Session) Send(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.out <- data:
		return true
	default:
		return false
	}
}

// Outbound returns the channel drained by the connection's write pump.
func (s *Session) Outbound() <-chan []byte { return s.out }

// Close marks the session closed. Safe to call from multiple close causes;
// only the first has effect.
func (s *Session) Close() {
	s.once.Do(func() { close(s.closed) })
}

// Done is closed when the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.closed }

func (s *Session) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

func (s *Session) setUsername(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = name
}

func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// SetAuthenticated records a successful login and whether the account is an
// admin.
func (s *Session) SetAuthenticated(admin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
	s.admin = admin
}

func (s *Session) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admin
}

// TouchHeartbeat records client liveness.
func (s *Session) TouchHeartbeat(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = now
}

func (s *Session) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

// AllowMessage applies the rolling one-second message window. It records the
// send attempt and reports whether the message is within the limit.
func (s *Session) AllowMessage(now time.Time, perSecond int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-time.Second)
	kept := s.msgTimes[:0]
	for _, t := range s.msgTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.msgTimes = append(kept, now)
	return len(s.msgTimes) <= perSecond
}

// NickCooldownRemaining returns how long until the session may change its
// nickname again; zero means allowed.
func (s *Session) NickCooldownRemaining(now time.Time, cooldown time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastNickChange.IsZero() {
		return 0
	}
	if rem := cooldown - now.Sub(s.lastNickChange); rem > 0 {
		return rem
	}
	return 0
}

func (s *Session) MarkNickChange(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastNickChange = now
}

// Block adds name to the session's block list, stamped with the block time.
func (s *Session) Block(name string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[name] = now
}

// Unblock removes name from the block list, reporting whether it was present.
func (s *Session) Unblock(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocked[name]; !ok {
		return false
	}
	delete(s.blocked, name)
	return true
}

// HasBlocked reports whether name is currently blocked. Entries older than
// maxAge are expired lazily during the check.
func (s *Session) HasBlocked(name string, now time.Time, maxAge time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.blocked[name]
	if !ok {
		return false
	}
	if now.Sub(at) > maxAge {
		delete(s.blocked, name)
		return false
	}
	return true
}
