// Package state owns the process-wide registry of live connections and the
// per-connection session records.
package state

import (
	"sort"
	"sync"
)

// Registry tracks live sessions and enforces display-name uniqueness. The
// name index and session membership change under one lock so a name can
// never point at a session that is not registered.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // by session ID
	names    map[string]*Session // by display name
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		names:    make(map[string]*Session),
	}
}

// Add registers a live session. The session may not yet have a name; names
// are claimed separately.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Remove deregisters a session and releases its name if it holds one.
// Idempotent: removing an absent session is a no-op.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s.ID)
	if name := s.Username(); name != "" {
		if cur, ok := r.names[name]; ok && cur == s {
			delete(r.names, name)
		}
	}
}

// ClaimName binds a display name to a session, enforcing uniqueness across
// all live connections.
func (r *Registry) ClaimName(s *Session, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.names[name]; taken {
		return ErrNameTaken
	}
	r.names[name] = s
	s.setUsername(name)
	return nil
}

// Rename atomically swaps a session's display name for a new one.
func (r *Registry) Rename(s *Session, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := s.Username()
	if old == "" {
		return ErrNotNamed
	}
	if _, taken := r.names[newName]; taken {
		return ErrNameTaken
	}
	delete(r.names, old)
	r.names[newName] = s
	s.setUsername(newName)
	return nil
}

// ByName looks up the live session holding a display name.
func (r *Registry) ByName(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.names[name]
	return s, ok
}

// Snapshot returns a copy of the live-session set, safe to iterate while
// sessions join and leave concurrently.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Names returns the sorted list of claimed display names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.names))
	for name := range r.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
