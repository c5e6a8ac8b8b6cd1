// Package throttle tracks failed login attempts keyed by address and
// account name, blocking a pair for a fixed duration once the failure
// threshold is reached. The table outlives individual connections.
package throttle

import (
	"sync"
	"time"
)

type attempt struct {
	count        int
	blockedUntil time.Time
}

type LoginLimiter struct {
	limit    int
	blockFor time.Duration
	now      func() time.Time

	mu       sync.Mutex
	attempts map[string]*attempt
}

func NewLoginLimiter(limit int, blockFor time.Duration) *LoginLimiter {
	return &LoginLimiter{
		limit:    limit,
		blockFor: blockFor,
		now:      time.Now,
		attempts: make(map[string]*attempt),
	}
}

func key(addr, name string) string { return addr + ":" + name }

// IsBlocked reports whether the address+name pair is inside an active block
// window.
func (l *LoginLimiter) IsBlocked(addr, name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.attempts[key(addr, name)]
	return ok && l.now().Before(a.blockedUntil)
}

// RecordFailure counts a failed login. Reaching the threshold starts the
// block window and resets the counter.
func (l *LoginLimiter) RecordFailure(addr, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(addr, name)
	a, ok := l.attempts[k]
	if !ok {
		a = &attempt{}
		l.attempts[k] = a
	}
	a.count++
	if a.count >= l.limit {
		a.blockedUntil = l.now().Add(l.blockFor)
		a.count = 0
	}
}

// Reset clears the record for the pair after a successful login.
func (l *LoginLimiter) Reset(addr, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, key(addr, name))
}
