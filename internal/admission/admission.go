// Package admission gates new connections before any session exists: global
// capacity, a per-address sliding window of recent connects, and a
// per-address concurrency cap.
package admission

import (
	"errors"
	"sync"
	"time"

	"github.com/nothsaaaa/js-chat-server/internal/config"
)

var (
	ErrServerFull        = errors.New("server is full")
	ErrRateLimited       = errors.New("too many connections from this address")
	ErrTooManyConcurrent = errors.New("too many concurrent connections from this address")
)

// Controller holds the per-address bookkeeping. One instance per server;
// tests construct their own.
type Controller struct {
	cfg config.LimitsConfig
	now func() time.Time

	mu         sync.Mutex
	windows    map[string][]time.Time
	concurrent map[string]int
}

func NewController(cfg config.LimitsConfig) *Controller {
	return &Controller{
		cfg:        cfg,
		now:        time.Now,
		windows:    make(map[string][]time.Time),
		concurrent: make(map[string]int),
	}
}

// Admit decides whether a prospective connection from addr may proceed,
// given the current number of live connections. The connect timestamp is
// recorded in the address window regardless of the outcome.
func (c *Controller) Admit(addr string, liveCount int) error {
	if liveCount >= c.cfg.TotalMaxConnections {
		return ErrServerFull
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	cutoff := now.Add(-c.cfg.ConnectionWindow)
	recent := c.windows[addr][:0]
	for _, ts := range c.windows[addr] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	recent = append(recent, now)
	c.windows[addr] = recent

	if len(recent) > c.cfg.MaxConnectionsPerWindow {
		return ErrRateLimited
	}

	if c.concurrent[addr] >= c.cfg.MaxConcurrentPerIP {
		return ErrTooManyConcurrent
	}
	return nil
}

// Connected records an accepted connection against its address.
func (c *Controller) Connected(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.concurrent[addr]++
}

// Disconnected releases an accepted connection's concurrency slot.
func (c *Controller) Disconnected(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.concurrent[addr]; n <= 1 {
		delete(c.concurrent, addr)
	} else {
		c.concurrent[addr] = n - 1
	}
}
