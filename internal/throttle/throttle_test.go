package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter() (*LoginLimiter, *time.Time) {
	l := NewLoginLimiter(5, time.Hour)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestBlockAfterThreshold(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 4; i++ {
		l.RecordFailure("10.0.0.1", "bob")
		assert.False(t, l.IsBlocked("10.0.0.1", "bob"), "blocked after %d failures", i+1)
	}
	l.RecordFailure("10.0.0.1", "bob")
	assert.True(t, l.IsBlocked("10.0.0.1", "bob"))

	// The block covers only this address+name pair.
	assert.False(t, l.IsBlocked("10.0.0.2", "bob"))
	assert.False(t, l.IsBlocked("10.0.0.1", "alice"))
}

func TestBlockExpires(t *testing.T) {
	l, now := newTestLimiter()

	for i := 0; i < 5; i++ {
		l.RecordFailure("10.0.0.1", "bob")
	}
	assert.True(t, l.IsBlocked("10.0.0.1", "bob"))

	*now = now.Add(61 * time.Minute)
	assert.False(t, l.IsBlocked("10.0.0.1", "bob"))
}

func TestResetClearsFailures(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 4; i++ {
		l.RecordFailure("10.0.0.1", "bob")
	}
	l.Reset("10.0.0.1", "bob")

	// The counter starts over after a successful login.
	for i := 0; i < 4; i++ {
		l.RecordFailure("10.0.0.1", "bob")
	}
	assert.False(t, l.IsBlocked("10.0.0.1", "bob"))
}
