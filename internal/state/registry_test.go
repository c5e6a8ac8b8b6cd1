package state_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nothsaaaa/js-chat-server/internal/state"
)

func newSession(t *testing.T) *state.Session {
	t.Helper()
	s, err := state.NewSession("10.0.0.1")
	require.NoError(t, err)
	return s
}

func TestTokenIssuedOnce(t *testing.T) {
	s := newSession(t)
	assert.Len(t, s.Token, 64, "expected 32 random bytes hex-encoded")

	other := newSession(t)
	assert.NotEqual(t, s.Token, other.Token)
}

func TestNameUniqueness(t *testing.T) {
	r := state.NewRegistry()
	a := newSession(t)
	b := newSession(t)
	r.Add(a)
	r.Add(b)

	require.NoError(t, r.ClaimName(a, "alice"))
	assert.ErrorIs(t, r.ClaimName(b, "alice"), state.ErrNameTaken)
	require.NoError(t, r.ClaimName(b, "bob"))

	assert.Equal(t, []string{"alice", "bob"}, r.Names())
}

func TestRenameAtomic(t *testing.T) {
	r := state.NewRegistry()
	a := newSession(t)
	b := newSession(t)
	r.Add(a)
	r.Add(b)
	require.NoError(t, r.ClaimName(a, "alice"))
	require.NoError(t, r.ClaimName(b, "bob"))

	assert.ErrorIs(t, r.Rename(a, "bob"), state.ErrNameTaken)
	assert.Equal(t, "alice", a.Username(), "failed rename must not change the name")

	require.NoError(t, r.Rename(a, "carol"))
	assert.Equal(t, "carol", a.Username())

	// The old name is free again.
	c := newSession(t)
	r.Add(c)
	assert.NoError(t, r.ClaimName(c, "alice"))
}

func TestRemoveReleasesName(t *testing.T) {
	r := state.NewRegistry()
	a := newSession(t)
	r.Add(a)
	require.NoError(t, r.ClaimName(a, "alice"))

	r.Remove(a)
	assert.Equal(t, 0, r.Len())

	b := newSession(t)
	r.Add(b)
	assert.NoError(t, r.ClaimName(b, "alice"))

	// Removing again is a no-op.
	r.Remove(a)
	_, ok := r.ByName("alice")
	assert.True(t, ok)
}

func TestCloseIdempotent(t *testing.T) {
	s := newSession(t)
	assert.False(t, s.IsClosed())
	s.Close()
	s.Close()
	assert.True(t, s.IsClosed())
	assert.False(t, s.Send(struct{}{}), "sends to a closed session are dropped")
}

func TestAllowMessageWindow(t *testing.T) {
	s := newSession(t)
	now := time.Now()

	for i := 0; i < 5; i++ {
		assert.True(t, s.AllowMessage(now.Add(time.Duration(i)*time.Millisecond), 5))
	}
	assert.False(t, s.AllowMessage(now.Add(6*time.Millisecond), 5), "sixth message within one second is dropped")

	// Outside the window the budget is restored.
	assert.True(t, s.AllowMessage(now.Add(1100*time.Millisecond), 5))
}

func TestBlockExpiry(t *testing.T) {
	s := newSession(t)
	now := time.Now()
	maxAge := 12 * time.Hour

	s.Block("mallory", now)
	assert.True(t, s.HasBlocked("mallory", now.Add(time.Hour), maxAge))
	assert.False(t, s.HasBlocked("mallory", now.Add(13*time.Hour), maxAge))
	// The expired entry was removed lazily; unblock finds nothing.
	assert.False(t, s.Unblock("mallory"))
}

func TestNickCooldown(t *testing.T) {
	s := newSession(t)
	now := time.Now()
	cooldown := time.Minute

	assert.Zero(t, s.NickCooldownRemaining(now, cooldown))
	s.MarkNickChange(now)
	assert.NotZero(t, s.NickCooldownRemaining(now.Add(30*time.Second), cooldown))
	assert.Zero(t, s.NickCooldownRemaining(now.Add(61*time.Second), cooldown))
}
