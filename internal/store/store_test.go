package store_test

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nothsaaaa/js-chat-server/internal/store"
	"github.com/nothsaaaa/js-chat-server/internal/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterOnce(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Register("alice", "password1"))
	assert.ErrorIs(t, s.Register("alice", "different"), store.ErrAccountExists)
}

func TestAuthenticate(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Register("alice", "password1"))

	ok, err := s.Authenticate("alice", "password1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Authenticate("alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Authenticate("nobody", "password1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecentMessagesChronological(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, text := range []string{"first", "second", "third"} {
		require.NoError(t, s.SaveMessage(types.ChatMessage{
			Type:      types.EventChat,
			Username:  "alice",
			Text:      text,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	messages, err := s.RecentMessages(2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "second", messages[0].Text)
	assert.Equal(t, "third", messages[1].Text)
}

func TestRecentMessagesCorruptTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.SaveMessage(types.ChatMessage{Type: types.EventChat, Username: "alice", Text: "ok"}))

	// Corrupt a row behind the store's back.
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec(`INSERT INTO messages (type, username, text, timestamp) VALUES ('chat', 'alice', 'bad', 'not-a-time')`)
	require.NoError(t, err)

	_, err = s.RecentMessages(10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse message timestamp")
}

func TestSystemMessageHasNoAuthor(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveMessage(types.SystemMessage("alice has joined.")))

	messages, err := s.RecentMessages(10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, types.EventSystem, messages[0].Type)
	assert.Empty(t, messages[0].Username)
}

func TestNameList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banned.json")

	l, err := store.LoadNameList(path)
	require.NoError(t, err)
	assert.False(t, l.Contains("mallory"))

	added, err := l.Add("mallory")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = l.Add("mallory")
	require.NoError(t, err)
	assert.False(t, added)

	// Mutations persist across reloads.
	reloaded, err := store.LoadNameList(path)
	require.NoError(t, err)
	assert.True(t, reloaded.Contains("mallory"))

	removed, err := reloaded.Remove("mallory")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = reloaded.Remove("mallory")
	require.NoError(t, err)
	assert.False(t, removed)
}
