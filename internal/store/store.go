// Package store persists accounts and the chat message log in SQLite, and
// the ban/admin lists as JSON files.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/nothsaaaa/js-chat-server/internal/types"
)

var ErrAccountExists = errors.New("account already exists")

type Store struct {
	conn *sql.DB
}

func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	s := &Store{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			username TEXT,
			text TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_id ON messages(id)`,
	}
	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// Register creates an account. Returns ErrAccountExists when the name is
// already registered.
func (s *Store) Register(username, password string) error {
	var existing string
	err := s.conn.QueryRow("SELECT username FROM accounts WHERE username = ?", username).Scan(&existing)
	if err == nil {
		return ErrAccountExists
	}
	if err != sql.ErrNoRows {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(
		"INSERT INTO accounts (username, password_hash) VALUES (?, ?)",
		username, string(hashed),
	)
	return err
}

// Authenticate verifies a password against the stored hash. Unknown names
// and wrong passwords both report false without error.
func (s *Store) Authenticate(username, password string) (bool, error) {
	var hashed string
	err := s.conn.QueryRow("SELECT password_hash FROM accounts WHERE username = ?", username).Scan(&hashed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil, nil
}

// SaveMessage appends a chat or system message to the log.
func (s *Store) SaveMessage(msg types.ChatMessage) error {
	var username any
	if msg.Username != "" {
		username = msg.Username
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.conn.Exec(
		"INSERT INTO messages (type, username, text, timestamp) VALUES (?, ?, ?, ?)",
		msg.Type, username, msg.Text, ts.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// RecentMessages returns up to limit of the newest messages in chronological
// order.
func (s *Store) RecentMessages(limit int) ([]types.ChatMessage, error) {
	rows, err := s.conn.Query(
		"SELECT type, COALESCE(username, ''), text, timestamp FROM messages ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var newestFirst []types.ChatMessage
	for rows.Next() {
		var msg types.ChatMessage
		var ts string
		if err := rows.Scan(&msg.Type, &msg.Username, &msg.Text, &ts); err != nil {
			return nil, err
		}
		msg.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse message timestamp %q: %w", ts, err)
		}
		newestFirst = append(newestFirst, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]types.ChatMessage, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		out = append(out, newestFirst[i])
	}
	return out, nil
}
