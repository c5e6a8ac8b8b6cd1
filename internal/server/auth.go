package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nothsaaaa/js-chat-server/internal/state"
	"github.com/nothsaaaa/js-chat-server/internal/store"
	"github.com/nothsaaaa/js-chat-server/internal/types"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 32
)

// handleUnauthenticated processes frames from sessions that have not logged
// in yet. Only /register and /login are accepted; the read loop is the sole
// caller, so a session never runs two authentication attempts concurrently.
func (cs *ChatServer) handleUnauthenticated(session *state.Session, typ string, raw []byte) {
	content := gjson.GetBytes(raw, "content")
	if typ != types.EventChat || content.Type != gjson.String {
		cs.sendSystem(session, "Please authenticate first using /register or /login commands in message content.")
		return
	}

	parts := strings.Split(strings.TrimSpace(content.String()), " ")
	command := parts[0]
	if command != "/register" && command != "/login" {
		cs.sendSystem(session, "Please authenticate first using /register or /login commands.")
		return
	}
	if len(parts) < 3 {
		cs.sendSystem(session, "Username and password required.")
		return
	}
	rawUsername := parts[1]
	password := strings.Join(parts[2:], " ")

	username := types.ClampUsername(rawUsername)
	if !types.ValidUsername(username) {
		cs.sendSystem(session, "Illegal username. Requirement: 3-20 characters alphanumeric.")
		return
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		cs.sendSystem(session, fmt.Sprintf("Password length invalid. Must be %d-%d characters.", minPasswordLen, maxPasswordLen))
		return
	}
	if cs.bans.Contains(username) {
		cs.closeWithNotice(session, "You are banned.")
		return
	}

	if command == "/register" {
		cs.handleRegister(session, username, password)
		return
	}
	cs.handleLogin(session, username, password)
}

func (cs *ChatServer) handleRegister(session *state.Session, username, password string) {
	err := cs.store.Register(username, password)
	switch {
	case errors.Is(err, store.ErrAccountExists):
		cs.sendSystem(session, "Username exists.")
	case err != nil:
		cs.logger.Error("registration failed", "username", username, "error", err)
		cs.sendSystem(session, "Registration failed. Try again later.")
	default:
		cs.sendSystem(session, "Registered. Please /login.")
	}
}

func (cs *ChatServer) handleLogin(session *state.Session, username, password string) {
	addr := session.RemoteAddr
	if cs.logins.IsBlocked(addr, username) {
		cs.sendSystem(session, "Too many failed attempts. Blocked for 1 hour.")
		return
	}

	ok, err := cs.store.Authenticate(username, password)
	if err != nil {
		cs.logger.Error("authentication failed", "username", username, "error", err)
		cs.sendSystem(session, "Login failed.")
		return
	}
	if !ok {
		cs.logins.RecordFailure(addr, username)
		cs.sendSystem(session, "Login failed.")
		return
	}

	if err := cs.registry.ClaimName(session, username); err != nil {
		cs.closeWithNotice(session, "Username in use.")
		return
	}

	session.SetAuthenticated(cs.admins.Contains(username))
	cs.logins.Reset(addr, username)

	cs.logger.Info("JOIN", "username", username, "addr", addr)
	cs.sendHistory(session)
	cs.sendMOTD(session)
	cs.Announce(fmt.Sprintf("%s has joined.", username))
}
