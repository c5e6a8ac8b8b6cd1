package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/nothsaaaa/js-chat-server/internal/state"
	"github.com/nothsaaaa/js-chat-server/internal/types"
)

const helpText = `/nick <name> - Change your nickname (disabled if authentication is enabled).
/list - List online users.
/kick <username> - Kick a user (admins only).
/ban <username> - Ban a user (admins only).
/unban <username> - Unban a user (admins only).
/block <username> - Block a user for 12 hours.
/unblock <username> - Unblock a user.
/help - Show this help message.`

// handleCommand consumes in-band commands. Returns true when the message was
// a command (even a failed one) and must not be broadcast as chat.
func (cs *ChatServer) handleCommand(session *state.Session, text string) bool {
	switch {
	case strings.HasPrefix(text, "/nick"):
		cs.cmdNick(session, strings.TrimSpace(strings.TrimPrefix(text, "/nick")))
	case text == "/list":
		cs.sendSystem(session, "Online users: "+strings.Join(cs.registry.Names(), ", "))
	case strings.HasPrefix(text, "/kick"):
		cs.cmdKick(session, strings.TrimSpace(strings.TrimPrefix(text, "/kick")))
	case strings.HasPrefix(text, "/unban"):
		cs.cmdUnban(session, strings.TrimSpace(strings.TrimPrefix(text, "/unban")))
	case strings.HasPrefix(text, "/ban"):
		cs.cmdBan(session, strings.TrimSpace(strings.TrimPrefix(text, "/ban")))
	case strings.HasPrefix(text, "/unblock"):
		cs.cmdUnblock(session, strings.TrimSpace(strings.TrimPrefix(text, "/unblock")))
	case strings.HasPrefix(text, "/block"):
		cs.cmdBlock(session, strings.TrimSpace(strings.TrimPrefix(text, "/block")))
	case text == "/help":
		cs.sendSystem(session, helpText)
	default:
		return false
	}
	return true
}

// cmdNick renames the session. Only available when authentication is off,
// outside the cooldown, and while not in a voice room (renaming there would
// desynchronize the participant roster).
func (cs *ChatServer) cmdNick(session *state.Session, arg string) {
	if cs.cfg.Auth.Enabled {
		cs.sendSystem(session, "Nick change is disabled on authentication servers.")
		return
	}
	if cs.relay.InVoice(session) {
		cs.sendSystem(session, "Nick change is not available while in voice chat.")
		return
	}

	now := time.Now()
	cooldown := cs.cfg.Limits.NickChangeCooldown
	if rem := session.NickCooldownRemaining(now, cooldown); rem > 0 {
		cs.sendSystem(session, fmt.Sprintf(
			"You can only change your nickname once every %d seconds. Please wait %d more seconds.",
			int(cooldown.Seconds()), int(rem.Seconds()+1)))
		return
	}

	newName := types.ClampUsername(arg)
	if !types.ValidUsername(newName) {
		cs.sendSystem(session, "Illegal username. Must be 3-20 characters, only letters, digits, underscore, dash.")
		return
	}

	oldName := session.Username()
	if err := cs.registry.Rename(session, newName); err != nil {
		cs.sendSystem(session, fmt.Sprintf("Username %q is already taken.", newName))
		return
	}
	session.MarkNickChange(now)

	cs.Announce(fmt.Sprintf("%s is now %s", oldName, newName))
}

func (cs *ChatServer) requireAdmin(session *state.Session, command string) bool {
	if !cs.cfg.Auth.Enabled || !session.IsAdmin() {
		cs.sendSystem(session, fmt.Sprintf("You do not have permission to use %s.", command))
		return false
	}
	return true
}

// parseTarget validates a command's target username argument.
func (cs *ChatServer) parseTarget(session *state.Session, arg, command string) (string, bool) {
	if arg == "" {
		cs.sendSystem(session, fmt.Sprintf("Please specify a username to %s.", strings.TrimPrefix(command, "/")))
		return "", false
	}
	target := types.ClampUsername(arg)
	if !types.ValidUsername(target) {
		cs.sendSystem(session, fmt.Sprintf("Illegal username in %s command.", command))
		return "", false
	}
	return target, true
}

func (cs *ChatServer) cmdKick(session *state.Session, arg string) {
	if !cs.requireAdmin(session, "/kick") {
		return
	}
	target, ok := cs.parseTarget(session, arg, "/kick")
	if !ok {
		return
	}

	victim, found := cs.registry.ByName(target)
	if !found || victim == session {
		cs.sendSystem(session, fmt.Sprintf("User %q not found.", target))
		return
	}
	cs.closeWithNotice(victim, "You have been kicked by an admin.")
	cs.Announce(fmt.Sprintf("%s was kicked by %s.", target, session.Username()))
}

func (cs *ChatServer) cmdBan(session *state.Session, arg string) {
	if !cs.requireAdmin(session, "/ban") {
		return
	}
	target, ok := cs.parseTarget(session, arg, "/ban")
	if !ok {
		return
	}

	added, err := cs.bans.Add(target)
	if err != nil {
		cs.logger.Error("failed to persist ban list", "error", err)
		cs.sendSystem(session, "Failed to update ban list.")
		return
	}
	if !added {
		cs.sendSystem(session, fmt.Sprintf("%s is already banned.", target))
		return
	}

	found := false
	if victim, ok := cs.registry.ByName(target); ok && victim != session {
		cs.closeWithNotice(victim, "You have been banned by an admin.")
		found = true
	}

	cs.Announce(fmt.Sprintf("%s was banned by %s.", target, session.Username()))
	if !found {
		cs.sendSystem(session, fmt.Sprintf("User %q is now banned.", target))
	}
}

func (cs *ChatServer) cmdUnban(session *state.Session, arg string) {
	if !cs.requireAdmin(session, "/unban") {
		return
	}
	target, ok := cs.parseTarget(session, arg, "/unban")
	if !ok {
		return
	}

	removed, err := cs.bans.Remove(target)
	if err != nil {
		cs.logger.Error("failed to persist ban list", "error", err)
		cs.sendSystem(session, "Failed to update ban list.")
		return
	}
	if !removed {
		cs.sendSystem(session, fmt.Sprintf("%s is not banned.", target))
		return
	}
	cs.sendSystem(session, fmt.Sprintf("%s has been unbanned.", target))
	cs.Announce(fmt.Sprintf("%s was unbanned by %s.", target, session.Username()))
}

func (cs *ChatServer) cmdBlock(session *state.Session, arg string) {
	if arg == "" {
		cs.sendSystem(session, "Usage: /block <username>")
		return
	}
	target := types.ClampUsername(arg)
	if target == session.Username() {
		cs.sendSystem(session, "You cannot block yourself.")
		return
	}
	session.Block(target, time.Now())
	cs.sendSystem(session, fmt.Sprintf("You have blocked %s for 12 hours.", target))
}

func (cs *ChatServer) cmdUnblock(session *state.Session, arg string) {
	if arg == "" {
		cs.sendSystem(session, "Usage: /unblock <username>")
		return
	}
	target := types.ClampUsername(arg)
	if session.Unblock(target) {
		cs.sendSystem(session, fmt.Sprintf("You have unblocked %s.", target))
	} else {
		cs.sendSystem(session, fmt.Sprintf("%s was not blocked.", target))
	}
}
