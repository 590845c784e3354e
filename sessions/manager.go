// Package sessions creates and joins multiplayer rooms.
package sessions

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"lifesync/store"
)

// Manager issues room ids and registers members. Failures are logged and
// reported as a zero value, never as a fault that ends the caller's flow.
type Manager struct {
	remote store.Remote
	newID  func() string
	log    zerolog.Logger
}

func NewManager(remote store.Remote, logger zerolog.Logger) *Manager {
	return &Manager{
		remote: remote,
		newID:  store.NewSessionID,
		log:    logger.With().Str("component", "sessions").Logger(),
	}
}

// CreateSession allocates a room with hostID as its first member. It returns
// false if the store rejected it.
func (m *Manager) CreateSession(ctx context.Context, hostID string) (string, bool) {
	if strings.TrimSpace(hostID) == "" {
		return "", false
	}
	id, err := m.remote.CreateSession(ctx, m.newID(), hostID)
	if errors.Is(err, store.ErrSessionExists) {
		// Id clash: let the store pick.
		id, err = m.remote.CreateSession(ctx, "", hostID)
	}
	if err != nil {
		m.log.Warn().Err(err).Str("host_id", hostID).Msg("create session failed")
		return "", false
	}
	m.log.Info().Str("session_id", id).Str("host_id", hostID).Msg("session created")
	return id, true
}

// JoinSession registers playerID after checking the room exists.
func (m *Manager) JoinSession(ctx context.Context, sessionID, playerID string) bool {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || strings.TrimSpace(playerID) == "" {
		return false
	}
	logger := m.log.With().Str("session_id", sessionID).Str("player_id", playerID).Logger()

	ok, err := m.remote.SessionExists(ctx, sessionID)
	if err != nil {
		logger.Warn().Err(err).Msg("session lookup failed")
		return false
	}
	if !ok {
		logger.Info().Msg("session not found")
		return false
	}
	if err := m.remote.AddMember(ctx, sessionID, playerID); err != nil {
		logger.Warn().Err(err).Msg("join session failed")
		return false
	}
	logger.Info().Msg("joined session")
	return true
}
