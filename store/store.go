// Package store holds the remote session store: the contract the sync engine
// writes through and the implementations behind it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"lifesync/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

// Subscription is a live listener on a session's gameState. Unsubscribe is
// idempotent; once it returns the callback is never invoked again. It must not
// be called from inside the callback.
type Subscription interface {
	Unsubscribe()
}

// Remote is the shared backing store. Each session maps to
// {hostId, players: set of member ids, gameState: payload or null}.
type Remote interface {
	// CreateSession registers a room with its host as first member. An empty
	// id lets the store pick one.
	CreateSession(ctx context.Context, id, hostID string) (string, error)
	SessionExists(ctx context.Context, id string) (bool, error)
	AddMember(ctx context.Context, id, playerID string) error
	SetGameState(ctx context.Context, id string, payload models.Payload) error
	// GetGameState returns nil when nothing has been written yet.
	GetGameState(ctx context.Context, id string) (*models.Payload, error)
	// Subscribe delivers the current gameState (if any) and then every later
	// write. Intermediate writes may be skipped; the latest always arrives.
	Subscribe(ctx context.Context, id string, fn func(models.Payload)) (Subscription, error)
}

// Backend is the server side view: a Remote plus room administration.
type Backend interface {
	Remote
	GetSession(ctx context.Context, id string) (models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	// DeleteIdle removes rooms not written to since before.
	DeleteIdle(ctx context.Context, before time.Time) (int64, error)
}

// NewSessionID returns a time-ordered id with a random tail.
func NewSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
