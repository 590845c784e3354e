// Package syncengine keeps a local GameState and the session's remote copy
// convergent: debounced pushes out, wholesale snapshots in.
package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"lifesync/models"
	"lifesync/store"
)

// MergeStrategy combines the local state with an incoming remote snapshot.
type MergeStrategy interface {
	Merge(local, remote models.GameState) models.GameState
}

// LastWriterWins replaces local state with whatever the store last held.
// Concurrent edits from two devices race and the later write wins.
type LastWriterWins struct{}

func (LastWriterWins) Merge(_, remote models.GameState) models.GameState {
	return remote.Clone()
}

type Options struct {
	Clock    clockwork.Clock
	Debounce time.Duration
	Merge    MergeStrategy
	Logger   zerolog.Logger
}

// Engine bridges one session. It holds at most one subscription.
type Engine struct {
	remote    store.Remote
	sessionID string
	merge     MergeStrategy
	pusher    *Pusher
	onRemote  func(models.GameState)
	log       zerolog.Logger

	mu      sync.Mutex
	sub     store.Subscription
	started bool
	stopped bool
}

// New builds an engine. onRemote receives every remote snapshot except
// echoes of this engine's own recent writes.
func New(remote store.Remote, sessionID string, opts Options, onRemote func(models.GameState)) *Engine {
	if opts.Merge == nil {
		opts.Merge = LastWriterWins{}
	}
	logger := opts.Logger.With().Str("component", "sync").Str("session_id", sessionID).Logger()
	return &Engine{
		remote:    remote,
		sessionID: sessionID,
		merge:     opts.Merge,
		pusher:    NewPusher(remote, sessionID, opts.Clock, opts.Debounce, logger),
		onRemote:  onRemote,
		log:       logger,
	}
}

func (e *Engine) SessionID() string {
	return e.sessionID
}

// Start opens the subscription. Calling it again is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return fmt.Errorf("sync engine for %s already stopped", e.sessionID)
	}
	if e.started {
		return nil
	}
	sub, err := e.remote.Subscribe(ctx, e.sessionID, e.receive)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", e.sessionID, err)
	}
	e.sub = sub
	e.started = true
	return nil
}

func (e *Engine) receive(p models.Payload) {
	clean := p.Sanitize()
	if raw, err := json.Marshal(clean); err == nil && e.pusher.Wrote(raw) {
		return
	}
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped || e.onRemote == nil {
		return
	}
	e.onRemote(clean.State())
}

// Merge applies the configured strategy.
func (e *Engine) Merge(local, remote models.GameState) models.GameState {
	return e.merge.Merge(local, remote)
}

// Push schedules a debounced write of state.
func (e *Engine) Push(state models.GameState) {
	if e.isStopped() {
		return
	}
	e.pusher.Schedule(state)
}

// PushCritical writes state immediately, superseding any pending write.
func (e *Engine) PushCritical(ctx context.Context, state models.GameState) error {
	if e.isStopped() {
		return nil
	}
	if err := e.pusher.PushNow(ctx, state); err != nil {
		return fmt.Errorf("push %s: %w", e.sessionID, err)
	}
	return nil
}

// CancelPending drops a debounced write that a remote snapshot superseded.
func (e *Engine) CancelPending() {
	e.pusher.Cancel()
}

// Flush sends the pending debounced write now.
func (e *Engine) Flush(ctx context.Context) error {
	return e.pusher.Flush(ctx)
}

// Stop flushes any pending write and closes the subscription. Safe to call
// more than once; must not be called from inside onRemote.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	sub := e.sub
	e.sub = nil
	e.mu.Unlock()

	if err := e.pusher.Flush(ctx); err != nil {
		e.log.Warn().Err(err).Msg("final push failed")
	}
	e.pusher.Cancel()
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (e *Engine) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}
