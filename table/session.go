package table

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lifesync/models"
	"lifesync/syncengine"
)

// StartLocal begins (or continues) a single-device game.
func (t *Table) StartLocal() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.session != nil {
		return ErrInSession
	}
	t.log.Info().Int("players", len(t.players)).Msg("local game started")
	return nil
}

func (t *Table) newEngine(sessionID string, gen uint64) *syncengine.Engine {
	return syncengine.New(t.remote, sessionID, syncengine.Options{
		Clock:    t.clock,
		Debounce: t.cfg.PushDebounce,
		Merge:    t.cfg.Merge,
		Logger:   t.cfg.Logger,
	}, func(remote models.GameState) {
		t.applyRemote(gen, remote)
	})
}

// Host creates a room with this device's player as host. It returns false
// if the room could not be created; the local game is left untouched.
func (t *Table) Host(ctx context.Context, name string) (string, bool) {
	t.mu.Lock()
	if t.closed || t.session != nil || t.sessions == nil {
		t.mu.Unlock()
		return "", false
	}
	t.mu.Unlock()

	hostID := uuid.NewString()
	sessionID, ok := t.sessions.CreateSession(ctx, hostID)
	if !ok {
		return "", false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Host"
	}
	host := models.NewPlayer(hostID, name, models.ManaWhite, true)

	t.mu.Lock()
	t.gen++
	engine := t.newEngine(sessionID, t.gen)
	t.session = &models.Session{ID: sessionID, HostID: hostID, IsHost: true, Members: []string{hostID}}
	t.engine = engine
	t.players = []models.Player{host}
	t.ended = false
	t.currentID = hostID
	t.history.Clear()
	t.history.Append("Game created")
	fx := effects{state: t.stateLocked(), engine: engine, push: pushCritical, persist: true}
	t.mu.Unlock()

	t.commit(ctx, fx)
	if err := engine.Start(ctx); err != nil {
		t.log.Warn().Err(err).Str("session_id", sessionID).Msg("subscribing to hosted session failed")
	}
	return sessionID, true
}

// Join enters an existing room. The roster is seeded from the room's current
// game and this device's player is appended to it. Empty codes are rejected
// before any remote call.
func (t *Table) Join(ctx context.Context, code, name string) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, fmt.Errorf("%w: join code is empty", ErrInvalidInput)
	}
	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return false, ErrClosed
	case t.session != nil:
		t.mu.Unlock()
		return false, ErrInSession
	case t.sessions == nil:
		t.mu.Unlock()
		return false, nil
	}
	t.mu.Unlock()

	playerID := uuid.NewString()
	if !t.sessions.JoinSession(ctx, code, playerID) {
		return false, nil
	}

	seed := models.GameState{Players: []models.Player{}, GameHistory: []string{}}
	if p, err := t.remote.GetGameState(ctx, code); err != nil {
		t.log.Warn().Err(err).Str("session_id", code).Msg("reading room state failed, starting empty")
	} else if p != nil {
		seed = p.State()
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Player %d", len(seed.Players)+1)
	}
	color := models.ManaColors[len(seed.Players)%len(models.ManaColors)]
	me := models.NewPlayer(playerID, name, color, false)

	t.mu.Lock()
	t.gen++
	engine := t.newEngine(code, t.gen)
	t.session = &models.Session{ID: code, IsHost: false, Members: []string{playerID}}
	for _, p := range seed.Players {
		if p.IsHost {
			t.session.HostID = p.ID
		}
	}
	t.engine = engine
	t.setStateLocked(seed)
	t.players = append(t.players, me)
	t.currentID = playerID
	t.history.Append("Joined game")
	t.history.Appendf("%s joined the game", me.Name)
	t.evaluateLocked()
	fx := effects{state: t.stateLocked(), engine: engine, push: pushCritical, persist: true}
	t.mu.Unlock()

	// Write before subscribing so the first emission is our own echo.
	t.commit(ctx, fx)
	if err := engine.Start(ctx); err != nil {
		t.log.Warn().Err(err).Str("session_id", code).Msg("subscribing to joined session failed")
	}
	return true, nil
}

// applyRemote replaces local state with a snapshot from the room.
func (t *Table) applyRemote(gen uint64, remote models.GameState) {
	ctx := context.Background()
	t.mu.Lock()
	if t.closed || gen != t.gen || t.engine == nil {
		t.mu.Unlock()
		return
	}
	merged := t.engine.Merge(t.stateLocked(), remote)
	t.engine.CancelPending()
	t.setStateLocked(merged)
	fx := effects{engine: t.engine, persist: true}
	if t.evaluateLocked() {
		fx.push = pushCritical
		fx.preset = t.finishedPresetLocked()
	}
	fx.state = t.stateLocked()
	t.mu.Unlock()

	t.commit(ctx, fx)
}

// Leave returns to the welcome screen: the room subscription is closed,
// timers stop, the game is cleared and every preset loses its frozen game.
func (t *Table) Leave(ctx context.Context) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	engine := t.engine
	if engine != nil {
		t.logChangesLocked(t.coalescer.Flush())
		engine.Push(t.stateLocked())
	} else {
		t.coalescer.Flush()
	}
	holds := t.takeHoldsLocked("")
	t.gen++
	t.engine = nil
	t.session = nil
	t.players = nil
	t.ended = false
	t.currentID = ""
	t.preset = nil
	t.history.Clear()
	t.mu.Unlock()

	releaseAll(holds)
	t.countdown.Set(0)
	if engine != nil {
		engine.Stop(ctx)
	}
	if t.local != nil {
		if err := t.local.ClearPresetGameStates(ctx); err != nil {
			t.log.Warn().Err(err).Msg("clearing preset game states failed")
		}
		if err := t.local.ClearSnapshot(ctx); err != nil {
			t.log.Warn().Err(err).Msg("clearing game snapshot failed")
		}
	}
}

// Restore reloads the last saved snapshot into an idle table.
func (t *Table) Restore(ctx context.Context) bool {
	if t.local == nil {
		return false
	}
	saved, err := t.local.LoadSnapshot(ctx)
	if err != nil {
		t.log.Warn().Err(err).Msg("loading game snapshot failed, starting from defaults")
		return false
	}
	if saved == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.session != nil {
		return false
	}
	t.setStateLocked(*saved)
	t.evaluateLocked()
	if len(t.players) > 0 && models.FindPlayer(t.players, t.currentID) < 0 {
		t.currentID = t.players[0].ID
	}
	return true
}

