// Package table runs one game on one device: the roster, its history, the
// change buffer and, when multiplayer, the sync engine for the room.
package table

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"lifesync/buffer"
	"lifesync/eventlog"
	"lifesync/localstore"
	"lifesync/models"
	"lifesync/rules"
	"lifesync/schedule"
	"lifesync/sessions"
	"lifesync/store"
	"lifesync/syncengine"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrGameOver         = errors.New("game is over")
	ErrPlayerEliminated = errors.New("player is eliminated")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrTableFull        = errors.New("table is full")
	ErrInSession        = errors.New("already in a multiplayer session")
	ErrNoLocalStore     = errors.New("local storage is not available")
	ErrClosed           = errors.New("table is closed")
)

type Config struct {
	Clock          clockwork.Clock
	CoalesceWindow time.Duration
	PushDebounce   time.Duration
	HoldInterval   time.Duration
	Merge          syncengine.MergeStrategy
	Logger         zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		CoalesceWindow: 50 * time.Millisecond,
		PushDebounce:   300 * time.Millisecond,
		HoldInterval:   200 * time.Millisecond,
		Logger:         zerolog.Nop(),
	}
}

// Table owns all local game state behind one mutex. Timer callbacks and
// remote snapshots take the same lock; network and disk I/O happen after it
// is released.
type Table struct {
	cfg      Config
	clock    clockwork.Clock
	log      zerolog.Logger
	remote   store.Remote
	sessions *sessions.Manager
	local    *localstore.Store

	history   *eventlog.Log
	coalescer *buffer.Coalescer
	countdown *schedule.Countdown

	mu        sync.Mutex
	players   []models.Player
	ended     bool
	session   *models.Session
	engine    *syncengine.Engine
	gen       uint64
	currentID string
	preset    *models.Preset
	holds     map[holdKey]*buffer.Hold
	closed    bool
}

type holdKey struct {
	playerID string
	kind     models.ChangeKind
}

// New builds a table. remote and local may be nil for a purely local game
// without persistence.
func New(remote store.Remote, local *localstore.Store, cfg Config) *Table {
	defaults := DefaultConfig()
	if cfg.CoalesceWindow <= 0 {
		cfg.CoalesceWindow = defaults.CoalesceWindow
	}
	if cfg.PushDebounce <= 0 {
		cfg.PushDebounce = defaults.PushDebounce
	}
	if cfg.HoldInterval <= 0 {
		cfg.HoldInterval = defaults.HoldInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger.With().Str("component", "table").Logger()

	t := &Table{
		cfg:     cfg,
		clock:   cfg.Clock,
		log:     logger,
		remote:  remote,
		local:   local,
		history: eventlog.New(cfg.Clock),
		holds:   make(map[holdKey]*buffer.Hold),
	}
	if remote != nil {
		t.sessions = sessions.NewManager(remote, cfg.Logger)
	}
	t.coalescer = buffer.NewCoalescer(cfg.Clock, cfg.CoalesceWindow, t.flushChanges)
	t.countdown = schedule.NewCountdown(cfg.Clock, t.timeUp)
	return t
}

// pushMode says how a committed state reaches the remote store.
type pushMode int

const (
	pushNone pushMode = iota
	pushDebounced
	pushCritical
)

// effects is the I/O a mutation needs once the lock is released.
type effects struct {
	state   models.GameState
	engine  *syncengine.Engine
	push    pushMode
	persist bool
	preset  *models.Preset
}

func (t *Table) commit(ctx context.Context, fx effects) {
	if fx.engine != nil {
		switch fx.push {
		case pushDebounced:
			fx.engine.Push(fx.state)
		case pushCritical:
			if err := fx.engine.PushCritical(ctx, fx.state); err != nil {
				t.log.Warn().Err(err).Str("session_id", fx.engine.SessionID()).Msg("critical push failed")
			}
		}
	}
	if t.local == nil {
		return
	}
	if fx.persist {
		if err := t.local.SaveSnapshot(ctx, fx.state); err != nil {
			t.log.Warn().Err(err).Msg("saving game snapshot failed")
		}
	}
	if fx.preset != nil {
		if err := t.local.SavePreset(ctx, *fx.preset); err != nil {
			t.log.Warn().Err(err).Str("preset_id", fx.preset.ID).Msg("saving preset failed")
		}
	}
}

func (t *Table) stateLocked() models.GameState {
	return models.GameState{
		Players:     models.ClonePlayers(t.players),
		GameHistory: t.history.Lines(),
		GameEnded:   t.ended,
	}
}

func (t *Table) setStateLocked(s models.GameState) {
	t.players = models.ClonePlayers(s.Players)
	t.history.Replace(s.GameHistory)
	t.ended = s.GameEnded
}

// evaluateLocked runs the win check and records a win. It reports whether
// this call ended the game.
func (t *Table) evaluateLocked() bool {
	next, res := rules.Evaluate(t.stateLocked())
	if !res.Ended {
		return false
	}
	t.players = next.Players
	t.ended = true
	t.history.Appendf("%s has won the game!", res.Winner.Name)
	t.log.Info().Str("winner", res.Winner.Name).Msg("game won")
	return true
}

// finishedPresetLocked returns the current preset updated for a finished or
// reset game: roster as it now stands, no frozen game.
func (t *Table) finishedPresetLocked() *models.Preset {
	if t.preset == nil {
		return nil
	}
	p := *t.preset
	p.Players = models.ClonePlayers(t.players)
	p.GameState = nil
	t.preset = &p
	out := p
	return &out
}

// Snapshot returns a copy of the current game.
func (t *Table) Snapshot() models.GameState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

// CurrentPlayer resolves the selected player by id against the live roster.
func (t *Table) CurrentPlayer() (models.Player, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := models.FindPlayer(t.players, t.currentID)
	if i < 0 {
		return models.Player{}, false
	}
	return t.players[i], true
}

func (t *Table) SelectPlayer(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if models.FindPlayer(t.players, id) < 0 {
		return ErrPlayerNotFound
	}
	t.currentID = id
	return nil
}

// Session returns the active room, if any.
func (t *Table) Session() (models.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return models.Session{}, false
	}
	return *t.session, true
}

// Close tears the table down, keeping the last snapshot on disk.
func (t *Table) Close(ctx context.Context) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.logChangesLocked(t.coalescer.Flush())
	fx := effects{state: t.stateLocked(), engine: t.engine, push: pushDebounced, persist: true}
	holds := t.takeHoldsLocked("")
	t.closed = true
	t.gen++
	t.engine = nil
	t.mu.Unlock()

	releaseAll(holds)
	t.countdown.Stop()
	t.coalescer.Stop()
	t.commit(ctx, fx)
	if fx.engine != nil {
		fx.engine.Stop(ctx)
	}
}
