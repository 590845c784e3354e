package table

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"lifesync/models"
	"lifesync/rules"
)

// DiceSides are the dice the roller offers.
var DiceSides = []int{2, 4, 6, 8, 10, 12, 20}

// AddPlayer seats a new player at starting values. Colors rotate through
// the five mana colors.
func (t *Table) AddPlayer(ctx context.Context) (models.Player, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return models.Player{}, ErrClosed
	}
	if len(t.players) >= models.MaxLocalPlayers {
		t.mu.Unlock()
		return models.Player{}, ErrTableFull
	}
	n := len(t.players)
	p := models.NewPlayer(uuid.NewString(), fmt.Sprintf("Player %d", n+1), models.ManaColors[n%len(models.ManaColors)], false)
	t.players = append(t.players, p)
	if t.currentID == "" {
		t.currentID = p.ID
	}
	t.history.Appendf("%s has joined the game.", p.Name)
	fx := effects{engine: t.engine, push: pushDebounced, persist: true}
	if t.evaluateLocked() {
		fx.push = pushCritical
		fx.preset = t.finishedPresetLocked()
		p = t.players[len(t.players)-1]
	}
	fx.state = t.stateLocked()
	t.mu.Unlock()

	t.commit(ctx, fx)
	return p, nil
}

// RemovePlayer drops a player and anything still buffered for them. Removing
// down to a single survivor ends the game.
func (t *Table) RemovePlayer(ctx context.Context, playerID string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	i := models.FindPlayer(t.players, playerID)
	if i < 0 {
		t.mu.Unlock()
		return ErrPlayerNotFound
	}
	removed := t.players[i]
	t.players = slices.Delete(models.ClonePlayers(t.players), i, i+1)
	t.coalescer.Discard(playerID)
	holds := t.takeHoldsLocked(playerID)
	if t.currentID == playerID {
		t.currentID = ""
	}
	t.history.Appendf("%s has been removed from the game.", removed.Name)
	fx := effects{engine: t.engine, push: pushDebounced, persist: true}
	if t.evaluateLocked() {
		fx.push = pushCritical
		fx.preset = t.finishedPresetLocked()
	}
	fx.state = t.stateLocked()
	t.mu.Unlock()

	releaseAll(holds)
	t.commit(ctx, fx)
	return nil
}

// PlayerSettings carries the editable fields; nil means unchanged.
type PlayerSettings struct {
	Name      *string
	Icon      *string
	ManaColor *models.ManaColor
}

func (t *Table) UpdatePlayer(ctx context.Context, playerID string, s PlayerSettings) (models.Player, error) {
	if s.Name != nil && strings.TrimSpace(*s.Name) == "" {
		return models.Player{}, fmt.Errorf("%w: name is empty", ErrInvalidInput)
	}
	if s.ManaColor != nil && !s.ManaColor.Valid() {
		return models.Player{}, fmt.Errorf("%w: unknown mana color %q", ErrInvalidInput, *s.ManaColor)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return models.Player{}, ErrClosed
	}
	i := models.FindPlayer(t.players, playerID)
	if i < 0 {
		t.mu.Unlock()
		return models.Player{}, ErrPlayerNotFound
	}
	players := models.ClonePlayers(t.players)
	p := &players[i]
	if s.Name != nil {
		p.Name = strings.TrimSpace(*s.Name)
	}
	if s.Icon != nil {
		p.Icon = strings.TrimSpace(*s.Icon)
		if p.Icon == "" {
			p.Icon = models.DefaultIcon
		}
	}
	if s.ManaColor != nil {
		p.ManaColor = *s.ManaColor
	}
	t.players = players
	updated := *p
	t.history.Appendf("%s's information has been updated.", updated.Name)
	fx := effects{engine: t.engine, push: pushDebounced, persist: true}
	fx.state = t.stateLocked()
	t.mu.Unlock()

	t.commit(ctx, fx)
	return updated, nil
}

// Reset starts a new game with the same roster. The history collapses to a
// single entry and the current preset loses its frozen game.
func (t *Table) Reset(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.coalescer.Flush()
	holds := t.takeHoldsLocked("")
	t.players = rules.Reset(t.players)
	t.ended = false
	t.history.Reset("Game has been reset. New game starting!")
	fx := effects{engine: t.engine, push: pushCritical, persist: true}
	fx.preset = t.finishedPresetLocked()
	fx.state = t.stateLocked()
	t.mu.Unlock()

	releaseAll(holds)
	t.commit(ctx, fx)
	return nil
}

// RollDice rolls one die and logs the result.
func (t *Table) RollDice(ctx context.Context, sides int) (int, error) {
	if !slices.Contains(DiceSides, sides) {
		return 0, fmt.Errorf("%w: no d%d", ErrInvalidInput, sides)
	}
	result := rand.IntN(sides) + 1

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}
	t.history.Appendf("Dice roll result: %d", result)
	fx := effects{engine: t.engine, push: pushDebounced, persist: true}
	fx.state = t.stateLocked()
	t.mu.Unlock()

	t.commit(ctx, fx)
	return result, nil
}

// StartTimer arms the game timer with d and starts it. A zero d resumes a
// paused timer.
func (t *Table) StartTimer(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidInput)
	}
	if d > 0 {
		t.countdown.Set(d.Truncate(time.Second))
	}
	if !t.countdown.Start() {
		return fmt.Errorf("%w: timer has no duration", ErrInvalidInput)
	}
	return nil
}

func (t *Table) StopTimer() {
	t.countdown.Stop()
}

func (t *Table) TimeLeft() time.Duration {
	return t.countdown.Remaining()
}

func (t *Table) TimerActive() bool {
	return t.countdown.Active()
}

func (t *Table) timeUp() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.history.Append("Time's up!")
	fx := effects{engine: t.engine, push: pushDebounced, persist: true}
	fx.state = t.stateLocked()
	t.mu.Unlock()

	t.commit(context.Background(), fx)
}
