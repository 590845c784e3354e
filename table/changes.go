package table

import (
	"context"
	"fmt"

	"lifesync/buffer"
	"lifesync/models"
	"lifesync/rules"
)

func (t *Table) ChangeLife(ctx context.Context, playerID string, amount int) error {
	return t.change(ctx, playerID, models.ChangeLife, amount)
}

func (t *Table) ChangeCommanderDamage(ctx context.Context, playerID string, amount int) error {
	return t.change(ctx, playerID, models.ChangeCommanderDamage, amount)
}

func (t *Table) ChangePoison(ctx context.Context, playerID string, amount int) error {
	return t.change(ctx, playerID, models.ChangePoison, amount)
}

func (t *Table) checkChangeLocked(playerID string, kind models.ChangeKind, amount int) error {
	switch {
	case t.closed:
		return ErrClosed
	case !kind.Valid() || amount == 0:
		return fmt.Errorf("%w: %q by %d", ErrInvalidInput, kind, amount)
	case t.ended:
		return ErrGameOver
	}
	i := models.FindPlayer(t.players, playerID)
	if i < 0 {
		return ErrPlayerNotFound
	}
	if t.players[i].IsDead {
		return ErrPlayerEliminated
	}
	return nil
}

// change applies a delta immediately. The log line is left to the coalescer;
// an elimination flushes it early so the history reads in order. Eliminations
// and wins push without waiting for the debounce.
func (t *Table) change(ctx context.Context, playerID string, kind models.ChangeKind, amount int) error {
	t.mu.Lock()
	if err := t.checkChangeLocked(playerID, kind, amount); err != nil {
		t.mu.Unlock()
		return err
	}
	players, out := rules.Apply(t.players, playerID, kind, amount)
	t.players = players
	t.coalescer.Add(playerID, kind, amount)

	fx := effects{engine: t.engine, push: pushDebounced}
	if out.Eliminated {
		t.logChangesLocked(t.coalescer.Flush())
		t.history.Append(eliminationMessage(out.Player))
		t.log.Info().Str("player", out.Player.Name).Str("cause", string(out.Player.EliminatedBy)).Msg("player eliminated")
		fx.push = pushCritical
		fx.persist = true
	}
	if t.evaluateLocked() {
		fx.preset = t.finishedPresetLocked()
		fx.push = pushCritical
		fx.persist = true
	}
	fx.state = t.stateLocked()
	t.mu.Unlock()

	t.commit(ctx, fx)
	return nil
}

func eliminationMessage(p models.Player) string {
	switch p.EliminatedBy {
	case models.CauseCommanderDamage:
		return fmt.Sprintf("%s has been eliminated by commander damage!", p.Name)
	case models.CausePoison:
		return fmt.Sprintf("%s has been eliminated by poison!", p.Name)
	}
	return fmt.Sprintf("%s has been eliminated!", p.Name)
}

// flushChanges is the coalescer callback: one log line per net change, then
// a debounced push carrying the new lines.
func (t *Table) flushChanges(changes []buffer.Change) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if t.logChangesLocked(changes) == 0 {
		t.mu.Unlock()
		return
	}
	fx := effects{state: t.stateLocked(), engine: t.engine, push: pushDebounced, persist: true}
	t.mu.Unlock()

	t.commit(context.Background(), fx)
}

func (t *Table) logChangesLocked(changes []buffer.Change) int {
	n := 0
	for _, c := range changes {
		i := models.FindPlayer(t.players, c.PlayerID)
		if i < 0 || c.Amount == 0 {
			continue
		}
		if _, ok := t.history.Append(changeMessage(t.players[i], c)); ok {
			n++
		}
	}
	return n
}

func changeMessage(p models.Player, c buffer.Change) string {
	abs := c.Amount
	if abs < 0 {
		abs = -abs
	}
	switch c.Kind {
	case models.ChangeLife:
		verb := "gained"
		if c.Amount < 0 {
			verb = "lost"
		}
		return fmt.Sprintf("%s %s %d life. New total: %d", p.Name, verb, abs, p.Life)
	case models.ChangeCommanderDamage:
		if c.Amount < 0 {
			return fmt.Sprintf("%s had %d commander damage removed. Total: %d", p.Name, abs, p.CommanderDamage)
		}
		return fmt.Sprintf("%s received %d commander damage. Total: %d", p.Name, abs, p.CommanderDamage)
	case models.ChangePoison:
		verb := "received"
		if c.Amount < 0 {
			verb = "removed"
		}
		noun := "poison counters"
		if abs == 1 {
			noun = "poison counter"
		}
		return fmt.Sprintf("%s %s %d %s. New total: %d", p.Name, verb, abs, noun, p.PoisonCounters)
	}
	return ""
}

// Press starts a press-and-hold on a counter: amount now, then ten times
// amount every hold interval until Release. The key is claimed before the
// first step so a Release arriving mid-press still ends it.
func (t *Table) Press(ctx context.Context, playerID string, kind models.ChangeKind, amount int) error {
	key := holdKey{playerID: playerID, kind: kind}
	claim := &buffer.Hold{}
	t.mu.Lock()
	if err := t.checkChangeLocked(playerID, kind, amount); err != nil {
		t.mu.Unlock()
		return err
	}
	previous := t.holds[key]
	t.holds[key] = claim
	t.mu.Unlock()
	previous.Release()

	var firstErr error
	first := true
	hold := buffer.StartHold(t.clock, t.cfg.HoldInterval, amount, func(delta int) bool {
		c := context.Background()
		if first {
			c = ctx
		}
		err := t.change(c, playerID, kind, delta)
		if first {
			firstErr = err
			first = false
		}
		return err == nil
	})

	t.mu.Lock()
	ours := t.holds[key] == claim
	if ours && firstErr == nil && !t.closed {
		t.holds[key] = hold
		t.mu.Unlock()
		return nil
	}
	if ours {
		delete(t.holds, key)
	}
	closed := t.closed
	t.mu.Unlock()

	hold.Release()
	if firstErr != nil {
		return firstErr
	}
	if closed {
		return ErrClosed
	}
	return nil
}

// Release ends a press-and-hold. Releasing nothing is a no-op.
func (t *Table) Release(playerID string, kind models.ChangeKind) {
	key := holdKey{playerID: playerID, kind: kind}
	t.mu.Lock()
	hold := t.holds[key]
	delete(t.holds, key)
	t.mu.Unlock()
	hold.Release()
}

// takeHoldsLocked detaches the holds for one player, or all when playerID is
// empty. The caller releases them after unlocking.
func (t *Table) takeHoldsLocked(playerID string) []*buffer.Hold {
	var out []*buffer.Hold
	for k, h := range t.holds {
		if playerID == "" || k.playerID == playerID {
			out = append(out, h)
			delete(t.holds, k)
		}
	}
	return out
}

func releaseAll(holds []*buffer.Hold) {
	for _, h := range holds {
		h.Release()
	}
}
