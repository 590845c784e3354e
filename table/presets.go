package table

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"lifesync/models"
	"lifesync/rules"
)

func (t *Table) Presets(ctx context.Context) ([]models.Preset, error) {
	if t.local == nil {
		return nil, ErrNoLocalStore
	}
	return t.local.Presets(ctx)
}

// SavePreset stores the current roster under name, at starting values.
func (t *Table) SavePreset(ctx context.Context, name string) (models.Preset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Preset{}, fmt.Errorf("%w: preset name is empty", ErrInvalidInput)
	}
	if t.local == nil {
		return models.Preset{}, ErrNoLocalStore
	}
	t.mu.Lock()
	p := models.Preset{
		ID:      uuid.NewString(),
		Name:    name,
		Slug:    slug.Make(name),
		Players: rules.Reset(t.players),
	}
	t.mu.Unlock()

	if err := t.local.SavePreset(ctx, p); err != nil {
		t.log.Warn().Err(err).Str("preset", name).Msg("saving preset failed")
		return models.Preset{}, err
	}
	return p, nil
}

// LoadPreset replaces the game with a preset. A frozen game wins over the
// roster; otherwise the roster starts fresh.
func (t *Table) LoadPreset(ctx context.Context, id string) error {
	if t.local == nil {
		return ErrNoLocalStore
	}
	p, err := t.local.Preset(ctx, id)
	if err != nil {
		t.log.Warn().Err(err).Str("preset_id", id).Msg("loading preset failed")
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.coalescer.Flush()
	holds := t.takeHoldsLocked("")
	if p.GameState != nil {
		t.setStateLocked(*p.GameState)
	} else {
		t.setStateLocked(models.GameState{Players: rules.Reset(p.Players), GameHistory: []string{}})
	}
	t.preset = &p
	if models.FindPlayer(t.players, t.currentID) < 0 {
		t.currentID = ""
		if len(t.players) > 0 {
			t.currentID = t.players[0].ID
		}
	}
	fx := effects{engine: t.engine, push: pushDebounced, persist: true}
	if t.evaluateLocked() {
		fx.push = pushCritical
	}
	fx.state = t.stateLocked()
	t.mu.Unlock()

	releaseAll(holds)
	t.commit(ctx, fx)
	return nil
}

func (t *Table) DeletePreset(ctx context.Context, id string) error {
	if t.local == nil {
		return ErrNoLocalStore
	}
	if err := t.local.DeletePreset(ctx, id); err != nil {
		t.log.Warn().Err(err).Str("preset_id", id).Msg("deleting preset failed")
		return err
	}
	t.mu.Lock()
	if t.preset != nil && t.preset.ID == id {
		t.preset = nil
	}
	t.mu.Unlock()
	return nil
}

// SaveCurrentGameState freezes the running game into the current preset, or
// into a new one when no preset is loaded.
func (t *Table) SaveCurrentGameState(ctx context.Context) (models.Preset, error) {
	if t.local == nil {
		return models.Preset{}, ErrNoLocalStore
	}
	t.mu.Lock()
	t.logChangesLocked(t.coalescer.Flush())
	state := t.stateLocked()
	var p models.Preset
	created := t.preset == nil
	if created {
		name := fmt.Sprintf("Game %d", t.clock.Now().UnixMilli())
		p = models.Preset{ID: uuid.NewString(), Name: name, Slug: slug.Make(name)}
	} else {
		p = *t.preset
	}
	p.Players = models.ClonePlayers(state.Players)
	frozen := state.Clone()
	p.GameState = &frozen
	t.mu.Unlock()

	if err := t.local.SavePreset(ctx, p); err != nil {
		t.log.Warn().Err(err).Str("preset_id", p.ID).Msg("saving current game failed")
		return models.Preset{}, err
	}

	t.mu.Lock()
	t.preset = &p
	if created {
		t.history.Append("New preset created with current game state.")
	} else {
		t.history.Append("Current game state saved.")
	}
	fx := effects{engine: t.engine, push: pushDebounced, persist: true}
	fx.state = t.stateLocked()
	t.mu.Unlock()

	t.commit(ctx, fx)
	return p, nil
}
