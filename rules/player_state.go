// Package rules holds the pure transformations over a player roster: counter
// deltas with their floors and thresholds, and the end-of-game evaluator.
package rules

import (
	"lifesync/models"
)

// Outcome describes what a single delta did to its target.
type Outcome struct {
	Found bool
	// Player is the target after the transition.
	Player models.Player
	// Eliminated is true only when this transition moved the player from
	// alive to dead.
	Eliminated bool
}

// ApplyLifeDelta moves life by amount, floored at zero.
func ApplyLifeDelta(players []models.Player, id string, amount int) ([]models.Player, Outcome) {
	return apply(players, id, func(p *models.Player) {
		p.Life = floor(p.Life + amount)
		if p.Life <= 0 {
			markDead(p, models.CauseLife)
		}
	})
}

// ApplyCommanderDamageDelta adds commander damage and takes the same amount
// off life. Either floor can hold independently.
func ApplyCommanderDamageDelta(players []models.Player, id string, amount int) ([]models.Player, Outcome) {
	return apply(players, id, func(p *models.Player) {
		p.CommanderDamage = floor(p.CommanderDamage + amount)
		p.Life = floor(p.Life - amount)
		switch {
		case p.CommanderDamage >= models.CommanderDamageLethal:
			markDead(p, models.CauseCommanderDamage)
		case p.Life <= 0:
			markDead(p, models.CauseLife)
		}
	})
}

// ApplyPoisonDelta moves poison counters, floored at zero.
func ApplyPoisonDelta(players []models.Player, id string, amount int) ([]models.Player, Outcome) {
	return apply(players, id, func(p *models.Player) {
		p.PoisonCounters = floor(p.PoisonCounters + amount)
		if p.PoisonCounters >= models.PoisonLethal {
			markDead(p, models.CausePoison)
		}
	})
}

// Apply dispatches on kind. An unknown kind leaves the roster untouched.
func Apply(players []models.Player, id string, kind models.ChangeKind, amount int) ([]models.Player, Outcome) {
	switch kind {
	case models.ChangeLife:
		return ApplyLifeDelta(players, id, amount)
	case models.ChangeCommanderDamage:
		return ApplyCommanderDamageDelta(players, id, amount)
	case models.ChangePoison:
		return ApplyPoisonDelta(players, id, amount)
	}
	return models.ClonePlayers(players), Outcome{}
}

// Reset puts every player back at starting values for a new game.
func Reset(players []models.Player) []models.Player {
	out := models.ClonePlayers(players)
	for i := range out {
		out[i] = out[i].Fresh()
	}
	return out
}

func apply(players []models.Player, id string, mutate func(p *models.Player)) ([]models.Player, Outcome) {
	out := models.ClonePlayers(players)
	i := models.FindPlayer(out, id)
	if i < 0 {
		return out, Outcome{}
	}
	wasDead := out[i].IsDead
	mutate(&out[i])
	return out, Outcome{
		Found:      true,
		Player:     out[i],
		Eliminated: !wasDead && out[i].IsDead,
	}
}

// markDead is one-way: a dead player stays dead and keeps the first cause.
func markDead(p *models.Player, cause models.EliminationCause) {
	if p.IsDead {
		return
	}
	p.IsDead = true
	p.EliminatedBy = cause
}

func floor(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
