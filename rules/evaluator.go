package rules

import (
	"lifesync/models"
)

// Result reports whether an evaluation pass ended the game.
type Result struct {
	Ended  bool
	Winner models.Player
}

// Alive counts players not marked dead.
func Alive(players []models.Player) int {
	n := 0
	for _, p := range players {
		if !p.IsDead {
			n++
		}
	}
	return n
}

// Evaluate is the single win check every mutation site calls. With more than
// one player and exactly one survivor it crowns the survivor, confirms the
// rest as dead, finalizes everyone's stats and marks the game ended. Calling
// it on an ended game returns the state unchanged.
func Evaluate(state models.GameState) (models.GameState, Result) {
	if state.GameEnded || len(state.Players) <= 1 || Alive(state.Players) != 1 {
		return state, Result{}
	}

	next := state.Clone()
	var winner models.Player
	for i := range next.Players {
		p := &next.Players[i]
		isWinner := !p.IsDead
		p.HasCrown = isWinner
		if !isWinner && p.EliminatedBy == models.CauseNone {
			p.EliminatedBy = models.CauseDefeated
		}
		p.Stats = FinalizeStats(*p, isWinner)
		if isWinner {
			winner = *p
		}
	}
	next.GameEnded = true
	return next, Result{Ended: true, Winner: winner}
}

// FinalizeStats folds one finished game into a player's cumulative stats.
func FinalizeStats(p models.Player, winner bool) models.PlayerStats {
	s := p.Stats
	s.GamesPlayed++
	if winner {
		s.Wins++
	}
	if p.Life > models.StartingLife {
		s.TotalLifeGained += p.Life - models.StartingLife
	}
	if p.Life < models.StartingLife {
		s.TotalLifeLost += models.StartingLife - p.Life
	}
	s.TotalCommanderDamageDealt += p.CommanderDamage
	if p.EliminatedBy == models.CauseCommanderDamage {
		s.TotalCommanderDamageReceived += models.CommanderDamageLethal
	}
	s.TotalPoisonCountersGiven += p.PoisonCounters
	if p.EliminatedBy == models.CausePoison {
		s.TotalPoisonCountersReceived += models.PoisonLethal
	}
	return s
}
