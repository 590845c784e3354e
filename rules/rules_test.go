package rules

import (
	"math/rand"
	"testing"

	"lifesync/models"
)

func roster(n int) []models.Player {
	players := make([]models.Player, 0, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		players = append(players, models.NewPlayer(id, "Player "+id, models.ManaColors[i%len(models.ManaColors)], i == 0))
	}
	return players
}

func TestCountersNeverGoNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	kinds := []models.ChangeKind{models.ChangeLife, models.ChangeCommanderDamage, models.ChangePoison}
	players := roster(3)

	for i := 0; i < 5000; i++ {
		id := players[rng.Intn(len(players))].ID
		kind := kinds[rng.Intn(len(kinds))]
		amount := rng.Intn(61) - 30
		players, _ = Apply(players, id, kind, amount)
		for _, p := range players {
			if p.Life < 0 || p.CommanderDamage < 0 || p.PoisonCounters < 0 {
				t.Fatalf("step %d: negative counter on %s: life=%d cmd=%d poison=%d",
					i, p.ID, p.Life, p.CommanderDamage, p.PoisonCounters)
			}
		}
	}
}

func TestEliminationIsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	kinds := []models.ChangeKind{models.ChangeLife, models.ChangeCommanderDamage, models.ChangePoison}
	players := roster(1)
	dead := false

	for i := 0; i < 2000; i++ {
		players, _ = Apply(players, "a", kinds[rng.Intn(len(kinds))], rng.Intn(41)-20)
		if dead && !players[0].IsDead {
			t.Fatalf("step %d: player came back to life", i)
		}
		dead = players[0].IsDead
	}
	if !dead {
		t.Fatalf("expected random walk to eliminate the player at some point")
	}
}

func TestPositiveLifeDoesNotRevive(t *testing.T) {
	players := roster(2)
	players, out := ApplyLifeDelta(players, "a", -40)
	if !out.Eliminated || !out.Player.IsDead {
		t.Fatalf("expected elimination at 0 life, got %+v", out)
	}
	players, out = ApplyLifeDelta(players, "a", 15)
	if out.Player.Life != 15 {
		t.Fatalf("expected life 15, got %d", out.Player.Life)
	}
	if !out.Player.IsDead || out.Eliminated {
		t.Fatalf("expected player to stay dead without a second elimination, got %+v", out)
	}
	if players[0].EliminatedBy != models.CauseLife {
		t.Fatalf("expected cause life, got %q", players[0].EliminatedBy)
	}
}

func TestCommanderDamageDualEffect(t *testing.T) {
	cases := []struct {
		name              string
		life, damage, d   int
		wantLife, wantDmg int
		wantDead          bool
		wantCause         models.EliminationCause
	}{
		{"plain hit", 40, 0, 5, 35, 5, false, models.CauseNone},
		{"lethal threshold", 40, 16, 5, 35, 21, true, models.CauseCommanderDamage},
		{"life runs out first", 4, 3, 6, 0, 9, true, models.CauseLife},
		{"undo heals", 30, 10, -4, 34, 6, false, models.CauseNone},
		{"undo floors damage", 30, 2, -5, 35, 0, false, models.CauseNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := models.NewPlayer("a", "A", models.ManaRed, false)
			p.Life = tc.life
			p.CommanderDamage = tc.damage
			_, out := ApplyCommanderDamageDelta([]models.Player{p}, "a", tc.d)
			if out.Player.Life != tc.wantLife || out.Player.CommanderDamage != tc.wantDmg {
				t.Fatalf("got life=%d dmg=%d, want life=%d dmg=%d",
					out.Player.Life, out.Player.CommanderDamage, tc.wantLife, tc.wantDmg)
			}
			if out.Player.IsDead != tc.wantDead || out.Player.EliminatedBy != tc.wantCause {
				t.Fatalf("got dead=%v cause=%q, want dead=%v cause=%q",
					out.Player.IsDead, out.Player.EliminatedBy, tc.wantDead, tc.wantCause)
			}
		})
	}
}

func TestPoisonEliminatesAtTen(t *testing.T) {
	p := models.NewPlayer("a", "A", models.ManaGreen, false)
	p.PoisonCounters = 9
	_, out := ApplyPoisonDelta([]models.Player{p}, "a", 1)
	if out.Player.PoisonCounters != 10 || !out.Player.IsDead || !out.Eliminated {
		t.Fatalf("expected elimination at 10 poison, got %+v", out.Player)
	}
	if out.Player.EliminatedBy != models.CausePoison {
		t.Fatalf("expected poison cause, got %q", out.Player.EliminatedBy)
	}
}

func TestDeltaOnUnknownPlayer(t *testing.T) {
	players := roster(2)
	next, out := ApplyLifeDelta(players, "zz", -5)
	if out.Found {
		t.Fatalf("expected unknown id to be reported as not found")
	}
	if next[0].Life != models.StartingLife || next[1].Life != models.StartingLife {
		t.Fatalf("expected roster untouched")
	}
}

func TestApplyDoesNotAliasInput(t *testing.T) {
	players := roster(2)
	_, _ = ApplyLifeDelta(players, "a", -10)
	if players[0].Life != models.StartingLife {
		t.Fatalf("input slice mutated: life=%d", players[0].Life)
	}
}

func TestTwoPlayerWin(t *testing.T) {
	players := roster(2)
	players, _ = ApplyPoisonDelta(players, "b", 10)
	state, res := Evaluate(models.GameState{Players: players})

	if !res.Ended || res.Winner.ID != "a" {
		t.Fatalf("expected a to win, got %+v", res)
	}
	if !state.GameEnded {
		t.Fatalf("expected game ended")
	}
	if !state.Players[0].HasCrown || state.Players[1].HasCrown {
		t.Fatalf("crown on wrong player: %+v", state.Players)
	}
	if !state.Players[1].IsDead {
		t.Fatalf("expected loser confirmed dead")
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	players := roster(3)
	players, _ = ApplyLifeDelta(players, "b", -40)
	players, _ = ApplyCommanderDamageDelta(players, "c", 21)

	first, res := Evaluate(models.GameState{Players: players})
	if !res.Ended {
		t.Fatalf("expected first pass to end the game")
	}
	second, res := Evaluate(first)
	if res.Ended {
		t.Fatalf("expected second pass to be a no-op")
	}
	for i := range first.Players {
		if first.Players[i] != second.Players[i] {
			t.Fatalf("player %d changed on second pass: %+v vs %+v", i, first.Players[i], second.Players[i])
		}
	}
	if second.Players[0].Stats.GamesPlayed != 1 || second.Players[0].Stats.Wins != 1 {
		t.Fatalf("expected stats counted once, got %+v", second.Players[0].Stats)
	}
}

func TestNoWinner(t *testing.T) {
	t.Run("single player", func(t *testing.T) {
		_, res := Evaluate(models.GameState{Players: roster(1)})
		if res.Ended {
			t.Fatalf("single player game must not end")
		}
	})
	t.Run("everyone dead", func(t *testing.T) {
		players := roster(2)
		players, _ = ApplyLifeDelta(players, "a", -40)
		players, _ = ApplyLifeDelta(players, "b", -40)
		_, res := Evaluate(models.GameState{Players: players})
		if res.Ended {
			t.Fatalf("expected no winner when nobody survives")
		}
	})
	t.Run("two alive", func(t *testing.T) {
		_, res := Evaluate(models.GameState{Players: roster(3)})
		if res.Ended {
			t.Fatalf("expected game to continue")
		}
	})
}

func TestStatsFinalizationTracksCause(t *testing.T) {
	players := roster(4)
	players, _ = ApplyLifeDelta(players, "a", 5)
	players, _ = ApplyCommanderDamageDelta(players, "b", 21)
	players, _ = ApplyPoisonDelta(players, "c", 10)
	players, _ = ApplyLifeDelta(players, "d", -40)

	state, res := Evaluate(models.GameState{Players: players})
	if !res.Ended || res.Winner.ID != "a" {
		t.Fatalf("expected a to win, got %+v", res)
	}

	a, b, c, d := state.Players[0].Stats, state.Players[1].Stats, state.Players[2].Stats, state.Players[3].Stats
	if a.Wins != 1 || a.GamesPlayed != 1 || a.TotalLifeGained != 5 {
		t.Fatalf("winner stats wrong: %+v", a)
	}
	if b.TotalCommanderDamageReceived != 21 || b.TotalCommanderDamageDealt != 21 || b.TotalLifeLost != 21 {
		t.Fatalf("commander victim stats wrong: %+v", b)
	}
	if c.TotalPoisonCountersReceived != 10 || c.TotalPoisonCountersGiven != 10 || c.TotalCommanderDamageReceived != 0 {
		t.Fatalf("poison victim stats wrong: %+v", c)
	}
	if d.TotalLifeLost != 40 || d.TotalPoisonCountersReceived != 0 || d.TotalCommanderDamageReceived != 0 {
		t.Fatalf("life victim stats wrong: %+v", d)
	}
	for _, s := range []models.PlayerStats{b, c, d} {
		if s.Wins != 0 || s.GamesPlayed != 1 {
			t.Fatalf("loser stats wrong: %+v", s)
		}
	}
}

func TestResetClearsGameButKeepsStats(t *testing.T) {
	players := roster(2)
	players, _ = ApplyPoisonDelta(players, "b", 10)
	state, _ := Evaluate(models.GameState{Players: players})

	fresh := Reset(state.Players)
	for _, p := range fresh {
		if p.IsDead || p.HasCrown || p.Life != models.StartingLife || p.PoisonCounters != 0 || p.EliminatedBy != models.CauseNone {
			t.Fatalf("player not reset: %+v", p)
		}
		if p.Stats.GamesPlayed != 1 {
			t.Fatalf("reset must keep cumulative stats, got %+v", p.Stats)
		}
	}
}
