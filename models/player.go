package models

const (
	StartingLife          = 40
	CommanderDamageLethal = 21
	PoisonLethal          = 10
	MaxLocalPlayers       = 4
)

// DefaultIcon is the card-back image used until a player picks art.
const DefaultIcon = "https://gatherer.wizards.com/Handlers/Image.ashx?type=card&multiverseid=0"

type ManaColor string

const (
	ManaWhite ManaColor = "white"
	ManaBlue  ManaColor = "blue"
	ManaBlack ManaColor = "black"
	ManaRed   ManaColor = "red"
	ManaGreen ManaColor = "green"
)

// ManaColors is the rotation used when seating new local players.
var ManaColors = []ManaColor{ManaWhite, ManaBlue, ManaBlack, ManaRed, ManaGreen}

func (c ManaColor) Valid() bool {
	switch c {
	case ManaWhite, ManaBlue, ManaBlack, ManaRed, ManaGreen:
		return true
	}
	return false
}

// EliminationCause records which threshold took a player out. Stats
// finalization needs the cause, not just IsDead.
type EliminationCause string

const (
	CauseNone            EliminationCause = ""
	CauseLife            EliminationCause = "life"
	CauseCommanderDamage EliminationCause = "commander_damage"
	CausePoison          EliminationCause = "poison"
	// CauseDefeated marks players closed out by a win rather than by a threshold.
	CauseDefeated EliminationCause = "defeated"
)

// PlayerStats are cumulative across games. Only touched at game end.
type PlayerStats struct {
	GamesPlayed                  int `json:"gamesPlayed"`
	Wins                         int `json:"wins"`
	TotalLifeGained              int `json:"totalLifeGained"`
	TotalLifeLost                int `json:"totalLifeLost"`
	TotalCommanderDamageDealt    int `json:"totalCommanderDamageDealt"`
	TotalCommanderDamageReceived int `json:"totalCommanderDamageReceived"`
	TotalPoisonCountersGiven     int `json:"totalPoisonCountersGiven"`
	TotalPoisonCountersReceived  int `json:"totalPoisonCountersReceived"`
}

type Player struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Life            int              `json:"life"`
	ManaColor       ManaColor        `json:"manaColor"`
	CommanderDamage int              `json:"commanderDamage"`
	PoisonCounters  int              `json:"poisonCounters"`
	IsDead          bool             `json:"isDead"`
	HasCrown        bool             `json:"hasCrown"`
	Icon            string           `json:"icon"`
	Stats           PlayerStats      `json:"stats"`
	IsHost          bool             `json:"isHost"`
	EliminatedBy    EliminationCause `json:"eliminatedBy,omitempty"`
}

// NewPlayer seats a player at starting values.
func NewPlayer(id, name string, color ManaColor, isHost bool) Player {
	return Player{
		ID:        id,
		Name:      name,
		Life:      StartingLife,
		ManaColor: color,
		Icon:      DefaultIcon,
		IsHost:    isHost,
	}
}

// Fresh returns the player back at starting values for a new game. Identity,
// cosmetics and cumulative stats are kept.
func (p Player) Fresh() Player {
	p.Life = StartingLife
	p.CommanderDamage = 0
	p.PoisonCounters = 0
	p.IsDead = false
	p.HasCrown = false
	p.EliminatedBy = CauseNone
	return p
}

// FindPlayer returns the index of the player with id, or -1.
func FindPlayer(players []Player, id string) int {
	for i := range players {
		if players[i].ID == id {
			return i
		}
	}
	return -1
}

// ClonePlayers copies the slice so callers can mutate without aliasing.
func ClonePlayers(players []Player) []Player {
	if players == nil {
		return []Player{}
	}
	out := make([]Player, len(players))
	copy(out, players)
	return out
}
