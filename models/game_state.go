package models

// GameState is the unit of synchronization. It is replaced wholesale on push
// and pull.
type GameState struct {
	Players     []Player `json:"players"`
	GameHistory []string `json:"gameHistory"`
	GameEnded   bool     `json:"gameEnded"`
}

func (s GameState) Clone() GameState {
	history := make([]string, len(s.GameHistory))
	copy(history, s.GameHistory)
	return GameState{
		Players:     ClonePlayers(s.Players),
		GameHistory: history,
		GameEnded:   s.GameEnded,
	}
}

// Payload is the wire shape written under a session's gameState key. Every
// field is optional on the wire: peers may write partial updates and history
// may carry null entries.
type Payload struct {
	Players     []Player  `json:"players"`
	GameHistory []*string `json:"gameHistory"`
	GameEnded   *bool     `json:"gameEnded"`
}

// NewPayload encodes a state for the remote store.
func NewPayload(s GameState) Payload {
	history := make([]*string, 0, len(s.GameHistory))
	for i := range s.GameHistory {
		entry := s.GameHistory[i]
		history = append(history, &entry)
	}
	ended := s.GameEnded
	return Payload{
		Players:     ClonePlayers(s.Players),
		GameHistory: history,
		GameEnded:   &ended,
	}
}

// Sanitize drops null history entries and fills missing fields with empty
// values so the payload can always be written.
func (p Payload) Sanitize() Payload {
	history := make([]*string, 0, len(p.GameHistory))
	for _, entry := range p.GameHistory {
		if entry != nil {
			history = append(history, entry)
		}
	}
	players := p.Players
	if players == nil {
		players = []Player{}
	}
	ended := p.GameEnded != nil && *p.GameEnded
	return Payload{Players: players, GameHistory: history, GameEnded: &ended}
}

// State decodes the payload, defaulting anything a peer left out.
func (p Payload) State() GameState {
	clean := p.Sanitize()
	history := make([]string, 0, len(clean.GameHistory))
	for _, entry := range clean.GameHistory {
		history = append(history, *entry)
	}
	return GameState{
		Players:     ClonePlayers(clean.Players),
		GameHistory: history,
		GameEnded:   *clean.GameEnded,
	}
}
