package models

// Preset is a saved local roster, optionally carrying a frozen game.
type Preset struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	Players   []Player   `json:"players"`
	GameState *GameState `json:"gameState"`
}
