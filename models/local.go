package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PresetRecord backs the local "presets" key.
type PresetRecord struct {
	ID        string         `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Slug      string         `gorm:"index" json:"slug"`
	Players   datatypes.JSON `json:"players"`
	GameState datatypes.JSON `json:"gameState"`
	Timestamps
}

func (PresetRecord) TableName() string { return "presets" }

// SnapshotRecord backs the local "gameState" key.
type SnapshotRecord struct {
	Key       string         `gorm:"primaryKey" json:"key"`
	Payload   datatypes.JSON `json:"payload"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (SnapshotRecord) TableName() string { return "snapshots" }

// CardSearchEntry caches one card catalog search by normalized term.
type CardSearchEntry struct {
	Term      string         `gorm:"primaryKey" json:"term"`
	Results   datatypes.JSON `json:"results"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (CardSearchEntry) TableName() string { return "card_search_cache" }

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
