package models

import (
	"time"

	"gorm.io/datatypes"
)

// Session is the local view of a multiplayer room.
type Session struct {
	ID      string   `json:"id"`
	HostID  string   `json:"hostId"`
	IsHost  bool     `json:"isHost"`
	Members []string `json:"players"`
}

// SessionRecord is the remote root for one room: host, membership and the
// synchronized gameState payload (null until the host writes it).
type SessionRecord struct {
	ID        string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	HostID    string          `gorm:"index;not null" json:"hostId"`
	GameState datatypes.JSON  `json:"gameState"`
	Version   int64           `gorm:"not null;default:0" json:"version"`
	Members   []SessionMember `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime;index" json:"updatedAt"`
}

func (SessionRecord) TableName() string { return "sessions" }

// SessionMember is the membership set written at join time.
type SessionMember struct {
	SessionID string    `gorm:"primaryKey;type:varchar(64)" json:"sessionId"`
	PlayerID  string    `gorm:"primaryKey;type:varchar(64)" json:"playerId"`
	JoinedAt  time.Time `gorm:"autoCreateTime" json:"joinedAt"`
}

func (SessionMember) TableName() string { return "session_members" }
