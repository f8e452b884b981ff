package models

import "time"

// DefaultRating is given to every new player profile.
const DefaultRating = 1200

// Player is the local battle profile of an authenticated user.
type Player struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID    string `gorm:"uniqueIndex;not null" json:"playerId"` // identity from the gateway (X-User-ID)
	DisplayName string `json:"displayName"`
	Rating      int    `gorm:"not null;default:1200" json:"rating"`
	Wins        int64  `gorm:"default:0" json:"wins"`
	Losses      int64  `gorm:"default:0" json:"losses"`
	Matches     int64  `gorm:"default:0" json:"matches"`

	Timestamps
}

// Timestamps adds GORM auto-times. Profiles are never deleted.
type Timestamps struct {
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}
