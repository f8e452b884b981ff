// models/battle.go
package models

import (
	"encoding/json"
	"time"
)

// BattleStatus is the lifecycle state of a battle session.
type BattleStatus string

const (
	BattleStatusActive  BattleStatus = "active"
	BattleStatusDecided BattleStatus = "decided"
)

// BattleSession records one paired match between exactly two players.
// Status moves active → decided exactly once; Winner is set in the same update and never changes.
type BattleSession struct {
	ID         string       `gorm:"primaryKey;type:uuid" json:"sessionId"`
	PlayerA    string       `gorm:"index;not null" json:"-"` // the waiter whose queue entry was consumed
	PlayerB    string       `gorm:"index;not null" json:"-"` // the arrival that triggered pairing
	Topic      string       `gorm:"type:varchar(64);not null" json:"topic"`
	Difficulty Difficulty   `gorm:"type:varchar(16);not null" json:"difficulty"`
	Status     BattleStatus `gorm:"type:varchar(16);not null;index;default:'active'" json:"status"`
	Winner     *string      `gorm:"type:varchar(128)" json:"winner"`
	StartedAt  time.Time    `gorm:"not null" json:"startedAt"`
	DeadlineAt time.Time    `json:"deadlineAt"` // cosmetic countdown end, never enforced
	DecidedAt  *time.Time   `json:"decidedAt,omitempty"`
}

// Players returns both participants in pairing order.
func (b BattleSession) Players() []string {
	return []string{b.PlayerA, b.PlayerB}
}

// HasPlayer reports whether playerID is one of the two participants.
func (b BattleSession) HasPlayer(playerID string) bool {
	return playerID != "" && (b.PlayerA == playerID || b.PlayerB == playerID)
}

// Opponent returns the other participant, or "" when playerID is not in the session.
func (b BattleSession) Opponent(playerID string) string {
	switch playerID {
	case b.PlayerA:
		return b.PlayerB
	case b.PlayerB:
		return b.PlayerA
	}
	return ""
}

// IsDecided reports whether the winner has been fixed.
func (b BattleSession) IsDecided() bool {
	return b.Status == BattleStatusDecided
}

// battleSessionJSON avoids recursing into MarshalJSON.
type battleSessionJSON BattleSession

// MarshalJSON renders the two player columns as the canonical `players` array.
func (b BattleSession) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		battleSessionJSON
		Players []string `json:"players"`
	}{
		battleSessionJSON: battleSessionJSON(b),
		Players:           b.Players(),
	})
}

// UnmarshalJSON accepts the canonical `players` array back into the two player columns.
func (b *BattleSession) UnmarshalJSON(data []byte) error {
	var aux struct {
		battleSessionJSON
		Players []string `json:"players"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*b = BattleSession(aux.battleSessionJSON)
	if len(aux.Players) > 0 {
		b.PlayerA = aux.Players[0]
	}
	if len(aux.Players) > 1 {
		b.PlayerB = aux.Players[1]
	}
	return nil
}
