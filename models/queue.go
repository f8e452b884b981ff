// models/queue.go
package models

import "time"

// QueueEntry is one player waiting for an opponent in a (topic, difficulty) partition.
type QueueEntry struct {
	ID         string     `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID   string     `gorm:"index;not null" json:"playerId"`
	Topic      string     `gorm:"type:varchar(64);not null;index:idx_queue_partition,priority:1" json:"topic"`
	Difficulty Difficulty `gorm:"type:varchar(16);not null;index:idx_queue_partition,priority:2" json:"difficulty"`
	CreatedAt  time.Time  `gorm:"not null;index:idx_queue_partition,priority:3" json:"createdAt"`
	// LastSeenAt is the latest request of the player for this partition; eviction counts from it.
	LastSeenAt time.Time  `gorm:"index" json:"lastSeenAt"`
}

// SamePartition reports whether the entry waits for the given topic and difficulty.
func (q QueueEntry) SamePartition(topic string, difficulty Difficulty) bool {
	return q.Topic == topic && q.Difficulty == difficulty
}

// PartitionKey identifies a matchmaking partition, e.g. "graphs|Hard".
func PartitionKey(topic string, difficulty Difficulty) string {
	return TopicSlug(topic) + "|" + string(difficulty)
}
