// Package notify pushes battle session snapshots to the players who take part in them.
package notify

import (
	"context"

	"codeisles-arena/models"
)

// Notifier fans session snapshots out to per-player subscribers.
type Notifier interface {
	// Publish delivers the snapshot to every subscriber of either player.
	Publish(ctx context.Context, session models.BattleSession) error
	// Subscribe returns a channel of snapshots for playerID. The cancel func releases the
	// subscription and closes the channel.
	Subscribe(ctx context.Context, playerID string) (<-chan models.BattleSession, func(), error)
}
