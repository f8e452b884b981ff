// Package store persists queue entries, battle sessions and player profiles.
//
// Callers depend on the Store interface; GormStore backs production with PostgreSQL and
// MemoryStore backs tests and single-process development runs.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"codeisles-arena/models"
)

var (
	// ErrStoreUnavailable marks a transient failure talking to the backing store.
	ErrStoreUnavailable = eris.New("store unavailable")
	// ErrPreconditionFailed marks an operation on a record that no longer exists.
	ErrPreconditionFailed = eris.New("precondition failed")
	// ErrInvalidArgument marks malformed input (unknown topic, empty player id, ...).
	ErrInvalidArgument = eris.New("invalid argument")
	// ErrNotParticipant marks a submit from a player who is not in the session.
	ErrNotParticipant = eris.New("player is not a participant of this battle")
)

// Store is the injected handle to the backing store.
type Store interface {
	// Transact runs fn atomically: either every write in fn is applied or none is.
	Transact(ctx context.Context, fn func(tx Tx) error) error

	Session(ctx context.Context, sessionID string) (*models.BattleSession, error)
	ActiveSessions(ctx context.Context, playerID string) ([]models.BattleSession, error)
	QueueEntries(ctx context.Context, playerID string) ([]models.QueueEntry, error)
	Player(ctx context.Context, playerID string) (*models.Player, error)

	// UpsertPlayer creates the profile or refreshes its display name.
	UpsertPlayer(ctx context.Context, player *models.Player) error
	// EvictQueueEntries deletes entries whose player was last seen before the cutoff.
	EvictQueueEntries(ctx context.Context, seenBefore time.Time) (int64, error)

	Ping(ctx context.Context) error
}

// Tx is the set of operations available inside Transact.
type Tx interface {
	// LockPlayer serializes queue changes of one player until commit.
	// Callers take it before LockPartition.
	LockPlayer(playerID string) error
	// LockPartition serializes matchmaking for one (topic, difficulty) partition until commit.
	LockPartition(topic string, difficulty models.Difficulty) error
	QueueEntriesForPlayer(playerID string) ([]models.QueueEntry, error)
	// ClaimWaiting returns the oldest entry in the partition not owned by excludePlayerID,
	// or nil when the partition is empty.
	ClaimWaiting(topic string, difficulty models.Difficulty, excludePlayerID string) (*models.QueueEntry, error)
	// DeleteQueueEntry fails with ErrPreconditionFailed when the entry is already gone.
	DeleteQueueEntry(entryID string) error
	InsertQueueEntry(entry *models.QueueEntry) error
	// TouchQueueEntry records a repeated request for the entry. Its place in line is kept.
	TouchQueueEntry(entryID string, at time.Time) error

	CreateSession(session *models.BattleSession) error
	Session(sessionID string) (*models.BattleSession, error)
	// DecideSession sets winner and status only while the session is still active.
	// It reports false when another submit already decided it.
	DecideSession(sessionID, winnerID string, decidedAt time.Time) (bool, error)

	// EnsurePlayer loads the profile, creating it with the default rating when missing.
	EnsurePlayer(playerID string) (*models.Player, error)
	SavePlayer(player *models.Player) error
}

func unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return eris.Wrapf(ErrStoreUnavailable, "%s: %v", op, err)
}

func sessionNotFound(sessionID string) error {
	return eris.Wrapf(ErrPreconditionFailed, "battle session %s not found", sessionID)
}
