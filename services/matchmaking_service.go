package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"codeisles-arena/models"
	"codeisles-arena/notify"
	"codeisles-arena/store"
)

// MatchmakingService pairs players waiting in the same (topic, difficulty) partition.
type MatchmakingService struct {
	Store          store.Store
	Notifier       notify.Notifier
	BattleDuration time.Duration
	Now            func() time.Time
}

func NewMatchmakingService(st store.Store, notifier notify.Notifier, battleDuration time.Duration) *MatchmakingService {
	return &MatchmakingService{
		Store:          st,
		Notifier:       notifier,
		BattleDuration: battleDuration,
		Now:            time.Now,
	}
}

// MatchResult is returned to the player who asked for a match.
// Only this player learns SessionID synchronously; the opponent learns it from its subscription.
type MatchResult struct {
	Paired    bool                  `json:"paired"`
	SessionID string                `json:"sessionId,omitempty"`
	Session   *models.BattleSession `json:"session,omitempty"`
	Entry     *models.QueueEntry    `json:"entry,omitempty"`
}

// FindOrEnqueue pairs playerID with the oldest compatible waiter, or queues playerID.
//
// The lookup, the consumption of the waiter's entry and the creation of the session happen in
// one transaction under a partition lock, so a waiter is consumed at most once and two
// simultaneous arrivals cannot both end up waiting. A player holds at most one queue entry:
// asking again for the same partition keeps the existing entry and its place in line, asking
// for another partition replaces it. The player lock is taken before the partition lock.
func (s *MatchmakingService) FindOrEnqueue(ctx context.Context, playerID, topic, difficulty string) (*MatchResult, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, eris.Wrap(store.ErrInvalidArgument, "player id is required")
	}
	topicName, ok := models.ParseTopic(topic)
	if !ok {
		return nil, eris.Wrapf(store.ErrInvalidArgument, "unknown topic %q", topic)
	}
	level, ok := models.ParseDifficulty(difficulty)
	if !ok {
		return nil, eris.Wrapf(store.ErrInvalidArgument, "unknown difficulty %q", difficulty)
	}

	var result *MatchResult
	err := s.Store.Transact(ctx, func(tx store.Tx) error {
		result = nil
		now := s.now()

		if err := tx.LockPlayer(playerID); err != nil {
			return err
		}
		if err := tx.LockPartition(topicName, level); err != nil {
			return err
		}

		mine, err := tx.QueueEntriesForPlayer(playerID)
		if err != nil {
			return err
		}
		var kept *models.QueueEntry
		for i := range mine {
			if kept == nil && mine[i].SamePartition(topicName, level) {
				kept = &mine[i]
				continue
			}
			if err := deleteOwnEntry(tx, mine[i].ID); err != nil {
				return err
			}
		}

		waiter, err := tx.ClaimWaiting(topicName, level, playerID)
		if err != nil {
			return err
		}

		if waiter == nil {
			if kept != nil {
				if err := tx.TouchQueueEntry(kept.ID, now); err != nil {
					return err
				}
				kept.LastSeenAt = now
				result = &MatchResult{Entry: kept}
				return nil
			}
			entry := &models.QueueEntry{
				ID:         uuid.NewString(),
				PlayerID:   playerID,
				Topic:      topicName,
				Difficulty: level,
				CreatedAt:  now,
				LastSeenAt: now,
			}
			if err := tx.InsertQueueEntry(entry); err != nil {
				return err
			}
			result = &MatchResult{Entry: entry}
			return nil
		}

		if kept != nil {
			if err := deleteOwnEntry(tx, kept.ID); err != nil {
				return err
			}
		}
		if err := tx.DeleteQueueEntry(waiter.ID); err != nil {
			return err
		}

		session := &models.BattleSession{
			ID:         uuid.NewString(),
			PlayerA:    waiter.PlayerID,
			PlayerB:    playerID,
			Topic:      topicName,
			Difficulty: level,
			Status:     models.BattleStatusActive,
			StartedAt:  now,
			DeadlineAt: now.Add(s.BattleDuration),
		}
		if err := tx.CreateSession(session); err != nil {
			return err
		}
		result = &MatchResult{Paired: true, SessionID: session.ID, Session: session}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Paired {
		publish(ctx, s.Notifier, *result.Session)
	}
	return result, nil
}

// LeaveQueue removes every waiting entry of playerID and reports how many were removed.
func (s *MatchmakingService) LeaveQueue(ctx context.Context, playerID string) (int, error) {
	if strings.TrimSpace(playerID) == "" {
		return 0, eris.Wrap(store.ErrInvalidArgument, "player id is required")
	}
	removed := 0
	err := s.Store.Transact(ctx, func(tx store.Tx) error {
		removed = 0
		if err := tx.LockPlayer(playerID); err != nil {
			return err
		}
		mine, err := tx.QueueEntriesForPlayer(playerID)
		if err != nil {
			return err
		}
		for _, e := range mine {
			if err := tx.DeleteQueueEntry(e.ID); err != nil {
				if errors.Is(err, store.ErrPreconditionFailed) {
					continue
				}
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// QueueStatus lists the entries playerID is currently waiting with.
func (s *MatchmakingService) QueueStatus(ctx context.Context, playerID string) ([]models.QueueEntry, error) {
	if strings.TrimSpace(playerID) == "" {
		return nil, eris.Wrap(store.ErrInvalidArgument, "player id is required")
	}
	return s.Store.QueueEntries(ctx, playerID)
}

// EvictStale deletes entries whose player has not asked for a match within ttl.
// A zero ttl disables eviction.
func (s *MatchmakingService) EvictStale(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, nil
	}
	return s.Store.EvictQueueEntries(ctx, s.now().Add(-ttl))
}

func (s *MatchmakingService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// deleteOwnEntry tolerates an entry that a concurrent pairing in another partition consumed.
func deleteOwnEntry(tx store.Tx, entryID string) error {
	if err := tx.DeleteQueueEntry(entryID); err != nil && !errors.Is(err, store.ErrPreconditionFailed) {
		return err
	}
	return nil
}
