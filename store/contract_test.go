package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeisles-arena/models"
)

// runStoreContract exercises the behavior every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("claim returns oldest entry of other players", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		base := time.Now().Add(-time.Minute).UTC().Truncate(time.Millisecond)
		alice, bob, carol := uuid.NewString(), uuid.NewString(), uuid.NewString()

		require.NoError(t, s.Transact(ctx, func(tx Tx) error {
			for i, p := range []string{alice, bob, carol} {
				e := &models.QueueEntry{
					PlayerID:   p,
					Topic:      "Graphs",
					Difficulty: models.DifficultyHard,
					CreatedAt:  base.Add(time.Duration(i) * time.Second),
				}
				if err := tx.InsertQueueEntry(e); err != nil {
					return err
				}
			}
			return nil
		}))

		require.NoError(t, s.Transact(ctx, func(tx Tx) error {
			got, err := tx.ClaimWaiting("Graphs", models.DifficultyHard, alice)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, bob, got.PlayerID)

			none, err := tx.ClaimWaiting("Graphs", models.DifficultyEasy, alice)
			require.NoError(t, err)
			assert.Nil(t, none)
			return nil
		}))
	})

	t.Run("delete of consumed entry is a precondition failure", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		entry := &models.QueueEntry{PlayerID: uuid.NewString(), Topic: "Trees", Difficulty: models.DifficultyEasy, CreatedAt: time.Now()}
		require.NoError(t, s.Transact(ctx, func(tx Tx) error { return tx.InsertQueueEntry(entry) }))
		require.NoError(t, s.Transact(ctx, func(tx Tx) error { return tx.DeleteQueueEntry(entry.ID) }))

		err := s.Transact(ctx, func(tx Tx) error { return tx.DeleteQueueEntry(entry.ID) })
		assert.True(t, errors.Is(err, ErrPreconditionFailed), "got %v", err)
	})

	t.Run("failed transaction leaves nothing behind", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		player := uuid.NewString()
		boom := errors.New("boom")

		err := s.Transact(ctx, func(tx Tx) error {
			if err := tx.InsertQueueEntry(&models.QueueEntry{PlayerID: player, Topic: "Arrays", Difficulty: models.DifficultyMedium, CreatedAt: time.Now()}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		entries, err := s.QueueEntries(ctx, player)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("decide is compare and set", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		alice, bob := uuid.NewString(), uuid.NewString()
		session := &models.BattleSession{
			PlayerA: alice, PlayerB: bob,
			Topic: "Graphs", Difficulty: models.DifficultyHard,
			Status: models.BattleStatusActive, StartedAt: time.Now(),
		}
		require.NoError(t, s.Transact(ctx, func(tx Tx) error { return tx.CreateSession(session) }))

		active, err := s.ActiveSessions(ctx, bob)
		require.NoError(t, err)
		require.Len(t, active, 1)

		var first, second bool
		require.NoError(t, s.Transact(ctx, func(tx Tx) error {
			first, err = tx.DecideSession(session.ID, alice, time.Now())
			return err
		}))
		require.NoError(t, s.Transact(ctx, func(tx Tx) error {
			second, err = tx.DecideSession(session.ID, bob, time.Now())
			return err
		}))
		assert.True(t, first)
		assert.False(t, second)

		got, err := s.Session(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BattleStatusDecided, got.Status)
		require.NotNil(t, got.Winner)
		assert.Equal(t, alice, *got.Winner)

		active, err = s.ActiveSessions(ctx, bob)
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("missing session is a precondition failure", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Session(context.Background(), uuid.NewString())
		assert.True(t, errors.Is(err, ErrPreconditionFailed), "got %v", err)
	})

	t.Run("same player queuing in two partitions at once keeps one entry", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		player := uuid.NewString()
		partitions := []struct {
			topic      string
			difficulty models.Difficulty
		}{
			{"Graphs", models.DifficultyHard},
			{"Trees", models.DifficultyEasy},
			{"DP", models.DifficultyMedium},
			{"Strings", models.DifficultyEasy},
		}

		var wg sync.WaitGroup
		errs := make(chan error, len(partitions))
		for _, part := range partitions {
			part := part // per-iteration copy (go < 1.22 loop semantics)
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Transact(ctx, func(tx Tx) error {
					if err := tx.LockPlayer(player); err != nil {
						return err
					}
					if err := tx.LockPartition(part.topic, part.difficulty); err != nil {
						return err
					}
					mine, err := tx.QueueEntriesForPlayer(player)
					if err != nil {
						return err
					}
					for _, e := range mine {
						if err := tx.DeleteQueueEntry(e.ID); err != nil {
							return err
						}
					}
					// widen the window between the read and the insert
					time.Sleep(20 * time.Millisecond)
					return tx.InsertQueueEntry(&models.QueueEntry{PlayerID: player, Topic: part.topic, Difficulty: part.difficulty})
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		entries, err := s.QueueEntries(ctx, player)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("touch delays eviction and keeps the place in line", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		early, late := uuid.NewString(), uuid.NewString()
		now := time.Now().UTC().Truncate(time.Millisecond)
		first := &models.QueueEntry{PlayerID: early, Topic: "Sorting", Difficulty: models.DifficultyMedium, CreatedAt: now.Add(-2 * time.Hour)}
		require.NoError(t, s.Transact(ctx, func(tx Tx) error {
			if err := tx.InsertQueueEntry(first); err != nil {
				return err
			}
			return tx.InsertQueueEntry(&models.QueueEntry{PlayerID: late, Topic: "Sorting", Difficulty: models.DifficultyMedium, CreatedAt: now.Add(-time.Minute)})
		}))
		require.NoError(t, s.Transact(ctx, func(tx Tx) error { return tx.TouchQueueEntry(first.ID, now) }))

		n, err := s.EvictQueueEntries(ctx, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, s.Transact(ctx, func(tx Tx) error {
			got, err := tx.ClaimWaiting("Sorting", models.DifficultyMedium, uuid.NewString())
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, early, got.PlayerID)
			return nil
		}))

		err = s.Transact(ctx, func(tx Tx) error { return tx.TouchQueueEntry(uuid.NewString(), now) })
		assert.True(t, errors.Is(err, ErrPreconditionFailed), "got %v", err)
	})

	t.Run("evict removes only stale entries", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		stale, fresh := uuid.NewString(), uuid.NewString()
		now := time.Now()
		require.NoError(t, s.Transact(ctx, func(tx Tx) error {
			if err := tx.InsertQueueEntry(&models.QueueEntry{PlayerID: stale, Topic: "DP", Difficulty: models.DifficultyHard, CreatedAt: now.Add(-2 * time.Hour)}); err != nil {
				return err
			}
			return tx.InsertQueueEntry(&models.QueueEntry{PlayerID: fresh, Topic: "DP", Difficulty: models.DifficultyHard, CreatedAt: now})
		}))

		n, err := s.EvictQueueEntries(ctx, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		left, err := s.QueueEntries(ctx, fresh)
		require.NoError(t, err)
		assert.Len(t, left, 1)
		gone, err := s.QueueEntries(ctx, stale)
		require.NoError(t, err)
		assert.Empty(t, gone)
	})

	t.Run("players get the default rating and keep stats on upsert", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := uuid.NewString()

		require.NoError(t, s.Transact(ctx, func(tx Tx) error {
			p, err := tx.EnsurePlayer(id)
			if err != nil {
				return err
			}
			assert.Equal(t, models.DefaultRating, p.Rating)
			p.Wins = 3
			return tx.SavePlayer(p)
		}))

		require.NoError(t, s.UpsertPlayer(ctx, &models.Player{PlayerID: id, DisplayName: "Ada"}))

		p, err := s.Player(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "Ada", p.DisplayName)
		assert.EqualValues(t, 3, p.Wins)

		missing, err := s.Player(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Transact(ctx, func(tx Tx) error { return nil })
	assert.True(t, errors.Is(err, ErrStoreUnavailable), "got %v", err)

	_, err = s.ActiveSessions(ctx, "alice")
	assert.True(t, errors.Is(err, ErrStoreUnavailable), "got %v", err)
}
