package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"codeisles-arena/models"
	"codeisles-arena/notify"
	"codeisles-arena/store"
)

type fixture struct {
	store       *store.MemoryStore
	hub         *notify.Hub
	matchmaking *MatchmakingService
	battles     *BattleService
	players     *PlayerService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	hub := notify.NewHub()
	return &fixture{
		store:       st,
		hub:         hub,
		matchmaking: NewMatchmakingService(st, hub, 15*time.Minute),
		battles:     NewBattleService(st, hub, time.Hour),
		players:     NewPlayerService(st),
	}
}

// pair queues a then pairs b with it and returns the new session id.
func (f *fixture) pair(t *testing.T, a, b string) string {
	t.Helper()
	ctx := context.Background()
	first, err := f.matchmaking.FindOrEnqueue(ctx, a, "Graphs", "Hard")
	require.NoError(t, err)
	require.False(t, first.Paired)
	second, err := f.matchmaking.FindOrEnqueue(ctx, b, "Graphs", "Hard")
	require.NoError(t, err)
	require.True(t, second.Paired)
	return second.SessionID
}

func nextEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func noEvent(t *testing.T, sub *Subscription, wait time.Duration) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(wait):
	}
}

// faultyStore injects failures into transactions of a MemoryStore.
type faultyStore struct {
	*store.MemoryStore
	wrap func(store.Tx) store.Tx
}

func (f *faultyStore) Transact(ctx context.Context, fn func(tx store.Tx) error) error {
	return f.MemoryStore.Transact(ctx, func(tx store.Tx) error {
		return fn(f.wrap(tx))
	})
}

type failCreateTx struct{ store.Tx }

func (failCreateTx) CreateSession(*models.BattleSession) error {
	return eris.Wrap(store.ErrStoreUnavailable, "injected create failure")
}

type failSaveTx struct{ store.Tx }

func (failSaveTx) SavePlayer(*models.Player) error {
	return eris.Wrap(store.ErrStoreUnavailable, "injected save failure")
}

// silentNotifier accepts publishes and never delivers them.
type silentNotifier struct{}

func (silentNotifier) Publish(context.Context, models.BattleSession) error { return nil }

func (silentNotifier) Subscribe(context.Context, string) (<-chan models.BattleSession, func(), error) {
	return make(chan models.BattleSession), func() {}, nil
}

// lockRecorder logs the order in which a transaction takes its locks.
type lockRecorder struct {
	store.Tx
	mu    *sync.Mutex
	calls *[]string
}

func (r lockRecorder) record(call string) {
	r.mu.Lock()
	*r.calls = append(*r.calls, call)
	r.mu.Unlock()
}

func (r lockRecorder) LockPlayer(playerID string) error {
	r.record("player:" + playerID)
	return r.Tx.LockPlayer(playerID)
}

func (r lockRecorder) LockPartition(topic string, difficulty models.Difficulty) error {
	r.record("partition:" + models.PartitionKey(topic, difficulty))
	return r.Tx.LockPartition(topic, difficulty)
}
