package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeisles-arena/models"
)

func receive(t *testing.T, ch <-chan models.BattleSession) models.BattleSession {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "channel closed")
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return models.BattleSession{}
}

func TestHubDeliversToBothPlayers(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	aliceCh, cancelAlice, err := hub.Subscribe(ctx, "alice")
	require.NoError(t, err)
	defer cancelAlice()
	bobCh, cancelBob, err := hub.Subscribe(ctx, "bob")
	require.NoError(t, err)
	defer cancelBob()
	carolCh, cancelCarol, err := hub.Subscribe(ctx, "carol")
	require.NoError(t, err)
	defer cancelCarol()

	session := models.BattleSession{ID: "s-1", PlayerA: "alice", PlayerB: "bob", Status: models.BattleStatusActive}
	require.NoError(t, hub.Publish(ctx, session))

	assert.Equal(t, "s-1", receive(t, aliceCh).ID)
	assert.Equal(t, "s-1", receive(t, bobCh).ID)
	select {
	case <-carolCh:
		t.Fatal("carol is not in the session")
	default:
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, cancel, err := hub.Subscribe(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, hub.SubscriberCount("alice"))

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.SubscriberCount("alice"))
	require.NoError(t, hub.Publish(context.Background(), models.BattleSession{PlayerA: "alice", PlayerB: "bob"}))
}

func TestHubDropsWhenSubscriberLags(t *testing.T) {
	hub := NewHub()
	ch, cancel, err := hub.Subscribe(context.Background(), "alice")
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		require.NoError(t, hub.Publish(context.Background(), models.BattleSession{PlayerA: "alice", PlayerB: "bob"}))
	}
	assert.Len(t, ch, subscriberBuffer)
}
