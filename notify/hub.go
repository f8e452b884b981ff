package notify

import (
	"context"
	"sync"

	"codeisles-arena/models"
)

// subscriberBuffer bounds how far a slow subscriber may lag before pushes are dropped.
// Subscribers re-read the store periodically, so a dropped push is repaired later.
const subscriberBuffer = 16

// Hub is an in-process Notifier for single-instance deployments and tests.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*hubSubscriber]struct{}
}

type hubSubscriber struct {
	ch   chan models.BattleSession
	once sync.Once
}

var _ Notifier = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[*hubSubscriber]struct{})}
}

func (h *Hub) Publish(_ context.Context, session models.BattleSession) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, playerID := range session.Players() {
		for sub := range h.subscribers[playerID] {
			select {
			case sub.ch <- session:
			default:
			}
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, playerID string) (<-chan models.BattleSession, func(), error) {
	sub := &hubSubscriber{ch: make(chan models.BattleSession, subscriberBuffer)}

	h.mu.Lock()
	if h.subscribers[playerID] == nil {
		h.subscribers[playerID] = make(map[*hubSubscriber]struct{})
	}
	h.subscribers[playerID][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers[playerID], sub)
			if len(h.subscribers[playerID]) == 0 {
				delete(h.subscribers, playerID)
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel, nil
}

// SubscriberCount reports how many live subscriptions exist for playerID.
func (h *Hub) SubscriberCount(playerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[playerID])
}
