package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"codeisles-arena/models"
)

// RedisNotifier fans snapshots out through Redis pub/sub so every service instance sees
// sessions created or decided by any other instance.
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

var _ Notifier = (*RedisNotifier)(nil)

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client, prefix: "battles:player:"}
}

func (n *RedisNotifier) channel(playerID string) string {
	return fmt.Sprintf("%s%s", n.prefix, playerID)
}

func (n *RedisNotifier) Publish(ctx context.Context, session models.BattleSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return eris.Wrap(err, "encode battle session")
	}
	for _, playerID := range session.Players() {
		if err := n.client.Publish(ctx, n.channel(playerID), payload).Err(); err != nil {
			return eris.Wrapf(err, "publish to %s", playerID)
		}
	}
	return nil
}

func (n *RedisNotifier) Subscribe(ctx context.Context, playerID string) (<-chan models.BattleSession, func(), error) {
	pubsub := n.client.Subscribe(ctx, n.channel(playerID))
	// Wait for the subscription confirmation so no publish after this call is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, eris.Wrapf(err, "subscribe %s", playerID)
	}

	out := make(chan models.BattleSession, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var session models.BattleSession
				if err := json.Unmarshal([]byte(msg.Payload), &session); err != nil {
					log.Warn().Err(err).Str("channel", msg.Channel).Msg("[NOTIFY] dropping undecodable payload")
					continue
				}
				select {
				case out <- session:
				default:
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}
