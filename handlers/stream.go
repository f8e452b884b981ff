// handlers/stream.go
package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"codeisles-arena/middleware"
	"codeisles-arena/services"
)

const (
	keepaliveInterval = 15 * time.Second
	writeDeadline     = 5 * time.Second
)

func setupStreamRoutes(app *fiber.App, h *BattleHandler, streamAuth fiber.Handler) {
	app.Get("/stream/battles", streamAuth, h.StreamBattlesSSE)
	app.Get("/ws/battles", streamAuth, webSocketUpgrader, websocket.New(h.streamBattlesWebSocket))
}

// StreamBattlesSSE streams `session` and `no_active_session` events for the authenticated player.
func (h *BattleHandler) StreamBattlesSSE(c *fiber.Ctx) error {
	playerID := middleware.UserID(c)

	// subscribe before switching to streaming so a store failure is still a plain 503
	sub, err := h.Battles.Subscribe(context.Background(), playerID)
	if err != nil {
		return respondError(c, err, "subscribe")
	}

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer sub.Close()
		log.Debug().Str("player_id", playerID).Msg("[STREAM] sse opened")
		if err := writeSSE(w, sub, keepaliveInterval); err != nil {
			log.Debug().Err(err).Str("player_id", playerID).Msg("[STREAM] sse closed")
		}
	})
	return nil
}

// writeSSE copies events to w until the subscription ends or the client goes away.
func writeSSE(w *bufio.Writer, sub *services.Subscription, keepalive time.Duration) error {
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	// Initial keepalive (comment event)
	if _, err := w.WriteString(":\n\n"); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
		case <-ticker.C:
			if _, err := w.WriteString(":\n\n"); err != nil {
				return err
			}
		}

		// Flush fails once the client disconnected
		if err := w.Flush(); err != nil {
			return err
		}
	}
}

func webSocketUpgrader(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

type wsError struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func (h *BattleHandler) streamBattlesWebSocket(conn *websocket.Conn) {
	playerID, _ := conn.Locals(middleware.UserIDLocal).(string)

	sub, err := h.Battles.Subscribe(context.Background(), playerID)
	if err != nil {
		log.Error().Err(err).Str("player_id", playerID).Msg("[STREAM] websocket subscribe failed")
		_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		_ = conn.WriteJSON(wsError{Kind: "error", Error: "store unavailable, try again"})
		return
	}
	defer sub.Close()

	// the client sends nothing; reading only detects the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Str("player_id", playerID).Msg("[STREAM] websocket write failed")
				return
			}
		case <-closed:
			return
		}
	}
}
