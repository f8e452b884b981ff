// handlers/battle_routes.go
package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"codeisles-arena/middleware"
	"codeisles-arena/models"
	"codeisles-arena/services"
	"codeisles-arena/store"
)

// BattleHandler exposes matchmaking and battle sessions over HTTP.
type BattleHandler struct {
	Matchmaking *services.MatchmakingService
	Battles     *services.BattleService
	Players     *services.PlayerService
	Store       store.Store
}

type queueRequest struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
}

type submitRequest struct {
	Code string `json:"code"`
}

// SetupBattleRoutes registers every route. streamAuth guards the stream routes, which are
// registered ahead of the secured group so its user-context middleware does not run for them.
func SetupBattleRoutes(app *fiber.App, h *BattleHandler, streamAuth fiber.Handler) {
	// 🔓 no player context needed
	app.Get("/topics", h.GetTopics)
	app.Get("/healthz", h.Health)
	setupStreamRoutes(app, h, streamAuth)

	// 🔐 player context from the Gateway
	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Post("/battles/queue", h.FindOrEnqueue)
	secured.Get("/battles/queue", h.QueueStatus)
	secured.Delete("/battles/queue", h.LeaveQueue)
	secured.Get("/battles/active", h.ActiveSessions)
	secured.Get("/battles/:id", h.GetSession)
	secured.Post("/battles/:id/submit", h.Submit)
	secured.Get("/players/me", h.GetMe)
}

func (h *BattleHandler) GetTopics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"topics":       models.Topics,
		"difficulties": models.Difficulties,
	})
}

func (h *BattleHandler) Health(c *fiber.Ctx) error {
	if err := h.Store.Ping(c.UserContext()); err != nil {
		log.Error().Err(err).Msg("[HEALTH] store ping failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *BattleHandler) FindOrEnqueue(c *fiber.Ctx) error {
	var req queueRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	playerID := middleware.UserID(c)
	res, err := h.Matchmaking.FindOrEnqueue(c.UserContext(), playerID, req.Topic, req.Difficulty)
	if err != nil {
		return respondError(c, err, "find or enqueue")
	}

	if res.Paired {
		log.Info().Str("player_id", playerID).Str("session_id", res.SessionID).Msg("⚔️ [MATCH] paired")
		return c.Status(fiber.StatusCreated).JSON(res)
	}
	log.Info().Str("player_id", playerID).Str("topic", res.Entry.Topic).Str("difficulty", string(res.Entry.Difficulty)).Msg("[MATCH] waiting")
	return c.Status(fiber.StatusAccepted).JSON(res)
}

func (h *BattleHandler) QueueStatus(c *fiber.Ctx) error {
	entries, err := h.Matchmaking.QueueStatus(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err, "queue status")
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	return c.JSON(fiber.Map{"waiting": len(entries) > 0, "entries": entries})
}

func (h *BattleHandler) LeaveQueue(c *fiber.Ctx) error {
	n, err := h.Matchmaking.LeaveQueue(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err, "leave queue")
	}
	return c.JSON(fiber.Map{"removed": n})
}

func (h *BattleHandler) ActiveSessions(c *fiber.Ctx) error {
	sessions, err := h.Battles.ActiveSessions(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err, "active sessions")
	}
	if sessions == nil {
		sessions = []models.BattleSession{}
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

func (h *BattleHandler) GetSession(c *fiber.Ctx) error {
	session, err := h.Battles.Session(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err, "get session")
	}
	return c.JSON(session)
}

func (h *BattleHandler) Submit(c *fiber.Ctx) error {
	var req submitRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
		}
	}

	sessionID := c.Params("id")
	playerID := middleware.UserID(c)
	res, err := h.Battles.Submit(c.UserContext(), sessionID, playerID)
	if err != nil {
		return respondError(c, err, "submit")
	}

	key, err := h.Battles.ArchiveCode(c.UserContext(), sessionID, playerID, req.Code)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("[SUBMIT] archive failed")
	}
	res.ArchiveKey = key

	if res.Accepted {
		log.Info().Str("session_id", sessionID).Str("winner", playerID).Int("rating_gain", res.RatingGain).Msg("🏆 [SUBMIT] battle decided")
	}
	return c.JSON(res)
}

func (h *BattleHandler) GetMe(c *fiber.Ctx) error {
	p, err := h.Players.EnsurePlayer(c.UserContext(), middleware.UserID(c), middleware.UserName(c))
	if err != nil {
		return respondError(c, err, "get player")
	}
	return c.JSON(p)
}

// respondError maps domain errors to status codes. Store failures are logged here, once.
func respondError(c *fiber.Ctx, err error, op string) error {
	status := fiber.StatusServiceUnavailable
	switch {
	case errors.Is(err, store.ErrInvalidArgument):
		status = fiber.StatusBadRequest
	case errors.Is(err, store.ErrNotParticipant):
		status = fiber.StatusForbidden
	case errors.Is(err, store.ErrPreconditionFailed):
		status = fiber.StatusNotFound
	}

	if status == fiber.StatusServiceUnavailable {
		log.Error().Err(err).Str("op", op).Str("path", c.Path()).Msg("❌ store unavailable")
		return c.Status(status).JSON(fiber.Map{"error": "store unavailable, try again"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
