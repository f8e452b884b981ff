package services

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"codeisles-arena/models"
	"codeisles-arena/notify"
	"codeisles-arena/store"
)

// Archiver keeps the raw text of a submission. utils.R2Archive satisfies it.
type Archiver interface {
	ArchiveSubmission(ctx context.Context, sessionID, playerID, code string) (string, error)
}

// BattleService owns the battle session lifecycle after pairing.
type BattleService struct {
	Store        store.Store
	Notifier     notify.Notifier
	Archive      Archiver // optional
	PollInterval time.Duration
	Now          func() time.Time
}

func NewBattleService(st store.Store, notifier notify.Notifier, pollInterval time.Duration) *BattleService {
	return &BattleService{
		Store:        st,
		Notifier:     notifier,
		PollInterval: pollInterval,
		Now:          time.Now,
	}
}

// SubmitResult reports whether this submit decided the battle.
// Accepted is false when the session was already decided; Session is then the unchanged record.
type SubmitResult struct {
	Accepted   bool                 `json:"accepted"`
	Session    models.BattleSession `json:"session"`
	RatingGain int                  `json:"ratingGain,omitempty"`
	ArchiveKey string               `json:"archiveKey,omitempty"`
}

// Submit declares playerID the winner if nobody has won yet.
// The winner update is conditional on the session still being active, so of any number of
// concurrent submits exactly one is accepted. Profiles of both players are updated in the
// same transaction.
func (s *BattleService) Submit(ctx context.Context, sessionID, playerID string) (*SubmitResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	playerID = strings.TrimSpace(playerID)
	if sessionID == "" || playerID == "" {
		return nil, eris.Wrap(store.ErrInvalidArgument, "session id and player id are required")
	}

	var result *SubmitResult
	err := s.Store.Transact(ctx, func(tx store.Tx) error {
		result = nil
		session, err := tx.Session(sessionID)
		if err != nil {
			return err
		}
		if !session.HasPlayer(playerID) {
			return eris.Wrapf(store.ErrNotParticipant, "player %s in battle %s", playerID, sessionID)
		}
		if session.IsDecided() {
			result = &SubmitResult{Session: *session}
			return nil
		}

		won, err := tx.DecideSession(sessionID, playerID, s.now())
		if err != nil {
			return err
		}
		decided, err := tx.Session(sessionID)
		if err != nil {
			return err
		}
		if !won {
			result = &SubmitResult{Session: *decided}
			return nil
		}

		winner, loser, err := loadPair(tx, playerID, decided.Opponent(playerID))
		if err != nil {
			return err
		}
		gain := applyResult(winner, loser)
		if err := tx.SavePlayer(winner); err != nil {
			return err
		}
		if err := tx.SavePlayer(loser); err != nil {
			return err
		}

		result = &SubmitResult{Accepted: true, Session: *decided, RatingGain: gain}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Accepted {
		publish(ctx, s.Notifier, result.Session)
	}
	return result, nil
}

// ArchiveCode stores the submitted text when an archive is configured.
// It returns "" without error when archiving is disabled or there is nothing to store.
func (s *BattleService) ArchiveCode(ctx context.Context, sessionID, playerID, code string) (string, error) {
	if s.Archive == nil || strings.TrimSpace(code) == "" {
		return "", nil
	}
	return s.Archive.ArchiveSubmission(ctx, sessionID, playerID, code)
}

func (s *BattleService) Session(ctx context.Context, sessionID string) (*models.BattleSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, eris.Wrap(store.ErrInvalidArgument, "session id is required")
	}
	return s.Store.Session(ctx, sessionID)
}

// ActiveSessions lists every active battle of playerID, oldest first.
func (s *BattleService) ActiveSessions(ctx context.Context, playerID string) ([]models.BattleSession, error) {
	if strings.TrimSpace(playerID) == "" {
		return nil, eris.Wrap(store.ErrInvalidArgument, "player id is required")
	}
	return s.Store.ActiveSessions(ctx, playerID)
}

// loadPair locks both profiles in id order so concurrent battles between the same players
// cannot wait on each other.
func loadPair(tx store.Tx, winnerID, loserID string) (*models.Player, *models.Player, error) {
	first, second := winnerID, loserID
	if second < first {
		first, second = second, first
	}
	a, err := tx.EnsurePlayer(first)
	if err != nil {
		return nil, nil, err
	}
	b, err := tx.EnsurePlayer(second)
	if err != nil {
		return nil, nil, err
	}
	if a.PlayerID == winnerID {
		return a, b, nil
	}
	return b, a, nil
}

func (s *BattleService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// publish pushes a committed snapshot. Subscribers repair a lost push on their next poll,
// so a failure is only logged.
func publish(ctx context.Context, notifier notify.Notifier, session models.BattleSession) {
	if notifier == nil {
		return
	}
	if err := notifier.Publish(context.WithoutCancel(ctx), session); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("[NOTIFY] publish failed")
	}
}
