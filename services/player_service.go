package services

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"codeisles-arena/models"
	"codeisles-arena/store"
)

// PlayerService manages the local battle profiles.
type PlayerService struct {
	Store store.Store
}

func NewPlayerService(st store.Store) *PlayerService {
	return &PlayerService{Store: st}
}

// EnsurePlayer returns the profile of playerID, creating it on first contact.
// A non-empty displayName replaces the stored one.
func (s *PlayerService) EnsurePlayer(ctx context.Context, playerID, displayName string) (*models.Player, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, eris.Wrap(store.ErrInvalidArgument, "player id is required")
	}
	displayName = strings.TrimSpace(displayName)

	p, err := s.Store.Player(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if p != nil && (displayName == "" || displayName == p.DisplayName) {
		return p, nil
	}

	upsert := &models.Player{PlayerID: playerID, DisplayName: displayName, Rating: models.DefaultRating}
	if err := s.Store.UpsertPlayer(ctx, upsert); err != nil {
		return nil, err
	}
	return s.Store.Player(ctx, playerID)
}
