package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"codeisles-arena/models"
)

// MemoryStore keeps everything in process memory. Transactions are serialized by one mutex
// and roll back to a snapshot when fn returns an error.
type MemoryStore struct {
	mu       sync.Mutex
	queue    []models.QueueEntry // insertion order
	sessions map[string]models.BattleSession
	players  map[string]models.Player // keyed by PlayerID
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]models.BattleSession),
		players:  make(map[string]models.Player),
		now:      time.Now,
	}
}

func (s *MemoryStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err, "begin transaction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := slices.Clone(s.queue)
	sessions := maps.Clone(s.sessions)
	players := maps.Clone(s.players)

	if err := fn(&memoryTx{s: s}); err != nil {
		s.queue, s.sessions, s.players = queue, sessions, players
		return err
	}
	return nil
}

func (s *MemoryStore) Session(ctx context.Context, sessionID string) (*models.BattleSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, "load session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memoryTx{s: s}).Session(sessionID)
}

func (s *MemoryStore) ActiveSessions(ctx context.Context, playerID string) ([]models.BattleSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, "list active sessions")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.BattleSession
	for _, b := range s.sessions {
		if b.Status == models.BattleStatusActive && b.HasPlayer(playerID) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *MemoryStore) QueueEntries(ctx context.Context, playerID string) ([]models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, "list queue entries")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memoryTx{s: s}).QueueEntriesForPlayer(playerID)
}

func (s *MemoryStore) Player(ctx context.Context, playerID string) (*models.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, "load player")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) UpsertPlayer(ctx context.Context, player *models.Player) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err, "upsert player")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.players[player.PlayerID]; ok {
		existing.DisplayName = player.DisplayName
		existing.UpdatedAt = now
		s.players[player.PlayerID] = existing
		*player = existing
		return nil
	}
	if player.ID == "" {
		player.ID = uuid.NewString()
	}
	if player.Rating == 0 {
		player.Rating = models.DefaultRating
	}
	player.CreatedAt, player.UpdatedAt = now, now
	s.players[player.PlayerID] = *player
	return nil
}

func (s *MemoryStore) EvictQueueEntries(ctx context.Context, seenBefore time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable(err, "evict queue entries")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.queue)
	s.queue = slices.DeleteFunc(s.queue, func(e models.QueueEntry) bool {
		return e.LastSeenAt.Before(seenBefore)
	})
	return int64(before - len(s.queue)), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return unavailable(ctx.Err(), "ping")
}

// memoryTx runs with MemoryStore.mu held.
type memoryTx struct {
	s *MemoryStore
}

func (t *memoryTx) LockPlayer(string) error {
	return nil
}

func (t *memoryTx) LockPartition(string, models.Difficulty) error {
	return nil
}

func (t *memoryTx) QueueEntriesForPlayer(playerID string) ([]models.QueueEntry, error) {
	var out []models.QueueEntry
	for _, e := range t.s.queue {
		if e.PlayerID == playerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memoryTx) ClaimWaiting(topic string, difficulty models.Difficulty, excludePlayerID string) (*models.QueueEntry, error) {
	var found *models.QueueEntry
	for i := range t.s.queue {
		e := t.s.queue[i]
		if !e.SamePartition(topic, difficulty) || e.PlayerID == excludePlayerID {
			continue
		}
		if found == nil || e.CreatedAt.Before(found.CreatedAt) {
			found = &e
		}
	}
	return found, nil
}

func (t *memoryTx) DeleteQueueEntry(entryID string) error {
	i := slices.IndexFunc(t.s.queue, func(e models.QueueEntry) bool { return e.ID == entryID })
	if i < 0 {
		return eris.Wrapf(ErrPreconditionFailed, "queue entry %s already consumed", entryID)
	}
	t.s.queue = slices.Delete(t.s.queue, i, i+1)
	return nil
}

func (t *memoryTx) InsertQueueEntry(entry *models.QueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.s.now()
	}
	if entry.LastSeenAt.IsZero() {
		entry.LastSeenAt = entry.CreatedAt
	}
	t.s.queue = append(t.s.queue, *entry)
	return nil
}

func (t *memoryTx) TouchQueueEntry(entryID string, at time.Time) error {
	i := slices.IndexFunc(t.s.queue, func(e models.QueueEntry) bool { return e.ID == entryID })
	if i < 0 {
		return eris.Wrapf(ErrPreconditionFailed, "queue entry %s already consumed", entryID)
	}
	t.s.queue[i].LastSeenAt = at
	return nil
}

func (t *memoryTx) CreateSession(session *models.BattleSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	t.s.sessions[session.ID] = *session
	return nil
}

func (t *memoryTx) Session(sessionID string) (*models.BattleSession, error) {
	b, ok := t.s.sessions[sessionID]
	if !ok {
		return nil, sessionNotFound(sessionID)
	}
	return &b, nil
}

func (t *memoryTx) DecideSession(sessionID, winnerID string, decidedAt time.Time) (bool, error) {
	b, ok := t.s.sessions[sessionID]
	if !ok {
		return false, sessionNotFound(sessionID)
	}
	if b.Status != models.BattleStatusActive || b.Winner != nil {
		return false, nil
	}
	winner := winnerID
	b.Status = models.BattleStatusDecided
	b.Winner = &winner
	b.DecidedAt = &decidedAt
	t.s.sessions[sessionID] = b
	return true, nil
}

func (t *memoryTx) EnsurePlayer(playerID string) (*models.Player, error) {
	if p, ok := t.s.players[playerID]; ok {
		return &p, nil
	}
	now := t.s.now()
	p := models.Player{
		ID:       uuid.NewString(),
		PlayerID: playerID,
		Rating:   models.DefaultRating,
	}
	p.CreatedAt, p.UpdatedAt = now, now
	t.s.players[playerID] = p
	return &p, nil
}

func (t *memoryTx) SavePlayer(player *models.Player) error {
	player.UpdatedAt = t.s.now()
	t.s.players[player.PlayerID] = *player
	return nil
}
