package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"codeisles-arena/models"
)

// GormStore persists to PostgreSQL through GORM.
type GormStore struct {
	DB *gorm.DB
}

var _ Store = (*GormStore)(nil)

// OpenPostgres connects and migrates the battle tables.
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, unavailable(err, "connect to database")
	}
	s := NewGormStore(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) Migrate() error {
	if err := s.DB.AutoMigrate(
		&models.QueueEntry{},
		&models.BattleSession{},
		&models.Player{},
	); err != nil {
		return unavailable(err, "migrate database")
	}
	return nil
}

func (s *GormStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
	if err == nil || isDomainError(err) {
		return err
	}
	return unavailable(err, "transaction")
}

func (s *GormStore) Session(ctx context.Context, sessionID string) (*models.BattleSession, error) {
	return (&gormTx{db: s.DB.WithContext(ctx)}).Session(sessionID)
}

func (s *GormStore) ActiveSessions(ctx context.Context, playerID string) ([]models.BattleSession, error) {
	var sessions []models.BattleSession
	err := s.DB.WithContext(ctx).
		Where("status = ? AND (player_a = ? OR player_b = ?)", models.BattleStatusActive, playerID, playerID).
		Order("started_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, unavailable(err, "list active sessions")
	}
	return sessions, nil
}

func (s *GormStore) QueueEntries(ctx context.Context, playerID string) ([]models.QueueEntry, error) {
	return (&gormTx{db: s.DB.WithContext(ctx)}).QueueEntriesForPlayer(playerID)
}

func (s *GormStore) Player(ctx context.Context, playerID string) (*models.Player, error) {
	var p models.Player
	err := s.DB.WithContext(ctx).Where("player_id = ?", playerID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err, "load player")
	}
	return &p, nil
}

func (s *GormStore) UpsertPlayer(ctx context.Context, player *models.Player) error {
	if player.ID == "" {
		player.ID = uuid.NewString()
	}
	if player.Rating == 0 {
		player.Rating = models.DefaultRating
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "updated_at"}),
	}).Create(player).Error
	return unavailable(err, "upsert player")
}

func (s *GormStore) EvictQueueEntries(ctx context.Context, seenBefore time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("COALESCE(last_seen_at, created_at) < ?", seenBefore).Delete(&models.QueueEntry{})
	if res.Error != nil {
		return 0, unavailable(res.Error, "evict queue entries")
	}
	return res.RowsAffected, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return unavailable(err, "ping")
	}
	return unavailable(sqlDB.PingContext(ctx), "ping")
}

type gormTx struct {
	db *gorm.DB
}

// LockPlayer takes a transaction-scoped advisory lock on the player, so two requests of the
// same player for different partitions cannot both see an empty queue and both enqueue.
func (t *gormTx) LockPlayer(playerID string) error {
	err := t.db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "player|"+playerID).Error
	return unavailable(err, "lock player")
}

// LockPartition takes a transaction-scoped advisory lock so two arrivals in the same
// partition cannot both miss each other and enqueue.
func (t *gormTx) LockPartition(topic string, difficulty models.Difficulty) error {
	err := t.db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", models.PartitionKey(topic, difficulty)).Error
	return unavailable(err, "lock partition")
}

func (t *gormTx) QueueEntriesForPlayer(playerID string) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	if err := t.db.Where("player_id = ?", playerID).Order("created_at ASC").Find(&entries).Error; err != nil {
		return nil, unavailable(err, "list queue entries")
	}
	return entries, nil
}

func (t *gormTx) ClaimWaiting(topic string, difficulty models.Difficulty, excludePlayerID string) (*models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("topic = ? AND difficulty = ? AND player_id <> ?", topic, difficulty, excludePlayerID).
		Order("created_at ASC").
		Limit(1).
		Find(&entries).Error
	if err != nil {
		return nil, unavailable(err, "find waiting entry")
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (t *gormTx) DeleteQueueEntry(entryID string) error {
	res := t.db.Where("id = ?", entryID).Delete(&models.QueueEntry{})
	if res.Error != nil {
		return unavailable(res.Error, "delete queue entry")
	}
	if res.RowsAffected == 0 {
		return eris.Wrapf(ErrPreconditionFailed, "queue entry %s already consumed", entryID)
	}
	return nil
}

func (t *gormTx) InsertQueueEntry(entry *models.QueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.LastSeenAt.IsZero() {
		entry.LastSeenAt = entry.CreatedAt
	}
	return unavailable(t.db.Create(entry).Error, "insert queue entry")
}

func (t *gormTx) TouchQueueEntry(entryID string, at time.Time) error {
	res := t.db.Model(&models.QueueEntry{}).Where("id = ?", entryID).Update("last_seen_at", at)
	if res.Error != nil {
		return unavailable(res.Error, "touch queue entry")
	}
	if res.RowsAffected == 0 {
		return eris.Wrapf(ErrPreconditionFailed, "queue entry %s already consumed", entryID)
	}
	return nil
}

func (t *gormTx) CreateSession(session *models.BattleSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	return unavailable(t.db.Create(session).Error, "create session")
}

func (t *gormTx) Session(sessionID string) (*models.BattleSession, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		// not a uuid column value; postgres would reject the comparison
		return nil, sessionNotFound(sessionID)
	}
	var b models.BattleSession
	err := t.db.First(&b, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, sessionNotFound(sessionID)
	}
	if err != nil {
		return nil, unavailable(err, "load session")
	}
	return &b, nil
}

// DecideSession is a compare-and-set: only an active session without a winner is updated.
func (t *gormTx) DecideSession(sessionID, winnerID string, decidedAt time.Time) (bool, error) {
	res := t.db.Model(&models.BattleSession{}).
		Where("id = ? AND status = ? AND winner IS NULL", sessionID, models.BattleStatusActive).
		Updates(map[string]interface{}{
			"status":     models.BattleStatusDecided,
			"winner":     winnerID,
			"decided_at": decidedAt,
		})
	if res.Error != nil {
		return false, unavailable(res.Error, "decide session")
	}
	return res.RowsAffected == 1, nil
}

func (t *gormTx) EnsurePlayer(playerID string) (*models.Player, error) {
	p := models.Player{
		ID:       uuid.NewString(),
		PlayerID: playerID,
		Rating:   models.DefaultRating,
	}
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}},
		DoNothing: true,
	}).Create(&p).Error
	if err != nil {
		return nil, unavailable(err, "ensure player")
	}
	var loaded models.Player
	if err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("player_id = ?", playerID).First(&loaded).Error; err != nil {
		return nil, unavailable(err, "load player")
	}
	return &loaded, nil
}

func (t *gormTx) SavePlayer(player *models.Player) error {
	return unavailable(t.db.Save(player).Error, "save player")
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrPreconditionFailed) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrNotParticipant) ||
		errors.Is(err, ErrStoreUnavailable)
}
