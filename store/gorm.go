package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lifesync/models"
	"lifesync/schedule"
)

// GormStore keeps sessions in SQL. Subscriptions poll the row version.
type GormStore struct {
	DB           *gorm.DB
	clock        clockwork.Clock
	pollInterval time.Duration
	log          zerolog.Logger
}

func NewGormStore(db *gorm.DB, clock clockwork.Clock, pollInterval time.Duration, logger zerolog.Logger) *GormStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &GormStore{
		DB:           db,
		clock:        clock,
		pollInterval: pollInterval,
		log:          logger.With().Str("component", "gorm_store").Logger(),
	}
}

func (s *GormStore) Migrate() error {
	return s.DB.AutoMigrate(&models.SessionRecord{}, &models.SessionMember{})
}

func (s *GormStore) CreateSession(ctx context.Context, id, hostID string) (string, error) {
	if id == "" {
		id = NewSessionID()
	}
	now := s.clock.Now()
	record := models.SessionRecord{
		ID:        id,
		HostID:    hostID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.SessionRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrSessionExists
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		return tx.Create(&models.SessionMember{SessionID: id, PlayerID: hostID, JoinedAt: now}).Error
	})
	if err != nil {
		if errors.Is(err, ErrSessionExists) {
			return "", err
		}
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

func (s *GormStore) SessionExists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.SessionRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("lookup session: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) AddMember(ctx context.Context, id, playerID string) error {
	now := s.clock.Now()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SessionRecord{}).Where("id = ?", id).Update("updated_at", now)
		if res.Error != nil {
			return fmt.Errorf("touch session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		member := models.SessionMember{SessionID: id, PlayerID: playerID, JoinedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error; err != nil {
			return fmt.Errorf("add member: %w", err)
		}
		return nil
	})
}

func (s *GormStore) SetGameState(ctx context.Context, id string, payload models.Payload) error {
	raw, err := json.Marshal(payload.Sanitize())
	if err != nil {
		return fmt.Errorf("encode game state: %w", err)
	}
	res := s.DB.WithContext(ctx).Model(&models.SessionRecord{}).Where("id = ?", id).Updates(map[string]any{
		"game_state": datatypes.JSON(raw),
		"version":    gorm.Expr("version + 1"),
		"updated_at": s.clock.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("write game state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *GormStore) GetGameState(ctx context.Context, id string) (*models.Payload, error) {
	p, _, err := s.load(ctx, id)
	return p, err
}

func (s *GormStore) load(ctx context.Context, id string) (*models.Payload, int64, error) {
	var record models.SessionRecord
	err := s.DB.WithContext(ctx).Select("id", "game_state", "version").First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrSessionNotFound
		}
		return nil, 0, fmt.Errorf("read game state: %w", err)
	}
	if len(record.GameState) == 0 || string(record.GameState) == "null" {
		return nil, record.Version, nil
	}
	var p models.Payload
	if err := json.Unmarshal(record.GameState, &p); err != nil {
		return nil, record.Version, fmt.Errorf("decode game state: %w", err)
	}
	p = p.Sanitize()
	return &p, record.Version, nil
}

type pollingSubscription struct {
	task *schedule.Task
	w    *watcher
}

func (p *pollingSubscription) Unsubscribe() {
	p.task.Cancel()
	p.w.Unsubscribe()
}

func (s *GormStore) Subscribe(ctx context.Context, id string, fn func(models.Payload)) (Subscription, error) {
	current, version, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	w := newWatcher(fn)
	if current != nil {
		w.offer(*current)
	}
	logger := s.log.With().Str("session_id", id).Logger()
	task := schedule.Every(s.clock, s.pollInterval, func() bool {
		pollCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p, v, err := s.load(pollCtx, id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				logger.Info().Msg("session gone, stopping subscription poll")
				return false
			}
			logger.Warn().Err(err).Msg("subscription poll failed")
			return true
		}
		if v > version && p != nil {
			version = v
			w.offer(*p)
		}
		return true
	})
	return &pollingSubscription{task: task, w: w}, nil
}

func (s *GormStore) GetSession(ctx context.Context, id string) (models.Session, error) {
	var record models.SessionRecord
	err := s.DB.WithContext(ctx).Preload("Members", func(db *gorm.DB) *gorm.DB {
		return db.Order("player_id")
	}).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, fmt.Errorf("read session: %w", err)
	}
	members := make([]string, 0, len(record.Members))
	for _, m := range record.Members {
		members = append(members, m.PlayerID)
	}
	return models.Session{ID: record.ID, HostID: record.HostID, Members: members}, nil
}

func (s *GormStore) DeleteSession(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&models.SessionMember{}).Error; err != nil {
			return fmt.Errorf("delete members: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&models.SessionRecord{})
		if res.Error != nil {
			return fmt.Errorf("delete session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
}

func (s *GormStore) DeleteIdle(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&models.SessionRecord{}).Where("updated_at < ?", before).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("session_id IN ?", ids).Delete(&models.SessionMember{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.SessionRecord{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete idle sessions: %w", err)
	}
	return deleted, nil
}
