// Package localstore persists the device-local keys: saved presets and the
// last game snapshot.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"lifesync/models"
)

const snapshotKey = "gameState"

type Store struct {
	DB  *gorm.DB
	log zerolog.Logger
}

// Open opens (or creates) the sqlite file at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open local db %s: %w", path, err)
	}
	return New(db, log)
}

func New(db *gorm.DB, log zerolog.Logger) (*Store, error) {
	if err := db.AutoMigrate(&models.PresetRecord{}, &models.SnapshotRecord{}, &models.CardSearchEntry{}); err != nil {
		return nil, fmt.Errorf("migrate local db: %w", err)
	}
	return &Store{DB: db, log: log.With().Str("component", "localstore").Logger()}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Presets(ctx context.Context) ([]models.Preset, error) {
	var records []models.PresetRecord
	if err := s.DB.WithContext(ctx).Order("created_at, id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	presets := make([]models.Preset, 0, len(records))
	for _, r := range records {
		p, err := fromRecord(r)
		if err != nil {
			s.log.Warn().Err(err).Str("preset_id", r.ID).Msg("skipping unreadable preset")
			continue
		}
		presets = append(presets, p)
	}
	return presets, nil
}

func (s *Store) Preset(ctx context.Context, id string) (models.Preset, error) {
	var r models.PresetRecord
	if err := s.DB.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return models.Preset{}, fmt.Errorf("load preset %s: %w", id, err)
	}
	return fromRecord(r)
}

// SavePreset inserts or replaces the preset with the same id.
func (s *Store) SavePreset(ctx context.Context, p models.Preset) error {
	r, err := toRecord(p)
	if err != nil {
		return err
	}
	err = s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "slug", "players", "game_state", "updated_at", "deleted_at"}),
	}).Create(&r).Error
	if err != nil {
		return fmt.Errorf("save preset %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) DeletePreset(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Delete(&models.PresetRecord{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete preset %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ClearPresetGameStates strips every frozen game so a later load starts a
// fresh game from the roster.
func (s *Store) ClearPresetGameStates(ctx context.Context) error {
	err := s.DB.WithContext(ctx).Model(&models.PresetRecord{}).
		Where("game_state IS NOT NULL").
		Update("game_state", nil).Error
	if err != nil {
		return fmt.Errorf("clear preset game states: %w", err)
	}
	return nil
}

func (s *Store) SaveSnapshot(ctx context.Context, state models.GameState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	err = s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&models.SnapshotRecord{Key: snapshotKey, Payload: datatypes.JSON(raw)}).Error
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns nil when nothing was saved.
func (s *Store) LoadSnapshot(ctx context.Context) (*models.GameState, error) {
	var r models.SnapshotRecord
	err := s.DB.WithContext(ctx).First(&r, "key = ?", snapshotKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var p models.Payload
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	state := p.State()
	return &state, nil
}

func (s *Store) ClearSnapshot(ctx context.Context) error {
	if err := s.DB.WithContext(ctx).Delete(&models.SnapshotRecord{}, "key = ?", snapshotKey).Error; err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

func toRecord(p models.Preset) (models.PresetRecord, error) {
	players, err := json.Marshal(models.ClonePlayers(p.Players))
	if err != nil {
		return models.PresetRecord{}, fmt.Errorf("encode preset players: %w", err)
	}
	r := models.PresetRecord{ID: p.ID, Name: p.Name, Slug: p.Slug, Players: datatypes.JSON(players)}
	if r.Slug == "" {
		r.Slug = slug.Make(p.Name)
	}
	if p.GameState != nil {
		state, err := json.Marshal(p.GameState)
		if err != nil {
			return models.PresetRecord{}, fmt.Errorf("encode preset game state: %w", err)
		}
		r.GameState = datatypes.JSON(state)
	}
	return r, nil
}

func fromRecord(r models.PresetRecord) (models.Preset, error) {
	p := models.Preset{ID: r.ID, Name: r.Name, Slug: r.Slug}
	if err := json.Unmarshal(r.Players, &p.Players); err != nil {
		return models.Preset{}, fmt.Errorf("decode preset players: %w", err)
	}
	if len(r.GameState) > 0 && string(r.GameState) != "null" {
		var payload models.Payload
		if err := json.Unmarshal(r.GameState, &payload); err != nil {
			return models.Preset{}, fmt.Errorf("decode preset game state: %w", err)
		}
		state := payload.State()
		p.GameState = &state
	}
	return p, nil
}
