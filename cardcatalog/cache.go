package cardcatalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lifesync/models"
)

// GormCache keeps search results in the card_search_cache table.
type GormCache struct {
	DB *gorm.DB
}

func NewGormCache(db *gorm.DB) (*GormCache, error) {
	if err := db.AutoMigrate(&models.CardSearchEntry{}); err != nil {
		return nil, fmt.Errorf("migrate card cache: %w", err)
	}
	return &GormCache{DB: db}, nil
}

func (c *GormCache) Get(ctx context.Context, term string) ([]Card, bool, error) {
	var entry models.CardSearchEntry
	err := c.DB.WithContext(ctx).First(&entry, "term = ?", term).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var cards []Card
	if err := json.Unmarshal(entry.Results, &cards); err != nil {
		return nil, false, fmt.Errorf("decode cached cards: %w", err)
	}
	return cards, true, nil
}

func (c *GormCache) Put(ctx context.Context, term string, cards []Card) error {
	raw, err := json.Marshal(cards)
	if err != nil {
		return err
	}
	return c.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "term"}},
		DoUpdates: clause.AssignmentColumns([]string{"results", "created_at"}),
	}).Create(&models.CardSearchEntry{Term: term, Results: datatypes.JSON(raw), CreatedAt: time.Now()}).Error
}

// Prune deletes entries cached before cutoff.
func (c *GormCache) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := c.DB.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.CardSearchEntry{})
	return res.RowsAffected, res.Error
}
