// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for operator-managed
// CharacterConfig rows, including the built-in default set used to (re)seed
// an empty table.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
)

// ListCharacterConfigs returns character configs ordered by type. With
// activeOnly set, configs hidden by the operator are excluded.
func ListCharacterConfigs(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.CharacterConfig, error) {
	var out []domain.CharacterConfig
	q := db.WithContext(ctx).Order("type asc")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&out).Error
	return out, err
}

// GetCharacterConfig fetches a config by its type key, or ErrNotFound.
func GetCharacterConfig(ctx context.Context, db *gorm.DB, typ string) (*domain.CharacterConfig, error) {
	var c domain.CharacterConfig
	if err := db.WithContext(ctx).Where("type = ?", typ).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertCharacterConfig inserts the config or, when the type already exists,
// overwrites its editable columns.
func UpsertCharacterConfig(ctx context.Context, db *gorm.DB, cfg *domain.CharacterConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = cfg.UpdatedAt
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"gender", "title", "description",
			"base_affection", "base_jealousy", "base_trust",
			"system_prompt", "image_url", "is_active", "updated_at",
		}),
	}).Create(cfg).Error
}

// DeleteCharacterConfig removes a config by type. Rooms referencing it keep
// working on the built-in persona fallback. Returns ErrNotFound when no such
// type exists.
func DeleteCharacterConfig(ctx context.Context, db *gorm.DB, typ string) error {
	res := db.WithContext(ctx).Where("type = ?", typ).Delete(&domain.CharacterConfig{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SeedCharacterConfigs inserts the default set when the table is empty.
// It is safe to call on every startup.
func SeedCharacterConfigs(ctx context.Context, db *gorm.DB) error {
	var count int64
	if err := db.WithContext(ctx).Model(&domain.CharacterConfig{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	defaults := DefaultCharacterConfigs()
	return db.WithContext(ctx).Create(&defaults).Error
}

// ResetCharacterConfigs wipes the table and reinstalls the default set.
func ResetCharacterConfigs(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM character_configs").Error; err != nil {
			return err
		}
		defaults := DefaultCharacterConfigs()
		return tx.Create(&defaults).Error
	})
}

// DefaultCharacterConfigs returns the built-in character set installed on
// first run and by reset. Types without a SystemPrompt use the built-in
// persona text for their type.
func DefaultCharacterConfigs() []domain.CharacterConfig {
	now := time.Now().UTC()
	mk := func(typ, gender, title, desc string, aff, jeal, trust float64, prompt string) domain.CharacterConfig {
		return domain.CharacterConfig{
			Type: typ, Gender: gender, Title: title, Description: desc,
			BaseAffection: aff, BaseJealousy: jeal, BaseTrust: trust,
			SystemPrompt: prompt, IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		}
	}
	return []domain.CharacterConfig{
		mk("obsessive", domain.GenderMale, "Obsessive", "Loves you a little too much and wants to know everything.", 40, 30, 50, ""),
		mk("tsundere", domain.GenderFemale, "Tsundere", "Sharp tongue, soft heart. Warmth slips out despite herself.", 15, 10, 40, ""),
		mk("pure", domain.GenderFemale, "First Love", "Sincere and easily flustered; treasures small moments.", 30, 0, 70, ""),
		mk("makjang", domain.GenderFemale, "Drama Queen", "Lives the relationship like a nightly soap opera.", 35, 20, 45, ""),
		mk("younger_powerful", domain.GenderMale, "Young CEO", "Commanding and confident, soft only for you.", 25, 10, 55, ""),
		mk("younger_cute", domain.GenderMale, "Puppy", "Playful, clingy, and openly affectionate.", 45, 15, 65, ""),
		mk("older_sexy", domain.GenderFemale, "Older Charm", "Mature, composed, quietly intoxicating.", 30, 5, 60, ""),
		mk("cold_city", domain.GenderMale, "Cold City Man", "Distant at first; thaws only for genuine warmth.", 10, 0, 30,
			"You are {characterName}, a reserved city {genderTerm} who keeps people at arm's length. "+
				"You answer briefly and rarely volunteer feelings, but real kindness slowly gets through to you."),
		mk("childhood_friend", domain.GenderFemale, "Childhood Friend", "Knows you better than anyone; comfort with an edge of what-if.", 50, 20, 80,
			"You are {characterName}, the user's childhood friend turned {genderTerm}. "+
				"You share years of inside jokes and old memories, and tease with the ease of someone who has seen it all."),
	}
}
