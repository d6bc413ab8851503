// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the singleton
// BonusConfig row.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
)

// GetBonusConfig returns the singleton bonus config, creating it with neutral
// coefficients and the given model name on first read.
func GetBonusConfig(ctx context.Context, db *gorm.DB, defaultModel string) (*domain.BonusConfig, error) {
	var cfg domain.BonusConfig
	err := db.WithContext(ctx).Order("id asc").First(&cfg).Error
	if err == nil {
		return &cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cfg = domain.BonusConfig{
		AIModel:        defaultModel,
		AffectionBonus: 1,
		JealousyBonus:  1,
		TrustBonus:     1,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateBonusConfig overwrites the tunable columns of the singleton row.
// The row must already exist (GetBonusConfig bootstraps it).
func UpdateBonusConfig(ctx context.Context, db *gorm.DB, cfg *domain.BonusConfig) error {
	res := db.WithContext(ctx).
		Model(&domain.BonusConfig{}).
		Where("id = ?", cfg.ID).
		Updates(map[string]interface{}{
			"ai_model":        cfg.AIModel,
			"affection_bonus": cfg.AffectionBonus,
			"jealousy_bonus":  cfg.JealousyBonus,
			"trust_bonus":     cfg.TrustBonus,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
