// Package services – AdminService
//
// Operator-facing settings and usage reporting: the bonus-config singleton
// (model selection plus positive-delta coefficients) and aggregate stats over
// rooms and messages.
package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
	"github.com/jwkoh-dev/go-companion-backend/internal/repo"
)

// Bonus coefficients accepted from operators.
const (
	bonusMin = 0.0
	bonusMax = 10.0
)

// UsageStats is the operator stats payload.
type UsageStats struct {
	TotalRooms    int64                 `json:"total_rooms"`
	TotalMessages int64                 `json:"total_messages"`
	Characters    []repo.CharacterUsage `json:"characters"`
}

// AdminService exposes operator settings and aggregates.
type AdminService struct {
	DB *gorm.DB
	// DefaultModel seeds the bonus-config singleton on first read.
	DefaultModel string
}

// NewAdminService constructs an AdminService.
func NewAdminService(db *gorm.DB, defaultModel string) *AdminService {
	return &AdminService{DB: db, DefaultModel: defaultModel}
}

// GetConfig returns the bonus-config singleton, creating it with neutral
// coefficients on first read.
func (s *AdminService) GetConfig(ctx context.Context) (*domain.BonusConfig, error) {
	return repo.GetBonusConfig(ctx, s.DB, s.DefaultModel)
}

// UpdateConfig validates and persists operator tuning. The model name must be
// non-empty and every coefficient inside [0,10]. Changes apply from the next
// turn onward.
func (s *AdminService) UpdateConfig(ctx context.Context, model string, affection, jealousy, trust float64) (*domain.BonusConfig, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, ErrInvalidBonusConfig
	}
	for _, v := range []float64{affection, jealousy, trust} {
		if v < bonusMin || v > bonusMax {
			return nil, ErrInvalidBonusConfig
		}
	}

	cfg, err := repo.GetBonusConfig(ctx, s.DB, s.DefaultModel)
	if err != nil {
		return nil, err
	}
	cfg.AIModel = model
	cfg.AffectionBonus = affection
	cfg.JealousyBonus = jealousy
	cfg.TrustBonus = trust
	if err := repo.UpdateBonusConfig(ctx, s.DB, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Stats aggregates global usage: room and message totals plus per-character
// room counts with average emotional state.
func (s *AdminService) Stats(ctx context.Context) (*UsageStats, error) {
	rooms, messages, err := repo.UsageTotals(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	chars, err := repo.CharacterUsageStats(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	return &UsageStats{TotalRooms: rooms, TotalMessages: messages, Characters: chars}, nil
}
