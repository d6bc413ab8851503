// Package services – CharacterService
//
// Character configs are operator-managed persona definitions. End users only
// ever see the active set; the full CRUD surface (including reset to the
// built-in defaults) is reserved for the admin API.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
	"github.com/jwkoh-dev/go-companion-backend/internal/repo"
)

// CharacterService manages the character config catalogue.
type CharacterService struct {
	DB *gorm.DB
}

// NewCharacterService constructs a CharacterService.
func NewCharacterService(db *gorm.DB) *CharacterService {
	return &CharacterService{DB: db}
}

// ListActive returns the configs end users may start rooms from.
func (s *CharacterService) ListActive(ctx context.Context) ([]domain.CharacterConfig, error) {
	return repo.ListCharacterConfigs(ctx, s.DB, true)
}

// ListAll returns every config, including deactivated ones.
func (s *CharacterService) ListAll(ctx context.Context) ([]domain.CharacterConfig, error) {
	return repo.ListCharacterConfigs(ctx, s.DB, false)
}

// Get fetches one config by type.
func (s *CharacterService) Get(ctx context.Context, typ string) (*domain.CharacterConfig, error) {
	cfg, err := repo.GetCharacterConfig(ctx, s.DB, typ)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCharacterNotFound
		}
		return nil, err
	}
	return cfg, nil
}

// Upsert validates and saves an operator-submitted config. Base values must
// sit inside the emotional scale; the type key and display fields are
// required. Existing rooms are unaffected by edits.
func (s *CharacterService) Upsert(ctx context.Context, cfg *domain.CharacterConfig) error {
	cfg.Type = strings.TrimSpace(cfg.Type)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.Type == "" || cfg.Title == "" {
		return ErrInvalidCharacterConfig
	}
	if cfg.Gender != domain.GenderMale && cfg.Gender != domain.GenderFemale {
		return ErrInvalidGender
	}
	for _, v := range []float64{cfg.BaseAffection, cfg.BaseJealousy, cfg.BaseTrust} {
		if v < 0 || v > 100 {
			return ErrInvalidCharacterConfig
		}
	}
	return repo.UpsertCharacterConfig(ctx, s.DB, cfg)
}

// Delete removes a config by type. Rooms referencing it fall back to the
// built-in persona text for their character type.
func (s *CharacterService) Delete(ctx context.Context, typ string) error {
	if err := repo.DeleteCharacterConfig(ctx, s.DB, typ); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrCharacterNotFound
		}
		return err
	}
	return nil
}

// Reset wipes the catalogue and reinstalls the built-in defaults.
func (s *CharacterService) Reset(ctx context.Context) error {
	return repo.ResetCharacterConfigs(ctx, s.DB)
}
