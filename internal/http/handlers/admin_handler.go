// Admin HTTP handlers.
//
// This file exposes the operator surface mounted under /admin:
//   - GET/PUT /config               (bonus-config singleton)
//   - GET     /characters           (full catalog, inactive included)
//   - POST    /characters           (create or replace a config)
//   - PUT     /characters/{type}    (update a config in place)
//   - DELETE  /characters/{type}    (remove a config)
//   - POST    /characters/reset     (restore the built-in catalog)
//   - GET     /stats                (usage aggregates)
//
// There is no separate admin identity; deployments are expected to protect
// the /admin group at the network or proxy layer.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
	"github.com/jwkoh-dev/go-companion-backend/internal/services"
)

//
// DTOs
//

// UpdateBonusConfigRequest is the JSON payload for operator tuning. The
// bonuses multiply positive emotional deltas; valid range is [0,10].
type UpdateBonusConfigRequest struct {
	AIModel        string  `json:"ai_model" binding:"required"`
	AffectionBonus float64 `json:"affection_bonus"`
	JealousyBonus  float64 `json:"jealousy_bonus"`
	TrustBonus     float64 `json:"trust_bonus"`
}

//
// Handlers
//

// GetBonusConfig returns the current operator settings, creating the record
// with neutral coefficients on first read.
func (h *Handlers) GetBonusConfig(c *gin.Context) {
	cfg, err := h.adminSvc.GetConfig(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, cfg)
}

// UpdateBonusConfig validates and persists operator tuning. Changes apply
// from the next turn onward; turns in flight keep the coefficients they read.
func (h *Handlers) UpdateBonusConfig(c *gin.Context) {
	var req UpdateBonusConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ai_model and bonus values required")
		return
	}

	cfg, err := h.adminSvc.UpdateConfig(c.Request.Context(), req.AIModel,
		req.AffectionBonus, req.JealousyBonus, req.TrustBonus)
	if err != nil {
		switch err {
		case services.ErrInvalidBonusConfig:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ai_model must be set and bonuses within [0,10]")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, cfg)
}

// ListAllCharacters returns every persona config, active or not.
func (h *Handlers) ListAllCharacters(c *gin.Context) {
	chars, err := h.charSvc.ListAll(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListCharactersResponse{Characters: chars})
}

// UpsertCharacter creates or replaces a persona config keyed by its type.
func (h *Handlers) UpsertCharacter(c *gin.Context) {
	var cfg domain.CharacterConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	// PUT /characters/:type pins the key to the route; POST takes it from
	// the body.
	if t := strings.TrimSpace(c.Param("type")); t != "" {
		cfg.Type = t
	}

	if err := h.charSvc.Upsert(c.Request.Context(), &cfg); err != nil {
		switch err {
		case services.ErrInvalidCharacterConfig:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "type and title must be set and base values within [0,100]")
		case services.ErrInvalidGender:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, `gender must be "male" or "female"`)
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, cfg)
}

// DeleteCharacter removes a persona config. Rooms referencing it keep their
// seeded state; the built-in persona text becomes their prompt fallback.
func (h *Handlers) DeleteCharacter(c *gin.Context) {
	characterType := strings.TrimSpace(c.Param("type"))
	if characterType == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "character type required")
		return
	}

	if err := h.charSvc.Delete(c.Request.Context(), characterType); err != nil {
		switch err {
		case services.ErrCharacterNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "character not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// ResetCharacters drops the catalog and reseeds the built-in defaults.
func (h *Handlers) ResetCharacters(c *gin.Context) {
	if err := h.charSvc.Reset(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// AdminStats returns usage aggregates: room and message totals plus
// per-character room counts with average emotional state.
func (h *Handlers) AdminStats(c *gin.Context) {
	stats, err := h.adminSvc.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, stats)
}
