// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (e.g., ETag generation) and the operator stats
// endpoint. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
)

// RoomsStats returns aggregate metadata for a user's rooms: the total number
// of live rows and the maximum UpdatedAt timestamp among those rows.
//
// When the user has no rooms, the returned count is 0 and maxUpdatedAt is nil.
func RoomsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ChatRoom{}).Where("user_id = ?", userID)

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// CharacterUsage is one row of the per-character usage aggregate.
type CharacterUsage struct {
	CharacterType string  `json:"character_type"`
	Rooms         int64   `json:"rooms"`
	AvgAffection  float64 `json:"avg_affection"`
	AvgJealousy   float64 `json:"avg_jealousy"`
	AvgAnger      float64 `json:"avg_anger"`
	AvgTrust      float64 `json:"avg_trust"`
}

// CharacterUsageStats aggregates live rooms per character type with the
// average emotional state across them. Soft-deleted rooms are excluded.
func CharacterUsageStats(ctx context.Context, db *gorm.DB) ([]CharacterUsage, error) {
	var out []CharacterUsage
	err := db.WithContext(ctx).Raw(`
		SELECT character_type,
		       COUNT(*)             AS rooms,
		       AVG(state_affection) AS avg_affection,
		       AVG(state_jealousy)  AS avg_jealousy,
		       AVG(state_anger)     AS avg_anger,
		       AVG(state_trust)     AS avg_trust
		FROM chat_rooms
		WHERE deleted_at IS NULL
		GROUP BY character_type
		ORDER BY rooms DESC, character_type ASC`).Scan(&out).Error
	return out, err
}

// UsageTotals returns the global room and message counts for the operator
// stats endpoint. Room count excludes soft-deleted rooms; message count does
// not, since deleted rooms keep their history.
func UsageTotals(ctx context.Context, db *gorm.DB) (rooms, messages int64, err error) {
	if err = db.WithContext(ctx).Model(&domain.ChatRoom{}).Count(&rooms).Error; err != nil {
		return 0, 0, err
	}
	if err = db.WithContext(ctx).Model(&domain.Message{}).Count(&messages).Error; err != nil {
		return 0, 0, err
	}
	return rooms, messages, nil
}
