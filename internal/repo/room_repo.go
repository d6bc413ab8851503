// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the ChatRoom
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a room is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - When an optimistic concurrency check fails, UpdateRoomOnTurn returns
//     ErrConflict.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.RoomService / services.TurnService) which enforces business
// rules such as encryption at rest and state arithmetic.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
	"github.com/jwkoh-dev/go-companion-backend/internal/emotion"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrConflict is returned when an optimistic concurrency check fails:
// the row was updated by someone else since it was read.
var ErrConflict = errors.New("conflict")

// CreateRoom inserts a new ChatRoom owned by userID with the given character
// and seeded emotional state. The room ID is a randomly generated UUID and
// CreatedAt is set to UTC.
func CreateRoom(ctx context.Context, db *gorm.DB, userID, characterType, gender, name string, state emotion.State) (*domain.ChatRoom, error) {
	now := time.Now().UTC()
	r := &domain.ChatRoom{
		ID:            uuid.NewString(),
		UserID:        userID,
		CharacterType: characterType,
		Gender:        gender,
		Name:          name,
		State:         state,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// ListRooms returns all live rooms belonging to userID, most recently active
// first. Soft-deleted rooms are excluded by GORM's default scope. It returns
// an empty slice if the user has no rooms.
func ListRooms(ctx context.Context, db *gorm.DB, userID string) ([]domain.ChatRoom, error) {
	var out []domain.ChatRoom
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at desc").
		Find(&out).Error
	return out, err
}

// GetRoom fetches a single live room by its ID and owner (userID). If the
// record does not exist, is soft-deleted, or belongs to another user, it
// returns ErrNotFound. On other DB errors, the raw error is returned.
func GetRoom(ctx context.Context, db *gorm.DB, id, userID string) (*domain.ChatRoom, error) {
	var r domain.ChatRoom
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SoftDeleteRoom marks a room as deleted, enforcing user ownership. Rooms of
// other users are indistinguishable from missing ones: both return
// ErrNotFound. Message rows are retained.
func SoftDeleteRoom(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.ChatRoom{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetAdultMode flips the room's content-policy flag, enforcing user ownership.
// Returns ErrNotFound if the room does not exist or is not owned by userID.
func SetAdultMode(ctx context.Context, db *gorm.DB, id, userID string, enabled bool) error {
	res := db.WithContext(ctx).
		Model(&domain.ChatRoom{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_adult_mode", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateRoomOnTurn writes the turn outcome (new state, rolled summary,
// last-message preview) guarded by the UpdatedAt value the turn started from.
// If another writer advanced the room in the meantime the guard misses and
// ErrConflict is returned; the caller decides whether to retry.
func UpdateRoomOnTurn(ctx context.Context, db *gorm.DB, id string, seenUpdatedAt time.Time, state emotion.State, summary, lastMessage string) error {
	res := db.WithContext(ctx).
		Model(&domain.ChatRoom{}).
		Where("id = ? AND updated_at = ?", id, seenUpdatedAt).
		Updates(map[string]interface{}{
			"state_affection": state.Affection,
			"state_jealousy":  state.Jealousy,
			"state_anger":     state.Anger,
			"state_trust":     state.Trust,
			"summary":         summary,
			"last_message":    lastMessage,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}
