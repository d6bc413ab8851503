// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
	"github.com/jwkoh-dev/go-companion-backend/internal/emotion"
)

// CreateMessage inserts a new message row. Content is expected to be already
// encrypted by the service layer; delta may be nil.
func CreateMessage(db *gorm.DB, roomID, role, content string, delta *emotion.Delta) (*domain.Message, error) {
	m := &domain.Message{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		Role:       role,
		Content:    content,
		StateDelta: delta,
		CreatedAt:  time.Now().UTC(),
	}
	return m, db.Create(m).Error
}

// ListRecentMessages returns the newest messages of a room, newest first
// (CreatedAt DESC, ID DESC). Callers wanting chronological order reverse the
// slice; fetching newest-first is what lets the window be a cheap LIMIT.
func ListRecentMessages(db *gorm.DB, roomID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.Where("room_id = ?", roomID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error (as tests expect).
func CountMessages(db *gorm.DB, roomID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE room_id = ?", roomID).Scan(&total).Error
	return total, err
}

// UpdateMessageDelta back-annotates a message with the state delta its turn
// produced. Returns ErrNotFound when the message does not exist.
func UpdateMessageDelta(db *gorm.DB, id string, delta *emotion.Delta) error {
	res := db.Model(&domain.Message{}).
		Where("id = ?", id).
		Update("state_delta", delta)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetMessage fetches a message by ID.
func GetMessage(db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
