// Package domain defines the persistence models for chat rooms, messages,
// character configurations, and operator settings. These types are mapped
// with GORM and form the core data layer of the companion chat backend.
package domain

import (
	"time"

	"gorm.io/gorm"

	"github.com/jwkoh-dev/go-companion-backend/internal/emotion"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Genders a character can be configured with.
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// ChatRoom represents one user's ongoing relationship with a companion
// character. The room owns the emotional state and the rolling summary;
// both are advanced only by the turn pipeline.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: identifier of the room owner; indexed for efficient retrieval.
//   - CharacterType: references a CharacterConfig at creation time to seed
//     the initial state; the room is independent of later config edits.
//   - Name: user-chosen character display name.
//   - Summary: rolling conversation summary, encrypted at rest.
//   - State: live emotional state, embedded columns (state_affection, ...).
//   - IsAdultMode: selects the permissive content-policy prompt block.
//   - LastMessage: latest message content for list previews, encrypted at rest.
//   - DeletedAt: soft deletion marker; deleted rooms keep their messages.
type ChatRoom struct {
	ID            string         `json:"id"             gorm:"type:char(36);primaryKey"`
	UserID        string         `json:"user_id"        gorm:"type:varchar(64);not null;index:idx_user_rooms"`
	CharacterType string         `json:"character_type" gorm:"type:varchar(32);not null"`
	Gender        string         `json:"gender"         gorm:"type:varchar(8);not null"`
	Name          string         `json:"name"           gorm:"type:varchar(64);not null"`
	Summary       string         `json:"summary"        gorm:"type:text"`
	State         emotion.State  `json:"state"          gorm:"embedded;embeddedPrefix:state_"`
	IsAdultMode   bool           `json:"is_adult_mode"  gorm:"not null;default:false"`
	LastMessage   string         `json:"last_message,omitempty" gorm:"type:text"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"     gorm:"index"`
	DeletedAt     gorm.DeletedAt `json:"-"              gorm:"index"`
}

// TableName returns the database table name for ChatRoom.
func (ChatRoom) TableName() string { return "chat_rooms" }

// Message represents a single utterance within a room, authored either by
// the "user" or the "assistant". Content is stored encrypted and decrypted
// on read by the service layer.
//
// StateDelta on a user message records the raw (pre-bonus) delta produced by
// the turn it triggered — it is back-annotated once the assistant message of
// the same turn exists, so clients can show the emotional impact beneath the
// user's own bubble. Assistant messages carry the same delta directly.
type Message struct {
	ID         string         `json:"id"         gorm:"type:char(36);primaryKey"`
	RoomID     string         `json:"room_id"    gorm:"type:char(36);not null;index:idx_room_msgs,priority:1"`
	Role       string         `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content    string         `json:"content"    gorm:"type:text;not null"`
	StateDelta *emotion.Delta `json:"state_delta,omitempty" gorm:"type:text;serializer:json"`
	CreatedAt  time.Time      `json:"created_at" gorm:"index:idx_room_msgs,priority:2"`
	UpdatedAt  time.Time      `json:"updated_at"`

	// Room is the parent conversation. No delete cascade on purpose:
	// soft-deleting a room must keep its history retrievable.
	Room ChatRoom `json:"-" gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:NO ACTION"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// CharacterConfig is an operator-editable persona definition. The Type key is
// what rooms reference; base values seed a new room's emotional state and
// SystemPrompt is an optional template with {characterName} and {genderTerm}
// placeholders overriding the built-in persona text. Inactive configs are
// hidden from end users but keep working for rooms that already reference them.
type CharacterConfig struct {
	Type          string    `json:"type"           gorm:"type:varchar(32);primaryKey"`
	Gender        string    `json:"gender"         gorm:"type:varchar(8);not null"`
	Title         string    `json:"title"          gorm:"type:varchar(64);not null"`
	Description   string    `json:"description"    gorm:"type:varchar(255);not null"`
	BaseAffection float64   `json:"base_affection" gorm:"not null;default:20"`
	BaseJealousy  float64   `json:"base_jealousy"  gorm:"not null;default:0"`
	BaseTrust     float64   `json:"base_trust"     gorm:"not null;default:60"`
	SystemPrompt  string    `json:"system_prompt"  gorm:"type:text"`
	ImageURL      string    `json:"image_url"      gorm:"type:varchar(255)"`
	IsActive      bool      `json:"is_active"      gorm:"not null;default:true"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for CharacterConfig.
func (CharacterConfig) TableName() string { return "character_configs" }

// BaseState returns the initial emotional state a room seeded from this
// config starts with. Anger always starts at zero.
func (c CharacterConfig) BaseState() emotion.State {
	return emotion.State{
		Affection: c.BaseAffection,
		Jealousy:  c.BaseJealousy,
		Anger:     0,
		Trust:     c.BaseTrust,
	}
}

// BonusConfig is the singleton operator-tunable record holding the generative
// model name and the multiplicative coefficients applied to positive emotional
// deltas. Exactly one row exists; it is auto-created with neutral defaults on
// first read.
type BonusConfig struct {
	ID             uint      `json:"-"               gorm:"primaryKey"`
	AIModel        string    `json:"ai_model"        gorm:"type:varchar(64);not null"`
	AffectionBonus float64   `json:"affection_bonus" gorm:"not null;default:1"`
	JealousyBonus  float64   `json:"jealousy_bonus"  gorm:"not null;default:1"`
	TrustBonus     float64   `json:"trust_bonus"     gorm:"not null;default:1"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for BonusConfig.
func (BonusConfig) TableName() string { return "bonus_config" }

// Bonus converts the record into the value object the state transition uses.
func (b BonusConfig) Bonus() emotion.Bonus {
	return emotion.Bonus{
		Affection: b.AffectionBonus,
		Jealousy:  b.JealousyBonus,
		Trust:     b.TrustBonus,
	}
}
