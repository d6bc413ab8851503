// Package services – RoomService
//
// This file implements the RoomService, which manages the lifecycle of chat
// rooms. It validates and normalizes character names, seeds the initial
// emotional state from the referenced character config, enforces ownership
// rules, and handles encryption at rest for message previews and summaries.
//
// Service-level errors (e.g., ErrRoomNotFound) are returned for predictable
// cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwkoh-dev/go-companion-backend/internal/crypto"
	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
	"github.com/jwkoh-dev/go-companion-backend/internal/emotion"
	"github.com/jwkoh-dev/go-companion-backend/internal/repo"
)

// RoomService provides room-level operations such as creating, listing,
// soft-deleting, and toggling content policy on rooms. It enforces name
// rules and ownership constraints, and decrypts at-rest fields on read.
type RoomService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cipher encrypts/decrypts summary and last-message columns. May be nil
	// in tests; fields then pass through unchanged.
	Cipher *crypto.Cipher

	// NameMaxLen caps stored character names by rune length.
	NameMaxLen int
	// NameLocale selects title-casing rules for display names.
	NameLocale language.Tag
}

// NewRoomService constructs a RoomService with sane defaults for name handling.
func NewRoomService(db *gorm.DB, cipher *crypto.Cipher) *RoomService {
	return &RoomService{
		DB:         db,
		Cipher:     cipher,
		NameMaxLen: 40,
		NameLocale: language.Und,
	}
}

// Create inserts a new room owned by userID. The initial emotional state is
// seeded from the character config's base values (anger always zero); when
// the config is missing the neutral defaults apply and the supplied gender is
// kept. Names are normalized, title-cased, and clipped.
func (s *RoomService) Create(ctx context.Context, userID, characterType, gender, name string) (*domain.ChatRoom, error) {
	name = normalizeName(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	name = s.clip(cases.Title(s.nameLocaleOrDefault()).String(name))

	state := emotion.DefaultState()
	if cfg, err := repo.GetCharacterConfig(ctx, s.DB, characterType); err == nil {
		state = cfg.BaseState()
		if gender == "" {
			gender = cfg.Gender
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if gender != domain.GenderMale && gender != domain.GenderFemale {
		return nil, ErrInvalidGender
	}

	return repo.CreateRoom(ctx, s.DB, userID, characterType, gender, name, state)
}

// List returns all live rooms for a user, most recently active first, with
// the at-rest fields decrypted for display.
func (s *RoomService) List(ctx context.Context, userID string) ([]domain.ChatRoom, error) {
	rooms, err := repo.ListRooms(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	for i := range rooms {
		rooms[i].Summary = s.decrypt(rooms[i].Summary)
		rooms[i].LastMessage = s.decrypt(rooms[i].LastMessage)
	}
	return rooms, nil
}

// Get fetches a single room for its owner with at-rest fields decrypted.
func (s *RoomService) Get(ctx context.Context, roomID, userID string) (*domain.ChatRoom, error) {
	room, err := repo.GetRoom(ctx, s.DB, roomID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	room.Summary = s.decrypt(room.Summary)
	room.LastMessage = s.decrypt(room.LastMessage)
	return room, nil
}

// Delete soft-deletes a room, ensuring it belongs to the given user. Rooms
// of other users are reported as not found so existence does not leak.
// Message history is retained.
func (s *RoomService) Delete(ctx context.Context, roomID, userID string) error {
	if err := repo.SoftDeleteRoom(ctx, s.DB, roomID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRoomNotFound
		}
		return err
	}
	return nil
}

// SetAdultMode toggles the room's content-policy flag for its owner.
func (s *RoomService) SetAdultMode(ctx context.Context, roomID, userID string, enabled bool) error {
	if err := repo.SetAdultMode(ctx, s.DB, roomID, userID, enabled); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRoomNotFound
		}
		return err
	}
	return nil
}

// ListMessages returns the newest messages of an owned room in chronological
// order with content decrypted. limit <= 0 returns the full history.
func (s *RoomService) ListMessages(ctx context.Context, roomID, userID string, limit int) ([]domain.Message, error) {
	if _, err := repo.GetRoom(ctx, s.DB, roomID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	msgs, err := repo.ListRecentMessages(s.DB.WithContext(ctx), roomID, limit)
	if err != nil {
		return nil, err
	}
	// Repo returns newest first; flip to chronological for display.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	for i := range msgs {
		msgs[i].Content = s.decrypt(msgs[i].Content)
	}
	return msgs, nil
}

func (s *RoomService) decrypt(v string) string {
	if s.Cipher == nil {
		return v
	}
	return s.Cipher.Decrypt(v)
}

// clip truncates a character name to the configured maximum rune length.
func (s *RoomService) clip(name string) string {
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		return string([]rune(name)[:s.NameMaxLen])
	}
	return name
}

func (s *RoomService) nameLocaleOrDefault() language.Tag {
	if s.NameLocale == language.Und {
		return language.English
	}
	return s.NameLocale
}

// normalizeName trims whitespace and collapses multiple spaces to one.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
