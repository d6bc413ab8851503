// Room HTTP handlers.
//
// This file exposes REST endpoints for chat-room resources:
//   - POST   /rooms                  (create a room with a character)
//   - GET    /rooms                  (list the user's rooms)
//   - DELETE /rooms/{id}             (soft-delete a room, history retained)
//   - POST   /rooms/{id}/adult-mode  (toggle the content-policy flag)
//   - GET    /rooms/{id}/messages    (recent history, chronological)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate service errors into the shared JSON error envelope. Ownership
// is enforced in the service layer; a foreign room is reported as not found.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
	"github.com/jwkoh-dev/go-companion-backend/internal/emotion"
	"github.com/jwkoh-dev/go-companion-backend/internal/repo"
	"github.com/jwkoh-dev/go-companion-backend/internal/services"
	"github.com/jwkoh-dev/go-companion-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// RoomService defines room lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type RoomService interface {
	// Create starts a new room for userID with the given character and name.
	Create(ctx context.Context, userID, characterType, gender, name string) (*domain.ChatRoom, error)
	// List returns the user's live rooms, most recently active first.
	List(ctx context.Context, userID string) ([]domain.ChatRoom, error)
	// Delete soft-deletes a room owned by userID.
	Delete(ctx context.Context, roomID, userID string) error
	// SetAdultMode toggles the room's content-policy flag.
	SetAdultMode(ctx context.Context, roomID, userID string, enabled bool) error
	// ListMessages returns the newest messages of an owned room in
	// chronological order.
	ListMessages(ctx context.Context, roomID, userID string, limit int) ([]domain.Message, error)
}

// TurnService defines the conversation-turn operations consumed by HTTP
// handlers. One call runs one full turn: persist the user message, generate
// the reply, advance the room's emotional state.
type TurnService interface {
	// Answer runs one turn and returns the persisted outcome.
	Answer(ctx context.Context, userID, roomID, content string) (*services.TurnReply, error)
	// AnswerStream runs one turn while relaying reply-text fragments.
	AnswerStream(ctx context.Context, userID, roomID, content string) (<-chan services.TurnStreamEvent, error)
}

// CharacterService defines persona-catalog operations consumed by both the
// public listing endpoint and the operator endpoints.
type CharacterService interface {
	// ListActive returns configs visible to end users.
	ListActive(ctx context.Context) ([]domain.CharacterConfig, error)
	// ListAll returns every config, active or not.
	ListAll(ctx context.Context) ([]domain.CharacterConfig, error)
	// Upsert validates and writes a config keyed by its Type.
	Upsert(ctx context.Context, cfg *domain.CharacterConfig) error
	// Delete removes a config by type key.
	Delete(ctx context.Context, characterType string) error
	// Reset restores the built-in default catalog.
	Reset(ctx context.Context) error
}

// AdminService defines operator settings and reporting operations.
type AdminService interface {
	// GetConfig returns the bonus-config singleton.
	GetConfig(ctx context.Context) (*domain.BonusConfig, error)
	// UpdateConfig validates and persists operator tuning.
	UpdateConfig(ctx context.Context, model string, affection, jealousy, trust float64) (*domain.BonusConfig, error)
	// Stats aggregates usage across rooms and messages.
	Stats(ctx context.Context) (*services.UsageStats, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for rooms, turns, characters, and
// operator settings. It depends on abstract service interfaces to keep
// transport concerns separate from business logic.
type Handlers struct {
	roomSvc  RoomService
	turnSvc  TurnService
	charSvc  CharacterService
	adminSvc AdminService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(roomSvc RoomService, turnSvc TurnService, charSvc CharacterService, adminSvc AdminService) *Handlers {
	return &Handlers{roomSvc: roomSvc, turnSvc: turnSvc, charSvc: charSvc, adminSvc: adminSvc}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// CreateRoomRequest is the JSON payload for creating a room.
type CreateRoomRequest struct {
	// CharacterType selects the persona config the room starts from.
	CharacterType string `json:"character_type" binding:"required"`
	// Gender optionally overrides the config's gender ("male" or "female").
	Gender string `json:"gender"`
	// Name is the user-chosen character display name.
	Name string `json:"name" binding:"required,min=1"`
}

// ListRoomsResponse wraps the user's rooms.
type ListRoomsResponse struct {
	Rooms []domain.ChatRoom `json:"rooms"`
}

// AdultModeRequest is the JSON payload for toggling the content-policy flag.
type AdultModeRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// ListRoomMessagesResponse contains a window of room messages in
// chronological order.
type ListRoomMessagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

// TurnResponse is the completed outcome of one conversation turn: the
// persisted assistant message, the room's state after the turn, and the raw
// delta back-annotated onto the triggering user message.
type TurnResponse struct {
	Message          domain.Message `json:"message"`
	State            emotion.State  `json:"state"`
	UserMessageDelta *emotion.Delta `json:"userMessageDelta,omitempty"`
}

//
// Helpers
//

// clampHistoryLimit parses the ?limit query parameter and bounds it to a
// sane window size.
func clampHistoryLimit(c *gin.Context) int {
	const (
		defaultLimit = 50
		maxLimit     = 200
	)
	limit := utils.AtoiDefault(c.Query("limit"), defaultLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

// roomIDParam validates the :id route parameter as a UUID, writing a 400
// response when it is not. The second return value reports validity.
func roomIDParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room id must be a UUID")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// CreateRoom creates a room for the current user and returns the room
// resource, including the seeded emotional state.
func (h *Handlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "character_type and name required")
		return
	}

	room, err := h.roomSvc.Create(c.Request.Context(), userID(c),
		strings.TrimSpace(req.CharacterType), strings.TrimSpace(req.Gender), req.Name)
	if err != nil {
		switch err {
		case services.ErrEmptyName:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		case services.ErrInvalidGender:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, `gender must be "male" or "female"`)
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, room)
}

// ListRooms returns the user's live rooms, most recently active first, with
// decrypted previews.
//
// The response carries a weak ETag derived from the room count and the newest
// updated_at; a matching If-None-Match short-circuits to 304 before the rooms
// are loaded and decrypted.
func (h *Handlers) ListRooms(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	// Conditional GET is best-effort: it needs direct DB access, so it only
	// engages when the concrete service is wired, and a stats error falls
	// through to a full response.
	if svc, okSvc := h.roomSvc.(*services.RoomService); okSvc && svc.DB != nil {
		if count, maxTS, err := repo.RoomsStats(ctx, svc.DB, uid); err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"rooms:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	rooms, err := h.roomSvc.List(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListRoomsResponse{Rooms: rooms})
}

// DeleteRoom soft-deletes a room owned by the current user. Message history
// is retained server-side.
func (h *Handlers) DeleteRoom(c *gin.Context) {
	roomID, valid := roomIDParam(c)
	if !valid {
		return
	}

	if err := h.roomSvc.Delete(c.Request.Context(), roomID, userID(c)); err != nil {
		switch err {
		case services.ErrRoomNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// SetAdultMode toggles a room's content-policy flag for its owner.
func (h *Handlers) SetAdultMode(c *gin.Context) {
	roomID, valid := roomIDParam(c)
	if !valid {
		return
	}

	var req AdultModeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "enabled required")
		return
	}

	if err := h.roomSvc.SetAdultMode(c.Request.Context(), roomID, userID(c), *req.Enabled); err != nil {
		switch err {
		case services.ErrRoomNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// ListRoomMessages returns the newest messages of a room in chronological
// order, decrypted for display. The window size is controlled by ?limit.
func (h *Handlers) ListRoomMessages(c *gin.Context) {
	roomID, valid := roomIDParam(c)
	if !valid {
		return
	}

	msgs, err := h.roomSvc.ListMessages(c.Request.Context(), roomID, userID(c), clampHistoryLimit(c))
	if err != nil {
		switch err {
		case services.ErrRoomNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, ListRoomMessagesResponse{Messages: msgs})
}
