// Turn HTTP handlers.
//
// This file exposes the conversation-turn endpoints:
//   - POST /rooms/{id}/messages          (run one turn, JSON response)
//   - POST /rooms/{id}/messages/stream   (run one turn, SSE fragments)
//
// Both endpoints accept the same payload and run the same pipeline; the
// streaming variant relays reply-text fragments as they are generated and
// finishes with a single terminal event carrying the persisted outcome.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, room, key), the handler returns that recorded
// assistant message and sets `Idempotency-Replayed: true`.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
	"github.com/jwkoh-dev/go-companion-backend/internal/emotion"
	"github.com/jwkoh-dev/go-companion-backend/internal/repo"
	"github.com/jwkoh-dev/go-companion-backend/internal/services"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a user message.
//
// Content is normalized by the handler (line endings and excessive blank
// lines) before being passed to the service layer. The service also enforces
// a maximum rune count, configurable on TurnService.
type PostMessageRequest struct {
	// Content is the user's message. It must be non-empty.
	Content string `json:"content" binding:"required,min=1"`
}

// streamFragment is one SSE data event carrying a piece of the reply text.
type streamFragment struct {
	Content string `json:"content"`
}

// streamDone is the terminal SSE data event of a successful streamed turn.
type streamDone struct {
	Done             bool           `json:"done"`
	Message          domain.Message `json:"message"`
	State            emotion.State  `json:"state"`
	UserMessageDelta *emotion.Delta `json:"userMessageDelta,omitempty"`
}

// streamError is the terminal SSE data event of a failed streamed turn.
type streamError struct {
	Error ErrorResponse `json:"error"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxContentRunes inspects the concrete TurnService for a configured
// message-length limit. If unavailable, it returns a conservative fallback.
func discoverMaxContentRunes(turnSvc TurnService) int {
	const fallback = 2000
	if ts, ok := turnSvc.(*services.TurnService); ok {
		if ts.MaxContentRunes > 0 {
			return ts.MaxContentRunes
		}
	}
	return fallback
}

// idempotencyKey reads the validated Idempotency-Key header if present.
func idempotencyKey(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader("Idempotency-Key"))
}

// bindTurnRequest validates the route parameter and payload shared by both
// turn endpoints, returning the sanitized content. On failure it writes the
// error response and reports false.
func (h *Handlers) bindTurnRequest(c *gin.Context) (roomID, content string, valid bool) {
	roomID, valid = roomIDParam(c)
	if !valid {
		return "", "", false
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return "", "", false
	}

	content = sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return "", "", false
	}
	// Early size cap to fail fast at the edge; the service guards again.
	if maxRunes := discoverMaxContentRunes(h.turnSvc); utf8.RuneCountInString(content) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		return "", "", false
	}
	return roomID, content, true
}

// replayedTurn looks up a previously completed turn for (user, room, key) and
// reconstructs its response. It returns nil when no replay applies.
func (h *Handlers) replayedTurn(c *gin.Context, roomID, key string) *TurnResponse {
	if key == "" {
		return nil
	}
	svc, okSvc := h.turnSvc.(*services.TurnService)
	if !okSvc || svc.DB == nil {
		return nil
	}
	ctx := c.Request.Context()

	rec, err := repo.GetIdempotency(ctx, svc.DB, userID(c), roomID, key, time.Now().UTC())
	if err != nil || rec == nil {
		return nil
	}
	prev, err := repo.GetMessage(svc.DB, rec.MessageID)
	if err != nil {
		return nil
	}
	if svc.Cipher != nil {
		prev.Content = svc.Cipher.Decrypt(prev.Content)
	}

	resp := &TurnResponse{Message: *prev, UserMessageDelta: prev.StateDelta}
	if room, err := repo.GetRoom(ctx, svc.DB, roomID, userID(c)); err == nil {
		resp.State = room.State
	}
	return resp
}

// recordTurn stores the idempotency record for a completed turn, best effort.
func (h *Handlers) recordTurn(c *gin.Context, roomID, key, messageID string) {
	if key == "" {
		return
	}
	if svc, okSvc := h.turnSvc.(*services.TurnService); okSvc && svc.DB != nil {
		ttl := svc.IdempotencyTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		_, _ = repo.CreateIdempotency(c.Request.Context(), svc.DB, userID(c), roomID, key, messageID, http.StatusOK, ttl)
	}
}

// turnStatus maps a turn pipeline error to its HTTP status, code, and message.
func turnStatus(err error, maxRunes int) (int, string, string) {
	switch err {
	case services.ErrRoomNotFound:
		return http.StatusNotFound, ErrCodeNotFound, "room not found"
	case services.ErrEmptyContent:
		return http.StatusBadRequest, ErrCodeBadRequest, "content required"
	case services.ErrTooLong:
		return http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes)
	case services.ErrStateConflict:
		return http.StatusConflict, ErrCodeConflict, "a concurrent turn updated this room; retry"
	default:
		return http.StatusInternalServerError, ErrCodeAnswerFailed, err.Error()
	}
}

//
// Handlers
//

// PostMessage runs one conversation turn and returns the assistant reply,
// the room's emotional state after the turn, and the raw delta attributed to
// the user's message. Supports idempotent retries via the Idempotency-Key
// header (same key, same result).
func (h *Handlers) PostMessage(c *gin.Context) {
	roomID, content, valid := h.bindTurnRequest(c)
	if !valid {
		return
	}

	key := idempotencyKey(c)
	if prev := h.replayedTurn(c, roomID, key); prev != nil {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, prev)
		return
	}

	reply, err := h.turnSvc.Answer(c.Request.Context(), userID(c), roomID, content)
	if err != nil {
		status, code, msg := turnStatus(err, discoverMaxContentRunes(h.turnSvc))
		fail(c, status, code, msg)
		return
	}

	h.recordTurn(c, roomID, key, reply.Message.ID)
	ok(c, http.StatusOK, turnResponse(reply))
}

// StreamMessage runs one conversation turn over Server-Sent Events. The
// response body is a sequence of `data:` events: zero or more
// `{"content": "..."}` fragments as the reply is generated, then exactly one
// terminal event — `{"done":true, "message":..., "state":...,
// "userMessageDelta":...}` on success or `{"error":{...}}` on failure.
//
// Validation failures are reported as plain JSON errors before the stream
// starts. Once streaming has begun, the turn runs detached from the request
// context, so a dropped client never loses the state transition.
func (h *Handlers) StreamMessage(c *gin.Context) {
	roomID, content, valid := h.bindTurnRequest(c)
	if !valid {
		return
	}

	key := idempotencyKey(c)
	if prev := h.replayedTurn(c, roomID, key); prev != nil {
		c.Header("Idempotency-Replayed", "true")
		openEventStream(c)
		writeSSE(c, streamDone{Done: true, Message: prev.Message, State: prev.State, UserMessageDelta: prev.UserMessageDelta})
		return
	}

	events, err := h.turnSvc.AnswerStream(c.Request.Context(), userID(c), roomID, content)
	if err != nil {
		status, code, msg := turnStatus(err, discoverMaxContentRunes(h.turnSvc))
		fail(c, status, code, msg)
		return
	}

	openEventStream(c)
	for ev := range events {
		switch {
		case ev.Err != nil:
			_, code, msg := turnStatus(ev.Err, discoverMaxContentRunes(h.turnSvc))
			writeSSE(c, streamError{Error: ErrorResponse{
				RequestID: c.Writer.Header().Get("X-Request-ID"),
				Code:      code,
				Message:   msg,
			}})
			return
		case ev.Reply != nil:
			h.recordTurn(c, roomID, key, ev.Reply.Message.ID)
			done := turnResponse(ev.Reply)
			writeSSE(c, streamDone{Done: true, Message: done.Message, State: done.State, UserMessageDelta: done.UserMessageDelta})
		case ev.Content != "":
			writeSSE(c, streamFragment{Content: ev.Content})
		}
	}
}

// turnResponse converts a service reply into the wire shape. An empty raw
// delta is omitted rather than serialized as an empty object.
func turnResponse(reply *services.TurnReply) *TurnResponse {
	resp := &TurnResponse{Message: reply.Message, State: reply.State}
	if !reply.UserMessageDelta.IsEmpty() {
		d := reply.UserMessageDelta
		resp.UserMessageDelta = &d
	}
	return resp
}

// openEventStream switches the response to Server-Sent Events.
func openEventStream(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Disable proxy buffering so fragments reach the client promptly.
	h.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()
}

// writeSSE marshals v and writes it as one SSE data event, flushing so the
// client sees it immediately. Write errors are ignored: the pipeline already
// runs detached, and the outcome is persisted regardless of the connection.
func writeSSE(c *gin.Context, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
	c.Writer.Flush()
}
