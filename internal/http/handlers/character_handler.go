// Character HTTP handlers (public surface).
//
// This file exposes the persona catalog to end users:
//   - GET /characters   (active configs only)
//
// Operator CRUD over the same catalog lives in admin_handler.go.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
)

// ListCharactersResponse wraps the persona configs visible to end users.
type ListCharactersResponse struct {
	Characters []domain.CharacterConfig `json:"characters"`
}

// ListCharacters returns the active persona configs users can start a room
// with. Deactivated configs are hidden but keep working for existing rooms.
func (h *Handlers) ListCharacters(c *gin.Context) {
	chars, err := h.charSvc.ListActive(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListCharactersResponse{Characters: chars})
}
