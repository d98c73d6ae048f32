package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pledgerhq/pledger/internal/realtime"
	"github.com/pledgerhq/pledger/internal/services"
	"github.com/pledgerhq/pledger/pkg/errors"
	"github.com/pledgerhq/pledger/pkg/response"
)

// NoteHandler exposes the append-only note thread of a promise.
type NoteHandler struct {
	notes *services.NoteService
}

// NewNoteHandler constructs a note handler.
func NewNoteHandler(db *gorm.DB, hub *realtime.Hub) (*NoteHandler, error) {
	notifications, err := services.NewNotificationService(db, hub)
	if err != nil {
		return nil, err
	}
	notes, err := services.NewNoteService(db, notifications)
	if err != nil {
		return nil, err
	}
	return &NoteHandler{notes: notes}, nil
}

type createNoteRequest struct {
	Text string `json:"text" validate:"required"`
}

// Create appends a note to a promise.
func (h *NoteHandler) Create(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req createNoteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	note, err := h.notes.Create(requestContext(c), strings.TrimSpace(c.Param("id")), userID, req.Text)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, note)
}

// List returns the notes of a promise in chronological order.
func (h *NoteHandler) List(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	notes, err := h.notes.List(requestContext(c), strings.TrimSpace(c.Param("id")), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, notes)
}

// Delete removes a note authored by the current user.
func (h *NoteHandler) Delete(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.notes.Delete(requestContext(c), strings.TrimSpace(c.Param("noteId")), userID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
