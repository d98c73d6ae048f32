package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pledgerhq/pledger/internal/realtime"
	"github.com/pledgerhq/pledger/internal/services"
	"github.com/pledgerhq/pledger/pkg/errors"
	"github.com/pledgerhq/pledger/pkg/mail"
	"github.com/pledgerhq/pledger/pkg/response"
)

// PromiseHandler exposes the promise lifecycle over HTTP.
type PromiseHandler struct {
	promises   *services.PromiseService
	milestones *services.MilestoneService
}

// NewPromiseHandler constructs a promise handler with its service stack.
func NewPromiseHandler(db *gorm.DB, hub *realtime.Hub, mailer mail.Mailer) (*PromiseHandler, error) {
	users, err := services.NewUserService(db)
	if err != nil {
		return nil, err
	}
	notifications, err := services.NewNotificationService(db, hub)
	if err != nil {
		return nil, err
	}
	promises, err := services.NewPromiseService(db, users, notifications, mailer)
	if err != nil {
		return nil, err
	}
	milestones, err := services.NewMilestoneService(db, notifications)
	if err != nil {
		return nil, err
	}
	return &PromiseHandler{promises: promises, milestones: milestones}, nil
}

type milestoneDraftRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
	OrderIndex  int    `json:"order_index"`
}

type createPromiseRequest struct {
	Title         string                  `json:"title" validate:"required,max=255"`
	Description   string                  `json:"description"`
	Deadline      string                  `json:"deadline"`
	PromiseeID    string                  `json:"promisee_id"`
	PromiseeEmail string                  `json:"promisee_email"`
	MentorID      string                  `json:"mentor_id"`
	MentorEmail   string                  `json:"mentor_email"`
	Milestones    []milestoneDraftRequest `json:"milestones"`
}

type updatePromiseRequest struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Deadline      *string `json:"deadline"`
	Status        *string `json:"status"`
	PromiseeID    *string `json:"promisee_id"`
	PromiseeEmail *string `json:"promisee_email"`
	MentorID      *string `json:"mentor_id"`
	MentorEmail   *string `json:"mentor_email"`
}

// Create registers a new promise owned by the current user.
func (h *PromiseHandler) Create(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req createPromiseRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.CreatePromiseInput{
		Title:         req.Title,
		Description:   req.Description,
		Deadline:      req.Deadline,
		PromiseeID:    req.PromiseeID,
		PromiseeEmail: req.PromiseeEmail,
		MentorID:      req.MentorID,
		MentorEmail:   req.MentorEmail,
	}
	for _, draft := range req.Milestones {
		input.Milestones = append(input.Milestones, services.MilestoneDraft{
			Title:       draft.Title,
			Description: draft.Description,
			OrderIndex:  draft.OrderIndex,
		})
	}

	promise, err := h.promises.Create(requestContext(c), userID, input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, promise)
}

// List returns the current user's promises filtered by role and status.
func (h *PromiseHandler) List(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	promises, err := h.promises.List(requestContext(c), userID, services.ListPromisesInput{
		Role:   strings.TrimSpace(c.Query("role")),
		Status: strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, promises)
}

// Get returns a single promise with milestones and notes.
func (h *PromiseHandler) Get(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	promise, err := h.promises.Get(requestContext(c), strings.TrimSpace(c.Param("id")), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, promise)
}

// Progress returns the completed milestone fraction of a promise.
func (h *PromiseHandler) Progress(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	progress, err := h.milestones.Progress(requestContext(c), strings.TrimSpace(c.Param("id")), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"progress": progress})
}

// Update applies a partial update to a promise.
func (h *PromiseHandler) Update(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req updatePromiseRequest
	if !bindAndValidate(c, &req) {
		return
	}

	promise, err := h.promises.Update(requestContext(c), strings.TrimSpace(c.Param("id")), userID, services.UpdatePromisePatch{
		Title:         req.Title,
		Description:   req.Description,
		Deadline:      req.Deadline,
		Status:        req.Status,
		PromiseeID:    req.PromiseeID,
		PromiseeEmail: req.PromiseeEmail,
		MentorID:      req.MentorID,
		MentorEmail:   req.MentorEmail,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, promise)
}

// Decline marks a promise declined on behalf of its promisee.
func (h *PromiseHandler) Decline(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	promise, err := h.promises.Decline(requestContext(c), strings.TrimSpace(c.Param("id")), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, promise)
}

// Delete removes a promise with everything attached to it.
func (h *PromiseHandler) Delete(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.promises.Delete(requestContext(c), strings.TrimSpace(c.Param("id")), userID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
