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

// MilestoneHandler exposes milestone CRUD endpoints.
type MilestoneHandler struct {
	milestones *services.MilestoneService
}

// NewMilestoneHandler constructs a milestone handler.
func NewMilestoneHandler(db *gorm.DB, hub *realtime.Hub) (*MilestoneHandler, error) {
	notifications, err := services.NewNotificationService(db, hub)
	if err != nil {
		return nil, err
	}
	milestones, err := services.NewMilestoneService(db, notifications)
	if err != nil {
		return nil, err
	}
	return &MilestoneHandler{milestones: milestones}, nil
}

type createMilestoneRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
	OrderIndex  int    `json:"order_index"`
}

type updateMilestoneRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	OrderIndex  *int    `json:"order_index"`
	Completed   *bool   `json:"completed"`
}

// Create adds a milestone to a promise.
func (h *MilestoneHandler) Create(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req createMilestoneRequest
	if !bindAndValidate(c, &req) {
		return
	}

	milestone, err := h.milestones.Create(requestContext(c), strings.TrimSpace(c.Param("id")), userID, services.CreateMilestoneInput{
		Title:       req.Title,
		Description: req.Description,
		OrderIndex:  req.OrderIndex,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, milestone)
}

// List returns the milestones of a promise.
func (h *MilestoneHandler) List(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	milestones, err := h.milestones.List(requestContext(c), strings.TrimSpace(c.Param("id")), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, milestones)
}

// Update applies a partial update to a milestone.
func (h *MilestoneHandler) Update(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req updateMilestoneRequest
	if !bindAndValidate(c, &req) {
		return
	}

	milestone, err := h.milestones.Update(requestContext(c), strings.TrimSpace(c.Param("milestoneId")), userID, services.UpdateMilestonePatch{
		Title:       req.Title,
		Description: req.Description,
		OrderIndex:  req.OrderIndex,
		Completed:   req.Completed,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, milestone)
}

// Delete removes a milestone.
func (h *MilestoneHandler) Delete(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.milestones.Delete(requestContext(c), strings.TrimSpace(c.Param("milestoneId")), userID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
