package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pledgerhq/pledger/internal/models"
	apperrors "github.com/pledgerhq/pledger/pkg/errors"
	"github.com/pledgerhq/pledger/pkg/logger"
)

// CreateMilestoneInput defines attributes for a new milestone.
type CreateMilestoneInput struct {
	Title       string
	Description string
	OrderIndex  int
}

// UpdateMilestonePatch carries a partial milestone update. Completed toggles
// the completion flag; the other fields edit milestone content.
type UpdateMilestonePatch struct {
	Title       *string
	Description *string
	OrderIndex  *int
	Completed   *bool
}

// MilestoneService manages the milestones of a promise. Any participant of
// the parent promise may create, edit, complete, and delete milestones.
type MilestoneService struct {
	db            *gorm.DB
	notifications *NotificationService
	log           *zap.Logger
}

// NewMilestoneService constructs a MilestoneService.
func NewMilestoneService(db *gorm.DB, notifications *NotificationService) (*MilestoneService, error) {
	if db == nil {
		return nil, errors.New("milestone service: db is required")
	}
	if notifications == nil {
		return nil, errors.New("milestone service: notification service is required")
	}
	return &MilestoneService{
		db:            db,
		notifications: notifications,
		log:           logger.WithModule("milestones"),
	}, nil
}

// Create adds a milestone to a promise on behalf of a participant.
func (s *MilestoneService) Create(ctx context.Context, promiseID, actorID string, input CreateMilestoneInput) (*models.Milestone, error) {
	ctx = ensureContext(ctx)

	promise, err := s.authorizePromise(ctx, promiseID, actorID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidation("milestone title is required")
	}

	milestone := models.Milestone{
		PromiseID:   promise.ID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		OrderIndex:  input.OrderIndex,
	}
	if err := s.db.WithContext(ctx).Create(&milestone).Error; err != nil {
		return nil, storeError(err, "milestone service: create milestone")
	}
	return &milestone, nil
}

// List returns the milestones of a promise in display order.
func (s *MilestoneService) List(ctx context.Context, promiseID, actorID string) ([]models.Milestone, error) {
	ctx = ensureContext(ctx)

	promise, err := s.authorizePromise(ctx, promiseID, actorID)
	if err != nil {
		return nil, err
	}

	var milestones []models.Milestone
	if err := s.db.WithContext(ctx).
		Where("promise_id = ?", promise.ID).
		Order("order_index ASC, created_at ASC").
		Find(&milestones).Error; err != nil {
		return nil, fmt.Errorf("milestone service: list milestones: %w", err)
	}
	return milestones, nil
}

// Update applies a partial update to a milestone. Completing a milestone
// notifies the other participants of the parent promise.
func (s *MilestoneService) Update(ctx context.Context, milestoneID, actorID string, patch UpdateMilestonePatch) (*models.Milestone, error) {
	ctx = ensureContext(ctx)

	milestone, promise, err := s.loadMilestone(ctx, milestoneID, actorID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apperrors.NewValidation("milestone title cannot be empty")
		}
		updates["title"] = title
		milestone.Title = title
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		updates["description"] = description
		milestone.Description = description
	}
	if patch.OrderIndex != nil {
		updates["order_index"] = *patch.OrderIndex
		milestone.OrderIndex = *patch.OrderIndex
	}

	justCompleted := false
	if patch.Completed != nil && *patch.Completed != milestone.Completed {
		updates["completed"] = *patch.Completed
		justCompleted = *patch.Completed && !milestone.Completed
		milestone.Completed = *patch.Completed
	}

	if len(updates) == 0 {
		return milestone, nil
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Milestone{}).
		Where("id = ?", milestone.ID).
		Updates(updates).Error; err != nil {
		return nil, storeError(err, "milestone service: update milestone")
	}

	if justCompleted {
		s.notifyCompletion(ctx, promise, milestone, actorID)
	}
	return milestone, nil
}

// Delete removes a milestone from its promise.
func (s *MilestoneService) Delete(ctx context.Context, milestoneID, actorID string) error {
	ctx = ensureContext(ctx)

	milestone, _, err := s.loadMilestone(ctx, milestoneID, actorID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&models.Milestone{}, "id = ?", milestone.ID).Error; err != nil {
		return storeError(err, "milestone service: delete milestone")
	}
	return nil
}

// Progress returns the completed fraction of a promise's milestones. A
// promise without milestones reports zero progress.
func (s *MilestoneService) Progress(ctx context.Context, promiseID, actorID string) (float64, error) {
	ctx = ensureContext(ctx)

	promise, err := s.authorizePromise(ctx, promiseID, actorID)
	if err != nil {
		return 0, err
	}

	var total, completed int64
	if err := s.db.WithContext(ctx).
		Model(&models.Milestone{}).
		Where("promise_id = ?", promise.ID).
		Count(&total).Error; err != nil {
		return 0, fmt.Errorf("milestone service: count milestones: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	if err := s.db.WithContext(ctx).
		Model(&models.Milestone{}).
		Where("promise_id = ? AND completed = ?", promise.ID, true).
		Count(&completed).Error; err != nil {
		return 0, fmt.Errorf("milestone service: count completed milestones: %w", err)
	}
	return float64(completed) / float64(total), nil
}

// authorizePromise loads a promise and hides it from non-participants.
func (s *MilestoneService) authorizePromise(ctx context.Context, promiseID, actorID string) (*models.Promise, error) {
	var promise models.Promise
	if err := s.db.WithContext(ctx).First(&promise, "id = ?", promiseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFoundOrForbidden
		}
		return nil, fmt.Errorf("milestone service: load promise: %w", err)
	}
	if !promise.HasParticipant(actorID) {
		return nil, apperrors.ErrNotFoundOrForbidden
	}
	return &promise, nil
}

func (s *MilestoneService) loadMilestone(ctx context.Context, milestoneID, actorID string) (*models.Milestone, *models.Promise, error) {
	var milestone models.Milestone
	if err := s.db.WithContext(ctx).First(&milestone, "id = ?", milestoneID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.ErrNotFoundOrForbidden
		}
		return nil, nil, fmt.Errorf("milestone service: load milestone: %w", err)
	}

	promise, err := s.authorizePromise(ctx, milestone.PromiseID, actorID)
	if err != nil {
		return nil, nil, err
	}
	return &milestone, promise, nil
}

func (s *MilestoneService) notifyCompletion(ctx context.Context, promise *models.Promise, milestone *models.Milestone, actorID string) {
	for _, userID := range promise.ParticipantIDs() {
		if userID == actorID {
			continue
		}
		if _, err := s.notifications.Create(ctx, CreateNotificationInput{
			UserID:           userID,
			Type:             models.NotificationMilestoneCompleted,
			Title:            "Milestone completed",
			Message:          fmt.Sprintf("The milestone %q on %q was completed.", milestone.Title, promise.Title),
			RelatedPromiseID: promise.ID,
			Metadata:         map[string]any{"milestone_id": milestone.ID},
		}); err != nil {
			s.log.Warn("milestone notification failed",
				zap.String("milestone_id", milestone.ID),
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
}
