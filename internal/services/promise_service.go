package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pledgerhq/pledger/internal/models"
	apperrors "github.com/pledgerhq/pledger/pkg/errors"
	"github.com/pledgerhq/pledger/pkg/logger"
	pmail "github.com/pledgerhq/pledger/pkg/mail"
)

// Role filters accepted by List.
const (
	RoleFilterAll       = "all"
	RoleFilterOwned     = "owned"
	RoleFilterPromised  = "promised-to-me"
	RoleFilterMentoring = "mentoring"
)

// MilestoneDraft describes a milestone created together with its promise.
type MilestoneDraft struct {
	Title       string
	Description string
	OrderIndex  int
}

// CreatePromiseInput defines attributes for a new promise. Promisee and
// mentor may each be given as a user id or as an email; an email that
// resolves to an account is stored as the id, otherwise it is kept as a
// placeholder invitation target.
type CreatePromiseInput struct {
	Title         string
	Description   string
	Deadline      string // RFC 3339; empty means no deadline
	PromiseeID    string
	PromiseeEmail string
	MentorID      string
	MentorEmail   string
	Milestones    []MilestoneDraft
}

// UpdatePromisePatch carries a partial update. Nil fields are left
// untouched; empty-string pointers clear the optional participant and
// deadline fields.
type UpdatePromisePatch struct {
	Title         *string
	Description   *string
	Deadline      *string // RFC 3339, "" clears
	Status        *string
	PromiseeID    *string
	PromiseeEmail *string
	MentorID      *string
	MentorEmail   *string
}

// ListPromisesInput defines role and status filters for List.
type ListPromisesInput struct {
	Role   string
	Status string
}

// PromiseService owns the promise lifecycle: the status state machine, the
// role-based authorization matrix, and the notification side effects of
// transitions.
type PromiseService struct {
	db            *gorm.DB
	users         *UserService
	notifications *NotificationService
	mailer        pmail.Mailer
	log           *zap.Logger
}

// NewPromiseService constructs a PromiseService. The mailer may be nil when
// outbound invitations are disabled.
func NewPromiseService(db *gorm.DB, users *UserService, notifications *NotificationService, mailer pmail.Mailer) (*PromiseService, error) {
	if db == nil {
		return nil, errors.New("promise service: db is required")
	}
	if users == nil {
		return nil, errors.New("promise service: user service is required")
	}
	if notifications == nil {
		return nil, errors.New("promise service: notification service is required")
	}

	return &PromiseService{
		db:            db,
		users:         users,
		notifications: notifications,
		mailer:        mailer,
		log:           logger.WithModule("promises"),
	}, nil
}

// Create persists a new promise with status ongoing, resolving participant
// emails to ids where accounts exist and dispatching invitations.
func (s *PromiseService) Create(ctx context.Context, ownerID string, input CreatePromiseInput) (*models.Promise, error) {
	ctx = ensureContext(ctx)

	owner, err := s.users.FindByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidation("title is required")
	}

	deadline, err := parseDeadline(input.Deadline)
	if err != nil {
		return nil, err
	}

	promiseeID, promiseeEmail, err := s.resolveParticipant(ctx, input.PromiseeID, input.PromiseeEmail)
	if err != nil {
		return nil, err
	}
	mentorID, mentorEmail, err := s.resolveParticipant(ctx, input.MentorID, input.MentorEmail)
	if err != nil {
		return nil, err
	}

	promise := models.Promise{
		OwnerID:       ownerID,
		Title:         title,
		Description:   strings.TrimSpace(input.Description),
		Deadline:      deadline,
		Status:        models.StatusOngoing,
		PromiseeID:    promiseeID,
		PromiseeEmail: promiseeEmail,
		MentorID:      mentorID,
		MentorEmail:   mentorEmail,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&promise).Error; err != nil {
			return err
		}
		for i, draft := range input.Milestones {
			milestoneTitle := strings.TrimSpace(draft.Title)
			if milestoneTitle == "" {
				return apperrors.NewValidation("milestone title is required")
			}
			order := draft.OrderIndex
			if order == 0 {
				order = i
			}
			milestone := models.Milestone{
				PromiseID:   promise.ID,
				Title:       milestoneTitle,
				Description: strings.TrimSpace(draft.Description),
				OrderIndex:  order,
			}
			if err := tx.Create(&milestone).Error; err != nil {
				return err
			}
			promise.Milestones = append(promise.Milestones, milestone)
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, storeError(err, "promise service: create promise")
	}

	s.sendInvitations(ctx, &promise, owner)
	return &promise, nil
}

// Get loads a promise with its milestones and notes, visible only to
// participants. Non-participants receive the same answer as a missing id.
func (s *PromiseService) Get(ctx context.Context, promiseID, requestingUserID string) (*models.Promise, error) {
	ctx = ensureContext(ctx)

	var promise models.Promise
	if err := s.db.WithContext(ctx).
		Preload("Milestones", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC, created_at ASC")
		}).
		Preload("Notes", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&promise, "id = ?", promiseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFoundOrForbidden
		}
		return nil, fmt.Errorf("promise service: load promise: %w", err)
	}

	if !promise.HasParticipant(requestingUserID) {
		return nil, apperrors.ErrNotFoundOrForbidden
	}
	return &promise, nil
}

// List returns promises where the user holds the requested role, newest first.
func (s *PromiseService) List(ctx context.Context, userID string, input ListPromisesInput) ([]models.Promise, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("promise service: user id is required")
	}

	query := s.db.WithContext(ctx).Model(&models.Promise{})

	switch input.Role {
	case "", RoleFilterAll:
		query = query.Where("owner_id = ? OR promisee_id = ? OR mentor_id = ?", userID, userID, userID)
	case RoleFilterOwned:
		query = query.Where("owner_id = ?", userID)
	case RoleFilterPromised:
		query = query.Where("promisee_id = ?", userID)
	case RoleFilterMentoring:
		query = query.Where("mentor_id = ?", userID)
	default:
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown role filter %q", input.Role))
	}

	if input.Status != "" {
		status := models.PromiseStatus(input.Status)
		if !status.Valid() {
			return nil, apperrors.NewValidation(fmt.Sprintf("unknown status filter %q", input.Status))
		}
		query = query.Where("status = ?", status)
	}

	var promises []models.Promise
	if err := query.
		Preload("Milestones", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC, created_at ASC")
		}).
		Order("created_at DESC").
		Find(&promises).Error; err != nil {
		return nil, fmt.Errorf("promise service: list promises: %w", err)
	}
	return promises, nil
}

// Update applies a partial update. Field edits require the owner; a status
// change is checked against the transition table for the actor's role. A
// combined request is authorized per part and rejected whole when either
// part fails, so a patch never applies partially.
func (s *PromiseService) Update(ctx context.Context, promiseID, actorID string, patch UpdatePromisePatch) (*models.Promise, error) {
	ctx = ensureContext(ctx)

	var promise models.Promise
	if err := s.db.WithContext(ctx).First(&promise, "id = ?", promiseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("promise service: load promise: %w", err)
	}

	// Non-participants get the same answer as a missing id, even for a
	// patch that would change nothing.
	if !promise.HasParticipant(actorID) {
		return nil, apperrors.ErrNotFoundOrForbidden
	}

	updates := map[string]any{}

	if hasFieldEdits(patch) {
		if actorID != promise.OwnerID {
			return nil, apperrors.NewForbidden("only the owner may edit promise fields")
		}
		if err := s.applyFieldEdits(ctx, &promise, patch, updates); err != nil {
			return nil, err
		}
	}

	var priorStatus models.PromiseStatus
	statusChanged := false
	if patch.Status != nil {
		target := models.PromiseStatus(*patch.Status)
		if !target.Valid() {
			return nil, apperrors.NewValidation(fmt.Sprintf("unknown status %q", *patch.Status))
		}
		if target != promise.Status {
			if err := authorizeTransition(&promise, actorID, target); err != nil {
				return nil, err
			}
			priorStatus = promise.Status
			statusChanged = true
			updates["status"] = target
			promise.Status = target
		}
	}

	if len(updates) == 0 {
		return &promise, nil
	}

	query := s.db.WithContext(ctx).Model(&models.Promise{}).Where("id = ?", promise.ID)
	if statusChanged {
		// Transition only when the status is still what we authorized against,
		// so a concurrent sweep or user update cannot be silently overwritten.
		query = query.Where("status = ?", priorStatus)
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return nil, storeError(result.Error, "promise service: update promise")
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.ErrConflict.WithMessage("promise changed concurrently; reload and retry")
	}

	if statusChanged && promise.Status == models.StatusCompleted {
		s.notifyParticipants(ctx, &promise, actorID, models.NotificationPromiseCompleted,
			"Promise completed",
			fmt.Sprintf("The promise %q was marked as completed.", promise.Title))
	}

	return &promise, nil
}

// Decline marks a promise declined on behalf of its promisee. A wrong
// promisee or an already terminal status answers exactly like a missing id
// so the caller learns nothing about promises not addressed to them.
func (s *PromiseService) Decline(ctx context.Context, promiseID, promiseeID string) (*models.Promise, error) {
	ctx = ensureContext(ctx)

	var promise models.Promise
	if err := s.db.WithContext(ctx).First(&promise, "id = ?", promiseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFoundOrForbidden
		}
		return nil, fmt.Errorf("promise service: load promise: %w", err)
	}

	if !promise.IsPromisee(promiseeID) || promise.Status.Terminal() {
		return nil, apperrors.ErrNotFoundOrForbidden
	}

	result := s.db.WithContext(ctx).
		Model(&models.Promise{}).
		Where("id = ? AND status = ?", promise.ID, promise.Status).
		Update("status", models.StatusDeclined)
	if result.Error != nil {
		return nil, storeError(result.Error, "promise service: decline promise")
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.ErrNotFoundOrForbidden
	}

	promise.Status = models.StatusDeclined

	if _, err := s.notifications.Create(ctx, CreateNotificationInput{
		UserID:           promise.OwnerID,
		Type:             models.NotificationPromiseDeclined,
		Title:            "Promise declined",
		Message:          fmt.Sprintf("Your promise %q was declined.", promise.Title),
		RelatedPromiseID: promise.ID,
	}); err != nil {
		s.log.Warn("decline notification failed", zap.String("promise_id", promise.ID), zap.Error(err))
	}

	return &promise, nil
}

// Delete removes a promise and everything hanging off it: milestones,
// notes, and notifications referencing the promise.
func (s *PromiseService) Delete(ctx context.Context, promiseID, actorID string) error {
	ctx = ensureContext(ctx)

	var promise models.Promise
	if err := s.db.WithContext(ctx).First(&promise, "id = ?", promiseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("promise service: load promise: %w", err)
	}

	if actorID != promise.OwnerID {
		return apperrors.NewForbidden("only the owner may delete a promise")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("promise_id = ?", promise.ID).Delete(&models.Milestone{}).Error; err != nil {
			return err
		}
		if err := tx.Where("promise_id = ?", promise.ID).Delete(&models.Note{}).Error; err != nil {
			return err
		}
		if err := tx.Where("related_promise_id = ?", promise.ID).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		return tx.Delete(&promise).Error
	})
	if err != nil {
		return storeError(err, "promise service: delete promise")
	}
	return nil
}

// resolveParticipant turns an (id, email) pair into the stored shape: a
// verified user id, or a placeholder email when nobody owns the address yet.
func (s *PromiseService) resolveParticipant(ctx context.Context, id, email string) (*string, *string, error) {
	id = strings.TrimSpace(id)
	email = normalizeEmail(email)

	if id != "" && email != "" {
		return nil, nil, apperrors.NewValidation("supply either a participant id or an email, not both")
	}

	if id != "" {
		if _, err := s.users.FindByID(ctx, id); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, nil, apperrors.NewValidation(fmt.Sprintf("unknown participant id %q", id))
			}
			return nil, nil, err
		}
		return &id, nil, nil
	}

	if email == "" {
		return nil, nil, nil
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, apperrors.NewValidation(fmt.Sprintf("malformed email %q", email))
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if user != nil {
		return &user.ID, nil, nil
	}
	return nil, &email, nil
}

func (s *PromiseService) applyFieldEdits(ctx context.Context, promise *models.Promise, patch UpdatePromisePatch, updates map[string]any) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return apperrors.NewValidation("title cannot be empty")
		}
		updates["title"] = title
		promise.Title = title
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		updates["description"] = description
		promise.Description = description
	}
	if patch.Deadline != nil {
		deadline, err := parseDeadline(*patch.Deadline)
		if err != nil {
			return err
		}
		updates["deadline"] = deadline
		promise.Deadline = deadline
	}
	if patch.PromiseeID != nil || patch.PromiseeEmail != nil {
		id, email, err := s.resolveParticipant(ctx, deref(patch.PromiseeID), deref(patch.PromiseeEmail))
		if err != nil {
			return err
		}
		updates["promisee_id"] = id
		updates["promisee_email"] = email
		promise.PromiseeID = id
		promise.PromiseeEmail = email
	}
	if patch.MentorID != nil || patch.MentorEmail != nil {
		id, email, err := s.resolveParticipant(ctx, deref(patch.MentorID), deref(patch.MentorEmail))
		if err != nil {
			return err
		}
		updates["mentor_id"] = id
		updates["mentor_email"] = email
		promise.MentorID = id
		promise.MentorEmail = email
	}
	return nil
}

// authorizeTransition enforces the transition table. Transitions start only
// from ongoing or overdue; declined is reserved for the dedicated decline
// operation and overdue for the sweeper.
func authorizeTransition(promise *models.Promise, actorID string, target models.PromiseStatus) error {
	if promise.Status.Terminal() {
		return apperrors.NewForbidden(fmt.Sprintf("no transitions are allowed from status %q", promise.Status))
	}

	switch target {
	case models.StatusCompleted:
		if actorID == promise.OwnerID || promise.IsPromisee(actorID) {
			return nil
		}
		return apperrors.NewForbidden("only the owner or promisee may complete a promise")
	case models.StatusNotMade:
		if actorID == promise.OwnerID {
			return nil
		}
		return apperrors.NewForbidden("only the owner may mark a promise as not made")
	case models.StatusDeclined:
		return apperrors.NewForbidden("declining a promise requires the dedicated decline operation")
	case models.StatusOverdue:
		return apperrors.NewForbidden("overdue is set by the system, not by participants")
	case models.StatusOngoing:
		return apperrors.NewForbidden("a promise cannot be reopened")
	default:
		return apperrors.NewForbidden(fmt.Sprintf("transition to %q is not allowed", target))
	}
}

func (s *PromiseService) sendInvitations(ctx context.Context, promise *models.Promise, owner *models.User) {
	if promise.PromiseeID != nil && *promise.PromiseeID != promise.OwnerID {
		s.createInviteNotification(ctx, *promise.PromiseeID, promise, models.NotificationPromiseInvitation,
			fmt.Sprintf("%s made you a promise: %s", owner.Name, promise.Title))
	}
	if promise.MentorID != nil && *promise.MentorID != promise.OwnerID {
		s.createInviteNotification(ctx, *promise.MentorID, promise, models.NotificationMentorshipInvitation,
			fmt.Sprintf("%s asked you to mentor their promise: %s", owner.Name, promise.Title))
	}

	if promise.PromiseeEmail != nil {
		s.sendInviteEmail(ctx, *promise.PromiseeEmail, "promisee", promise, owner)
	}
	if promise.MentorEmail != nil {
		s.sendInviteEmail(ctx, *promise.MentorEmail, "mentor", promise, owner)
	}
}

func (s *PromiseService) createInviteNotification(ctx context.Context, userID string, promise *models.Promise, notificationType, message string) {
	if _, err := s.notifications.Create(ctx, CreateNotificationInput{
		UserID:           userID,
		Type:             notificationType,
		Title:            "New invitation",
		Message:          message,
		RelatedPromiseID: promise.ID,
	}); err != nil {
		s.log.Warn("invitation notification failed",
			zap.String("promise_id", promise.ID),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// sendInviteEmail is fire-and-forget: promise creation succeeds even when
// every delivery channel is down.
func (s *PromiseService) sendInviteEmail(ctx context.Context, email, role string, promise *models.Promise, owner *models.User) {
	if s.mailer == nil {
		return
	}
	msg := pmail.BuildInvitationMessage(pmail.Invitation{
		ToEmail:     email,
		FromName:    owner.Name,
		Title:       promise.Title,
		Description: promise.Description,
		PromiseID:   promise.ID,
		Role:        role,
	})
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, pmail.ErrSMTPDisabled) {
		s.log.Warn("invitation email failed",
			zap.String("promise_id", promise.ID),
			zap.String("email", email),
			zap.Error(err))
	}
}

func (s *PromiseService) notifyParticipants(ctx context.Context, promise *models.Promise, actorID, notificationType, title, message string) {
	for _, userID := range promise.ParticipantIDs() {
		if userID == actorID {
			continue
		}
		if _, err := s.notifications.Create(ctx, CreateNotificationInput{
			UserID:           userID,
			Type:             notificationType,
			Title:            title,
			Message:          message,
			RelatedPromiseID: promise.ID,
		}); err != nil {
			s.log.Warn("participant notification failed",
				zap.String("promise_id", promise.ID),
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
}

func parseDeadline(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, apperrors.NewValidation("deadline must be a valid RFC 3339 timestamp")
	}
	utc := parsed.UTC()
	return &utc, nil
}

func hasFieldEdits(patch UpdatePromisePatch) bool {
	return patch.Title != nil ||
		patch.Description != nil ||
		patch.Deadline != nil ||
		patch.PromiseeID != nil ||
		patch.PromiseeEmail != nil ||
		patch.MentorID != nil ||
		patch.MentorEmail != nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
