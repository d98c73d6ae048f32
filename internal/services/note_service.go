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

// NoteService keeps the append-only discussion thread of a promise. Notes
// are never edited; the author may delete their own notes.
type NoteService struct {
	db            *gorm.DB
	notifications *NotificationService
	log           *zap.Logger
}

// NewNoteService constructs a NoteService.
func NewNoteService(db *gorm.DB, notifications *NotificationService) (*NoteService, error) {
	if db == nil {
		return nil, errors.New("note service: db is required")
	}
	if notifications == nil {
		return nil, errors.New("note service: notification service is required")
	}
	return &NoteService{
		db:            db,
		notifications: notifications,
		log:           logger.WithModule("notes"),
	}, nil
}

// Create appends a note to a promise on behalf of a participant and
// notifies the other participants.
func (s *NoteService) Create(ctx context.Context, promiseID, authorID, text string) (*models.Note, error) {
	ctx = ensureContext(ctx)

	promise, err := s.authorizePromise(ctx, promiseID, authorID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidation("note text is required")
	}

	note := models.Note{
		PromiseID: promise.ID,
		UserID:    authorID,
		Text:      text,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		return nil, storeError(err, "note service: create note")
	}

	s.notifyNoteAdded(ctx, promise, &note, authorID)
	return &note, nil
}

// List returns the notes of a promise in chronological order.
func (s *NoteService) List(ctx context.Context, promiseID, actorID string) ([]models.Note, error) {
	ctx = ensureContext(ctx)

	promise, err := s.authorizePromise(ctx, promiseID, actorID)
	if err != nil {
		return nil, err
	}

	var notes []models.Note
	if err := s.db.WithContext(ctx).
		Where("promise_id = ?", promise.ID).
		Order("created_at ASC").
		Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("note service: list notes: %w", err)
	}
	return notes, nil
}

// Delete removes a note. Only the author may delete it; everyone else gets
// the same answer as for a missing note.
func (s *NoteService) Delete(ctx context.Context, noteID, actorID string) error {
	ctx = ensureContext(ctx)

	var note models.Note
	if err := s.db.WithContext(ctx).First(&note, "id = ?", noteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFoundOrForbidden
		}
		return fmt.Errorf("note service: load note: %w", err)
	}

	if note.UserID != actorID {
		return apperrors.ErrNotFoundOrForbidden
	}

	if err := s.db.WithContext(ctx).Delete(&models.Note{}, "id = ?", note.ID).Error; err != nil {
		return storeError(err, "note service: delete note")
	}
	return nil
}

func (s *NoteService) authorizePromise(ctx context.Context, promiseID, actorID string) (*models.Promise, error) {
	var promise models.Promise
	if err := s.db.WithContext(ctx).First(&promise, "id = ?", promiseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFoundOrForbidden
		}
		return nil, fmt.Errorf("note service: load promise: %w", err)
	}
	if !promise.HasParticipant(actorID) {
		return nil, apperrors.ErrNotFoundOrForbidden
	}
	return &promise, nil
}

func (s *NoteService) notifyNoteAdded(ctx context.Context, promise *models.Promise, note *models.Note, authorID string) {
	for _, userID := range promise.ParticipantIDs() {
		if userID == authorID {
			continue
		}
		if _, err := s.notifications.Create(ctx, CreateNotificationInput{
			UserID:           userID,
			Type:             models.NotificationNoteAdded,
			Title:            "New note",
			Message:          fmt.Sprintf("A new note was added to %q.", promise.Title),
			RelatedPromiseID: promise.ID,
			Metadata:         map[string]any{"note_id": note.ID},
		}); err != nil {
			s.log.Warn("note notification failed",
				zap.String("note_id", note.ID),
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
}
