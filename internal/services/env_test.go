package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pledgerhq/pledger/internal/database/testutil"
	"github.com/pledgerhq/pledger/internal/models"
)

// serviceEnv wires the full service stack against an in-memory database so
// tests can drive realistic cross-service flows.
type serviceEnv struct {
	db            *gorm.DB
	users         *UserService
	notifications *NotificationService
	promises      *PromiseService
	milestones    *MilestoneService
	notes         *NoteService
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	users, err := NewUserService(db)
	require.NoError(t, err)

	notifications, err := NewNotificationService(db, nil)
	require.NoError(t, err)

	promises, err := NewPromiseService(db, users, notifications, nil)
	require.NoError(t, err)

	milestones, err := NewMilestoneService(db, notifications)
	require.NoError(t, err)

	notes, err := NewNoteService(db, notifications)
	require.NoError(t, err)

	return &serviceEnv{
		db:            db,
		users:         users,
		notifications: notifications,
		promises:      promises,
		milestones:    milestones,
		notes:         notes,
	}
}

func (env *serviceEnv) registerUser(t *testing.T, name string) *models.User {
	t.Helper()

	user, err := env.users.Register(context.Background(), RegisterUserInput{
		Email:    fmt.Sprintf("%s@example.com", name),
		Name:     name,
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	return user
}

// createPromise creates a promise from owner to promisee with the given
// mentor; promisee and mentor may be nil.
func (env *serviceEnv) createPromise(t *testing.T, owner *models.User, promisee, mentor *models.User, title string) *models.Promise {
	t.Helper()

	input := CreatePromiseInput{Title: title}
	if promisee != nil {
		input.PromiseeID = promisee.ID
	}
	if mentor != nil {
		input.MentorID = mentor.ID
	}

	promise, err := env.promises.Create(context.Background(), owner.ID, input)
	require.NoError(t, err)
	return promise
}

func (env *serviceEnv) notificationsFor(t *testing.T, userID string) []NotificationDTO {
	t.Helper()

	items, err := env.notifications.ListForUser(context.Background(), ListNotificationsInput{UserID: userID})
	require.NoError(t, err)
	return items
}

func (env *serviceEnv) notificationsOfType(t *testing.T, userID, notificationType string) []NotificationDTO {
	t.Helper()

	var matched []NotificationDTO
	for _, item := range env.notificationsFor(t, userID) {
		if item.Type == notificationType {
			matched = append(matched, item)
		}
	}
	return matched
}
