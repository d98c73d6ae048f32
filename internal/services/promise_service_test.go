package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pledgerhq/pledger/internal/models"
	apperrors "github.com/pledgerhq/pledger/pkg/errors"
)

func TestPromiseCreateResolvesRegisteredEmail(t *testing.T) {
	env := newServiceEnv(t)
	owner := env.registerUser(t, "alice")
	promisee := env.registerUser(t, "bob")

	promise, err := env.promises.Create(context.Background(), owner.ID, CreatePromiseInput{
		Title:         "Ship the quarterly report",
		PromiseeEmail: "BOB@example.com",
	})
	require.NoError(t, err)

	require.NotNil(t, promise.PromiseeID)
	require.Equal(t, promisee.ID, *promise.PromiseeID)
	require.Nil(t, promise.PromiseeEmail)
	require.Equal(t, models.StatusOngoing, promise.Status)

	invites := env.notificationsOfType(t, promisee.ID, models.NotificationPromiseInvitation)
	require.Len(t, invites, 1)
	require.Equal(t, promise.ID, invites[0].RelatedPromiseID)
}

func TestPromiseCreateKeepsPlaceholderEmail(t *testing.T) {
	env := newServiceEnv(t)
	owner := env.registerUser(t, "alice")

	promise, err := env.promises.Create(context.Background(), owner.ID, CreatePromiseInput{
		Title:         "Call grandma weekly",
		PromiseeEmail: "nobody-yet@example.com",
	})
	require.NoError(t, err)

	require.Nil(t, promise.PromiseeID)
	require.NotNil(t, promise.PromiseeEmail)
	require.Equal(t, "nobody-yet@example.com", *promise.PromiseeEmail)
}

func TestPromiseCreateNoRetroactiveResolution(t *testing.T) {
	env := newServiceEnv(t)
	owner := env.registerUser(t, "alice")

	before, err := env.promises.Create(context.Background(), owner.ID, CreatePromiseInput{
		Title:         "Review the draft",
		PromiseeEmail: "carol@example.com",
	})
	require.NoError(t, err)

	carol := env.registerUser(t, "carol")

	// The earlier promise keeps its placeholder.
	loaded, err := env.promises.Get(context.Background(), before.ID, owner.ID)
	require.NoError(t, err)
	require.Nil(t, loaded.PromiseeID)
	require.NotNil(t, loaded.PromiseeEmail)

	// A new promise to the same address resolves to the fresh account.
	after, err := env.promises.Create(context.Background(), owner.ID, CreatePromiseInput{
		Title:         "Review the final version",
		PromiseeEmail: "carol@example.com",
	})
	require.NoError(t, err)
	require.NotNil(t, after.PromiseeID)
	require.Equal(t, carol.ID, *after.PromiseeID)
	require.Nil(t, after.PromiseeEmail)
}

func TestPromiseCreateValidation(t *testing.T) {
	env := newServiceEnv(t)
	owner := env.registerUser(t, "alice")

	_, err := env.promises.Create(context.Background(), owner.ID, CreatePromiseInput{Title: "  "})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = env.promises.Create(context.Background(), owner.ID, CreatePromiseInput{
		Title:    "Bad deadline",
		Deadline: "next tuesday",
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = env.promises.Create(context.Background(), owner.ID, CreatePromiseInput{
		Title:         "Malformed email",
		PromiseeEmail: "not-an-email",
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = env.promises.Create(context.Background(), owner.ID, CreatePromiseInput{
		Title:      "Unknown participant",
		PromiseeID: "does-not-exist",
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestPromiseCreateWithMilestones(t *testing.T) {
	env := newServiceEnv(t)
	owner := env.registerUser(t, "alice")

	promise, err := env.promises.Create(context.Background(), owner.ID, CreatePromiseInput{
		Title: "Learn the violin",
		Milestones: []MilestoneDraft{
			{Title: "Buy an instrument"},
			{Title: "First lesson"},
		},
	})
	require.NoError(t, err)
	require.Len(t, promise.Milestones, 2)

	loaded, err := env.promises.Get(context.Background(), promise.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Milestones, 2)
	require.Equal(t, "Buy an instrument", loaded.Milestones[0].Title)
}

func TestPromiseGetHiddenFromNonParticipants(t *testing.T) {
	env := newServiceEnv(t)
	owner := env.registerUser(t, "alice")
	promisee := env.registerUser(t, "bob")
	mentor := env.registerUser(t, "mallory")
	stranger := env.registerUser(t, "eve")

	promise := env.createPromise(t, owner, promisee, mentor, "Run a marathon")

	for _, participant := range []string{owner.ID, promisee.ID, mentor.ID} {
		loaded, err := env.promises.Get(context.Background(), promise.ID, participant)
		require.NoError(t, err)
		require.Equal(t, promise.ID, loaded.ID)
	}

	_, err := env.promises.Get(context.Background(), promise.ID, stranger.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFoundOrForbidden)

	// A missing id answers identically.
	_, err = env.promises.Get(context.Background(), "missing", stranger.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFoundOrForbidden)
}

func TestPromiseUpdateHiddenFromNonParticipants(t *testing.T) {
	env := newServiceEnv(t)
	owner := env.registerUser(t, "alice")
	promisee := env.registerUser(t, "bob")
	stranger := env.registerUser(t, "eve")

	promise := env.createPromise(t, owner, promisee, nil, "Secret plan")

	// A patch that changes nothing must not hand the promise back.
	updated, err := env.promises.Update(context.Background(), promise.ID, stranger.ID, UpdatePromisePatch{})
	require.ErrorIs(t, err, apperrors.ErrNotFoundOrForbidden)
	require.Nil(t, updated)

	// The same goes for a status "change" to the current status.
	ongoing := string(models.StatusOngoing)
	updated, err = env.promises.Update(context.Background(), promise.ID, stranger.ID, UpdatePromisePatch{Status: &ongoing})
	require.ErrorIs(t, err, apperrors.ErrNotFoundOrForbidden)
	require.Nil(t, updated)

	// Participants sending an empty patch still get the promise back.
	loaded, err := env.promises.Update(context.Background(), promise.ID, promisee.ID, UpdatePromisePatch{})
	require.NoError(t, err)
	require.Equal(t, promise.ID, loaded.ID)
}

func TestPromiseListRoleFilters(t *testing.T) {
	env := newServiceEnv(t)
	alice := env.registerUser(t, "alice")
	bob := env.registerUser(t, "bob")

	env.createPromise(t, alice, bob, nil, "Owned by alice")
	env.createPromise(t, bob, alice, nil, "Promised to alice")
	env.createPromise(t, bob, nil, alice, "Mentored by alice")

	owned, err := env.promises.List(context.Background(), alice.ID, ListPromisesInput{Role: RoleFilterOwned})
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, "Owned by alice", owned[0].Title)

	promised, err := env.promises.List(context.Background(), alice.ID, ListPromisesInput{Role: RoleFilterPromised})
	require.NoError(t, err)
	require.Len(t, promised, 1)
	require.Equal(t, "Promised to alice", promised[0].Title)

	mentoring, err := env.promises.List(context.Background(), alice.ID, ListPromisesInput{Role: RoleFilterMentoring})
	require.NoError(t, err)
	require.Len(t, mentoring, 1)
	require.Equal(t, "Mentored by alice", mentoring[0].Title)

	all, err := env.promises.List(context.Background(), alice.ID, ListPromisesInput{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	_, err = env.promises.List(context.Background(), alice.ID, ListPromisesInput{Role: "bogus"})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = env.promises.List(context.Background(), alice.ID, ListPromisesInput{Status: "bogus"})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestPromiseFieldEditsOwnerOnly(t *testing.T) {
	env := newServiceEnv(t)
	owner := env.registerUser(t, "alice")
	promisee := env.registerUser(t, "bob")
	promise := env.createPromise(t, owner, promisee, nil, "Original title")

	newTitle := "Edited title"
	_, err := env.promises.Update(context.Background(), promise.ID, promisee.ID, UpdatePromisePatch{Title: &newTitle})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	updated, err := env.promises.Update(context.Background(), promise.ID, owner.ID, UpdatePromisePatch{Title: &newTitle})
	require.NoError(t, err)
	require.Equal(t, newTitle, updated.Title)
}

func TestPromiseStatusTransitions(t *testing.T) {
	env := newServiceEnv(t)
	owner := env.registerUser(t, "alice")
	promisee := env.registerUser(t, "bob")
	mentor := env.registerUser(t, "mallory")

	completed := string(models.StatusCompleted)
	notMade := string(models.StatusNotMade)
	declined := string(models.StatusDeclined)
	overdue := string(models.StatusOverdue)

	t.Run("promisee may complete", func(t *testing.T) {
		promise := env.createPromise(t, owner, promisee, mentor, "Promisee completes")
		updated, err := env.promises.Update(context.Background(), promise.ID, promisee.ID, UpdatePromisePatch{Status: &completed})
		require.NoError(t, err)
		require.Equal(t, models.StatusCompleted, updated.Status)
	})

	t.Run("mentor may not complete", func(t *testing.T) {
		promise := env.createPromise(t, owner, promisee, mentor, "Mentor blocked")
		_, err := env.promises.Update(context.Background(), promise.ID, mentor.ID, UpdatePromisePatch{Status: &completed})
		require.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("only owner may mark not made", func(t *testing.T) {
		promise := env.createPromise(t, owner, promisee, mentor, "Not made")
		_, err := env.promises.Update(context.Background(), promise.ID, promisee.ID, UpdatePromisePatch{Status: &notMade})
		require.ErrorIs(t, err, apperrors.ErrForbidden)

		updated, err := env.promises.Update(context.Background(), promise.ID, owner.ID, UpdatePromisePatch{Status: &notMade})
		require.NoError(t, err)
		require.Equal(t, models.StatusNotMade, updated.Status)
	})

	t.Run("declining via update is rejected", func(t *testing.T) {
		promise := env.createPromise(t, owner, promisee, mentor, "Decline via update")
		_, err := env.promises.Update(context.Background(), promise.ID, promisee.ID, UpdatePromisePatch{Status: &declined})
		require.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("overdue is system only", func(t *testing.T) {
		promise := env.createPromise(t, owner, promisee, mentor, "Overdue by hand")
		_, err := env.promises.Update(context.Background(), promise.ID, owner.ID, UpdatePromisePatch{Status: &overdue})
		require.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("terminal status is frozen", func(t *testing.T) {
		promise := env.createPromise(t, owner, promisee, mentor, "Frozen")
		_, err := env.promises.Update(context.Background(), promise.ID, owner.ID, UpdatePromisePatch{Status: &completed})
		require.NoError(t, err)

		_, err = env.promises.Update(context.Background(), promise.ID, owner.ID, UpdatePromisePatch{Status: &notMade})
		require.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("overdue promise may still complete", func(t *testing.T) {
		promise := env.createPromise(t, owner, promisee, mentor, "Late but done")
		require.NoError(t, env.db.Model(&models.Promise{}).
			Where("id = ?", promise.ID).
			Update("status", models.StatusOverdue).Error)

		updated, err := env.promises.Update(context.Background(), promise.ID, owner.ID, UpdatePromisePatch{Status: &completed})
		require.NoError(t, err)
		require.Equal(t, models.StatusCompleted, updated.Status)
	})
}

func TestPromiseCombinedPatchRejectedWhole(t *testing.T) {
	env := newServiceEnv(t)
	owner := env.registerUser(t, "alice")
	promisee := env.registerUser(t, "bob")
	promise := env.createPromise(t, owner, promisee, nil, "Atomic patch")

	// The promisee may complete but may not edit fields; the whole patch
	// fails and nothing is persisted.
	completed := string(models.StatusCompleted)
	title := "Sneaky edit"
	_, err := env.promises.Update(context.Background(), promise.ID, promisee.ID, UpdatePromisePatch{
		Title:  &title,
		Status: &completed,
	})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	loaded, err := env.promises.Get(context.Background(), promise.ID, owner.ID)
	require.NoError(t, err)
	require.Equal(t, "Atomic patch", loaded.Title)
	require.Equal(t, models.StatusOngoing, loaded.Status)
}

func TestPromiseCompletionNotifiesOthers(t *testing.T) {
	env := newServiceEnv(t)
	owner := env.registerUser(t, "alice")
	promisee := env.registerUser(t, "bob")
	mentor := env.registerUser(t, "mallory")
	promise := env.createPromise(t, owner, promisee, mentor, "Celebrated")

	completed := string(models.StatusCompleted)
	_, err := env.promises.Update(context.Background(), promise.ID, owner.ID, UpdatePromisePatch{Status: &completed})
	require.NoError(t, err)

	require.Len(t, env.notificationsOfType(t, promisee.ID, models.NotificationPromiseCompleted), 1)
	require.Len(t, env.notificationsOfType(t, mentor.ID, models.NotificationPromiseCompleted), 1)
	require.Empty(t, env.notificationsOfType(t, owner.ID, models.NotificationPromiseCompleted))
}

func TestPromiseDecline(t *testing.T) {
	env := newServiceEnv(t)
	owner := env.registerUser(t, "alice")
	promisee := env.registerUser(t, "bob")
	mentor := env.registerUser(t, "mallory")

	t.Run("promisee declines", func(t *testing.T) {
		promise := env.createPromise(t, owner, promisee, mentor, "Declined")
		declined, err := env.promises.Decline(context.Background(), promise.ID, promisee.ID)
		require.NoError(t, err)
		require.Equal(t, models.StatusDeclined, declined.Status)

		require.Len(t, env.notificationsOfType(t, owner.ID, models.NotificationPromiseDeclined), 1)
	})

	t.Run("only the promisee may decline", func(t *testing.T) {
		promise := env.createPromise(t, owner, promisee, mentor, "Not yours to decline")
		_, err := env.promises.Decline(context.Background(), promise.ID, mentor.ID)
		require.ErrorIs(t, err, apperrors.ErrNotFoundOrForbidden)

		_, err = env.promises.Decline(context.Background(), promise.ID, owner.ID)
		require.ErrorIs(t, err, apperrors.ErrNotFoundOrForbidden)
	})

	t.Run("terminal promise answers like missing", func(t *testing.T) {
		promise := env.createPromise(t, owner, promisee, mentor, "Already done")
		completed := string(models.StatusCompleted)
		_, err := env.promises.Update(context.Background(), promise.ID, owner.ID, UpdatePromisePatch{Status: &completed})
		require.NoError(t, err)

		_, err = env.promises.Decline(context.Background(), promise.ID, promisee.ID)
		require.ErrorIs(t, err, apperrors.ErrNotFoundOrForbidden)
	})
}

func TestPromiseDeleteCascades(t *testing.T) {
	env := newServiceEnv(t)
	owner := env.registerUser(t, "alice")
	promisee := env.registerUser(t, "bob")
	promise := env.createPromise(t, owner, promisee, nil, "Doomed")

	_, err := env.milestones.Create(context.Background(), promise.ID, owner.ID, CreateMilestoneInput{Title: "Step one"})
	require.NoError(t, err)
	_, err = env.notes.Create(context.Background(), promise.ID, promisee.ID, "A note")
	require.NoError(t, err)

	require.ErrorIs(t, env.promises.Delete(context.Background(), promise.ID, promisee.ID), apperrors.ErrForbidden)
	require.NoError(t, env.promises.Delete(context.Background(), promise.ID, owner.ID))

	var milestones, notes, notifications int64
	require.NoError(t, env.db.Model(&models.Milestone{}).Where("promise_id = ?", promise.ID).Count(&milestones).Error)
	require.NoError(t, env.db.Model(&models.Note{}).Where("promise_id = ?", promise.ID).Count(&notes).Error)
	require.NoError(t, env.db.Model(&models.Notification{}).Where("related_promise_id = ?", promise.ID).Count(&notifications).Error)
	require.Zero(t, milestones)
	require.Zero(t, notes)
	require.Zero(t, notifications)

	require.ErrorIs(t, env.promises.Delete(context.Background(), promise.ID, owner.ID), apperrors.ErrNotFound)
}

func TestPromiseDeadlineStoredUTC(t *testing.T) {
	env := newServiceEnv(t)
	owner := env.registerUser(t, "alice")

	promise, err := env.promises.Create(context.Background(), owner.ID, CreatePromiseInput{
		Title:    "Timed",
		Deadline: "2026-04-01T15:04:05+02:00",
	})
	require.NoError(t, err)
	require.NotNil(t, promise.Deadline)
	require.Equal(t, time.Date(2026, time.April, 1, 13, 4, 5, 0, time.UTC), promise.Deadline.UTC())
}
