package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/pledgerhq/pledger/pkg/errors"
)

func TestUserRegisterAndAuthenticate(t *testing.T) {
	env := newServiceEnv(t)

	user, err := env.users.Register(context.Background(), RegisterUserInput{
		Email:    "Alice@Example.com",
		Name:     "Alice",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", user.Email)
	require.NotEqual(t, "correct horse battery", user.Password)

	authed, err := env.users.Authenticate(context.Background(), "alice@example.com", "correct horse battery")
	require.NoError(t, err)
	require.Equal(t, user.ID, authed.ID)

	_, err = env.users.Authenticate(context.Background(), "alice@example.com", "wrong password")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = env.users.Authenticate(context.Background(), "nobody@example.com", "whatever")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestUserRegisterValidation(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.users.Register(context.Background(), RegisterUserInput{Name: "No Email", Password: "long enough pw"})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = env.users.Register(context.Background(), RegisterUserInput{Email: "a@example.com", Password: "long enough pw"})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = env.users.Register(context.Background(), RegisterUserInput{Email: "a@example.com", Name: "A", Password: "short"})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	env.registerUser(t, "dup")
	_, err = env.users.Register(context.Background(), RegisterUserInput{
		Email:    "dup@example.com",
		Name:     "Again",
		Password: "long enough pw",
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestUserFindByEmailAbsentIsNil(t *testing.T) {
	env := newServiceEnv(t)

	user, err := env.users.FindByEmail(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	require.Nil(t, user)

	registered := env.registerUser(t, "real")
	found, err := env.users.FindByEmail(context.Background(), "REAL@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, registered.ID, found.ID)
}

func TestUserFindByID(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.users.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	user := env.registerUser(t, "present")
	found, err := env.users.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, user.Email, found.Email)
}
