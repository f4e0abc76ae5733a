package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/randevubu/randevubu-server/pkg/errors"
)

func TestUserServiceCreateAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loginAt := time.Date(2030, time.January, 2, 3, 4, 5, 0, time.UTC)
	f.users.now = func() time.Time { return loginAt }

	user, err := f.users.Create(ctx, CreateUserInput{Email: " Ayse@Example.com ", Password: "correct horse", Name: "Ayse"})
	require.NoError(t, err)
	require.Equal(t, "ayse@example.com", user.Email)
	require.NotEqual(t, "correct horse", user.Password)
	require.Equal(t, "tr", user.Locale)

	_, err = f.users.Create(ctx, CreateUserInput{Email: "ayse@example.com", Password: "another one"})
	require.Error(t, err)
	require.Equal(t, "CONFLICT", apperrors.FromError(err).Code)

	_, err = f.users.Authenticate(ctx, "ayse@example.com", "wrong password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.users.Authenticate(ctx, "nobody@example.com", "correct horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	authenticated, err := f.users.Authenticate(ctx, "AYSE@example.com", "correct horse")
	require.NoError(t, err)
	require.NotNil(t, authenticated.LastLoginAt)
	require.True(t, authenticated.LastLoginAt.Equal(loginAt))

	summary := f.monitor.Snapshot()
	require.Equal(t, uint64(1), summary.Auth.Success)
	require.Equal(t, uint64(2), summary.Auth.Failure)
}

func TestUserServiceRejectsShortPasswords(t *testing.T) {
	f := newFixture(t)

	_, err := f.users.Create(context.Background(), CreateUserInput{Email: "a@example.com", Password: "short"})
	require.Error(t, err)
	require.Equal(t, "BAD_REQUEST", apperrors.FromError(err).Code)
}

func TestUserServiceProfileCacheFollowsUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.users.Create(ctx, CreateUserInput{Email: "mehmet@example.com", Password: "password123", Name: "Mehmet"})
	require.NoError(t, err)

	got, err := f.users.Get(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "Mehmet", got.Name)
	require.Empty(t, got.Password)
	require.True(t, f.cached(t, "v2:profile:"+user.ID))

	name := "Mehmet Y."
	_, err = f.users.Update(ctx, user.ID, UpdateUserInput{Name: &name})
	require.NoError(t, err)
	require.False(t, f.cached(t, "v2:profile:"+user.ID))

	got, err = f.users.Get(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, name, got.Name)

	require.NoError(t, f.users.Delete(ctx, user.ID))
	_, err = f.users.Get(ctx, user.ID)
	require.ErrorIs(t, err, ErrUserNotFound)
	require.ErrorIs(t, f.users.Delete(ctx, user.ID), ErrUserNotFound)
}

func TestUserServiceInactiveUsersCannotAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.users.Create(ctx, CreateUserInput{Email: "off@example.com", Password: "password123"})
	require.NoError(t, err)

	inactive := false
	_, err = f.users.Update(ctx, user.ID, UpdateUserInput{IsActive: &inactive})
	require.NoError(t, err)

	_, err = f.users.Authenticate(ctx, "off@example.com", "password123")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserServiceSetAdminRefreshesCachedProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.users.Create(ctx, CreateUserInput{Email: "Admin@Example.com", Password: "password123"})
	require.NoError(t, err)

	admin, err := f.users.IsAdmin(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, admin)
	require.True(t, f.cached(t, "v2:profile:"+user.ID))

	_, err = f.users.SetAdmin(ctx, "admin@example.com", true)
	require.NoError(t, err)
	require.False(t, f.cached(t, "v2:profile:"+user.ID))

	admin, err = f.users.IsAdmin(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, admin)

	admin, err = f.users.IsAdmin(ctx, "missing")
	require.NoError(t, err)
	require.False(t, admin)

	_, err = f.users.SetAdmin(ctx, "nobody@example.com", true)
	require.ErrorIs(t, err, ErrUserNotFound)
}
