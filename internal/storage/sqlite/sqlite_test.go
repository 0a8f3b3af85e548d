package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"accounts/internal/domain/models"
	"accounts/internal/storage"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())

	t.Cleanup(func() {
		_ = s.Close(context.Background())
	})

	return s
}

func fakeUser() models.NewUser {
	return models.NewUser{
		Username: gofakeit.Username(),
		Email:    gofakeit.Email(),
		FullName: gofakeit.Name(),
		PassHash: []byte("hash"),
		Avatar:   gofakeit.URL(),
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.Migrate())
	require.NoError(t, s.Ping(context.Background()))
}

func TestSaveUser(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	in := fakeUser()
	saved, err := s.SaveUser(ctx, in)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Nil(t, saved.PassHash)

	full, err := s.User(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, in.Username, full.Username)
	assert.Equal(t, in.Email, full.Email)
	assert.Equal(t, in.PassHash, full.PassHash)
	assert.Empty(t, full.RefreshToken)

	profile, err := s.UserProfile(ctx, saved.ID)
	require.NoError(t, err)
	assert.Nil(t, profile.PassHash)

	byName, err := s.UserByUsername(ctx, in.Username)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, byName.ID)
	assert.Nil(t, byName.PassHash)
}

func TestSaveUser_Duplicate(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	in := fakeUser()
	_, err := s.SaveUser(ctx, in)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(u *models.NewUser)
	}{
		{name: "same username", mutate: func(u *models.NewUser) { u.Username = in.Username }},
		{name: "same email", mutate: func(u *models.NewUser) { u.Email = in.Email }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dup := fakeUser()
			tt.mutate(&dup)

			_, err := s.SaveUser(ctx, dup)
			require.ErrorIs(t, err, storage.ErrUserAlreadyExists)
		})
	}
}

func TestUserByLogin(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	in := fakeUser()
	saved, err := s.SaveUser(ctx, in)
	require.NoError(t, err)

	u, err := s.UserByLogin(ctx, in.Username, "")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, u.ID)

	u, err = s.UserByLogin(ctx, "", in.Email)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, u.ID)

	_, err = s.UserByLogin(ctx, "nobody", "")
	require.ErrorIs(t, err, storage.ErrUserNotFound)

	_, err = s.UserByLogin(ctx, "", "")
	require.ErrorIs(t, err, storage.ErrUserNotFound)

	exists, err := s.UserExists(ctx, "nobody", in.Email)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.UserExists(ctx, "nobody", "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRefreshToken(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	u, err := s.SaveUser(ctx, fakeUser())
	require.NoError(t, err)

	require.NoError(t, s.SetRefreshToken(ctx, u.ID, "first"))

	err = s.SwapRefreshToken(ctx, u.ID, "stale", "second")
	require.ErrorIs(t, err, storage.ErrTokenMismatch)

	require.NoError(t, s.SwapRefreshToken(ctx, u.ID, "first", "second"))

	full, err := s.User(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", full.RefreshToken)

	require.NoError(t, s.SetRefreshToken(ctx, u.ID, ""))
	require.NoError(t, s.SetRefreshToken(ctx, u.ID, ""))

	full, err = s.User(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, full.RefreshToken)

	err = s.SetRefreshToken(ctx, "missing", "token")
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestUpdates(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	a, err := s.SaveUser(ctx, fakeUser())
	require.NoError(t, err)
	b, err := s.SaveUser(ctx, fakeUser())
	require.NoError(t, err)

	newEmail := gofakeit.Email()
	updated, err := s.UpdateAccount(ctx, a.ID, "New Name", newEmail)
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.FullName)
	assert.Equal(t, newEmail, updated.Email)
	assert.Nil(t, updated.PassHash)

	_, err = s.UpdateAccount(ctx, a.ID, "New Name", b.Email)
	require.ErrorIs(t, err, storage.ErrUserAlreadyExists)

	_, err = s.UpdateAccount(ctx, "missing", "x", gofakeit.Email())
	require.ErrorIs(t, err, storage.ErrUserNotFound)

	avatar, err := s.UpdateAvatar(ctx, a.ID, "https://cdn.example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", avatar.Avatar)

	cover, err := s.UpdateCoverImage(ctx, a.ID, "https://cdn.example.com/c.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/c.png", cover.CoverImage)

	require.NoError(t, s.UpdatePassword(ctx, a.ID, []byte("new-hash")))

	full, err := s.User(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("new-hash"), full.PassHash)
}

func TestSubscriptions(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	viewer, err := s.SaveUser(ctx, fakeUser())
	require.NoError(t, err)
	channel, err := s.SaveUser(ctx, fakeUser())
	require.NoError(t, err)

	require.NoError(t, s.SaveSubscription(ctx, viewer.ID, channel.ID))

	err = s.SaveSubscription(ctx, viewer.ID, channel.ID)
	require.ErrorIs(t, err, storage.ErrSubscriptionExists)

	err = s.SaveSubscription(ctx, viewer.ID, "missing")
	require.ErrorIs(t, err, storage.ErrUserNotFound)

	subs, subTo, isSub, err := s.ChannelStats(ctx, channel.ID, viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), subs)
	assert.Equal(t, int64(0), subTo)
	assert.True(t, isSub)

	subs, subTo, isSub, err = s.ChannelStats(ctx, viewer.ID, channel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), subs)
	assert.Equal(t, int64(1), subTo)
	assert.False(t, isSub)

	require.NoError(t, s.DeleteSubscription(ctx, viewer.ID, channel.ID))

	err = s.DeleteSubscription(ctx, viewer.ID, channel.ID)
	require.ErrorIs(t, err, storage.ErrSubscriptionNotFound)
}
