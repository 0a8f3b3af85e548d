package mongodb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"accounts/internal/domain/models"
	"accounts/internal/storage"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// setupMongo starts a throwaway mongod and returns a connected Storage.
func setupMongo(t *testing.T) *Storage {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping mongodb integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s, err := New(connectCtx, fmt.Sprintf("mongodb://%s:%s", host, port.Port()), "accounts_test")
	require.NoError(t, err)

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

func TestStorage(t *testing.T) {
	s := setupMongo(t)
	ctx := context.Background()

	t.Run("save and load user", func(t *testing.T) {
		in := fakeUser()

		saved, err := s.SaveUser(ctx, in)
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)
		assert.Nil(t, saved.PassHash)

		full, err := s.User(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, in.Username, full.Username)
		assert.Equal(t, in.PassHash, full.PassHash)

		profile, err := s.UserProfile(ctx, saved.ID)
		require.NoError(t, err)
		assert.Nil(t, profile.PassHash)
		assert.Empty(t, profile.RefreshToken)

		byLogin, err := s.UserByLogin(ctx, "", in.Email)
		require.NoError(t, err)
		assert.Equal(t, saved.ID, byLogin.ID)

		exists, err := s.UserExists(ctx, in.Username, "")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("duplicate username or email", func(t *testing.T) {
		in := fakeUser()
		_, err := s.SaveUser(ctx, in)
		require.NoError(t, err)

		dupName := fakeUser()
		dupName.Username = in.Username
		_, err = s.SaveUser(ctx, dupName)
		require.ErrorIs(t, err, storage.ErrUserAlreadyExists)

		dupEmail := fakeUser()
		dupEmail.Email = in.Email
		_, err = s.SaveUser(ctx, dupEmail)
		require.ErrorIs(t, err, storage.ErrUserAlreadyExists)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := s.User(ctx, bson.NewObjectID().Hex())
		require.ErrorIs(t, err, storage.ErrUserNotFound)

		_, err = s.User(ctx, "not-an-object-id")
		require.ErrorIs(t, err, storage.ErrUserNotFound)

		err = s.SetRefreshToken(ctx, bson.NewObjectID().Hex(), "token")
		require.ErrorIs(t, err, storage.ErrUserNotFound)
	})

	t.Run("refresh token set swap clear", func(t *testing.T) {
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
	})

	t.Run("update account", func(t *testing.T) {
		a, err := s.SaveUser(ctx, fakeUser())
		require.NoError(t, err)
		b, err := s.SaveUser(ctx, fakeUser())
		require.NoError(t, err)

		updated, err := s.UpdateAccount(ctx, a.ID, "New Name", gofakeit.Email())
		require.NoError(t, err)
		assert.Equal(t, "New Name", updated.FullName)
		assert.Nil(t, updated.PassHash)

		_, err = s.UpdateAccount(ctx, a.ID, "New Name", b.Email)
		require.ErrorIs(t, err, storage.ErrUserAlreadyExists)

		avatar, err := s.UpdateAvatar(ctx, a.ID, "https://cdn.example.com/a.png")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/a.png", avatar.Avatar)

		cover, err := s.UpdateCoverImage(ctx, a.ID, "https://cdn.example.com/c.png")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/c.png", cover.CoverImage)
	})

	t.Run("subscriptions", func(t *testing.T) {
		viewer, err := s.SaveUser(ctx, fakeUser())
		require.NoError(t, err)
		channel, err := s.SaveUser(ctx, fakeUser())
		require.NoError(t, err)

		require.NoError(t, s.SaveSubscription(ctx, viewer.ID, channel.ID))
		err = s.SaveSubscription(ctx, viewer.ID, channel.ID)
		require.ErrorIs(t, err, storage.ErrSubscriptionExists)

		subs, subTo, isSub, err := s.ChannelStats(ctx, channel.ID, viewer.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), subs)
		assert.Equal(t, int64(0), subTo)
		assert.True(t, isSub)

		require.NoError(t, s.DeleteSubscription(ctx, viewer.ID, channel.ID))
		err = s.DeleteSubscription(ctx, viewer.ID, channel.ID)
		require.ErrorIs(t, err, storage.ErrSubscriptionNotFound)
	})
}
