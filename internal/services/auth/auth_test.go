package auth_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"accounts/internal/assets"
	"accounts/internal/lib/logger/handlers/slogdiscard"
	"accounts/internal/services/auth"
	"accounts/internal/services/token"
	"accounts/internal/storage/sqlite"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passDefaultLen = 10

type fakeUploader struct {
	mu    sync.Mutex
	kinds []assets.Kind
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, file assets.File) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if file.Size <= 0 {
		return "", assets.ErrEmptyFile
	}
	if _, err := io.Copy(io.Discard, file.Body); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, file.Kind)

	return "https://cdn.example.com/" + string(file.Kind) + "/" + file.Filename, nil
}

type fixture struct {
	auth     *auth.Auth
	tokens   *token.Service
	store    *sqlite.Storage
	uploader *fakeUploader
}

func setup(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.New(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate())
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	log := slogdiscard.NewDiscardLogger()
	tokens := token.New(log, st, st, token.Config{
		AccessSecret:  "access-secret",
		AccessTTL:     time.Minute,
		RefreshSecret: "refresh-secret",
		RefreshTTL:    time.Hour,
	})
	uploader := &fakeUploader{}

	return &fixture{
		auth:     auth.New(log, st, st, tokens, uploader),
		tokens:   tokens,
		store:    st,
		uploader: uploader,
	}
}

func file(kind assets.Kind, name string) *assets.File {
	return &assets.File{Kind: kind, Filename: name, Size: 3, Body: strings.NewReader("img")}
}

func randomInput() auth.RegisterInput {
	return auth.RegisterInput{
		FullName: gofakeit.Name(),
		Email:    gofakeit.Email(),
		Username: gofakeit.Username(),
		Password: gofakeit.Password(true, true, true, true, false, passDefaultLen),
		Avatar:   file(assets.KindAvatar, "me.png"),
	}
}

func TestRegisterLogin_HappyPath(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	in := randomInput()
	in.Username = "  Ann  "
	in.CoverImage = file(assets.KindCoverImage, "cover.png")

	user, err := f.auth.Register(ctx, in)
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "ann", user.Username)
	assert.Equal(t, "https://cdn.example.com/avatars/me.png", user.Avatar)
	assert.Equal(t, "https://cdn.example.com/covers/cover.png", user.CoverImage)
	assert.Nil(t, user.PassHash)
	assert.Empty(t, user.RefreshToken)

	loggedIn, pair, err := f.auth.Login(ctx, "ANN", "", in.Password)
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.Nil(t, loggedIn.PassHash)
	assert.Empty(t, loggedIn.RefreshToken)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	subject, err := f.tokens.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, subject)

	_, _, err = f.auth.Login(ctx, "", in.Email, in.Password)
	require.NoError(t, err)
}

func TestRegister_FailCases(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	existing := randomInput()
	_, err := f.auth.Register(ctx, existing)
	require.NoError(t, err)

	tests := []struct {
		name        string
		mutate      func(in *auth.RegisterInput)
		expectedErr error
	}{
		{name: "blank fullname", mutate: func(in *auth.RegisterInput) { in.FullName = "  " }, expectedErr: auth.ErrFieldsRequired},
		{name: "blank email", mutate: func(in *auth.RegisterInput) { in.Email = "" }, expectedErr: auth.ErrFieldsRequired},
		{name: "blank username", mutate: func(in *auth.RegisterInput) { in.Username = "" }, expectedErr: auth.ErrFieldsRequired},
		{name: "blank password", mutate: func(in *auth.RegisterInput) { in.Password = " " }, expectedErr: auth.ErrFieldsRequired},
		{
			name:        "password over 72 bytes",
			mutate:      func(in *auth.RegisterInput) { in.Password = strings.Repeat("p", 80) },
			expectedErr: auth.ErrPasswordTooLong,
		},
		{name: "no avatar", mutate: func(in *auth.RegisterInput) { in.Avatar = nil }, expectedErr: auth.ErrAvatarRequired},
		{
			name:        "empty avatar",
			mutate:      func(in *auth.RegisterInput) { in.Avatar = &assets.File{Kind: assets.KindAvatar} },
			expectedErr: auth.ErrAvatarRequired,
		},
		{
			name:        "taken username",
			mutate:      func(in *auth.RegisterInput) { in.Username = strings.ToUpper(existing.Username) },
			expectedErr: auth.ErrUserAlreadyExists,
		},
		{
			name:        "taken email",
			mutate:      func(in *auth.RegisterInput) { in.Email = existing.Email },
			expectedErr: auth.ErrUserAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := randomInput()
			tt.mutate(&in)

			_, err := f.auth.Register(ctx, in)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestRegister_DuplicateDoesNotUpload(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	in := randomInput()
	_, err := f.auth.Register(ctx, in)
	require.NoError(t, err)
	require.Len(t, f.uploader.kinds, 1)

	dup := randomInput()
	dup.Username = in.Username
	_, err = f.auth.Register(ctx, dup)
	require.ErrorIs(t, err, auth.ErrUserAlreadyExists)
	assert.Len(t, f.uploader.kinds, 1)
}

func TestRegister_UploadFailure(t *testing.T) {
	f := setup(t)
	boom := errors.New("bucket unavailable")
	f.uploader.err = boom

	_, err := f.auth.Register(context.Background(), randomInput())
	require.ErrorIs(t, err, boom)
}

func TestLogin_FailCases(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	in := randomInput()
	_, err := f.auth.Register(ctx, in)
	require.NoError(t, err)

	tests := []struct {
		name        string
		username    string
		email       string
		password    string
		expectedErr error
	}{
		{name: "no identifier", password: in.Password, expectedErr: auth.ErrLoginRequired},
		{name: "no password", username: in.Username, expectedErr: auth.ErrPasswordRequired},
		{name: "unknown user", username: "nobody-" + gofakeit.LetterN(6), password: in.Password, expectedErr: auth.ErrUserNotFound},
		{name: "wrong password", username: in.Username, password: "wrong-password", expectedErr: auth.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.auth.Login(ctx, tt.username, tt.email, tt.password)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestRefreshAndLogout(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	in := randomInput()
	user, err := f.auth.Register(ctx, in)
	require.NoError(t, err)

	_, first, err := f.auth.Login(ctx, in.Username, "", in.Password)
	require.NoError(t, err)

	second, err := f.auth.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = f.auth.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	_, err = f.auth.Refresh(ctx, "")
	require.ErrorIs(t, err, auth.ErrRefreshTokenRequired)

	require.NoError(t, f.auth.Logout(ctx, user.ID))
	require.NoError(t, f.auth.Logout(ctx, user.ID))

	_, err = f.auth.Refresh(ctx, second.RefreshToken)
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
}

func TestChangePassword(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	in := randomInput()
	user, err := f.auth.Register(ctx, in)
	require.NoError(t, err)

	err = f.auth.ChangePassword(ctx, user.ID, "wrong-password", "new-password")
	require.ErrorIs(t, err, auth.ErrInvalidOldPassword)

	err = f.auth.ChangePassword(ctx, user.ID, in.Password, "")
	require.ErrorIs(t, err, auth.ErrFieldsRequired)

	err = f.auth.ChangePassword(ctx, user.ID, in.Password, strings.Repeat("p", 73))
	require.ErrorIs(t, err, auth.ErrPasswordTooLong)

	err = f.auth.ChangePassword(ctx, "missing", in.Password, "new-password")
	require.ErrorIs(t, err, auth.ErrUserNotFound)

	require.NoError(t, f.auth.ChangePassword(ctx, user.ID, in.Password, "new-password"))

	_, _, err = f.auth.Login(ctx, in.Username, "", in.Password)
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, _, err = f.auth.Login(ctx, in.Username, "", "new-password")
	require.NoError(t, err)
}
