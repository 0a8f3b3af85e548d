package jwt_test

import (
	"testing"
	"time"

	ljwt "accounts/internal/lib/jwt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "access-secret"

func TestNewTokenParseToken(t *testing.T) {
	token, err := ljwt.NewToken(ljwt.Claims{
		Username: "ann",
		Email:    "ann@x.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user-1",
		},
	}, secret, time.Minute)
	require.NoError(t, err)

	claims, err := ljwt.ParseToken(token, secret)
	require.NoError(t, err)

	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "ann", claims.Username)
	assert.Equal(t, "ann@x.com", claims.Email)
	assert.NotEmpty(t, claims.ID)
	assert.InDelta(t, time.Now().Add(time.Minute).Unix(), claims.ExpiresAt.Unix(), 1)
}

func TestNewTokenIsUniquePerCall(t *testing.T) {
	claims := ljwt.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}

	first, err := ljwt.NewToken(claims, secret, time.Hour)
	require.NoError(t, err)
	second, err := ljwt.NewToken(claims, secret, time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestParseToken_FailCases(t *testing.T) {
	valid, err := ljwt.NewToken(ljwt.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}, secret, time.Minute)
	require.NoError(t, err)

	expired, err := ljwt.NewToken(ljwt.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}, secret, -time.Minute)
	require.NoError(t, err)

	noSubject, err := ljwt.NewToken(ljwt.Claims{}, secret, time.Minute)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{name: "wrong secret", token: valid, secret: "other-secret"},
		{name: "expired", token: expired, secret: secret},
		{name: "malformed", token: "not.a.jwt", secret: secret},
		{name: "empty", token: "", secret: secret},
		{name: "no subject", token: noSubject, secret: secret},
		{name: "alg none", token: unsigned, secret: secret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ljwt.ParseToken(tt.token, tt.secret)
			require.ErrorIs(t, err, ljwt.ErrInvalidToken)
		})
	}
}
