package cookies

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"accounts/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndClear(t *testing.T) {
	cfg := Config{
		Secure:     true,
		SameSite:   ParseSameSite("none"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 240 * time.Hour,
	}

	rec := httptest.NewRecorder()
	cfg.SetTokens(rec, models.TokenPair{AccessToken: "a", RefreshToken: "r"})

	got := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		got[c.Name] = c
	}

	require.Contains(t, got, AccessToken)
	require.Contains(t, got, RefreshToken)
	assert.Equal(t, "a", got[AccessToken].Value)
	assert.Equal(t, 900, got[AccessToken].MaxAge)
	assert.Equal(t, 864000, got[RefreshToken].MaxAge)
	assert.True(t, got[RefreshToken].HttpOnly)
	assert.True(t, got[RefreshToken].Secure)
	assert.Equal(t, http.SameSiteNoneMode, got[RefreshToken].SameSite)

	rec = httptest.NewRecorder()
	cfg.Clear(rec)

	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 2)
	for _, c := range cleared {
		assert.Empty(t, c.Value)
		assert.Equal(t, -1, c.MaxAge)
	}
}

func TestParseSameSite(t *testing.T) {
	assert.Equal(t, http.SameSiteStrictMode, ParseSameSite("Strict"))
	assert.Equal(t, http.SameSiteNoneMode, ParseSameSite("none"))
	assert.Equal(t, http.SameSiteLaxMode, ParseSameSite(""))
}

func TestValue(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, Value(req, AccessToken))

	req.AddCookie(&http.Cookie{Name: AccessToken, Value: "tok"})
	assert.Equal(t, "tok", Value(req, AccessToken))
}
