package cookies

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(t *testing.T) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func mintToken(t *testing.T, iat, exp int64) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": iat,
		"exp": exp,
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func cookieByName(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()

	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestSetSession_AccessMaxAgeFromClaims(t *testing.T) {
	t.Parallel()

	c, rec := newContext(t)
	Writer{}.SetSession(c, mintToken(t, 1000, 8200), "refresh-token")

	access := cookieByName(t, rec, AccessCookie)
	assert.Equal(t, 7200, access.MaxAge)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.False(t, access.Secure)

	refresh := cookieByName(t, rec, RefreshCookie)
	assert.Equal(t, 604800, refresh.MaxAge)
	assert.True(t, refresh.HttpOnly)
}

func TestSetSession_AccessMaxAgeFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token string
	}{
		{name: "exp equals iat", token: mintToken(t, 1000, 1000)},
		{name: "exp before iat", token: mintToken(t, 2000, 1000)},
		{name: "unreadable claims", token: "garbage"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, rec := newContext(t)
			Writer{}.SetSession(c, tt.token, "")

			access := cookieByName(t, rec, AccessCookie)
			assert.Equal(t, 7200, access.MaxAge)
		})
	}
}

func TestSetSession_EmptyRefreshLeavesCookieAlone(t *testing.T) {
	t.Parallel()

	c, rec := newContext(t)
	Writer{}.SetSession(c, mintToken(t, 1000, 8200), "")

	for _, ck := range rec.Result().Cookies() {
		assert.NotEqual(t, RefreshCookie, ck.Name)
	}
}

func TestSetSession_SecureInProduction(t *testing.T) {
	t.Parallel()

	c, rec := newContext(t)
	Writer{Secure: true}.SetSession(c, mintToken(t, 1000, 8200), "r")

	assert.True(t, cookieByName(t, rec, AccessCookie).Secure)
	assert.True(t, cookieByName(t, rec, RefreshCookie).Secure)
}

func TestClearSession(t *testing.T) {
	t.Parallel()

	c, rec := newContext(t)
	Writer{}.ClearSession(c)

	for _, name := range []string{AccessCookie, RefreshCookie} {
		ck := cookieByName(t, rec, name)
		assert.Empty(t, ck.Value)
		assert.Equal(t, -1, ck.MaxAge)
		assert.True(t, ck.HttpOnly)
	}
}
