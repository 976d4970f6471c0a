// Package cookies owns the session cookie pair.
package cookies

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rideloop/gateway/pkg/tokens"
)

const (
	AccessCookie  = "token"
	RefreshCookie = "refreshToken"

	// defaultAccessMaxAge covers tokens whose claims are missing or
	// nonsensical (exp <= iat).
	defaultAccessMaxAge = 2 * 60 * 60
	refreshMaxAge       = 7 * 24 * 60 * 60
)

// Writer attaches the session cookie pair to outgoing responses.
// Secure is set in production only so local development over plain
// HTTP keeps working.
type Writer struct {
	Secure bool
}

// SetSession writes both cookies. The access cookie lives exactly as
// long as the token itself (exp - iat); the refresh cookie has a flat
// 7-day policy regardless of its own claims. An empty refresh token
// leaves the existing refresh cookie untouched.
func (w Writer) SetSession(c echo.Context, accessToken, refreshToken string) {
	c.SetCookie(w.newCookie(AccessCookie, accessToken, accessMaxAge(accessToken)))
	if refreshToken != "" {
		c.SetCookie(w.newCookie(RefreshCookie, refreshToken, refreshMaxAge))
	}
}

// ClearSession deletes both cookies. Used on logout and on every
// irrecoverable auth failure.
func (w Writer) ClearSession(c echo.Context) {
	c.SetCookie(w.deleteCookie(AccessCookie))
	c.SetCookie(w.deleteCookie(RefreshCookie))
}

func (w Writer) newCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   w.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (w Writer) deleteCookie(name string) *http.Cookie {
	c := w.newCookie(name, "", -1)
	return c
}

func accessMaxAge(accessToken string) int {
	claims := tokens.Decode(accessToken)
	if claims == nil || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return defaultAccessMaxAge
	}
	age := claims.ExpiresAt.Unix() - claims.IssuedAt.Unix()
	if age <= 0 {
		return defaultAccessMaxAge
	}
	return int(age)
}
