// Package handlers implements the gateway's API routes: the auth
// lifecycle endpoints plus the generic forwarder for the domain
// surface.
package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rideloop/gateway/internal/cookies"
	"github.com/rideloop/gateway/internal/events"
	"github.com/rideloop/gateway/internal/metrics"
	"github.com/rideloop/gateway/internal/response"
	"github.com/rideloop/gateway/pkg/authclient"
	"github.com/rideloop/gateway/pkg/logging"
	"github.com/rideloop/gateway/pkg/tokens"
)

type AuthHandler struct {
	Backend *authclient.Client
	Cookies cookies.Writer
	Events  *events.Producer
}

// Login forwards credentials to the backend and, on success, turns the
// returned token pair into session cookies.
func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, response.Error("could not read request"))
	}

	res, err := h.Backend.Login(ctx, body, c.Request().Header.Get("recaptcha"))
	if err != nil {
		l.Error("backend unreachable", "error", err)
		h.Cookies.ClearSession(c)
		return c.JSON(http.StatusInternalServerError, response.Error("login temporarily unavailable"))
	}

	if !res.Success() {
		h.Cookies.ClearSession(c)
		h.Events.Publish(ctx, events.TypeLoginFailed, c.RealIP(), map[string]any{"status": res.Status})
		return c.JSON(res.Status, response.Error(res.Envelope.Messages...))
	}

	pair, err := res.TokenPair()
	if err != nil {
		l.Error("backend returned unusable tokens", "error", err)
		h.Cookies.ClearSession(c)
		return c.JSON(http.StatusUnauthorized, response.Error("invalid tokens"))
	}

	h.Cookies.SetSession(c, pair.AccessToken, pair.RefreshToken)
	h.Events.Publish(ctx, events.TypeLoginSucceeded, subjectOf(pair.AccessToken), nil)
	return c.JSONBlob(res.Status, res.Body)
}

// AuthGoogle exchanges a Google ID token for a session. The payload
// carries registration hints (email, name, needsAction) straight
// through to the browser.
func (h *AuthHandler) AuthGoogle(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.google")

	var req struct {
		IDToken string `json:"idToken"`
	}
	if err := c.Bind(&req); err != nil || req.IDToken == "" {
		return c.JSON(http.StatusBadRequest, response.Error("client token not found"))
	}

	res, err := h.Backend.AuthGoogle(ctx, req.IDToken)
	if err != nil {
		l.Error("backend unreachable", "error", err)
		h.Cookies.ClearSession(c)
		return c.JSON(http.StatusInternalServerError, response.Error("login temporarily unavailable"))
	}

	if !res.Success() {
		h.Cookies.ClearSession(c)
		return c.JSONBlob(res.Status, res.Body)
	}

	pair, err := res.TokenPair()
	if err != nil {
		h.Cookies.ClearSession(c)
		return c.JSON(http.StatusUnauthorized, response.Error("invalid tokens"))
	}

	h.Cookies.SetSession(c, pair.AccessToken, pair.RefreshToken)
	h.Events.Publish(ctx, events.TypeGoogleAuth, subjectOf(pair.AccessToken), nil)
	return c.JSONBlob(res.Status, res.Body)
}

// Refresh trades the refresh cookie for a new pair and rewrites both
// cookies. The browser-side client depends on the envelope carrying
// the new access token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.refresh")

	refreshCookie, err := c.Cookie(cookies.RefreshCookie)
	if err != nil || refreshCookie.Value == "" {
		return c.JSON(http.StatusBadRequest, response.Error("refresh token not found"))
	}

	res, err := h.Backend.Refresh(ctx, refreshCookie.Value)
	if err != nil {
		l.Error("backend unreachable", "error", err)
		metrics.RefreshAttempts.WithLabelValues("api", "failure").Inc()
		h.Cookies.ClearSession(c)
		return c.JSON(http.StatusInternalServerError, response.Error("refresh temporarily unavailable"))
	}

	if !res.Success() {
		metrics.RefreshAttempts.WithLabelValues("api", "failure").Inc()
		h.Events.Publish(ctx, events.TypeRefreshFailed, c.RealIP(), map[string]any{"status": res.Status})
		h.Cookies.ClearSession(c)
		return c.JSON(res.Status, response.Error(res.Envelope.Messages...))
	}

	pair, err := res.TokenPair()
	if err != nil {
		metrics.RefreshAttempts.WithLabelValues("api", "failure").Inc()
		h.Cookies.ClearSession(c)
		return c.JSON(http.StatusUnauthorized, response.Error("invalid tokens"))
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshCookie.Value
	}

	metrics.RefreshAttempts.WithLabelValues("api", "success").Inc()
	h.Cookies.SetSession(c, pair.AccessToken, pair.RefreshToken)
	return c.JSONBlob(res.Status, res.Body)
}

// Logout invalidates the session backend-side and clears both cookies.
// The cookies go regardless of what the backend says.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.logout")

	var accessToken, refreshToken string
	if ck, err := c.Cookie(cookies.AccessCookie); err == nil {
		accessToken = ck.Value
	}
	if ck, err := c.Cookie(cookies.RefreshCookie); err == nil {
		refreshToken = ck.Value
	}

	h.Cookies.ClearSession(c)

	if accessToken == "" {
		return c.JSON(http.StatusBadRequest, response.Error("no active session"))
	}

	res, err := h.Backend.Logout(ctx, accessToken, refreshToken)
	h.Events.Publish(ctx, events.TypeLoggedOut, subjectOf(accessToken), nil)
	if err != nil {
		l.Warn("backend logout failed, session cookies cleared anyway", "error", err)
		return c.JSON(http.StatusInternalServerError, response.Error("logout failed upstream"))
	}
	return c.JSONBlob(res.Status, res.Body)
}

// Me reports the identity encoded in the access token. The token was
// issued by the backend and arrives over an HTTP-only cookie, so its
// claims are readable here without a round trip.
func (h *AuthHandler) Me(c echo.Context) error {
	ck, err := c.Cookie(cookies.AccessCookie)
	if err != nil || ck.Value == "" {
		return c.JSON(http.StatusBadRequest, response.Error("invalid or expired token"))
	}

	claims := tokens.Decode(ck.Value)
	if claims == nil || len(claims.Authorities) == 0 {
		return c.JSON(http.StatusUnauthorized, response.Error("token has no roles"))
	}

	return c.JSON(http.StatusOK, response.OK(map[string]any{
		"username": claims.Username,
		"roles":    claims.Roles(),
	}, "user details loaded"))
}

func subjectOf(accessToken string) string {
	if claims := tokens.Decode(accessToken); claims != nil && claims.Subject != "" {
		return claims.Subject
	}
	return "unknown"
}
