// Package middleware holds the gateway's echo middlewares, chief among
// them the navigation gatekeeper.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rideloop/gateway/internal/cookies"
	"github.com/rideloop/gateway/internal/metrics"
	"github.com/rideloop/gateway/internal/verifycache"
	"github.com/rideloop/gateway/pkg/authclient"
	"github.com/rideloop/gateway/pkg/logging"
	"github.com/rideloop/gateway/pkg/tokens"
)

const (
	CtxUsername = "username"
	CtxRoles    = "roles"
)

// PublicPages are reachable without a session. "/" matches exactly,
// everything else by prefix.
var PublicPages = []string{
	"/",
	"/login",
	"/register",
	"/email-verify",
	"/email-verified",
	"/send-change-password-email",
	"/password-change",
	"/complete-profile",
	"/unlock-account",
}

// bypassPrefixes skip the gatekeeper entirely: the API layer manages
// its own auth, the rest is public assets and operational surface.
var bypassPrefixes = []string{
	"/api",
	"/files",
	"/metrics",
	"/health",
	"/favicon.ico",
	"/icons",
	"/manifest.webmanifest",
}

// Gatekeeper decides, per page navigation, between allow, server-side
// refresh-and-continue, and redirect to /login. It never errors past
// its boundary: every path ends in one of those three outcomes.
type Gatekeeper struct {
	Backend *authclient.Client
	Cookies cookies.Writer

	// Cache short-circuits the remote verify call. Nil disables
	// caching, not verification.
	Cache *verifycache.Cache

	// RefreshTimeout bounds the server-side refresh call.
	RefreshTimeout time.Duration
}

func (g *Gatekeeper) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path

			if bypassed(path) {
				return next(c)
			}
			if publicPage(path) {
				metrics.GatekeeperDecisions.WithLabelValues("public").Inc()
				return next(c)
			}

			accessCookie, err := c.Cookie(cookies.AccessCookie)
			if err != nil || accessCookie.Value == "" {
				return g.redirectToLogin(c, "missing access token")
			}
			accessToken := accessCookie.Value

			claims := tokens.Decode(accessToken)
			if claims == nil {
				g.Cookies.ClearSession(c)
				return g.redirectToLogin(c, "malformed access token")
			}

			if tokens.IsExpired(accessToken) {
				return g.refreshAndContinue(c, next)
			}

			// Unexpired but possibly forged or revoked: the backend
			// holds the signing key, so validity is its call.
			ctx := c.Request().Context()
			if !g.Cache.Seen(ctx, accessToken) {
				if !g.Backend.VerifyToken(ctx, accessToken) {
					g.Cookies.ClearSession(c)
					return g.redirectToLogin(c, "token rejected by backend")
				}
				g.Cache.Store(ctx, accessToken)
			}

			setUserContext(c, claims)
			metrics.GatekeeperDecisions.WithLabelValues("allow").Inc()
			return next(c)
		}
	}
}

func (g *Gatekeeper) refreshAndContinue(c echo.Context, next echo.HandlerFunc) error {
	refreshCookie, err := c.Cookie(cookies.RefreshCookie)
	if err != nil || refreshCookie.Value == "" {
		g.Cookies.ClearSession(c)
		return g.redirectToLogin(c, "expired with no refresh token")
	}

	timeout := g.RefreshTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	pair, err := g.Backend.RefreshTokens(ctx, refreshCookie.Value)
	if err != nil {
		metrics.RefreshAttempts.WithLabelValues("edge", "failure").Inc()
		g.Cookies.ClearSession(c)
		return g.redirectToLogin(c, "refresh failed")
	}
	metrics.RefreshAttempts.WithLabelValues("edge", "success").Inc()

	newClaims := tokens.Decode(pair.AccessToken)
	if newClaims == nil {
		g.Cookies.ClearSession(c)
		return g.redirectToLogin(c, "refreshed token unreadable")
	}

	g.Cookies.SetSession(c, pair.AccessToken, pair.RefreshToken)
	setUserContext(c, newClaims)

	metrics.GatekeeperDecisions.WithLabelValues("refreshed").Inc()
	return next(c)
}

func (g *Gatekeeper) redirectToLogin(c echo.Context, reason string) error {
	logging.FromContext(c.Request().Context()).Info("navigation denied",
		"path", c.Request().URL.Path, "reason", reason)
	metrics.GatekeeperDecisions.WithLabelValues("redirect").Inc()
	return c.Redirect(http.StatusTemporaryRedirect, "/login")
}

func setUserContext(c echo.Context, claims *tokens.Claims) {
	c.Set(CtxUsername, claims.Username)
	c.Set(CtxRoles, claims.Roles())
}

func bypassed(path string) bool {
	for _, p := range bypassPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func publicPage(path string) bool {
	for _, p := range PublicPages {
		if p == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
