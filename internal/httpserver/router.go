package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rideloop/gateway/internal/config"
	"github.com/rideloop/gateway/internal/cookies"
	"github.com/rideloop/gateway/internal/events"
	"github.com/rideloop/gateway/internal/handlers"
	"github.com/rideloop/gateway/internal/middleware"
	"github.com/rideloop/gateway/internal/middleware/loggingmw"
	"github.com/rideloop/gateway/internal/verifycache"
	"github.com/rideloop/gateway/pkg/authclient"
)

type Deps struct {
	Cfg     *config.Config
	Logger  *slog.Logger
	Backend *authclient.Client
	Events  *events.Producer
	Cache   *verifycache.Cache
}

func Register(e *echo.Echo, d *Deps) error {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	for _, m := range middleware.Common() {
		e.Use(m)
	}
	e.Use(loggingmw.RequestLogger(d.Logger))

	writer := cookies.Writer{Secure: d.Cfg.Production()}

	gk := &middleware.Gatekeeper{
		Backend:        d.Backend,
		Cookies:        writer,
		Cache:          d.Cache,
		RefreshTimeout: d.Cfg.RefreshTimeout,
	}
	e.Use(gk.Middleware())

	auth := &handlers.AuthHandler{
		Backend: d.Backend,
		Cookies: writer,
		Events:  d.Events,
	}
	forward := &handlers.ForwardHandler{Backend: d.Backend}

	api := e.Group("/api")
	api.POST("/login", auth.Login)
	api.POST("/auth-google", auth.AuthGoogle)
	api.POST("/auth/refresh", auth.Refresh)
	api.POST("/auth/logout", auth.Logout)
	api.GET("/me", auth.Me)

	// Domain surface: thin proxies, backend owns the logic.
	for _, prefix := range []string{
		"/users",
		"/password-change",
		"/trip",
		"/reservation",
		"/vehicle",
		"/drivers",
		"/license-class",
		"/city",
		"/media",
	} {
		api.Any(prefix, forward.Handle)
		api.Any(prefix+"/*", forward.Handle)
	}

	if d.Cfg.FilesURL != "" {
		filesProxy, err := newProxy(d.Cfg.FilesURL, "/files")
		if err != nil {
			return err
		}
		e.Any("/files/*", filesProxy)
	}

	return nil
}

// Timeouts applies the server-level read/write limits.
func Timeouts(e *echo.Echo) {
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
}
