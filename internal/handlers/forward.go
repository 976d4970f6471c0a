package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rideloop/gateway/internal/cookies"
	"github.com/rideloop/gateway/internal/metrics"
	"github.com/rideloop/gateway/internal/response"
	"github.com/rideloop/gateway/pkg/authclient"
	"github.com/rideloop/gateway/pkg/logging"
)

// forwardedHeaders are the request headers worth relaying; everything
// else is hop metadata the backend has no use for.
var forwardedHeaders = []string{
	"Content-Type",
	"Accept",
	"Accept-Language",
	"recaptcha",
}

// ForwardHandler relays any /api route to the backend: the access
// cookie becomes the Authorization header, the reply is normalized
// into the uniform envelope with the backend status passed through.
type ForwardHandler struct {
	Backend *authclient.Client
}

func (h *ForwardHandler) Handle(c echo.Context) error {
	req := c.Request()
	ctx := req.Context()
	route := c.Path()

	backendPath := strings.TrimPrefix(req.URL.Path, "/api")

	var accessToken string
	if ck, err := c.Cookie(cookies.AccessCookie); err == nil {
		accessToken = ck.Value
	}

	headers := http.Header{}
	for _, name := range forwardedHeaders {
		if v := req.Header.Get(name); v != "" {
			headers.Set(name, v)
		}
	}

	start := time.Now()
	res, err := h.Backend.Forward(ctx, req.Method, backendPath, req.URL.RawQuery, req.Body, headers, accessToken)
	metrics.ProxyDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())

	if err != nil {
		logging.FromContext(ctx).Error("backend forward failed",
			"route", route, "method", req.Method, "error", err)
		metrics.ProxyRequests.WithLabelValues(route, "5xx").Inc()
		return c.JSON(http.StatusInternalServerError, response.Error("service temporarily unavailable"))
	}
	metrics.ProxyRequests.WithLabelValues(route, metrics.StatusClass(res.Status)).Inc()

	if len(res.Body) == 0 {
		return c.NoContent(res.Status)
	}
	if res.Envelope.State != "" {
		// Already the uniform shape; pass it through untouched.
		return c.JSONBlob(res.Status, res.Body)
	}
	return c.JSON(res.Status, normalize(res))
}

// normalize wraps a non-envelope backend body so the browser always
// sees {data, messages, state}.
func normalize(res *authclient.Result) response.Envelope {
	var data any
	if json.Valid(res.Body) {
		data = json.RawMessage(res.Body)
	} else {
		data = string(res.Body)
	}
	if res.Success() {
		return response.OK(data)
	}
	return response.Error(http.StatusText(res.Status))
}
