// Package session is the client-side half of the auth lifecycle: an
// HTTP client that transparently refreshes an expired session once and
// replays the failed request, plus a Manager holding the hydrated
// user. Non-browser hosts (tests, server-side jobs) use it directly;
// the redirect hook stands in for the browser's navigation to /login.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned once the refresh path has been
// exhausted. Callers must not treat the request as answered.
var ErrSessionExpired = errors.New("session expired")

const defaultRefreshTimeout = 10 * time.Second

// Client wraps an *http.Client with cookie-carrying, 401-triggered
// refresh-and-retry semantics.
type Client struct {
	httpClient *http.Client
	baseURL    string

	// RedirectToLogin runs when the session is beyond recovery. In a
	// browser host it navigates to /login; the default is a no-op so
	// callers can rely on ErrSessionExpired instead.
	RedirectToLogin func()

	// RefreshTimeout bounds the coalesced refresh call so a hung
	// backend cannot stall every waiter.
	RefreshTimeout time.Duration

	refreshGroup singleflight.Group
}

// New builds a Client against the gateway origin. The cookie jar is
// the session store: the HTTP-only token cookies live there.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Client{
		httpClient:     &http.Client{Jar: jar, Timeout: 30 * time.Second},
		baseURL:        baseURL,
		RefreshTimeout: defaultRefreshTimeout,
	}, nil
}

// BaseURL returns the gateway origin this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Do issues the request; on 401 it refreshes the session (coalesced
// across concurrent callers) and replays the request exactly once with
// the new access token. A second 401 is returned as-is. Non-401
// responses, including other 4xx/5xx, pass through untouched.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusUnauthorized {
		return res, nil
	}
	res.Body.Close()

	token, err := c.Refresh(req.Context())
	if err != nil {
		if c.RedirectToLogin != nil {
			c.RedirectToLogin()
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	retry, err := replayable(req)
	if err != nil {
		return nil, err
	}
	retry.Header.Set("Authorization", "Bearer "+token)
	return c.httpClient.Do(retry)
}

// Refresh coalesces concurrent refresh attempts into one network call;
// every waiter gets the same token or the same error. A settled
// attempt is never reused: the next observed 401 starts a fresh one.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return c.performRefresh()
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) performRefresh() (string, error) {
	// The flight serves every coalesced waiter, so it must not die
	// with whichever caller happened to start it.
	timeout := c.RefreshTimeout
	if timeout <= 0 {
		timeout = defaultRefreshTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/refresh", nil)
	if err != nil {
		return "", err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("refresh failed: status %d", res.StatusCode)
	}

	var envelope struct {
		Data struct {
			AccessToken string `json:"accessToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if envelope.Data.AccessToken == "" {
		return "", errors.New("refresh returned no access token")
	}
	return envelope.Data.AccessToken, nil
}

// replayable clones the request with a fresh body. The original body
// was consumed by the first attempt, so replay requires GetBody.
func replayable(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}
