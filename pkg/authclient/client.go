// Package authclient talks to the backend platform service. The
// gateway treats that service as opaque: trip matching, pricing and
// reservation state all live there, this client only moves requests
// and tokens across.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrRefreshRejected = errors.New("refresh rejected by backend")

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(backendURL string) *Client {
	return &Client{
		baseURL: backendURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Envelope mirrors the backend's uniform response shape.
type Envelope struct {
	Data     json.RawMessage `json:"data"`
	Messages []string        `json:"messages"`
	State    string          `json:"state"`
}

// Result is a backend reply: the passthrough status, the raw body for
// routes that forward it verbatim, and the decoded envelope.
type Result struct {
	Status   int
	Body     []byte
	Envelope Envelope
}

func (r *Result) Success() bool {
	return r.Status >= 200 && r.Status < 300
}

// TokenPair extracts the token pair from the envelope data.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (r *Result) TokenPair() (*TokenPair, error) {
	var pair TokenPair
	if err := json.Unmarshal(r.Envelope.Data, &pair); err != nil {
		return nil, fmt.Errorf("decode token pair: %w", err)
	}
	if pair.AccessToken == "" {
		return nil, errors.New("no access token in response")
	}
	return &pair, nil
}

// Login forwards the raw credentials body. The optional recaptcha
// header passes through untouched.
func (c *Client) Login(ctx context.Context, body []byte, recaptcha string) (*Result, error) {
	headers := http.Header{"Content-Type": []string{"application/json"}}
	if recaptcha != "" {
		headers.Set("recaptcha", recaptcha)
	}
	return c.do(ctx, http.MethodPost, "/login", bytes.NewReader(body), headers)
}

// AuthGoogle exchanges a Google ID token for a session.
func (c *Client) AuthGoogle(ctx context.Context, idToken string) (*Result, error) {
	body, err := json.Marshal(map[string]string{"idToken": idToken})
	if err != nil {
		return nil, err
	}
	headers := http.Header{"Content-Type": []string{"application/json"}}
	return c.do(ctx, http.MethodPost, "/auth-google", bytes.NewReader(body), headers)
}

// Refresh trades the refresh token for a new pair. The raw Result is
// returned so the refresh route can pass backend status and messages
// through to the browser.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Result, error) {
	headers := http.Header{
		"Authorization": []string{"Bearer " + refreshToken},
		"Content-Type":  []string{"application/json"},
	}
	return c.do(ctx, http.MethodPost, "/auth/refresh", nil, headers)
}

// RefreshTokens is the edge-middleware entry point: one call, one
// usable pair or an error. When the backend rotates only the access
// token, the old refresh token is retained.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	res, err := c.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("%w: status %d", ErrRefreshRejected, res.Status)
	}
	pair, err := res.TokenPair()
	if err != nil {
		return nil, err
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}

// VerifyToken asks the backend whether the access token's signature is
// still valid. Any transport problem counts as invalid.
func (c *Client) VerifyToken(ctx context.Context, accessToken string) bool {
	headers := http.Header{"Authorization": []string{"Bearer " + accessToken}}
	res, err := c.do(ctx, http.MethodGet, "/auth/verify-token", nil, headers)
	if err != nil || !res.Success() {
		return false
	}
	return res.Envelope.State == "OK"
}

// Logout invalidates the session server-side.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) (*Result, error) {
	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, err
	}
	headers := http.Header{
		"Authorization": []string{"Bearer " + accessToken},
		"Content-Type":  []string{"application/json"},
	}
	return c.do(ctx, http.MethodPost, "/auth/logout", bytes.NewReader(body), headers)
}

// Forward relays an arbitrary API request. The access token, when
// present, becomes the Authorization header.
func (c *Client) Forward(ctx context.Context, method, path, query string, body io.Reader, headers http.Header, accessToken string) (*Result, error) {
	if query != "" {
		path += "?" + query
	}
	if accessToken != "" {
		if headers == nil {
			headers = http.Header{}
		}
		headers.Set("Authorization", "Bearer "+accessToken)
	}
	return c.do(ctx, method, path, body, headers)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, headers http.Header) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	res := &Result{Status: resp.StatusCode, Body: raw}
	// Backend error bodies are not always envelopes; keep the raw
	// bytes either way.
	_ = json.Unmarshal(raw, &res.Envelope)
	return res, nil
}
