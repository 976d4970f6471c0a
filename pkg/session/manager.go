package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// User is the identity the UI renders against.
type User struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// Credentials for password login.
type Credentials struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	RecaptchaToken string `json:"-"`
}

// Manager holds the hydrated session user and drives the auth
// operations against the gateway. FetchUser hydrates once; Login,
// AuthGoogle and Logout invalidate or rebuild that state.
type Manager struct {
	client *Client

	mu       sync.Mutex
	user     *User
	hydrated bool
}

func NewManager(client *Client) *Manager {
	return &Manager{client: client}
}

// CurrentUser returns the hydrated user without touching the network.
func (m *Manager) CurrentUser() *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// FetchUser returns the session user, hydrating from GET /api/me on
// first use. Repeat calls reuse the hydration until it is invalidated;
// the lock doubles as the one-shot latch so concurrent callers cannot
// hydrate twice.
func (m *Manager) FetchUser(ctx context.Context) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hydrated && m.user != nil {
		u := *m.user
		return &u, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.client.BaseURL()+"/api/me", nil)
	if err != nil {
		return nil, err
	}

	res, err := m.client.Do(req)
	if err != nil {
		m.resetLocked()
		return nil, err
	}
	defer res.Body.Close()

	var envelope struct {
		Data     *User    `json:"data"`
		Messages []string `json:"messages"`
		State    string   `json:"state"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		m.resetLocked()
		return nil, fmt.Errorf("decode me response: %w", err)
	}
	if res.StatusCode != http.StatusOK || envelope.Data == nil {
		m.resetLocked()
		return nil, fmt.Errorf("fetch user failed: %s", messagesOr(envelope.Messages, res.Status))
	}

	m.user = envelope.Data
	m.hydrated = true
	u := *m.user
	return &u, nil
}

// Login authenticates with credentials and re-hydrates the session.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*User, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, err
	}

	headers := http.Header{"Content-Type": []string{"application/json"}}
	if creds.RecaptchaToken != "" {
		headers.Set("recaptcha", creds.RecaptchaToken)
	}
	if err := m.post(ctx, "/api/login", body, headers); err != nil {
		m.reset()
		return nil, err
	}

	m.invalidate()
	return m.FetchUser(ctx)
}

// AuthGoogle authenticates with a Google ID token and re-hydrates.
func (m *Manager) AuthGoogle(ctx context.Context, idToken string) (*User, error) {
	body, err := json.Marshal(map[string]string{"idToken": idToken})
	if err != nil {
		return nil, err
	}

	headers := http.Header{"Content-Type": []string{"application/json"}}
	if err := m.post(ctx, "/api/auth-google", body, headers); err != nil {
		m.reset()
		return nil, err
	}

	m.invalidate()
	return m.FetchUser(ctx)
}

// Logout ends the session. Local state is cleared and the redirect
// hook fires no matter what the backend says: a failed invalidation
// call must never leave the UI looking authenticated. The backend
// error, if any, is returned for observability only.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.post(ctx, "/api/auth/logout", nil, nil)

	m.reset()
	if m.client.RedirectToLogin != nil {
		m.client.RedirectToLogin()
	}
	if err != nil {
		return fmt.Errorf("backend logout: %w", err)
	}
	return nil
}

func (m *Manager) post(ctx context.Context, path string, body []byte, headers http.Header) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.client.BaseURL()+path, reader)
	if err != nil {
		return err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	res, err := m.client.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	var envelope struct {
		Messages []string `json:"messages"`
		State    string   `json:"state"`
	}
	_ = json.NewDecoder(res.Body).Decode(&envelope)

	if res.StatusCode < 200 || res.StatusCode >= 300 || envelope.State == "ERROR" {
		return fmt.Errorf("%s: %s", path, messagesOr(envelope.Messages, res.Status))
	}
	return nil
}

func (m *Manager) invalidate() {
	m.mu.Lock()
	m.hydrated = false
	m.mu.Unlock()
}

func (m *Manager) reset() {
	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()
}

func (m *Manager) resetLocked() {
	m.user = nil
	m.hydrated = false
}

func messagesOr(messages []string, fallback string) string {
	if len(messages) == 0 {
		return fallback
	}
	return strings.Join(messages, "; ")
}
