package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatewayStub simulates the gateway: a refresh endpoint plus an API
// endpoint with scriptable status sequences.
type gatewayStub struct {
	t *testing.T

	refreshCalls  atomic.Int64
	refreshStatus int
	refreshDelay  time.Duration
	refreshToken  string

	apiCalls    atomic.Int64
	apiStatuses []int
}

func (g *gatewayStub) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		g.refreshCalls.Add(1)
		if g.refreshDelay > 0 {
			time.Sleep(g.refreshDelay)
		}
		if g.refreshStatus != http.StatusOK {
			w.WriteHeader(g.refreshStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data":     map[string]string{"accessToken": g.refreshToken},
			"messages": []string{},
			"state":    "OK",
		})
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		n := int(g.apiCalls.Add(1))
		status := http.StatusOK
		if n <= len(g.apiStatuses) {
			status = g.apiStatuses[n-1]
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			w.Write([]byte(`{"data":"ok","messages":[],"state":"OK"}`))
		}
	})
	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	c, err := New(srv.URL)
	require.NoError(t, err)
	return c
}

func TestRefresh_CoalescesConcurrentCallers(t *testing.T) {
	t.Parallel()

	stub := &gatewayStub{t: t, refreshStatus: http.StatusOK, refreshToken: "fresh", refreshDelay: 50 * time.Millisecond}
	srv := stub.server()
	defer srv.Close()

	client := newTestClient(t, srv)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = client.Refresh(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), stub.refreshCalls.Load(), "exactly one refresh network call")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "fresh", results[i])
	}
}

func TestRefresh_FailureSharedByAllCallers(t *testing.T) {
	t.Parallel()

	stub := &gatewayStub{t: t, refreshStatus: http.StatusForbidden, refreshDelay: 50 * time.Millisecond}
	srv := stub.server()
	defer srv.Close()

	client := newTestClient(t, srv)

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = client.Refresh(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), stub.refreshCalls.Load())
	for _, err := range errs {
		require.Error(t, err)
	}
}

func TestRefresh_SettledAttemptIsNotReused(t *testing.T) {
	t.Parallel()

	stub := &gatewayStub{t: t, refreshStatus: http.StatusOK, refreshToken: "fresh"}
	srv := stub.server()
	defer srv.Close()

	client := newTestClient(t, srv)

	_, err := client.Refresh(context.Background())
	require.NoError(t, err)
	_, err = client.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), stub.refreshCalls.Load(), "each settled refresh starts a new attempt")
}

func TestDo_RetriesOnceAfterRefresh(t *testing.T) {
	t.Parallel()

	stub := &gatewayStub{
		t:             t,
		refreshStatus: http.StatusOK,
		refreshToken:  "fresh",
		apiStatuses:   []int{http.StatusUnauthorized, http.StatusOK},
	}
	srv := stub.server()
	defer srv.Close()

	client := newTestClient(t, srv)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/trip/feed", nil)
	require.NoError(t, err)

	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int64(2), stub.apiCalls.Load(), "original + exactly one retry")
	assert.Equal(t, int64(1), stub.refreshCalls.Load())
}

func TestDo_RetryCarriesNewTokenAndBody(t *testing.T) {
	t.Parallel()

	var authHeaders []string
	var bodies []string
	var calls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"accessToken": "fresh"}, "state": "OK"})
	})
	mux.HandleFunc("/api/reservation", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"data":null,"messages":[],"state":"OK"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv)

	payload := `{"tripId":7,"seats":2}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/reservation", bytes.NewReader([]byte(payload)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Len(t, bodies, 2)
	assert.Equal(t, payload, bodies[0])
	assert.Equal(t, payload, bodies[1], "retry replays the original body")
	assert.Equal(t, "Bearer fresh", authHeaders[1])
	assert.Equal(t, "application/json", res.Request.Header.Get("Content-Type"))
}

func TestDo_SecondUnauthorizedIsReturnedAsIs(t *testing.T) {
	t.Parallel()

	stub := &gatewayStub{
		t:             t,
		refreshStatus: http.StatusOK,
		refreshToken:  "fresh",
		apiStatuses:   []int{http.StatusUnauthorized, http.StatusUnauthorized},
	}
	srv := stub.server()
	defer srv.Close()

	client := newTestClient(t, srv)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/trip/feed", nil)
	require.NoError(t, err)

	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, int64(2), stub.apiCalls.Load(), "no retry loop")
	assert.Equal(t, int64(1), stub.refreshCalls.Load(), "no second refresh")
}

func TestDo_NonAuthErrorsPassThrough(t *testing.T) {
	t.Parallel()

	stub := &gatewayStub{
		t:           t,
		apiStatuses: []int{http.StatusUnprocessableEntity},
	}
	srv := stub.server()
	defer srv.Close()

	client := newTestClient(t, srv)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/trip/feed", nil)
	require.NoError(t, err)

	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, int64(0), stub.refreshCalls.Load(), "non-401 never triggers refresh")
}

func TestDo_RefreshFailureRedirectsAndErrors(t *testing.T) {
	t.Parallel()

	stub := &gatewayStub{
		t:             t,
		refreshStatus: http.StatusForbidden,
		apiStatuses:   []int{http.StatusUnauthorized},
	}
	srv := stub.server()
	defer srv.Close()

	client := newTestClient(t, srv)
	var redirected atomic.Bool
	client.RedirectToLogin = func() { redirected.Store(true) }

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/trip/feed", nil)
	require.NoError(t, err)

	res, err := client.Do(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Nil(t, res, "caller must never see a value mimicking success")
	assert.True(t, redirected.Load())
}
