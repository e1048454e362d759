package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/andrewchw/jira-action-items-chatbot/internal/config"
	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	payload   json.RawMessage
	expiresAt time.Time
}

func newMemStore() *memStore { return &memStore{entries: map[string]memEntry{}} }

func (s *memStore) GetAPICache(_ context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || time.Now().After(e.expiresAt) { return nil, false, nil }
	return e.payload, true, nil
}

func (s *memStore) PutAPICache(_ context.Context, key string, payload json.RawMessage, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{payload: payload, expiresAt: time.Now().Add(ttl)}
	return nil
}

type memTokens struct {
	toks map[string]domain.Token
}

func (s *memTokens) Token(_ context.Context, userID string) (domain.Token, bool, error) {
	tok, ok := s.toks[userID]
	return tok, ok, nil
}

func testConfig(baseURL, mode string) config.Config {
	return config.Config{
		JiraBaseURL:    baseURL,
		JiraDeployMode: mode,
		JiraUsername:   "svc",
		JiraAPIToken:   "secret",
		CacheTTL:       15 * time.Minute,
		HTTPTimeout:    5 * time.Second,
		RetryMax:       2,
		RetryBase:      time.Millisecond,
	}
}

func newTestClient(srv *httptest.Server, mode string, tokens TokenSource) (*Client, *memStore) {
	store := newMemStore()
	c := NewClient(testConfig(srv.URL, mode), tokens, store, zerolog.Nop())
	return c, store
}

func TestGetIsCachedWithinTTL(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_ = json.NewEncoder(w).Encode(map[string]any{"key": "PROJ-1"})
	}))
	defer srv.Close()

	c, _ := newTestClient(srv, "server", nil)
	ctx := context.Background()

	first, err := c.Issue(ctx, "", "PROJ-1", nil)
	require.NoError(t, err)
	second, err := c.Issue(ctx, "", "PROJ-1", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, hits, "identical GETs within the TTL share one network call")
	assert.Equal(t, first, second)
}

func TestDifferentParamsMissCache(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_ = json.NewEncoder(w).Encode(map[string]any{"issues": []any{}})
	}))
	defer srv.Close()

	c, _ := newTestClient(srv, "server", nil)
	ctx := context.Background()

	_, err := c.SearchIssues(ctx, "", `project = A`, nil, 0, 10)
	require.NoError(t, err)
	_, err = c.SearchIssues(ctx, "", `project = B`, nil, 0, 10)
	require.NoError(t, err)

	assert.Equal(t, 2, hits)
}

func TestRetryBoundOnTransientFailure(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv, "server", nil)
	_, err := c.Issue(context.Background(), "", "PROJ-1", nil)

	var tErr *domain.TransientNetworkError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, 3, hits, "RetryMax=2 means one initial attempt plus two retries")
}

func TestClientErrorNotRetried(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorMessages":["Field 'priority' is required"]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv, "server", nil)
	_, err := c.Issue(context.Background(), "", "PROJ-1", nil)

	var rErr *domain.RemoteAPIError
	require.ErrorAs(t, err, &rErr)
	assert.Equal(t, 1, hits)
	assert.Equal(t, http.StatusBadRequest, rErr.StatusCode)
	assert.Equal(t, "Field 'priority' is required", rErr.Message)
}

func TestUnauthorizedIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv, "server", nil)
	_, err := c.Myself(context.Background(), "")

	var aErr *domain.AuthError
	assert.ErrorAs(t, err, &aErr)
}

// A write without an idempotency key fails fast on a transient error instead
// of replaying a possibly-landed mutation.
func TestBareWriteNotRetried(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv, "server", nil)
	_, err := c.Request(context.Background(), ReqSpec{
		Method:   "POST",
		Endpoint: "/rest/api/2/issue",
		Body:     map[string]any{"fields": map[string]any{}},
	})
	require.Error(t, err)
	assert.Equal(t, 1, hits)
}

func TestIdempotentWriteIsRetried(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))
		_ = json.NewEncoder(w).Encode(map[string]any{"key": "PROJ-2"})
	}))
	defer srv.Close()

	c, _ := newTestClient(srv, "server", nil)
	out, err := c.CreateIssue(context.Background(), "", map[string]any{"summary": "x"})
	require.NoError(t, err)
	assert.Equal(t, "PROJ-2", out["key"])
	assert.Equal(t, 2, hits)
}

func TestBearerPreferredOverBasic(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "deencat"})
	}))
	defer srv.Close()

	tokens := &memTokens{toks: map[string]domain.Token{
		"u1": {UserID: "u1", Access: "live-token", ExpiresAt: time.Now().Add(time.Hour)},
		"u2": {UserID: "u2", Access: "stale-token", ExpiresAt: time.Now().Add(-time.Hour)},
	}}
	c, _ := newTestClient(srv, "server", tokens)
	ctx := context.Background()

	_, err := c.Myself(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer live-token", got)

	// Expired token falls back to the shared basic pair.
	_, err = c.Myself(ctx, "u2")
	require.NoError(t, err)
	assert.Contains(t, got, "Basic ")
}

func TestParseErrorBody(t *testing.T) {
	assert.Equal(t, "boom", parseErrorBody(400, []byte(`{"errorMessages":["boom","second"]}`)))
	assert.Equal(t, "assignee: invalid, priority: unknown",
		parseErrorBody(400, []byte(`{"errors":{"priority":"unknown","assignee":"invalid"}}`)))
	assert.Equal(t, "HTTP error 503", parseErrorBody(503, []byte("not json")))
	assert.Equal(t, "HTTP error 500", parseErrorBody(500, nil))
}

func TestRequestKeyStable(t *testing.T) {
	a := url.Values{}
	a.Set("jql", "project = A")
	a.Set("maxResults", "10")
	b := url.Values{}
	b.Set("maxResults", "10")
	b.Set("jql", "project = A")

	assert.Equal(t, requestKey("GET", "/x", a, nil), requestKey("GET", "/x", b, nil))
	assert.NotEqual(t, requestKey("GET", "/x", a, nil), requestKey("GET", "/y", a, nil))
}

func TestCloudVsServerAPIPath(t *testing.T) {
	cloud := &Client{mode: domain.ModeCloud}
	server := &Client{mode: domain.ModeServer}
	assert.Equal(t, "/rest/api/3/issue/K-1", cloud.apiPath("/issue/K-1"))
	assert.Equal(t, "/rest/api/2/issue/K-1", server.apiPath("/issue/K-1"))
}
