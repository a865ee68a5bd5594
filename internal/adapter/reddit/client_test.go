package reddit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showpulse/showpulse/internal/config"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
	})
	mux.HandleFunc("/", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.Config{
		AppEnv:             "test",
		RedditClientID:     "client-id",
		RedditClientSecret: "client-secret",
		RedditUserAgent:    "showpulse/1.0",
		RedditBaseURL:      srv.URL,
		RedditAuthURL:      srv.URL + "/api/v1/access_token",
		RedditMinInterval:  0,
	}
	return New(cfg, nil), srv
}

func listingJSON(posts ...map[string]any) []byte {
	children := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		children = append(children, map[string]any{"data": p})
	}
	b, _ := json.Marshal(map[string]any{"data": map[string]any{"children": children}})
	return b
}

func TestSearch(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/television/search", r.URL.Path)
		assert.Equal(t, "Breaking Bad finale", r.URL.Query().Get("q"))
		assert.Equal(t, "1", r.URL.Query().Get("restrict_sr"))
		assert.Equal(t, "top", r.URL.Query().Get("sort"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "showpulse/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write(listingJSON(map[string]any{
			"id": "abc123", "title": "Breaking Bad finale discussion",
			"selftext": "wow", "score": 4200, "upvote_ratio": 0.97,
			"num_comments": 1800, "subreddit": "television",
			"author": "someuser", "url": "https://reddit.com/x",
			"created_utc": 1380000000.0,
		}))
	})

	posts, err := c.Search(context.Background(), "television", "Breaking Bad finale", 25)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "abc123", posts[0].ID)
	assert.Equal(t, 4200, posts[0].Score)
	assert.InDelta(t, 0.97, posts[0].UpvoteRatio, 1e-9)
	assert.Equal(t, time.Unix(1380000000, 0).UTC(), posts[0].CreatedUTC)
}

func TestSearch_DeletedAuthor(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(listingJSON(map[string]any{"id": "x1", "title": "t", "created_utc": 0.0}))
	})
	posts, err := c.Search(context.Background(), "television", "q", 25)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "[deleted]", posts[0].Author)
}

func TestSearch_RetriesOn429(t *testing.T) {
	calls := 0
	c, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write(listingJSON())
	})
	_, err := c.Search(context.Background(), "television", "q", 25)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSearch_PermanentOn403(t *testing.T) {
	calls := 0
	c, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := c.Search(context.Background(), "banned", "q", 25)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSubscribers(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/breakingbad/about", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"subscribers": 120000}})
	})
	n, err := c.Subscribers(context.Background(), "breakingbad")
	require.NoError(t, err)
	assert.Equal(t, 120000, n)
}

func TestAccessToken_MissingCredentials(t *testing.T) {
	c := New(config.Config{AppEnv: "test"}, nil)
	_, err := c.Search(context.Background(), "television", "q", 25)
	require.Error(t, err)
}

func TestAccessToken_CachedAcrossCalls(t *testing.T) {
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, _ *http.Request) {
		tokenCalls++
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(listingJSON())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(config.Config{
		AppEnv:             "test",
		RedditClientID:     "id",
		RedditClientSecret: "secret",
		RedditBaseURL:      srv.URL,
		RedditAuthURL:      srv.URL + "/api/v1/access_token",
	}, nil)

	for i := 0; i < 3; i++ {
		_, err := c.Search(context.Background(), "television", "q", 25)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tokenCalls)
}
