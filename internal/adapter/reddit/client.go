// Package reddit implements a minimal OAuth2 client for the Reddit data
// API, covering subreddit search and subreddit metadata.
package reddit

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/showpulse/showpulse/internal/adapter/observability"
	"github.com/showpulse/showpulse/internal/config"
	"github.com/showpulse/showpulse/internal/domain"
	"github.com/showpulse/showpulse/internal/service/ratelimiter"
)

// Post is one search result from the listing endpoint.
type Post struct {
	ID          string
	Title       string
	SelfText    string
	Score       int
	UpvoteRatio float64
	NumComments int
	Subreddit   string
	Author      string
	URL         string
	CreatedUTC  time.Time
}

// Client talks to oauth.reddit.com with an app-only token. All calls go
// through the shared limiter plus a fixed minimum interval, matching
// Reddit's guidance for script apps.
type Client struct {
	cfg     config.Config
	hc      *http.Client
	limiter *ratelimiter.RedisLuaLimiter

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	lastRequest time.Time
}

// LimiterKey is the bucket key for Reddit API calls.
const LimiterKey = "reddit"

// New constructs a Client. limiter may be nil; pacing then falls back to
// the configured minimum interval alone.
func New(cfg config.Config, limiter *ratelimiter.RedisLuaLimiter) *Client {
	return &Client{
		cfg:     cfg,
		hc:      &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
	}
}

func (c *Client) getBackoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := c.cfg.GetBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return expo
}

// pace blocks until the next request is allowed: a token from the shared
// bucket plus the fixed inter-request delay.
func (c *Client) pace(ctx domain.Context) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, LimiterKey); err != nil {
			return err
		}
	}
	c.mu.Lock()
	wait := c.cfg.RedditMinInterval - time.Since(c.lastRequest)
	c.lastRequest = time.Now().Add(wait)
	c.mu.Unlock()
	if wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}

// accessToken returns a cached app-only token, fetching a fresh one via
// the client_credentials grant when missing or near expiry.
func (c *Client) accessToken(ctx domain.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Until(c.tokenExpiry) > time.Minute {
		tok := c.token
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	if !c.cfg.RedditEnabled() {
		return "", fmt.Errorf("%w: reddit credentials missing", domain.ErrInvalidArgument)
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RedditAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("op=reddit.token: %w", err)
	}
	req.SetBasicAuth(c.cfg.RedditClientID, c.cfg.RedditClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.RedditUserAgent)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("op=reddit.token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("op=reddit.token status=%d: %w", resp.StatusCode, domain.ErrInternal)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("op=reddit.token_decode: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("op=reddit.token: empty token: %w", domain.ErrInternal)
	}

	c.mu.Lock()
	c.token = out.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	c.mu.Unlock()
	return out.AccessToken, nil
}

// get performs an authenticated GET against the data API with retries.
// 429 and 5xx retry; other 4xx are permanent.
func (c *Client) get(ctx domain.Context, path string, query url.Values, operation string) ([]byte, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	var body []byte
	op := func() error {
		tok, err := c.accessToken(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		u := c.cfg.RedditBaseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("User-Agent", c.cfg.RedditUserAgent)

		start := time.Now()
		resp, err := c.hc.Do(req)
		observability.UpstreamRequestsTotal.WithLabelValues("reddit", operation).Inc()
		observability.UpstreamRequestDuration.WithLabelValues("reddit", operation).Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			slog.Warn("reddit rate limited", slog.String("path", path))
			return fmt.Errorf("reddit status 429")
		case resp.StatusCode == http.StatusUnauthorized:
			// Token may have been revoked; drop it so the retry re-authenticates.
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
			return fmt.Errorf("reddit status 401")
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(fmt.Errorf("reddit status %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("reddit status %d", resp.StatusCode)
		}
		body = b
		return nil
	}

	bo := backoff.WithContext(c.getBackoffConfig(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("op=reddit.get path=%s: %w", path, err)
	}
	return body, nil
}

type listingEnvelope struct {
	Data struct {
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Title       string  `json:"title"`
				SelfText    string  `json:"selftext"`
				Score       int     `json:"score"`
				UpvoteRatio float64 `json:"upvote_ratio"`
				NumComments int     `json:"num_comments"`
				Subreddit   string  `json:"subreddit"`
				Author      string  `json:"author"`
				URL         string  `json:"url"`
				CreatedUTC  float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Search runs a restricted search in one subreddit, top posts of all time.
func (c *Client) Search(ctx domain.Context, subreddit, query string, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 25
	}
	q := url.Values{
		"q":           {query},
		"restrict_sr": {"1"},
		"sort":        {"top"},
		"t":           {"all"},
		"limit":       {fmt.Sprintf("%d", limit)},
		"raw_json":    {"1"},
	}
	body, err := c.get(ctx, "/r/"+subreddit+"/search", q, "search")
	if err != nil {
		return nil, err
	}
	var env listingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("op=reddit.search_decode: %w", err)
	}
	posts := make([]Post, 0, len(env.Data.Children))
	for _, ch := range env.Data.Children {
		d := ch.Data
		author := d.Author
		if author == "" {
			author = "[deleted]"
		}
		posts = append(posts, Post{
			ID:          d.ID,
			Title:       d.Title,
			SelfText:    d.SelfText,
			Score:       d.Score,
			UpvoteRatio: d.UpvoteRatio,
			NumComments: d.NumComments,
			Subreddit:   d.Subreddit,
			Author:      author,
			URL:         d.URL,
			CreatedUTC:  time.Unix(int64(d.CreatedUTC), 0).UTC(),
		})
	}
	return posts, nil
}

// Subscribers returns a subreddit's subscriber count, or ErrNotFound for
// subreddits that do not exist or are private.
func (c *Client) Subscribers(ctx domain.Context, subreddit string) (int, error) {
	body, err := c.get(ctx, "/r/"+subreddit+"/about", url.Values{"raw_json": {"1"}}, "about")
	if err != nil {
		return 0, fmt.Errorf("%w: subreddit %s", domain.ErrNotFound, subreddit)
	}
	var out struct {
		Data struct {
			Subscribers int `json:"subscribers"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("op=reddit.about_decode: %w", err)
	}
	return out.Data.Subscribers, nil
}
