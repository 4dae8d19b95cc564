// Package tornapi is the shared rate-limited Torn API client.
//
// One client instance is shared by every monitor: request spacing, the
// short-TTL response cache, and retry/backoff live here so individual
// monitors never reimplement them.
package tornapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/coocood/freecache"
	"golang.org/x/time/rate"

	"factionwatch/pkg/logx"
)

const (
	defaultBaseURL      = "https://api.torn.com"
	defaultSpacing      = 1100 * time.Millisecond
	defaultCacheTTL     = 60 * time.Second
	defaultFetchTimeout = 25 * time.Second
	defaultAttempts     = 3
	cacheSizeBytes      = 4 * 1024 * 1024
)

// Observer receives client-level counters. All methods must be cheap and
// non-blocking; a nil Observer disables instrumentation.
type Observer interface {
	FetchDone(endpoint string, err error)
	CacheHit()
	CacheMiss()
}

type Config struct {
	APIKey       string
	BaseURL      string        // override for tests; default api.torn.com
	Spacing      time.Duration // minimum interval between outbound requests
	CacheTTL     time.Duration // response cache lifetime per URL
	FetchTimeout time.Duration // total budget per Get, including retries
	Attempts     uint          // total attempts per fetch
	RetryDelay   time.Duration // base backoff delay (grows exponentially)
}

// Client issues spaced, cached, retried GET requests against the Torn API.
// Safe for concurrent use by multiple monitors.
type Client struct {
	cfg   Config
	log   logx.Logger
	http  *http.Client
	lim   *rate.Limiter
	cache *freecache.Cache
	obs   Observer

	cacheTTL int // seconds, for freecache
}

func New(cfg Config, log logx.Logger, obs Observer) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("tornapi: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Spacing <= 0 {
		cfg.Spacing = defaultSpacing
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:      cfg,
		log:      log,
		http:     &http.Client{Timeout: cfg.FetchTimeout},
		lim:      rate.NewLimiter(rate.Every(cfg.Spacing), 1),
		cache:    freecache.NewCache(cacheSizeBytes),
		obs:      obs,
		cacheTTL: int(cfg.CacheTTL.Seconds()),
	}, nil
}

// Get fetches path (e.g. "/v2/faction/wars") with the given query and
// returns the raw JSON body. The API key is appended on the wire but never
// part of the cache key or logs.
//
// Error contract: ErrNotFound for 404, *AuthError for 403 and key-related
// envelope codes (both non-retryable), anything else is retried with
// exponential backoff and surfaced wrapped after the attempts budget.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	cacheKey := path
	if len(query) > 0 {
		cacheKey += "?" + query.Encode()
	}

	if body, err := c.cache.Get([]byte(cacheKey)); err == nil {
		if c.obs != nil {
			c.obs.CacheHit()
		}
		c.log.Debug("cache hit", logx.String("path", path))
		return body, nil
	}
	if c.obs != nil {
		c.obs.CacheMiss()
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	var body []byte
	err := retry.Do(
		func() error {
			var ferr error
			body, ferr = c.fetchOnce(ctx, path, query)
			return ferr
		},
		retry.Attempts(c.cfg.Attempts),
		retry.Delay(c.cfg.RetryDelay),
		retry.MaxDelay(30*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("fetch retry", logx.String("path", path), logx.Int("attempt", int(n+1)), logx.Err(err))
		}),
	)
	if c.obs != nil {
		c.obs.FetchDone(path, err)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) || IsAuthError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("tornapi: fetch %s failed: %w", path, err)
	}

	_ = c.cache.Set([]byte(cacheKey), body, c.cacheTTL)
	return body, nil
}

func (c *Client) fetchOnce(ctx context.Context, path string, query url.Values) ([]byte, error) {
	// Global spacing shared across all callers of this client.
	if err := c.lim.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	q.Set("key", c.cfg.APIKey)
	reqURL := c.cfg.BaseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "factionwatch/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to body handling
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Unrecoverable(ErrNotFound)
	case resp.StatusCode == http.StatusForbidden:
		return nil, retry.Unrecoverable(&AuthError{Message: "http 403"})
	default:
		// 429 and 5xx (and anything unexpected) are transient.
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: path}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}

	// Torn reports most failures as an error envelope inside HTTP 200.
	var env struct {
		Error *APIError `json:"error"`
	}
	if jerr := json.Unmarshal(body, &env); jerr == nil && env.Error != nil {
		if isAuthCode(env.Error.Code) {
			return nil, retry.Unrecoverable(&AuthError{Code: env.Error.Code, Message: env.Error.Message})
		}
		return nil, env.Error
	}

	return body, nil
}
