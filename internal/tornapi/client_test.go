package tornapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"factionwatch/pkg/logx"
)

func testClient(t *testing.T, srv *httptest.Server, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Spacing:    time.Millisecond,
		RetryDelay: 5 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	_, err := c.Get(context.Background(), "/v2/faction/wars", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetForbiddenIsAuthError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	_, err := c.Get(context.Background(), "/v2/faction/wars", nil)
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("auth errors must not be retried, got %d calls", calls.Load())
	}
}

func TestGetErrorEnvelopeOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":2,"error":"Incorrect key"}}`))
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	_, err := c.Get(context.Background(), "/v2/faction/wars", nil)
	if !IsAuthError(err) {
		t.Fatalf("expected auth error from envelope, got %v", err)
	}
}

func TestGetRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	body, err := c.Get(context.Background(), "/v2/faction/wars", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", body)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestGetExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	_, err := c.Get(context.Background(), "/v2/faction/wars", nil)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected StatusError 503 as last cause, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestGetCachesResponses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"n":1}`))
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	for i := 0; i < 3; i++ {
		if _, err := c.Get(context.Background(), "/v2/faction/wars", nil); err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 upstream call, got %d", calls.Load())
	}
}

func TestGetDoesNotLeakKeyInCacheKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("api key missing from request")
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	if _, err := c.Get(context.Background(), "/v2/faction/members", nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
}

func TestRequestSpacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := testClient(t, srv, func(cfg *Config) {
		cfg.Spacing = 1100 * time.Millisecond
	})

	start := time.Now()
	if _, err := c.Get(context.Background(), "/a", nil); err != nil {
		t.Fatalf("first Get: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if _, err := c.Get(context.Background(), "/b", nil); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 1100*time.Millisecond {
		t.Fatalf("second request not spaced: both done in %v, want >= 1.1s", elapsed)
	}
}
