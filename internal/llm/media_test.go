package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/rollcall/internal/cache"
)

func noSleep(t *testing.T) {
	t.Helper()
	orig := fetchSleepFunc
	fetchSleepFunc = func(time.Duration) {}
	t.Cleanup(func() { fetchSleepFunc = orig })
}

func TestMediaFetch_URL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/ogg")
		_, _ = fmt.Fprint(w, "OggS")
	}))
	defer server.Close()

	m, err := NewMediaFetcher(nil, 1<<20).Fetch(context.Background(), server.URL+"/notes/abc.ogg")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(m.Data) != "OggS" || m.Name != "abc.ogg" {
		t.Errorf("Unexpected media %q %q", m.Name, m.Data)
	}
}

func TestMediaFetch_CachedAcrossFetchers(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = fmt.Fprint(w, "OggS")
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "media")
	ref := server.URL + "/notes/abc.ogg"
	for range 2 {
		f := NewMediaFetcher(nil, 1<<20)
		f.SetCache(cache.NewLayeredCache(time.Minute, dir, time.Hour), time.Hour)
		m, err := f.Fetch(context.Background(), ref)
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if string(m.Data) != "OggS" || m.Name != "abc.ogg" {
			t.Errorf("Unexpected media %q %q", m.Name, m.Data)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("Expected one download, got %d", hits.Load())
	}

	// local files bypass the cache
	path := filepath.Join(t.TempDir(), "local.ogg")
	if err := os.WriteFile(path, []byte("OggS"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := NewMediaFetcher(nil, 1<<20)
	c := cache.NewLayeredCache(time.Minute, dir, time.Hour)
	f.SetCache(c, time.Hour)
	if _, err := f.Fetch(context.Background(), path); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if _, ok := c.Get(cache.Key("media", path)); ok {
		t.Error("Expected local file not to be cached")
	}
}

func TestMediaFetch_TransientThenSuccess(t *testing.T) {
	noSleep(t)
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, "OggS")
	}))
	defer server.Close()

	if _, err := NewMediaFetcher(nil, 1<<20).Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestMediaFetch_PermanentFailure(t *testing.T) {
	noSleep(t)
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewMediaFetcher(nil, 1<<20).Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error for 404, got nil")
	}
	if got := err.Error(); got != "unexpected status: 404 Not Found" {
		t.Errorf("Unexpected error: %s", got)
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts.Load())
	}
}

func TestMediaFetch_AllRetriesExhausted(t *testing.T) {
	noSleep(t)
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	if _, err := NewMediaFetcher(nil, 1<<20).Fetch(context.Background(), server.URL); err == nil {
		t.Fatal("Expected error after all retries exhausted")
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestMediaFetch_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.ogg")
	if err := os.WriteFile(path, make([]byte, 64), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewMediaFetcher(nil, 32).Fetch(context.Background(), path)
	if !errors.Is(err, ErrMediaTooLarge) {
		t.Errorf("Expected ErrMediaTooLarge, got %v", err)
	}

	m, err := NewMediaFetcher(nil, 64).Fetch(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("Expected file:// fetch to succeed, got %v", err)
	}
	if m.Name != "big.ogg" || len(m.Data) != 64 {
		t.Errorf("Unexpected media %s %d", m.Name, len(m.Data))
	}

	if _, err := NewMediaFetcher(nil, 64).Fetch(context.Background(), path+".missing"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestIsBadMediaError(t *testing.T) {
	_, missing := os.Open(filepath.Join(t.TempDir(), "gone.ogg"))
	tests := []struct {
		name string
		err  error
		bad  bool
	}{
		{"missing file", fmt.Errorf("open media: %w", missing), true},
		{"too large", fmt.Errorf("%w (32 bytes)", ErrMediaTooLarge), true},
		{"404", &StatusError{Code: 404}, true},
		{"403", &StatusError{Code: 403}, true},
		{"408", &StatusError{Code: 408}, false},
		{"429", &StatusError{Code: 429}, false},
		{"503", &StatusError{Code: 503}, false},
		{"transport", errors.New("fetch: connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBadMediaError(tt.err); got != tt.bad {
				t.Errorf("isBadMediaError(%v) = %v, want %v", tt.err, got, tt.bad)
			}
		})
	}
}

func TestIsRetryableFetchError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"503", &StatusError{Code: 503}, true},
		{"500", &StatusError{Code: 500}, true},
		{"429", &StatusError{Code: 429}, true},
		{"404", &StatusError{Code: 404}, false},
		{"401", &StatusError{Code: 401}, false},
		{"transport", errors.New("fetch: connection refused"), true},
		{"cancelled", fmt.Errorf("fetch: %w", context.Canceled), false},
		{"request", errors.New("create request: invalid URL"), false},
		{"body", errors.New("read body: unexpected EOF"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableFetchError(tt.err); got != tt.retryable {
				t.Errorf("isRetryableFetchError(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}
