package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/rollcall/internal/cache"
)

// fetchSleepFunc is swapped out in tests
var fetchSleepFunc = time.Sleep

const mediaFetchAttempts = 3

// ErrMediaTooLarge is returned for voice notes over the size cap
var ErrMediaTooLarge = errors.New("media exceeds size limit")

// StatusError is a non-2xx response from a media server
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, e.Status)
}

// Media is a fetched voice note
type Media struct {
	Name string
	Data []byte
}

// Reader returns a fresh reader over the media bytes
func (m *Media) Reader() io.Reader {
	return bytes.NewReader(m.Data)
}

// MediaCache holds fetched voice notes keyed by media reference
type MediaCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
}

// MediaFetcher loads voice notes from local paths, file:// or http(s) URLs
type MediaFetcher struct {
	httpClient *http.Client
	maxBytes   int64
	cache      MediaCache
	cacheTTL   time.Duration
}

// NewMediaFetcher creates a fetcher. Redirect chains longer than 3 are refused.
func NewMediaFetcher(client *http.Client, maxBytes int64) *MediaFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	c := *client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 3 {
			return fmt.Errorf("stopped after 3 redirects")
		}
		return nil
	}
	return &MediaFetcher{httpClient: &c, maxBytes: maxBytes}
}

// SetCache keeps remote voice notes in c for ttl, so retried transcriptions
// do not download them again. Local files are never cached.
func (f *MediaFetcher) SetCache(c MediaCache, ttl time.Duration) {
	f.cache = c
	f.cacheTTL = ttl
}

// Fetch loads ref, retrying transient HTTP failures with backoff
func (f *MediaFetcher) Fetch(ctx context.Context, ref string) (*Media, error) {
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		p := ref
		if err == nil && u.Scheme == "file" {
			p = u.Path
		}
		return f.readFile(p)
	}

	key := cache.Key("media", ref)
	if f.cache != nil {
		if data, ok := f.cache.Get(key); ok && int64(len(data)) <= f.maxBytes {
			return &Media{Name: mediaName(u), Data: data}, nil
		}
	}

	m, err := f.fetchWithRetry(ctx, u)
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		// a cache write failure only costs a refetch
		_ = f.cache.Set(key, m.Data, f.cacheTTL)
	}
	return m, nil
}

func (f *MediaFetcher) fetchWithRetry(ctx context.Context, u *url.URL) (*Media, error) {
	var lastErr error
	for attempt := 1; attempt <= mediaFetchAttempts; attempt++ {
		m, err := f.fetchURL(ctx, u.String())
		if err == nil {
			return m, nil
		}
		lastErr = err
		if !isRetryableFetchError(err) || attempt == mediaFetchAttempts {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fetchSleepFunc(time.Duration(attempt) * time.Second)
	}
	return nil, lastErr
}

func (f *MediaFetcher) readFile(p string) (*Media, error) {
	file, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open media: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := f.readLimited(file)
	if err != nil {
		return nil, err
	}
	return &Media{Name: filepath.Base(p), Data: data}, nil
}

func (f *MediaFetcher) fetchURL(ctx context.Context, rawURL string) (*Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "audio/*, application/octet-stream;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	data, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Media{Name: mediaName(resp.Request.URL), Data: data}, nil
}

func (f *MediaFetcher) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrMediaTooLarge, f.maxBytes)
	}
	return data, nil
}

// mediaName is the file name the transcription API sees; it picks the
// audio format from the extension
func mediaName(u *url.URL) string {
	name := path.Base(strings.TrimSuffix(u.Path, "/"))
	if name == "." || name == "/" || name == "" {
		return "voice-note.ogg"
	}
	return name
}

// isRetryableFetchError reports whether a fetch failure is worth retrying:
// server errors, 429 and transport errors are; other statuses and local
// errors are not
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return strings.HasPrefix(err.Error(), "fetch: ")
}

// isBadMediaError reports whether a fetch failure is down to the media
// reference itself: a missing or unreadable file, oversized media, or a 4xx
// other than 408 and 429
func isBadMediaError(err error) bool {
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) || errors.Is(err, ErrMediaTooLarge) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500 &&
			se.Code != http.StatusRequestTimeout && se.Code != http.StatusTooManyRequests
	}
	return false
}
