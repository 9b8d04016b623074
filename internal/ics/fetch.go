package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"calexport/internal/config"
	appLog "calexport/internal/log"
)

// Feed is a single ICS calendar: a local file or an HTTP(S) URL.
type Feed struct {
	// ID is used for logging and as the HTTP cache key prefix.
	ID string
	// Name is the calendar name events are attributed to.
	Name string
	// Location is an http(s):// URL, a file:// URL or a filesystem path.
	Location string
}

// IsRemote reports whether the feed is fetched over HTTP.
func (f Feed) IsRemote() bool {
	l := strings.ToLower(f.Location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Path returns the filesystem path of a local feed, with "~/" expanded.
func (f Feed) Path() (string, error) {
	if strings.HasPrefix(f.Location, "file://") {
		u, err := url.Parse(f.Location)
		if err != nil {
			return "", fmt.Errorf("invalid file url %q: %w", f.Location, err)
		}
		return u.Path, nil
	}
	return config.ExpandHome(f.Location)
}

// FetchResult contains the outcome of fetching a single feed.
type FetchResult struct {
	Feed      Feed
	Body      []byte
	FromCache bool // true if the cached body was used (304 or fallback)
}

// cacheEntry holds HTTP cache metadata for a single feed URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StatusError is a non-OK HTTP response with no cached body to fall back to.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "unexpected HTTP status: " + e.Status
}

// Fetcher reads local feeds from disk and fetches remote feeds with HTTP
// caching (ETag / Last-Modified) backed by a disk cache.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher. cacheDir is the base directory for per-URL
// cache subdirectories; "~/" is expanded.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if expanded, err := config.ExpandHome(cacheDir); err == nil {
		cacheDir = expanded
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir}
}

// Fetch returns the body of a feed.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) (FetchResult, error) {
	if feed.Location == "" {
		return FetchResult{}, errors.New("feed location is empty")
	}
	if !feed.IsRemote() {
		return f.readLocal(feed)
	}
	return f.fetchRemote(ctx, feed)
}

func (f *Fetcher) readLocal(feed Feed) (FetchResult, error) {
	p, err := feed.Path()
	if err != nil {
		return FetchResult{}, err
	}
	body, err := os.ReadFile(p)
	if err != nil {
		return FetchResult{}, err
	}
	appLog.Debug("ics read", "id", feed.ID, "path", p, "bytes", len(body))
	return FetchResult{Feed: feed, Body: body}, nil
}

func (f *Fetcher) fetchRemote(ctx context.Context, feed Feed) (FetchResult, error) {
	cachePath := f.cachePathForURL(feed.Location)
	cacheOK := f.cacheDir != ""
	if cacheOK {
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			appLog.Warn("ics cache unavailable", "id", feed.ID, "err", err)
			cacheOK = false
		}
	}

	var meta cacheEntry
	var cachedBody []byte
	if cacheOK {
		meta, _ = loadCacheMeta(cachePath)
		cachedBody, _ = os.ReadFile(filepath.Join(cachePath, "body.ics"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.Location, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("ics fetch start", "id", feed.ID, "url", redactURL(feed.Location))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 && ctx.Err() == nil {
			appLog.Warn("ics fetch failed, using cached body", "id", feed.ID, "url", redactURL(feed.Location), "err", err)
			return FetchResult{Feed: feed, Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return FetchResult{}, err
		}
		if cacheOK {
			newMeta := cacheEntry{
				URL:          feed.Location,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := saveCache(cachePath, newMeta, body); err != nil {
				appLog.Warn("ics cache save failed", "id", feed.ID, "err", err)
			}
		}
		appLog.Debug("ics fetch success", "id", feed.ID, "status", resp.StatusCode, "bytes", len(body))
		return FetchResult{Feed: feed, Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("ics fetch not modified; using cache", "id", feed.ID)
		return FetchResult{Feed: feed, Body: cachedBody, FromCache: true}, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Warn("ics fetch non-OK, using cached body", "id", feed.ID, "status", resp.StatusCode)
			return FetchResult{Feed: feed, Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
}

func (f *Fetcher) cachePathForURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host; feed URLs often embed secrets.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
