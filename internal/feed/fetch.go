package feed

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

	appLog "coursecal/internal/log"
	"coursecal/internal/metrics"
)

// FetchResult contains the outcome of fetching a single feed file.
type FetchResult struct {
	Path      string
	Body      []byte
	FromCache bool // true if the cached body was reused (304 or fallback)
}

// cacheEntry holds HTTP cache metadata for a single feed URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads files below a base URL with HTTP caching
// (ETag / Last-Modified) backed by a disk cache. On network errors or
// non-OK responses a previously cached body is served instead.
type Fetcher struct {
	client   *http.Client
	baseURL  string
	cacheDir string
	metrics  *metrics.Metrics
}

// NewFetcher creates a Fetcher for files under baseURL. cacheDir holds one
// subdirectory per URL; an empty cacheDir uses "./var/feed-cache".
func NewFetcher(baseURL, cacheDir string, m *metrics.Metrics) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/feed-cache"
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		cacheDir: cacheDir,
		metrics:  m,
	}
}

// URL resolves a feed path such as "113/1/teachers.json" against the base.
func (f *Fetcher) URL(path string) string {
	segs := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return f.baseURL + "/" + strings.Join(segs, "/")
}

// FetchAll fetches every path; failures are logged and returned alongside
// the successful results.
func (f *Fetcher) FetchAll(ctx context.Context, paths []string) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(paths))
	errs := make([]error, 0)

	for _, p := range paths {
		res, err := f.Fetch(ctx, p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// Fetch downloads one feed path, honoring ETag and Last-Modified.
func (f *Fetcher) Fetch(ctx context.Context, path string) (FetchResult, error) {
	if strings.TrimSpace(path) == "" {
		return FetchResult{}, errors.New("feed: path is empty")
	}
	src := f.URL(path)

	cachePath := f.cachePathForURL(src)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return FetchResult{}, err
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Debug("feed fetch start", "path", path)

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("feed fetch network error, using cached body", err, "path", path)
			f.metrics.ObserveFetch(metrics.FetchStale)
			return FetchResult{Path: path, Body: cachedBody, FromCache: true}, nil
		}
		f.metrics.ObserveFetch(metrics.FetchFailed)
		return FetchResult{}, fmt.Errorf("feed: fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			f.metrics.ObserveFetch(metrics.FetchFailed)
			return FetchResult{}, fmt.Errorf("feed: read %s: %w", path, readErr)
		}

		newMeta := cacheEntry{
			URL:          src,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("feed cache save failed", err, "path", path)
		}

		appLog.Info("feed fetch success", "path", path, "status", resp.StatusCode, "bytes", len(body))
		f.metrics.ObserveFetch(metrics.FetchFresh)
		return FetchResult{Path: path, Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			f.metrics.ObserveFetch(metrics.FetchFailed)
			return FetchResult{}, fmt.Errorf("feed: %s: 304 Not Modified but no cached body available", path)
		}
		appLog.Debug("feed fetch not modified; using cache", "path", path)
		f.metrics.ObserveFetch(metrics.FetchNotModified)
		return FetchResult{Path: path, Body: cachedBody, FromCache: true}, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("feed fetch non-OK, using cached body", errors.New(resp.Status), "path", path, "status", resp.StatusCode)
			f.metrics.ObserveFetch(metrics.FetchStale)
			return FetchResult{Path: path, Body: cachedBody, FromCache: true}, nil
		}
		f.metrics.ObserveFetch(metrics.FetchFailed)
		return FetchResult{}, &StatusError{Path: path, StatusCode: resp.StatusCode}
	}
}

// StatusError is a non-OK feed response with no cached fallback.
type StatusError struct {
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed: %s: %d %s", e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

func (f *Fetcher) cachePathForURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	// First 16 hex chars name the directory.
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
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

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}
