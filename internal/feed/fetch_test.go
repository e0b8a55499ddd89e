package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchUsesETag(t *testing.T) {
	t.Parallel()

	var hits, conditional atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`[{"code":"113#1"}]`))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, t.TempDir(), nil)
	ctx := context.Background()

	first, err := f.Fetch(ctx, "yms.json")
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, `[{"code":"113#1"}]`, string(first.Body))

	second, err := f.Fetch(ctx, "yms.json")
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)

	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), conditional.Load())
}

func TestFetchServesStaleOnError(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("cached"))
	}))

	dir := t.TempDir()
	f := NewFetcher(srv.URL, dir, nil)
	ctx := context.Background()

	_, err := f.Fetch(ctx, "announcement.json")
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.Fetch(ctx, "announcement.json")
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, "cached", string(res.Body))

	srv.Close()
	res, err = f.Fetch(ctx, "announcement.json")
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, "cached", string(res.Body))
}

func TestFetchStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewFetcher(srv.URL, t.TempDir(), nil)
	_, err := f.Fetch(context.Background(), "999/1/teachers.json")
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "999/1/teachers.json", se.Path)
}

func TestFetcherURL(t *testing.T) {
	t.Parallel()

	f := NewFetcher("https://example.org/feed/", t.TempDir(), nil)
	assert.Equal(t, "https://example.org/feed/113/1/teachers.json", f.URL("113/1/teachers.json"))
	assert.Equal(t, "https://example.org/feed/calendar/113/a%20b.pdf", f.URL("/calendar/113/a b.pdf"))
}

func TestFetchAllCollectsErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, t.TempDir(), nil)
	results, errs := f.FetchAll(context.Background(), []string{"a.json", "missing.json", "b.json"})
	assert.Len(t, results, 2)
	assert.Len(t, errs, 1)
}
