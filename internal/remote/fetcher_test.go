package remote

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

var widgetsArchive = map[string]string{
	"widgets-master/README.md":                        "# widgets",
	"widgets-master/examples/basic/main.yaml":         "patterns: []",
	"widgets-master/examples/basic/scripts/basic.js":  "basic()",
	"widgets-master/examples/advanced/main.lua":       "function extend(md) end",
	"widgets-master/examples/advanced/styles/adv.css": "",
}

type archiveServer struct {
	*httptest.Server
	requests atomic.Int32
	paths    []string
}

func serveArchive(t *testing.T, archive []byte) *archiveServer {
	t.Helper()
	s := &archiveServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.paths = append(s.paths, r.URL.Path)
		if r.URL.Path != "/octo/widgets/archive/master.zip" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	}))
	t.Cleanup(s.Close)
	return s
}

func scratchEntries(t *testing.T, cache string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(cache, scratchDir))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return entries
}

func TestFetch_Subpath(t *testing.T) {
	srv := serveArchive(t, makeZip(t, widgetsArchive))
	cache := t.TempDir()
	f := NewFetcher(cache, WithBaseURL(srv.URL))
	ctx := context.Background()

	dir, err := f.Fetch(ctx, "octo/widgets:examples/basic")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cache, "octo", "widgets", "examples", "basic"), dir)
	assert.FileExists(t, filepath.Join(dir, "main.yaml"))
	assert.FileExists(t, filepath.Join(dir, "scripts", "basic.js"))
	assert.FileExists(t, filepath.Join(dir, MarkerFile))
	assert.NoFileExists(t, filepath.Join(cache, "octo", "widgets", "README.md"), "only the subtree is extracted")
	assert.NoDirExists(t, filepath.Join(cache, "octo", "widgets", "examples", "advanced"))
	assert.Equal(t, int32(1), srv.requests.Load())
	assert.Equal(t, []string{"/octo/widgets/archive/master.zip"}, srv.paths)
	assert.Empty(t, scratchEntries(t, cache))

	again, err := f.Fetch(ctx, "octo/widgets:examples/basic")
	require.NoError(t, err)
	assert.Equal(t, dir, again)
	assert.Equal(t, int32(1), srv.requests.Load(), "a cache hit makes no request")
}

func TestFetch_WholeRepository(t *testing.T) {
	srv := serveArchive(t, makeZip(t, widgetsArchive))
	cache := t.TempDir()
	f := NewFetcher(cache, WithBaseURL(srv.URL))
	ctx := context.Background()

	dir, err := f.Fetch(ctx, "octo/widgets")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cache, "octo", "widgets"), dir)
	assert.FileExists(t, filepath.Join(dir, "README.md"))
	assert.FileExists(t, filepath.Join(dir, "examples", "advanced", "main.lua"))

	sub, err := f.Fetch(ctx, "octo/widgets:examples/advanced")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "examples", "advanced"), sub)
	assert.Equal(t, int32(1), srv.requests.Load(), "subpaths of a cached repository are hits")
}

func TestFetch_PartialEntryIsNotAHit(t *testing.T) {
	cache := t.TempDir()
	// a directory without the marker is what an interrupted fetch leaves behind
	require.NoError(t, os.MkdirAll(filepath.Join(cache, "octo", "widgets", "examples", "basic"), 0o755))
	srv := serveArchive(t, makeZip(t, widgetsArchive))
	f := NewFetcher(cache, WithBaseURL(srv.URL))

	_, err := f.Fetch(context.Background(), "octo/widgets:examples/basic")
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.requests.Load())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestFetch_IncompleteDownload(t *testing.T) {
	cache := t.TempDir()
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode:    http.StatusOK,
			Status:        "200 OK",
			Header:        http.Header{},
			ContentLength: 1000,
			Body:          io.NopCloser(bytes.NewReader(make([]byte, 900))),
			Request:       r,
		}, nil
	})}
	f := NewFetcher(cache, WithHTTPClient(client))

	_, err := f.Fetch(context.Background(), "octo/widgets:examples/basic")

	require.ErrorIs(t, err, ErrFetch)
	assert.ErrorIs(t, err, ErrIncompleteDownload)
	assert.NoDirExists(t, filepath.Join(cache, "octo"))
	assert.Empty(t, scratchEntries(t, cache))
}

func TestFetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	defer srv.Close()
	cache := t.TempDir()
	f := NewFetcher(cache, WithBaseURL(srv.URL))

	_, err := f.Fetch(context.Background(), "octo/widgets")

	require.ErrorIs(t, err, ErrFetch)
	assert.ErrorContains(t, err, "500")
	assert.NoDirExists(t, filepath.Join(cache, "octo"))
}

func TestFetch_MissingSubpath(t *testing.T) {
	srv := serveArchive(t, makeZip(t, widgetsArchive))
	cache := t.TempDir()
	f := NewFetcher(cache, WithBaseURL(srv.URL))

	_, err := f.Fetch(context.Background(), "octo/widgets:examples/missing")

	require.ErrorIs(t, err, ErrFetch)
	assert.ErrorIs(t, err, ErrSubpathNotFound)
	assert.NoDirExists(t, filepath.Join(cache, "octo", "widgets", "examples", "missing"))
}

func TestFetch_RejectsEscapingEntries(t *testing.T) {
	srv := serveArchive(t, makeZip(t, map[string]string{
		"widgets-master/main.yaml": "",
		"../../escaped.txt":        "gotcha",
	}))
	cache := t.TempDir()
	f := NewFetcher(cache, WithBaseURL(srv.URL))

	_, err := f.Fetch(context.Background(), "octo/widgets")

	require.ErrorIs(t, err, ErrFetch)
	assert.NoFileExists(t, filepath.Join(cache, "escaped.txt"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(cache), "escaped.txt"))
}

func TestFetch_ArchiveWithoutSingleRoot(t *testing.T) {
	srv := serveArchive(t, makeZip(t, map[string]string{"a.txt": "", "b.txt": ""}))
	f := NewFetcher(t.TempDir(), WithBaseURL(srv.URL))

	_, err := f.Fetch(context.Background(), "octo/widgets")
	assert.ErrorIs(t, err, ErrFetch)
}

func TestFetch_InvalidReference(t *testing.T) {
	f := NewFetcher(t.TempDir())

	_, err := f.Fetch(context.Background(), "not-a-reference")

	require.ErrorIs(t, err, ErrFetch)
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestFetch_Branch(t *testing.T) {
	f := NewFetcher(t.TempDir(), WithBaseURL("https://example.com/"), WithBranch("main"))
	assert.Equal(t, "https://example.com/octo/widgets/archive/main.zip", f.ArchiveURL(Reference{Owner: "octo", Repo: "widgets"}))
}
