package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/wierd-stuff-inc/scribes/internal/logging"
	"github.com/wierd-stuff-inc/scribes/util"
)

const (
	DefaultBaseURL = "https://github.com"
	DefaultBranch  = "master"
	DefaultTimeout = 60 * time.Second

	// MarkerFile is written into a cache entry once it is complete.
	MarkerFile = ".scribes-cache"

	scratchDir = ".scratch"
	blockSize  = 32 << 10
)

var (
	// ErrFetch wraps every failure to obtain a remote plugin.
	ErrFetch = errors.New("failed to fetch remote plugin")
	// ErrIncompleteDownload is returned when fewer bytes arrive than the server announced.
	ErrIncompleteDownload = errors.New("incomplete download")
	// ErrSubpathNotFound is returned when the archive has no directory at the requested subpath.
	ErrSubpathNotFound = errors.New("subpath not found in archive")
)

// Fetcher downloads repository archives and keeps the plugins found in them
// in an on-disk cache that is never invalidated.
type Fetcher struct {
	cacheDir string
	baseURL  string
	branch   string
	client   *http.Client
	log      logging.Logger

	mu sync.Mutex
}

type Option func(*Fetcher)

func WithBaseURL(u string) Option {
	return func(f *Fetcher) {
		f.baseURL = strings.TrimRight(u, "/")
	}
}

func WithBranch(b string) Option {
	return func(f *Fetcher) {
		f.branch = b
	}
}

// WithHTTPClient replaces the client. Its Timeout is overwritten by a later WithTimeout.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

func WithLogger(log logging.Logger) Option {
	return func(f *Fetcher) {
		f.log = log
	}
}

func NewFetcher(cacheDir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		cacheDir: cacheDir,
		baseURL:  DefaultBaseURL,
		branch:   DefaultBranch,
		client:   &http.Client{Timeout: DefaultTimeout},
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) CacheDir() string {
	return f.cacheDir
}

// Fetch returns the local directory of the plugin named by ref, downloading
// it on a cache miss.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (string, error) {
	r, err := ParseReference(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return f.FetchReference(ctx, r)
}

func (f *Fetcher) FetchReference(ctx context.Context, ref Reference) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	dst := ref.Dir(f.cacheDir)
	if f.Cached(ref) {
		f.log.Debug("remote plugin cache hit", "ref", ref.String(), "dir", dst)
		return dst, nil
	}
	if err := f.fetch(ctx, ref, dst); err != nil {
		f.log.Error("remote plugin fetch failed", "ref", ref.String(), "error", err)
		return "", fmt.Errorf("%w: %s: %w", ErrFetch, ref, err)
	}
	f.log.Info("remote plugin cached", "ref", ref.String(), "dir", dst)
	return dst, nil
}

// Cached reports whether ref can be served from the cache without the network.
func (f *Fetcher) Cached(ref Reference) bool {
	dst := ref.Dir(f.cacheDir)
	if hasMarker(dst) {
		return true
	}
	return ref.Subpath != "" && hasMarker(ref.RepoDir(f.cacheDir)) && util.IsDir(dst)
}

func hasMarker(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, MarkerFile))
	return err == nil && info.Mode().IsRegular()
}

// ArchiveURL is where the zip archive of ref's repository is downloaded from.
func (f *Fetcher) ArchiveURL(ref Reference) string {
	return fmt.Sprintf("%s/%s/%s/archive/%s.zip", f.baseURL, ref.Owner, ref.Repo, f.branch)
}

func (f *Fetcher) fetch(ctx context.Context, ref Reference, dst string) error {
	root := filepath.Join(f.cacheDir, scratchDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	scratch, err := os.MkdirTemp(root, ref.Owner+"-"+ref.Repo+"-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	archive := filepath.Join(scratch, "archive.zip")
	url := f.ArchiveURL(ref)
	f.log.Info("downloading plugin archive", "ref", ref.String(), "url", url)
	if err := f.download(ctx, url, archive); err != nil {
		return err
	}

	tree := filepath.Join(scratch, "tree")
	if err := extract(archive, tree); err != nil {
		return err
	}
	top, err := topLevelDir(tree)
	if err != nil {
		return err
	}

	if ref.Subpath == "" {
		if err := replaceDir(top, dst); err != nil {
			return err
		}
	} else {
		src := filepath.Join(top, filepath.FromSlash(ref.Subpath))
		if !util.IsDir(src) {
			return fmt.Errorf("%w: %s", ErrSubpathNotFound, ref.Subpath)
		}
		if err := util.CopyDir(src, dst, true); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(dst, MarkerFile), []byte(ref.String()+"\n"), 0o644)
}

func (f *Fetcher) download(ctx context.Context, url, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	n, err := io.CopyBuffer(out, resp.Body, make([]byte, blockSize))
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %s: %w", ErrIncompleteDownload, url, err)
		}
		return err
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return fmt.Errorf("%w: %s: received %d of %d bytes", ErrIncompleteDownload, url, n, resp.ContentLength)
	}
	return out.Close()
}

func extract(archive, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		// an archive with insecure names is still opened
		if r != nil {
			r.Close()
		}
		return err
	}
	defer r.Close()

	base := filepath.Clean(dest) + string(os.PathSeparator)
	for _, file := range r.File {
		target := filepath.Join(dest, filepath.FromSlash(file.Name))
		if !strings.HasPrefix(target+string(os.PathSeparator), base) {
			return fmt.Errorf("archive entry %q escapes the extraction directory", file.Name)
		}
		mode := file.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case mode.IsRegular():
			if err := extractFile(file, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func extractFile(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	perm := file.Mode().Perm() | 0o600
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// topLevelDir returns the one directory a repository archive unpacks into.
func topLevelDir(tree string) (string, error) {
	entries, err := os.ReadDir(tree)
	if err != nil {
		return "", err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return "", fmt.Errorf("archive has %d top-level entries, want a single directory", len(entries))
	}
	return filepath.Join(tree, entries[0].Name()), nil
}

func replaceDir(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return util.CopyDir(src, dst, true)
}
