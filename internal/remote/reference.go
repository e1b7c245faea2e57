package remote

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidReference is returned for identifiers that are not owner/repo[:subpath].
var ErrInvalidReference = errors.New("invalid remote plugin reference")

// Reference names a plugin inside a remote source repository.
type Reference struct {
	Owner   string
	Repo    string
	Subpath string
}

// ParseReference splits "owner/repo[:subpath]" on the first colon.
func ParseReference(s string) (Reference, error) {
	repo, sub, _ := strings.Cut(strings.TrimSpace(s), ":")
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || !validSegment(owner) || !validSegment(name) {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	ref := Reference{Owner: owner, Repo: name}
	if sub = strings.Trim(sub, "/"); sub != "" {
		clean := path.Clean(sub)
		if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
			return Reference{}, fmt.Errorf("%w: subpath %q leaves the repository", ErrInvalidReference, sub)
		}
		ref.Subpath = clean
	}
	return ref, nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

func (r Reference) String() string {
	if r.Subpath == "" {
		return r.Owner + "/" + r.Repo
	}
	return r.Owner + "/" + r.Repo + ":" + r.Subpath
}

// Dir is where the reference lives below the cache root.
func (r Reference) Dir(cacheRoot string) string {
	return filepath.Join(cacheRoot, r.Owner, r.Repo, filepath.FromSlash(r.Subpath))
}

// RepoDir is the cache entry for the whole repository.
func (r Reference) RepoDir(cacheRoot string) string {
	return filepath.Join(cacheRoot, r.Owner, r.Repo)
}
