///////////////////////////////////////////////////////////////////////////////////////////////////
//                                                                                               //
//                              Copyright (C) 2024  Wyatt Sheffield                              //
//                                                                                               //
//                 This program is free software: you can redistribute it and/or                 //
//                 modify it under the terms of the GNU General Public License as                //
//                 published by the Free Software Foundation, either version 3 of                //
//                      the License, or (at your option) any later version.                      //
//                                                                                               //
//                This program is distributed in the hope that it will be useful,                //
//                 but WITHOUT ANY WARRANTY; without even the implied warranty of                //
//                 MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the                 //
//                          GNU General Public License for more details.                         //
//                                                                                               //
//                   You should have received a copy of the GNU General Public                   //
//                         License along with this program.  If not, see                         //
//                                <https://www.gnu.org/licenses/>.                               //
//                                                                                               //
///////////////////////////////////////////////////////////////////////////////////////////////////

package util

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"
)

// MarkdownSuffix marks the files of a book that are rendered into pages.
const MarkdownSuffix = ".md"

// ErrDestinationExists is returned by CopyDir when the destination exists and
// replacing it was not asked for.
var ErrDestinationExists = errors.New("destination already exists")

// Timer reports how long the enclosing call took. Use as
//
//	defer util.Timer("render", log.Debug)()
func Timer(name string, report func(msg string, args ...any)) func() {
	start := time.Now()
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "unknown"
		line = 0
	}
	return func() {
		report(name, "caller", fmt.Sprintf("%s:%d", filepath.Base(file), line), "elapsed", time.Since(start))
	}
}

// let B = {b ∈ sliceB | b ∉ sliceA} then sliceA ∪ B is equivalent to ConcatUnique(sliceA, sliceB)
// Order is kept and duplicates inside sliceB are dropped as well.
func ConcatUnique[T comparable](sliceA []T, sliceB []T) []T {
	result := make([]T, len(sliceA))
	copy(result, sliceA)
	for _, val := range sliceB {
		if !slices.Contains(result, val) {
			result = append(result, val)
		}
	}
	return result
}

// PageName is the name a markdown file is published under: its base name
// without the markdown suffix.
func PageName(filename string) string {
	return strings.TrimSuffix(filepath.Base(filename), MarkdownSuffix)
}

// IsPageSource reports whether filename is a markdown page.
func IsPageSource(filename string) bool {
	return strings.HasSuffix(filename, MarkdownSuffix)
}

// PageURL maps a relative link to another book page (chapter2.md#intro) to the
// URL the page is served at (/page/chapter2.html#intro). Anything else is
// returned unchanged with ok set to false.
func PageURL(dest string) (string, bool) {
	u, err := url.Parse(dest)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return dest, false
	}
	if strings.HasPrefix(u.Path, "/") || !IsPageSource(u.Path) {
		return dest, false
	}
	out := "/page/" + strings.TrimSuffix(path.Base(u.Path), MarkdownSuffix) + ".html"
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		out += "#" + u.EscapedFragment()
	}
	return out, true
}

func IsDir(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.IsDir()
}

// CopyDir recursively copies src to dst. When dst exists it is removed first
// if replace is set, otherwise ErrDestinationExists is returned. A regular
// file as src is copied as a single file.
func CopyDir(src, dst string, replace bool) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(dst); err == nil {
		if !replace {
			return fmt.Errorf("%w: %s", ErrDestinationExists, dst)
		}
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if !info.IsDir() {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return copyFile(src, dst, info.Mode())
	}
	return filepath.WalkDir(src, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, name)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type().IsRegular():
			fi, err := d.Info()
			if err != nil {
				return err
			}
			return copyFile(name, target, fi.Mode())
		default:
			// symlinks and devices are not part of a plugin
			return nil
		}
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// WriteFileAtomic writes data next to name and renames it into place, so a
// reader never sees a half written file and a failed write leaves the old one.
func WriteFileAtomic(name string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(name)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}
