package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}

func TestConcatUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, ConcatUnique([]string{"a", "b"}, []string{"b", "c", "c"}))
	assert.Equal(t, []int{1}, ConcatUnique(nil, []int{1, 1}))

	a := []string{"x"}
	_ = ConcatUnique(a, []string{"y"})
	assert.Equal(t, []string{"x"}, a, "inputs are not modified")
}

func TestPageName(t *testing.T) {
	assert.Equal(t, "intro", PageName("book/intro.md"))
	assert.Equal(t, "notes.txt", PageName("/abs/notes.txt"))
	assert.True(t, IsPageSource("book/intro.md"))
	assert.False(t, IsPageSource("book/intro.md.swp"))
}

func TestPageURL(t *testing.T) {
	tests := []struct {
		dest string
		want string
		ok   bool
	}{
		{"chapter2.md", "/page/chapter2.html", true},
		{"sub/chapter2.md#part-1", "/page/chapter2.html#part-1", true},
		{"chapter2.md?x=1", "/page/chapter2.html?x=1", true},
		{"/chapter2.md", "/chapter2.md", false},
		{"https://example.com/a.md", "https://example.com/a.md", false},
		{"#local", "#local", false},
		{"pic.png", "pic.png", false},
	}
	for _, tt := range tests {
		t.Run(tt.dest, func(t *testing.T) {
			got, ok := PageURL(tt.dest)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCopyDir(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	writeFile(t, filepath.Join(src, "a.js"), "a")
	writeFile(t, filepath.Join(src, "nested", "b.js"), "b")
	dst := filepath.Join(root, "out", "dst")

	require.NoError(t, CopyDir(src, dst, false))

	data, err := os.ReadFile(filepath.Join(dst, "nested", "b.js"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

func TestCopyDir_ExistingDestination(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeFile(t, filepath.Join(src, "new.js"), "new")
	writeFile(t, filepath.Join(dst, "stale.js"), "stale")

	err := CopyDir(src, dst, false)
	require.ErrorIs(t, err, ErrDestinationExists)

	require.NoError(t, CopyDir(src, dst, true))
	assert.FileExists(t, filepath.Join(dst, "new.js"))
	assert.NoFileExists(t, filepath.Join(dst, "stale.js"), "replace removes what was there")
}

func TestCopyDir_SingleFile(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "one.css")
	writeFile(t, src, "body{}")
	dst := filepath.Join(root, "deep", "copy.css")

	require.NoError(t, CopyDir(src, dst, false))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(data))
}

func TestWriteFileAtomic(t *testing.T) {
	name := filepath.Join(t.TempDir(), "page.html")
	writeFile(t, name, "old")

	require.NoError(t, WriteFileAtomic(name, []byte("new"), 0o644))

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	entries, err := os.ReadDir(filepath.Dir(name))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary file is left behind")
}

func TestTimer(t *testing.T) {
	var msg string
	var args []any
	done := Timer("work", func(m string, a ...any) {
		msg = m
		args = a
	})
	done()

	assert.Equal(t, "work", msg)
	require.Len(t, args, 4)
	assert.Equal(t, "caller", args[0])
	assert.Contains(t, args[1], "util_test.go")
	assert.Equal(t, "elapsed", args[2])
}
