package book

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	remote bool
	name   string
}

type recordingImporter struct {
	calls []call
	fail  map[string]error
}

func (r *recordingImporter) ImportLocal(name string) error {
	r.calls = append(r.calls, call{name: name})
	return r.fail[name]
}

func (r *recordingImporter) ImportRemote(ref string) error {
	r.calls = append(r.calls, call{remote: true, name: ref})
	return r.fail[ref]
}

func TestStripImports(t *testing.T) {
	imp := &recordingImporter{}

	got, err := StripImports("a\n@import foo\nb", imp)

	require.NoError(t, err)
	assert.Equal(t, "a\nb", got)
	assert.Equal(t, []call{{name: "foo"}}, imp.calls)
}

func TestStripImports_KeepsOtherLinesVerbatim(t *testing.T) {
	imp := &recordingImporter{}
	src := "# Title\r\n\n  indented @import not at start\n\t@import  draw_func  \n@IMPORT upper\n```\ncode\n```\n@import from octo/widgets:examples/basic\nlast line without newline"

	got, err := StripImports(src, imp)

	require.NoError(t, err)
	assert.Equal(t, "# Title\r\n\n  indented @import not at start\n@IMPORT upper\n```\ncode\n```\nlast line without newline", got)
	assert.Equal(t, []call{
		{name: "draw_func"},
		{remote: true, name: "octo/widgets:examples/basic"},
	}, imp.calls)
}

func TestStripImports_FromIsCaseInsensitive(t *testing.T) {
	imp := &recordingImporter{}

	_, err := StripImports("@import FROM octo/widgets\n@import From octo/other\n", imp)

	require.NoError(t, err)
	assert.Equal(t, []call{
		{remote: true, name: "octo/widgets"},
		{remote: true, name: "octo/other"},
	}, imp.calls)
}

func TestStripImports_Malformed(t *testing.T) {
	for _, src := range []string{"@import\n", "text\n   @import   \n", "@import from\n", "@import FROM  \n"} {
		t.Run(src, func(t *testing.T) {
			imp := &recordingImporter{}
			_, err := StripImports(src, imp)
			assert.ErrorIs(t, err, ErrMalformedImport)
			assert.Empty(t, imp.calls)
		})
	}
}

func TestStripImports_StopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	imp := &recordingImporter{fail: map[string]error{"second": boom}}

	_, err := StripImports("@import first\n@import second\n@import third\n", imp)

	require.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "line 2")
	assert.Equal(t, []call{{name: "first"}, {name: "second"}}, imp.calls)
}

func TestStripImports_NoDirectives(t *testing.T) {
	imp := &recordingImporter{}
	src := "just\ntext\n"

	got, err := StripImports(src, imp)

	require.NoError(t, err)
	assert.Equal(t, src, got)
	assert.Empty(t, imp.calls)
}
